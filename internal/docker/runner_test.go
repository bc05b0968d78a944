package docker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/srebench/internal/docker"
)

func TestRun(t *testing.T) {
	if os.Getenv("SREBENCH_DOCKER_TESTS") == "" {
		t.Skip("set SREBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	in := t.TempDir()
	out := t.TempDir()
	os.WriteFile(filepath.Join(in, "scenario.json"), []byte(`{"id":"x"}`), 0o644)
	os.Chmod(out, 0o777)

	result, err := docker.NewRunner(nil).Run(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "cp /scenario/scenario.json /output/output.json && echo done"},
		Env:     map[string]string{"SCENARIO_FILE": "/scenario/scenario.json"},
		Mounts: []docker.Mount{
			{Source: in, Target: "/scenario", ReadOnly: true},
			{Source: out, Target: "/output"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code: got %d, want 0", result.ExitCode)
	}
	content, err := os.ReadFile(filepath.Join(out, "output.json"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(content) != `{"id":"x"}` {
		t.Errorf("output: got %q", content)
	}
}

func TestRunDeadline(t *testing.T) {
	if os.Getenv("SREBENCH_DOCKER_TESTS") == "" {
		t.Skip("set SREBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := docker.NewRunner(nil).Run(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 30*time.Second {
		t.Errorf("took too long: %v", time.Since(start))
	}
}
