package agent_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	exitCode int
	logs     string
	write    string
	opts     *docker.RunOpts
	input    []byte
}

func (f *fakeRunner) Run(ctx context.Context, opts *docker.RunOpts) (*docker.RunResult, error) {
	f.opts = opts
	for _, m := range opts.Mounts {
		switch m.Target {
		case agent.ContainerScenarioDir:
			data, err := os.ReadFile(filepath.Join(m.Source, "scenario.json"))
			if err != nil {
				return nil, err
			}
			f.input = data
		case agent.ContainerOutputDir:
			if f.write != "" {
				if err := os.WriteFile(filepath.Join(m.Source, "output.json"), []byte(f.write), 0o644); err != nil {
					return nil, err
				}
			}
		}
	}
	return &docker.RunResult{ExitCode: f.exitCode, Logs: f.logs}, nil
}

func TestContainerAdapter(t *testing.T) {
	sc := loadScenario(t)
	fr := &fakeRunner{write: validOutput}
	c := agent.NewContainer("boxed", "example/agent:latest", []string{"/agent"}, map[string]string{"MODE": "fast"}, fr)

	out, err := agent.Run(context.Background(), c, sc, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Misconfiguration", out.RootCause.Type)

	assert.Equal(t, "example/agent:latest", fr.opts.Image)
	assert.Equal(t, "fast", fr.opts.Env["MODE"])
	assert.Equal(t, "scenario_001", fr.opts.Env["SCENARIO_ID"])
	require.Len(t, fr.opts.Mounts, 2)
	assert.True(t, fr.opts.Mounts[0].ReadOnly)
	assert.False(t, fr.opts.Mounts[1].ReadOnly)

	var input map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fr.input, &input))
	assert.Contains(t, input, "state")
	assert.NotContains(t, input, "ground_truth")
}

func TestContainerAdapterNonZeroExit(t *testing.T) {
	sc := loadScenario(t)
	fr := &fakeRunner{exitCode: 2, logs: "panic: no api key"}
	c := agent.NewContainer("boxed", "example/agent:latest", nil, nil, fr)

	_, err := agent.Run(context.Background(), c, sc, time.Second)
	var merr *agent.MalformedOutputError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "panic: no api key", merr.Raw)
}

func TestContainerAdapterNoOutput(t *testing.T) {
	sc := loadScenario(t)
	c := agent.NewContainer("boxed", "example/agent:latest", nil, nil, &fakeRunner{})
	_, err := agent.Run(context.Background(), c, sc, time.Second)
	assert.ErrorIs(t, err, agent.ErrOutputMalformed)
}
