package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/srebench/internal/docker"
	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/scenario"
)

// Paths seen by a containerized agent.
const (
	ContainerScenarioDir = "/scenario"
	ContainerOutputDir   = "/output"
	scenarioFile         = "scenario.json"
	outputFile           = "output.json"
)

// ContainerRunner runs one container to completion.
type ContainerRunner interface {
	Run(ctx context.Context, opts *docker.RunOpts) (*docker.RunResult, error)
}

// Container runs an agent image once per scenario. The encoded state is
// mounted read-only at /scenario/scenario.json and the agent is expected to
// write /output/output.json.
type Container struct {
	name    string
	image   string
	command []string
	env     map[string]string
	runner  ContainerRunner
}

func NewContainer(name, image string, command []string, env map[string]string, runner ContainerRunner) *Container {
	return &Container{name: name, image: image, command: command, env: env, runner: runner}
}

func (c *Container) Name() string { return c.name }

func (c *Container) Present(sc *scenario.Scenario) (Payload, error) { return present(sc) }

func (c *Container) Invoke(ctx context.Context, p Payload) (Response, error) {
	work, err := os.MkdirTemp("", "srebench-agent-")
	if err != nil {
		return Response{}, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(work)

	inDir := filepath.Join(work, "scenario")
	outDir := filepath.Join(work, "output")
	for _, d := range []string{inDir, outDir} {
		if err := os.Mkdir(d, 0o755); err != nil {
			return Response{}, fmt.Errorf("creating %s: %w", d, err)
		}
	}
	// The agent may run as a different user.
	if err := os.Chmod(outDir, 0o777); err != nil {
		return Response{}, fmt.Errorf("chmod %s: %w", outDir, err)
	}
	if err := os.WriteFile(filepath.Join(inDir, scenarioFile), p.State, 0o644); err != nil {
		return Response{}, fmt.Errorf("writing scenario: %w", err)
	}

	env := map[string]string{
		"SCENARIO_ID":   p.ScenarioID,
		"SCENARIO_FILE": ContainerScenarioDir + "/" + scenarioFile,
		"OUTPUT_FILE":   ContainerOutputDir + "/" + outputFile,
	}
	for k, v := range c.env {
		env[k] = v
	}
	res, err := c.runner.Run(ctx, &docker.RunOpts{
		Image:   c.image,
		Command: c.command,
		Env:     env,
		Mounts: []docker.Mount{
			{Source: inDir, Target: ContainerScenarioDir, ReadOnly: true},
			{Source: outDir, Target: ContainerOutputDir},
		},
		Labels: map[string]string{"srebench.scenario": p.ScenarioID, "srebench.agent": c.name},
	})
	if err != nil {
		return Response{}, err
	}
	if res.ExitCode != 0 {
		return Response{}, &MalformedOutputError{Raw: res.Logs, Err: fmt.Errorf("container exited with status %d", res.ExitCode)}
	}
	data, err := os.ReadFile(filepath.Join(outDir, outputFile))
	if err != nil {
		return Response{}, &MalformedOutputError{Raw: res.Logs, Err: fmt.Errorf("reading %s: %w", outputFile, err)}
	}
	return Response{Raw: string(data)}, nil
}

func (c *Container) Parse(r Response) (*model.AgentOutput, error) { return DecodeOutput(r.Raw) }
