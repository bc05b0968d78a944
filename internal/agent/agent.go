// Package agent drives incident-response agents. Every agent is a
// Capability that presents a scenario, invokes the agent and parses its
// answer into a model.AgentOutput.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/scenario"
)

var (
	// ErrTimeout is returned when Invoke does not return within the
	// configured timeout.
	ErrTimeout = errors.New("agent timed out")
	// ErrOutputMalformed is returned when an agent response cannot be turned
	// into a well-formed AgentOutput.
	ErrOutputMalformed = errors.New("agent output malformed")
)

// MalformedOutputError carries the raw agent response that failed to parse.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	if e.Err == nil {
		return ErrOutputMalformed.Error()
	}
	return fmt.Sprintf("%v: %v", ErrOutputMalformed, e.Err)
}

func (e *MalformedOutputError) Is(target error) bool { return target == ErrOutputMalformed }

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Payload is what an agent is given for one scenario.
type Payload struct {
	ScenarioID string
	// Prompt is the natural language request, for agents that take one.
	Prompt string
	// State is the JSON encoding of the scenario state.
	State []byte
}

// Response is the raw answer of an agent together with any steps the
// adapter itself observed, such as token usage of a model call.
type Response struct {
	Raw   string
	Trace []model.TraceStep
}

// Capability is the boundary to one agent implementation. Only Invoke may
// block; adapters never retry.
type Capability interface {
	Name() string
	Present(sc *scenario.Scenario) (Payload, error)
	Invoke(ctx context.Context, p Payload) (Response, error)
	Parse(r Response) (*model.AgentOutput, error)
}

// Run presents sc to c, invokes it and parses the response. If Invoke does
// not return within timeout, Run returns ErrTimeout without waiting for it.
// A timeout of zero disables the limit.
func Run(ctx context.Context, c Capability, sc *scenario.Scenario, timeout time.Duration) (*model.AgentOutput, error) {
	p, err := c.Present(sc)
	if err != nil {
		return nil, fmt.Errorf("presenting scenario %s to %s: %w", sc.ID, c.Name(), err)
	}

	ictx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		ictx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type invokeResult struct {
		resp Response
		err  error
	}
	done := make(chan invokeResult, 1)
	go func() {
		resp, err := c.Invoke(ictx, p)
		done <- invokeResult{resp, err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-ictx.Done():
		return nil, invokeCanceled(ctx, c.Name(), timeout)
	}
	if res.err != nil {
		if ictx.Err() != nil {
			return nil, invokeCanceled(ctx, c.Name(), timeout)
		}
		return nil, fmt.Errorf("invoking %s: %w", c.Name(), res.err)
	}

	out, err := c.Parse(res.resp)
	if err != nil {
		var merr *MalformedOutputError
		if !errors.As(err, &merr) {
			err = &MalformedOutputError{Raw: res.resp.Raw, Err: err}
		}
		return nil, err
	}
	return out, nil
}

// invokeCanceled distinguishes a caller cancellation from the invoke
// deadline.
func invokeCanceled(parent context.Context, name string, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("invoking %s: %w", name, err)
	}
	return fmt.Errorf("%w: %s did not respond within %s", ErrTimeout, name, timeout)
}
