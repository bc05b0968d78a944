package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/scenario"
)

// Replay answers with outputs recorded earlier as <dir>/<scenario id>.json.
type Replay struct {
	name string
	dir  string
}

func NewReplay(name, dir string) *Replay {
	return &Replay{name: name, dir: dir}
}

func (r *Replay) Name() string { return r.name }

func (r *Replay) Present(sc *scenario.Scenario) (Payload, error) {
	return Payload{ScenarioID: sc.ID}, nil
}

func (r *Replay) Invoke(ctx context.Context, p Payload) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if !scenario.ValidID(p.ScenarioID) {
		return Response{}, &MalformedOutputError{Err: fmt.Errorf("no recording for scenario %q", p.ScenarioID)}
	}
	data, err := os.ReadFile(filepath.Join(r.dir, p.ScenarioID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return Response{}, &MalformedOutputError{Err: fmt.Errorf("no recording for scenario %s in %s", p.ScenarioID, r.dir)}
	}
	if err != nil {
		return Response{}, fmt.Errorf("reading recording: %w", err)
	}
	return Response{Raw: string(data)}, nil
}

func (r *Replay) Parse(resp Response) (*model.AgentOutput, error) { return DecodeOutput(resp.Raw) }
