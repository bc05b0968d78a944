// Package schema validates scenario and agent JSON documents against the
// embedded JSON schemas.
package schema

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Names of the embedded schemas.
const (
	RootCause   = "root_cause"
	Resolution  = "resolution"
	CausalGraph = "causal_graph"
	AgentOutput = "agent_output"
)

//go:embed schemas/*.json
var files embed.FS

var (
	once     sync.Once
	compiled map[string]*gojsonschema.Schema
	loadErr  error
)

func load() {
	compiled = make(map[string]*gojsonschema.Schema)
	for _, name := range []string{RootCause, Resolution, CausalGraph, AgentOutput} {
		data, err := files.ReadFile("schemas/" + name + ".json")
		if err != nil {
			loadErr = fmt.Errorf("reading schema %s: %w", name, err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			loadErr = fmt.Errorf("compiling schema %s: %w", name, err)
			return
		}
		compiled[name] = s
	}
}

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// Validate checks data against the named schema. Invalid JSON and schema
// violations are both reported as errors.
func Validate(name string, data []byte) error {
	once.Do(load)
	if loadErr != nil {
		return loadErr
	}
	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if res.Valid() {
		return nil
	}
	verr := &ValidationError{Schema: name}
	for _, desc := range res.Errors() {
		verr.Problems = append(verr.Problems, desc.String())
	}
	return verr
}
