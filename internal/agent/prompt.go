package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signalnine/srebench/internal/scenario"
)

const systemPrompt = "You are an AI SRE agent. Analyze the provided scenario state and identify the root cause, causal chain, and resolution."

const outputFormat = `{
  "root_cause": {
    "type": "string",
    "component": {"kind": "string", "name": "string", "namespace": "string"},
    "details": "string"
  },
  "resolution": {
    "action_type": "string",
    "target_component": {"kind": "string", "name": "string", "namespace": "string"},
    "details": "string"
  },
  "causal_graph": {
    "nodes": [
      {"id": "string", "type": "string", "label": "string",
       "component": {"kind": "string", "name": "string", "namespace": "string"}}
    ],
    "edges": [{"source": "node id", "target": "node id", "relation": "string"}]
  }
}`

// StateJSON encodes the observable state of sc. Ground truth and the
// human description are never included.
func StateJSON(sc *scenario.Scenario) ([]byte, error) {
	data, err := json.MarshalIndent(struct {
		ID    string         `json:"id"`
		State scenario.State `json:"state"`
	}{sc.ID, sc.State}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state of %s: %w", sc.ID, err)
	}
	return data, nil
}

// BuildPrompt renders the analysis request for an encoded scenario state.
func BuildPrompt(state []byte) string {
	var b strings.Builder
	b.WriteString("Analyze the following scenario state and provide the root cause, causal chain, and resolution in the specified JSON format.\n\n")
	b.WriteString("Scenario State:\n")
	b.Write(state)
	b.WriteString("\n\nOutput Format:\n")
	b.WriteString(outputFormat)
	b.WriteString("\n\nRespond with the JSON object only.")
	return b.String()
}

// present builds the payload shared by all adapters.
func present(sc *scenario.Scenario) (Payload, error) {
	state, err := StateJSON(sc)
	if err != nil {
		return Payload{}, err
	}
	return Payload{ScenarioID: sc.ID, Prompt: BuildPrompt(state), State: state}, nil
}
