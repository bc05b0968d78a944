package agent_test

import (
	"testing"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`, true},
		{"untagged fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"other language fence skipped", "```python\n{'a': 1}\n```\n{\"b\": 2}", `{"b": 2}`, true},
		{"prose around object", `The answer is {"a": {"b": "}"}} hope it helps`, `{"a": {"b": "}"}}`, true},
		{"skips broken object", `{oops} then {"a": 1}`, `{"a": 1}`, true},
		{"none", "no json here", "", false},
		{"unbalanced", `{"a": 1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := agent.ExtractJSON(tt.input)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeOutput(t *testing.T) {
	out, err := agent.DecodeOutput("```json\n" + validOutput + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Misconfiguration", out.RootCause.Type)
	assert.Len(t, out.CausalGraph.Nodes, 1)
}

func TestDecodeOutputMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"the root cause is the payment service",
		`{"root_cause": {"type": "x", "component": "a"}}`,
		`{"root_cause": "paymentservice", "causal_chain": ["a", "b"], "resolution": "scale up"}`,
	} {
		_, err := agent.DecodeOutput(raw)
		require.ErrorIs(t, err, agent.ErrOutputMalformed, raw)
		var merr *agent.MalformedOutputError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, raw, merr.Raw)
	}
}
