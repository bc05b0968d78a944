// Package model defines the wire types shared by ground truth fixtures and
// agent predictions: components, root causes, resolutions, causal graphs and
// execution traces.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Component identifies a Kubernetes object.
type Component struct {
	Kind      string `json:"kind,omitempty"`
	Name      string `json:"name,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare string, which is taken
// as the component name.
func (c *Component) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Component{Name: name}
		return nil
	}
	type plain Component
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Component(p)
	return nil
}

func (c Component) IsZero() bool {
	return strings.TrimSpace(c.Kind) == "" && strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Namespace) == ""
}

// Matches reports whether c identifies the same object as truth. Comparison
// is case-insensitive and a truth without a namespace matches any namespace.
func (c Component) Matches(truth Component) bool {
	if !c.NameMatches(truth) || !fold(c.Kind, truth.Kind) {
		return false
	}
	if strings.TrimSpace(truth.Namespace) == "" {
		return true
	}
	return fold(c.Namespace, truth.Namespace)
}

// NameMatches reports whether both components carry the same non-empty name.
func (c Component) NameMatches(truth Component) bool {
	return strings.TrimSpace(c.Name) != "" && fold(c.Name, truth.Name)
}

func (c Component) String() string {
	if c.Namespace == "" {
		return c.Kind + "/" + c.Name
	}
	return c.Namespace + "/" + c.Kind + "/" + c.Name
}

func fold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// RootCause is the identified underlying cause of an incident.
type RootCause struct {
	Type         string    `json:"type"`
	ResourceType string    `json:"resource_type,omitempty"`
	Component    Component `json:"component"`
	Details      string    `json:"details,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// Text returns the free text used for lexical comparison.
func (r RootCause) Text() string {
	if strings.TrimSpace(r.Description) != "" {
		return r.Description
	}
	return r.Details
}

// Resolution is the remediation applied or proposed for an incident.
type Resolution struct {
	ActionType      string    `json:"action_type"`
	TargetComponent Component `json:"target_component"`
	Details         string    `json:"details,omitempty"`
	Description     string    `json:"description,omitempty"`
}

func (r Resolution) Text() string {
	if strings.TrimSpace(r.Description) != "" {
		return r.Description
	}
	return r.Details
}

// Node is a state, event or anomaly in a causal graph.
type Node struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Label       string     `json:"label,omitempty"`
	Component   *Component `json:"component,omitempty"`
	DataKeys    []string   `json:"data_keys,omitempty"`
}

// Text returns the description, falling back to the label.
func (n Node) Text() string {
	if strings.TrimSpace(n.Description) != "" {
		return n.Description
	}
	return n.Label
}

// HasComponent reports whether the node names a component.
func (n Node) HasComponent() bool {
	return n.Component != nil && !n.Component.IsZero()
}

// Edge is a directed causal link between two nodes.
type Edge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation,omitempty"`
}

// CausalGraph is a directed graph connecting a root cause to its symptoms.
// Cycles are permitted.
type CausalGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeIndex maps node ids to their position in Nodes.
func (g CausalGraph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := idx[n.ID]; !dup {
			idx[n.ID] = i
		}
	}
	return idx
}

// Validate checks that node ids are unique and non-empty and that every
// edge endpoint resolves to a node.
func (g CausalGraph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return fmt.Errorf("node %d: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("node %q: duplicate id", n.ID)
		}
		seen[n.ID] = true
	}
	for i, e := range g.Edges {
		if !seen[e.Source] {
			return fmt.Errorf("edge %d: source %q is not a node", i, e.Source)
		}
		if !seen[e.Target] {
			return fmt.Errorf("edge %d: target %q is not a node", i, e.Target)
		}
	}
	return nil
}

// TraceStep is one agent-reported step of execution. Granularity is defined
// by the agent.
type TraceStep struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Detail       string    `json:"detail,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
}

// Usage totals the token consumption of a trace.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AgentOutput is the standard shape every agent adapter produces.
type AgentOutput struct {
	RootCause      RootCause   `json:"root_cause"`
	Resolution     Resolution  `json:"resolution"`
	CausalGraph    CausalGraph `json:"causal_graph"`
	ExecutionTrace []TraceStep `json:"execution_trace,omitempty"`
}

// Usage sums token counts over the execution trace.
func (o *AgentOutput) Usage() Usage {
	var u Usage
	if o == nil {
		return u
	}
	for _, s := range o.ExecutionTrace {
		u.InputTokens += s.InputTokens
		u.OutputTokens += s.OutputTokens
	}
	return u
}

// GroundTruth is the authoritative answer for a scenario.
type GroundTruth struct {
	RootCause   RootCause   `json:"root_cause"`
	CausalGraph CausalGraph `json:"causal_graph"`
	Resolution  Resolution  `json:"resolution"`
}
