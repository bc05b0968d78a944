// Package scenario loads incident scenarios from disk into typed, read-only
// records.
package scenario

import (
	"sort"
	"time"

	"github.com/signalnine/srebench/internal/model"
)

// Scenario is one incident fixture. Records returned by a Store may be
// shared between callers and must not be modified.
type Scenario struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	State       State             `json:"state"`
	GroundTruth model.GroundTruth `json:"ground_truth"`
	Metadata    Metadata          `json:"metadata"`
}

// State is the observable cluster state an agent diagnoses from.
type State struct {
	Logs          []LogRecord    `json:"logs"`
	Metrics       Metrics        `json:"metrics"`
	Events        []Event        `json:"events,omitempty"`
	Topology      Topology       `json:"topology"`
	Configuration map[string]any `json:"configuration"`
}

// Metadata describes the incident category of a scenario.
type Metadata struct {
	IncidentType     string   `json:"incident_type"`
	AffectedServices []string `json:"affected_services"`
	Tags             []string `json:"tags"`
}

// LogRecord is one structured log line.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level,omitempty"`
	Source    string         `json:"source,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ObjectRef names the Kubernetes object an event refers to.
type ObjectRef struct {
	Kind      string `json:"kind,omitempty"`
	Name      string `json:"name,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// Event is one cluster event record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Object    ObjectRef      `json:"object,omitzero"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Point is a single metric sample. Timestamp is zero when the fixture
// supplies bare values.
type Point struct {
	Timestamp time.Time `json:"timestamp,omitzero"`
	Value     float64   `json:"value"`
}

// Series is a named time series for one resource.
type Series struct {
	Resource string  `json:"resource"`
	Metric   string  `json:"metric"`
	Points   []Point `json:"points"`
}

// Metrics holds every series of a scenario, sorted by resource then metric.
type Metrics struct {
	Series []Series `json:"series"`
}

// Lookup returns the series for resource and metric.
func (m Metrics) Lookup(resource, metric string) (Series, bool) {
	i := sort.Search(len(m.Series), func(i int) bool {
		s := m.Series[i]
		if s.Resource != resource {
			return s.Resource >= resource
		}
		return s.Metric >= metric
	})
	if i < len(m.Series) && m.Series[i].Resource == resource && m.Series[i].Metric == metric {
		return m.Series[i], true
	}
	return Series{}, false
}

// TopologyNode is one service or workload in the dependency graph.
type TopologyNode struct {
	ID        string `json:"id"`
	Kind      string `json:"kind,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// TopologyEdge is a dependency from Source to Target.
type TopologyEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
}

// Topology is the service dependency graph.
type Topology struct {
	Nodes []TopologyNode `json:"nodes"`
	Edges []TopologyEdge `json:"edges"`
}
