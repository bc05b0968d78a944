package scenario

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/schema"
)

const maxLineBytes = 4 << 20

// decodeLines calls fn for every non-blank line of a JSONL document.
func decodeLines(data []byte, fn func(line int, obj map[string]any) error) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if obj == nil {
			return fmt.Errorf("line %d: expected an object", n)
		}
		if err := fn(n, obj); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

func parseTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, errors.New("timestamp is required")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}

// takeString removes key from obj and returns its value, which must be a
// string when present.
func takeString(obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		delete(obj, key)
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %T", key, v)
	}
	delete(obj, key)
	return s, nil
}

func parseLogs(data []byte) ([]LogRecord, error) {
	var logs []LogRecord
	err := decodeLines(data, func(_ int, obj map[string]any) error {
		ts, err := parseTime(obj["timestamp"])
		if err != nil {
			return err
		}
		delete(obj, "timestamp")
		rec := LogRecord{Timestamp: ts}
		if rec.Level, err = takeString(obj, "level"); err != nil {
			return err
		}
		if rec.Source, err = takeString(obj, "source"); err != nil {
			return err
		}
		if rec.Source == "" {
			if rec.Source, err = takeString(obj, "service"); err != nil {
				return err
			}
		}
		if rec.Message, err = takeString(obj, "message"); err != nil {
			return err
		}
		if len(obj) > 0 {
			rec.Fields = obj
		}
		logs = append(logs, rec)
		return nil
	})
	return logs, err
}

func parseEvents(data []byte) ([]Event, error) {
	var events []Event
	err := decodeLines(data, func(_ int, obj map[string]any) error {
		ts, err := parseTime(obj["timestamp"])
		if err != nil {
			return err
		}
		delete(obj, "timestamp")
		ev := Event{Timestamp: ts}
		if ev.Type, err = takeString(obj, "type"); err != nil {
			return err
		}
		if ev.Reason, err = takeString(obj, "reason"); err != nil {
			return err
		}
		if ev.Message, err = takeString(obj, "message"); err != nil {
			return err
		}
		if raw, ok := obj["object"]; ok && raw != nil {
			m, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("object: expected an object, got %T", raw)
			}
			if ev.Object.Kind, err = takeString(m, "kind"); err != nil {
				return err
			}
			if ev.Object.Name, err = takeString(m, "name"); err != nil {
				return err
			}
			if ev.Object.Namespace, err = takeString(m, "namespace"); err != nil {
				return err
			}
		}
		delete(obj, "object")
		if len(obj) > 0 {
			ev.Fields = obj
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

func parseMetrics(data []byte) (Metrics, error) {
	var raw map[string]map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metrics{}, err
	}
	var m Metrics
	for resource, byMetric := range raw {
		for metric, points := range byMetric {
			s := Series{Resource: resource, Metric: metric, Points: make([]Point, 0, len(points))}
			for i, p := range points {
				pt, err := parsePoint(p)
				if err != nil {
					return Metrics{}, fmt.Errorf("%s/%s[%d]: %w", resource, metric, i, err)
				}
				s.Points = append(s.Points, pt)
			}
			m.Series = append(m.Series, s)
		}
	}
	sort.Slice(m.Series, func(i, j int) bool {
		if m.Series[i].Resource != m.Series[j].Resource {
			return m.Series[i].Resource < m.Series[j].Resource
		}
		return m.Series[i].Metric < m.Series[j].Metric
	})
	return m, nil
}

func parsePoint(raw json.RawMessage) (Point, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var p struct {
			Timestamp any      `json:"timestamp"`
			Value     *float64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return Point{}, err
		}
		if p.Value == nil {
			return Point{}, errors.New("value is required")
		}
		ts, err := parseTime(p.Timestamp)
		if err != nil {
			return Point{}, err
		}
		return Point{Timestamp: ts, Value: *p.Value}, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return Point{}, fmt.Errorf("expected a number or a sample object: %w", err)
	}
	return Point{Value: v}, nil
}

func parseTopology(data []byte) (Topology, error) {
	var raw struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []TopologyEdge    `json:"edges"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Topology{}, err
	}
	topo := Topology{Edges: raw.Edges}
	seen := make(map[string]bool, len(raw.Nodes))
	for i, n := range raw.Nodes {
		node, err := parseTopologyNode(n)
		if err != nil {
			return Topology{}, fmt.Errorf("node %d: %w", i, err)
		}
		if seen[node.ID] {
			return Topology{}, fmt.Errorf("node %q: duplicate id", node.ID)
		}
		seen[node.ID] = true
		topo.Nodes = append(topo.Nodes, node)
	}
	for i, e := range topo.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return Topology{}, fmt.Errorf("edge %d: %s -> %s references an unknown node", i, e.Source, e.Target)
		}
	}
	return topo, nil
}

func parseTopologyNode(raw json.RawMessage) (TopologyNode, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return TopologyNode{}, err
		}
		if id == "" {
			return TopologyNode{}, errors.New("empty node name")
		}
		return TopologyNode{ID: id}, nil
	}
	var obj struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Kind      string `json:"kind"`
		Namespace string `json:"namespace"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return TopologyNode{}, err
	}
	id := obj.ID
	if id == "" {
		id = obj.Name
	}
	if id == "" {
		return TopologyNode{}, errors.New("id or name is required")
	}
	return TopologyNode{ID: id, Kind: obj.Kind, Namespace: obj.Namespace}, nil
}

func parseConfiguration(data []byte) (map[string]any, error) {
	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		return map[string]any{}, nil
	}
	return normalizeKeys(cfg).(map[string]any), nil
}

// normalizeKeys rewrites mappings decoded with non-string keys, such as
// `8080: http`, to string-keyed maps so the configuration encodes as JSON.
func normalizeKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeKeys(e)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = normalizeKeys(e)
		}
		return m
	case []any:
		for i, e := range v {
			v[i] = normalizeKeys(e)
		}
		return v
	}
	return v
}

func parseMetadata(data []byte) (Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// decodeValidated checks data against a schema before decoding it into v.
func decodeValidated(name string, data []byte, v any) error {
	if err := schema.Validate(name, data); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func parseGroundTruth(rootCause, graph, resolution []byte) (model.GroundTruth, error) {
	var gt model.GroundTruth
	if err := decodeValidated(schema.RootCause, rootCause, &gt.RootCause); err != nil {
		return gt, fmt.Errorf("ground_truth/root_cause.json: %w", err)
	}
	if err := decodeValidated(schema.CausalGraph, graph, &gt.CausalGraph); err != nil {
		return gt, fmt.Errorf("ground_truth/causal_graph.json: %w", err)
	}
	if err := gt.CausalGraph.Validate(); err != nil {
		return gt, fmt.Errorf("ground_truth/causal_graph.json: %w", err)
	}
	if err := decodeValidated(schema.Resolution, resolution, &gt.Resolution); err != nil {
		return gt, fmt.Errorf("ground_truth/resolution.json: %w", err)
	}
	return gt, nil
}
