package scenario_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/signalnine/srebench/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtures = "../../testdata/scenarios"

// copyFixture copies scenario_001 into a temp store and returns the store
// root and the scenario directory.
func copyFixture(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	dst := filepath.Join(root, "scenario_001")
	require.NoError(t, os.CopyFS(dst, os.DirFS(filepath.Join(fixtures, "scenario_001"))))
	return root, dst
}

func newStore(t *testing.T, dir string, cache int) *scenario.Store {
	t.Helper()
	s, err := scenario.NewStore(dir, cache, nil)
	require.NoError(t, err)
	return s
}

func TestLoadScenario001(t *testing.T) {
	s := newStore(t, fixtures, 0)
	sc, err := s.Load(context.Background(), "scenario_001")
	require.NoError(t, err)

	assert.Equal(t, "scenario_001", sc.ID)
	assert.Contains(t, sc.Description, "paymentservice")
	assert.Equal(t, "ResourceExhaustion", sc.Metadata.IncidentType)

	require.Len(t, sc.State.Logs, 5)
	assert.Equal(t, "paymentservice", sc.State.Logs[0].Source)
	assert.Equal(t, "tx-1001", sc.State.Logs[0].Fields["transaction_id"])
	assert.Len(t, sc.State.Events, 2)
	assert.Equal(t, "Deployment", sc.State.Events[0].Object.Kind)

	series, ok := sc.State.Metrics.Lookup("paymentservice", "cpu_throttled_ratio")
	require.True(t, ok)
	assert.Len(t, series.Points, 4)
	assert.InDelta(t, 0.83, series.Points[3].Value, 1e-9)
	_, ok = sc.State.Metrics.Lookup("paymentservice", "nope")
	assert.False(t, ok)
	assert.Equal(t, "checkoutservice", sc.State.Metrics.Series[0].Resource)

	assert.Len(t, sc.State.Topology.Nodes, 4)
	assert.Equal(t, "cartservice", sc.State.Topology.Nodes[3].ID)
	assert.Contains(t, sc.State.Configuration, "paymentservice")

	gt := sc.GroundTruth
	assert.Equal(t, "paymentservice", gt.RootCause.Component.Name)
	assert.Equal(t, "microservices-demo", gt.RootCause.Component.Namespace)
	assert.Len(t, gt.CausalGraph.Nodes, 7)
	assert.Len(t, gt.CausalGraph.Edges, 6)
	assert.Equal(t, "UpdateResourceLimits", gt.Resolution.ActionType)
}

func TestLoadIsIdempotent(t *testing.T) {
	for _, cache := range []int{0, 4} {
		s := newStore(t, fixtures, cache)
		a, err := s.Load(context.Background(), "scenario_001")
		require.NoError(t, err)
		b, err := s.Load(context.Background(), "scenario_001")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestLoadCachedSharesRecord(t *testing.T) {
	s := newStore(t, fixtures, 2)
	a, err := s.Load(context.Background(), "scenario_001")
	require.NoError(t, err)
	b, err := s.Load(context.Background(), "scenario_001")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLoadNotFound(t *testing.T) {
	s := newStore(t, fixtures, 0)
	for _, id := range []string{"scenario_404", "", "..", "../scenarios/scenario_001", `a\b`} {
		_, err := s.Load(context.Background(), id)
		assert.ErrorIs(t, err, scenario.ErrNotFound, "id %q", id)
	}
}

func TestLoadMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, dir string)
	}{
		{"dangling ground truth edge", func(t *testing.T, dir string) {
			write(t, dir, "ground_truth/causal_graph.json",
				`{"nodes":[{"id":"n1","type":"Configuration"}],"edges":[{"source":"n1","target":"n9","relation":"causes"}]}`)
		}},
		{"duplicate ground truth node", func(t *testing.T, dir string) {
			write(t, dir, "ground_truth/causal_graph.json",
				`{"nodes":[{"id":"n1","type":"A"},{"id":"n1","type":"B"}],"edges":[]}`)
		}},
		{"missing root cause", func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, "ground_truth/root_cause.json")))
		}},
		{"root cause wrong shape", func(t *testing.T, dir string) {
			write(t, dir, "ground_truth/root_cause.json", `["paymentservice"]`)
		}},
		{"resolution missing action", func(t *testing.T, dir string) {
			write(t, dir, "ground_truth/resolution.json", `{"target_component":"paymentservice"}`)
		}},
		{"bad log timestamp", func(t *testing.T, dir string) {
			write(t, dir, "state/logs.jsonl", `{"timestamp":"yesterday","message":"x"}`)
		}},
		{"log without timestamp", func(t *testing.T, dir string) {
			write(t, dir, "state/logs.jsonl", `{"message":"x"}`)
		}},
		{"broken events", func(t *testing.T, dir string) {
			write(t, dir, "state/events.jsonl", `{not json`)
		}},
		{"metric point not a number", func(t *testing.T, dir string) {
			write(t, dir, "state/metrics.json", `{"svc":{"cpu":["high"]}}`)
		}},
		{"topology edge to unknown node", func(t *testing.T, dir string) {
			write(t, dir, "state/topology.json", `{"nodes":["a"],"edges":[{"source":"a","target":"b"}]}`)
		}},
		{"configuration not a mapping", func(t *testing.T, dir string) {
			write(t, dir, "state/configuration.yaml", "- a\n- b\n")
		}},
		{"missing description", func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, "description.md")))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, dir := copyFixture(t)
			tt.mutate(t, dir)
			_, err := newStore(t, root, 0).Load(context.Background(), "scenario_001")
			assert.ErrorIs(t, err, scenario.ErrMalformed)
		})
	}
}

func TestLoadWithoutEvents(t *testing.T) {
	root, dir := copyFixture(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "state/events.jsonl")))
	sc, err := newStore(t, root, 0).Load(context.Background(), "scenario_001")
	require.NoError(t, err)
	assert.Empty(t, sc.State.Events)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newStore(t, fixtures, 0).Load(ctx, "scenario_001")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadCanceledCallerDoesNotFailOthers(t *testing.T) {
	root, _ := copyFixture(t)
	for i := 0; i < 20; i++ {
		s := newStore(t, root, 0)
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Load(ctx, "scenario_001")
		}()
		cancel()
		sc, err := s.Load(context.Background(), "scenario_001")
		wg.Wait()
		require.NoError(t, err)
		assert.Equal(t, "scenario_001", sc.ID)
	}
}

func TestLoadAfterCanceledLoad(t *testing.T) {
	s := newStore(t, fixtures, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Load(ctx, "scenario_001")
	require.ErrorIs(t, err, context.Canceled)

	sc, err := s.Load(context.Background(), "scenario_001")
	require.NoError(t, err)
	assert.Equal(t, "scenario_001", sc.ID)
}

func TestLoadConfigurationWithNonStringKeys(t *testing.T) {
	root, dir := copyFixture(t)
	write(t, dir, "state/configuration.yaml",
		"frontend:\n  ports:\n    8080: http\n    true: enabled\n  routes:\n    - 1: checkout\n")

	sc, err := newStore(t, root, 0).Load(context.Background(), "scenario_001")
	require.NoError(t, err)

	data, err := json.Marshal(sc.State.Configuration)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"frontend":{"ports":{"8080":"http","true":"enabled"},"routes":[{"1":"checkout"}]}}`,
		string(data))
}

func TestLoadDir(t *testing.T) {
	_, dir := copyFixture(t)
	sc, err := newStore(t, t.TempDir(), 0).LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "scenario_001", sc.ID)

	_, err = newStore(t, t.TempDir(), 0).LoadDir(context.Background(), filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, scenario.ErrNotFound)
}

func TestList(t *testing.T) {
	root, _ := copyFixture(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "scenario_002"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))

	ids, err := newStore(t, root, 0).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"scenario_001", "scenario_002"}, ids)
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(content), 0o644))
}
