package result_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/srebench/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T, dir string) *result.Index {
	t.Helper()
	idx, err := result.OpenIndex(context.Background(), result.IndexPath(dir))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexUpsertListGet(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, t.TempDir())

	older := result.NewRunSummary("run-a", "gemini", time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	newer := result.NewRunSummary("run-b", "ollama", time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC))
	newer.ScenarioCount, newer.FailedCount, newer.AverageEfficiencyScore = 3, 1, 1.5
	require.NoError(t, idx.Upsert(ctx, older, "/tmp/run-a"))
	require.NoError(t, idx.Upsert(ctx, newer, "/tmp/run-b"))

	newer.Complete = true
	require.NoError(t, idx.Upsert(ctx, newer, "/tmp/run-b"))

	runs, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)
	assert.True(t, runs[0].Complete)
	assert.Equal(t, 3, runs[0].ScenarioCount)
	assert.Equal(t, 1.5, runs[0].AverageEfficiencyScore)
	assert.True(t, runs[0].StartedAt.Equal(newer.StartedAt))

	rec, err := idx.Get(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "gemini", rec.AgentName)
	assert.Equal(t, "/tmp/run-a", rec.Dir)

	_, err = idx.Get(ctx, "run-z")
	assert.True(t, errors.Is(err, result.ErrRunNotFound))
}

func TestIndexRebuild(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	runDir, err := result.CreateRunDir(base, "2025-04-01T10-00-00-abcd1234")
	require.NoError(t, err)
	sampleSummary(t, runDir)

	broken := filepath.Join(base, "runs", "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "summary.json"), []byte("{"), 0o644))

	idx := openIndex(t, base)
	n, err := idx.Rebuild(ctx, base)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, result.ErrAggregation)

	runs, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runDir, runs[0].Dir)
	assert.True(t, runs[0].Complete)
}

func TestIndexRebuildWithoutRuns(t *testing.T) {
	idx := openIndex(t, t.TempDir())
	n, err := idx.Rebuild(context.Background(), t.TempDir())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
