package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAggregation is returned when persisted run data is corrupt or
// inconsistent on read-back.
var ErrAggregation = errors.New("corrupt run data")

const (
	stampFormat  = "2006-01-02T15-04-05"
	summaryFile  = "summary.json"
	resultsFile  = "results.json"
	scenariosDir = "scenarios"

	// MetricsFile is the Prometheus textfile written next to the summary.
	MetricsFile = "metrics.prom"
)

// NewRunID derives a run id from the run start time plus a short random
// suffix so concurrent runs never collide.
func NewRunID(start time.Time) string {
	return start.UTC().Format(stampFormat) + "-" + uuid.NewString()[:8]
}

// CustomRunID returns the id of a one-off evaluation of an ad-hoc scenario.
func CustomRunID() string {
	return "custom-" + uuid.NewString()
}

// RunDir returns the directory of runID under baseDir.
func RunDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID)
}

// CreateRunDir creates the run directory and points baseDir/latest at it.
func CreateRunDir(baseDir, runID string) (string, error) {
	runDir, err := filepath.Abs(RunDir(baseDir, runID))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// SafeName maps a scenario id to a directory name, replacing everything
// except letters, digits, '-' and '_' with '_'. When that changes the id, a
// hash of the raw id is appended so distinct ids never share a directory.
func SafeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == id && id != "" {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return fmt.Sprintf("%s-%08x", name, h.Sum32())
}

func ScenarioDir(runDir, scenarioID string) string {
	return filepath.Join(runDir, scenariosDir, SafeName(scenarioID))
}

// WriteScenarioResult persists r as scenarios/<safe id>/results.json.
func WriteScenarioResult(runDir string, r *ScenarioResult) error {
	dir := ScenarioDir(runDir, r.ScenarioID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating scenario dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, resultsFile), r)
}

// WriteSummary atomically replaces the run's summary.json.
func WriteSummary(runDir string, s *RunSummary) error {
	return writeJSON(filepath.Join(runDir, summaryFile), s)
}

// writeJSON writes v through a temp file and a rename, so readers never see
// a partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ReadScenarioResult loads one persisted scenario result.
func ReadScenarioResult(runDir, scenarioID string) (*ScenarioResult, error) {
	path := filepath.Join(ScenarioDir(runDir, scenarioID), resultsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrAggregation, path, err)
	}
	var r ScenarioResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrAggregation, path, err)
	}
	if r.ScenarioID != scenarioID {
		return nil, fmt.Errorf("%w: %s holds scenario %q, want %q", ErrAggregation, path, r.ScenarioID, scenarioID)
	}
	return &r, nil
}

// ReadRun loads the summary of the run in runDir and checks it against the
// per-scenario result files.
func ReadRun(runDir string) (*RunSummary, error) {
	path := filepath.Join(runDir, summaryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrAggregation, runDir, summaryFile)
		}
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var s RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrAggregation, path, err)
	}
	if err := s.check(runDir); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAggregation, path, err)
	}
	return &s, nil
}

func (s *RunSummary) check(runDir string) error {
	if s.RunID == "" {
		return errors.New("missing run_id")
	}
	if s.ScenarioResults == nil {
		s.ScenarioResults = map[string]*ScenarioResult{}
	}
	if s.ScenarioCount != len(s.ScenarioResults) {
		return fmt.Errorf("scenario_count is %d but %d results are present", s.ScenarioCount, len(s.ScenarioResults))
	}
	failed := 0
	for id, r := range s.ScenarioResults {
		if r == nil || r.ScenarioID != id {
			return fmt.Errorf("result keyed %q does not match its scenario", id)
		}
		if r.Failed() {
			failed++
		}
		for name, v := range r.ComparisonScores {
			if v < 0 || v > 1 {
				return fmt.Errorf("scenario %s: %s = %g is out of range", id, name, v)
			}
		}
		if _, err := ReadScenarioResult(runDir, id); err != nil {
			return err
		}
	}
	if failed != s.FailedCount {
		return fmt.Errorf("failed_count is %d but %d results failed", s.FailedCount, failed)
	}
	return nil
}
