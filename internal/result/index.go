package result

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Index.Get for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the indexed summary of one run.
type RunRecord struct {
	RunID                  string    `json:"run_id"`
	AgentName              string    `json:"agent_name"`
	StartedAt              time.Time `json:"started_at"`
	FinishedAt             time.Time `json:"finished_at"`
	ScenarioCount          int       `json:"scenario_count"`
	FailedCount            int       `json:"failed_count"`
	AverageEfficiencyScore float64   `json:"average_efficiency_score"`
	Complete               bool      `json:"complete"`
	Dir                    string    `json:"dir"`
}

// Index is a SQLite table of persisted runs, kept next to the run
// directories so runs can be listed without reading every summary.
type Index struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	agent_name      TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	scenario_count  INTEGER NOT NULL,
	failed_count    INTEGER NOT NULL,
	avg_efficiency  REAL NOT NULL,
	complete        INTEGER NOT NULL,
	dir             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// IndexPath returns the location of the index under a results directory.
func IndexPath(baseDir string) string {
	return filepath.Join(baseDir, "index.db")
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

// Upsert records s, stored in dir.
func (i *Index) Upsert(ctx context.Context, s *RunSummary, dir string) error {
	_, err := i.db.ExecContext(ctx, `
INSERT INTO runs (run_id, agent_name, started_at, finished_at, scenario_count, failed_count, avg_efficiency, complete, dir)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
	agent_name = excluded.agent_name,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	scenario_count = excluded.scenario_count,
	failed_count = excluded.failed_count,
	avg_efficiency = excluded.avg_efficiency,
	complete = excluded.complete,
	dir = excluded.dir`,
		s.RunID, s.AgentName,
		s.StartedAt.UTC().Format(time.RFC3339Nano), s.FinishedAt.UTC().Format(time.RFC3339Nano),
		s.ScenarioCount, s.FailedCount, s.AverageEfficiencyScore, boolInt(s.Complete), dir)
	if err != nil {
		return fmt.Errorf("indexing run %s: %w", s.RunID, err)
	}
	return nil
}

const selectRuns = `SELECT run_id, agent_name, started_at, finished_at, scenario_count, failed_count, avg_efficiency, complete, dir FROM runs`

// List returns every indexed run, newest first.
func (i *Index) List(ctx context.Context) ([]RunRecord, error) {
	rows, err := i.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns the record of runID.
func (i *Index) Get(ctx context.Context, runID string) (*RunRecord, error) {
	rec, err := scanRun(i.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Rebuild re-indexes every run directory under baseDir. Unreadable runs are
// skipped and reported in the returned error.
func (i *Index) Rebuild(ctx context.Context, baseDir string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, "runs"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing runs: %w", err)
	}
	var errs []error
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir, err := filepath.Abs(filepath.Join(baseDir, "runs", e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s, err := ReadRun(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := i.Upsert(ctx, s, dir); err != nil {
			return n, err
		}
		n++
	}
	return n, errors.Join(errs...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		rec               RunRecord
		started, finished string
		complete          int
	)
	if err := sc.Scan(&rec.RunID, &rec.AgentName, &started, &finished,
		&rec.ScenarioCount, &rec.FailedCount, &rec.AverageEfficiencyScore, &complete, &rec.Dir); err != nil {
		return rec, err
	}
	var err error
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return rec, fmt.Errorf("run %s: started_at: %w", rec.RunID, err)
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return rec, fmt.Errorf("run %s: finished_at: %w", rec.RunID, err)
	}
	rec.Complete = complete != 0
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
