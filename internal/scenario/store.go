package scenario

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when a scenario directory does not exist.
	ErrNotFound = errors.New("scenario not found")
	// ErrMalformed is returned when a scenario file is missing or cannot be
	// parsed.
	ErrMalformed = errors.New("scenario malformed")
)

// Store loads scenarios from a directory with one subdirectory per scenario.
type Store struct {
	dir    string
	cache  *lru.Cache[string, *Scenario]
	group  singleflight.Group
	logger *slog.Logger
}

// NewStore returns a Store rooted at dir. Up to cacheSize loaded scenarios
// are kept in memory; 0 disables caching.
func NewStore(dir string, cacheSize int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger}
	if cacheSize > 0 {
		c, err := lru.New[string, *Scenario](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating scenario cache: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

// ValidID reports whether id can name a scenario directory: a single,
// non-empty path element.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

// Load returns the scenario with the given id.
func (s *Store) Load(ctx context.Context, id string) (*Scenario, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	if s.cache != nil {
		if sc, ok := s.cache.Get(id); ok {
			return sc, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The shared load must not inherit one caller's cancellation; each caller
	// waits on its own ctx instead.
	ch := s.group.DoChan(id, func() (any, error) {
		sc, err := loadDir(context.WithoutCancel(ctx), id, filepath.Join(s.dir, id))
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Add(id, sc)
		}
		s.logger.Debug("scenario loaded", "id", id, "logs", len(sc.State.Logs), "nodes", len(sc.GroundTruth.CausalGraph.Nodes))
		return sc, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Scenario), nil
	}
}

// LoadDir loads a scenario from an arbitrary directory, bypassing the cache.
// The scenario id is the directory's base name.
func (s *Store) LoadDir(ctx context.Context, path string) (*Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	return loadDir(ctx, filepath.Base(abs), abs)
}

// List returns the sorted names of the scenario directories in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing scenarios in %s: %w", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Required files, relative to the scenario directory.
const (
	fileDescription   = "description.md"
	fileMetadata      = "metadata.json"
	fileLogs          = "state/logs.jsonl"
	fileMetrics       = "state/metrics.json"
	fileEvents        = "state/events.jsonl"
	fileTopology      = "state/topology.json"
	fileConfiguration = "state/configuration.yaml"
	fileRootCause     = "ground_truth/root_cause.json"
	fileCausalGraph   = "ground_truth/causal_graph.json"
	fileResolution    = "ground_truth/resolution.json"
)

func malformed(file string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformed, file, err)
}

func loadDir(ctx context.Context, id, dir string) (*Scenario, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("stat scenario %s: %w", id, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, id)
	}

	files := make(map[string][]byte)
	for _, name := range []string{
		fileDescription, fileMetadata,
		fileLogs, fileMetrics, fileTopology, fileConfiguration,
		fileRootCause, fileCausalGraph, fileResolution,
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, malformed(name, err)
		}
		files[name] = data
	}
	events, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(fileEvents)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, malformed(fileEvents, err)
	}

	sc := &Scenario{ID: id, Description: string(files[fileDescription])}
	if sc.Metadata, err = parseMetadata(files[fileMetadata]); err != nil {
		return nil, malformed(fileMetadata, err)
	}
	if sc.State.Logs, err = parseLogs(files[fileLogs]); err != nil {
		return nil, malformed(fileLogs, err)
	}
	if sc.State.Metrics, err = parseMetrics(files[fileMetrics]); err != nil {
		return nil, malformed(fileMetrics, err)
	}
	if events != nil {
		if sc.State.Events, err = parseEvents(events); err != nil {
			return nil, malformed(fileEvents, err)
		}
	}
	if sc.State.Topology, err = parseTopology(files[fileTopology]); err != nil {
		return nil, malformed(fileTopology, err)
	}
	if sc.State.Configuration, err = parseConfiguration(files[fileConfiguration]); err != nil {
		return nil, malformed(fileConfiguration, err)
	}
	if sc.GroundTruth, err = parseGroundTruth(files[fileRootCause], files[fileCausalGraph], files[fileResolution]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return sc, nil
}
