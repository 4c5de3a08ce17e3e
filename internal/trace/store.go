package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// Store persists finished traces as one JSON file per run under dir. Writes
// are guarded by a file lock so concurrent processes (server, CLI, eval
// runner) do not interleave.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates dir if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the trace as <trace_id>.json.
func (s *Store) Save(t *Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock trace dir: %w", err)
	}
	defer lock.Unlock()

	path := filepath.Join(s.dir, t.TraceID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// Load reads one trace by id.
func (s *Store) Load(traceID string) (*Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, traceID+".json"))
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	return &t, nil
}

// Summary is a lightweight listing entry for one stored trace.
type Summary struct {
	TraceID   string  `json:"trace_id"`
	Status    string  `json:"status"`
	StartedAt float64 `json:"started_at"`
	Steps     int     `json:"steps"`
}

// Recent lists up to limit stored traces, newest first.
func (s *Store) Recent(limit int) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read trace dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var t Trace
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		out = append(out, Summary{
			TraceID:   t.TraceID,
			Status:    t.Status,
			StartedAt: t.StartedAt,
			Steps:     len(t.Steps),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
