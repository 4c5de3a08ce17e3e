package bm25

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Record is one indexed chunk as persisted in the corpus file. The corpus
// is the source of truth for rebuilding statistics after every ingest.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// CorpusPath returns the corpus file location under dir.
func CorpusPath(dir string) string { return filepath.Join(dir, "bm25_corpus.json") }

// StatsPath returns the stats file location under dir.
func StatsPath(dir string) string { return filepath.Join(dir, "bm25_stats.json") }

// LoadStats reads the stats file. Missing or unreadable stats yield nil;
// callers treat that as "no sparse vectors available".
func LoadStats(dir string) *Stats {
	data, err := os.ReadFile(StatsPath(dir))
	if err != nil {
		return nil
	}
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("[BM25] Failed to load stats from %s: %v", StatsPath(dir), err)
		return nil
	}
	return &s
}

// SaveStats writes the stats file, creating dir if needed.
func SaveStats(dir string, stats *Stats) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return writeLocked(dir, StatsPath(dir), data)
}

// LoadCorpus reads the corpus records. A missing file yields an empty
// corpus.
func LoadCorpus(dir string) ([]Record, error) {
	data, err := os.ReadFile(CorpusPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("[BM25] Failed to load corpus from %s: %v", CorpusPath(dir), err)
		return nil, nil
	}
	return records, nil
}

// SaveCorpus writes the corpus records, creating dir if needed.
func SaveCorpus(dir string, records []Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal corpus: %w", err)
	}
	return writeLocked(dir, CorpusPath(dir), data)
}

// writeLocked serializes writers across processes with a directory lock.
func writeLocked(dir, path string, data []byte) error {
	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire corpus lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
