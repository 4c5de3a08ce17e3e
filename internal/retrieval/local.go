package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// localRecord is one stored vector with its namespace.
type localRecord struct {
	ID        string             `json:"id"`
	Namespace string             `json:"namespace"`
	Values    []float32          `json:"values"`
	Sparse    *localSparseRecord `json:"sparse,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
}

type localSparseRecord struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

// LocalStore is an in-memory vector store with JSON file persistence.
// It serves development and tests; deployments with a Pinecone index
// configured use PineconeStore instead.
type LocalStore struct {
	mu   sync.RWMutex
	path string
	recs []localRecord
}

// NewLocalStore opens (or creates) a store persisted at path. An empty
// path keeps the store purely in memory.
func NewLocalStore(path string) (*LocalStore, error) {
	s := &LocalStore{path: path}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := s.load(); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *LocalStore) Query(ctx context.Context, req *QueryRequest) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   *localRecord
		score float64
	}
	var hits []scored
	for i := range s.recs {
		rec := &s.recs[i]
		if rec.Namespace != req.Namespace {
			continue
		}
		if len(req.Filter) > 0 && !matchesFilter(rec.Metadata, req.Filter) {
			continue
		}
		score := cosineSimilarity(req.Vector, rec.Values)
		if req.SparseVector != nil && rec.Sparse != nil {
			score += sparseDot(req.SparseVector.Indices, req.SparseVector.Values, rec.Sparse.Indices, rec.Sparse.Values)
		}
		hits = append(hits, scored{rec: rec, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if req.TopK > 0 && len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}

	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{ID: h.rec.ID, Score: h.score, Metadata: h.rec.Metadata}
	}
	return matches, nil
}

func (s *LocalStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, v := range vectors {
		rec := localRecord{
			ID:        v.ID,
			Namespace: namespace,
			Values:    v.Values,
			Metadata:  v.Metadata,
		}
		if v.Sparse != nil && len(v.Sparse.Indices) > 0 {
			rec.Sparse = &localSparseRecord{Indices: v.Sparse.Indices, Values: v.Sparse.Values}
		}
		if idx := s.find(namespace, v.ID); idx >= 0 {
			s.recs[idx] = rec
		} else {
			s.recs = append(s.recs, rec)
		}
	}
	s.mu.Unlock()
	return s.save()
}

func (s *LocalStore) Delete(ctx context.Context, req *DeleteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	kept := s.recs[:0]
	for _, rec := range s.recs {
		if rec.Namespace != req.Namespace {
			kept = append(kept, rec)
			continue
		}
		if req.DeleteAll {
			continue
		}
		if len(req.IDs) > 0 && containsString(req.IDs, rec.ID) {
			continue
		}
		if len(req.Filter) > 0 && matchesFilter(rec.Metadata, req.Filter) {
			continue
		}
		kept = append(kept, rec)
	}
	s.recs = kept
	s.mu.Unlock()
	return s.save()
}

func (s *LocalStore) Stats(ctx context.Context) (*IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &IndexStats{Namespaces: make(map[string]int)}
	for _, rec := range s.recs {
		stats.Namespaces[rec.Namespace]++
		if stats.Dimension == 0 && len(rec.Values) > 0 {
			stats.Dimension = len(rec.Values)
		}
	}
	return stats, nil
}

// find returns the index of a record or -1. Caller holds the lock.
func (s *LocalStore) find(namespace, id string) int {
	for i := range s.recs {
		if s.recs[i].Namespace == namespace && s.recs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *LocalStore) save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(s.recs)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *LocalStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.recs)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sparseDot computes the dot product of two index-sorted sparse vectors.
func sparseDot(aIdx []int, aVal []float64, bIdx []int, bVal []float64) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(aIdx) && j < len(bIdx) {
		switch {
		case aIdx[i] == bIdx[j]:
			sum += aVal[i] * bVal[j]
			i++
			j++
		case aIdx[i] < bIdx[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
