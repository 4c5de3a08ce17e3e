package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/igoryan-dao/quill/internal/bm25"
	"github.com/igoryan-dao/quill/internal/breaker"
)

// PineconeStore talks to a Pinecone index over its data-plane REST API.
// All calls run through a circuit breaker so a struggling index degrades
// retrieval instead of hanging every request.
type PineconeStore struct {
	host    string
	apiKey  string
	httpc   *http.Client
	breaker *breaker.Breaker
}

// NewPineconeStore builds a store for the index served at host.
func NewPineconeStore(host, apiKey string) *PineconeStore {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if host != "" && !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}
	return &PineconeStore{
		host:    host,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		breaker: breaker.ForVectorStore(),
	}
}

type pineconeQueryRequest struct {
	Namespace       string             `json:"namespace,omitempty"`
	Vector          []float32          `json:"vector"`
	TopK            int                `json:"topK"`
	IncludeMetadata bool               `json:"includeMetadata"`
	Filter          map[string]any     `json:"filter,omitempty"`
	SparseVector    *bm25.SparseVector `json:"sparseVector,omitempty"`
}

type pineconeMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type pineconeQueryResponse struct {
	Matches []pineconeMatch `json:"matches"`
}

type pineconeVector struct {
	ID           string             `json:"id"`
	Values       []float32          `json:"values"`
	SparseValues *bm25.SparseVector `json:"sparseValues,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeDeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	DeleteAll bool           `json:"deleteAll,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
}

type pineconeStatsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
	Dimension int `json:"dimension"`
}

func (s *PineconeStore) Query(ctx context.Context, req *QueryRequest) ([]Match, error) {
	payload := pineconeQueryRequest{
		Namespace:       req.Namespace,
		Vector:          req.Vector,
		TopK:            req.TopK,
		IncludeMetadata: true,
		Filter:          req.Filter,
	}
	if !req.SparseVector.Empty() {
		payload.SparseVector = req.SparseVector
	}

	var out pineconeQueryResponse
	if err := s.post(ctx, "/query", payload, &out); err != nil {
		return nil, err
	}
	matches := make([]Match, len(out.Matches))
	for i, m := range out.Matches {
		matches[i] = Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return matches, nil
}

func (s *PineconeStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	payload := pineconeUpsertRequest{Namespace: namespace}
	for _, v := range vectors {
		pv := pineconeVector{ID: v.ID, Values: v.Values, Metadata: v.Metadata}
		if !v.Sparse.Empty() {
			pv.SparseValues = v.Sparse
		}
		payload.Vectors = append(payload.Vectors, pv)
	}
	return s.post(ctx, "/vectors/upsert", payload, nil)
}

func (s *PineconeStore) Delete(ctx context.Context, req *DeleteRequest) error {
	payload := pineconeDeleteRequest{
		IDs:       req.IDs,
		DeleteAll: req.DeleteAll,
		Namespace: req.Namespace,
		Filter:    req.Filter,
	}
	return s.post(ctx, "/vectors/delete", payload, nil)
}

func (s *PineconeStore) Stats(ctx context.Context) (*IndexStats, error) {
	var out pineconeStatsResponse
	if err := s.post(ctx, "/describe_index_stats", struct{}{}, &out); err != nil {
		return nil, err
	}
	stats := &IndexStats{
		Dimension:  out.Dimension,
		Namespaces: make(map[string]int, len(out.Namespaces)),
	}
	for ns, info := range out.Namespaces {
		stats.Namespaces[ns] = info.VectorCount
	}
	return stats, nil
}

func (s *PineconeStore) post(ctx context.Context, path string, payload any, out any) error {
	if s.host == "" {
		return fmt.Errorf("pinecone host not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pinecone request: %w", err)
	}

	return s.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Api-Key", s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("pinecone %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("pinecone %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode pinecone response: %w", err)
			}
		}
		return nil
	})
}

// EnsureNamespaces initializes missing namespaces by writing and removing
// a probe vector. Pinecone creates namespaces lazily, so this makes them
// visible to stats and dashboards before the first real ingest.
func EnsureNamespaces(ctx context.Context, store VectorStore, namespaces []string) {
	stats, err := store.Stats(ctx)
	if err != nil {
		log.Printf("[Retrieval] Index stats unavailable: %v", err)
		return
	}
	if stats.Dimension == 0 {
		log.Printf("[Retrieval] Index dimension unknown; namespace init skipped")
		return
	}

	for _, ns := range namespaces {
		if ns == "" {
			continue
		}
		if _, ok := stats.Namespaces[ns]; ok {
			continue
		}
		probe := make([]float32, stats.Dimension)
		probe[0] = 1e-6 // all-zero vectors are rejected
		vec := Vector{ID: "__namespace_init__", Values: probe, Metadata: map[string]any{"_system": true}}
		if err := store.Upsert(ctx, ns, []Vector{vec}); err != nil {
			log.Printf("[Retrieval] Failed to init namespace %s: %v", ns, err)
			continue
		}
		if err := store.Delete(ctx, &DeleteRequest{Namespace: ns, IDs: []string{"__namespace_init__"}}); err != nil {
			log.Printf("[Retrieval] Failed to clean namespace probe %s: %v", ns, err)
			continue
		}
		log.Printf("[Retrieval] Initialized namespace %s", ns)
	}
}
