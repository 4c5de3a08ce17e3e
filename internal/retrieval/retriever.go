package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/igoryan-dao/quill/internal/bm25"
	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/metrics"
	"github.com/igoryan-dao/quill/internal/textutil"
)

// Per-chunk and default budgets for retrieved context.
const (
	maxChunkChars          = 9000
	defaultMaxContextChars = 40000
	defaultTopK            = 6
)

// Config tunes the retriever.
type Config struct {
	EnableBM25      bool
	CorpusDir       string
	MaxContextChars int
	LexicalWeight   float64
}

// Retriever runs similarity search over a vector store, embedding queries
// through the LLM backend and post-processing hits into Evidence.
type Retriever struct {
	store   VectorStore
	client  llm.Client
	metrics metrics.Recorder
	cfg     Config
}

// NewRetriever wires a retriever. store may be nil, in which case every
// retrieval yields no results.
func NewRetriever(store VectorStore, client llm.Client, rec metrics.Recorder, cfg Config) *Retriever {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = defaultMaxContextChars
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Retriever{store: store, client: client, metrics: rec, cfg: cfg}
}

// Options select what a single retrieval searches.
type Options struct {
	Namespace string
	TopK      int
	// DocID restricts hits to one document.
	DocID string
	// MetaFilter adds metadata conditions in operator syntax. A doc_id
	// key here is ignored; use DocID.
	MetaFilter map[string]any
	// DisableLexical turns off the lexical overlap bonus.
	DisableLexical bool
}

// Retrieve returns evidence chunks ranked by relevance. Chunks that trip
// the injection tripwire are dropped, and accumulation stops once the
// context budget is spent.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Evidence, error) {
	if r.store == nil {
		log.Printf("[Retrieval] Vector store not available, returning empty results")
		return nil, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	embeddings, err := r.client.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding")
	}

	req := &QueryRequest{
		Namespace: opts.Namespace,
		Vector:    embeddings[0],
		TopK:      topK,
	}

	filter := make(map[string]any)
	if opts.DocID != "" {
		filter["doc_id"] = map[string]any{"$eq": opts.DocID}
	}
	for k, v := range opts.MetaFilter {
		if k == "doc_id" {
			continue
		}
		filter[k] = v
	}
	if len(filter) > 0 {
		req.Filter = filter
	}

	hasSparse := false
	if r.cfg.EnableBM25 {
		if stats := bm25.LoadStats(r.cfg.CorpusDir); stats != nil {
			if sparse := bm25.BuildQueryVector(query, stats); !sparse.Empty() {
				req.SparseVector = sparse
				hasSparse = true
			}
		}
	}

	start := time.Now()
	matches, err := r.store.Query(ctx, req)
	if err != nil {
		r.metrics.ObserveVectorRequest("query", "error", time.Since(start))
		return nil, fmt.Errorf("vector query: %w", err)
	}
	r.metrics.ObserveVectorRequest("query", "success", time.Since(start))
	r.metrics.ObserveVectorResults("query", len(matches))

	var candidates []Evidence
	totalChars := 0
	for i, match := range matches {
		ev := EvidenceFromMatch(match, i)

		text, flags := textutil.SanitizeUntrusted(ev.Text)
		if containsString(flags, "possible_prompt_injection") {
			log.Printf("[Retrieval] Suspicious content detected in evidence %s", ev.ID)
			continue
		}

		ev.Text = textutil.Clamp(text, maxChunkChars)
		totalChars += utf8.RuneCountInString(ev.Text)
		if totalChars > r.cfg.MaxContextChars {
			break
		}

		if !opts.DisableLexical && !hasSparse {
			bonus := textutil.LexicalOverlapScore(query, ev.Text)
			ev.Score += r.cfg.LexicalWeight * bonus
		}
		candidates = append(candidates, ev)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}
