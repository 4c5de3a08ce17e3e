package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/igoryan-dao/quill/internal/bm25"
	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/metrics"
	"github.com/igoryan-dao/quill/internal/retrieval"
	"github.com/igoryan-dao/quill/internal/textutil"
)

// embedBatchSize bounds how many chunk texts go into one embedding call.
const embedBatchSize = 20

// metadataTextLimit caps the chunk text stored in vector metadata for
// retrieval display.
const metadataTextLimit = 15000

// Config carries the ingestion knobs.
type Config struct {
	NamespaceKnowledge string
	ChunkChars         int
	OverlapChars       int
	EnableBM25         bool
	BM25K1             float64
	BM25B              float64
	CorpusDir          string
	UpsertBatchSize    int
}

func (c Config) withDefaults() Config {
	if c.NamespaceKnowledge == "" {
		c.NamespaceKnowledge = "KnowledgeStore"
	}
	if c.ChunkChars <= 0 {
		c.ChunkChars = 1800
	}
	if c.OverlapChars <= 0 {
		c.OverlapChars = 200
	}
	if c.BM25K1 == 0 {
		c.BM25K1 = 1.2
	}
	if c.BM25B == 0 {
		c.BM25B = 0.75
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = 100
	}
	return c
}

// Options adjust a single ingest call. Zero values defer to detection:
// namespace falls back to the configured knowledge namespace, DocID to
// the content hash and the chunk window to the document-type profile.
// A negative OverlapChars selects no overlap at all.
type Options struct {
	Namespace     string
	DocID         string
	ChunkChars    int
	OverlapChars  int
	MaxPages      int
	MetadataExtra map[string]any
}

// Ingestor runs the extract -> chunk -> embed -> upsert pipeline.
type Ingestor struct {
	client  llm.Client
	store   retrieval.VectorStore
	browser *Browser
	cfg     Config
	metrics metrics.Recorder
}

// New wires an ingestor. browser may be nil, which disables URL ingestion.
func New(client llm.Client, store retrieval.VectorStore, browser *Browser, cfg Config, rec metrics.Recorder) *Ingestor {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Ingestor{
		client:  client,
		store:   store,
		browser: browser,
		cfg:     cfg.withDefaults(),
		metrics: rec,
	}
}

// IngestFile reads a document from disk and indexes it.
func (ing *Ingestor) IngestFile(ctx context.Context, path string, opts *Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ing.IngestBytes(ctx, filepath.Base(path), data, opts)
}

// IngestURL renders a web page headlessly and indexes its body text. The
// page title labels blocks that precede any detected heading.
func (ing *Ingestor) IngestURL(ctx context.Context, pageURL string, opts *Options) (*Result, error) {
	if ing.browser == nil {
		return nil, errors.New("browser not configured; cannot ingest URLs")
	}
	title, text, err := ing.browser.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	data := []byte(text)
	blocks := extractText(data, false)
	if title != "" {
		for i := range blocks {
			if blocks[i].Section == "" {
				blocks[i].Section = title
			} else {
				break
			}
		}
	}
	return ing.index(ctx, pageURL, data, blocks, "chromedp", opts)
}

// IngestBytes extracts, chunks, embeds and upserts an in-memory document.
func (ing *Ingestor) IngestBytes(ctx context.Context, filename string, data []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	blocks, method, err := extractBlocks(ctx, filename, data, opts.MaxPages)
	if err != nil {
		return nil, err
	}
	return ing.index(ctx, filename, data, blocks, method, opts)
}

func (ing *Ingestor) index(ctx context.Context, filename string, data []byte, blocks []Block, method string, opts *Options) (*Result, error) {
	if ing.store == nil {
		return nil, errors.New("vector index not configured; cannot ingest")
	}
	if opts == nil {
		opts = &Options{}
	}
	start := time.Now()

	namespace := opts.Namespace
	if namespace == "" {
		namespace = ing.cfg.NamespaceKnowledge
	}
	docID := opts.DocID
	if docID == "" {
		docID = StableDocID(data)
	}

	docType := DetectDocType(blocks)
	profile := ProfileFor(docType, Profile{
		ChunkChars:   ing.cfg.ChunkChars,
		OverlapChars: ing.cfg.OverlapChars,
	})
	chunkChars := opts.ChunkChars
	if chunkChars <= 0 {
		chunkChars = profile.ChunkChars
	}
	overlapChars := opts.OverlapChars
	if overlapChars == 0 {
		overlapChars = profile.OverlapChars
	} else if overlapChars < 0 {
		overlapChars = 0
	}

	chunks := chunkText(docID, filename, blocks, chunkChars, overlapChars)

	embeddings, err := ing.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	vectors := make([]retrieval.Vector, 0, len(chunks))
	records := make([]bm25.Record, 0, len(chunks))
	for i, ch := range chunks {
		meta := map[string]any{
			"doc_id":     ch.DocID,
			"filename":   ch.Filename,
			"chunk_id":   ch.ChunkID,
			"page":       ch.PageStart,
			"page_start": ch.PageStart,
			"page_end":   ch.PageEnd,
			"section":    ch.Section,
			"char_start": ch.CharStart,
			"char_end":   ch.CharEnd,
			"doc_type":   docType,
			// raw chunk text rides along for retrieval display
			"text": textutil.Clamp(ch.Text, metadataTextLimit),
		}
		for k, v := range opts.MetadataExtra {
			meta[k] = v
		}
		vectors = append(vectors, retrieval.Vector{ID: ch.ChunkID, Values: embeddings[i], Metadata: meta})
		records = append(records, bm25.Record{ID: ch.ChunkID, Text: ch.Text, Embedding: embeddings[i], Metadata: meta})
	}

	var upserted int
	if ing.cfg.EnableBM25 {
		existing, err := bm25.LoadCorpus(ing.cfg.CorpusDir)
		if err != nil {
			return nil, err
		}
		all := make([]bm25.Record, 0, len(existing)+len(records))
		for _, r := range existing {
			if metaString(r.Metadata, "doc_id") != docID {
				all = append(all, r)
			}
		}
		all = append(all, records...)
		if err := bm25.SaveCorpus(ing.cfg.CorpusDir, all); err != nil {
			return nil, err
		}
		upserted, err = ing.reindexBM25(ctx, namespace, all)
		if err != nil {
			return nil, err
		}
	} else {
		upserted, err = ing.upsertBatches(ctx, namespace, vectors)
		if err != nil {
			return nil, err
		}
	}

	pages := map[int]bool{}
	for _, b := range blocks {
		if b.Page > 0 {
			pages[b.Page] = true
		}
	}

	elapsed := time.Since(start)
	log.Printf("[Ingest] Ingested doc_id=%s file=%s pages=%d chunks=%d ns=%s doc_type=%s elapsed=%.2fs",
		docID, filename, len(pages), upserted, namespace, docType, elapsed.Seconds())

	return &Result{
		DocID:            docID,
		Filename:         filename,
		Namespace:        namespace,
		ChunksUpserted:   upserted,
		Pages:            len(pages),
		DocType:          docType,
		ChunkChars:       chunkChars,
		OverlapChars:     overlapChars,
		ExtractionMethod: method,
		ElapsedS:         elapsed.Seconds(),
	}, nil
}

func (ing *Ingestor) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embs, err := ing.client.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		embeddings = append(embeddings, embs...)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}
	return embeddings, nil
}

// reindexBM25 rebuilds corpus statistics and re-upserts every record with
// fresh sparse vectors. Vocabulary indices shift whenever the corpus
// changes, so stale sparse vectors cannot be left behind.
func (ing *Ingestor) reindexBM25(ctx context.Context, namespace string, records []bm25.Record) (int, error) {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	stats, terms := bm25.BuildStats(texts)
	if err := bm25.SaveStats(ing.cfg.CorpusDir, stats); err != nil {
		return 0, err
	}

	vectors := make([]retrieval.Vector, len(records))
	for i, r := range records {
		vec := retrieval.Vector{ID: r.ID, Values: r.Embedding, Metadata: r.Metadata}
		if sparse := bm25.DocVector(terms[i], stats, ing.cfg.BM25K1, ing.cfg.BM25B); !sparse.Empty() {
			vec.Sparse = sparse
		}
		vectors[i] = vec
	}
	return ing.upsertBatches(ctx, namespace, vectors)
}

func (ing *Ingestor) upsertBatches(ctx context.Context, namespace string, vectors []retrieval.Vector) (int, error) {
	upserted := 0
	size := ing.cfg.UpsertBatchSize
	for i := 0; i < len(vectors); i += size {
		end := i + size
		if end > len(vectors) {
			end = len(vectors)
		}
		start := time.Now()
		if err := ing.store.Upsert(ctx, namespace, vectors[i:end]); err != nil {
			ing.metrics.ObserveVectorRequest("upsert", "error", time.Since(start))
			return upserted, fmt.Errorf("vector upsert: %w", err)
		}
		ing.metrics.ObserveVectorRequest("upsert", "success", time.Since(start))
		upserted += end - i
	}
	return upserted, nil
}

func metaString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if s, ok := md[key].(string); ok {
		return s
	}
	return ""
}
