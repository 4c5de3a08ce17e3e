// Package agents implements the five typed capabilities the execution
// engine dispatches to: Librarian (blueprint extraction), Researcher
// (retrieval + synthesis), Summarizer, Writer and Verifier. Each carries
// its own prompts, sampling settings and failure fallbacks.
package agents

import (
	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/retrieval"
)

// Config carries the knobs shared by the capabilities.
type Config struct {
	GenerationModel    string
	MaxTokensPerCall   int
	MaxInputChars      int
	MaxContextChars    int
	ContextNamespace   string
	KnowledgeNamespace string
	RerankTopN         int
	EnableBM25Lexical  bool
}

func (c Config) withDefaults() Config {
	if c.MaxTokensPerCall <= 0 {
		c.MaxTokensPerCall = 1500
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = 12000
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 40000
	}
	if c.RerankTopN <= 0 {
		c.RerankTopN = 8
	}
	return c
}

// Set bundles one instance of each capability bound to the same LLM
// backend and vector store.
type Set struct {
	Librarian  *Librarian
	Researcher *Researcher
	Summarizer *Summarizer
	Writer     *Writer
	Verifier   *Verifier
}

// NewSet wires all five capabilities. store may be nil; capabilities that
// retrieve then degrade the way their fallbacks specify.
func NewSet(client llm.Client, store retrieval.VectorStore, retriever *retrieval.Retriever, reranker *retrieval.LLMReranker, cfg Config) *Set {
	cfg = cfg.withDefaults()
	return &Set{
		Librarian:  NewLibrarian(client, store, cfg),
		Researcher: NewResearcher(client, store, retriever, reranker, cfg),
		Summarizer: NewSummarizer(client, cfg),
		Writer:     NewWriter(client, cfg),
		Verifier:   NewVerifier(client, cfg),
	}
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
