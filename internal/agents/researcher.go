package agents

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/retrieval"
	"github.com/igoryan-dao/quill/internal/textutil"
)

const researcherSystemPrompt = "You are a research assistant synthesizing answers from evidence.\n" +
	"Rules:\n" +
	"- Only use provided evidence.\n" +
	"- Cite evidence IDs like [e1], [e2] after relevant claims.\n" +
	"- Flag uncertainty with phrases like 'appears to', 'suggests', 'may indicate'.\n" +
	"- Be precise and concise.\n"

// Researcher retrieves evidence, reranks it and synthesizes a cited answer.
type Researcher struct {
	client    llm.Client
	store     retrieval.VectorStore
	retriever *retrieval.Retriever
	reranker  *retrieval.LLMReranker
	cfg       Config
}

func NewResearcher(client llm.Client, store retrieval.VectorStore, retriever *retrieval.Retriever, reranker *retrieval.LLMReranker, cfg Config) *Researcher {
	return &Researcher{
		client:    client,
		store:     store,
		retriever: retriever,
		reranker:  reranker,
		cfg:       cfg.withDefaults(),
	}
}

// ResearchQuery selects what one research pass searches. Zero values fall
// back: TopK to 6, Namespace to the configured knowledge namespace.
type ResearchQuery struct {
	TopicQuery string
	Namespace  string
	TopK       int
	DocID      string
	Section    string
	PageStart  int
	PageEnd    int
}

// Execute runs retrieve → rerank → synthesize and returns the answer with
// its claims and evidence.
func (a *Researcher) Execute(ctx context.Context, q ResearchQuery) (map[string]any, error) {
	if a.store == nil {
		log.Printf("[Researcher] Vector store not available, returning minimal response")
		return map[string]any{
			"answer":   "No retrieval backend configured.",
			"claims":   []string{},
			"evidence": []any{},
		}, nil
	}

	namespace := q.Namespace
	if namespace == "" {
		namespace = a.cfg.KnowledgeNamespace
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 6
	}

	metaFilter := map[string]any{}
	if q.Section != "" {
		metaFilter["section"] = map[string]any{"$eq": q.Section}
	}
	if q.PageStart > 0 || q.PageEnd > 0 {
		pageRange := map[string]any{}
		if q.PageStart > 0 {
			pageRange["$gte"] = q.PageStart
		}
		if q.PageEnd > 0 {
			pageRange["$lte"] = q.PageEnd
		}
		metaFilter["page_start"] = pageRange
	}

	candidates, err := a.retriever.Retrieve(ctx, q.TopicQuery, retrieval.Options{
		Namespace:      namespace,
		TopK:           topK,
		DocID:          q.DocID,
		MetaFilter:     metaFilter,
		DisableLexical: !a.cfg.EnableBM25Lexical,
	})
	if err != nil {
		return nil, err
	}

	evidence := a.reranker.Rerank(ctx, q.TopicQuery, candidates, a.cfg.RerankTopN)
	answer := a.synthesizeAnswer(ctx, q.TopicQuery, evidence)

	evidenceMaps := make([]any, len(evidence))
	for i, ev := range evidence {
		evidenceMaps[i] = ev.ToMap()
	}
	return map[string]any{
		"answer":   answer,
		"claims":   extractClaims(evidence),
		"evidence": evidenceMaps,
	}, nil
}

func (a *Researcher) synthesizeAnswer(ctx context.Context, query string, evidence []retrieval.Evidence) string {
	if len(evidence) == 0 {
		return "No relevant evidence found."
	}

	resp, err := a.client.Chat(ctx, &llm.ChatRequest{
		Model:        a.cfg.GenerationModel,
		SystemPrompt: researcherSystemPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Query: %s\n\nEvidence:\n%s\n\nSynthesize a clear answer citing the evidence.",
				query, formatEvidence(evidence)),
		}},
		MaxTokens:   min(a.cfg.MaxTokensPerCall, 1200),
		Temperature: 0.1,
	})
	if err != nil {
		log.Printf("[Researcher] Failed to synthesize answer: %v", err)
		return "Failed to synthesize answer from evidence."
	}
	return strings.TrimSpace(resp.Content)
}

func formatEvidence(evidence []retrieval.Evidence) string {
	lines := make([]string, len(evidence))
	for i, ev := range evidence {
		page := "-"
		if ev.PageStart != nil {
			page = strconv.Itoa(*ev.PageStart)
		}
		lines[i] = fmt.Sprintf("[%s | %s | score=%.3f | page=%s]\n%s",
			ev.ID, ev.Source, ev.Score, page, textutil.BoxUntrusted(ev.Text))
	}
	return strings.Join(lines, "\n\n")
}

// extractClaims pulls the first sentence of each evidence chunk as a cited
// claim, keeping at most five.
func extractClaims(evidence []retrieval.Evidence) []string {
	claims := []string{}
	for _, ev := range evidence {
		sentence, _, _ := strings.Cut(ev.Text, ".")
		claim := strings.TrimSpace(sentence)
		if claim != "" && utf8.RuneCountInString(claim) > 10 {
			claims = append(claims, fmt.Sprintf("%s [%s]", claim, ev.ID))
		}
		if len(claims) == 5 {
			break
		}
	}
	return claims
}
