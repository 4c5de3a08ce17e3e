package agents

import (
	"context"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/retrieval"
)

// chatReply is one scripted chat turn for scriptClient.
type chatReply struct {
	content string
	err     error
}

// scriptClient plays back queued chat replies and returns fixed embeddings.
type scriptClient struct {
	chats    []chatReply
	reqs     []*llm.ChatRequest
	embedErr error
}

func (c *scriptClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.reqs = append(c.reqs, req)
	if len(c.chats) == 0 {
		return &llm.ChatResponse{Model: req.Model}, nil
	}
	next := c.chats[0]
	c.chats = c.chats[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llm.ChatResponse{Model: req.Model, Content: next.content}, nil
}

func (c *scriptClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedErr != nil {
		return nil, c.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (c *scriptClient) Name() string { return "script" }

// scriptStore plays back queued query results; the last entry is sticky.
type scriptStore struct {
	responses [][]retrieval.Match
	reqs      []*retrieval.QueryRequest
	err       error
}

func (s *scriptStore) Query(ctx context.Context, req *retrieval.QueryRequest) ([]retrieval.Match, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, nil
	}
	next := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return next, nil
}

func (s *scriptStore) Upsert(ctx context.Context, namespace string, vectors []retrieval.Vector) error {
	return nil
}

func (s *scriptStore) Delete(ctx context.Context, req *retrieval.DeleteRequest) error { return nil }

func (s *scriptStore) Stats(ctx context.Context) (*retrieval.IndexStats, error) {
	return &retrieval.IndexStats{}, nil
}

// newResearcher wires a Researcher over the scripted store and client with
// the reranker disabled, so tests exercise ordering deterministically.
func newResearcher(client *scriptClient, store retrieval.VectorStore, cfg Config) *Researcher {
	retriever := retrieval.NewRetriever(store, client, nil, retrieval.Config{})
	reranker := retrieval.NewLLMReranker(client, retrieval.RerankerConfig{Enabled: false, TopN: cfg.RerankTopN})
	return NewResearcher(client, store, retriever, reranker, cfg)
}
