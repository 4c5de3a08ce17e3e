package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/igoryan-dao/quill/internal/breaker"
	"github.com/igoryan-dao/quill/internal/cache"
	"github.com/igoryan-dao/quill/internal/metrics"
)

// ResilientConfig tunes the decorated client. Zero values get sensible
// defaults; a nil Metrics recorder disables instrumentation.
type ResilientConfig struct {
	// EmbedModel namespaces embedding cache keys. Defaults to the model
	// the wrapped backend embeds with.
	EmbedModel string
	Breaker    *breaker.Breaker
	Responses  *cache.ResponseCache
	Embeddings *cache.EmbeddingCache
	Metrics    metrics.Recorder
}

// ResilientClient decorates a Client with a circuit breaker, response and
// embedding caches, and metrics. Cache hits bypass the backend entirely,
// so a cached ChatResponse carries no usage numbers.
type ResilientClient struct {
	inner      Client
	embedModel string
	breaker    *breaker.Breaker
	responses  *cache.ResponseCache
	embeddings *cache.EmbeddingCache
	metrics    metrics.Recorder
}

// NewResilientClient wraps inner with the protections in cfg.
func NewResilientClient(inner Client, cfg ResilientConfig) *ResilientClient {
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.ForLLM()
	}
	if cfg.Responses == nil {
		cfg.Responses = cache.NewResponseCache()
	}
	if cfg.Embeddings == nil {
		cfg.Embeddings = cache.NewEmbeddingCache()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	return &ResilientClient{
		inner:      inner,
		embedModel: cfg.EmbedModel,
		breaker:    cfg.Breaker,
		responses:  cfg.Responses,
		embeddings: cfg.Embeddings,
		metrics:    cfg.Metrics,
	}
}

// Name returns the wrapped backend's name.
func (c *ResilientClient) Name() string { return c.inner.Name() }

// promptKey renders the conversation for cache keying. Sampling knobs are
// deliberately not part of the key: identical prompts share an entry.
func promptKey(req *ChatRequest) string {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, req.Messages...)
	raw, err := json.Marshal(msgs)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Chat serves from the response cache when possible, otherwise calls the
// backend through the circuit breaker and caches the result.
func (c *ResilientClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	key := promptKey(req)
	if key != "" {
		if text, ok := c.responses.Get(key, req.Model); ok {
			return &ChatResponse{Model: req.Model, Content: text}, nil
		}
	}

	var resp *ChatResponse
	start := time.Now()
	err := c.breaker.Do(func() error {
		var callErr error
		resp, callErr = c.inner.Chat(ctx, req)
		return callErr
	})
	duration := time.Since(start)
	if err != nil {
		c.metrics.ObserveLLMRequest(req.Model, "chat", "error", duration)
		c.metrics.ObserveLLMError(req.Model, "chat", errorTypeLabel(err))
		return nil, err
	}

	c.metrics.ObserveLLMRequest(req.Model, "chat", "success", duration)
	c.metrics.ObserveLLMTokens(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens,
		resp.Usage.InputTokens+resp.Usage.OutputTokens)

	if key != "" && resp.Content != "" {
		c.responses.Set(key, req.Model, resp.Content)
	}
	return resp, nil
}

// Embed resolves each text from the embedding cache and batches the
// misses into a single backend call through the circuit breaker.
func (c *ResilientClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.embeddings.Get(text, c.embedModel); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	var vecs [][]float32
	start := time.Now()
	err := c.breaker.Do(func() error {
		var callErr error
		vecs, callErr = c.inner.Embed(ctx, missing)
		return callErr
	})
	duration := time.Since(start)
	if err != nil {
		c.metrics.ObserveLLMRequest(c.embedModel, "embedding", "error", duration)
		c.metrics.ObserveLLMError(c.embedModel, "embedding", errorTypeLabel(err))
		return nil, err
	}
	if len(vecs) != len(missing) {
		c.metrics.ObserveLLMRequest(c.embedModel, "embedding", "error", duration)
		return nil, errors.New("embedding count does not match input count")
	}
	c.metrics.ObserveLLMRequest(c.embedModel, "embedding", "success", duration)

	for j, vec := range vecs {
		results[missingIdx[j]] = vec
		c.embeddings.Set(missing[j], c.embedModel, vec)
	}
	return results, nil
}

// errorTypeLabel buckets an error into a low-cardinality metric label.
func errorTypeLabel(err error) string {
	var openErr *breaker.OpenError
	if errors.As(err, &openErr) {
		return "circuit_open"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "api_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network_error"
	}
	return "other"
}
