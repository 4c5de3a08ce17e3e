package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client is a chat-completion and embedding backend (OpenAI, OpenRouter,
// DeepSeek or any API speaking the same dialect).
type Client interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
	SystemPrompt string    `json:"system,omitempty"`
	JSONMode     bool      `json:"json_mode,omitempty"` // request response_format json_object
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Content    string `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
}

// Usage represents token usage
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ClientConfig holds backend configuration
type ClientConfig struct {
	Provider   string `json:"provider"` // openai, openrouter, deepseek
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url,omitempty"`
	EmbedModel string `json:"embed_model,omitempty"`
}

// NewClient creates a backend client based on config
func NewClient(cfg ClientConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		baseURL := "https://api.openai.com/v1"
		if cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		return NewOpenAIClient(cfg.APIKey, baseURL, cfg.EmbedModel), nil
	case "openrouter":
		baseURL := "https://openrouter.ai/api/v1"
		if cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		return NewOpenAIClient(cfg.APIKey, baseURL, cfg.EmbedModel), nil
	case "deepseek":
		baseURL := "https://api.deepseek.com/v1"
		if cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		return NewOpenAIClient(cfg.APIKey, baseURL, cfg.EmbedModel), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// httpClient is a shared HTTP client with a long timeout for AI requests
var httpClient = &http.Client{
	Timeout: 10 * time.Minute,
	Transport: &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

// doRequest performs an HTTP request with retry logic: three attempts,
// exponential backoff between 700ms and 4s, retrying network errors and 5xx.
func doRequest(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	// Read body into buffer for retries
	var bodyBytes []byte
	var err error
	if body != nil {
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, err
		}
	}

	retryDelay := 700 * time.Millisecond
	maxDelay := 4 * time.Second
	maxRetries := 2

	for i := 0; i <= maxRetries; i++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}

		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if i < maxRetries {
				log.Printf("[LLM] Request failed: %v. Retrying in %v...", err, retryDelay)
				time.Sleep(retryDelay)
				retryDelay *= 2
				if retryDelay > maxDelay {
					retryDelay = maxDelay
				}
				continue
			}
			return nil, err
		}

		// Retry 5xx responses
		if resp.StatusCode >= 500 {
			if i < maxRetries {
				log.Printf("[LLM] API returned %d. Retrying in %v...", resp.StatusCode, retryDelay)
				resp.Body.Close()
				time.Sleep(retryDelay)
				retryDelay *= 2
				if retryDelay > maxDelay {
					retryDelay = maxDelay
				}
				continue
			}
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded")
}
