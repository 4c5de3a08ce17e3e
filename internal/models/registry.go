// Package models is the static catalog of chat and embedding models the
// configured backends can serve. Model ids are provider-qualified
// ("openai/gpt-4o-mini") to match the settings file.
package models

import "strings"

// ModelInfo describes one model.
type ModelInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	ContextWindow int     `json:"context_window"`
	InputPrice    float64 `json:"input_price"`  // per 1M tokens
	OutputPrice   float64 `json:"output_price"` // per 1M tokens
	SupportsJSON  bool    `json:"supports_json"`
	Embedding     bool    `json:"embedding"`
	Description   string  `json:"description,omitempty"`
}

// ProviderInfo groups the models one backend serves.
type ProviderInfo struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Models []ModelInfo `json:"models"`
}

// DefaultContextWindow is assumed for models missing from the catalog.
const DefaultContextWindow = 128000

// Registry holds the known providers. The provider ids line up with the
// llm client constructors.
var Registry = map[string]ProviderInfo{
	"openai": {
		ID:   "openai",
		Name: "OpenAI",
		Models: []ModelInfo{
			{ID: "openai/gpt-4o", Name: "GPT-4o", Provider: "openai", ContextWindow: 128000, InputPrice: 2.5, OutputPrice: 10.0, SupportsJSON: true, Description: "Flagship generation"},
			{ID: "openai/gpt-4o-mini", Name: "GPT-4o mini", Provider: "openai", ContextWindow: 128000, InputPrice: 0.15, OutputPrice: 0.60, SupportsJSON: true, Description: "Default for planning and generation"},
			{ID: "openai/text-embedding-3-small", Name: "Text Embedding 3 Small", Provider: "openai", ContextWindow: 8191, InputPrice: 0.02, Embedding: true},
			{ID: "openai/text-embedding-3-large", Name: "Text Embedding 3 Large", Provider: "openai", ContextWindow: 8191, InputPrice: 0.13, Embedding: true},
		},
	},
	"openrouter": {
		ID:   "openrouter",
		Name: "OpenRouter",
		Models: []ModelInfo{
			{ID: "openrouter/anthropic/claude-sonnet-4", Name: "Claude Sonnet 4", Provider: "openrouter", ContextWindow: 200000, InputPrice: 3.0, OutputPrice: 15.0, SupportsJSON: true},
			{ID: "openrouter/openai/gpt-4o", Name: "GPT-4o", Provider: "openrouter", ContextWindow: 128000, InputPrice: 2.5, OutputPrice: 10.0, SupportsJSON: true},
			{ID: "openrouter/google/gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: "openrouter", ContextWindow: 1000000, InputPrice: 0.075, OutputPrice: 0.30, SupportsJSON: true},
		},
	},
	"deepseek": {
		ID:   "deepseek",
		Name: "DeepSeek",
		Models: []ModelInfo{
			{ID: "deepseek/deepseek-chat", Name: "DeepSeek V3", Provider: "deepseek", ContextWindow: 128000, InputPrice: 0.27, OutputPrice: 1.10, SupportsJSON: true},
			{ID: "deepseek/deepseek-reasoner", Name: "DeepSeek R1", Provider: "deepseek", ContextWindow: 64000, InputPrice: 0.55, OutputPrice: 2.19, Description: "Reasoning model"},
		},
	},
}

// SplitID separates a provider-qualified model id. Ids without a provider
// prefix default to openai.
func SplitID(modelID string) (provider, model string) {
	provider, model, found := strings.Cut(modelID, "/")
	if !found {
		return "openai", modelID
	}
	if _, known := Registry[provider]; !known {
		return "openai", modelID
	}
	return provider, model
}

// Lookup finds a model by its qualified id.
func Lookup(modelID string) *ModelInfo {
	provider, _ := SplitID(modelID)
	info, ok := Registry[provider]
	if !ok {
		return nil
	}
	for i := range info.Models {
		if info.Models[i].ID == modelID {
			m := info.Models[i]
			return &m
		}
	}
	return nil
}

// ContextWindowFor returns the model's context window, falling back to the
// default for unknown models.
func ContextWindowFor(modelID string) int {
	if m := Lookup(modelID); m != nil {
		return m.ContextWindow
	}
	return DefaultContextWindow
}

// Providers lists the catalog in a stable order.
func Providers() []ProviderInfo {
	order := []string{"openai", "openrouter", "deepseek"}
	providers := make([]ProviderInfo, 0, len(order))
	for _, id := range order {
		if p, ok := Registry[id]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}

// ChatModels lists the non-embedding models across all providers.
func ChatModels() []ModelInfo {
	var out []ModelInfo
	for _, p := range Providers() {
		for _, m := range p.Models {
			if !m.Embedding {
				out = append(out, m)
			}
		}
	}
	return out
}
