package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/igoryan-dao/quill/internal/paths"
)

// ProvidersConfig holds server-side providers configuration
type ProvidersConfig struct {
	Providers       map[string]ProviderConfig `yaml:"providers"`
	DefaultProvider string                    `yaml:"default_provider"`
	DefaultModel    string                    `yaml:"default_model"`
}

// ProviderConfig defines a single provider's server configuration
type ProviderConfig struct {
	Enabled bool          `yaml:"enabled"`
	Key     string        `yaml:"key"`      // Can be ${ENV_VAR} reference
	BaseURL string        `yaml:"base_url"` // Optional custom endpoint
	Models  []ModelConfig `yaml:"models"`
}

// ModelConfig defines a model available from the provider
type ModelConfig struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	ContextWindow int     `yaml:"context_window"`
	InputPrice    float64 `yaml:"input_price"`
	OutputPrice   float64 `yaml:"output_price"`
	IsFree        bool    `yaml:"free"`
	SupportsJSON  bool    `yaml:"supports_json"`
	Embedding     bool    `yaml:"embedding"`
}

// AvailableProvider is returned by the /models endpoint
type AvailableProvider struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	HasKey    bool             `json:"hasKey"`
	Available bool             `json:"available"`
	Models    []AvailableModel `json:"models"`
}

// AvailableModel is returned by the /models endpoint
type AvailableModel struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContextWindow int     `json:"contextWindow"`
	InputPrice    float64 `json:"inputPrice"`
	OutputPrice   float64 `json:"outputPrice"`
	IsFree        bool    `json:"isFree"`
	SupportsJSON  bool    `json:"supportsJSON"`
	Embedding     bool    `json:"embedding"`
}

// ProvidersManager handles loading and querying providers config
type ProvidersManager struct {
	config *ProvidersConfig
}

// NewProvidersManager creates a new providers manager
func NewProvidersManager(configPath string) (*ProvidersManager, error) {
	pm := &ProvidersManager{}

	// Load local dev env file first (if exists)
	pm.loadEnvLocal()

	// Try to load config file
	if configPath != "" {
		if err := pm.loadConfig(configPath); err != nil {
			// Config file optional - use defaults
			pm.config = pm.defaultConfig()
		}
	} else {
		pm.config = pm.defaultConfig()
	}

	// Resolve environment variables in keys
	pm.resolveEnvVars()

	return pm, nil
}

// loadConfig loads providers config from yaml file
func (pm *ProvidersManager) loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	pm.config = &ProvidersConfig{}
	return yaml.Unmarshal(data, pm.config)
}

// loadEnvLocal loads .env.local for local development.
// This file is gitignored and contains developer API keys.
func (pm *ProvidersManager) loadEnvLocal() {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	candidates := []string{
		".env.local",
		"config/.env.local",
		filepath.Join(execDir, ".env.local"),
		filepath.Join(paths.GetGlobalDir(), ".env.local"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "[Providers] Failed to load %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "[Providers] Loaded env from: %s\n", path)
		return // Only load first found file
	}
}

// resolveEnvVars replaces ${ENV_VAR} with actual values from environment
func (pm *ProvidersManager) resolveEnvVars() {
	for id, p := range pm.config.Providers {
		if strings.HasPrefix(p.Key, "${") && strings.HasSuffix(p.Key, "}") {
			envVar := p.Key[2 : len(p.Key)-1]
			p.Key = os.Getenv(envVar)
			pm.config.Providers[id] = p
		}
	}
}

// GetAvailableProviders returns providers available to callers
func (pm *ProvidersManager) GetAvailableProviders() []AvailableProvider {
	result := make([]AvailableProvider, 0)

	providerNames := map[string]string{
		"openrouter": "OpenRouter",
		"openai":     "OpenAI",
		"deepseek":   "DeepSeek",
	}

	for id, p := range pm.config.Providers {
		if !p.Enabled {
			continue
		}

		hasKey := p.Key != ""

		models := make([]AvailableModel, 0, len(p.Models))
		for _, m := range p.Models {
			models = append(models, AvailableModel{
				ID:            m.ID,
				Name:          m.Name,
				ContextWindow: m.ContextWindow,
				InputPrice:    m.InputPrice,
				OutputPrice:   m.OutputPrice,
				IsFree:        m.IsFree,
				SupportsJSON:  m.SupportsJSON,
				Embedding:     m.Embedding,
			})
		}

		name := providerNames[id]
		if name == "" {
			name = id
		}

		result = append(result, AvailableProvider{
			ID:        id,
			Name:      name,
			HasKey:    hasKey,
			Available: hasKey,
			Models:    models,
		})
	}

	return result
}

// GetAPIKey returns the API key configured for a provider
func (pm *ProvidersManager) GetAPIKey(providerID string) string {
	if p, ok := pm.config.Providers[providerID]; ok {
		return p.Key
	}
	return ""
}

// GetBaseURL returns custom base URL for a provider if configured
func (pm *ProvidersManager) GetBaseURL(providerID string) string {
	if p, ok := pm.config.Providers[providerID]; ok {
		return p.BaseURL
	}
	return ""
}

// GetDefaultProvider returns the default provider ID
func (pm *ProvidersManager) GetDefaultProvider() string {
	if pm.config.DefaultProvider != "" {
		return pm.config.DefaultProvider
	}
	return "openrouter"
}

// GetDefaultModel returns the default model ID
func (pm *ProvidersManager) GetDefaultModel() string {
	if pm.config.DefaultModel != "" {
		return pm.config.DefaultModel
	}
	return "openai/gpt-4o-mini"
}

// defaultConfig returns default configuration when no yaml file
func (pm *ProvidersManager) defaultConfig() *ProvidersConfig {
	return &ProvidersConfig{
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Enabled: true,
				Key:     os.Getenv("OPENROUTER_API_KEY"),
				BaseURL: "https://openrouter.ai/api/v1",
				Models: []ModelConfig{
					{ID: "openai/gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, InputPrice: 0.15, OutputPrice: 0.60, SupportsJSON: true},
					{ID: "openai/gpt-4o", Name: "GPT-4o", ContextWindow: 128000, InputPrice: 2.5, OutputPrice: 10.0, SupportsJSON: true},
					{ID: "openai/text-embedding-3-small", Name: "Embedding 3 Small", ContextWindow: 8191, InputPrice: 0.02, Embedding: true},
				},
			},
			"openai": {
				Enabled: true,
				Key:     os.Getenv("OPENAI_API_KEY"),
				BaseURL: "https://api.openai.com/v1",
				Models: []ModelConfig{
					{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, InputPrice: 0.15, OutputPrice: 0.60, SupportsJSON: true},
					{ID: "text-embedding-3-small", Name: "Embedding 3 Small", ContextWindow: 8191, InputPrice: 0.02, Embedding: true},
				},
			},
			"deepseek": {
				Enabled: true,
				Key:     os.Getenv("DEEPSEEK_API_KEY"),
				BaseURL: "https://api.deepseek.com/v1",
				Models: []ModelConfig{
					{ID: "deepseek-chat", Name: "DeepSeek V3", ContextWindow: 128000, InputPrice: 0.27, OutputPrice: 1.10, SupportsJSON: true},
				},
			},
		},
		DefaultProvider: "openrouter",
		DefaultModel:    "openai/gpt-4o-mini",
	}
}

// FindConfigFile looks for providers.yaml in standard locations
func FindConfigFile() string {
	projectPaths := []string{
		"providers.yaml",
		"config/providers.yaml",
	}

	for _, p := range projectPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	path := filepath.Join(paths.GetGlobalDir(), "providers.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}

	if _, err := os.Stat("/etc/quill/providers.yaml"); err == nil {
		return "/etc/quill/providers.yaml"
	}

	return ""
}
