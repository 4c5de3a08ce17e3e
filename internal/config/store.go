package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/igoryan-dao/quill/internal/paths"
)

// ModelSettings selects which model serves each role.
type ModelSettings struct {
	Generation string `json:"generation"`
	Planning   string `json:"planning"`
	Embedding  string `json:"embedding"`
	Moderation string `json:"moderation"`
}

// PineconeSettings configures the remote vector store. When Host is empty the
// local store is used instead.
type PineconeSettings struct {
	Host               string `json:"host"`
	APIKey             string `json:"api_key"`
	IndexName          string `json:"index_name"`
	NamespaceContext   string `json:"namespace_context"`
	NamespaceKnowledge string `json:"namespace_knowledge"`
}

// EngineSettings bounds a single run.
type EngineSettings struct {
	MaxSteps         int `json:"max_steps"`
	MaxInputChars    int `json:"max_input_chars"`
	MaxContextChars  int `json:"max_context_chars"`
	MaxOutputChars   int `json:"max_output_chars"`
	MaxTokensPerCall int `json:"max_tokens_per_call"`
	RequestTimeoutS  int `json:"request_timeout_s"`
}

// ChunkSettings are the default chunker parameters; per-document-type
// profiles may override them.
type ChunkSettings struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// RetrievalSettings tune search behavior.
type RetrievalSettings struct {
	DocTopK         int     `json:"doc_top_k"`
	RerankTopN      int     `json:"rerank_top_n"`
	EnableLLMRerank bool    `json:"enable_llm_rerank"`
	RerankerModel   string  `json:"reranker_model"`
	EnableBM25      bool    `json:"enable_bm25"`
	BM25K1          float64 `json:"bm25_k1"`
	BM25B           float64 `json:"bm25_b"`
	LexicalWeight   float64 `json:"lexical_weight"`
	CorpusDir       string  `json:"corpus_dir"`
	UpsertBatchSize int     `json:"upsert_batch_size"`
}

// ModerationSettings control the safety gates around engine runs. Output
// moderation always runs; only the input gate is switchable.
type ModerationSettings struct {
	EnableInput bool   `json:"enable_input"`
	PolicyPath  string `json:"policy_path"`
}

// AuthSettings configure the cookie session layer.
type AuthSettings struct {
	Enable        bool   `json:"enable"`
	CookieName    string `json:"cookie_name"`
	CookieSecure  bool   `json:"cookie_secure"`
	SessionTTLS   int    `json:"session_ttl_s"`
	AdminUser     string `json:"admin_user"`
	AdminPassHash string `json:"admin_pass_hash"`
}

// ServerSettings configure the HTTP listener.
type ServerSettings struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	RateLimitPerMin int    `json:"rate_limit_per_min"`
	MaxUploadMB     int    `json:"max_upload_mb"`
	EnableMetrics   bool   `json:"enable_metrics"`
	MetricsPath     string `json:"metrics_path"`
	EnableTracing   bool   `json:"enable_tracing"`
	OtelEndpoint    string `json:"otel_endpoint"`
	OtelServiceName string `json:"otel_service_name"`
}

// BlueprintSettings control context-blueprint seeding at startup.
type BlueprintSettings struct {
	SeedOnStart bool   `json:"seed_on_start"`
	Path        string `json:"path"`
}

// TransportSettings hold tokens for the optional bot transports.
type TransportSettings struct {
	TelegramToken  string  `json:"telegram_token"`
	AllowedUserIDs []int64 `json:"allowed_user_ids"`
	DiscordToken   string  `json:"discord_token"`
}

type Settings struct {
	Environment string             `json:"environment"`
	Models      ModelSettings      `json:"models"`
	Pinecone    PineconeSettings   `json:"pinecone"`
	Engine      EngineSettings     `json:"engine"`
	Chunking    ChunkSettings      `json:"chunking"`
	Retrieval   RetrievalSettings  `json:"retrieval"`
	Moderation  ModerationSettings `json:"moderation"`
	Auth        AuthSettings       `json:"auth"`
	Server      ServerSettings     `json:"server"`
	Blueprint   BlueprintSettings  `json:"blueprint"`
	Transports  TransportSettings  `json:"transports"`
}

type Store struct {
	mu       sync.RWMutex
	path     string
	settings *Settings
}

func NewStore() (*Store, error) {
	configDir := paths.GetGlobalDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	store := &Store{
		path:     filepath.Join(configDir, "settings.json"),
		settings: DefaultSettings(),
	}

	if err := store.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		// If file doesn't exist, save defaults
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default settings: %w", err)
		}
	}

	return store, nil
}

// DefaultSettings returns the baseline configuration used when no
// settings.json exists yet.
func DefaultSettings() *Settings {
	env := os.Getenv("QUILL_ENV")
	if env == "" {
		env = "dev"
	}
	return &Settings{
		Environment: env,
		Models: ModelSettings{
			Generation: "openai/gpt-4o-mini",
			Planning:   "openai/gpt-4o-mini",
			Embedding:  "openai/text-embedding-3-small",
			Moderation: "openai/gpt-4o-mini",
		},
		Pinecone: PineconeSettings{
			Host:               os.Getenv("PINECONE_HOST"),
			APIKey:             os.Getenv("PINECONE_API_KEY"),
			IndexName:          "quill-knowledge",
			NamespaceContext:   "ContextLibrary",
			NamespaceKnowledge: "KnowledgeStore",
		},
		Engine: EngineSettings{
			MaxSteps:         6,
			MaxInputChars:    12000,
			MaxContextChars:  40000,
			MaxOutputChars:   20000,
			MaxTokensPerCall: 1500,
			RequestTimeoutS:  30,
		},
		Chunking: ChunkSettings{
			ChunkSize:    1800,
			ChunkOverlap: 200,
		},
		Retrieval: RetrievalSettings{
			DocTopK:         8,
			RerankTopN:      8,
			EnableLLMRerank: false,
			EnableBM25:      false,
			BM25K1:          1.2,
			BM25B:           0.75,
			LexicalWeight:   0.2,
			CorpusDir:       paths.GetCorpusDir(),
			UpsertBatchSize: 100,
		},
		Moderation: ModerationSettings{
			EnableInput: ProfileFor(env).EnableInputModeration,
		},
		Auth: AuthSettings{
			Enable:        true,
			CookieName:    "quill_session",
			SessionTTLS:   86400,
			AdminUser:     os.Getenv("QUILL_ADMIN_USER"),
			AdminPassHash: os.Getenv("QUILL_ADMIN_PASS_HASH"),
		},
		Server: ServerSettings{
			Host:            "0.0.0.0",
			Port:            8000,
			RateLimitPerMin: 60,
			MaxUploadMB:     25,
			EnableMetrics:   true,
			MetricsPath:     "/metrics",
			EnableTracing:   false,
			OtelServiceName: "quill",
		},
		Blueprint: BlueprintSettings{
			SeedOnStart: false,
			Path:        filepath.Join(paths.GetBlueprintDir(), "blueprints.json"),
		},
		Transports: TransportSettings{
			TelegramToken: os.Getenv("QUILL_TELEGRAM_TOKEN"),
			DiscordToken:  os.Getenv("QUILL_DISCORD_TOKEN"),
		},
	}
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse settings.json: %w", err)
	}

	s.settings = &settings
	return nil
}

func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(s.path, data, 0644)
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.settings
}

func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(s.settings)
	s.mu.Unlock()
	return s.Save()
}
