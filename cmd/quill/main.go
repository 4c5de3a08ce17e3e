package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/igoryan-dao/quill/internal/agents"
	"github.com/igoryan-dao/quill/internal/auth"
	"github.com/igoryan-dao/quill/internal/blueprint"
	"github.com/igoryan-dao/quill/internal/breaker"
	"github.com/igoryan-dao/quill/internal/cache"
	"github.com/igoryan-dao/quill/internal/config"
	"github.com/igoryan-dao/quill/internal/discord"
	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/ingest"
	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/mcp"
	"github.com/igoryan-dao/quill/internal/metrics"
	"github.com/igoryan-dao/quill/internal/models"
	"github.com/igoryan-dao/quill/internal/moderation"
	"github.com/igoryan-dao/quill/internal/paths"
	"github.com/igoryan-dao/quill/internal/plan"
	"github.com/igoryan-dao/quill/internal/ratelimit"
	"github.com/igoryan-dao/quill/internal/retrieval"
	"github.com/igoryan-dao/quill/internal/server"
	"github.com/igoryan-dao/quill/internal/sessions"
	"github.com/igoryan-dao/quill/internal/telegram"
	"github.com/igoryan-dao/quill/internal/trace"
	"github.com/igoryan-dao/quill/internal/tui"
)

// app bundles everything a run mode needs.
type app struct {
	settings  *config.Store
	providers *config.ProvidersManager
	profile   config.Profile
	client    llm.Client
	rawClient llm.Client
	store     retrieval.VectorStore
	engine    *engine.Engine
	agents    *agents.Set
	ingestor  *ingest.Ingestor
	traces    *trace.Store
	threads   *sessions.Manager
	seeder    *blueprint.Seeder
	retriever *retrieval.Retriever
	metrics   metrics.Recorder
	prom      *metrics.PrometheusRecorder
}

func main() {
	log.SetPrefix("[quill] ")
	log.SetOutput(os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	args := os.Args[1:]
	mode := ""
	port := 0
	var ingestPaths []string
	watchDir := ""
	docID := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--server":
			mode = "server"
		case "--mcp":
			mode = "mcp"
		case "--tui":
			mode = "tui"
		case "--ingest":
			mode = "ingest"
			for i+1 < len(args) {
				ingestPaths = append(ingestPaths, args[i+1])
				i++
			}
		case "--watch":
			mode = "watch"
			if i+1 < len(args) {
				watchDir = args[i+1]
				i++
			}
		case "--port":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &port)
				i++
			}
		case "--doc":
			if i+1 < len(args) {
				docID = args[i+1]
				i++
			}
		default:
			fmt.Fprintf(os.Stderr, "Unknown flag: %s\n", args[i])
			usage()
			os.Exit(2)
		}
	}

	if mode == "" {
		if isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd()) {
			mode = "tui"
		} else {
			mode = "server"
		}
	}

	a, err := buildApp(ctx, mode)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	switch mode {
	case "server":
		err = runServer(ctx, a, port)
	case "mcp":
		err = runMCP(ctx, a)
	case "ingest":
		err = runIngest(ctx, a, ingestPaths)
	case "watch":
		err = runWatch(ctx, a, watchDir)
	case "tui":
		err = runTUI(ctx, a, docID)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: quill [mode] [flags]
  --server          run the HTTP API (default without a TTY)
  --port N          listen port (overrides settings)
  --mcp             run the MCP server on stdio
  --ingest FILES..  ingest documents and exit
  --watch DIR       watch a directory and ingest new files
  --tui             interactive Q&A (default on a TTY)
  --doc ID          restrict TUI runs to one document`)
}

// buildApp wires the full dependency graph from settings. Modes that never
// serve HTTP still get the same engine; only the metrics sink differs.
func buildApp(ctx context.Context, mode string) (*app, error) {
	settingsStore, err := config.NewStore()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	settings := settingsStore.Get()
	profile := config.ProfileFor(settings.Environment)

	providers, err := config.NewProvidersManager(config.FindConfigFile())
	if err != nil {
		log.Printf("Warning: providers config unavailable: %v", err)
	}

	var rec metrics.Recorder = metrics.NoopRecorder{}
	var promRec *metrics.PrometheusRecorder
	if mode == "server" && settings.Server.EnableMetrics {
		promRec, err = metrics.NewPrometheusRecorder(prometheus.NewRegistry())
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		rec = promRec
	}

	genProvider, _ := models.SplitID(settings.Models.Generation)
	_, embedModel := models.SplitID(settings.Models.Embedding)

	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := ""
	if providers != nil {
		if k := providers.GetAPIKey(genProvider); k != "" {
			apiKey = k
		}
		baseURL = providers.GetBaseURL(genProvider)
	}
	if apiKey == "" {
		log.Printf("Warning: no API key for provider %q; LLM calls will fail and agents will degrade to fallbacks", genProvider)
	}

	raw, err := llm.NewClient(llm.ClientConfig{
		Provider:   genProvider,
		APIKey:     apiKey,
		BaseURL:    baseURL,
		EmbedModel: embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	resilient := llm.NewResilientClient(raw, llm.ResilientConfig{
		EmbedModel: embedModel,
		Breaker:    breaker.New("llm", profile.BreakerThreshold, 30*time.Second),
		Responses:  cache.NewResponseCache(),
		Embeddings: cache.NewEmbeddingCache(),
		Metrics:    rec,
	})

	var store retrieval.VectorStore
	if settings.Pinecone.Host != "" {
		store = retrieval.NewPineconeStore(settings.Pinecone.Host, settings.Pinecone.APIKey)
		log.Printf("Vector store: pinecone (%s)", settings.Pinecone.Host)
	} else {
		local, err := retrieval.NewLocalStore(filepath.Join(paths.GetIndexDir(), "index.json"))
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		store = local
		log.Printf("Vector store: local (%s)", paths.GetIndexDir())
	}

	retriever := retrieval.NewRetriever(store, resilient, rec, retrieval.Config{
		EnableBM25:      settings.Retrieval.EnableBM25,
		CorpusDir:       settings.Retrieval.CorpusDir,
		MaxContextChars: settings.Engine.MaxContextChars,
		LexicalWeight:   settings.Retrieval.LexicalWeight,
	})

	_, rerankModel := models.SplitID(settings.Retrieval.RerankerModel)
	_, genModel := models.SplitID(settings.Models.Generation)
	_, planModel := models.SplitID(settings.Models.Planning)
	reranker := retrieval.NewLLMReranker(resilient, retrieval.RerankerConfig{
		Enabled:       settings.Retrieval.EnableLLMRerank,
		TopN:          settings.Retrieval.RerankTopN,
		Model:         rerankModel,
		FallbackModel: genModel,
	})

	set := agents.NewSet(resilient, store, retriever, reranker, agents.Config{
		GenerationModel:    genModel,
		MaxTokensPerCall:   settings.Engine.MaxTokensPerCall,
		MaxInputChars:      settings.Engine.MaxInputChars,
		MaxContextChars:    settings.Engine.MaxContextChars,
		ContextNamespace:   settings.Pinecone.NamespaceContext,
		KnowledgeNamespace: settings.Pinecone.NamespaceKnowledge,
		RerankTopN:         settings.Retrieval.RerankTopN,
		EnableBM25Lexical:  settings.Retrieval.EnableBM25,
	})

	planner := plan.NewPlanner(resilient, plan.Config{
		Model:            planModel,
		MaxSteps:         settings.Engine.MaxSteps,
		MaxInputChars:    settings.Engine.MaxInputChars,
		MaxTokensPerCall: settings.Engine.MaxTokensPerCall,
		RequestTimeout:   profile.RequestTimeout,
	})

	policy, err := moderation.LoadPolicy(settings.Moderation.PolicyPath)
	if err != nil {
		log.Printf("Warning: moderation policy unavailable: %v", err)
	}
	// The moderator takes the raw client on purpose: probe refusals must
	// arrive as errors, not cached or breaker-shed responses.
	_, modModel := models.SplitID(settings.Models.Moderation)
	moderator := moderation.NewModerator(raw, modModel, policy, rec)

	eng := engine.New(planner, set, moderator, engine.Config{
		MaxInputChars:         settings.Engine.MaxInputChars,
		EnableInputModeration: settings.Moderation.EnableInput,
	})

	traces, err := trace.NewStore(paths.GetTraceDir())
	if err != nil {
		return nil, fmt.Errorf("trace store: %w", err)
	}
	threads, err := sessions.NewManager(paths.GetSessionDir())
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	ingestor := ingest.New(resilient, store, ingest.NewBrowser(""), ingest.Config{
		NamespaceKnowledge: settings.Pinecone.NamespaceKnowledge,
		ChunkChars:         settings.Chunking.ChunkSize,
		OverlapChars:       settings.Chunking.ChunkOverlap,
		EnableBM25:         settings.Retrieval.EnableBM25,
		BM25K1:             settings.Retrieval.BM25K1,
		BM25B:              settings.Retrieval.BM25B,
		CorpusDir:          settings.Retrieval.CorpusDir,
		UpsertBatchSize:    settings.Retrieval.UpsertBatchSize,
	}, rec)

	seeder := blueprint.NewSeeder(resilient, store)

	retrieval.EnsureNamespaces(ctx, store, []string{
		settings.Pinecone.NamespaceContext,
		settings.Pinecone.NamespaceKnowledge,
	})

	if settings.Blueprint.SeedOnStart {
		n, err := seeder.Seed(ctx, settings.Pinecone.NamespaceContext, settings.Blueprint.Path)
		if err != nil {
			log.Printf("Warning: blueprint seeding failed: %v", err)
		} else {
			log.Printf("Seeded %d context blueprints", n)
		}
	}

	return &app{
		settings:  settingsStore,
		providers: providers,
		profile:   profile,
		client:    resilient,
		rawClient: raw,
		store:     store,
		engine:    eng,
		agents:    set,
		ingestor:  ingestor,
		traces:    traces,
		threads:   threads,
		seeder:    seeder,
		retriever: retriever,
		metrics:   rec,
		prom:      promRec,
	}, nil
}

func runServer(ctx context.Context, a *app, portOverride int) error {
	settings := a.settings.Get()

	limit := settings.Server.RateLimitPerMin
	if limit <= 0 {
		limit = a.profile.RateLimitPerMin
	}

	var metricsHandler http.Handler
	if a.prom != nil {
		metricsHandler = a.prom.Handler()
	}

	h := server.NewHandler(&server.Handler{
		Engine:         a.engine,
		Agents:         a.agents,
		Client:         a.client,
		Store:          a.store,
		Ingestor:       a.ingestor,
		Traces:         a.traces,
		Threads:        a.threads,
		Seeder:         a.seeder,
		Providers:      a.providers,
		Settings:       a.settings,
		Sessions:       auth.NewSessionStore(time.Duration(settings.Auth.SessionTTLS) * time.Second),
		Limiter:        ratelimit.New(limit),
		Metrics:        a.metrics,
		Profile:        a.profile,
		MetricsHandler: metricsHandler,
	})

	startBots(ctx, a)

	port := settings.Server.Port
	if portOverride > 0 {
		port = portOverride
	}
	addr := fmt.Sprintf("%s:%d", settings.Server.Host, port)
	return h.Serve(ctx, addr)
}

// startBots launches the optional chat transports when tokens are present.
func startBots(ctx context.Context, a *app) {
	settings := a.settings.Get()
	namespace := settings.Pinecone.NamespaceKnowledge

	if token := settings.Transports.TelegramToken; token != "" {
		bot, err := telegram.New(token, settings.Transports.AllowedUserIDs, a.engine, namespace)
		if err != nil {
			log.Printf("Warning: Telegram bot unavailable: %v", err)
		} else {
			go bot.Start(ctx)
		}
	}

	if token := settings.Transports.DiscordToken; token != "" {
		bot, err := discord.New(token, a.engine, namespace)
		if err != nil {
			log.Printf("Warning: Discord bot unavailable: %v", err)
		} else if err := bot.Start(); err != nil {
			log.Printf("Warning: Discord bot failed to start: %v", err)
		} else {
			go func() {
				<-ctx.Done()
				bot.Stop()
			}()
		}
	}
}

func runMCP(ctx context.Context, a *app) error {
	settings := a.settings.Get()
	srv := mcp.NewServer(a.engine, a.retriever, a.ingestor, mcp.Config{
		KnowledgeNamespace: settings.Pinecone.NamespaceKnowledge,
	})
	return srv.Run(ctx)
}

func runIngest(ctx context.Context, a *app, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("--ingest requires at least one file path")
	}
	for _, path := range files {
		result, err := a.ingestor.IngestFile(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Printf("%s: doc_id=%s chunks=%d pages=%d type=%s\n",
			result.Filename, result.DocID, result.ChunksUpserted, result.Pages, result.DocType)
	}
	return nil
}

func runWatch(ctx context.Context, a *app, dir string) error {
	if dir == "" {
		return fmt.Errorf("--watch requires a directory")
	}
	watcher, err := ingest.NewWatcher(a.ingestor, dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Printf("Watching %s for documents...", dir)
	return watcher.Run(ctx)
}

func runTUI(ctx context.Context, a *app, docID string) error {
	settings := a.settings.Get()
	return tui.Run(ctx, a.engine, tui.Options{
		DocID:              docID,
		Model:              settings.Models.Generation,
		KnowledgeNamespace: settings.Pinecone.NamespaceKnowledge,
	})
}
