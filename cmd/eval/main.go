package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/igoryan-dao/quill/internal/agents"
	"github.com/igoryan-dao/quill/internal/config"
	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/eval"
	"github.com/igoryan-dao/quill/internal/ingest"
	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/metrics"
	"github.com/igoryan-dao/quill/internal/models"
	"github.com/igoryan-dao/quill/internal/moderation"
	"github.com/igoryan-dao/quill/internal/plan"
	"github.com/igoryan-dao/quill/internal/retrieval"
)

func main() {
	casesPath := flag.String("cases", "evals/cases", "Path to test cases directory")
	flag.Parse()

	files, err := os.ReadDir(*casesPath)
	if err != nil {
		log.Fatalf("Failed to read cases directory: %v", err)
	}

	var testCases []eval.TestCase
	for _, f := range files {
		if filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(*casesPath, f.Name()))
		if err != nil {
			log.Printf("Warning: Failed to read %s: %v", f.Name(), err)
			continue
		}
		var tc eval.TestCase
		if err := json.Unmarshal(data, &tc); err != nil {
			log.Printf("Warning: Failed to parse %s: %v", f.Name(), err)
			continue
		}
		testCases = append(testCases, tc)
	}

	if len(testCases) == 0 {
		fmt.Println("No test cases found.")
		return
	}

	eng, ing, namespace, err := buildStack()
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	fmt.Printf("Starting evaluation suite (%d cases)\n", len(testCases))
	fmt.Println("------------------------------------------------------------")

	runner := eval.NewRunner(eng, ing, namespace)
	summary := eval.Summary{Total: len(testCases)}

	suiteStart := time.Now()
	for _, tc := range testCases {
		fmt.Printf("Running [%s] %s... ", tc.ID, tc.Description)

		res, err := runner.Run(context.Background(), &tc)
		if err != nil {
			fmt.Printf("CRITICAL ERROR: %v\n", err)
			summary.Failed++
			continue
		}

		if res.Success {
			fmt.Printf("PASSED (%.1fs)\n", res.Duration.Seconds())
			summary.Passed++
		} else {
			fmt.Println("FAILED")
			summary.Failed++
			for _, e := range res.Errors {
				fmt.Printf("   - %s\n", e)
			}
		}
		summary.Results = append(summary.Results, *res)
	}
	summary.Duration = time.Since(suiteStart)

	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Evaluation complete in %v\n", summary.Duration.Round(time.Second))
	fmt.Printf("Summary: %d total, %d passed, %d failed\n", summary.Total, summary.Passed, summary.Failed)

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// buildStack wires a pipeline from settings, same shape as the main daemon
// but with a no-op metrics sink.
func buildStack() (*engine.Engine, *ingest.Ingestor, string, error) {
	settingsStore, err := config.NewStore()
	if err != nil {
		return nil, nil, "", err
	}
	settings := settingsStore.Get()
	profile := config.ProfileFor(settings.Environment)

	providers, err := config.NewProvidersManager(config.FindConfigFile())
	if err != nil {
		log.Printf("Warning: providers config unavailable: %v", err)
	}

	genProvider, genModel := models.SplitID(settings.Models.Generation)
	_, embedModel := models.SplitID(settings.Models.Embedding)
	_, planModel := models.SplitID(settings.Models.Planning)
	_, modModel := models.SplitID(settings.Models.Moderation)

	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := ""
	if providers != nil {
		if k := providers.GetAPIKey(genProvider); k != "" {
			apiKey = k
		}
		baseURL = providers.GetBaseURL(genProvider)
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Provider:   genProvider,
		APIKey:     apiKey,
		BaseURL:    baseURL,
		EmbedModel: embedModel,
	})
	if err != nil {
		return nil, nil, "", err
	}

	var store retrieval.VectorStore
	if settings.Pinecone.Host != "" {
		store = retrieval.NewPineconeStore(settings.Pinecone.Host, settings.Pinecone.APIKey)
	} else {
		local, err := retrieval.NewLocalStore(filepath.Join(os.TempDir(), "quill-eval-index.json"))
		if err != nil {
			return nil, nil, "", err
		}
		store = local
	}

	rec := metrics.NoopRecorder{}

	retriever := retrieval.NewRetriever(store, client, rec, retrieval.Config{
		EnableBM25:      settings.Retrieval.EnableBM25,
		CorpusDir:       settings.Retrieval.CorpusDir,
		MaxContextChars: settings.Engine.MaxContextChars,
		LexicalWeight:   settings.Retrieval.LexicalWeight,
	})

	reranker := retrieval.NewLLMReranker(client, retrieval.RerankerConfig{
		Enabled:       settings.Retrieval.EnableLLMRerank,
		TopN:          settings.Retrieval.RerankTopN,
		FallbackModel: genModel,
	})

	set := agents.NewSet(client, store, retriever, reranker, agents.Config{
		GenerationModel:    genModel,
		MaxTokensPerCall:   settings.Engine.MaxTokensPerCall,
		MaxInputChars:      settings.Engine.MaxInputChars,
		MaxContextChars:    settings.Engine.MaxContextChars,
		ContextNamespace:   settings.Pinecone.NamespaceContext,
		KnowledgeNamespace: settings.Pinecone.NamespaceKnowledge,
	})

	planner := plan.NewPlanner(client, plan.Config{
		Model:            planModel,
		MaxSteps:         settings.Engine.MaxSteps,
		MaxInputChars:    settings.Engine.MaxInputChars,
		MaxTokensPerCall: settings.Engine.MaxTokensPerCall,
		RequestTimeout:   profile.RequestTimeout,
	})

	policy, err := moderation.LoadPolicy(settings.Moderation.PolicyPath)
	if err != nil {
		return nil, nil, "", err
	}
	moderator := moderation.NewModerator(client, modModel, policy, rec)

	eng := engine.New(planner, set, moderator, engine.Config{
		MaxInputChars:         settings.Engine.MaxInputChars,
		EnableInputModeration: settings.Moderation.EnableInput,
	})

	ing := ingest.New(client, store, ingest.NewBrowser(""), ingest.Config{
		NamespaceKnowledge: settings.Pinecone.NamespaceKnowledge,
		ChunkChars:         settings.Chunking.ChunkSize,
		OverlapChars:       settings.Chunking.ChunkOverlap,
		EnableBM25:         settings.Retrieval.EnableBM25,
		CorpusDir:          settings.Retrieval.CorpusDir,
	}, rec)

	return eng, ing, settings.Pinecone.NamespaceKnowledge, nil
}
