// Package mcp exposes the pipeline as Model Context Protocol tools over
// stdio, so MCP-capable assistants can run grounded generations and search
// the knowledge store directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/ingest"
	"github.com/igoryan-dao/quill/internal/retrieval"
)

// getArgs extracts arguments from request as map[string]any
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// Config holds the namespace tool calls default to.
type Config struct {
	KnowledgeNamespace string
}

// Server wraps an MCP stdio server around the engine and retrieval stack.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	retriever *retrieval.Retriever
	ingestor  *ingest.Ingestor
	cfg       Config
}

// NewServer creates the MCP server and registers the tool set.
func NewServer(eng *engine.Engine, retriever *retrieval.Retriever, ingestor *ingest.Ingestor, cfg Config) *Server {
	if cfg.KnowledgeNamespace == "" {
		cfg.KnowledgeNamespace = "KnowledgeStore"
	}
	s := &Server{
		engine:    eng,
		retriever: retriever,
		ingestor:  ingestor,
		cfg:       cfg,
	}

	mcpServer := server.NewMCPServer(
		"quill",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.mcpServer = mcpServer
	return s
}

// registerTools adds all MCP tools
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	generateTool := mcp.NewTool("generate",
		mcp.WithDescription("Run the full multi-agent pipeline for a goal and return the grounded output"),
		mcp.WithString("goal",
			mcp.Required(),
			mcp.Description("What to research, summarize, write or verify"),
		),
		mcp.WithString("doc_id",
			mcp.Description("Optional document id to restrict retrieval to"),
		),
	)
	mcpServer.AddTool(generateTool, s.handleGenerate)

	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Similarity-search the knowledge store and return evidence chunks with sources"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text search query"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of chunks to return (default 6)"),
		),
		mcp.WithString("doc_id",
			mcp.Description("Optional document id to restrict hits to"),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	ingestTool := mcp.NewTool("ingest",
		mcp.WithDescription("Ingest a local file or a URL into the knowledge store"),
		mcp.WithString("path",
			mcp.Description("Path to a local file (pdf, md, txt, html)"),
		),
		mcp.WithString("url",
			mcp.Description("Page URL to fetch and ingest"),
		),
	)
	mcpServer.AddTool(ingestTool, s.handleIngest)
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	goal, _ := args["goal"].(string)
	if goal == "" {
		return mcp.NewToolResultError("goal parameter is required"), nil
	}
	docID, _ := args["doc_id"].(string)

	result := s.engine.Run(ctx, engine.RunRequest{
		Goal:               goal,
		NamespaceKnowledge: s.cfg.KnowledgeNamespace,
		DocID:              docID,
	})
	if result.Blocked {
		return mcp.NewToolResultError(result.Output), nil
	}
	return mcp.NewToolResultText(result.Output), nil
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	topK := 6
	if n, ok := args["top_k"].(float64); ok && n > 0 {
		topK = int(n)
	}
	docID, _ := args["doc_id"].(string)

	evidence, err := s.retriever.Retrieve(ctx, query, retrieval.Options{
		Namespace: s.cfg.KnowledgeNamespace,
		TopK:      topK,
		DocID:     docID,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(evidence) == 0 {
		return mcp.NewToolResultText("No matching chunks found."), nil
	}

	payload, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleIngest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	path, _ := args["path"].(string)
	pageURL, _ := args["url"].(string)
	if path == "" && pageURL == "" {
		return mcp.NewToolResultError("either path or url is required"), nil
	}

	var (
		result *ingest.Result
		err    error
	)
	if path != "" {
		result, err = s.ingestor.IngestFile(ctx, path, nil)
	} else {
		result, err = s.ingestor.IngestURL(ctx, pageURL, nil)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Ingested %s: doc_id=%s chunks=%d pages=%d type=%s",
		result.Filename, result.DocID, result.ChunksUpserted, result.Pages, result.DocType,
	)), nil
}

// Run serves MCP over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	log.Println("[MCP] Starting server in stdio mode...")
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(s.mcpServer)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
