// Package server is the HTTP surface over the engine: generation, document
// upload, chat threads, context management, auth and operational endpoints.
// Transport concerns only — every business rule lives below this package.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/igoryan-dao/quill/internal/agents"
	"github.com/igoryan-dao/quill/internal/auth"
	"github.com/igoryan-dao/quill/internal/blueprint"
	"github.com/igoryan-dao/quill/internal/config"
	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/ingest"
	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/metrics"
	"github.com/igoryan-dao/quill/internal/models"
	"github.com/igoryan-dao/quill/internal/protocol"
	"github.com/igoryan-dao/quill/internal/ratelimit"
	"github.com/igoryan-dao/quill/internal/retrieval"
	"github.com/igoryan-dao/quill/internal/sessions"
	"github.com/igoryan-dao/quill/internal/trace"

	"github.com/google/uuid"
)

// Version is reported by / and /health.
const Version = "1.0.0"

// Handler owns the HTTP routes and the state they share. Everything is
// injected; the handler itself holds no business logic beyond request
// decoding and response shaping.
type Handler struct {
	Engine    *engine.Engine
	Agents    *agents.Set
	Client    llm.Client
	Store     retrieval.VectorStore
	Ingestor  *ingest.Ingestor
	Traces    *trace.Store
	Threads   *sessions.Manager
	Seeder    *blueprint.Seeder
	Providers *config.ProvidersManager
	Settings  *config.Store
	Sessions  *auth.SessionStore
	Limiter   *ratelimit.Limiter
	Metrics   metrics.Recorder
	Profile   config.Profile

	// MetricsHandler serves the /metrics exposition when set.
	MetricsHandler http.Handler

	hub       *Hub
	startedAt time.Time
}

// NewHandler finishes handler setup. Call Routes afterwards to get the mux.
func NewHandler(h *Handler) *Handler {
	if h.Metrics == nil {
		h.Metrics = metrics.NoopRecorder{}
	}
	h.hub = NewHub()
	h.startedAt = time.Now()
	return h
}

// Routes builds the full route table with the middleware chain applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /models", h.handleModels)
	mux.HandleFunc("GET /traces", h.handleTraces)
	mux.HandleFunc("GET /traces/{id}", h.handleTraceByID)

	mux.HandleFunc("POST /generate", h.handleGenerate)
	mux.HandleFunc("GET /ws/generate", h.handleWSGenerate)
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("POST /chat", h.handleChat)

	mux.HandleFunc("POST /context", h.handleContextUpload)
	mux.HandleFunc("POST /context-blueprint", h.handleBlueprintUpload)
	mux.HandleFunc("POST /reset-context", h.handleResetContext)
	mux.HandleFunc("POST /delete-context", h.handleDeleteContext)
	mux.HandleFunc("POST /reset-knowledge", h.handleResetKnowledge)
	mux.HandleFunc("POST /delete-doc", h.handleDeleteDoc)

	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/me", h.handleMe)

	settings := h.Settings.Get()
	if h.MetricsHandler != nil && settings.Server.EnableMetrics {
		path := settings.Server.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, h.MetricsHandler)
	}

	return h.chain(mux)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "quill",
		"version": Version,
		"docs":    "POST /generate with {\"goal\": ...}",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": Version})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings := h.Settings.Get()

	status := map[string]any{
		"service":     "quill",
		"version":     Version,
		"environment": settings.Environment,
		"uptime_s":    time.Since(h.startedAt).Seconds(),
		"models":      settings.Models,
	}

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if stats, err := h.Store.Stats(ctx); err == nil {
			status["index"] = stats
		} else {
			status["index_error"] = err.Error()
		}
	}

	if h.Traces != nil {
		if recent, err := h.Traces.Recent(10); err == nil {
			status["recent_traces"] = recent
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if h.Providers != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"providers": h.Providers.GetAvailableProviders(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": models.Providers()})
}

func (h *Handler) handleTraces(w http.ResponseWriter, r *http.Request) {
	if h.Traces == nil {
		writeJSON(w, http.StatusOK, map[string]any{"traces": []any{}})
		return
	}
	recent, err := h.Traces.Recent(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": recent})
}

func (h *Handler) handleTraceByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.Traces == nil || id == "" {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	t, err := h.Traces.Load(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}
	if max := h.maxGoalChars(); utf8.RuneCountInString(req.Goal) > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("goal exceeds %d characters", max))
		return
	}

	result := h.Engine.Run(r.Context(), engine.RunRequest{
		Goal:               req.Goal,
		NamespaceContext:   req.NamespaceContext,
		NamespaceKnowledge: h.knowledgeNamespace(req.NamespaceKnowledge),
		DocID:              req.DocID,
	})
	h.persistTrace(result)

	writeJSON(w, http.StatusOK, h.generateResponse(result))
}

// maxGoalChars is the request-size bound for goals, mirroring the engine's
// per-field clamp so oversized input is rejected at the door instead of
// silently truncated.
func (h *Handler) maxGoalChars() int {
	if h.Settings != nil {
		if n := h.Settings.Get().Engine.MaxInputChars; n > 0 {
			return n
		}
	}
	return 12000
}

// generateResponse converts an engine result into the wire envelope.
func (h *Handler) generateResponse(result *engine.Result) *protocol.GenerateResponse {
	resp := &protocol.GenerateResponse{
		TraceID: result.TraceID,
		Output:  result.Output,
		Blocked: result.Blocked,
	}
	if result.Moderation != nil {
		data, err := json.Marshal(result.Moderation)
		if err == nil {
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				resp.Moderation = m
			}
		}
	}
	if result.Trace != nil {
		if data, err := json.Marshal(result.Trace); err == nil {
			resp.Trace = data
		}
	}
	return resp
}

func (h *Handler) persistTrace(result *engine.Result) {
	if h.Traces == nil || result.Trace == nil {
		return
	}
	if err := h.Traces.Save(result.Trace); err != nil {
		log.Printf("[Server] Failed to persist trace %s: %v", result.TraceID, err)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	settings := h.Settings.Get()
	maxBytes := int64(settings.Server.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	opts := &ingest.Options{
		Namespace: h.knowledgeNamespace(r.FormValue("namespace")),
		DocID:     r.FormValue("doc_id"),
	}
	result, err := h.Ingestor.IngestBytes(r.Context(), header.Filename, data, opts)
	if err != nil {
		log.Printf("[Server] Upload failed for %s: %v", header.Filename, err)
		writeError(w, http.StatusUnprocessableEntity, "document could not be ingested")
		return
	}

	writeJSON(w, http.StatusOK, &protocol.UploadResponse{
		DocID:            result.DocID,
		Filename:         result.Filename,
		FileSizeBytes:    len(data),
		Pages:            result.Pages,
		Chunks:           result.ChunksUpserted,
		Namespace:        result.Namespace,
		DocType:          result.DocType,
		ChunkChars:       result.ChunkChars,
		OverlapChars:     result.OverlapChars,
		ExtractionMethod: result.ExtractionMethod,
	})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if strings.TrimSpace(req.DocID) == "" {
		writeError(w, http.StatusBadRequest, "doc_id is required")
		return
	}

	query := agents.ResearchQuery{
		TopicQuery: req.Question,
		Namespace:  h.knowledgeNamespace(req.NamespaceKnowledge),
		TopK:       req.TopK,
		DocID:      req.DocID,
		Section:    req.Section,
		PageStart:  req.PageStart,
		PageEnd:    req.PageEnd,
	}
	if query.TopK <= 0 {
		query.TopK = 6
	}

	// Fold prior turns of the thread into the query so follow-up questions
	// resolve pronouns against the conversation, not just the document.
	if req.ThreadID != "" && h.Threads != nil {
		if history := h.Threads.PromptContext(req.ThreadID, 6); history != "" {
			query.TopicQuery = history + "\n\nCurrent question: " + req.Question
		}
	}

	out, err := h.Agents.Researcher.Execute(r.Context(), query)
	if err != nil {
		log.Printf("[Server] Chat research failed doc_id=%s: %v", req.DocID, err)
		writeError(w, http.StatusBadGateway, "retrieval backend unavailable")
		return
	}

	answer, _ := out["answer"].(string)
	evidence := evidenceMaps(out["evidence"])

	resp := &protocol.ChatResponse{
		Answer:    answer,
		DocID:     req.DocID,
		Citations: evidence,
		Evidence:  evidence,
	}

	if h.Threads != nil {
		thread, err := h.Threads.Append(req.ThreadID, req.DocID, req.Question, answer)
		if err != nil {
			log.Printf("[Server] Failed to record chat thread: %v", err)
		} else {
			resp.ThreadID = thread.ID
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// evidenceMaps narrows a researcher evidence payload to JSON-ready maps.
func evidenceMaps(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (h *Handler) handleContextUpload(w http.ResponseWriter, r *http.Request) {
	var req protocol.ContextUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	vectors, err := h.Client.Embed(r.Context(), []string{req.Text})
	if err != nil || len(vectors) == 0 {
		log.Printf("[Server] Context embedding failed: %v", err)
		writeError(w, http.StatusBadGateway, "embedding backend unavailable")
		return
	}

	contextID := "ctx-" + uuid.NewString()
	namespace := h.contextNamespace()
	metadata := map[string]any{
		"text":   req.Text,
		"source": req.Source,
	}
	if req.ContextType != "" {
		metadata["context_type"] = req.ContextType
	}

	err = h.Store.Upsert(r.Context(), namespace, []retrieval.Vector{{
		ID:       contextID,
		Values:   vectors[0],
		Metadata: metadata,
	}})
	if err != nil {
		log.Printf("[Server] Context upsert failed: %v", err)
		writeError(w, http.StatusBadGateway, "vector store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, &protocol.ContextUploadResponse{
		ContextID: contextID,
		Namespace: namespace,
	})
}

func (h *Handler) handleBlueprintUpload(w http.ResponseWriter, r *http.Request) {
	var req protocol.BlueprintUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec := blueprint.Record{
		ID:          req.ID,
		Description: req.Description,
		Blueprint:   req.Blueprint,
	}
	if !rec.Valid() {
		writeError(w, http.StatusBadRequest, "id, description and blueprint are required")
		return
	}

	namespace := h.contextNamespace()
	if err := h.Seeder.UpsertOne(r.Context(), namespace, rec); err != nil {
		log.Printf("[Server] Blueprint upsert failed id=%s: %v", rec.ID, err)
		writeError(w, http.StatusBadGateway, "vector store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, &protocol.BlueprintUploadResponse{
		BlueprintID: rec.ID,
		Namespace:   namespace,
	})
}

func (h *Handler) handleResetContext(w http.ResponseWriter, r *http.Request) {
	h.deleteVectors(w, r, &retrieval.DeleteRequest{
		Namespace: h.contextNamespace(),
		DeleteAll: true,
	}, map[string]any{"reset": true, "namespace": h.contextNamespace()})
}

func (h *Handler) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeleteContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContextID == "" {
		writeError(w, http.StatusBadRequest, "context_id is required")
		return
	}
	h.deleteVectors(w, r, &retrieval.DeleteRequest{
		Namespace: h.contextNamespace(),
		IDs:       []string{req.ContextID},
	}, map[string]any{"deleted": req.ContextID})
}

func (h *Handler) handleResetKnowledge(w http.ResponseWriter, r *http.Request) {
	h.deleteVectors(w, r, &retrieval.DeleteRequest{
		Namespace: h.knowledgeNamespace(""),
		DeleteAll: true,
	}, map[string]any{"reset": true, "namespace": h.knowledgeNamespace("")})
}

func (h *Handler) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeleteDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocID == "" {
		writeError(w, http.StatusBadRequest, "doc_id is required")
		return
	}
	h.deleteVectors(w, r, &retrieval.DeleteRequest{
		Namespace: h.knowledgeNamespace(""),
		Filter:    map[string]any{"doc_id": req.DocID},
	}, map[string]any{"deleted_doc": req.DocID})
}

func (h *Handler) deleteVectors(w http.ResponseWriter, r *http.Request, req *retrieval.DeleteRequest, okBody map[string]any) {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no vector store configured")
		return
	}
	if err := h.Store.Delete(r.Context(), req); err != nil {
		log.Printf("[Server] Vector delete failed namespace=%s: %v", req.Namespace, err)
		writeError(w, http.StatusBadGateway, "vector store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	settings := h.Settings.Get()
	if !h.authConfigured(settings) {
		writeError(w, http.StatusServiceUnavailable, "auth is not configured")
		return
	}

	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username != settings.Auth.AdminUser ||
		!auth.VerifyPassword(req.Password, settings.Auth.AdminPassHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expires, err := h.Sessions.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     settings.Auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   settings.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, &protocol.AuthStatus{Authenticated: true, Username: req.Username})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	settings := h.Settings.Get()
	if cookie, err := r.Cookie(settings.Auth.CookieName); err == nil {
		h.Sessions.Revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     settings.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, &protocol.AuthStatus{Authenticated: false})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	settings := h.Settings.Get()
	if !h.authConfigured(settings) {
		writeJSON(w, http.StatusOK, &protocol.AuthStatus{Authenticated: true, Username: "anonymous"})
		return
	}
	if h.sessionValid(r, settings) {
		writeJSON(w, http.StatusOK, &protocol.AuthStatus{Authenticated: true, Username: settings.Auth.AdminUser})
		return
	}
	writeJSON(w, http.StatusOK, &protocol.AuthStatus{Authenticated: false})
}

func (h *Handler) authConfigured(settings config.Settings) bool {
	return settings.Auth.Enable && settings.Auth.AdminUser != "" && settings.Auth.AdminPassHash != ""
}

func (h *Handler) sessionValid(r *http.Request, settings config.Settings) bool {
	cookie, err := r.Cookie(settings.Auth.CookieName)
	if err != nil {
		return false
	}
	return h.Sessions.Validate(cookie.Value)
}

func (h *Handler) knowledgeNamespace(requested string) string {
	if requested != "" {
		return requested
	}
	return h.Settings.Get().Pinecone.NamespaceKnowledge
}

func (h *Handler) contextNamespace() string {
	return h.Settings.Get().Pinecone.NamespaceContext
}

// Serve runs the HTTP server until ctx is canceled, then drains for up to
// five seconds.
func (h *Handler) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, &protocol.ErrorResponse{Detail: detail})
}
