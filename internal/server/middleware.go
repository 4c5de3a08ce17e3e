package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/igoryan-dao/quill/internal/ratelimit"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// openPaths never require a session: health probes, the banner, metrics
// scraping and the login endpoint itself.
var openPaths = map[string]bool{
	"/":           true,
	"/health":     true,
	"/metrics":    true,
	"/auth/login": true,
	"/auth/me":    true,
}

// heavyPaths are the endpoints that reach the LLM or the vector store and
// therefore carry the per-key rate limit.
var heavyPaths = map[string]bool{
	"/generate":    true,
	"/ws/generate": true,
	"/chat":        true,
	"/upload":      true,
}

// chain applies the middleware stack outermost first: recover, correlation
// id, logging, metrics, CORS, then auth and rate limiting.
func (h *Handler) chain(next http.Handler) http.Handler {
	wrapped := h.authMiddleware(h.rateLimitMiddleware(next))
	wrapped = h.corsMiddleware(wrapped)
	wrapped = h.metricsMiddleware(wrapped)
	wrapped = h.loggingMiddleware(wrapped)
	wrapped = h.correlationMiddleware(wrapped)
	return h.recoverMiddleware(wrapped)
}

// recoverMiddleware is the outermost panic boundary of the process: nothing
// above the engine recovers, so anything escaping a handler lands here.
func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[Server] Panic on %s %s correlation_id=%s: %v",
					r.Method, r.URL.Path, CorrelationID(r.Context()), rec)
				h.Metrics.ObserveHTTPException(r.Method, r.URL.Path, "panic")
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error": "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)
		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationID returns the request's correlation id, or "" outside a
// request context.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if h.Profile.Debug || sw.status >= 400 {
			log.Printf("[Server] %s %s -> %d (%.1fms) correlation_id=%s",
				r.Method, r.URL.Path, sw.status,
				float64(time.Since(start).Microseconds())/1000,
				CorrelationID(r.Context()))
		}
	})
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.Metrics.ObserveHTTPStart(r.Method, r.URL.Path)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.Metrics.ObserveHTTPRequest(r.Method, r.URL.Path,
			strconv.Itoa(sw.status), time.Since(start))
	})
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Correlation-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	for _, allowed := range h.Profile.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings := h.Settings.Get()
		if !h.authConfigured(settings) || openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !h.sessionValid(r, settings) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || !heavyPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := ratelimit.Key(r.Header.Get("X-API-Key"))
		if !h.Limiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter records the status code for logging and metrics. It passes
// Hijack through untouched so the WS upgrade keeps working behind the chain.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
