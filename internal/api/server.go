// Package api exposes the HTTP interface for the fetch service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/fetch"
	"github.com/tripstack/contentfetch/internal/telemetry"
)

// Fetcher is the orchestration surface the API depends on.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// Server wires HTTP handlers to the fetch orchestrator.
type Server struct {
	router  chi.Router
	fetcher Fetcher
	logger  *zap.Logger
	timeout time.Duration
}

// NewServer constructs a Server with middleware and routes. requestTimeout
// bounds a whole API call including every backend fallback.
func NewServer(fetcher Fetcher, requestTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	s := &Server{
		fetcher: fetcher,
		logger:  logger,
		timeout: requestTimeout,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/fetch", s.handleFetch)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type fetchRequest struct {
	URL          string            `json:"url"`
	ContentType  string            `json:"content_type"`
	RequiresJS   bool              `json:"requires_js"`
	Complexity   string            `json:"complexity"`
	ForceRefresh bool              `json:"force_refresh"`
	Headers      map[string]string `json:"headers"`
}

type fetchResponse struct {
	URL        string         `json:"url"`
	Backend    string         `json:"backend"`
	StatusCode int            `json:"status_code"`
	Body       string         `json:"body,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
	FetchedAt  time.Time      `json:"fetched_at"`
	DurationMS int64          `json:"duration_ms"`
	Cached     bool           `json:"cached"`
}

type attemptDetail struct {
	Backend string `json:"backend"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var body fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	req := fetch.Request{
		URL: body.URL,
		Options: fetch.Options{
			ContentType:  body.ContentType,
			RequiresJS:   body.RequiresJS,
			Complexity:   fetch.Complexity(body.Complexity),
			ForceRefresh: body.ForceRefresh,
		},
	}
	if len(body.Headers) > 0 {
		req.Options.Headers = make(http.Header, len(body.Headers))
		for k, v := range body.Headers {
			req.Options.Headers.Set(k, v)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		s.writeFetchError(w, body.URL, err)
		return
	}

	writeJSON(w, http.StatusOK, fetchResponse{
		URL:        result.URL,
		Backend:    string(result.Backend),
		StatusCode: result.StatusCode,
		Body:       string(result.Body),
		Structured: result.Structured,
		FetchedAt:  result.FetchedAt,
		DurationMS: result.Duration.Milliseconds(),
		Cached:     result.Cached,
	})
}

func (s *Server) writeFetchError(w http.ResponseWriter, url string, err error) {
	var exhausted *fetch.ExhaustedError
	switch {
	case fetch.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &exhausted):
		attempts := make([]attemptDetail, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			attempts = append(attempts, attemptDetail{
				Backend: string(a.Backend),
				Kind:    string(a.Kind),
				Reason:  a.Reason,
			})
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    "all backends failed",
			"url":      url,
			"attempts": attempts,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "fetch timed out")
	default:
		s.logger.Error("fetch failed", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		telemetry.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
