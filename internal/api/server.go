package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-notes-watcher/internal/metrics"
	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// Response bodies for the trigger endpoint.
const (
	msgNoChanges     = "No changes detected."
	msgProcessed     = "Successfully processed updates."
	msgFetchFailed   = "Error fetching URL"
	msgAPIKeyMissing = "API key missing"
	msgModelFailed   = "Error calling Gemini API"
	msgPersistFailed = "Error saving state"
	msgInternal      = "Internal server error"
)

// Checker runs one change-detection pass.
type Checker interface {
	Check(ctx context.Context) (watcher.Result, error)
}

// Options tune the server. Zero values disable auth. The trigger carries no
// handler timeout; each check is bounded by the watcher itself.
type Options struct {
	AuthEnabled bool
	APIKey      string
}

// Server wires HTTP handlers to the watcher.
type Server struct {
	router  chi.Router
	checker Checker
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(checker Checker, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		checker: checker,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/", s.trigger)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.checker == nil {
		writeJSON(s.logger, w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	res, err := s.checker.Check(r.Context())
	status, body := statusFor(res, err)
	if err != nil {
		s.logger.Error("change check failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("run_id", res.RunID),
			zap.Error(err),
		)
	} else {
		s.logger.Info("change check finished",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("run_id", res.RunID),
			zap.String("outcome", string(res.Outcome)),
			zap.Bool("shared", res.Shared),
		)
	}
	writeText(s.logger, w, status, body)
}

// statusFor maps a check result onto the trigger's HTTP status and body.
func statusFor(res watcher.Result, err error) (int, string) {
	switch {
	case err == nil && res.Outcome == watcher.OutcomeUnchanged:
		return http.StatusOK, msgNoChanges
	case err == nil:
		return http.StatusOK, msgProcessed
	case errors.Is(err, watcher.ErrFetch):
		return http.StatusInternalServerError, msgFetchFailed
	case errors.Is(err, watcher.ErrModelNotConfigured):
		return http.StatusInternalServerError, msgAPIKeyMissing
	case errors.Is(err, watcher.ErrSummarize):
		return http.StatusInternalServerError, msgModelFailed
	case errors.Is(err, watcher.ErrPersist):
		return http.StatusInternalServerError, msgPersistFailed
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

type requestIDKey struct{}

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

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.Stack("stack"))
					writeText(logger, w, http.StatusInternalServerError, msgInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// apiKeyMiddleware accepts the key as a bearer token or in X-API-Key.
func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if auth := r.Header.Get("Authorization"); key == "" && strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeText(logger *zap.Logger, w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Warn("write response failed", zap.Error(err))
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("write JSON failed", zap.Error(err))
	}
}
