package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/tab-harvester/internal/config"
	"github.com/JakeFAU/tab-harvester/internal/harvest"
	idgen "github.com/JakeFAU/tab-harvester/internal/id/uuid"
	"github.com/JakeFAU/tab-harvester/internal/metrics"
)

// Summarizer runs the archiving pipeline for one request.
type Summarizer interface {
	Summarize(ctx context.Context, req harvest.Request) (harvest.ArchivedTab, error)
}

// StatsReader reads the aggregate counters.
type StatsReader interface {
	ReadMetrics(ctx context.Context) (harvest.Metrics, error)
}

// Server wires HTTP handlers to the archiving service.
type Server struct {
	router     chi.Router
	summarizer Summarizer
	stats      StatsReader
	idGen      harvest.IDGenerator
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	summarizer Summarizer,
	stats StatsReader,
	idGen harvest.IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 10 << 20
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{
		summarizer: summarizer,
		stats:      stats,
		idGen:      idGen,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))
		r.Post("/api/summarize", s.summarize)
		r.Get("/api/stats", s.getStats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type requestIDKey struct{}

// RequestID returns the request id stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware keeps a well-formed incoming X-Request-ID and mints a
// new one otherwise.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !idgen.IsValid(reqID) {
			var err error
			if reqID, err = s.idGen.NewID(); err != nil {
				s.logger.Warn("request id generation failed", zap.Error(err))
				reqID = ""
			}
		}
		if reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("request_id", RequestID(r.Context())),
					zap.Stack("stack"),
				)
				writeDetail(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	body := fmt.Sprintf(`{"detail":"request timed out after %s"}`, d)
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, body)
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

// writeDetail writes the {"detail": "..."} error body the extension reads.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": harvest.Truncate(detail, harvest.MaxDetailChars)})
}
