// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/metrics"
	"github.com/AI-Template-SDK/senso-analysis/services"
)

// BatchEnqueuer hands a batch to the background workflow and returns the event id.
type BatchEnqueuer interface {
	EnqueueBatch(ctx context.Context, req *services.BatchRequest) (string, error)
}

// Server routes HTTP requests to the batch processor.
type Server struct {
	router    chi.Router
	processor services.BatchProcessor
	schemas   services.SchemaService
	enqueuer  BatchEnqueuer
	mounts    map[string]http.Handler
	logger    *zap.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEnqueuer enables POST /batches/async.
func WithEnqueuer(e BatchEnqueuer) ServerOption {
	return func(s *Server) {
		s.enqueuer = e
	}
}

// WithMount serves h at pattern, e.g. the inngest handler or the metrics endpoint.
func WithMount(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		s.mounts[pattern] = h
	}
}

func NewServer(processor services.BatchProcessor, schemas services.SchemaService, opts ...ServerOption) *Server {
	s := &Server{
		processor: processor,
		schemas:   schemas,
		mounts:    make(map[string]http.Handler),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"service": "senso-analysis", "status": "running"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Diagnostic endpoints
	r.Post("/citations/test", s.handleCitationsTest)
	r.Post("/test/analysis", s.handleTestAnalysis)
	r.Post("/test/response-analysis", s.handleTestResponseAnalysis)

	r.Route("/batches", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))
		r.Post("/", s.handleProcessBatch)
		r.Post("/async", s.handleProcessBatchAsync)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", s.handleGetBatch)
			r.Post("/reprocess", s.handleReprocessBatch)
		})
	})

	r.Get("/schemas/{name}", s.handleGetSchema)

	for pattern, h := range s.mounts {
		r.Handle(pattern, h)
	}
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			s.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Error("failed to encode response", zap.Error(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
