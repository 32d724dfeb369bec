// Package api provides the HTTP REST API server for nportd.
//
// It exposes endpoints for N-PORT holdings retrieval (bulk and
// streamed), stream cancellation, rate-limit introspection, and cache
// management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/fundlens/nportd/internal/config"
	"github.com/fundlens/nportd/internal/edgar"
	"github.com/fundlens/nportd/internal/infra"
	"github.com/fundlens/nportd/internal/nport"
)

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	svc     *nport.Service
	limiter *infra.ClientLimiter
}

// NewServer creates a configured API server with all routes and
// middleware.
func NewServer(cfg *config.Config) *Server {
	client := edgar.NewClient(
		edgar.WithUserAgent(cfg.SEC.UserAgent),
		edgar.WithSubmissionsURL(cfg.SEC.SubmissionsURL),
		edgar.WithArchivesURL(cfg.SEC.ArchivesURL),
	)

	svc := nport.NewService(client, nport.Options{
		MetadataCacheSize: cfg.Cache.MetadataSize,
		DocumentCacheSize: cfg.Cache.DocumentSize,
		HoldingsCacheSize: cfg.Cache.HoldingsSize,
		FallbackURLs:      cfg.SEC.FallbackURLs,
		StreamDelay:       time.Duration(cfg.Stream.DelayMS) * time.Millisecond,
	})

	srv := &Server{
		cfg:     cfg,
		svc:     svc,
		limiter: infra.NewClientLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	// Stop in-flight streams before draining connections.
	s.svc.Tasks().CancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Task-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(s.rateLimitMiddleware)

	r.Get("/", s.handleHealth)
	r.Get("/holdings/{cik}", s.handleHoldings)
	r.Get("/holdings/{cik}/stream", s.handleStreamHoldings)
	r.Post("/stream/{task_id}/cancel", s.handleCancelStream)
	r.Get("/rate-limit/stats", s.handleRateLimitStats)
	r.Delete("/cache/clear", s.handleCacheClear)
	r.Get("/cache/info", s.handleCacheInfo)

	return r
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"service": "SEC N-PORT Viewer",
	})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	cik, ok := nport.NormalizeCIK(chi.URLParam(r, "cik"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid CIK format.")
		return
	}

	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter.")
		return
	}

	result, err := s.svc.Aggregate(r.Context(), cik, limit)
	if err != nil {
		writeError(w, nport.StatusForError(err), errorDetail(err, cik))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStreamHoldings(w http.ResponseWriter, r *http.Request) {
	cik, ok := nport.NormalizeCIK(chi.URLParam(r, "cik"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid CIK format.")
		return
	}

	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter.")
		return
	}

	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		taskID = uuid.NewString()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Task-ID", taskID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.svc.Stream(r.Context(), cik, limit, taskID) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("marshal stream event: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

func (s *Server) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	status := "not_found"
	if s.svc.Tasks().Cancel(taskID) {
		status = "cancelled"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"task_id": taskID,
	})
}

func (s *Server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIP(r)
	writeJSON(w, http.StatusOK, struct {
		infra.ClientStats
		ClientIP string `json:"client_ip"`
	}{
		ClientStats: s.limiter.Stats(clientIP),
		ClientIP:    clientIP,
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.svc.FlushCaches()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "cache cleared",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CacheInfo())
}

// ============================================================
// Helpers
// ============================================================

// parseLimit reads the optional limit query parameter. Zero means no
// limit.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// errorDetail renders a pipeline error as the response detail message.
func errorDetail(err error, cik string) string {
	switch {
	case errors.Is(err, edgar.ErrCIKNotFound):
		return fmt.Sprintf("CIK %s not found in SEC database.", cik)
	case errors.Is(err, edgar.ErrUpstreamUnavailable):
		return "SEC API unavailable."
	case errors.Is(err, edgar.ErrTimeout):
		return "Request timeout."
	case errors.Is(err, edgar.ErrBlocked):
		return "SEC blocked request. Wait and retry."
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
