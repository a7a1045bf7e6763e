// Package server provides the HTTP REST API consumed by the batch
// uploader client and the operations UI.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/schema"
	"github.com/mmsops/mms-ingest/internal/session"
)

// SchemaPersister stores registered schema documents durably. Nil is
// allowed; the registry then lives only in memory.
type SchemaPersister interface {
	Save(ctx context.Context, s *schema.Schema) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server

	sessions      *session.Manager
	queue         *queue.Queue
	registry      *schema.Registry
	schemaStore   SchemaPersister
	archives      *archive.Coordinator
	objects       objectstore.Store
	validate      *validator.Validate
	uploads       *chunkAssembler
	apiKey        string
	environment   string
	maxConcurrent int
}

// Config holds server configuration
type Config struct {
	Addr          string
	APIKey        string
	Environment   string
	MaxConcurrent int
}

// Deps are the collaborators the handlers operate on.
type Deps struct {
	Sessions    *session.Manager
	Queue       *queue.Queue
	Registry    *schema.Registry
	SchemaStore SchemaPersister
	Archives    *archive.Coordinator
	Objects     objectstore.Store
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		sessions:      deps.Sessions,
		queue:         deps.Queue,
		registry:      deps.Registry,
		schemaStore:   deps.SchemaStore,
		archives:      deps.Archives,
		objects:       deps.Objects,
		validate:      validator.New(),
		uploads:       newChunkAssembler(),
		apiKey:        cfg.APIKey,
		environment:   cfg.Environment,
		maxConcurrent: cfg.MaxConcurrent,
	}

	mux := http.NewServeMux()

	// Uploader client endpoints
	mux.HandleFunc("GET /api/uploader/ping", s.handlePing)
	mux.HandleFunc("GET /api/uploader/batch-status", s.handleBatchStatus)
	mux.HandleFunc("POST /api/uploader/start", s.handleStartUpload)
	mux.HandleFunc("POST /api/uploader/{id}/upload", s.handleUpload)
	mux.HandleFunc("POST /api/uploader/{id}/upload-chunk", s.handleUploadChunk)

	// Session query and command endpoints
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/reprocess", s.handleReprocess)
	mux.HandleFunc("POST /api/sessions/bulk-delete", s.handleBulkDelete)
	mux.HandleFunc("POST /api/sessions/step6", s.handleStep6Batch)

	// Schema endpoints
	mux.HandleFunc("GET /api/schemas", s.handleListSchemas)
	mux.HandleFunc("POST /api/schemas", s.handleCreateSchema)
	mux.HandleFunc("POST /api/schemas/{id}/activate", s.handleActivateSchema)
	mux.HandleFunc("POST /api/schemas/{id}/deactivate", s.handleDeactivateSchema)

	// Archive endpoints
	mux.HandleFunc("GET /api/archives", s.handleListArchives)

	mux.HandleFunc("GET /health", s.handleHealth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withLogging(corsHandler.Handler(s.withAPIKey(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for large uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the configured handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// withAPIKey enforces the shared-secret header on /api routes. The
// health endpoint stays open for load balancer probes. An empty
// configured key disables the check (local development).
func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.URL.Path != "/health" {
			if r.Header.Get("X-API-Key") != s.apiKey {
				s.errorResponse(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
