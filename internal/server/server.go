package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vincentbai/stepcoach/internal/auth"
	"github.com/vincentbai/stepcoach/internal/blobstore"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/guide"
	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/processor"
	"github.com/vincentbai/stepcoach/internal/recording"
)

const defaultMaxBodyBytes = 16 << 20

// Deps are the services the HTTP layer delegates to.
type Deps struct {
	DB        *database.Database
	Blobs     *blobstore.Store
	Auth      *auth.Authenticator
	Recorder  *recording.Recorder
	Processor *processor.Processor
	Queue     *processor.Queue
	Guide     *guide.Guide

	AllowedOrigins    []string
	MaxBodyBytes      int64
	ExtensionTokenTTL time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	Quiet             bool // no request log
}

type Server struct {
	Deps
	db      *database.Database
	address string
	server  *http.Server
}

func NewServer(deps Deps, address string) *Server {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.ExtensionTokenTTL <= 0 {
		deps.ExtensionTokenTTL = 30 * 24 * time.Hour
	}
	if deps.ReadTimeout <= 0 {
		deps.ReadTimeout = 15 * time.Second
	}
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = 90 * time.Second
	}
	return &Server{
		Deps:    deps,
		db:      deps.DB,
		address: address,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logging.Errorf("health check failed: %v", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if !s.Quiet {
		r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{Logger: logging.StdLog(), NoColor: true}))
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(s.corsMiddleware)
	r.Use(s.limitBody)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.ErrorWithCode(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealthz)

	// Extension token
	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Extension)
		r.Get("/api/extension/me", s.handleMe)
		r.Post("/api/extension/sessions", s.handleStartSession)
		r.Post("/api/extension/sessions/{id}/steps", s.handleAppendSteps)
		r.Post("/api/extension/sessions/{id}/finish", s.handleFinishSession)
		r.Get("/api/extension/walkthroughs", s.handleExtensionListWalkthroughs)
		r.Get("/api/extension/walkthroughs/{id}", s.handleGetWalkthrough)
		r.Post("/api/steps/instruction", s.handleInstruction)
		r.Post("/api/guide/chat", s.handleGuideChat)
		r.Post("/api/walkthroughs/{id}/playback", s.handlePlayback)
	})

	// Dashboard JWT
	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Dashboard)
		r.Get("/api/walkthroughs", s.handleListWalkthroughs)
		r.Get("/api/walkthroughs/{id}", s.handleGetWalkthrough)
		r.Patch("/api/walkthroughs/{id}", s.handleUpdateWalkthrough)
		r.Delete("/api/walkthroughs/{id}", s.handleDeleteWalkthrough)
		r.Put("/api/walkthroughs/{id}/steps", s.handleReplaceSteps)
		r.Patch("/api/walkthroughs/{id}/steps/{index}", s.handleUpdateStep)
		r.Post("/api/walkthroughs/{id}/process", s.handleProcess)
		r.Post("/api/walkthroughs/{id}/share", s.handleShare)
		r.Post("/api/extension/token", s.handleExtensionToken)
		r.Get("/api/analytics", s.handleAnalytics)
	})

	// Public
	r.Get("/api/share/{token}", s.handleSharedWalkthrough)

	r.With(s.Auth.Any).Get("/screenshots/{key}", s.handleScreenshot)

	return r
}

// corsMiddleware answers preflight requests from the extension and dashboard origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.ContainsFunc(s.AllowedOrigins, func(allowed string) bool {
		allowed = strings.TrimSpace(allowed)
		return allowed == "*" || strings.EqualFold(allowed, origin)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is done or the process receives SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		ErrorLog:     logging.StdLog(),
	}

	// Graceful shutdown
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownChannel)

	serveErrors := make(chan error, 1)
	go func() {
		logging.Infof("stepcoach listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrors <- err
		}
		close(serveErrors)
	}()

	select {
	case err, ok := <-serveErrors:
		if ok {
			return err
		}
		return nil
	case <-shutdownChannel:
	case <-ctx.Done():
	}
	logging.Infof("shutting down server")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}

	logging.Infof("server exited")
	return nil
}
