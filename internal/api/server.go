package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/audience/internal/campaign"
	"github.com/foxzi/audience/internal/config"
	"github.com/foxzi/audience/internal/metrics"
	"github.com/foxzi/audience/internal/models"
	"github.com/foxzi/audience/internal/segment"
)

// Campaigns computes audiences and creates campaigns
type Campaigns interface {
	Preview(ctx context.Context, workspaceID string, criteria segment.Criteria) (*campaign.Preview, error)
	PreviewContacts(contacts []segment.Contact, criteria segment.Criteria) (*campaign.Preview, error)
	Tags(ctx context.Context, workspaceID string) ([]string, error)
	Create(ctx context.Context, d campaign.Draft) (*campaign.Result, error)
}

// Submissions lists recorded campaign submissions
type Submissions interface {
	List(filter models.SubmissionFilter) ([]models.Submission, int, error)
	GetByID(id string) (*models.Submission, error)
}

// RosterSyncer refreshes workspace rosters
type RosterSyncer interface {
	Sync(ctx context.Context, workspace string) (int, error)
}

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	campaigns   Campaigns
	submissions Submissions
	rosters     RosterSyncer
	config      *config.ServerConfig
	version     string
	logger      *slog.Logger
	startTime   time.Time
}

// NewServer creates a new API server. submissions and rosters may be nil,
// in which case their routes answer 503.
func NewServer(campaigns Campaigns, submissions Submissions, rosters RosterSyncer, cfg *config.ServerConfig, version string, logger *slog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		campaigns:   campaigns,
		submissions: submissions,
		rosters:     rosters,
		config:      cfg,
		version:     version,
		logger:      logger.With("component", "api"),
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/audience/preview", s.handlePreview)
		r.Get("/audience/tags", s.handleTags)

		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns/submissions", s.handleSubmissions)
		r.Get("/campaigns/submissions/{id}", s.handleGetSubmission)

		r.Post("/rosters/{workspace}/sync", s.handleRosterSync)
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr, "auth", s.config.APIKeyHash != "")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
