// Package api exposes the project, graph, cost, discovery and Terraform
// services over a chi router rooted at /api/v1.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/gate"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/health"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/metrics"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/project"
)

// ProjectService manages projects
type ProjectService interface {
	Create(ctx context.Context, in project.CreateInput) (models.Project, error)
	Get(ctx context.Context, id string) (models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
	Update(ctx context.Context, id string, patch project.Patch) (models.Project, error)
	Delete(ctx context.Context, id string) error
}

// CostService reports and snapshots project spend
type CostService interface {
	Delta(ctx context.Context, projectID string) (cost.Delta, error)
	Latest(ctx context.Context, projectID string) (models.CostSnapshot, bool, error)
	Recompute(ctx context.Context, projectID string) (models.CostSnapshot, error)
}

// GraphService reads a project's resource graph
type GraphService interface {
	ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error)
	ListEdges(ctx context.Context, projectID string) ([]models.ResourceEdge, error)
	Summary(ctx context.Context, projectID string, topN int) (graph.Summary, error)
}

// HealthService analyzes a project's graph
type HealthService interface {
	Analyze(ctx context.Context, projectID string) (health.Report, error)
}

// GateService runs pipeline checks and cost policy checks
type GateService interface {
	Check(ctx context.Context, projectID string, req gate.Request) (gate.Result, error)
	PolicyCheck(ctx context.Context, projectID string, delta decimal.Decimal) (gate.PolicyResult, error)
}

// DiscoveryService drives discovery runs
type DiscoveryService interface {
	Create(ctx context.Context, projectID string, req discovery.CreateRequest) (models.DiscoveryRun, error)
	Execute(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error)
	Status(ctx context.Context, projectID, runID string) (discovery.StatusView, error)
	Get(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error)
	List(ctx context.Context, projectID string) ([]models.DiscoveryRun, error)
	Cancel(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error)
}

// ExportService drives Terraform exports
type ExportService interface {
	CreatePlan(ctx context.Context, projectID string) (models.TerraformExport, error)
	Approve(ctx context.Context, projectID, exportID string, approved bool, reason string) (models.TerraformExport, error)
	Apply(ctx context.Context, projectID, exportID string) (models.TerraformExport, error)
	Get(ctx context.Context, projectID, exportID string) (models.TerraformExport, error)
	List(ctx context.Context, projectID string) ([]models.TerraformExport, error)
}

// AuditLog reads the audit trail
type AuditLog interface {
	List(ctx context.Context, projectID string) ([]models.AuditEvent, error)
}

// Services are the collaborators behind the routes
type Services struct {
	Projects    ProjectService
	Costs       CostService
	Graph       GraphService
	Health      HealthService
	Gate        GateService
	Discoveries DiscoveryService
	Exports     ExportService
	Audit       AuditLog
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	// TopN is the default leaderboard length of graph summaries
	TopN    int
	Version string
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 60 * time.Second,
		TopN:           graph.DefaultTopN,
		Version:        "dev",
	}
}

// Server is the HTTP API server
type Server struct {
	svc    Services
	cfg    Config
	log    *logger.Logger
	router chi.Router
	start  time.Time
}

// NewServer builds the router. Zero config fields fall back to DefaultConfig.
func NewServer(svc Services, cfg Config, log *logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if log == nil {
		log = logger.DefaultLogger
	}
	s := &Server{
		svc:   svc,
		cfg:   cfg,
		log:   log.WithFields(map[string]interface{}{"component": "api"}),
		start: time.Now(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Use(s.projectCtx)

			r.Get("/", s.handleGetProject)
			r.Patch("/", s.handleUpdateProject)
			r.Delete("/", s.handleDeleteProject)

			r.Get("/cost", s.handleLatestCost)
			r.Get("/cost/delta", s.handleCostDelta)
			r.Post("/cost/recompute", s.handleRecompute)
			r.Post("/cost/policy-check", s.handlePolicyCheck)

			r.Get("/graph", s.handleGraph)
			r.Get("/graph/summary", s.handleGraphSummary)
			r.Get("/graph/health", s.handleGraphHealth)

			r.Post("/pipeline/check", s.handlePipelineCheck)

			r.Get("/audit", s.handleAudit)

			r.Route("/discoveries", func(r chi.Router) {
				r.Post("/", s.handleCreateDiscovery)
				r.Get("/", s.handleListDiscoveries)
				r.Get("/{discoveryID}", s.handleGetDiscovery)
				r.Post("/{discoveryID}/execute", s.handleExecuteDiscovery)
				r.Post("/{discoveryID}/cancel", s.handleCancelDiscovery)
				r.Get("/{discoveryID}/status", s.handleDiscoveryStatus)
			})

			r.Route("/terraform", func(r chi.Router) {
				r.Get("/", s.handleListExports)
				r.Post("/plan", s.handleCreatePlan)
				r.Get("/export/{exportID}", s.handleGetExport)
				r.Post("/{exportID}/approve", s.handleApprove)
				r.Post("/{exportID}/apply", s.handleApply)
			})
		})
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("API server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.cfg.Version,
		"uptime":  time.Since(s.start).Round(time.Second).String(),
	})
}

// countRequests records every response under its route pattern
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// topN reads ?top=N, falling back to the configured default
func (s *Server) topN(r *http.Request) (int, error) {
	v := r.URL.Query().Get("top")
	if v == "" {
		return s.cfg.TopN, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, apperr.Validation("top must be a positive integer")
	}
	return n, nil
}
