// Package app wires configuration, storage and every service into one
// container shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/yourusername/cloudcity/internal/api"
	"github.com/yourusername/cloudcity/internal/audit"
	"github.com/yourusername/cloudcity/internal/aws"
	"github.com/yourusername/cloudcity/internal/config"
	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/export"
	"github.com/yourusername/cloudcity/internal/gate"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/health"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/project"
	"github.com/yourusername/cloudcity/internal/store"
	"github.com/yourusername/cloudcity/internal/store/sqlite"
	"github.com/yourusername/cloudcity/internal/terraform"
)

// Container holds all the application dependencies
type Container struct {
	cfg *config.Config
	log *logger.Logger

	store     store.Store
	providers discovery.ProviderFactory
	renderer  terraform.Renderer
	executor  terraform.Executor

	Projects  *project.Service
	Graph     *graph.Store
	Costs     *cost.Engine
	Health    *health.Analyzer
	Gate      *gate.Evaluator
	Discovery *discovery.Orchestrator
	Exports   *export.Pipeline
	Audit     *audit.Recorder
}

// ContainerOption is a function that configures the container
type ContainerOption func(*Container) error

// WithStore replaces the configured storage backend
func WithStore(s store.Store) ContainerOption {
	return func(c *Container) error {
		if s == nil {
			return fmt.Errorf("store cannot be nil")
		}
		c.store = s
		return nil
	}
}

// WithProviderFactory replaces the cloud provider used by discovery runs
func WithProviderFactory(f discovery.ProviderFactory) ContainerOption {
	return func(c *Container) error {
		if f == nil {
			return fmt.Errorf("provider factory cannot be nil")
		}
		c.providers = f
		return nil
	}
}

// WithRenderer replaces the Terraform plan renderer
func WithRenderer(r terraform.Renderer) ContainerOption {
	return func(c *Container) error {
		c.renderer = r
		return nil
	}
}

// WithExecutor replaces the apply delegate
func WithExecutor(e terraform.Executor) ContainerOption {
	return func(c *Container) error {
		c.executor = e
		return nil
	}
}

// WithLogger sets the logger handed to every service
func WithLogger(log *logger.Logger) ContainerOption {
	return func(c *Container) error {
		c.log = log
		return nil
	}
}

// NewContainer creates a new application container with all dependencies.
// A nil cfg means config.Default().
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Container{cfg: cfg, log: logger.DefaultLogger}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying container option: %w", err)
		}
	}

	if c.store == nil {
		s, err := openStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
		c.store = s
	}
	if c.providers == nil {
		if cfg.Discovery.Stub {
			c.providers = aws.StubFactory
		} else {
			c.providers = aws.NewFactory(cfg.AWS, c.log)
		}
	}
	if c.renderer == nil {
		c.renderer = terraform.NewFileRenderer(cfg.Export.Dir, c.log)
	}
	if c.executor == nil && len(cfg.Export.ApplyCommand) > 0 {
		c.executor = terraform.NewCommandExecutor(cfg.Export.ApplyCommand, c.log)
	}

	c.Audit = audit.NewRecorder(c.store.Audit(), c.log)
	c.Graph = graph.NewStore(c.store.Graph())
	c.Costs = cost.NewEngine(c.store.Projects(), c.Graph, c.store.Snapshots(), c.log)
	c.Health = health.NewAnalyzer(c.Graph)
	c.Gate = gate.NewEvaluator(c.Costs, c.Graph, c.Audit, c.log)
	c.Discovery = discovery.NewOrchestrator(c.store.Projects(), c.store.Runs(), c.Graph, c.providers, c.Costs, c.Audit,
		discovery.Config{
			RunTimeout:      cfg.Discovery.RunTimeout,
			CallTimeout:     cfg.Discovery.CallTimeout,
			TypeConcurrency: cfg.Discovery.TypeConcurrency,
		}, c.log)
	c.Exports = export.NewPipeline(c.store.Exports(), c.Graph, c.Costs, c.renderer, c.executor, c.Audit,
		export.Config{
			Supersede:    cfg.Export.Supersede,
			ApplyTimeout: cfg.Export.ApplyTimeout,
		}, c.log)
	c.Projects = project.NewService(c.store.Projects(), c.log, c.Graph, c.Discovery, c.Exports)

	c.log.Debug("container ready: storage=%s stub=%t", cfg.Storage.Driver, cfg.Discovery.Stub)
	return c, nil
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Config returns the configuration the container was built from
func (c *Container) Config() *config.Config {
	return c.cfg
}

// APIServices exposes the services to the REST surface
func (c *Container) APIServices() api.Services {
	return api.Services{
		Projects:    c.Projects,
		Costs:       c.Costs,
		Graph:       c.Graph,
		Health:      c.Health,
		Gate:        c.Gate,
		Discoveries: c.Discovery,
		Exports:     c.Exports,
		Audit:       c.Audit,
	}
}

// Close waits for running discoveries and releases the store
func (c *Container) Close(ctx context.Context) error {
	shutdownErr := c.Discovery.Shutdown(ctx)
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return shutdownErr
}
