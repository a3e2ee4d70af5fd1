// Package discovery runs asynchronous enumerations of a cloud account into a
// project's resource graph and tracks their progress.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/audit"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/metrics"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

var tracer = otel.Tracer("cloudcity/discovery")

// Config bounds a run
type Config struct {
	RunTimeout      time.Duration
	CallTimeout     time.Duration
	TypeConcurrency int
}

// CreateRequest describes a run to create
type CreateRequest struct {
	Provider   string   `json:"provider"`
	AccountID  string   `json:"accountId"`
	RoleARN    string   `json:"roleArn"`
	ExternalID string   `json:"externalId"`
	Regions    []string `json:"regions"`
}

// StatusView is the polling view of a run
type StatusView struct {
	ID         string                 `json:"id"`
	Status     models.DiscoveryStatus `json:"status"`
	Progress   int                    `json:"progress"`
	FinishedAt *time.Time             `json:"finishedAt"`
}

// GraphWriter is the write side of graph.Store
type GraphWriter interface {
	UpsertNode(ctx context.Context, n models.ResourceNode) (models.ResourceNode, error)
	UpsertEdge(ctx context.Context, e models.ResourceEdge) (models.ResourceEdge, error)
}

// Snapshotter records a cost snapshot once a run completes
type Snapshotter interface {
	Recompute(ctx context.Context, projectID string) (models.CostSnapshot, error)
}

// runState is the in-memory side of a RUNNING run. The run goroutine is its
// only writer of status and progress.
type runState struct {
	mu        sync.Mutex
	run       models.DiscoveryRun
	completed int
	total     int
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Orchestrator creates, executes, cancels and reports discovery runs
type Orchestrator struct {
	projects store.Projects
	runs     store.Runs
	graph    GraphWriter
	factory  ProviderFactory
	costs    Snapshotter
	audit    *audit.Recorder
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*runState
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(projects store.Projects, runs store.Runs, graph GraphWriter, factory ProviderFactory,
	costs Snapshotter, rec *audit.Recorder, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.TypeConcurrency < 1 {
		cfg.TypeConcurrency = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 15 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Orchestrator{
		projects: projects,
		runs:     runs,
		graph:    graph,
		factory:  factory,
		costs:    costs,
		audit:    rec,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "discovery"}),
		now:      time.Now,
		active:   make(map[string]*runState),
	}
}

// NormalizeRegions trims, drops blanks and removes duplicates, keeping the
// first occurrence of each region.
func NormalizeRegions(regions []string) []string {
	seen := make(map[string]struct{}, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Create validates req and stores a CREATED run
func (o *Orchestrator) Create(ctx context.Context, projectID string, req CreateRequest) (models.DiscoveryRun, error) {
	if _, err := o.projects.Get(ctx, projectID); err != nil {
		return models.DiscoveryRun{}, err
	}
	provider := strings.ToUpper(strings.TrimSpace(req.Provider))
	if provider != models.ProviderAWS {
		return models.DiscoveryRun{}, apperr.Validation("unsupported provider %q", req.Provider)
	}
	regions := NormalizeRegions(req.Regions)
	if len(regions) == 0 {
		return models.DiscoveryRun{}, apperr.Validation("at least one region is required")
	}

	run := models.DiscoveryRun{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Provider:   provider,
		AccountID:  strings.TrimSpace(req.AccountID),
		RoleARN:    strings.TrimSpace(req.RoleARN),
		ExternalID: strings.TrimSpace(req.ExternalID),
		Regions:    regions,
		Status:     models.DiscoveryCreated,
		CreatedAt:  o.now().UTC(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return models.DiscoveryRun{}, fmt.Errorf("store run: %w", err)
	}
	o.logger.Info("created discovery run %s for project %s (regions=%s)", run.ID, projectID, strings.Join(regions, ","))
	return run, nil
}

// Execute moves a CREATED run to RUNNING and starts it in the background.
// The returned run is the RUNNING record.
func (o *Orchestrator) Execute(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.runs.Get(ctx, projectID, runID)
	if err != nil {
		return models.DiscoveryRun{}, err
	}
	if run.Status != models.DiscoveryCreated {
		return models.DiscoveryRun{}, apperr.InvalidState("discovery run %s is %s, expected %s", runID, run.Status, models.DiscoveryCreated)
	}

	started := o.now().UTC()
	run.Status = models.DiscoveryRunning
	run.StartedAt = &started
	if err := o.runs.Update(ctx, run); err != nil {
		return models.DiscoveryRun{}, fmt.Errorf("store run: %w", err)
	}

	runCtx, span := tracer.Start(context.Background(), "discovery.Run",
		trace.WithLinks(trace.LinkFromContext(ctx)),
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("run.id", runID),
			attribute.StringSlice("run.regions", run.Regions),
		))
	runCtx, cancel := context.WithTimeout(runCtx, o.cfg.RunTimeout)

	st := &runState{
		run:    run,
		total:  len(run.Regions)*len(RegionalTypes) + len(GlobalTypes),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.active[runID] = st
	o.wg.Add(1)
	metrics.RunningDiscoveries.Inc()

	go func() {
		defer o.wg.Done()
		defer span.End()
		defer cancel()
		o.execute(runCtx, st, span)
	}()

	o.logger.Info("started discovery run %s for project %s", runID, projectID)
	return run, nil
}

// Status reports a run's status and progress without side effects
func (o *Orchestrator) Status(ctx context.Context, projectID, runID string) (StatusView, error) {
	run, err := o.Get(ctx, projectID, runID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{ID: run.ID, Status: run.Status, Progress: run.Progress, FinishedAt: run.FinishedAt}, nil
}

// Get returns a run, preferring the live record of a RUNNING run
func (o *Orchestrator) Get(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error) {
	if st := o.lookup(runID); st != nil {
		st.mu.Lock()
		run := st.run
		st.mu.Unlock()
		if run.ProjectID == projectID {
			return run, nil
		}
	}
	return o.runs.Get(ctx, projectID, runID)
}

// List returns the project's runs oldest first
func (o *Orchestrator) List(ctx context.Context, projectID string) ([]models.DiscoveryRun, error) {
	if _, err := o.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	runs, err := o.runs.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i, r := range runs {
		if st := o.lookup(r.ID); st != nil {
			st.mu.Lock()
			runs[i] = st.run
			st.mu.Unlock()
		}
	}
	return runs, nil
}

// Cancel stops a CREATED or RUNNING run. A RUNNING run keeps what it has
// already written to the graph; Cancel returns once the run has stopped.
func (o *Orchestrator) Cancel(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error) {
	o.mu.Lock()
	st := o.active[runID]
	if st == nil {
		defer o.mu.Unlock()
		run, err := o.runs.Get(ctx, projectID, runID)
		if err != nil {
			return models.DiscoveryRun{}, err
		}
		if run.Status.Terminal() {
			return models.DiscoveryRun{}, apperr.InvalidState("discovery run %s is already %s", runID, run.Status)
		}
		// CREATED, or RUNNING left behind by a previous process
		finished := o.now().UTC()
		run.Status = models.DiscoveryCancelled
		run.FinishedAt = &finished
		if err := o.runs.Update(ctx, run); err != nil {
			return models.DiscoveryRun{}, fmt.Errorf("store run: %w", err)
		}
		return run, nil
	}
	o.mu.Unlock()

	st.mu.Lock()
	if st.run.ProjectID != projectID {
		st.mu.Unlock()
		return models.DiscoveryRun{}, apperr.NotFound("discovery run", runID)
	}
	if st.run.Status.Terminal() {
		status := st.run.Status
		st.mu.Unlock()
		return models.DiscoveryRun{}, apperr.InvalidState("discovery run %s is already %s", runID, status)
	}
	st.cancelled = true
	st.mu.Unlock()
	st.cancel()

	select {
	case <-st.done:
	case <-ctx.Done():
		return models.DiscoveryRun{}, ctx.Err()
	}
	return o.runs.Get(ctx, projectID, runID)
}

// Wait blocks until the run is terminal and returns it
func (o *Orchestrator) Wait(ctx context.Context, projectID, runID string) (models.DiscoveryRun, error) {
	if st := o.lookup(runID); st != nil {
		select {
		case <-st.done:
		case <-ctx.Done():
			return models.DiscoveryRun{}, ctx.Err()
		}
	}
	return o.runs.Get(ctx, projectID, runID)
}

// Forget cancels the project's running runs after the project is deleted
func (o *Orchestrator) Forget(projectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range o.active {
		st.mu.Lock()
		mine := st.run.ProjectID == projectID
		if mine {
			st.cancelled = true
		}
		st.mu.Unlock()
		if mine {
			st.cancel()
		}
	}
}

// Shutdown cancels every running run and waits for them to stop
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, st := range o.active {
		st.mu.Lock()
		st.cancelled = true
		st.mu.Unlock()
		st.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) lookup(runID string) *runState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[runID]
}

// stepError carries the region and type a provider failure happened in
type stepError struct {
	region string
	rt     models.ResourceType
	err    error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("region=%s type=%s: %v", e.region, e.rt, e.err)
}

func (e *stepError) Unwrap() error { return e.err }

func (o *Orchestrator) execute(ctx context.Context, st *runState, span trace.Span) {
	st.mu.Lock()
	run := st.run
	st.mu.Unlock()

	log := o.logger.WithFields(map[string]interface{}{"run_id": run.ID, "project_id": run.ProjectID})

	provider, err := o.factory.ForRun(ctx, Target{
		RunID:      run.ID,
		AccountID:  run.AccountID,
		RoleARN:    run.RoleARN,
		ExternalID: run.ExternalID,
	})
	if err != nil {
		o.finish(st, fmt.Errorf("provider setup: %w", err), log, span)
		return
	}

	for i, region := range run.Regions {
		types := RegionalTypes
		if i == 0 {
			types = append(append([]models.ResourceType{}, RegionalTypes...), GlobalTypes...)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.TypeConcurrency)
		for _, rt := range types {
			g.Go(func() error {
				return o.enumerate(gctx, st, provider, region, rt)
			})
		}
		if err := g.Wait(); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("run timed out after %s: %w", o.cfg.RunTimeout, err)
			}
			o.finish(st, err, log, span)
			return
		}
	}
	o.finish(st, nil, log, span)
}

// enumerate pages through one type in one region, upserting as it goes
func (o *Orchestrator) enumerate(ctx context.Context, st *runState, provider Provider, region string, rt models.ResourceType) error {
	st.mu.Lock()
	projectID, runID := st.run.ProjectID, st.run.ID
	st.mu.Unlock()

	seen := make(map[string]struct{})
	token := ""

	for {
		if err := ctx.Err(); err != nil {
			return &stepError{region: region, rt: rt, err: err}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		page, err := provider.List(callCtx, region, rt, token)
		cancel()
		if err != nil {
			return &stepError{region: region, rt: rt, err: err}
		}

		nodes, edges := 0, 0
		for _, n := range page.Nodes {
			n.ProjectID = projectID
			n.DiscoveryRunID = runID
			if _, err := o.graph.UpsertNode(ctx, n); err != nil {
				return &stepError{region: region, rt: rt, err: err}
			}
			nodes++
			metrics.DiscoveredResources.WithLabelValues(string(n.Type)).Inc()
		}
		for _, e := range page.Edges {
			e.ProjectID = projectID
			e.DiscoveryRunID = runID
			if _, err := o.graph.UpsertEdge(ctx, e); err != nil {
				return &stepError{region: region, rt: rt, err: err}
			}
			edges++
		}
		st.mu.Lock()
		st.run.NodesDiscovered += nodes
		st.run.EdgesDiscovered += edges
		st.mu.Unlock()

		if page.NextToken == "" {
			break
		}
		if _, dup := seen[page.NextToken]; dup {
			return &stepError{region: region, rt: rt, err: fmt.Errorf("%w: provider repeated page token %q", apperr.ErrProvider, page.NextToken)}
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}

	o.stepDone(st)
	return nil
}

// stepDone advances progress. It stays below 100 until the run completes.
func (o *Orchestrator) stepDone(st *runState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.completed++
	if p := st.completed * 99 / st.total; p > st.run.Progress {
		st.run.Progress = p
	}
	o.persist(st.run)
}

func (o *Orchestrator) finish(st *runState, runErr error, log *logger.Logger, span trace.Span) {
	st.mu.Lock()
	finished := o.now().UTC()
	st.run.FinishedAt = &finished
	switch {
	case runErr == nil:
		st.run.Status = models.DiscoveryCompleted
		st.run.Progress = 100
	case st.cancelled:
		st.run.Status = models.DiscoveryCancelled
	default:
		st.run.Status = models.DiscoveryFailed
		st.run.Error = runErr.Error()
	}
	run := st.run
	o.persist(run)
	st.mu.Unlock()

	// waiters see the snapshot and audit trail of a finished run
	defer func() {
		o.mu.Lock()
		delete(o.active, run.ID)
		o.mu.Unlock()
		close(st.done)
	}()

	metrics.RunningDiscoveries.Dec()
	metrics.DiscoveryRuns.WithLabelValues(string(run.Status)).Inc()
	span.SetAttributes(
		attribute.String("run.status", string(run.Status)),
		attribute.Int("run.nodes", run.NodesDiscovered),
		attribute.Int("run.edges", run.EdgesDiscovered),
	)

	ctx := context.Background()
	details := map[string]string{
		"status":          string(run.Status),
		"nodesDiscovered": fmt.Sprintf("%d", run.NodesDiscovered),
		"edgesDiscovered": fmt.Sprintf("%d", run.EdgesDiscovered),
		"regions":         strings.Join(run.Regions, ","),
	}
	switch run.Status {
	case models.DiscoveryCompleted:
		log.Info("discovery run completed: nodes=%d edges=%d", run.NodesDiscovered, run.EdgesDiscovered)
		if o.costs != nil {
			if _, err := o.costs.Recompute(ctx, run.ProjectID); err != nil {
				log.Warn("failed to record cost snapshot: %v", err)
			}
		}
		o.audit.Record(ctx, run.ProjectID, models.AuditDiscoveryCompleted, models.EntityDiscovery, run.ID, details)
	case models.DiscoveryCancelled:
		log.Info("discovery run cancelled at %d%%", run.Progress)
	default:
		span.SetStatus(codes.Error, run.Error)
		log.Error("discovery run failed: %s", run.Error)
		details["error"] = run.Error
		o.audit.Record(ctx, run.ProjectID, models.AuditDiscoveryFailed, models.EntityDiscovery, run.ID, details)
	}
}

// persist writes the run record. The run context may already be cancelled,
// so the write gets its own bounded context.
func (o *Orchestrator) persist(run models.DiscoveryRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.runs.Update(ctx, run); err != nil {
		o.logger.Warn("failed to store discovery run %s: %v", run.ID, err)
	}
}
