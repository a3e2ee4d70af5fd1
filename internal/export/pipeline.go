// Package export drives Terraform exports through plan, approval and apply.
// Every transition for a project runs under that project's lock.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/audit"
	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/metrics"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
	"github.com/yourusername/cloudcity/internal/terraform"
)

var tracer = otel.Tracer("cloudcity/export")

// Config controls plan and apply behaviour
type Config struct {
	// Supersede rejects the active export when a new plan is created instead
	// of failing with a conflict
	Supersede    bool
	ApplyTimeout time.Duration
}

// Summary is the plan summary stored as an export's summaryJson
type Summary struct {
	Adds                   int                      `json:"adds"`
	Changes                int                      `json:"changes"`
	Destroys               int                      `json:"destroys"`
	ResourceCounts         map[string]int           `json:"resourceCounts"`
	ResourceChanges        []*tfjson.ResourceChange `json:"resourceChanges"`
	EstimatedMonthlyCost   string                   `json:"estimatedMonthlyCost"`
	EstimatedMonthlyDelta  string                   `json:"estimatedMonthlyDelta"`
	BudgetStatus           models.BudgetStatus      `json:"budgetStatus"`
	MonthlyBudget          *string                  `json:"monthlyBudget"`
	BudgetUsedPercent      *float64                 `json:"budgetUsedPercent"`
	BudgetWarningThreshold *float64                 `json:"budgetWarningThreshold"`
	Approval               string                   `json:"approval,omitempty"`
	ApprovalReason         string                   `json:"approvalReason,omitempty"`
	ApplyStatus            string                   `json:"applyStatus,omitempty"`
	ApplyError             string                   `json:"applyError,omitempty"`
}

// ParseSummary decodes an export's summaryJson
func ParseSummary(e models.TerraformExport) (Summary, error) {
	var s Summary
	if e.SummaryJSON == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(e.SummaryJSON), &s); err != nil {
		return Summary{}, fmt.Errorf("decode summary of export %s: %w", e.ID, err)
	}
	return s, nil
}

// GraphReader reads the graph a plan is rendered from
type GraphReader interface {
	ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error)
	ListEdges(ctx context.Context, projectID string) ([]models.ResourceEdge, error)
}

// CostReader supplies the current total and the latest snapshot
type CostReader interface {
	Current(ctx context.Context, projectID string) (models.Project, decimal.Decimal, error)
	Latest(ctx context.Context, projectID string) (models.CostSnapshot, bool, error)
}

// Pipeline owns the export state machine
type Pipeline struct {
	exports  store.Exports
	graph    GraphReader
	costs    CostReader
	renderer terraform.Renderer
	executor terraform.Executor
	audit    *audit.Recorder
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPipeline creates a pipeline. A nil executor accepts every apply.
func NewPipeline(exports store.Exports, graph GraphReader, costs CostReader, renderer terraform.Renderer,
	executor terraform.Executor, rec *audit.Recorder, cfg Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.DefaultLogger
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 10 * time.Minute
	}
	log = log.WithFields(map[string]interface{}{"component": "terraform-pipeline"})
	if executor == nil {
		executor = terraform.NoopExecutor{Logger: log}
	}
	return &Pipeline{
		exports:  exports,
		graph:    graph,
		costs:    costs,
		renderer: renderer,
		executor: executor,
		audit:    rec,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) lock(projectID string) func() {
	p.mu.Lock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[projectID] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Forget drops the project's lock after the project is deleted
func (p *Pipeline) Forget(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locks, projectID)
}

// CreatePlan renders the project's graph into a new PENDING_APPROVAL export.
// An existing active export is a conflict unless Supersede is set.
func (p *Pipeline) CreatePlan(ctx context.Context, projectID string) (models.TerraformExport, error) {
	ctx, span := tracer.Start(ctx, "export.CreatePlan", trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	unlock := p.lock(projectID)
	defer unlock()

	project, current, err := p.costs.Current(ctx, projectID)
	if err != nil {
		return models.TerraformExport{}, err
	}
	nodes, err := p.graph.ListNodes(ctx, projectID)
	if err != nil {
		return models.TerraformExport{}, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := p.graph.ListEdges(ctx, projectID)
	if err != nil {
		return models.TerraformExport{}, fmt.Errorf("list edges: %w", err)
	}
	if err := terraform.ValidateTopology(nodes); err != nil {
		return models.TerraformExport{}, err
	}

	existing, err := p.exports.List(ctx, projectID)
	if err != nil {
		return models.TerraformExport{}, fmt.Errorf("list exports: %w", err)
	}
	var active []models.TerraformExport
	for _, e := range existing {
		if e.Status.Active() {
			active = append(active, e)
		}
	}
	if len(active) > 0 && !p.cfg.Supersede {
		return models.TerraformExport{}, apperr.Conflict("project %s already has export %s in %s", projectID, active[0].ID, active[0].Status)
	}

	now := p.now().UTC()
	export := models.TerraformExport{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    models.ExportDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.exports.Create(ctx, export); err != nil {
		return models.TerraformExport{}, fmt.Errorf("store export: %w", err)
	}
	span.SetAttributes(attribute.String("export.id", export.ID))

	// past this point the DRAFT row exists, so every error path closes it out
	fail := func(err error) (models.TerraformExport, error) {
		export.Status = models.ExportFailed
		export.Error = err.Error()
		export.UpdatedAt = p.now().UTC()
		p.save(ctx, export)
		span.SetStatus(codes.Error, err.Error())
		return models.TerraformExport{}, err
	}

	plan, err := p.renderer.Render(ctx, projectID, export.ID, nodes, edges)
	if err != nil {
		return fail(fmt.Errorf("render plan: %w", err))
	}

	summary, err := p.summarize(ctx, projectID, project, current, plan)
	if err != nil {
		return fail(err)
	}

	for _, old := range active {
		reason := "superseded by " + export.ID
		old.Status = models.ExportRejected
		old.ApprovalReason = &reason
		old.UpdatedAt = p.now().UTC()
		if err := p.exports.Update(ctx, old); err != nil {
			return fail(fmt.Errorf("supersede export %s: %w", old.ID, err))
		}
		metrics.ExportTransitions.WithLabelValues(string(models.ExportRejected)).Inc()
		p.audit.Record(ctx, projectID, models.AuditPlanSuperseded, models.EntityExport, old.ID, map[string]string{"supersededBy": export.ID})
		p.logger.Info("export %s superseded by %s", old.ID, export.ID)
	}

	if err := setSummary(&export, summary); err != nil {
		return fail(err)
	}
	export.ArtifactPath = plan.Dir
	export.Status = models.ExportPendingApproval
	export.UpdatedAt = p.now().UTC()
	if err := p.exports.Update(ctx, export); err != nil {
		return fail(fmt.Errorf("store export: %w", err))
	}

	metrics.ExportTransitions.WithLabelValues(string(export.Status)).Inc()
	p.audit.Record(ctx, projectID, models.AuditPlanCreated, models.EntityExport, export.ID, map[string]string{
		"adds":                  fmt.Sprintf("%d", summary.Adds),
		"budgetStatus":          string(summary.BudgetStatus),
		"estimatedMonthlyCost":  summary.EstimatedMonthlyCost,
		"estimatedMonthlyDelta": summary.EstimatedMonthlyDelta,
	})
	p.logger.Info("created plan %s for project %s: adds=%d budget=%s", export.ID, projectID, summary.Adds, summary.BudgetStatus)
	return export, nil
}

func (p *Pipeline) summarize(ctx context.Context, projectID string, project models.Project, current decimal.Decimal, plan terraform.Plan) (Summary, error) {
	previous := decimal.Zero
	snap, ok, err := p.costs.Latest(ctx, projectID)
	if err != nil {
		return Summary{}, fmt.Errorf("latest snapshot: %w", err)
	}
	if ok {
		previous = snap.TotalCost
	}

	d := cost.Evaluate(current, project)
	s := Summary{
		ResourceCounts:         plan.ResourceCounts,
		ResourceChanges:        plan.Changes,
		EstimatedMonthlyCost:   current.StringFixed(2),
		EstimatedMonthlyDelta:  current.Sub(previous).StringFixed(2),
		BudgetStatus:           d.BudgetStatus,
		BudgetWarningThreshold: toFloat(d.BudgetWarningThreshold),
		BudgetUsedPercent:      toFloat(d.BudgetUsedPercent),
	}
	if d.MonthlyBudget != nil {
		b := d.MonthlyBudget.StringFixed(2)
		s.MonthlyBudget = &b
	}
	for _, c := range plan.Changes {
		switch {
		case c.Change.Actions.Create():
			s.Adds++
		case c.Change.Actions.Update():
			s.Changes++
		case c.Change.Actions.Delete():
			s.Destroys++
		}
	}
	return s, nil
}

// Approve approves or rejects a PENDING_APPROVAL export
func (p *Pipeline) Approve(ctx context.Context, projectID, exportID string, approved bool, reason string) (models.TerraformExport, error) {
	ctx, span := tracer.Start(ctx, "export.Approve", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("export.id", exportID),
		attribute.Bool("export.approved", approved),
	))
	defer span.End()

	unlock := p.lock(projectID)
	defer unlock()

	export, err := p.exports.Get(ctx, projectID, exportID)
	if err != nil {
		return models.TerraformExport{}, err
	}
	if export.Status != models.ExportPendingApproval {
		return models.TerraformExport{}, apperr.InvalidState("export %s is %s; only %s plans can be approved or rejected",
			exportID, export.Status, models.ExportPendingApproval)
	}

	now := p.now().UTC()
	action := models.AuditPlanRejected
	export.Status = models.ExportRejected
	if approved {
		action = models.AuditPlanApproved
		export.Status = models.ExportApproved
		export.ApprovedAt = &now
	}
	if reason != "" {
		export.ApprovalReason = &reason
	}
	export.UpdatedAt = now

	summary, err := ParseSummary(export)
	if err != nil {
		return models.TerraformExport{}, err
	}
	summary.Approval = string(export.Status)
	summary.ApprovalReason = reason
	if err := setSummary(&export, summary); err != nil {
		return models.TerraformExport{}, err
	}
	if err := p.exports.Update(ctx, export); err != nil {
		return models.TerraformExport{}, fmt.Errorf("store export: %w", err)
	}

	metrics.ExportTransitions.WithLabelValues(string(export.Status)).Inc()
	p.audit.Record(ctx, projectID, action, models.EntityExport, exportID, map[string]string{"reason": reason})
	p.logger.Info("export %s %s: %s", exportID, export.Status, reason)
	return export, nil
}

// Apply re-checks the budget and hands an APPROVED export to the executor.
// EXCEEDED spend blocks the apply and leaves the export APPROVED. An
// executor failure marks the export FAILED; nothing is retried.
func (p *Pipeline) Apply(ctx context.Context, projectID, exportID string) (models.TerraformExport, error) {
	ctx, span := tracer.Start(ctx, "export.Apply", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("export.id", exportID),
	))
	defer span.End()

	unlock := p.lock(projectID)
	defer unlock()

	export, err := p.exports.Get(ctx, projectID, exportID)
	if err != nil {
		return models.TerraformExport{}, err
	}
	if export.Status != models.ExportApproved {
		return models.TerraformExport{}, apperr.InvalidState("export %s is %s; only %s plans can be applied",
			exportID, export.Status, models.ExportApproved)
	}

	project, current, err := p.costs.Current(ctx, projectID)
	if err != nil {
		return models.TerraformExport{}, err
	}
	status := cost.Classify(current, project.MonthlyBudget, project.BudgetWarningThreshold)
	span.SetAttributes(attribute.String("budget.status", string(status)))
	if status == models.BudgetExceeded {
		msg := fmt.Sprintf("current spend %s exceeds monthly budget %s", current.StringFixed(2), project.MonthlyBudget.StringFixed(2))
		p.audit.Record(ctx, projectID, models.AuditApplyBlocked, models.EntityExport, exportID, map[string]string{"reason": msg})
		p.logger.Warn("apply of export %s blocked: %s", exportID, msg)
		span.SetStatus(codes.Error, msg)
		return models.TerraformExport{}, fmt.Errorf("%w: %s", apperr.ErrBudgetGateBlocked, msg)
	}

	// the apply outlives a caller that goes away; only the timeout bounds it
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ApplyTimeout)
	defer cancel()

	summary, err := ParseSummary(export)
	if err != nil {
		return models.TerraformExport{}, err
	}

	applyErr := p.executor.Apply(runCtx, export.ArtifactPath)
	now := p.now().UTC()
	export.UpdatedAt = now
	if applyErr != nil {
		if !errors.Is(applyErr, apperr.ErrExecutor) {
			applyErr = fmt.Errorf("%w: %v", apperr.ErrExecutor, applyErr)
		}
		export.Status = models.ExportFailed
		export.Error = applyErr.Error()
		summary.ApplyStatus = string(models.ExportFailed)
		summary.ApplyError = applyErr.Error()
	} else {
		export.Status = models.ExportApplied
		export.AppliedAt = &now
		summary.ApplyStatus = string(models.ExportApplied)
	}
	if err := setSummary(&export, summary); err != nil {
		return models.TerraformExport{}, err
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := p.exports.Update(persistCtx, export); err != nil {
		return models.TerraformExport{}, fmt.Errorf("store export: %w", err)
	}
	metrics.ExportTransitions.WithLabelValues(string(export.Status)).Inc()

	if applyErr != nil {
		span.SetStatus(codes.Error, applyErr.Error())
		p.audit.Record(persistCtx, projectID, models.AuditApplyFailed, models.EntityExport, exportID, map[string]string{"error": applyErr.Error()})
		p.logger.Error("apply of export %s failed: %v", exportID, applyErr)
		return export, applyErr
	}
	p.audit.Record(persistCtx, projectID, models.AuditApplied, models.EntityExport, exportID, map[string]string{"artifactPath": export.ArtifactPath})
	p.logger.Info("applied export %s", exportID)
	return export, nil
}

// Get returns one export
func (p *Pipeline) Get(ctx context.Context, projectID, exportID string) (models.TerraformExport, error) {
	return p.exports.Get(ctx, projectID, exportID)
}

// List returns the project's exports oldest first
func (p *Pipeline) List(ctx context.Context, projectID string) ([]models.TerraformExport, error) {
	if _, _, err := p.costs.Current(ctx, projectID); err != nil {
		return nil, err
	}
	return p.exports.List(ctx, projectID)
}

// save stores a terminal record on a path that already failed
func (p *Pipeline) save(ctx context.Context, e models.TerraformExport) {
	metrics.ExportTransitions.WithLabelValues(string(e.Status)).Inc()
	if err := p.exports.Update(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Warn("failed to store export %s: %v", e.ID, err)
	}
}

func setSummary(e *models.TerraformExport, s Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	e.SummaryJSON = string(raw)
	return nil
}

func toFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
