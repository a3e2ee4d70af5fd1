// Package gate evaluates whether a proposed change fits the project's
// budget. A check never mutates project or graph state.
package gate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/cloudcity/internal/audit"
	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/metrics"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/terraform"
)

var tracer = otel.Tracer("cloudcity/gate")

// Request is a proposed change
type Request struct {
	ProjectedMonthlyDelta decimal.Decimal
	StrictMode            bool
}

// Result is the gate decision
type Result struct {
	Pass                   bool                `json:"pass" yaml:"pass"`
	BudgetStatus           models.BudgetStatus `json:"budgetStatus" yaml:"budgetStatus"`
	Reason                 string              `json:"reason" yaml:"reason"`
	RecommendedAction      string              `json:"recommendedAction" yaml:"recommendedAction"`
	RequiredApproval       bool                `json:"requiredApproval" yaml:"requiredApproval"`
	CurrentTotal           decimal.Decimal     `json:"currentTotal" yaml:"currentTotal"`
	ProjectedTotal         decimal.Decimal     `json:"projectedTotal" yaml:"projectedTotal"`
	MonthlyBudget          *decimal.Decimal    `json:"monthlyBudget" yaml:"monthlyBudget"`
	BudgetUsedPercent      *decimal.Decimal    `json:"budgetUsedPercent" yaml:"budgetUsedPercent"`
	BudgetWarningThreshold *decimal.Decimal    `json:"budgetWarningThreshold" yaml:"budgetWarningThreshold"`
	StrictMode             bool                `json:"strictMode" yaml:"strictMode"`
	TerraformPlanEligible  bool                `json:"terraformPlanEligible" yaml:"terraformPlanEligible"`
	EligibilityReason      string              `json:"eligibilityReason" yaml:"eligibilityReason"`
}

// Evaluate classifies current+delta against the project's budget. It is a
// pure function of its inputs.
func Evaluate(current decimal.Decimal, p models.Project, req Request) Result {
	projected := current.Add(req.ProjectedMonthlyDelta)
	d := cost.Evaluate(projected, p)

	r := Result{
		BudgetStatus:           d.BudgetStatus,
		CurrentTotal:           current,
		ProjectedTotal:         projected,
		MonthlyBudget:          d.MonthlyBudget,
		BudgetUsedPercent:      d.BudgetUsedPercent,
		BudgetWarningThreshold: p.BudgetWarningThreshold,
		StrictMode:             req.StrictMode,
	}

	spend := projected.StringFixed(2)
	switch d.BudgetStatus {
	case models.BudgetOK:
		r.Pass = true
		r.Reason = fmt.Sprintf("projected spend %s is %s%% of monthly budget %s", spend, d.BudgetUsedPercent.StringFixed(2), d.MonthlyBudget.StringFixed(2))
		r.RecommendedAction = "Continue pipeline."
	case models.BudgetWarning:
		r.RequiredApproval = true
		r.Reason = fmt.Sprintf("projected spend %s is %s%% of monthly budget %s, at or above the %s%% warning threshold",
			spend, d.BudgetUsedPercent.StringFixed(2), d.MonthlyBudget.StringFixed(2), p.BudgetWarningThreshold.String())
		if req.StrictMode {
			r.Reason += "; strict mode blocks WARNING"
			r.RecommendedAction = "Lower the projected delta or disable strict mode."
		} else {
			r.Pass = true
			r.RecommendedAction = "Require manual approval before apply."
		}
	case models.BudgetExceeded:
		r.RequiredApproval = true
		r.Reason = fmt.Sprintf("projected spend %s exceeds monthly budget %s", spend, d.MonthlyBudget.StringFixed(2))
		r.RecommendedAction = "Reduce the change scope or increase the monthly budget before apply."
	default:
		r.RequiredApproval = true
		r.Reason = fmt.Sprintf("no monthly budget configured; projected spend %s cannot be checked", spend)
		r.RecommendedAction = "Set a project monthly budget to enable the cost gate."
	}
	return r
}

// CostSource yields a project and its current total; cost.Engine satisfies it.
type CostSource interface {
	Current(ctx context.Context, projectID string) (models.Project, decimal.Decimal, error)
}

// NodeLister is the read side of the graph used for plan eligibility
type NodeLister interface {
	ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error)
}

// Evaluator runs gate checks against live project state
type Evaluator struct {
	costs CostSource
	nodes NodeLister
	audit *audit.Recorder
	log   *logger.Logger
}

// NewEvaluator creates a gate evaluator
func NewEvaluator(costs CostSource, nodes NodeLister, rec *audit.Recorder, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Evaluator{
		costs: costs,
		nodes: nodes,
		audit: rec,
		log:   log.WithFields(map[string]interface{}{"component": "pipeline-gate"}),
	}
}

// Check evaluates req for the project and records the outcome in the audit trail
func (e *Evaluator) Check(ctx context.Context, projectID string, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "gate.Check", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.Bool("gate.strict", req.StrictMode),
	))
	defer span.End()

	p, current, err := e.costs.Current(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	nodes, err := e.nodes.ListNodes(ctx, projectID)
	if err != nil {
		return Result{}, fmt.Errorf("list nodes: %w", err)
	}

	r := Evaluate(current, p, req)
	eligibility := terraform.CheckTopology(nodes)
	r.TerraformPlanEligible = eligibility.Eligible
	r.EligibilityReason = eligibility.Reason

	span.SetAttributes(attribute.Bool("gate.pass", r.Pass), attribute.String("budget.status", string(r.BudgetStatus)))
	metrics.GateChecks.WithLabelValues(metrics.PassLabel(r.Pass), string(r.BudgetStatus)).Inc()
	e.log.Info("pipeline check for project %s: pass=%t status=%s projected=%s", projectID, r.Pass, r.BudgetStatus, r.ProjectedTotal.StringFixed(2))

	details := map[string]string{
		"pass":                  fmt.Sprintf("%t", r.Pass),
		"budgetStatus":          string(r.BudgetStatus),
		"requiredApproval":      fmt.Sprintf("%t", r.RequiredApproval),
		"terraformPlanEligible": fmt.Sprintf("%t", r.TerraformPlanEligible),
		"strictMode":            fmt.Sprintf("%t", r.StrictMode),
		"currentTotal":          r.CurrentTotal.StringFixed(2),
		"projectedTotal":        r.ProjectedTotal.StringFixed(2),
		"reason":                r.Reason,
	}
	e.audit.Record(ctx, projectID, models.AuditPipelineCheck, models.EntityProject, projectID, details)
	if !r.Pass {
		e.audit.Record(ctx, projectID, models.AuditCostPolicyFailed, models.EntityProject, projectID, details)
	}
	return r, nil
}
