package gate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/models"
)

// PolicyResult is the outcome of a cost policy check. Unlike the pipeline
// gate it only denies EXCEEDED: WARNING and UNSET are allowed and there is
// no strict mode.
type PolicyResult struct {
	Allowed                bool                `json:"allowed" yaml:"allowed"`
	BudgetStatus           models.BudgetStatus `json:"budgetStatus" yaml:"budgetStatus"`
	MonthlyBudget          *decimal.Decimal    `json:"monthlyBudget" yaml:"monthlyBudget"`
	CurrentTotal           decimal.Decimal     `json:"currentTotal" yaml:"currentTotal"`
	ProjectedTotal         decimal.Decimal     `json:"projectedTotal" yaml:"projectedTotal"`
	ProjectedDelta         decimal.Decimal     `json:"projectedDelta" yaml:"projectedDelta"`
	BudgetUsedPercent      *decimal.Decimal    `json:"budgetUsedPercent" yaml:"budgetUsedPercent"`
	BudgetWarningThreshold *decimal.Decimal    `json:"budgetWarningThreshold" yaml:"budgetWarningThreshold"`
	Reason                 string              `json:"reason" yaml:"reason"`
}

// EvaluatePolicy classifies current+delta against the project's budget
func EvaluatePolicy(current, delta decimal.Decimal, p models.Project) PolicyResult {
	projected := current.Add(delta)
	d := cost.Evaluate(projected, p)

	r := PolicyResult{
		Allowed:                d.BudgetStatus != models.BudgetExceeded,
		BudgetStatus:           d.BudgetStatus,
		MonthlyBudget:          d.MonthlyBudget,
		CurrentTotal:           current,
		ProjectedTotal:         projected,
		ProjectedDelta:         delta,
		BudgetUsedPercent:      d.BudgetUsedPercent,
		BudgetWarningThreshold: p.BudgetWarningThreshold,
	}
	switch d.BudgetStatus {
	case models.BudgetUnset:
		r.Reason = "No monthly budget configured."
	case models.BudgetOK:
		r.Reason = "Projected spend is within budget."
	case models.BudgetWarning:
		r.Reason = "Projected spend exceeds warning threshold."
	default:
		r.Reason = fmt.Sprintf("Projected spend %s exceeds monthly budget %s.", projected.StringFixed(2), d.MonthlyBudget.StringFixed(2))
	}
	return r
}

// PolicyCheck evaluates a projected delta for the project. Only a denial is
// written to the audit trail.
func (e *Evaluator) PolicyCheck(ctx context.Context, projectID string, delta decimal.Decimal) (PolicyResult, error) {
	ctx, span := tracer.Start(ctx, "gate.PolicyCheck", trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	p, current, err := e.costs.Current(ctx, projectID)
	if err != nil {
		return PolicyResult{}, err
	}

	r := EvaluatePolicy(current, delta, p)
	span.SetAttributes(attribute.Bool("policy.allowed", r.Allowed), attribute.String("budget.status", string(r.BudgetStatus)))

	if !r.Allowed {
		details := map[string]string{
			"currentTotal":   r.CurrentTotal.StringFixed(2),
			"projectedTotal": r.ProjectedTotal.StringFixed(2),
			"projectedDelta": r.ProjectedDelta.StringFixed(2),
			"monthlyBudget":  r.MonthlyBudget.StringFixed(2),
			"budgetStatus":   string(r.BudgetStatus),
		}
		if r.BudgetUsedPercent != nil {
			details["budgetUsedPercent"] = r.BudgetUsedPercent.StringFixed(2)
		}
		e.audit.Record(ctx, projectID, models.AuditCostPolicyFailed, models.EntityProject, projectID, details)
		e.log.Warn("cost policy denied for project %s: %s", projectID, r.Reason)
	}
	return r, nil
}
