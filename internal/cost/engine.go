// Package cost derives totals and budget status from a project's graph.
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

const (
	// Currency of every estimate in the static price table
	Currency = "USD"
	// PricingVersion tags snapshots with the price table they were computed from
	PricingVersion = "static-2025-06"
)

var hundred = decimal.NewFromInt(100)

// Classify maps a total against a budget. A nil or non-positive budget is
// UNSET; the threshold only matters once the total is within budget.
func Classify(total decimal.Decimal, budget, threshold *decimal.Decimal) models.BudgetStatus {
	if budget == nil || !budget.IsPositive() {
		return models.BudgetUnset
	}
	if total.GreaterThan(*budget) {
		return models.BudgetExceeded
	}
	// total/budget*100 >= threshold
	if threshold != nil && total.Mul(hundred).GreaterThanOrEqual(threshold.Mul(*budget)) {
		return models.BudgetWarning
	}
	return models.BudgetOK
}

// UsedPercent is total/budget*100 rounded to two places, nil without a
// positive budget. The value is not clamped.
func UsedPercent(total decimal.Decimal, budget *decimal.Decimal) *decimal.Decimal {
	if budget == nil || !budget.IsPositive() {
		return nil
	}
	pct := total.Mul(hundred).DivRound(*budget, 2)
	return &pct
}

// ClampPercent limits a percentage to [0, 100] for display
func ClampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// Delta is the cost position of a project against its budget
type Delta struct {
	CurrentTotal           decimal.Decimal     `json:"currentTotal"`
	MonthlyBudget          *decimal.Decimal    `json:"monthlyBudget"`
	Delta                  *decimal.Decimal    `json:"delta"`
	BudgetUsedPercent      *decimal.Decimal    `json:"budgetUsedPercent"`
	BudgetWarningThreshold *decimal.Decimal    `json:"budgetWarningThreshold"`
	BudgetStatus           models.BudgetStatus `json:"budgetStatus"`
}

// Evaluate computes the Delta of total against the project's budget settings
func Evaluate(total decimal.Decimal, p models.Project) Delta {
	d := Delta{
		CurrentTotal:           total,
		BudgetWarningThreshold: p.BudgetWarningThreshold,
		BudgetStatus:           Classify(total, p.MonthlyBudget, p.BudgetWarningThreshold),
	}
	if d.BudgetStatus == models.BudgetUnset {
		return d
	}
	budget := *p.MonthlyBudget
	diff := total.Sub(budget)
	d.MonthlyBudget = &budget
	d.Delta = &diff
	d.BudgetUsedPercent = UsedPercent(total, &budget)
	return d
}

// Engine reads project budgets and graph totals
type Engine struct {
	projects  store.Projects
	totals    TotalSource
	snapshots store.Snapshots
	log       *logger.Logger
	now       func() time.Time
}

// TotalSource yields the summed node cost of a project; graph.Store satisfies it.
type TotalSource interface {
	TotalCost(ctx context.Context, projectID string) (decimal.Decimal, error)
	ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error)
}

// NewEngine creates a cost engine
func NewEngine(projects store.Projects, totals TotalSource, snapshots store.Snapshots, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Engine{
		projects:  projects,
		totals:    totals,
		snapshots: snapshots,
		log:       log.WithFields(map[string]interface{}{"component": "cost-engine"}),
		now:       time.Now,
	}
}

// Current returns the project and its current graph total
func (e *Engine) Current(ctx context.Context, projectID string) (models.Project, decimal.Decimal, error) {
	p, err := e.projects.Get(ctx, projectID)
	if err != nil {
		return models.Project{}, decimal.Zero, err
	}
	total, err := e.totals.TotalCost(ctx, projectID)
	if err != nil {
		return models.Project{}, decimal.Zero, fmt.Errorf("compute total for %s: %w", projectID, err)
	}
	if p.MonthlyBudget != nil && !p.MonthlyBudget.IsPositive() {
		e.log.Warn("project %s has non-positive monthly budget %s; treating as unset", projectID, p.MonthlyBudget)
	}
	return p, total, nil
}

// Delta returns the current cost position of the project
func (e *Engine) Delta(ctx context.Context, projectID string) (Delta, error) {
	p, total, err := e.Current(ctx, projectID)
	if err != nil {
		return Delta{}, err
	}
	return Evaluate(total, p), nil
}

// Recompute records a snapshot of the current total broken down by type
func (e *Engine) Recompute(ctx context.Context, projectID string) (models.CostSnapshot, error) {
	if _, err := e.projects.Get(ctx, projectID); err != nil {
		return models.CostSnapshot{}, err
	}
	nodes, err := e.totals.ListNodes(ctx, projectID)
	if err != nil {
		return models.CostSnapshot{}, fmt.Errorf("list nodes for %s: %w", projectID, err)
	}

	snap := models.CostSnapshot{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		TotalCost:      decimal.Zero,
		Breakdown:      make(map[string]decimal.Decimal),
		Currency:       Currency,
		PricingVersion: PricingVersion,
		CreatedAt:      e.now().UTC(),
	}
	for _, n := range nodes {
		snap.TotalCost = snap.TotalCost.Add(n.CostEstimate)
		snap.Breakdown[string(n.Type)] = snap.Breakdown[string(n.Type)].Add(n.CostEstimate)
	}

	if err := e.snapshots.Append(ctx, snap); err != nil {
		return models.CostSnapshot{}, fmt.Errorf("store snapshot: %w", err)
	}
	e.log.Info("recorded cost snapshot for project %s: total=%s", projectID, snap.TotalCost.StringFixed(2))
	return snap, nil
}

// Latest returns the most recent snapshot, if any
func (e *Engine) Latest(ctx context.Context, projectID string) (models.CostSnapshot, bool, error) {
	if _, err := e.projects.Get(ctx, projectID); err != nil {
		return models.CostSnapshot{}, false, err
	}
	return e.snapshots.Latest(ctx, projectID)
}
