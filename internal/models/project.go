package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project owns a resource graph together with its discovery runs, exports,
// cost snapshots and audit trail.
type Project struct {
	ID                     string           `json:"id"`
	Name                   string           `json:"name"`
	Description            string           `json:"description"`
	MonthlyBudget          *decimal.Decimal `json:"monthlyBudget"`
	BudgetWarningThreshold *decimal.Decimal `json:"budgetWarningThreshold"`
	CreatedAt              time.Time        `json:"createdAt"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

// BudgetStatus classifies spend against a project's monthly budget
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "OK"
	BudgetWarning  BudgetStatus = "WARNING"
	BudgetExceeded BudgetStatus = "EXCEEDED"
	BudgetUnset    BudgetStatus = "UNSET"
)

// CostSnapshot freezes a project's total at a point in time.
type CostSnapshot struct {
	ID             string                     `json:"id"`
	ProjectID      string                     `json:"projectId"`
	TotalCost      decimal.Decimal            `json:"totalCost"`
	Breakdown      map[string]decimal.Decimal `json:"breakdown"`
	Currency       string                     `json:"currency"`
	PricingVersion string                     `json:"pricingVersion"`
	CreatedAt      time.Time                  `json:"createdAt"`
}
