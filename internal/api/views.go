package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/gate"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/models"
)

// Money leaves the API as a string with two decimals; percentages as numbers.

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalMoney(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func percent(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.Round(2).InexactFloat64()
	return &f
}

func moneyMap(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = money(v)
	}
	return out
}

type projectView struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	MonthlyBudget          *string   `json:"monthlyBudget"`
	BudgetWarningThreshold *float64  `json:"budgetWarningThreshold"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func newProjectView(p models.Project) projectView {
	return projectView{
		ID:                     p.ID,
		Name:                   p.Name,
		Description:            p.Description,
		MonthlyBudget:          optionalMoney(p.MonthlyBudget),
		BudgetWarningThreshold: percent(p.BudgetWarningThreshold),
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

type costDeltaView struct {
	CurrentTotal           string              `json:"currentTotal"`
	MonthlyBudget          *string             `json:"monthlyBudget"`
	Delta                  *string             `json:"delta"`
	BudgetUsedPercent      *float64            `json:"budgetUsedPercent"`
	BudgetWarningThreshold *float64            `json:"budgetWarningThreshold"`
	BudgetStatus           models.BudgetStatus `json:"budgetStatus"`
}

func newCostDeltaView(d cost.Delta) costDeltaView {
	return costDeltaView{
		CurrentTotal:           money(d.CurrentTotal),
		MonthlyBudget:          optionalMoney(d.MonthlyBudget),
		Delta:                  optionalMoney(d.Delta),
		BudgetUsedPercent:      percent(d.BudgetUsedPercent),
		BudgetWarningThreshold: percent(d.BudgetWarningThreshold),
		BudgetStatus:           d.BudgetStatus,
	}
}

type snapshotView struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"projectId"`
	TotalCost      string            `json:"totalCost"`
	Breakdown      map[string]string `json:"breakdown"`
	Currency       string            `json:"currency"`
	PricingVersion string            `json:"pricingVersion"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func newSnapshotView(s models.CostSnapshot) snapshotView {
	return snapshotView{
		ID:             s.ID,
		ProjectID:      s.ProjectID,
		TotalCost:      money(s.TotalCost),
		Breakdown:      moneyMap(s.Breakdown),
		Currency:       s.Currency,
		PricingVersion: s.PricingVersion,
		CreatedAt:      s.CreatedAt,
	}
}

type nodeView struct {
	ID             string              `json:"id"`
	ProjectID      string              `json:"projectId"`
	Provider       string              `json:"provider"`
	ProviderID     string              `json:"providerId"`
	Type           models.ResourceType `json:"type"`
	Name           string              `json:"name"`
	Region         string              `json:"region"`
	Zone           string              `json:"zone,omitempty"`
	State          string              `json:"state,omitempty"`
	Source         models.NodeSource   `json:"source"`
	CostEstimate   string              `json:"costEstimate"`
	Configuration  map[string]string   `json:"configuration"`
	DiscoveryRunID string              `json:"discoveryRunId,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type graphView struct {
	Nodes []nodeView            `json:"nodes"`
	Edges []models.ResourceEdge `json:"edges"`
}

func newGraphView(nodes []models.ResourceNode, edges []models.ResourceEdge) graphView {
	v := graphView{
		Nodes: make([]nodeView, 0, len(nodes)),
		Edges: edges,
	}
	if v.Edges == nil {
		v.Edges = []models.ResourceEdge{}
	}
	for _, n := range nodes {
		cfg := n.Configuration
		if cfg == nil {
			cfg = map[string]string{}
		}
		v.Nodes = append(v.Nodes, nodeView{
			ID:             n.ID,
			ProjectID:      n.ProjectID,
			Provider:       n.Provider,
			ProviderID:     n.ProviderID,
			Type:           n.Type,
			Name:           n.Name,
			Region:         n.Region,
			Zone:           n.Zone,
			State:          n.State,
			Source:         n.Source,
			CostEstimate:   money(n.CostEstimate),
			Configuration:  cfg,
			DiscoveryRunID: n.DiscoveryRunID,
			CreatedAt:      n.CreatedAt,
			UpdatedAt:      n.UpdatedAt,
		})
	}
	return v
}

type costGroupView struct {
	Key           string `json:"key"`
	EstimatedCost string `json:"estimatedCost"`
}

type summaryView struct {
	TotalNodes            int               `json:"totalNodes"`
	TotalEdges            int               `json:"totalEdges"`
	TotalEstimatedCost    string            `json:"totalEstimatedCost"`
	NodeCountByType       map[string]int    `json:"nodeCountByType"`
	NodeCountByRegion     map[string]int    `json:"nodeCountByRegion"`
	EstimatedCostByType   map[string]string `json:"estimatedCostByType"`
	EstimatedCostByRegion map[string]string `json:"estimatedCostByRegion"`
	TopCostTypes          []costGroupView   `json:"topCostTypes"`
	TopCostRegions        []costGroupView   `json:"topCostRegions"`
}

func costGroups(in []graph.CostGroup) []costGroupView {
	out := make([]costGroupView, 0, len(in))
	for _, g := range in {
		out = append(out, costGroupView{Key: g.Key, EstimatedCost: money(g.EstimatedCost)})
	}
	return out
}

func newSummaryView(s graph.Summary) summaryView {
	return summaryView{
		TotalNodes:            s.TotalNodes,
		TotalEdges:            s.TotalEdges,
		TotalEstimatedCost:    money(s.TotalEstimatedCost),
		NodeCountByType:       s.NodeCountByType,
		NodeCountByRegion:     s.NodeCountByRegion,
		EstimatedCostByType:   moneyMap(s.EstimatedCostByType),
		EstimatedCostByRegion: moneyMap(s.EstimatedCostByRegion),
		TopCostTypes:          costGroups(s.TopCostTypes),
		TopCostRegions:        costGroups(s.TopCostRegions),
	}
}

type gateView struct {
	Pass                   bool                `json:"pass"`
	BudgetStatus           models.BudgetStatus `json:"budgetStatus"`
	Reason                 string              `json:"reason"`
	RecommendedAction      string              `json:"recommendedAction"`
	RequiredApproval       bool                `json:"requiredApproval"`
	CurrentTotal           string              `json:"currentTotal"`
	ProjectedTotal         string              `json:"projectedTotal"`
	MonthlyBudget          *string             `json:"monthlyBudget"`
	BudgetUsedPercent      *float64            `json:"budgetUsedPercent"`
	BudgetWarningThreshold *float64            `json:"budgetWarningThreshold"`
	StrictMode             bool                `json:"strictMode"`
	TerraformPlanEligible  bool                `json:"terraformPlanEligible"`
	EligibilityReason      string              `json:"eligibilityReason"`
}

func newGateView(r gate.Result) gateView {
	return gateView{
		Pass:                   r.Pass,
		BudgetStatus:           r.BudgetStatus,
		Reason:                 r.Reason,
		RecommendedAction:      r.RecommendedAction,
		RequiredApproval:       r.RequiredApproval,
		CurrentTotal:           money(r.CurrentTotal),
		ProjectedTotal:         money(r.ProjectedTotal),
		MonthlyBudget:          optionalMoney(r.MonthlyBudget),
		BudgetUsedPercent:      percent(r.BudgetUsedPercent),
		BudgetWarningThreshold: percent(r.BudgetWarningThreshold),
		StrictMode:             r.StrictMode,
		TerraformPlanEligible:  r.TerraformPlanEligible,
		EligibilityReason:      r.EligibilityReason,
	}
}

type policyView struct {
	Allowed                bool                `json:"allowed"`
	BudgetStatus           models.BudgetStatus `json:"budgetStatus"`
	MonthlyBudget          *string             `json:"monthlyBudget"`
	CurrentTotal           string              `json:"currentTotal"`
	ProjectedTotal         string              `json:"projectedTotal"`
	ProjectedDelta         string              `json:"projectedDelta"`
	BudgetUsedPercent      *float64            `json:"budgetUsedPercent"`
	BudgetWarningThreshold *float64            `json:"budgetWarningThreshold"`
	Reason                 string              `json:"reason"`
}

func newPolicyView(r gate.PolicyResult) policyView {
	return policyView{
		Allowed:                r.Allowed,
		BudgetStatus:           r.BudgetStatus,
		MonthlyBudget:          optionalMoney(r.MonthlyBudget),
		CurrentTotal:           money(r.CurrentTotal),
		ProjectedTotal:         money(r.ProjectedTotal),
		ProjectedDelta:         money(r.ProjectedDelta),
		BudgetUsedPercent:      percent(r.BudgetUsedPercent),
		BudgetWarningThreshold: percent(r.BudgetWarningThreshold),
		Reason:                 r.Reason,
	}
}
