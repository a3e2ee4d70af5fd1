package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/audit"
	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		delta       string
		budget      *decimal.Decimal
		threshold   *decimal.Decimal
		strict      bool
		wantPass    bool
		wantStatus  models.BudgetStatus
		wantReason  string
		wantApprove bool
	}{
		{
			name: "ok", current: "400", delta: "100", budget: dec("1000"), threshold: dec("80"),
			wantPass: true, wantStatus: models.BudgetOK, wantReason: "projected spend 500.00 is 50.00% of monthly budget 1000.00",
		},
		{
			name: "warning non strict passes", current: "800", delta: "50", budget: dec("1000"), threshold: dec("80"),
			wantPass: true, wantStatus: models.BudgetWarning, wantReason: "850.00 is 85.00%", wantApprove: true,
		},
		{
			name: "warning strict fails", current: "800", delta: "50", budget: dec("1000"), threshold: dec("80"), strict: true,
			wantPass: false, wantStatus: models.BudgetWarning, wantReason: "strict mode blocks WARNING", wantApprove: true,
		},
		{
			name: "exactly at threshold is warning", current: "800", delta: "0", budget: dec("1000"), threshold: dec("80"),
			wantPass: true, wantStatus: models.BudgetWarning, wantApprove: true,
		},
		{
			name: "exceeded", current: "1000", delta: "100", budget: dec("1000"), threshold: dec("80"),
			wantPass: false, wantStatus: models.BudgetExceeded, wantReason: "projected spend 1100.00 exceeds monthly budget 1000.00", wantApprove: true,
		},
		{
			name: "exactly at budget without threshold is ok", current: "1000", delta: "0", budget: dec("1000"),
			wantPass: true, wantStatus: models.BudgetOK,
		},
		{
			name: "unset budget fails", current: "10", delta: "5",
			wantPass: false, wantStatus: models.BudgetUnset, wantReason: "no monthly budget configured", wantApprove: true,
		},
		{
			name: "zero budget is unset", current: "10", delta: "5", budget: dec("0"),
			wantPass: false, wantStatus: models.BudgetUnset, wantApprove: true,
		},
		{
			name: "negative delta brings spend back under", current: "1200", delta: "-400", budget: dec("1000"), threshold: dec("90"),
			wantPass: true, wantStatus: models.BudgetOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.Project{ID: "p1", MonthlyBudget: tt.budget, BudgetWarningThreshold: tt.threshold}
			r := Evaluate(decimal.RequireFromString(tt.current), p, Request{
				ProjectedMonthlyDelta: decimal.RequireFromString(tt.delta),
				StrictMode:            tt.strict,
			})

			assert.Equal(t, tt.wantPass, r.Pass)
			assert.Equal(t, tt.wantStatus, r.BudgetStatus)
			assert.Equal(t, tt.wantApprove, r.RequiredApproval)
			assert.Equal(t, tt.strict, r.StrictMode)
			assert.NotEmpty(t, r.RecommendedAction)
			if tt.wantReason != "" {
				assert.Contains(t, r.Reason, tt.wantReason)
			}
			assert.True(t, r.ProjectedTotal.Equal(decimal.RequireFromString(tt.current).Add(decimal.RequireFromString(tt.delta))))
		})
	}
}

func TestEvaluate_PercentNotClamped(t *testing.T) {
	r := Evaluate(decimal.NewFromInt(1500), models.Project{MonthlyBudget: dec("1000")}, Request{})

	require.NotNil(t, r.BudgetUsedPercent)
	assert.Equal(t, "150.00", r.BudgetUsedPercent.StringFixed(2))
}

type fixture struct {
	mem   *store.Memory
	graph *graph.Store
	eval  *Evaluator
}

func newFixture(t *testing.T, p models.Project) fixture {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.Projects().Create(context.Background(), p))
	g := graph.NewStore(mem.Graph())
	engine := cost.NewEngine(mem.Projects(), g, mem.Snapshots(), logger.Nop())
	return fixture{
		mem:   mem,
		graph: g,
		eval:  NewEvaluator(engine, g, audit.NewRecorder(mem.Audit(), logger.Nop()), logger.Nop()),
	}
}

func (f fixture) add(t *testing.T, providerID string, typ models.ResourceType, cost string) {
	t.Helper()
	_, err := f.graph.UpsertNode(context.Background(), models.ResourceNode{
		ProjectID: "p1", ProviderID: providerID, Type: typ, Name: providerID, Region: "us-east-1",
		CostEstimate: decimal.RequireFromString(cost),
	})
	require.NoError(t, err)
}

func TestCheck_RecordsAuditAndLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.Project{ID: "p1", Name: "demo", MonthlyBudget: dec("1000"), BudgetWarningThreshold: dec("80")})
	f.add(t, "vpc-1", models.TypeVPC, "0")
	f.add(t, "i-1", models.TypeEC2, "950")

	r, err := f.eval.Check(ctx, "p1", Request{ProjectedMonthlyDelta: decimal.NewFromInt(100)})
	require.NoError(t, err)

	assert.False(t, r.Pass)
	assert.Equal(t, models.BudgetExceeded, r.BudgetStatus)
	assert.True(t, r.TerraformPlanEligible)
	assert.Equal(t, "950.00", r.CurrentTotal.StringFixed(2))

	events, err := f.mem.Audit().List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AuditPipelineCheck, events[0].Action)
	assert.Equal(t, models.AuditCostPolicyFailed, events[1].Action)
	assert.Equal(t, "1050.00", events[0].Details["projectedTotal"])

	again, err := f.eval.Check(ctx, "p1", Request{ProjectedMonthlyDelta: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, r.Pass, again.Pass)
	assert.True(t, r.ProjectedTotal.Equal(again.ProjectedTotal))

	nodes, err := f.graph.ListNodes(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestCheck_EligibilityIsInformational(t *testing.T) {
	f := newFixture(t, models.Project{ID: "p1", Name: "demo", MonthlyBudget: dec("1000")})
	f.add(t, "lb-1", models.TypeELB, "16.43")

	r, err := f.eval.Check(context.Background(), "p1", Request{})
	require.NoError(t, err)

	assert.True(t, r.Pass)
	assert.False(t, r.TerraformPlanEligible)
	assert.Contains(t, r.EligibilityReason, "VPC")
}

func TestCheck_UnknownProject(t *testing.T) {
	f := newFixture(t, models.Project{ID: "p1", Name: "demo"})

	_, err := f.eval.Check(context.Background(), "missing", Request{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
