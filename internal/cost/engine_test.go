package cost

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		total     string
		budget    *decimal.Decimal
		threshold *decimal.Decimal
		expected  models.BudgetStatus
	}{
		{name: "no budget", total: "500", budget: nil, threshold: dec("80"), expected: models.BudgetUnset},
		{name: "zero budget", total: "500", budget: dec("0"), expected: models.BudgetUnset},
		{name: "negative budget", total: "0", budget: dec("-10"), expected: models.BudgetUnset},
		{name: "under budget without threshold", total: "999.99", budget: dec("1000"), expected: models.BudgetOK},
		{name: "at budget without threshold", total: "1000", budget: dec("1000"), expected: models.BudgetOK},
		{name: "over budget", total: "1000.01", budget: dec("1000"), threshold: dec("80"), expected: models.BudgetExceeded},
		{name: "below threshold", total: "750", budget: dec("1000"), threshold: dec("80"), expected: models.BudgetOK},
		{name: "exactly at threshold", total: "800", budget: dec("1000"), threshold: dec("80"), expected: models.BudgetWarning},
		{name: "above threshold", total: "850", budget: dec("1000"), threshold: dec("80"), expected: models.BudgetWarning},
		{name: "at budget with threshold", total: "1000", budget: dec("1000"), threshold: dec("80"), expected: models.BudgetWarning},
		{name: "zero threshold", total: "0", budget: dec("1000"), threshold: dec("0"), expected: models.BudgetWarning},
		{name: "fractional threshold", total: "2", budget: dec("3"), threshold: dec("66.67"), expected: models.BudgetOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(decimal.RequireFromString(tt.total), tt.budget, tt.threshold)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClassify_Properties(t *testing.T) {
	threshold := dec("80")
	for b := int64(1); b <= 40; b += 3 {
		budget := decimal.NewFromInt(b)
		for tc := int64(0); tc <= 60; tc++ {
			total := decimal.NewFromInt(tc).Div(decimal.NewFromInt(2))
			status := Classify(total, &budget, threshold)

			assert.Equal(t, total.GreaterThan(budget), status == models.BudgetExceeded, "t=%s b=%d", total, b)
			pct := total.Div(budget).Mul(hundred)
			warn := !total.GreaterThan(budget) && pct.GreaterThanOrEqual(*threshold)
			assert.Equal(t, warn, status == models.BudgetWarning, "t=%s b=%d", total, b)
		}
	}
}

func TestUsedPercent(t *testing.T) {
	assert.Nil(t, UsedPercent(decimal.NewFromInt(5), nil))
	assert.Nil(t, UsedPercent(decimal.NewFromInt(5), dec("0")))

	pct := UsedPercent(decimal.NewFromInt(1500), dec("1000"))
	require.NotNil(t, pct)
	assert.Equal(t, "150.00", pct.StringFixed(2))

	pct = UsedPercent(decimal.NewFromInt(2), dec("3"))
	require.NotNil(t, pct)
	assert.Equal(t, "66.67", pct.StringFixed(2))
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, "100", ClampPercent(decimal.NewFromInt(150)).String())
	assert.Equal(t, "0", ClampPercent(decimal.NewFromInt(-3)).String())
	assert.Equal(t, "42.5", ClampPercent(decimal.RequireFromString("42.5")).String())
}

func TestEvaluate(t *testing.T) {
	p := models.Project{MonthlyBudget: dec("1000"), BudgetWarningThreshold: dec("80")}

	d := Evaluate(decimal.NewFromInt(1200), p)
	assert.Equal(t, models.BudgetExceeded, d.BudgetStatus)
	require.NotNil(t, d.Delta)
	assert.Equal(t, "200", d.Delta.String())
	require.NotNil(t, d.BudgetUsedPercent)
	assert.Equal(t, "120.00", d.BudgetUsedPercent.StringFixed(2))

	d = Evaluate(decimal.NewFromInt(100), models.Project{})
	assert.Equal(t, models.BudgetUnset, d.BudgetStatus)
	assert.Nil(t, d.Delta)
	assert.Nil(t, d.BudgetUsedPercent)
	assert.Nil(t, d.MonthlyBudget)
}

type fixture struct {
	mem    *store.Memory
	graph  *graph.Store
	engine *Engine
}

func newFixture(t *testing.T, p models.Project) fixture {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.Projects().Create(context.Background(), p))
	g := graph.NewStore(mem.Graph())
	return fixture{
		mem:    mem,
		graph:  g,
		engine: NewEngine(mem.Projects(), g, mem.Snapshots(), logger.Nop()),
	}
}

func (f fixture) addNode(t *testing.T, providerID string, typ models.ResourceType, cost string) {
	t.Helper()
	_, err := f.graph.UpsertNode(context.Background(), models.ResourceNode{
		ProjectID: "p1", ProviderID: providerID, Type: typ, Region: "us-east-1",
		CostEstimate: decimal.RequireFromString(cost),
	})
	require.NoError(t, err)
}

func TestEngine_DeltaScenario(t *testing.T) {
	f := newFixture(t, models.Project{ID: "p1", MonthlyBudget: dec("1000"), BudgetWarningThreshold: dec("80")})
	ctx := context.Background()

	f.addNode(t, "i-1", models.TypeEC2, "500")
	f.addNode(t, "db-1", models.TypeRDS, "250")

	d, err := f.engine.Delta(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "750.00", d.CurrentTotal.StringFixed(2))
	assert.Equal(t, "75.00", d.BudgetUsedPercent.StringFixed(2))
	assert.Equal(t, models.BudgetOK, d.BudgetStatus)

	f.addNode(t, "i-2", models.TypeEC2, "100")

	d, err = f.engine.Delta(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "850.00", d.CurrentTotal.StringFixed(2))
	assert.Equal(t, "85.00", d.BudgetUsedPercent.StringFixed(2))
	assert.Equal(t, "-150", d.Delta.String())
	assert.Equal(t, models.BudgetWarning, d.BudgetStatus)
}

func TestEngine_UnknownProject(t *testing.T) {
	f := newFixture(t, models.Project{ID: "p1"})
	_, err := f.engine.Delta(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEngine_Recompute(t *testing.T) {
	f := newFixture(t, models.Project{ID: "p1"})
	ctx := context.Background()

	_, ok, err := f.engine.Latest(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	f.addNode(t, "i-1", models.TypeEC2, "30.37")
	f.addNode(t, "i-2", models.TypeEC2, "7.59")
	f.addNode(t, "bucket", models.TypeS3, "2.30")

	snap, err := f.engine.Recompute(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "40.26", snap.TotalCost.StringFixed(2))
	assert.Equal(t, "37.96", snap.Breakdown["EC2"].StringFixed(2))
	assert.Equal(t, Currency, snap.Currency)

	latest, ok, err := f.engine.Latest(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.ID, latest.ID)
}
