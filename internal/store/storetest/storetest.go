// Package storetest holds behaviour checks every store.Store must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite against stores produced by newStore
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("graph", func(t *testing.T) { testGraph(t, newStore(t)) })
	t.Run("runs", func(t *testing.T) { testRuns(t, newStore(t)) })
	t.Run("exports", func(t *testing.T) { testExports(t, newStore(t)) })
	t.Run("snapshots and audit", func(t *testing.T) { testSnapshotsAndAudit(t, newStore(t)) })
	t.Run("cascade delete", func(t *testing.T) { testCascade(t, newStore(t)) })
}

func project(id string) models.Project {
	budget := decimal.NewFromInt(1000)
	return models.Project{
		ID:            id,
		Name:          "project " + id,
		MonthlyBudget: &budget,
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
	}
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Projects().Create(ctx, project("p1")))

	got, err := s.Projects().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "project p1", got.Name)
	require.NotNil(t, got.MonthlyBudget)
	assert.True(t, got.MonthlyBudget.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, got.BudgetWarningThreshold)

	got.MonthlyBudget = nil
	threshold := decimal.NewFromInt(80)
	got.BudgetWarningThreshold = &threshold
	require.NoError(t, s.Projects().Update(ctx, got))

	got, err = s.Projects().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got.MonthlyBudget)
	require.NotNil(t, got.BudgetWarningThreshold)
	assert.True(t, got.BudgetWarningThreshold.Equal(threshold))

	_, err = s.Projects().Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.Projects().Update(ctx, project("missing")), apperr.ErrNotFound)

	list, err := s.Projects().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testGraph(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Projects().Create(ctx, project("p1")))

	node := models.ResourceNode{
		ID:            "n1",
		ProjectID:     "p1",
		Provider:      models.ProviderAWS,
		ProviderID:    "i-1",
		Type:          models.TypeEC2,
		Name:          "web",
		Region:        "us-east-1",
		Source:        models.SourceDiscovered,
		CostEstimate:  decimal.RequireFromString("30.37"),
		Configuration: map[string]string{"instance_type": "t3.medium"},
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
	}
	require.NoError(t, s.Graph().PutNode(ctx, node))

	node.CostEstimate = decimal.RequireFromString("70.08")
	node.Configuration = map[string]string{"instance_type": "m5.large"}
	require.NoError(t, s.Graph().PutNode(ctx, node))

	got, ok, err := s.Graph().GetNode(ctx, "p1", "i-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.CostEstimate.Equal(decimal.RequireFromString("70.08")))
	assert.Equal(t, "m5.large", got.Configuration["instance_type"])

	_, ok, err = s.Graph().GetNode(ctx, "p1", "i-404")
	require.NoError(t, err)
	assert.False(t, ok)

	edge := models.ResourceEdge{
		ID: "e1", ProjectID: "p1", FromProviderID: "i-1", ToProviderID: "subnet-1",
		Relation: models.RelationContains, CreatedAt: epoch,
	}
	require.NoError(t, s.Graph().PutEdge(ctx, edge))
	require.NoError(t, s.Graph().PutEdge(ctx, edge))

	gotEdge, ok, err := s.Graph().GetEdge(ctx, "p1", edge.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "subnet-1", gotEdge.ToProviderID)

	nodes, err := s.Graph().ListNodes(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
	edges, err := s.Graph().ListEdges(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	// writes for a deleted or unknown project are refused, not resurrected
	orphan := node
	orphan.ID, orphan.ProjectID = "n2", "gone"
	assert.ErrorIs(t, s.Graph().PutNode(ctx, orphan), apperr.ErrNotFound)
	orphanEdge := edge
	orphanEdge.ID, orphanEdge.ProjectID = "e2", "gone"
	assert.ErrorIs(t, s.Graph().PutEdge(ctx, orphanEdge), apperr.ErrNotFound)

	nodes, err = s.Graph().ListNodes(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	edges, err = s.Graph().ListEdges(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func testRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Projects().Create(ctx, project("p1")))

	run := models.DiscoveryRun{
		ID: "r1", ProjectID: "p1", Provider: models.ProviderAWS,
		Regions: []string{"us-east-1", "eu-west-1"}, Status: models.DiscoveryCreated, CreatedAt: epoch,
	}
	require.NoError(t, s.Runs().Create(ctx, run))

	finished := epoch.Add(time.Minute)
	run.Status = models.DiscoveryCompleted
	run.Progress = 100
	run.FinishedAt = &finished
	require.NoError(t, s.Runs().Update(ctx, run))

	got, err := s.Runs().Get(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, got.Regions)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))

	_, err = s.Runs().Get(ctx, "other", "r1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := s.Runs().List(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testExports(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Projects().Create(ctx, project("p1")))

	exp := models.TerraformExport{
		ID: "x1", ProjectID: "p1", Status: models.ExportPendingApproval,
		ArtifactPath: "/tmp/x1", SummaryJSON: `{"adds":1}`, CreatedAt: epoch, UpdatedAt: epoch,
	}
	require.NoError(t, s.Exports().Create(ctx, exp))

	reason := "cost too high"
	exp.Status = models.ExportRejected
	exp.ApprovalReason = &reason
	require.NoError(t, s.Exports().Update(ctx, exp))

	got, err := s.Exports().Get(ctx, "p1", "x1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportRejected, got.Status)
	require.NotNil(t, got.ApprovalReason)
	assert.Equal(t, reason, *got.ApprovalReason)
	assert.JSONEq(t, `{"adds":1}`, got.SummaryJSON)

	_, err = s.Exports().Get(ctx, "p1", "x2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testSnapshotsAndAudit(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Projects().Create(ctx, project("p1")))

	_, ok, err := s.Snapshots().Latest(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	for i, total := range []string{"10.00", "25.50"} {
		require.NoError(t, s.Snapshots().Append(ctx, models.CostSnapshot{
			ID: string(rune('a' + i)), ProjectID: "p1", TotalCost: decimal.RequireFromString(total),
			Breakdown: map[string]decimal.Decimal{"EC2": decimal.RequireFromString(total)},
			Currency:  "USD", PricingVersion: "static-2025", CreatedAt: epoch,
		}))
	}
	latest, ok, err := s.Snapshots().Latest(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.TotalCost.Equal(decimal.RequireFromString("25.50")))

	for _, action := range []models.AuditAction{models.AuditPlanCreated, models.AuditPlanApproved} {
		require.NoError(t, s.Audit().Append(ctx, models.AuditEvent{
			ID: string(action), ProjectID: "p1", Action: action, EntityType: models.EntityExport,
			EntityID: "x1", Details: map[string]string{"status": "ok"}, CreatedAt: epoch,
		}))
	}
	events, err := s.Audit().List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AuditPlanCreated, events[0].Action)
	assert.Equal(t, models.AuditPlanApproved, events[1].Action)
	assert.Equal(t, "ok", events[1].Details["status"])
}

func testCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Projects().Create(ctx, project("p1")))
	require.NoError(t, s.Graph().PutNode(ctx, models.ResourceNode{
		ID: "n1", ProjectID: "p1", Provider: models.ProviderAWS, ProviderID: "vpc-1", Type: models.TypeVPC,
		Region: "us-east-1", Source: models.SourceDiscovered, CreatedAt: epoch, UpdatedAt: epoch,
	}))
	require.NoError(t, s.Runs().Create(ctx, models.DiscoveryRun{
		ID: "r1", ProjectID: "p1", Provider: models.ProviderAWS, Regions: []string{"us-east-1"},
		Status: models.DiscoveryCreated, CreatedAt: epoch,
	}))

	require.NoError(t, s.Projects().Delete(ctx, "p1"))

	nodes, err := s.Graph().ListNodes(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	_, err = s.Runs().Get(ctx, "p1", "r1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.Projects().Delete(ctx, "p1"), apperr.ErrNotFound)
}
