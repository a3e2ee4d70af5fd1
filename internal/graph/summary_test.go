package graph

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/models"
)

func TestSummary(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for _, n := range []models.ResourceNode{
		node("i-1", models.TypeEC2, "us-east-1", "70.08"),
		node("i-2", models.TypeEC2, "eu-west-1", "30.37"),
		node("db-1", models.TypeRDS, "us-east-1", "49.64"),
		node("lb-1", models.TypeELB, "eu-west-1", "16.43"),
		node("bucket-1", models.TypeS3, "", "2.30"),
		node("vpc-1", models.TypeVPC, "us-east-1", "0"),
	} {
		_, err := s.UpsertNode(ctx, n)
		require.NoError(t, err)
	}
	_, err := s.UpsertEdge(ctx, models.ResourceEdge{ProjectID: "p1", FromProviderID: "i-1", ToProviderID: "subnet-404", Relation: models.RelationContains})
	require.NoError(t, err)

	sum, err := s.Summary(ctx, "p1", 3)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.TotalNodes)
	assert.Equal(t, 1, sum.TotalEdges)
	assert.Equal(t, "168.82", sum.TotalEstimatedCost.StringFixed(2))
	assert.Equal(t, 2, sum.NodeCountByType["EC2"])
	assert.Equal(t, 1, sum.NodeCountByRegion[models.UnknownRegion])

	require.Len(t, sum.TopCostTypes, 3)
	assert.Equal(t, "EC2", sum.TopCostTypes[0].Key)
	assert.Equal(t, "100.45", sum.TopCostTypes[0].EstimatedCost.StringFixed(2))
	assert.Equal(t, "RDS", sum.TopCostTypes[1].Key)
	assert.Equal(t, "ELB", sum.TopCostTypes[2].Key)

	require.Len(t, sum.TopCostRegions, 3)
	assert.Equal(t, "us-east-1", sum.TopCostRegions[0].Key)
	assert.Equal(t, "eu-west-1", sum.TopCostRegions[1].Key)
	assert.Equal(t, models.UnknownRegion, sum.TopCostRegions[2].Key)
}

func TestSummarize_TieBreakAndTruncation(t *testing.T) {
	nodes := []models.ResourceNode{
		{Type: models.TypeVPC, Region: "b", CostEstimate: decimal.NewFromInt(5)},
		{Type: models.TypeSubnet, Region: "a", CostEstimate: decimal.NewFromInt(5)},
		{Type: models.TypeSG, Region: "c", CostEstimate: decimal.NewFromInt(5)},
		{Type: models.TypeEC2, Region: "d", CostEstimate: decimal.NewFromInt(9)},
	}

	sum := Summarize(nodes, 0, 3)

	keys := func(groups []CostGroup) []string {
		var out []string
		for _, g := range groups {
			out = append(out, g.Key)
		}
		return out
	}
	assert.Equal(t, []string{"EC2", "SG", "SUBNET"}, keys(sum.TopCostTypes))
	assert.Equal(t, []string{"d", "a", "b"}, keys(sum.TopCostRegions))
}

func TestSummarize_Ordering(t *testing.T) {
	var nodes []models.ResourceNode
	for i, typ := range models.ResourceTypes {
		nodes = append(nodes, models.ResourceNode{Type: typ, Region: "r", CostEstimate: decimal.NewFromInt(int64(i % 3))})
	}

	for _, n := range []int{0, 1, 4, 20} {
		sum := Summarize(nodes, 0, n)
		limit := n
		if limit <= 0 {
			limit = DefaultTopN
		}
		assert.LessOrEqual(t, len(sum.TopCostTypes), limit)
		for i := 1; i < len(sum.TopCostTypes); i++ {
			prev, cur := sum.TopCostTypes[i-1], sum.TopCostTypes[i]
			c := prev.EstimatedCost.Cmp(cur.EstimatedCost)
			assert.True(t, c > 0 || (c == 0 && prev.Key < cur.Key), "out of order at %d", i)
		}
	}
}

func TestSummary_EmptyProject(t *testing.T) {
	sum, err := newTestStore().Summary(context.Background(), "nothing", 0)
	require.NoError(t, err)
	assert.Zero(t, sum.TotalNodes)
	assert.True(t, sum.TotalEstimatedCost.IsZero())
	assert.Empty(t, sum.TopCostTypes)
}
