package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/models"
)

// DefaultTopN is the leaderboard length when none is configured
const DefaultTopN = 5

// CostGroup is one entry of a top-cost leaderboard
type CostGroup struct {
	Key           string          `json:"key" yaml:"key"`
	EstimatedCost decimal.Decimal `json:"estimatedCost" yaml:"estimatedCost"`
}

// Summary aggregates a project's graph
type Summary struct {
	TotalNodes            int                        `json:"totalNodes" yaml:"totalNodes"`
	TotalEdges            int                        `json:"totalEdges" yaml:"totalEdges"`
	TotalEstimatedCost    decimal.Decimal            `json:"totalEstimatedCost" yaml:"totalEstimatedCost"`
	NodeCountByType       map[string]int             `json:"nodeCountByType" yaml:"nodeCountByType"`
	NodeCountByRegion     map[string]int             `json:"nodeCountByRegion" yaml:"nodeCountByRegion"`
	EstimatedCostByType   map[string]decimal.Decimal `json:"estimatedCostByType" yaml:"estimatedCostByType"`
	EstimatedCostByRegion map[string]decimal.Decimal `json:"estimatedCostByRegion" yaml:"estimatedCostByRegion"`
	TopCostTypes          []CostGroup                `json:"topCostTypes" yaml:"topCostTypes"`
	TopCostRegions        []CostGroup                `json:"topCostRegions" yaml:"topCostRegions"`
}

// Summary computes totals and top-N cost groups by type and region.
// topN <= 0 falls back to DefaultTopN.
func (s *Store) Summary(ctx context.Context, projectID string, topN int) (Summary, error) {
	nodes, err := s.repo.ListNodes(ctx, projectID)
	if err != nil {
		return Summary{}, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return Summary{}, fmt.Errorf("list edges: %w", err)
	}
	return Summarize(nodes, len(edges), topN), nil
}

// Summarize is the pure aggregation behind Store.Summary
func Summarize(nodes []models.ResourceNode, edgeCount, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}

	sum := Summary{
		TotalNodes:            len(nodes),
		TotalEdges:            edgeCount,
		TotalEstimatedCost:    decimal.Zero,
		NodeCountByType:       make(map[string]int),
		NodeCountByRegion:     make(map[string]int),
		EstimatedCostByType:   make(map[string]decimal.Decimal),
		EstimatedCostByRegion: make(map[string]decimal.Decimal),
	}
	for _, n := range nodes {
		typ := string(n.Type)
		sum.TotalEstimatedCost = sum.TotalEstimatedCost.Add(n.CostEstimate)
		sum.NodeCountByType[typ]++
		sum.NodeCountByRegion[n.Region]++
		sum.EstimatedCostByType[typ] = sum.EstimatedCostByType[typ].Add(n.CostEstimate)
		sum.EstimatedCostByRegion[n.Region] = sum.EstimatedCostByRegion[n.Region].Add(n.CostEstimate)
	}

	sum.TopCostTypes = topGroups(sum.EstimatedCostByType, topN)
	sum.TopCostRegions = topGroups(sum.EstimatedCostByRegion, topN)
	return sum
}

// topGroups sorts by cost descending, then key ascending, and keeps n entries
func topGroups(costs map[string]decimal.Decimal, n int) []CostGroup {
	groups := make([]CostGroup, 0, len(costs))
	for k, v := range costs {
		groups = append(groups, CostGroup{Key: k, EstimatedCost: v})
	}
	sort.Slice(groups, func(i, j int) bool {
		if c := groups[i].EstimatedCost.Cmp(groups[j].EstimatedCost); c != 0 {
			return c > 0
		}
		return groups[i].Key < groups[j].Key
	})
	if len(groups) > n {
		groups = groups[:n]
	}
	return groups
}
