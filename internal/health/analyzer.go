// Package health derives orphan and misconfiguration diagnostics from a
// project's resource graph using data-driven rule tables.
package health

import (
	"context"
	"fmt"
	"sort"

	"github.com/yourusername/cloudcity/internal/models"
)

// IssueKind separates topology problems from configuration problems
type IssueKind string

const (
	KindOrphan        IssueKind = "ORPHAN"
	KindMisconfigured IssueKind = "MISCONFIGURED"
)

// Issue is one diagnostic for one node
type Issue struct {
	NodeID     string              `json:"nodeId" yaml:"nodeId"`
	ProviderID string              `json:"providerId" yaml:"providerId"`
	NodeType   models.ResourceType `json:"nodeType" yaml:"nodeType"`
	NodeName   string              `json:"nodeName" yaml:"nodeName"`
	Kind       IssueKind           `json:"kind" yaml:"kind"`
	Rule       string              `json:"rule" yaml:"rule"`
	Issue      string              `json:"issue" yaml:"issue"`
}

// Report is the health of a project's graph
type Report struct {
	TotalNodes             int     `json:"totalNodes" yaml:"totalNodes"`
	TotalEdges             int     `json:"totalEdges" yaml:"totalEdges"`
	OrphanNodeCount        int     `json:"orphanNodeCount" yaml:"orphanNodeCount"`
	MisconfiguredNodeCount int     `json:"misconfiguredNodeCount" yaml:"misconfiguredNodeCount"`
	Issues                 []Issue `json:"issues" yaml:"issues"`
}

// GraphReader is the read side of graph.Store
type GraphReader interface {
	ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error)
	ListEdges(ctx context.Context, projectID string) ([]models.ResourceEdge, error)
}

// Analyzer evaluates rule tables against a graph
type Analyzer struct {
	graph   GraphReader
	orphans map[models.ResourceType][]EdgeRequirement
	rules   map[models.ResourceType][]Rule
}

// NewAnalyzer creates an analyzer with the default rule tables
func NewAnalyzer(graph GraphReader) *Analyzer {
	return &Analyzer{
		graph:   graph,
		orphans: DefaultOrphanRules(),
		rules:   DefaultRules(),
	}
}

// Register adds a misconfiguration rule for a type (or AllTypes)
func (a *Analyzer) Register(t models.ResourceType, r Rule) {
	a.rules[t] = append(a.rules[t], r)
}

// RequireEdge adds an orphan requirement for a type
func (a *Analyzer) RequireEdge(t models.ResourceType, req EdgeRequirement) {
	a.orphans[t] = append(a.orphans[t], req)
}

// Analyze loads the project's graph and evaluates it
func (a *Analyzer) Analyze(ctx context.Context, projectID string) (Report, error) {
	nodes, err := a.graph.ListNodes(ctx, projectID)
	if err != nil {
		return Report{}, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := a.graph.ListEdges(ctx, projectID)
	if err != nil {
		return Report{}, fmt.Errorf("list edges: %w", err)
	}
	return a.Evaluate(nodes, edges), nil
}

// Evaluate applies the rule tables to an in-memory graph
func (a *Analyzer) Evaluate(nodes []models.ResourceNode, edges []models.ResourceEdge) Report {
	byProviderID := make(map[string]models.ResourceNode, len(nodes))
	for _, n := range nodes {
		byProviderID[n.ProviderID] = n
	}
	outbound := make(map[string][]models.ResourceEdge)
	for _, e := range edges {
		outbound[e.FromProviderID] = append(outbound[e.FromProviderID], e)
	}

	report := Report{TotalNodes: len(nodes), TotalEdges: len(edges), Issues: []Issue{}}
	for _, n := range nodes {
		orphan, misconfigured := false, false

		for _, req := range a.orphans[n.Type] {
			if !satisfied(req, outbound[n.ProviderID], byProviderID) {
				orphan = true
				report.Issues = append(report.Issues, newIssue(n, KindOrphan, "missing-"+req.Name+"-edge",
					fmt.Sprintf("%s has no %s edge to a %s", n.Type, req.Relation, joinTypes(req.Targets))))
			}
		}

		for _, rules := range [][]Rule{a.rules[AllTypes], a.rules[n.Type]} {
			for _, r := range rules {
				if r.Check(n) {
					misconfigured = true
					report.Issues = append(report.Issues, newIssue(n, KindMisconfigured, r.Name, r.Issue))
				}
			}
		}

		if orphan {
			report.OrphanNodeCount++
		}
		if misconfigured {
			report.MisconfiguredNodeCount++
		}
	}

	sort.SliceStable(report.Issues, func(i, j int) bool {
		x, y := report.Issues[i], report.Issues[j]
		if x.NodeType != y.NodeType {
			return x.NodeType < y.NodeType
		}
		if x.NodeName != y.NodeName {
			return x.NodeName < y.NodeName
		}
		if x.ProviderID != y.ProviderID {
			return x.ProviderID < y.ProviderID
		}
		return x.Rule < y.Rule
	})
	return report
}

// satisfied ignores edges whose target is not in the graph
func satisfied(req EdgeRequirement, edges []models.ResourceEdge, nodes map[string]models.ResourceNode) bool {
	for _, e := range edges {
		if e.Relation != req.Relation {
			continue
		}
		target, ok := nodes[e.ToProviderID]
		if !ok {
			continue
		}
		for _, t := range req.Targets {
			if target.Type == t {
				return true
			}
		}
	}
	return false
}

func newIssue(n models.ResourceNode, kind IssueKind, rule, msg string) Issue {
	return Issue{
		NodeID:     n.ID,
		ProviderID: n.ProviderID,
		NodeType:   n.Type,
		NodeName:   n.Name,
		Kind:       kind,
		Rule:       rule,
		Issue:      msg,
	}
}

func joinTypes(types []models.ResourceType) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += " or "
		}
		out += string(t)
	}
	return out
}
