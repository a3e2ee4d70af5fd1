package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/cloudcity/internal/gate"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/health"
)

// Formatter renders graph summaries, health reports and gate results
type Formatter interface {
	Format(v interface{}) (string, error)
}

// FormatType represents the output format for the report
type FormatType string

const (
	// FormatJSON outputs the report in JSON format
	FormatJSON FormatType = "json"
	// FormatYAML outputs the report in YAML format
	FormatYAML FormatType = "yaml"
	// FormatText outputs the report in human-readable text format
	FormatText FormatType = "text"
)

// NewFormatter creates a new formatter based on the specified format
func NewFormatter(format FormatType) (Formatter, error) {
	switch format {
	case FormatJSON:
		return &jsonFormatter{}, nil
	case FormatYAML:
		return &yamlFormatter{}, nil
	case FormatText:
		return &textFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

type jsonFormatter struct{}

func (f *jsonFormatter) Format(v interface{}) (string, error) {
	if isNil(v) {
		return "", fmt.Errorf("cannot format nil report")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %v", err)
	}
	return string(data), nil
}

type yamlFormatter struct{}

func (f *yamlFormatter) Format(v interface{}) (string, error) {
	if isNil(v) {
		return "", fmt.Errorf("cannot format nil report")
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to YAML: %v", err)
	}
	return string(data), nil
}

type textFormatter struct{}

func (f *textFormatter) Format(v interface{}) (string, error) {
	switch r := v.(type) {
	case nil:
		return "No report data available\n", nil
	case graph.Summary:
		return formatSummary(&r), nil
	case *graph.Summary:
		if r == nil {
			return "No report data available\n", nil
		}
		return formatSummary(r), nil
	case health.Report:
		return formatHealth(&r), nil
	case *health.Report:
		if r == nil {
			return "No report data available\n", nil
		}
		return formatHealth(r), nil
	case gate.Result:
		return formatGate(&r), nil
	case *gate.Result:
		if r == nil {
			return "No report data available\n", nil
		}
		return formatGate(r), nil
	default:
		return "", fmt.Errorf("unsupported report type: %T", v)
	}
}

func formatSummary(s *graph.Summary) string {
	var sb strings.Builder

	sb.WriteString("Resource Graph Summary\n")
	sb.WriteString(fmt.Sprintf("Nodes: %d\n", s.TotalNodes))
	sb.WriteString(fmt.Sprintf("Edges: %d\n", s.TotalEdges))
	sb.WriteString(fmt.Sprintf("Estimated Monthly Cost: %s\n", money(s.TotalEstimatedCost)))

	if s.TotalNodes == 0 {
		sb.WriteString("\nNo resources discovered.\n")
		return sb.String()
	}

	if len(s.TopCostTypes) > 0 {
		sb.WriteString("\nTop cost by type:\n")
		for i, g := range s.TopCostTypes {
			sb.WriteString(fmt.Sprintf("%d. %s %s (%d nodes)\n", i+1, g.Key, money(g.EstimatedCost), s.NodeCountByType[g.Key]))
		}
	}
	if len(s.TopCostRegions) > 0 {
		sb.WriteString("\nTop cost by region:\n")
		for i, g := range s.TopCostRegions {
			sb.WriteString(fmt.Sprintf("%d. %s %s (%d nodes)\n", i+1, g.Key, money(g.EstimatedCost), s.NodeCountByRegion[g.Key]))
		}
	}
	return sb.String()
}

func formatHealth(r *health.Report) string {
	var sb strings.Builder

	sb.WriteString("Graph Health Report\n")
	sb.WriteString(fmt.Sprintf("Nodes: %d\n", r.TotalNodes))
	sb.WriteString(fmt.Sprintf("Edges: %d\n", r.TotalEdges))
	sb.WriteString(fmt.Sprintf("Orphans: %d\n", r.OrphanNodeCount))
	sb.WriteString(fmt.Sprintf("Misconfigured: %d\n", r.MisconfiguredNodeCount))

	if len(r.Issues) == 0 {
		sb.WriteString("\nNo issues found.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\nFound %d issue(s):\n\n", len(r.Issues)))
	for i, issue := range r.Issues {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s %s (%s)\n", i+1, issue.Kind, issue.NodeType, formatValue(issue.NodeName), issue.ProviderID))
		sb.WriteString(fmt.Sprintf("   Rule: %s\n", issue.Rule))
		sb.WriteString(fmt.Sprintf("   Issue: %s\n", issue.Issue))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatGate(r *gate.Result) string {
	var sb strings.Builder

	verdict := "PASS"
	if !r.Pass {
		verdict = "FAIL"
	}
	sb.WriteString(fmt.Sprintf("Pipeline Gate: %s\n", verdict))
	sb.WriteString(fmt.Sprintf("Budget Status: %s\n", r.BudgetStatus))
	sb.WriteString(fmt.Sprintf("Current Total: %s\n", money(r.CurrentTotal)))
	sb.WriteString(fmt.Sprintf("Projected Total: %s\n", money(r.ProjectedTotal)))
	sb.WriteString(fmt.Sprintf("Monthly Budget: %s\n", optionalMoney(r.MonthlyBudget)))
	if r.BudgetUsedPercent != nil {
		sb.WriteString(fmt.Sprintf("Budget Used: %s%%\n", r.BudgetUsedPercent.StringFixed(2)))
	}
	sb.WriteString(fmt.Sprintf("Strict Mode: %t\n", r.StrictMode))
	sb.WriteString(fmt.Sprintf("Approval Required: %t\n", r.RequiredApproval))
	sb.WriteString(fmt.Sprintf("\nReason: %s\n", r.Reason))
	sb.WriteString(fmt.Sprintf("Recommended Action: %s\n", r.RecommendedAction))
	sb.WriteString(fmt.Sprintf("Terraform Plan Eligible: %t (%s)\n", r.TerraformPlanEligible, r.EligibilityReason))
	return sb.String()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalMoney(d *decimal.Decimal) string {
	if d == nil {
		return formatValue(nil)
	}
	return money(*d)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		if val == "" {
			return "<empty>"
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func isNil(v interface{}) bool {
	switch r := v.(type) {
	case nil:
		return true
	case *graph.Summary:
		return r == nil
	case *health.Report:
		return r == nil
	case *gate.Result:
		return r == nil
	}
	return false
}
