// Package terraform renders resource graphs into Terraform configurations,
// parses them back for validation and runs the apply delegate.
package terraform

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Resource is one parsed resource block
type Resource struct {
	Type string
	Name string
	// Attributes holds every attribute that evaluates without references to
	// other resources
	Attributes map[string]cty.Value
	// References are the resource addresses the block refers to, sorted
	References []string
}

// Address is the resource's type.name address
func (r Resource) Address() string {
	return r.Type + "." + r.Name
}

// Config is a parsed configuration file
type Config struct {
	Providers []string
	Variables map[string]cty.Value
	Resources []Resource
}

// Resource looks a resource up by address
func (c *Config) Resource(address string) (Resource, bool) {
	for _, r := range c.Resources {
		if r.Address() == address {
			return r, true
		}
	}
	return Resource{}, false
}

// ParseConfig parses a .tf file. Variables without a default evaluate to
// unknown values.
func ParseConfig(filePath string) (*Config, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return parseConfig(src, filePath)
}

func parseConfig(src []byte, filename string) (*Config, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected body type: %T", file.Body)
	}

	cfg := &Config{Variables: make(map[string]cty.Value)}

	// variables first so resource attributes can see their defaults
	for _, block := range body.Blocks {
		if block.Type != "variable" || len(block.Labels) == 0 {
			continue
		}
		val, err := evalDefault(block)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", block.Labels[0], err)
		}
		cfg.Variables[block.Labels[0]] = val
	}

	ctx := &hcl.EvalContext{Variables: map[string]cty.Value{}}
	if len(cfg.Variables) > 0 {
		ctx.Variables["var"] = cty.ObjectVal(cfg.Variables)
	}

	for _, block := range body.Blocks {
		switch block.Type {
		case "provider":
			if len(block.Labels) > 0 {
				cfg.Providers = append(cfg.Providers, block.Labels[0])
			}
		case "resource":
			if len(block.Labels) < 2 {
				return nil, fmt.Errorf("%s: resource block needs a type and a name", block.DefRange().String())
			}
			cfg.Resources = append(cfg.Resources, parseResource(block, ctx))
		}
	}
	return cfg, nil
}

func parseResource(block *hclsyntax.Block, ctx *hcl.EvalContext) Resource {
	res := Resource{
		Type:       block.Labels[0],
		Name:       block.Labels[1],
		Attributes: make(map[string]cty.Value, len(block.Body.Attributes)),
	}
	refs := make(map[string]struct{})

	for name, attr := range block.Body.Attributes {
		for _, t := range attr.Expr.Variables() {
			if ref := resourceReference(t); ref != "" {
				refs[ref] = struct{}{}
			}
		}
		val, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			// refers to another resource; only known at apply time
			continue
		}
		res.Attributes[name] = val
	}

	for ref := range refs {
		res.References = append(res.References, ref)
	}
	sort.Strings(res.References)
	return res
}

// resourceReference turns aws_vpc.vpc_1.id into aws_vpc.vpc_1. Variable,
// data, local and module references are not resources.
func resourceReference(t hcl.Traversal) string {
	var parts []string
	for _, traverser := range t {
		switch step := traverser.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, step.Name)
		case hcl.TraverseAttr:
			parts = append(parts, step.Name)
		}
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "var", "data", "local", "module", "path", "terraform", "count", "each", "self":
		return ""
	}
	return strings.Join(parts[:2], ".")
}

// evalDefault evaluates a variable block's default without context
func evalDefault(block *hclsyntax.Block) (cty.Value, error) {
	attr, ok := block.Body.Attributes["default"]
	if !ok {
		return cty.DynamicVal, nil
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("error evaluating default value: %s", diags.Error())
	}
	return val, nil
}
