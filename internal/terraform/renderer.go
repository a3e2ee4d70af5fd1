package terraform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/zclconf/go-cty/cty"

	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
)

const (
	// MainFile is the file a plan is rendered into
	MainFile = "main.tf"

	awsProviderSource  = "hashicorp/aws"
	awsProviderVersion = "~> 5.0"
	awsProviderName    = "registry.terraform.io/hashicorp/aws"
)

// resource type per node type, in render order
var resourceTypes = []struct {
	node     models.ResourceType
	resource string
	prefix   string
}{
	{models.TypeVPC, "aws_vpc", "vpc"},
	{models.TypeSubnet, "aws_subnet", "subnet"},
	{models.TypeSG, "aws_security_group", "sg"},
	{models.TypeEC2, "aws_instance", "ec2"},
	{models.TypeRDS, "aws_db_instance", "rds"},
	{models.TypeELB, "aws_lb", "elb"},
	{models.TypeS3, "aws_s3_bucket", "s3"},
}

// Plan is a rendered graph
type Plan struct {
	Dir            string                   `json:"dir"`
	File           string                   `json:"file"`
	ResourceCounts map[string]int           `json:"resourceCounts"`
	Changes        []*tfjson.ResourceChange `json:"resourceChanges"`
}

// Renderer turns a project's graph into a Terraform configuration
type Renderer interface {
	Render(ctx context.Context, projectID, exportID string, nodes []models.ResourceNode, edges []models.ResourceEdge) (Plan, error)
}

// FileRenderer writes <dir>/<projectID>/<exportID>/main.tf, so every export
// keeps the artifact it was approved against
type FileRenderer struct {
	dir    string
	logger *logger.Logger
}

// NewFileRenderer creates a renderer rooted at dir
func NewFileRenderer(dir string, log *logger.Logger) *FileRenderer {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &FileRenderer{dir: dir, logger: log.WithFields(map[string]interface{}{"component": "terraform"})}
}

// Render validates the topology, writes main.tf and re-parses it
func (r *FileRenderer) Render(ctx context.Context, projectID, exportID string, nodes []models.ResourceNode, edges []models.ResourceEdge) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}
	if err := ValidateTopology(nodes); err != nil {
		return Plan{}, err
	}

	src, addrs := Generate(nodes, edges)

	if projectID == "" || exportID == "" {
		return Plan{}, fmt.Errorf("render needs a project and an export id")
	}
	dir := filepath.Join(r.dir, projectID, exportID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Plan{}, fmt.Errorf("create plan directory: %w", err)
	}
	path := filepath.Join(dir, MainFile)
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return Plan{}, fmt.Errorf("write %s: %w", path, err)
	}

	cfg, err := ParseConfig(path)
	if err != nil {
		return Plan{}, fmt.Errorf("rendered configuration does not parse: %w", err)
	}
	if len(cfg.Resources) != len(addrs) {
		return Plan{}, fmt.Errorf("rendered %d resources but parsed %d", len(addrs), len(cfg.Resources))
	}

	plan := Plan{
		Dir:            dir,
		File:           path,
		ResourceCounts: make(map[string]int, len(resourceTypes)),
		Changes:        make([]*tfjson.ResourceChange, 0, len(cfg.Resources)),
	}
	for _, rt := range resourceTypes {
		plan.ResourceCounts[strings.ToLower(string(rt.node))] = 0
	}
	for _, res := range cfg.Resources {
		plan.ResourceCounts[prefixFor(res.Type)]++
		plan.Changes = append(plan.Changes, &tfjson.ResourceChange{
			Address:      res.Address(),
			Mode:         tfjson.ManagedResourceMode,
			Type:         res.Type,
			Name:         res.Name,
			ProviderName: awsProviderName,
			Change:       &tfjson.Change{Actions: tfjson.Actions{tfjson.ActionCreate}},
		})
	}

	r.logger.Info("rendered %d resources for export %s of project %s to %s", len(plan.Changes), exportID, projectID, path)
	return plan, nil
}

func prefixFor(resourceType string) string {
	for _, rt := range resourceTypes {
		if rt.resource == resourceType {
			return strings.ToLower(string(rt.node))
		}
	}
	return resourceType
}

// Generate renders nodes into HCL. Resources are labelled <prefix>_<n> in
// provider id order; the returned map gives each provider id its address.
func Generate(nodes []models.ResourceNode, edges []models.ResourceEdge) ([]byte, map[string]hcl.Traversal) {
	byType := make(map[models.ResourceType][]models.ResourceNode)
	for _, n := range nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}
	for _, list := range byType {
		sort.Slice(list, func(i, j int) bool { return list[i].ProviderID < list[j].ProviderID })
	}

	addrs := make(map[string]hcl.Traversal, len(nodes))
	for _, rt := range resourceTypes {
		for i, n := range byType[rt.node] {
			addrs[n.ProviderID] = hcl.Traversal{
				hcl.TraverseRoot{Name: rt.resource},
				hcl.TraverseAttr{Name: fmt.Sprintf("%s_%d", rt.prefix, i+1)},
			}
		}
	}

	links := newLinks(edges)
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	tf := body.AppendNewBlock("terraform", nil)
	tf.Body().AppendNewBlock("required_providers", nil).Body().SetAttributeValue("aws", cty.ObjectVal(map[string]cty.Value{
		"source":  cty.StringVal(awsProviderSource),
		"version": cty.StringVal(awsProviderVersion),
	}))
	body.AppendNewline()

	region := defaultRegion(nodes)
	v := body.AppendNewBlock("variable", []string{"region"}).Body()
	v.SetAttributeRaw("type", hclwrite.TokensForIdentifier("string"))
	v.SetAttributeValue("default", cty.StringVal(region))
	body.AppendNewline()
	if len(byType[models.TypeEC2]) > 0 {
		v := body.AppendNewBlock("variable", []string{"ami_id"}).Body()
		v.SetAttributeRaw("type", hclwrite.TokensForIdentifier("string"))
		v.SetAttributeValue("description", cty.StringVal("AMI used for every rendered instance"))
		body.AppendNewline()
	}
	if len(byType[models.TypeRDS]) > 0 {
		v := body.AppendNewBlock("variable", []string{"db_password"}).Body()
		v.SetAttributeRaw("type", hclwrite.TokensForIdentifier("string"))
		v.SetAttributeValue("sensitive", cty.True)
		body.AppendNewline()
	}

	body.AppendNewBlock("provider", []string{"aws"}).Body().SetAttributeTraversal("region", varRef("region"))
	body.AppendNewline()

	firstVPC := first(byType[models.TypeVPC], addrs)
	firstSubnet := first(byType[models.TypeSubnet], addrs)
	types := byTypeIndex(byType)

	for _, rt := range resourceTypes {
		for i, n := range byType[rt.node] {
			addr := addrs[n.ProviderID]
			b := body.AppendNewBlock("resource", []string{rt.resource, addr[1].(hcl.TraverseAttr).Name}).Body()
			cfg := n.Configuration

			switch rt.node {
			case models.TypeVPC:
				b.SetAttributeValue("cidr_block", cty.StringVal(orDefault(cfg[models.ConfigCIDRBlock], fmt.Sprintf("10.%d.0.0/16", i+1))))
			case models.TypeSubnet:
				setID(b, "vpc_id", links.one(n.ProviderID, models.RelationContains, addrs, firstVPC))
				b.SetAttributeValue("cidr_block", cty.StringVal(orDefault(cfg[models.ConfigCIDRBlock], fmt.Sprintf("10.1.%d.0/24", i+1))))
			case models.TypeSG:
				b.SetAttributeValue("name", cty.StringVal(n.Name))
				setID(b, "vpc_id", links.one(n.ProviderID, models.RelationContains, addrs, firstVPC))
			case models.TypeEC2:
				b.SetAttributeTraversal("ami", varRef("ami_id"))
				b.SetAttributeValue("instance_type", cty.StringVal(orDefault(cfg[models.ConfigInstanceType], "t3.micro")))
				setID(b, "subnet_id", links.one(n.ProviderID, models.RelationContains, addrs, nil))
				if sgs := links.all(n.ProviderID, models.RelationConnects, addrs, models.TypeSG, types); len(sgs) > 0 {
					b.SetAttributeRaw("vpc_security_group_ids", idTuple(sgs))
				}
				b.SetAttributeValue("monitoring", cty.BoolVal(cfg[models.ConfigMonitoring] == "enabled"))
			case models.TypeRDS:
				b.SetAttributeValue("allocated_storage", cty.NumberIntVal(20))
				b.SetAttributeValue("engine", cty.StringVal("postgres"))
				b.SetAttributeValue("instance_class", cty.StringVal(orDefault(cfg[models.ConfigInstanceClass], "db.t3.micro")))
				b.SetAttributeValue("username", cty.StringVal("cloudcity"))
				b.SetAttributeTraversal("password", varRef("db_password"))
				b.SetAttributeValue("publicly_accessible", cty.BoolVal(cfg[models.ConfigPubliclyAccessible] == "true"))
				b.SetAttributeValue("storage_encrypted", cty.BoolVal(cfg[models.ConfigStorageEncrypted] != "false"))
				if sgs := links.all(n.ProviderID, models.RelationConnects, addrs, models.TypeSG, types); len(sgs) > 0 {
					b.SetAttributeRaw("vpc_security_group_ids", idTuple(sgs))
				}
				b.SetAttributeValue("skip_final_snapshot", cty.True)
			case models.TypeELB:
				b.SetAttributeValue("name", cty.StringVal(n.Name))
				b.SetAttributeValue("internal", cty.BoolVal(cfg[models.ConfigScheme] != models.SchemeInternetFacing))
				b.SetAttributeValue("load_balancer_type", cty.StringVal("application"))
				subnets := links.all(n.ProviderID, models.RelationContains, addrs, models.TypeSubnet, types)
				if len(subnets) == 0 && firstSubnet != nil {
					subnets = []hcl.Traversal{firstSubnet}
				}
				b.SetAttributeRaw("subnets", idTuple(subnets))
				if sgs := links.all(n.ProviderID, models.RelationConnects, addrs, models.TypeSG, types); len(sgs) > 0 {
					b.SetAttributeRaw("security_groups", idTuple(sgs))
				}
			case models.TypeS3:
				b.SetAttributeValue("bucket", cty.StringVal(n.Name))
			}

			if rt.node != models.TypeSG && rt.node != models.TypeS3 {
				b.SetAttributeValue("tags", cty.ObjectVal(map[string]cty.Value{"Name": cty.StringVal(n.Name)}))
			}
			body.AppendNewline()
		}
	}

	return hclwrite.Format(f.Bytes()), addrs
}

// links indexes edges by source
type links map[string][]models.ResourceEdge

func newLinks(edges []models.ResourceEdge) links {
	l := make(links)
	for _, e := range edges {
		l[e.FromProviderID] = append(l[e.FromProviderID], e)
	}
	for _, list := range l {
		sort.Slice(list, func(i, j int) bool { return list[i].ToProviderID < list[j].ToProviderID })
	}
	return l
}

// one returns the first rendered target of from over rel, or fallback
func (l links) one(from string, rel models.RelationType, addrs map[string]hcl.Traversal, fallback hcl.Traversal) hcl.Traversal {
	for _, e := range l[from] {
		if e.Relation != rel {
			continue
		}
		if t, ok := addrs[e.ToProviderID]; ok {
			return t
		}
	}
	return fallback
}

// all returns every rendered target of from over rel that has type want
func (l links) all(from string, rel models.RelationType, addrs map[string]hcl.Traversal, want models.ResourceType, types map[string]models.ResourceType) []hcl.Traversal {
	var out []hcl.Traversal
	for _, e := range l[from] {
		if e.Relation != rel || types[e.ToProviderID] != want {
			continue
		}
		if t, ok := addrs[e.ToProviderID]; ok {
			out = append(out, t)
		}
	}
	return out
}

func byTypeIndex(byType map[models.ResourceType][]models.ResourceNode) map[string]models.ResourceType {
	out := make(map[string]models.ResourceType)
	for t, list := range byType {
		for _, n := range list {
			out[n.ProviderID] = t
		}
	}
	return out
}

func first(nodes []models.ResourceNode, addrs map[string]hcl.Traversal) hcl.Traversal {
	if len(nodes) == 0 {
		return nil
	}
	return addrs[nodes[0].ProviderID]
}

// setID sets name to ref.id; a missing ref leaves the attribute unset
func setID(b *hclwrite.Body, name string, ref hcl.Traversal) {
	if ref != nil {
		b.SetAttributeTraversal(name, attr(ref, "id"))
	}
}

func attr(t hcl.Traversal, name string) hcl.Traversal {
	out := make(hcl.Traversal, 0, len(t)+1)
	out = append(out, t...)
	return append(out, hcl.TraverseAttr{Name: name})
}

func varRef(name string) hcl.Traversal {
	return hcl.Traversal{hcl.TraverseRoot{Name: "var"}, hcl.TraverseAttr{Name: name}}
}

func idTuple(refs []hcl.Traversal) hclwrite.Tokens {
	elems := make([]hclwrite.Tokens, 0, len(refs))
	for _, r := range refs {
		elems = append(elems, hclwrite.TokensForTraversal(attr(r, "id")))
	}
	return hclwrite.TokensForTuple(elems)
}

func defaultRegion(nodes []models.ResourceNode) string {
	var regions []string
	for _, n := range nodes {
		if n.Type == models.TypeVPC && n.Region != "" {
			regions = append(regions, n.Region)
		}
	}
	if len(regions) == 0 {
		return "us-east-1"
	}
	sort.Strings(regions)
	return regions[0]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
