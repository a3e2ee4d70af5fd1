package aws

import (
	"context"

	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/models"
)

// StubProvider returns a fixed sample topology for every region: one VPC with
// a public and a private subnet, an app instance behind a load balancer, a
// database and one account-wide bucket. Provider ids carry the region so
// several regions do not collapse into one set of nodes.
type StubProvider struct{}

var _ discovery.Provider = StubProvider{}

// StubFactory hands out a StubProvider for every run
var StubFactory = discovery.ProviderFactoryFunc(func(context.Context, discovery.Target) (discovery.Provider, error) {
	return StubProvider{}, nil
})

const stubSecondPage = "page-2"

// List returns the sample resources of rt; subnets arrive in two pages.
func (StubProvider) List(ctx context.Context, region string, rt models.ResourceType, token string) (discovery.Page, error) {
	if err := ctx.Err(); err != nil {
		return discovery.Page{}, err
	}

	id := func(base string) string { return base + "-" + region }
	vpc, public, private := id("vpc-123"), id("subnet-123"), id("subnet-456")
	sg, instance, lb, db := id("sg-123"), id("i-123"), id("alb-123"), id("rds-123")

	var page discovery.Page
	switch rt {
	case models.TypeVPC:
		n := newNode(models.TypeVPC, vpc, "vpc-main", region)
		n.Configuration[models.ConfigCIDRBlock] = "10.0.0.0/16"
		page.Nodes = append(page.Nodes, n)

	case models.TypeSubnet:
		if token == "" {
			n := newNode(models.TypeSubnet, public, "subnet-public", region)
			n.Zone = region + "a"
			n.Configuration[models.ConfigCIDRBlock] = "10.0.1.0/24"
			page.Nodes = append(page.Nodes, n)
			page.Edges = appendEdge(page.Edges, public, vpc, models.RelationContains)
			page.NextToken = stubSecondPage
			break
		}
		n := newNode(models.TypeSubnet, private, "subnet-private", region)
		n.Zone = region + "b"
		n.Configuration[models.ConfigCIDRBlock] = "10.0.2.0/24"
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, private, vpc, models.RelationContains)

	case models.TypeSG:
		n := newNode(models.TypeSG, sg, "sg-app", region)
		n.Configuration[models.ConfigVPCID] = vpc
		n.Configuration[models.ConfigIngressOpenCIDR] = "0.0.0.0/0"
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, sg, vpc, models.RelationContains)

	case models.TypeEC2:
		n := newNode(models.TypeEC2, instance, "app-1", region)
		n.Zone = region + "a"
		n.State = "running"
		n.CostEstimate = EstimateMonthlyCost(models.TypeEC2, "t3.medium")
		n.Configuration[models.ConfigInstanceType] = "t3.medium"
		n.Configuration[models.ConfigSubnetID] = public
		n.Configuration[models.ConfigSecurityGroups] = sg
		n.Configuration[models.ConfigMonitoring] = models.MonitoringDisabled
		n.Configuration[models.ConfigRootVolumeEncrypted] = "true"
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, instance, public, models.RelationContains)
		page.Edges = appendEdge(page.Edges, instance, sg, models.RelationConnects)

	case models.TypeELB:
		n := newNode(models.TypeELB, lb, "alb-app", region)
		n.State = "active"
		n.CostEstimate = EstimateMonthlyCost(models.TypeELB, "")
		n.Configuration[models.ConfigScheme] = models.SchemeInternetFacing
		n.Configuration[models.ConfigSecurityGroups] = sg
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, lb, public, models.RelationContains)
		page.Edges = appendEdge(page.Edges, lb, instance, models.RelationConnects)

	case models.TypeRDS:
		n := newNode(models.TypeRDS, db, "db-main", region)
		n.State = "available"
		n.CostEstimate = EstimateMonthlyCost(models.TypeRDS, "db.t3.medium")
		n.Configuration[models.ConfigInstanceClass] = "db.t3.medium"
		n.Configuration[models.ConfigPubliclyAccessible] = "false"
		n.Configuration[models.ConfigStorageEncrypted] = "true"
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, db, private, models.RelationContains)
		page.Edges = appendEdge(page.Edges, instance, db, models.RelationDependsOn)

	case models.TypeS3:
		n := newNode(models.TypeS3, "cloudcity-assets", "cloudcity-assets", region)
		n.CostEstimate = EstimateMonthlyCost(models.TypeS3, "")
		n.Configuration[models.ConfigEncryption] = models.EncryptionNone
		n.Configuration[models.ConfigPublic] = "false"
		page.Nodes = append(page.Nodes, n)
	}
	return page, nil
}
