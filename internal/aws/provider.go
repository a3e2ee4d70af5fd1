package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/metrics"
	"github.com/yourusername/cloudcity/internal/models"
)

const pageSize = 100

// Error codes S3 returns when a bucket simply has no such configuration
const (
	codeNoEncryption = "ServerSideEncryptionConfigurationNotFoundError"
	codeNoPolicy     = "NoSuchBucketPolicy"
)

// Provider lists AWS resources as graph pages
type Provider struct {
	clients ClientSource
	limiter *rate.Limiter
	logger  *logger.Logger
}

var _ discovery.Provider = (*Provider)(nil)

// NewProvider creates a provider over clients. A nil limiter disables throttling.
func NewProvider(clients ClientSource, limiter *rate.Limiter, log *logger.Logger) *Provider {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Provider{
		clients: clients,
		limiter: limiter,
		logger:  log.WithFields(map[string]interface{}{"component": "aws-provider"}),
	}
}

// List returns one page of rt in region
func (p *Provider) List(ctx context.Context, region string, rt models.ResourceType, token string) (discovery.Page, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return discovery.Page{}, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	page, err := p.list(ctx, region, rt, token)
	metrics.ObserveProviderCall(string(rt), start, err)
	if err != nil {
		return discovery.Page{}, err
	}

	p.logger.Debug("listed %d %s in %s (next=%q)", len(page.Nodes), rt, region, page.NextToken)
	return page, nil
}

func (p *Provider) list(ctx context.Context, region string, rt models.ResourceType, token string) (discovery.Page, error) {
	cl := p.clients(region)
	switch rt {
	case models.TypeVPC:
		return listVPCs(ctx, cl.EC2, region, token)
	case models.TypeSubnet:
		return listSubnets(ctx, cl.EC2, region, token)
	case models.TypeSG:
		return listSecurityGroups(ctx, cl.EC2, region, token)
	case models.TypeEC2:
		return listInstances(ctx, cl.EC2, region, token)
	case models.TypeELB:
		return listLoadBalancers(ctx, cl.ELB, region, token)
	case models.TypeRDS:
		return listDatabases(ctx, cl.RDS, region, token)
	case models.TypeS3:
		return p.listBuckets(ctx, cl.S3, region, token)
	default:
		return discovery.Page{}, apperr.Validation("resource type %s cannot be discovered", rt)
	}
}

func listVPCs(ctx context.Context, api EC2API, region, token string) (discovery.Page, error) {
	out, err := api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{NextToken: optional(token), MaxResults: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("DescribeVpcs", err)
	}

	var page discovery.Page
	for _, v := range out.Vpcs {
		id := aws.ToString(v.VpcId)
		n := newNode(models.TypeVPC, id, nameTag(v.Tags, "vpc"), region)
		n.State = string(v.State)
		n.Configuration[models.ConfigCIDRBlock] = aws.ToString(v.CidrBlock)
		page.Nodes = append(page.Nodes, n)
	}
	page.NextToken = aws.ToString(out.NextToken)
	return page, nil
}

func listSubnets(ctx context.Context, api EC2API, region, token string) (discovery.Page, error) {
	out, err := api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{NextToken: optional(token), MaxResults: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("DescribeSubnets", err)
	}

	var page discovery.Page
	for _, s := range out.Subnets {
		id := aws.ToString(s.SubnetId)
		n := newNode(models.TypeSubnet, id, nameTag(s.Tags, "subnet"), region)
		n.Zone = aws.ToString(s.AvailabilityZone)
		n.State = string(s.State)
		n.Configuration[models.ConfigCIDRBlock] = aws.ToString(s.CidrBlock)
		n.Configuration[models.ConfigVPCID] = aws.ToString(s.VpcId)
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, id, aws.ToString(s.VpcId), models.RelationContains)
	}
	page.NextToken = aws.ToString(out.NextToken)
	return page, nil
}

func listSecurityGroups(ctx context.Context, api EC2API, region, token string) (discovery.Page, error) {
	out, err := api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{NextToken: optional(token), MaxResults: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("DescribeSecurityGroups", err)
	}

	var page discovery.Page
	for _, g := range out.SecurityGroups {
		id := aws.ToString(g.GroupId)
		n := newNode(models.TypeSG, id, aws.ToString(g.GroupName), region)
		n.Configuration[models.ConfigVPCID] = aws.ToString(g.VpcId)
		if cidrs := ingressCIDRs(g.IpPermissions); len(cidrs) > 0 {
			n.Configuration[models.ConfigIngressOpenCIDR] = strings.Join(cidrs, ",")
		}
		page.Nodes = append(page.Nodes, n)
		page.Edges = appendEdge(page.Edges, id, aws.ToString(g.VpcId), models.RelationContains)
	}
	page.NextToken = aws.ToString(out.NextToken)
	return page, nil
}

func listInstances(ctx context.Context, api EC2API, region, token string) (discovery.Page, error) {
	out, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: optional(token), MaxResults: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("DescribeInstances", err)
	}

	var page discovery.Page
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			id := aws.ToString(inst.InstanceId)
			n := newNode(models.TypeEC2, id, nameTag(inst.Tags, "ec2"), region)
			if inst.Placement != nil {
				n.Zone = aws.ToString(inst.Placement.AvailabilityZone)
			}
			if inst.State != nil {
				n.State = string(inst.State.Name)
			}
			instanceType := string(inst.InstanceType)
			n.CostEstimate = EstimateMonthlyCost(models.TypeEC2, instanceType)
			n.Configuration[models.ConfigInstanceType] = instanceType
			n.Configuration[models.ConfigVPCID] = aws.ToString(inst.VpcId)
			n.Configuration[models.ConfigSubnetID] = aws.ToString(inst.SubnetId)
			if ip := aws.ToString(inst.PublicIpAddress); ip != "" {
				n.Configuration[models.ConfigPublicIP] = ip
			}
			if inst.Monitoring != nil {
				n.Configuration[models.ConfigMonitoring] = string(inst.Monitoring.State)
			}

			var groups []string
			for _, g := range inst.SecurityGroups {
				gid := aws.ToString(g.GroupId)
				groups = append(groups, gid)
				page.Edges = appendEdge(page.Edges, id, gid, models.RelationConnects)
			}
			n.Configuration[models.ConfigSecurityGroups] = strings.Join(groups, ",")
			page.Nodes = append(page.Nodes, n)
			page.Edges = appendEdge(page.Edges, id, aws.ToString(inst.SubnetId), models.RelationContains)
		}
	}
	page.NextToken = aws.ToString(out.NextToken)
	return page, nil
}

func listLoadBalancers(ctx context.Context, api ELBAPI, region, token string) (discovery.Page, error) {
	out, err := api.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{Marker: optional(token), PageSize: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("DescribeLoadBalancers", err)
	}

	var page discovery.Page
	for _, lb := range out.LoadBalancers {
		id := aws.ToString(lb.LoadBalancerArn)
		n := newNode(models.TypeELB, id, aws.ToString(lb.LoadBalancerName), region)
		if lb.State != nil {
			n.State = string(lb.State.Code)
		}
		n.CostEstimate = EstimateMonthlyCost(models.TypeELB, "")
		n.Configuration[models.ConfigScheme] = string(lb.Scheme)
		n.Configuration[models.ConfigVPCID] = aws.ToString(lb.VpcId)
		n.Configuration[models.ConfigSecurityGroups] = strings.Join(lb.SecurityGroups, ",")
		page.Nodes = append(page.Nodes, n)

		for _, az := range lb.AvailabilityZones {
			page.Edges = appendEdge(page.Edges, id, aws.ToString(az.SubnetId), models.RelationContains)
		}
		for _, g := range lb.SecurityGroups {
			page.Edges = appendEdge(page.Edges, id, g, models.RelationConnects)
		}
	}
	page.NextToken = aws.ToString(out.NextMarker)
	return page, nil
}

func listDatabases(ctx context.Context, api RDSAPI, region, token string) (discovery.Page, error) {
	out, err := api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: optional(token), MaxRecords: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("DescribeDBInstances", err)
	}

	var page discovery.Page
	for _, db := range out.DBInstances {
		id := aws.ToString(db.DBInstanceIdentifier)
		n := newNode(models.TypeRDS, id, id, region)
		n.Zone = aws.ToString(db.AvailabilityZone)
		n.State = aws.ToString(db.DBInstanceStatus)
		class := aws.ToString(db.DBInstanceClass)
		n.CostEstimate = EstimateMonthlyCost(models.TypeRDS, class)
		n.Configuration[models.ConfigInstanceClass] = class
		n.Configuration[models.ConfigPubliclyAccessible] = strconv.FormatBool(aws.ToBool(db.PubliclyAccessible))
		n.Configuration[models.ConfigStorageEncrypted] = strconv.FormatBool(aws.ToBool(db.StorageEncrypted))

		var groups []string
		for _, g := range db.VpcSecurityGroups {
			gid := aws.ToString(g.VpcSecurityGroupId)
			groups = append(groups, gid)
			page.Edges = appendEdge(page.Edges, id, gid, models.RelationConnects)
		}
		n.Configuration[models.ConfigSecurityGroups] = strings.Join(groups, ",")
		if db.DBSubnetGroup != nil {
			n.Configuration[models.ConfigVPCID] = aws.ToString(db.DBSubnetGroup.VpcId)
			for _, s := range db.DBSubnetGroup.Subnets {
				page.Edges = appendEdge(page.Edges, id, aws.ToString(s.SubnetIdentifier), models.RelationContains)
			}
		}
		page.Nodes = append(page.Nodes, n)
	}
	page.NextToken = aws.ToString(out.Marker)
	return page, nil
}

// listBuckets lists buckets once per account. Encryption and policy status
// are read from the bucket's own region.
func (p *Provider) listBuckets(ctx context.Context, api S3API, region, token string) (discovery.Page, error) {
	out, err := api.ListBuckets(ctx, &s3.ListBucketsInput{ContinuationToken: optional(token), MaxBuckets: aws.Int32(pageSize)})
	if err != nil {
		return discovery.Page{}, wrapError("ListBuckets", err)
	}

	var page discovery.Page
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		bucketRegion := aws.ToString(b.BucketRegion)
		if bucketRegion == "" {
			bucketRegion = region
		}
		n := newNode(models.TypeS3, name, name, bucketRegion)
		n.CostEstimate = EstimateMonthlyCost(models.TypeS3, "")

		regional := p.clients(bucketRegion).S3
		if regional == nil {
			regional = api
		}
		enc, err := bucketEncryption(ctx, regional, name)
		if err != nil {
			return discovery.Page{}, err
		}
		n.Configuration[models.ConfigEncryption] = enc
		public, err := bucketPublic(ctx, regional, name)
		if err != nil {
			return discovery.Page{}, err
		}
		n.Configuration[models.ConfigPublic] = strconv.FormatBool(public)
		page.Nodes = append(page.Nodes, n)
	}
	page.NextToken = aws.ToString(out.ContinuationToken)
	return page, nil
}

func bucketEncryption(ctx context.Context, api S3API, bucket string) (string, error) {
	out, err := api.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(bucket)})
	if err != nil {
		if errorCode(err) == codeNoEncryption {
			return models.EncryptionNone, nil
		}
		return "", wrapError("GetBucketEncryption "+bucket, err)
	}
	if out.ServerSideEncryptionConfiguration != nil {
		for _, r := range out.ServerSideEncryptionConfiguration.Rules {
			if r.ApplyServerSideEncryptionByDefault != nil {
				return string(r.ApplyServerSideEncryptionByDefault.SSEAlgorithm), nil
			}
		}
	}
	return models.EncryptionNone, nil
}

func bucketPublic(ctx context.Context, api S3API, bucket string) (bool, error) {
	out, err := api.GetBucketPolicyStatus(ctx, &s3.GetBucketPolicyStatusInput{Bucket: aws.String(bucket)})
	if err != nil {
		if errorCode(err) == codeNoPolicy {
			return false, nil
		}
		return false, wrapError("GetBucketPolicyStatus "+bucket, err)
	}
	return out.PolicyStatus != nil && aws.ToBool(out.PolicyStatus.IsPublic), nil
}

func newNode(t models.ResourceType, providerID, name, region string) models.ResourceNode {
	return models.ResourceNode{
		Provider:      models.ProviderAWS,
		ProviderID:    providerID,
		Type:          t,
		Name:          name,
		Region:        region,
		Source:        models.SourceDiscovered,
		Configuration: make(map[string]string),
	}
}

// appendEdge skips edges with a missing endpoint
func appendEdge(edges []models.ResourceEdge, from, to string, rel models.RelationType) []models.ResourceEdge {
	if from == "" || to == "" {
		return edges
	}
	return append(edges, models.ResourceEdge{FromProviderID: from, ToProviderID: to, Relation: rel})
}

// nameTag returns the Name tag, or fallback when it is missing or blank
func nameTag(tags []ec2types.Tag, fallback string) string {
	for _, t := range tags {
		if strings.EqualFold(aws.ToString(t.Key), "Name") {
			if v := strings.TrimSpace(aws.ToString(t.Value)); v != "" {
				return v
			}
		}
	}
	return fallback
}

// ingressCIDRs collects every IPv4 and IPv6 source range, sorted and unique
func ingressCIDRs(perms []ec2types.IpPermission) []string {
	seen := make(map[string]struct{})
	for _, p := range perms {
		for _, r := range p.IpRanges {
			if c := aws.ToString(r.CidrIp); c != "" {
				seen[c] = struct{}{}
			}
		}
		for _, r := range p.Ipv6Ranges {
			if c := aws.ToString(r.CidrIpv6); c != "" {
				seen[c] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func optional(token string) *string {
	if token == "" {
		return nil
	}
	return aws.String(token)
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// wrapError classifies an SDK failure as a provider error. Context errors
// pass through so callers can tell cancellation from provider failure.
func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s: %s", apperr.ErrProvider, op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrProvider, op, err)
}
