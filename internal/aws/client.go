// Package aws enumerates AWS resources into resource graph pages. Each API
// the provider calls sits behind a narrow interface so tests can substitute
// testify mocks for the SDK clients.
package aws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// EC2API is the subset of the EC2 API used for network and instance listing
type EC2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// ELBAPI is the subset of the ELBv2 API used for load balancer listing
type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
}

// RDSAPI is the subset of the RDS API used for database listing
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// S3API is the subset of the S3 API used for bucket listing
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	GetBucketPolicyStatus(ctx context.Context, params *s3.GetBucketPolicyStatusInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error)
}

// STSAPI assumes cross-account roles and verifies which account a set of
// credentials belongs to
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Clients are the API clients for one region
type Clients struct {
	EC2 EC2API
	ELB ELBAPI
	RDS RDSAPI
	S3  S3API
}

// ClientSource returns the clients for a region
type ClientSource func(region string) Clients

// sdkClients builds SDK clients from cfg once per region
type sdkClients struct {
	cfg aws.Config

	mu      sync.Mutex
	regions map[string]Clients
}

func newSDKClients(cfg aws.Config) *sdkClients {
	return &sdkClients{cfg: cfg, regions: make(map[string]Clients)}
}

func (c *sdkClients) forRegion(region string) Clients {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.regions[region]; ok {
		return cl
	}
	cfg := c.cfg.Copy()
	cfg.Region = region
	cl := Clients{
		EC2: ec2.NewFromConfig(cfg),
		ELB: elbv2.NewFromConfig(cfg),
		RDS: rds.NewFromConfig(cfg),
		S3:  s3.NewFromConfig(cfg),
	}
	c.regions[region] = cl
	return cl
}
