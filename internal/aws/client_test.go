package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/aws/testutils"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
)

type mocks struct {
	ec2 *testutils.MockEC2API
	elb *testutils.MockELBAPI
	rds *testutils.MockRDSAPI
	s3  *testutils.MockS3API
}

func newTestProvider() (*Provider, mocks) {
	m := mocks{
		ec2: new(testutils.MockEC2API),
		elb: new(testutils.MockELBAPI),
		rds: new(testutils.MockRDSAPI),
		s3:  new(testutils.MockS3API),
	}
	clients := func(string) Clients {
		return Clients{EC2: m.ec2, ELB: m.elb, RDS: m.rds, S3: m.s3}
	}
	return NewProvider(clients, nil, logger.Nop()), m
}

func TestList_VPCsUseNameTagWithFallback(t *testing.T) {
	p, m := newTestProvider()
	m.ec2.On("DescribeVpcs", mock.Anything, mock.MatchedBy(func(in *ec2.DescribeVpcsInput) bool {
		return in.NextToken == nil
	})).Return(&ec2.DescribeVpcsOutput{
		Vpcs: []ec2types.Vpc{
			{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("10.0.0.0/16"), State: ec2types.VpcStateAvailable,
				Tags: []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("main")}}},
			{VpcId: aws.String("vpc-2"), Tags: []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("  ")}}},
		},
		NextToken: aws.String("next"),
	}, nil)

	page, err := p.List(context.Background(), "us-east-1", models.TypeVPC, "")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 2)
	assert.Equal(t, "main", page.Nodes[0].Name)
	assert.Equal(t, "vpc", page.Nodes[1].Name)
	assert.Equal(t, "10.0.0.0/16", page.Nodes[0].Configuration[models.ConfigCIDRBlock])
	assert.Equal(t, "available", page.Nodes[0].State)
	assert.Equal(t, "us-east-1", page.Nodes[0].Region)
	assert.Equal(t, "next", page.NextToken)
	m.ec2.AssertExpectations(t)
}

func TestList_PassesToken(t *testing.T) {
	p, m := newTestProvider()
	m.ec2.On("DescribeSubnets", mock.Anything, mock.MatchedBy(func(in *ec2.DescribeSubnetsInput) bool {
		return aws.ToString(in.NextToken) == "tok-2"
	})).Return(&ec2.DescribeSubnetsOutput{
		Subnets: []ec2types.Subnet{{
			SubnetId: aws.String("subnet-1"), VpcId: aws.String("vpc-1"), AvailabilityZone: aws.String("us-east-1a"),
		}},
	}, nil)

	page, err := p.List(context.Background(), "us-east-1", models.TypeSubnet, "tok-2")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "us-east-1a", page.Nodes[0].Zone)
	assert.Empty(t, page.NextToken)
	require.Len(t, page.Edges, 1)
	assert.Equal(t, models.ResourceEdge{FromProviderID: "subnet-1", ToProviderID: "vpc-1", Relation: models.RelationContains}, page.Edges[0])
}

func TestList_SecurityGroupIngress(t *testing.T) {
	p, m := newTestProvider()
	m.ec2.On("DescribeSecurityGroups", mock.Anything, mock.Anything).Return(&ec2.DescribeSecurityGroupsOutput{
		SecurityGroups: []ec2types.SecurityGroup{{
			GroupId: aws.String("sg-1"), GroupName: aws.String("web"), VpcId: aws.String("vpc-1"),
			IpPermissions: []ec2types.IpPermission{
				{IpRanges: []ec2types.IpRange{{CidrIp: aws.String("10.0.0.0/8")}, {CidrIp: aws.String("0.0.0.0/0")}}},
				{Ipv6Ranges: []ec2types.Ipv6Range{{CidrIpv6: aws.String("::/0")}}, IpRanges: []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}}},
			},
		}},
	}, nil)

	page, err := p.List(context.Background(), "eu-west-1", models.TypeSG, "")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "0.0.0.0/0,10.0.0.0/8,::/0", page.Nodes[0].Configuration[models.ConfigIngressOpenCIDR])
	assert.Equal(t, "web", page.Nodes[0].Name)
}

func TestList_InstancesPricedAndLinked(t *testing.T) {
	p, m := newTestProvider()
	m.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(&ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{
			Instances: []ec2types.Instance{{
				InstanceId:      aws.String("i-1"),
				InstanceType:    ec2types.InstanceTypeM5Large,
				SubnetId:        aws.String("subnet-1"),
				VpcId:           aws.String("vpc-1"),
				PublicIpAddress: aws.String("54.1.2.3"),
				Monitoring:      &ec2types.Monitoring{State: ec2types.MonitoringStateDisabled},
				State:           &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
				Placement:       &ec2types.Placement{AvailabilityZone: aws.String("us-east-1b")},
				SecurityGroups:  []ec2types.GroupIdentifier{{GroupId: aws.String("sg-1")}},
			}, {
				InstanceId:   aws.String("i-2"),
				InstanceType: ec2types.InstanceTypeC5Xlarge,
			}},
		}},
	}, nil)

	page, err := p.List(context.Background(), "us-east-1", models.TypeEC2, "")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 2)
	first := page.Nodes[0]
	assert.Equal(t, "70.08", first.CostEstimate.StringFixed(2))
	assert.Equal(t, "ec2", first.Name)
	assert.Equal(t, "running", first.State)
	assert.Equal(t, "us-east-1b", first.Zone)
	assert.Equal(t, "54.1.2.3", first.Configuration[models.ConfigPublicIP])
	assert.Equal(t, "disabled", first.Configuration[models.ConfigMonitoring])
	assert.Equal(t, "35.00", page.Nodes[1].CostEstimate.StringFixed(2))

	assert.Contains(t, page.Edges, models.ResourceEdge{FromProviderID: "i-1", ToProviderID: "subnet-1", Relation: models.RelationContains})
	assert.Contains(t, page.Edges, models.ResourceEdge{FromProviderID: "i-1", ToProviderID: "sg-1", Relation: models.RelationConnects})
	assert.Len(t, page.Edges, 2)
}

func TestList_LoadBalancersUseMarker(t *testing.T) {
	p, m := newTestProvider()
	m.elb.On("DescribeLoadBalancers", mock.Anything, mock.MatchedBy(func(in *elbv2.DescribeLoadBalancersInput) bool {
		return aws.ToString(in.Marker) == "m-1"
	})).Return(&elbv2.DescribeLoadBalancersOutput{
		LoadBalancers: []elbtypes.LoadBalancer{{
			LoadBalancerArn:   aws.String("arn:lb/1"),
			LoadBalancerName:  aws.String("public"),
			Scheme:            elbtypes.LoadBalancerSchemeEnumInternetFacing,
			AvailabilityZones: []elbtypes.AvailabilityZone{{SubnetId: aws.String("subnet-1")}, {SubnetId: aws.String("subnet-2")}},
		}},
		NextMarker: aws.String("m-2"),
	}, nil)

	page, err := p.List(context.Background(), "us-east-1", models.TypeELB, "m-1")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "m-2", page.NextToken)
	assert.Equal(t, models.SchemeInternetFacing, page.Nodes[0].Configuration[models.ConfigScheme])
	assert.Empty(t, page.Nodes[0].Configuration[models.ConfigSecurityGroups])
	assert.Equal(t, "16.43", page.Nodes[0].CostEstimate.StringFixed(2))
	assert.Len(t, page.Edges, 2)
}

func TestList_Databases(t *testing.T) {
	p, m := newTestProvider()
	m.rds.On("DescribeDBInstances", mock.Anything, mock.Anything).Return(&rds.DescribeDBInstancesOutput{
		DBInstances: []rdstypes.DBInstance{{
			DBInstanceIdentifier: aws.String("orders"),
			DBInstanceClass:      aws.String("db.t3.micro"),
			PubliclyAccessible:   aws.Bool(true),
			StorageEncrypted:     aws.Bool(false),
			DBSubnetGroup: &rdstypes.DBSubnetGroup{
				VpcId:   aws.String("vpc-1"),
				Subnets: []rdstypes.Subnet{{SubnetIdentifier: aws.String("subnet-9")}},
			},
		}},
	}, nil)

	page, err := p.List(context.Background(), "us-east-1", models.TypeRDS, "")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 1)
	n := page.Nodes[0]
	assert.Equal(t, "12.41", n.CostEstimate.StringFixed(2))
	assert.Equal(t, "true", n.Configuration[models.ConfigPubliclyAccessible])
	assert.Equal(t, "false", n.Configuration[models.ConfigStorageEncrypted])
	assert.Equal(t, []models.ResourceEdge{{FromProviderID: "orders", ToProviderID: "subnet-9", Relation: models.RelationContains}}, page.Edges)
}

func TestList_Buckets(t *testing.T) {
	p, m := newTestProvider()
	m.s3.On("ListBuckets", mock.Anything, mock.Anything).Return(&s3.ListBucketsOutput{
		Buckets: []s3types.Bucket{
			{Name: aws.String("logs"), BucketRegion: aws.String("eu-west-1")},
			{Name: aws.String("assets")},
		},
	}, nil)
	m.s3.On("GetBucketEncryption", mock.Anything, mock.MatchedBy(func(in *s3.GetBucketEncryptionInput) bool {
		return aws.ToString(in.Bucket) == "logs"
	})).Return(&s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{SSEAlgorithm: s3types.ServerSideEncryptionAes256},
			}},
		},
	}, nil)
	m.s3.On("GetBucketEncryption", mock.Anything, mock.MatchedBy(func(in *s3.GetBucketEncryptionInput) bool {
		return aws.ToString(in.Bucket) == "assets"
	})).Return(nil, testutils.APIError(codeNoEncryption, "no encryption"))
	m.s3.On("GetBucketPolicyStatus", mock.Anything, mock.MatchedBy(func(in *s3.GetBucketPolicyStatusInput) bool {
		return aws.ToString(in.Bucket) == "logs"
	})).Return(nil, testutils.APIError(codeNoPolicy, "no policy"))
	m.s3.On("GetBucketPolicyStatus", mock.Anything, mock.MatchedBy(func(in *s3.GetBucketPolicyStatusInput) bool {
		return aws.ToString(in.Bucket) == "assets"
	})).Return(&s3.GetBucketPolicyStatusOutput{PolicyStatus: &s3types.PolicyStatus{IsPublic: aws.Bool(true)}}, nil)

	page, err := p.List(context.Background(), "us-east-1", models.TypeS3, "")
	require.NoError(t, err)

	require.Len(t, page.Nodes, 2)
	assert.Equal(t, "eu-west-1", page.Nodes[0].Region)
	assert.Equal(t, "AES256", page.Nodes[0].Configuration[models.ConfigEncryption])
	assert.Equal(t, "false", page.Nodes[0].Configuration[models.ConfigPublic])
	assert.Equal(t, "us-east-1", page.Nodes[1].Region)
	assert.Equal(t, models.EncryptionNone, page.Nodes[1].Configuration[models.ConfigEncryption])
	assert.Equal(t, "true", page.Nodes[1].Configuration[models.ConfigPublic])
	assert.Equal(t, "2.30", page.Nodes[1].CostEstimate.StringFixed(2))
}

func TestList_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantIs     error
		wantSubstr string
	}{
		{
			name:       "access denied",
			err:        testutils.APIError("UnauthorizedOperation", "You are not authorized"),
			wantIs:     apperr.ErrProvider,
			wantSubstr: "DescribeVpcs: UnauthorizedOperation: You are not authorized",
		},
		{
			name:       "transport failure",
			err:        errors.New("connection reset"),
			wantIs:     apperr.ErrProvider,
			wantSubstr: "connection reset",
		},
		{
			name:   "deadline",
			err:    context.DeadlineExceeded,
			wantIs: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := newTestProvider()
			m.ec2.On("DescribeVpcs", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := p.List(context.Background(), "us-east-1", models.TypeVPC, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantIs), "got %v", err)
			if tt.wantSubstr != "" {
				assert.Contains(t, err.Error(), tt.wantSubstr)
			}
		})
	}
}

func TestList_UnsupportedType(t *testing.T) {
	p, _ := newTestProvider()
	_, err := p.List(context.Background(), "us-east-1", models.TypeRegion, "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
