package terraform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tfjson "github.com/hashicorp/terraform-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
)

func topology() ([]models.ResourceNode, []models.ResourceEdge) {
	node := func(id string, rt models.ResourceType, name string, cfg map[string]string) models.ResourceNode {
		return models.ResourceNode{ProviderID: id, Type: rt, Name: name, Region: "us-east-1", Configuration: cfg}
	}
	edge := func(from, to string, rel models.RelationType) models.ResourceEdge {
		return models.ResourceEdge{FromProviderID: from, ToProviderID: to, Relation: rel}
	}
	nodes := []models.ResourceNode{
		node("vpc-1", models.TypeVPC, "core", map[string]string{models.ConfigCIDRBlock: "10.0.0.0/16"}),
		node("subnet-b", models.TypeSubnet, "private", nil),
		node("subnet-a", models.TypeSubnet, "public", map[string]string{models.ConfigCIDRBlock: "10.0.1.0/24"}),
		node("sg-1", models.TypeSG, "web", nil),
		node("i-1", models.TypeEC2, "app", map[string]string{models.ConfigInstanceType: "t3.medium", models.ConfigMonitoring: models.MonitoringDisabled}),
		node("db-1", models.TypeRDS, "orders", map[string]string{models.ConfigInstanceClass: "db.t3.medium", models.ConfigPubliclyAccessible: "false", models.ConfigStorageEncrypted: "true"}),
		node("lb-1", models.TypeELB, "edge", map[string]string{models.ConfigScheme: models.SchemeInternetFacing}),
		node("bucket", models.TypeS3, "assets", nil),
	}
	edges := []models.ResourceEdge{
		edge("subnet-a", "vpc-1", models.RelationContains),
		edge("subnet-b", "vpc-1", models.RelationContains),
		edge("sg-1", "vpc-1", models.RelationContains),
		edge("i-1", "subnet-a", models.RelationContains),
		edge("i-1", "sg-1", models.RelationConnects),
		edge("lb-1", "subnet-a", models.RelationContains),
		edge("lb-1", "subnet-b", models.RelationContains),
		edge("lb-1", "sg-1", models.RelationConnects),
		edge("db-1", "sg-1", models.RelationConnects),
	}
	return nodes, edges
}

func TestFileRenderer_Render(t *testing.T) {
	dir := t.TempDir()
	nodes, edges := topology()

	plan, err := NewFileRenderer(dir, logger.Nop()).Render(context.Background(), "p1", "e1", nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "p1", "e1"), plan.Dir)
	assert.Equal(t, filepath.Join(plan.Dir, MainFile), plan.File)
	assert.FileExists(t, plan.File)
	assert.Equal(t, map[string]int{"vpc": 1, "subnet": 2, "sg": 1, "ec2": 1, "rds": 1, "elb": 1, "s3": 1}, plan.ResourceCounts)

	require.Len(t, plan.Changes, 8)
	for _, c := range plan.Changes {
		assert.Equal(t, tfjson.ManagedResourceMode, c.Mode)
		assert.True(t, c.Change.Actions.Create(), c.Address)
	}
	assert.Equal(t, "aws_vpc.vpc_1", plan.Changes[0].Address)

	cfg, err := ParseConfig(plan.File)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("us-east-1"), cfg.Variables["region"])
	assert.Contains(t, cfg.Variables, "ami_id")
	assert.Contains(t, cfg.Variables, "db_password")

	// subnets sort by provider id: subnet-a is subnet_1
	subnet, ok := cfg.Resource("aws_subnet.subnet_1")
	require.True(t, ok)
	assert.Equal(t, cty.StringVal("10.0.1.0/24"), subnet.Attributes["cidr_block"])
	assert.Equal(t, []string{"aws_vpc.vpc_1"}, subnet.References)

	subnet2, ok := cfg.Resource("aws_subnet.subnet_2")
	require.True(t, ok)
	assert.Equal(t, cty.StringVal("10.1.2.0/24"), subnet2.Attributes["cidr_block"])

	ec2, ok := cfg.Resource("aws_instance.ec2_1")
	require.True(t, ok)
	assert.Equal(t, cty.StringVal("t3.medium"), ec2.Attributes["instance_type"])
	assert.Equal(t, cty.False, ec2.Attributes["monitoring"])
	assert.Equal(t, []string{"aws_security_group.sg_1", "aws_subnet.subnet_1"}, ec2.References)

	lb, ok := cfg.Resource("aws_lb.elb_1")
	require.True(t, ok)
	assert.Equal(t, cty.False, lb.Attributes["internal"])
	assert.Equal(t, []string{"aws_security_group.sg_1", "aws_subnet.subnet_1", "aws_subnet.subnet_2"}, lb.References)

	db, ok := cfg.Resource("aws_db_instance.rds_1")
	require.True(t, ok)
	assert.Equal(t, cty.StringVal("db.t3.medium"), db.Attributes["instance_class"])
	assert.Equal(t, cty.True, db.Attributes["storage_encrypted"])

	bucket, ok := cfg.Resource("aws_s3_bucket.s3_1")
	require.True(t, ok)
	assert.Equal(t, cty.StringVal("assets"), bucket.Attributes["bucket"])

	src, err := os.ReadFile(plan.File)
	require.NoError(t, err)
	assert.Contains(t, string(src), "var.db_password")
	assert.Contains(t, string(src), `"hashicorp/aws"`)
}

func TestFileRenderer_RejectsInvalidTopology(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir, logger.Nop())

	_, err := r.Render(context.Background(), "p1", "e1", []models.ResourceNode{{ProviderID: "i-1", Type: models.TypeEC2}}, nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.NoDirExists(t, filepath.Join(dir, "p1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	nodes, edges := topology()
	_, err = r.Render(ctx, "p1", "e1", nodes, edges)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileRenderer_ExportsKeepTheirOwnArtifact(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir, logger.Nop())
	nodes, edges := topology()

	first, err := r.Render(context.Background(), "p1", "e1", nodes, edges)
	require.NoError(t, err)
	before, err := os.ReadFile(first.File)
	require.NoError(t, err)

	more := append(append([]models.ResourceNode{}, nodes...), models.ResourceNode{
		ProviderID: "bucket-2", Type: models.TypeS3, Name: "logs", Region: "us-east-1",
	})
	second, err := r.Render(context.Background(), "p1", "e2", more, edges)
	require.NoError(t, err)

	assert.NotEqual(t, first.Dir, second.Dir)
	after, err := os.ReadFile(first.File)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Len(t, second.Changes, len(first.Changes)+1)

	_, err = r.Render(context.Background(), "p1", "", nodes, edges)
	assert.Error(t, err)
}

func TestGenerate_Deterministic(t *testing.T) {
	nodes, edges := topology()
	a, _ := Generate(nodes, edges)

	reversed := make([]models.ResourceNode, len(nodes))
	for i, n := range nodes {
		reversed[len(nodes)-1-i] = n
	}
	b, addrs := Generate(reversed, edges)

	assert.Equal(t, string(a), string(b))
	assert.Len(t, addrs, len(nodes))
}

func TestGenerate_FallsBackToFirstVPC(t *testing.T) {
	nodes := []models.ResourceNode{
		{ProviderID: "vpc-1", Type: models.TypeVPC, Name: "core"},
		{ProviderID: "subnet-1", Type: models.TypeSubnet, Name: "orphan"},
		{ProviderID: "i-1", Type: models.TypeEC2, Name: "loose"},
	}
	src, _ := Generate(nodes, nil)
	cfg, err := parseConfig(src, MainFile)
	require.NoError(t, err)

	subnet, ok := cfg.Resource("aws_subnet.subnet_1")
	require.True(t, ok)
	assert.Equal(t, []string{"aws_vpc.vpc_1"}, subnet.References)
	assert.Equal(t, cty.StringVal("10.1.0.0/16"), cfg.Resources[0].Attributes["cidr_block"])

	ec2, ok := cfg.Resource("aws_instance.ec2_1")
	require.True(t, ok)
	assert.Empty(t, ec2.References)
	assert.Equal(t, cty.StringVal("t3.micro"), ec2.Attributes["instance_type"])
}
