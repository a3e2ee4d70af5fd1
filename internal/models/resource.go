package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderAWS is the only provider tag discovery currently understands.
const ProviderAWS = "AWS"

// UnknownRegion replaces a blank region on every stored node.
const UnknownRegion = "unknown"

// ResourceType identifies the kind of cloud resource a node models
type ResourceType string

const (
	TypeRegion ResourceType = "REGION"
	TypeVPC    ResourceType = "VPC"
	TypeSubnet ResourceType = "SUBNET"
	TypeSG     ResourceType = "SG"
	TypeEC2    ResourceType = "EC2"
	TypeRDS    ResourceType = "RDS"
	TypeELB    ResourceType = "ELB"
	TypeS3     ResourceType = "S3"
)

// ResourceTypes lists every known type in declaration order.
var ResourceTypes = []ResourceType{
	TypeRegion, TypeVPC, TypeSubnet, TypeSG, TypeEC2, TypeRDS, TypeELB, TypeS3,
}

// Valid reports whether t is a known resource type
func (t ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RelationType is the kind of a directed edge between two nodes
type RelationType string

const (
	// RelationContains points from a resource to the network boundary that holds it
	RelationContains RelationType = "CONTAINS"
	// RelationConnects points from a resource to something it talks to or is guarded by
	RelationConnects RelationType = "CONNECTS"
	// RelationDependsOn points from a resource to something it needs to exist
	RelationDependsOn RelationType = "DEPENDS_ON"
)

// Valid reports whether r is a known relation
func (r RelationType) Valid() bool {
	switch r {
	case RelationContains, RelationConnects, RelationDependsOn:
		return true
	}
	return false
}

// NodeSource records how a node entered the graph
type NodeSource string

const (
	SourceDiscovered NodeSource = "DISCOVERED"
	SourceManual     NodeSource = "MANUAL"
)

// ResourceNode is a single resource in a project's graph. ProviderID is the
// natural key: a later upsert with the same (ProjectID, ProviderID) merges
// into the existing node and keeps its ID and CreatedAt.
type ResourceNode struct {
	ID             string            `json:"id" yaml:"id"`
	ProjectID      string            `json:"projectId" yaml:"projectId"`
	Provider       string            `json:"provider" yaml:"provider"`
	ProviderID     string            `json:"providerId" yaml:"providerId"`
	Type           ResourceType      `json:"type" yaml:"type"`
	Name           string            `json:"name" yaml:"name"`
	Region         string            `json:"region" yaml:"region"`
	Zone           string            `json:"zone,omitempty" yaml:"zone,omitempty"`
	State          string            `json:"state,omitempty" yaml:"state,omitempty"`
	Source         NodeSource        `json:"source" yaml:"source"`
	CostEstimate   decimal.Decimal   `json:"costEstimate" yaml:"costEstimate"`
	Configuration  map[string]string `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	DiscoveryRunID string            `json:"discoveryRunId,omitempty" yaml:"discoveryRunId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

// ResourceEdge is a directed relation between two nodes, addressed by their
// provider ids so a page can reference resources that arrive in a later page.
type ResourceEdge struct {
	ID             string       `json:"id" yaml:"id"`
	ProjectID      string       `json:"projectId" yaml:"projectId"`
	FromProviderID string       `json:"fromProviderId" yaml:"fromProviderId"`
	ToProviderID   string       `json:"toProviderId" yaml:"toProviderId"`
	Relation       RelationType `json:"relation" yaml:"relation"`
	DiscoveryRunID string       `json:"discoveryRunId,omitempty" yaml:"discoveryRunId,omitempty"`
	CreatedAt      time.Time    `json:"createdAt" yaml:"createdAt"`
}

// Key identifies an edge within its project; edges are a set over this key.
func (e ResourceEdge) Key() string {
	return e.FromProviderID + "|" + string(e.Relation) + "|" + e.ToProviderID
}
