package discovery

import (
	"context"

	"github.com/yourusername/cloudcity/internal/models"
)

// Page is one listing response from a provider. Edges may reference
// provider ids that arrive in later pages or never arrive at all.
type Page struct {
	Nodes     []models.ResourceNode
	Edges     []models.ResourceEdge
	NextToken string
}

// Provider enumerates one resource type in one region, a page at a time.
// An empty token requests the first page; an empty NextToken ends the listing.
type Provider interface {
	List(ctx context.Context, region string, rt models.ResourceType, token string) (Page, error)
}

// Target identifies the account a run enumerates
type Target struct {
	RunID      string
	AccountID  string
	RoleARN    string
	ExternalID string
}

// ProviderFactory builds a provider scoped to one run, assuming the run's
// role when one is given.
type ProviderFactory interface {
	ForRun(ctx context.Context, target Target) (Provider, error)
}

// ProviderFactoryFunc adapts a function to ProviderFactory
type ProviderFactoryFunc func(ctx context.Context, target Target) (Provider, error)

// ForRun calls f
func (f ProviderFactoryFunc) ForRun(ctx context.Context, target Target) (Provider, error) {
	return f(ctx, target)
}

// RegionalTypes are listed in every region, in this order
var RegionalTypes = []models.ResourceType{
	models.TypeVPC,
	models.TypeSubnet,
	models.TypeSG,
	models.TypeEC2,
	models.TypeELB,
	models.TypeRDS,
}

// GlobalTypes are listed once, in the first region
var GlobalTypes = []models.ResourceType{models.TypeS3}
