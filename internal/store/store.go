// Package store defines the repositories behind every stateful component
// and provides an in-memory implementation. A SQLite implementation lives
// in the sqlite subpackage.
package store

import (
	"context"

	"github.com/yourusername/cloudcity/internal/models"
)

// Projects persists projects. Delete cascades to everything the project owns.
type Projects interface {
	Create(ctx context.Context, p models.Project) error
	Get(ctx context.Context, id string) (models.Project, error)
	Update(ctx context.Context, p models.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Project, error)
}

// Graph persists nodes and edges. It performs no merging itself; the graph
// package serializes read-modify-write per project.
type Graph interface {
	GetNode(ctx context.Context, projectID, providerID string) (models.ResourceNode, bool, error)
	PutNode(ctx context.Context, n models.ResourceNode) error
	ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error)
	GetEdge(ctx context.Context, projectID, key string) (models.ResourceEdge, bool, error)
	PutEdge(ctx context.Context, e models.ResourceEdge) error
	ListEdges(ctx context.Context, projectID string) ([]models.ResourceEdge, error)
}

// Runs persists discovery runs
type Runs interface {
	Create(ctx context.Context, r models.DiscoveryRun) error
	Update(ctx context.Context, r models.DiscoveryRun) error
	Get(ctx context.Context, projectID, id string) (models.DiscoveryRun, error)
	List(ctx context.Context, projectID string) ([]models.DiscoveryRun, error)
}

// Exports persists Terraform exports
type Exports interface {
	Create(ctx context.Context, e models.TerraformExport) error
	Update(ctx context.Context, e models.TerraformExport) error
	Get(ctx context.Context, projectID, id string) (models.TerraformExport, error)
	List(ctx context.Context, projectID string) ([]models.TerraformExport, error)
}

// Snapshots persists cost snapshots
type Snapshots interface {
	Append(ctx context.Context, s models.CostSnapshot) error
	Latest(ctx context.Context, projectID string) (models.CostSnapshot, bool, error)
}

// Audit persists the append-only audit trail
type Audit interface {
	Append(ctx context.Context, e models.AuditEvent) error
	List(ctx context.Context, projectID string) ([]models.AuditEvent, error)
}

// Store bundles every repository behind one backend
type Store interface {
	Projects() Projects
	Graph() Graph
	Runs() Runs
	Exports() Exports
	Snapshots() Snapshots
	Audit() Audit
	Close() error
}
