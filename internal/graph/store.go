// Package graph maintains each project's resource graph. Upserts merge by
// the provider resource id; a per-project lock makes every upsert atomic
// with respect to other writers of the same project.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

// Store is the resource graph over a store.Graph backend
type Store struct {
	repo store.Graph

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewStore creates a graph store over repo
func NewStore(repo store.Graph) *Store {
	return &Store{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (s *Store) lock(projectID string) func() {
	s.mu.Lock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// UpsertNode inserts n or merges it into the node with the same provider id.
// Name, region, zone, state, cost and configuration take the incoming values;
// ID and CreatedAt of an existing node are kept.
func (s *Store) UpsertNode(ctx context.Context, n models.ResourceNode) (models.ResourceNode, error) {
	if n.ProjectID == "" {
		return models.ResourceNode{}, apperr.Validation("node project id is required")
	}
	if strings.TrimSpace(n.ProviderID) == "" {
		return models.ResourceNode{}, apperr.Validation("node provider id is required")
	}
	if !n.Type.Valid() {
		return models.ResourceNode{}, apperr.Validation("unknown resource type %q", n.Type)
	}

	n.Region = strings.TrimSpace(n.Region)
	if n.Region == "" {
		n.Region = models.UnknownRegion
	}
	if n.CostEstimate.IsNegative() {
		n.CostEstimate = decimal.Zero
	}
	if n.Provider == "" {
		n.Provider = models.ProviderAWS
	}
	if n.Source == "" {
		n.Source = models.SourceDiscovered
	}

	unlock := s.lock(n.ProjectID)
	defer unlock()

	existing, ok, err := s.repo.GetNode(ctx, n.ProjectID, n.ProviderID)
	if err != nil {
		return models.ResourceNode{}, fmt.Errorf("load node %s: %w", n.ProviderID, err)
	}

	now := s.now().UTC()
	if ok {
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
	} else {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	if err := s.repo.PutNode(ctx, n); err != nil {
		return models.ResourceNode{}, err
	}
	return n, nil
}

// UpsertEdge adds e unless an edge with the same (from, relation, to) exists,
// in which case the stored edge is returned unchanged.
func (s *Store) UpsertEdge(ctx context.Context, e models.ResourceEdge) (models.ResourceEdge, error) {
	if e.ProjectID == "" {
		return models.ResourceEdge{}, apperr.Validation("edge project id is required")
	}
	if e.FromProviderID == "" || e.ToProviderID == "" {
		return models.ResourceEdge{}, apperr.Validation("edge endpoints are required")
	}
	if e.FromProviderID == e.ToProviderID {
		return models.ResourceEdge{}, apperr.Validation("edge %s points at itself", e.FromProviderID)
	}
	if !e.Relation.Valid() {
		return models.ResourceEdge{}, apperr.Validation("unknown relation %q", e.Relation)
	}

	unlock := s.lock(e.ProjectID)
	defer unlock()

	existing, ok, err := s.repo.GetEdge(ctx, e.ProjectID, e.Key())
	if err != nil {
		return models.ResourceEdge{}, fmt.Errorf("load edge %s: %w", e.Key(), err)
	}
	if ok {
		return existing, nil
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = s.now().UTC()
	if err := s.repo.PutEdge(ctx, e); err != nil {
		return models.ResourceEdge{}, err
	}
	return e, nil
}

// ListNodes returns the project's nodes ordered by type, name and provider id
func (s *Store) ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error) {
	nodes, err := s.repo.ListNodes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ProviderID < b.ProviderID
	})
	return nodes, nil
}

// ListEdges returns the project's edges ordered by their key
func (s *Store) ListEdges(ctx context.Context, projectID string) ([]models.ResourceEdge, error) {
	edges, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })
	return edges, nil
}

// TotalCost sums the cost estimate of every node in the project
func (s *Store) TotalCost(ctx context.Context, projectID string) (decimal.Decimal, error) {
	nodes, err := s.repo.ListNodes(ctx, projectID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list nodes: %w", err)
	}
	total := decimal.Zero
	for _, n := range nodes {
		total = total.Add(n.CostEstimate)
	}
	return total, nil
}

// Forget drops the per-project lock once a project is deleted
func (s *Store) Forget(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, projectID)
}
