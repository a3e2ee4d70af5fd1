package store

import (
	"context"
	"sort"
	"sync"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
)

// Memory keeps everything in process. All repositories share one lock so a
// project delete removes owned records atomically.
type Memory struct {
	mu        sync.RWMutex
	projects  map[string]models.Project
	nodes     map[string]map[string]models.ResourceNode // project -> provider id
	edges     map[string]map[string]models.ResourceEdge // project -> edge key
	runs      map[string]map[string]models.DiscoveryRun
	exports   map[string]map[string]models.TerraformExport
	snapshots map[string][]models.CostSnapshot
	audit     map[string][]models.AuditEvent
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		projects:  make(map[string]models.Project),
		nodes:     make(map[string]map[string]models.ResourceNode),
		edges:     make(map[string]map[string]models.ResourceEdge),
		runs:      make(map[string]map[string]models.DiscoveryRun),
		exports:   make(map[string]map[string]models.TerraformExport),
		snapshots: make(map[string][]models.CostSnapshot),
		audit:     make(map[string][]models.AuditEvent),
	}
}

func (m *Memory) Projects() Projects   { return memProjects{m} }
func (m *Memory) Graph() Graph         { return memGraph{m} }
func (m *Memory) Runs() Runs           { return memRuns{m} }
func (m *Memory) Exports() Exports     { return memExports{m} }
func (m *Memory) Snapshots() Snapshots { return memSnapshots{m} }
func (m *Memory) Audit() Audit         { return memAudit{m} }
func (m *Memory) Close() error         { return nil }

// requireProject mirrors the foreign keys of the SQLite schema; callers hold mu
func (m *Memory) requireProject(id string) error {
	if _, ok := m.projects[id]; !ok {
		return apperr.NotFound("project", id)
	}
	return nil
}

type memProjects struct{ m *Memory }

func (r memProjects) Create(_ context.Context, p models.Project) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.projects[p.ID]; ok {
		return apperr.Conflict("project %s already exists", p.ID)
	}
	r.m.projects[p.ID] = p
	return nil
}

func (r memProjects) Get(_ context.Context, id string) (models.Project, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.projects[id]
	if !ok {
		return models.Project{}, apperr.NotFound("project", id)
	}
	return p, nil
}

func (r memProjects) Update(_ context.Context, p models.Project) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.projects[p.ID]; !ok {
		return apperr.NotFound("project", p.ID)
	}
	r.m.projects[p.ID] = p
	return nil
}

func (r memProjects) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.projects[id]; !ok {
		return apperr.NotFound("project", id)
	}
	delete(r.m.projects, id)
	delete(r.m.nodes, id)
	delete(r.m.edges, id)
	delete(r.m.runs, id)
	delete(r.m.exports, id)
	delete(r.m.snapshots, id)
	delete(r.m.audit, id)
	return nil
}

func (r memProjects) List(_ context.Context) ([]models.Project, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]models.Project, 0, len(r.m.projects))
	for _, p := range r.m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memGraph struct{ m *Memory }

func (r memGraph) GetNode(_ context.Context, projectID, providerID string) (models.ResourceNode, bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	n, ok := r.m.nodes[projectID][providerID]
	if ok {
		n.Configuration = copyMap(n.Configuration)
	}
	return n, ok, nil
}

func (r memGraph) PutNode(_ context.Context, n models.ResourceNode) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.requireProject(n.ProjectID); err != nil {
		return err
	}
	if r.m.nodes[n.ProjectID] == nil {
		r.m.nodes[n.ProjectID] = make(map[string]models.ResourceNode)
	}
	n.Configuration = copyMap(n.Configuration)
	r.m.nodes[n.ProjectID][n.ProviderID] = n
	return nil
}

func (r memGraph) ListNodes(_ context.Context, projectID string) ([]models.ResourceNode, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]models.ResourceNode, 0, len(r.m.nodes[projectID]))
	for _, n := range r.m.nodes[projectID] {
		n.Configuration = copyMap(n.Configuration)
		out = append(out, n)
	}
	return out, nil
}

func (r memGraph) GetEdge(_ context.Context, projectID, key string) (models.ResourceEdge, bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	e, ok := r.m.edges[projectID][key]
	return e, ok, nil
}

func (r memGraph) PutEdge(_ context.Context, e models.ResourceEdge) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.requireProject(e.ProjectID); err != nil {
		return err
	}
	if r.m.edges[e.ProjectID] == nil {
		r.m.edges[e.ProjectID] = make(map[string]models.ResourceEdge)
	}
	r.m.edges[e.ProjectID][e.Key()] = e
	return nil
}

func (r memGraph) ListEdges(_ context.Context, projectID string) ([]models.ResourceEdge, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]models.ResourceEdge, 0, len(r.m.edges[projectID]))
	for _, e := range r.m.edges[projectID] {
		out = append(out, e)
	}
	return out, nil
}

type memRuns struct{ m *Memory }

func (r memRuns) Create(_ context.Context, run models.DiscoveryRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.requireProject(run.ProjectID); err != nil {
		return err
	}
	if r.m.runs[run.ProjectID] == nil {
		r.m.runs[run.ProjectID] = make(map[string]models.DiscoveryRun)
	}
	run.Regions = append([]string(nil), run.Regions...)
	r.m.runs[run.ProjectID][run.ID] = run
	return nil
}

func (r memRuns) Update(_ context.Context, run models.DiscoveryRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.runs[run.ProjectID][run.ID]; !ok {
		return apperr.NotFound("discovery run", run.ID)
	}
	run.Regions = append([]string(nil), run.Regions...)
	r.m.runs[run.ProjectID][run.ID] = run
	return nil
}

func (r memRuns) Get(_ context.Context, projectID, id string) (models.DiscoveryRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	run, ok := r.m.runs[projectID][id]
	if !ok {
		return models.DiscoveryRun{}, apperr.NotFound("discovery run", id)
	}
	run.Regions = append([]string(nil), run.Regions...)
	return run, nil
}

func (r memRuns) List(_ context.Context, projectID string) ([]models.DiscoveryRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]models.DiscoveryRun, 0, len(r.m.runs[projectID]))
	for _, run := range r.m.runs[projectID] {
		run.Regions = append([]string(nil), run.Regions...)
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memExports struct{ m *Memory }

func (r memExports) Create(_ context.Context, e models.TerraformExport) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.requireProject(e.ProjectID); err != nil {
		return err
	}
	if r.m.exports[e.ProjectID] == nil {
		r.m.exports[e.ProjectID] = make(map[string]models.TerraformExport)
	}
	r.m.exports[e.ProjectID][e.ID] = e
	return nil
}

func (r memExports) Update(_ context.Context, e models.TerraformExport) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.exports[e.ProjectID][e.ID]; !ok {
		return apperr.NotFound("terraform export", e.ID)
	}
	r.m.exports[e.ProjectID][e.ID] = e
	return nil
}

func (r memExports) Get(_ context.Context, projectID, id string) (models.TerraformExport, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	e, ok := r.m.exports[projectID][id]
	if !ok {
		return models.TerraformExport{}, apperr.NotFound("terraform export", id)
	}
	return e, nil
}

func (r memExports) List(_ context.Context, projectID string) ([]models.TerraformExport, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]models.TerraformExport, 0, len(r.m.exports[projectID]))
	for _, e := range r.m.exports[projectID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memSnapshots struct{ m *Memory }

func (r memSnapshots) Append(_ context.Context, s models.CostSnapshot) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.requireProject(s.ProjectID); err != nil {
		return err
	}
	r.m.snapshots[s.ProjectID] = append(r.m.snapshots[s.ProjectID], s)
	return nil
}

func (r memSnapshots) Latest(_ context.Context, projectID string) (models.CostSnapshot, bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	list := r.m.snapshots[projectID]
	if len(list) == 0 {
		return models.CostSnapshot{}, false, nil
	}
	return list[len(list)-1], true, nil
}

type memAudit struct{ m *Memory }

func (r memAudit) Append(_ context.Context, e models.AuditEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.requireProject(e.ProjectID); err != nil {
		return err
	}
	r.m.audit[e.ProjectID] = append(r.m.audit[e.ProjectID], e)
	return nil
}

func (r memAudit) List(_ context.Context, projectID string) ([]models.AuditEvent, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return append([]models.AuditEvent(nil), r.m.audit[projectID]...), nil
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
