// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

// Store is a store.Store backed by a single SQLite file
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Projects() store.Projects   { return projects{s.db} }
func (s *Store) Graph() store.Graph         { return graph{s.db} }
func (s *Store) Runs() store.Runs           { return runs{s.db} }
func (s *Store) Exports() store.Exports     { return exports{s.db} }
func (s *Store) Snapshots() store.Snapshots { return snapshots{s.db} }
func (s *Store) Audit() store.Audit         { return audit{s.db} }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type projects struct{ db *sql.DB }

func (r projects) Create(ctx context.Context, p models.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, monthly_budget, budget_warning_threshold, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, nullDecimal(p.MonthlyBudget), nullDecimal(p.BudgetWarningThreshold),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.ID, err)
	}
	return nil
}

func (r projects) Get(ctx context.Context, id string) (models.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, monthly_budget, budget_warning_threshold, created_at, updated_at
		 FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, apperr.NotFound("project", id)
	}
	return p, err
}

func (r projects) Update(ctx context.Context, p models.Project) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, monthly_budget = ?, budget_warning_threshold = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, nullDecimal(p.MonthlyBudget), nullDecimal(p.BudgetWarningThreshold),
		formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	return requireRow(res, "project", p.ID)
}

func (r projects) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return requireRow(res, "project", id)
}

func (r projects) List(ctx context.Context) ([]models.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, monthly_budget, budget_warning_threshold, created_at, updated_at
		 FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type graph struct{ db *sql.DB }

const nodeColumns = `id, project_id, provider, provider_id, type, name, region, zone, state, source,
	cost_estimate, configuration, discovery_run_id, created_at, updated_at`

func (r graph) GetNode(ctx context.Context, projectID, providerID string) (models.ResourceNode, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM resource_nodes WHERE project_id = ? AND provider_id = ?`,
		projectID, providerID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ResourceNode{}, false, nil
	}
	if err != nil {
		return models.ResourceNode{}, false, err
	}
	return n, true, nil
}

func (r graph) PutNode(ctx context.Context, n models.ResourceNode) error {
	cfg, err := json.Marshal(n.Configuration)
	if err != nil {
		return fmt.Errorf("encode configuration for %s: %w", n.ProviderID, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO resource_nodes (`+nodeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, provider_id) DO UPDATE SET
		     type = excluded.type, name = excluded.name, region = excluded.region,
		     zone = excluded.zone, state = excluded.state, source = excluded.source,
		     cost_estimate = excluded.cost_estimate, configuration = excluded.configuration,
		     discovery_run_id = excluded.discovery_run_id, updated_at = excluded.updated_at`,
		n.ID, n.ProjectID, n.Provider, n.ProviderID, string(n.Type), n.Name, n.Region, n.Zone, n.State,
		string(n.Source), n.CostEstimate.String(), string(cfg), n.DiscoveryRunID,
		formatTime(n.CreatedAt), formatTime(n.UpdatedAt),
	)
	if err != nil {
		if missingProject(ctx, r.db, n.ProjectID) {
			return apperr.NotFound("project", n.ProjectID)
		}
		return fmt.Errorf("upsert node %s: %w", n.ProviderID, err)
	}
	return nil
}

func (r graph) ListNodes(ctx context.Context, projectID string) ([]models.ResourceNode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM resource_nodes WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r graph) GetEdge(ctx context.Context, projectID, key string) (models.ResourceEdge, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, from_provider_id, to_provider_id, relation, discovery_run_id, created_at
		 FROM resource_edges WHERE project_id = ? AND edge_key = ?`, projectID, key)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ResourceEdge{}, false, nil
	}
	if err != nil {
		return models.ResourceEdge{}, false, err
	}
	return e, true, nil
}

func (r graph) PutEdge(ctx context.Context, e models.ResourceEdge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_edges (id, project_id, edge_key, from_provider_id, to_provider_id, relation, discovery_run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, edge_key) DO UPDATE SET discovery_run_id = excluded.discovery_run_id`,
		e.ID, e.ProjectID, e.Key(), e.FromProviderID, e.ToProviderID, string(e.Relation),
		e.DiscoveryRunID, formatTime(e.CreatedAt),
	)
	if err != nil {
		if missingProject(ctx, r.db, e.ProjectID) {
			return apperr.NotFound("project", e.ProjectID)
		}
		return fmt.Errorf("upsert edge %s: %w", e.Key(), err)
	}
	return nil
}

func (r graph) ListEdges(ctx context.Context, projectID string) ([]models.ResourceEdge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, from_provider_id, to_provider_id, relation, discovery_run_id, created_at
		 FROM resource_edges WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type runs struct{ db *sql.DB }

const runColumns = `id, project_id, provider, account_id, role_arn, external_id, regions, status, progress,
	error, nodes_discovered, edges_discovered, created_at, started_at, finished_at`

func (r runs) Create(ctx context.Context, run models.DiscoveryRun) error {
	regions, err := json.Marshal(run.Regions)
	if err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO discovery_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.Provider, run.AccountID, run.RoleARN, run.ExternalID, string(regions),
		string(run.Status), run.Progress, run.Error, run.NodesDiscovered, run.EdgesDiscovered,
		formatTime(run.CreatedAt), nullTime(run.StartedAt), nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert discovery run %s: %w", run.ID, err)
	}
	return nil
}

func (r runs) Update(ctx context.Context, run models.DiscoveryRun) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE discovery_runs SET status = ?, progress = ?, error = ?, nodes_discovered = ?, edges_discovered = ?,
		     started_at = ?, finished_at = ?
		 WHERE id = ? AND project_id = ?`,
		string(run.Status), run.Progress, run.Error, run.NodesDiscovered, run.EdgesDiscovered,
		nullTime(run.StartedAt), nullTime(run.FinishedAt), run.ID, run.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("update discovery run %s: %w", run.ID, err)
	}
	return requireRow(res, "discovery run", run.ID)
}

func (r runs) Get(ctx context.Context, projectID, id string) (models.DiscoveryRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM discovery_runs WHERE id = ? AND project_id = ?`, id, projectID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DiscoveryRun{}, apperr.NotFound("discovery run", id)
	}
	return run, err
}

func (r runs) List(ctx context.Context, projectID string) ([]models.DiscoveryRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM discovery_runs WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list discovery runs: %w", err)
	}
	defer rows.Close()

	var out []models.DiscoveryRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type exports struct{ db *sql.DB }

const exportColumns = `id, project_id, status, artifact_path, summary_json, approval_reason, error,
	created_at, updated_at, approved_at, applied_at`

func (r exports) Create(ctx context.Context, e models.TerraformExport) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO terraform_exports (`+exportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, string(e.Status), e.ArtifactPath, e.SummaryJSON, nullString(e.ApprovalReason), e.Error,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt), nullTime(e.ApprovedAt), nullTime(e.AppliedAt),
	)
	if err != nil {
		return fmt.Errorf("insert terraform export %s: %w", e.ID, err)
	}
	return nil
}

func (r exports) Update(ctx context.Context, e models.TerraformExport) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE terraform_exports SET status = ?, artifact_path = ?, summary_json = ?, approval_reason = ?, error = ?,
		     updated_at = ?, approved_at = ?, applied_at = ?
		 WHERE id = ? AND project_id = ?`,
		string(e.Status), e.ArtifactPath, e.SummaryJSON, nullString(e.ApprovalReason), e.Error,
		formatTime(e.UpdatedAt), nullTime(e.ApprovedAt), nullTime(e.AppliedAt), e.ID, e.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("update terraform export %s: %w", e.ID, err)
	}
	return requireRow(res, "terraform export", e.ID)
}

func (r exports) Get(ctx context.Context, projectID, id string) (models.TerraformExport, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+exportColumns+` FROM terraform_exports WHERE id = ? AND project_id = ?`, id, projectID)
	e, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TerraformExport{}, apperr.NotFound("terraform export", id)
	}
	return e, err
}

func (r exports) List(ctx context.Context, projectID string) ([]models.TerraformExport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+exportColumns+` FROM terraform_exports WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list terraform exports: %w", err)
	}
	defer rows.Close()

	var out []models.TerraformExport
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type snapshots struct{ db *sql.DB }

func (r snapshots) Append(ctx context.Context, s models.CostSnapshot) error {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cost_snapshots (id, project_id, total_cost, breakdown, currency, pricing_version, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM cost_snapshots WHERE project_id = ?))`,
		s.ID, s.ProjectID, s.TotalCost.String(), string(breakdown), s.Currency, s.PricingVersion,
		formatTime(s.CreatedAt), s.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("insert cost snapshot: %w", err)
	}
	return nil
}

func (r snapshots) Latest(ctx context.Context, projectID string) (models.CostSnapshot, bool, error) {
	var (
		s                           models.CostSnapshot
		total, breakdown, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, total_cost, breakdown, currency, pricing_version, created_at
		 FROM cost_snapshots WHERE project_id = ? ORDER BY seq DESC LIMIT 1`, projectID,
	).Scan(&s.ID, &s.ProjectID, &total, &breakdown, &s.Currency, &s.PricingVersion, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CostSnapshot{}, false, nil
	}
	if err != nil {
		return models.CostSnapshot{}, false, fmt.Errorf("latest cost snapshot: %w", err)
	}
	if s.TotalCost, err = decimal.NewFromString(total); err != nil {
		return models.CostSnapshot{}, false, fmt.Errorf("decode total cost: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &s.Breakdown); err != nil {
		return models.CostSnapshot{}, false, fmt.Errorf("decode breakdown: %w", err)
	}
	s.CreatedAt = parseTime(createdAt)
	return s, true, nil
}

type audit struct{ db *sql.DB }

func (r audit) Append(ctx context.Context, e models.AuditEvent) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, project_id, action, entity_type, entity_id, details, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_events WHERE project_id = ?))`,
		e.ID, e.ProjectID, string(e.Action), e.EntityType, e.EntityID, string(details),
		formatTime(e.CreatedAt), e.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r audit) List(ctx context.Context, projectID string) ([]models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, action, entity_type, entity_id, details, created_at
		 FROM audit_events WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEvent
	for rows.Next() {
		var (
			e                  models.AuditEvent
			action, details, c string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &action, &e.EntityType, &e.EntityID, &details, &c); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = models.AuditAction(action)
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
		e.CreatedAt = parseTime(c)
		out = append(out, e)
	}
	return out, rows.Err()
}
