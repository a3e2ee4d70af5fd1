package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (models.Project, error) {
	var (
		p                    models.Project
		budget, threshold    sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &budget, &threshold, &createdAt, &updatedAt); err != nil {
		return models.Project{}, err
	}
	var err error
	if p.MonthlyBudget, err = parseNullDecimal(budget); err != nil {
		return models.Project{}, fmt.Errorf("decode monthly budget: %w", err)
	}
	if p.BudgetWarningThreshold, err = parseNullDecimal(threshold); err != nil {
		return models.Project{}, fmt.Errorf("decode warning threshold: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func scanNode(s scanner) (models.ResourceNode, error) {
	var (
		n                                    models.ResourceNode
		typ, source, cost, cfg, created, upd string
	)
	err := s.Scan(&n.ID, &n.ProjectID, &n.Provider, &n.ProviderID, &typ, &n.Name, &n.Region, &n.Zone,
		&n.State, &source, &cost, &cfg, &n.DiscoveryRunID, &created, &upd)
	if err != nil {
		return models.ResourceNode{}, err
	}
	n.Type = models.ResourceType(typ)
	n.Source = models.NodeSource(source)
	if n.CostEstimate, err = decimal.NewFromString(cost); err != nil {
		return models.ResourceNode{}, fmt.Errorf("decode cost of %s: %w", n.ProviderID, err)
	}
	if err := json.Unmarshal([]byte(cfg), &n.Configuration); err != nil {
		return models.ResourceNode{}, fmt.Errorf("decode configuration of %s: %w", n.ProviderID, err)
	}
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(upd)
	return n, nil
}

func scanEdge(s scanner) (models.ResourceEdge, error) {
	var (
		e                 models.ResourceEdge
		relation, created string
	)
	if err := s.Scan(&e.ID, &e.ProjectID, &e.FromProviderID, &e.ToProviderID, &relation, &e.DiscoveryRunID, &created); err != nil {
		return models.ResourceEdge{}, err
	}
	e.Relation = models.RelationType(relation)
	e.CreatedAt = parseTime(created)
	return e, nil
}

func scanRun(s scanner) (models.DiscoveryRun, error) {
	var (
		r                        models.DiscoveryRun
		regions, status, created string
		started, finished        sql.NullString
	)
	err := s.Scan(&r.ID, &r.ProjectID, &r.Provider, &r.AccountID, &r.RoleARN, &r.ExternalID, &regions, &status,
		&r.Progress, &r.Error, &r.NodesDiscovered, &r.EdgesDiscovered, &created, &started, &finished)
	if err != nil {
		return models.DiscoveryRun{}, err
	}
	if err := json.Unmarshal([]byte(regions), &r.Regions); err != nil {
		return models.DiscoveryRun{}, fmt.Errorf("decode regions of run %s: %w", r.ID, err)
	}
	r.Status = models.DiscoveryStatus(status)
	r.CreatedAt = parseTime(created)
	r.StartedAt = parseNullTime(started)
	r.FinishedAt = parseNullTime(finished)
	return r, nil
}

func scanExport(s scanner) (models.TerraformExport, error) {
	var (
		e                           models.TerraformExport
		status, created, updated    string
		reason, approved, appliedAt sql.NullString
	)
	err := s.Scan(&e.ID, &e.ProjectID, &status, &e.ArtifactPath, &e.SummaryJSON, &reason, &e.Error,
		&created, &updated, &approved, &appliedAt)
	if err != nil {
		return models.TerraformExport{}, err
	}
	e.Status = models.ExportStatus(status)
	if reason.Valid {
		e.ApprovalReason = &reason.String
	}
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	e.ApprovedAt = parseNullTime(approved)
	e.AppliedAt = parseNullTime(appliedAt)
	return e, nil
}

// missingProject reports whether a failed write was a foreign key miss on
// the project
func missingProject(ctx context.Context, db *sql.DB, projectID string) bool {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&one)
	return errors.Is(err, sql.ErrNoRows)
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
