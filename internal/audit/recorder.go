// Package audit appends governance events to the project audit trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

// Recorder writes audit events. Writes are best-effort: a failed append is
// logged and never changes the outcome of the operation being audited.
type Recorder struct {
	repo store.Audit
	log  *logger.Logger
	now  func() time.Time
}

// NewRecorder creates a recorder over repo
func NewRecorder(repo store.Audit, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Recorder{
		repo: repo,
		log:  log.WithFields(map[string]interface{}{"component": "audit"}),
		now:  time.Now,
	}
}

// Record appends one event
func (r *Recorder) Record(ctx context.Context, projectID string, action models.AuditAction, entityType, entityID string, details map[string]string) {
	if r == nil || r.repo == nil {
		return
	}
	ev := models.AuditEvent{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.repo.Append(ctx, ev); err != nil {
		r.log.Warn("failed to record %s for %s %s: %v", action, entityType, entityID, err)
	}
}

// List returns the project's events oldest first
func (r *Recorder) List(ctx context.Context, projectID string) ([]models.AuditEvent, error) {
	return r.repo.List(ctx, projectID)
}
