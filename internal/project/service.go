// Package project manages projects and their budget settings.
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

// NullableDecimal distinguishes an absent field from an explicit null when
// decoded from JSON.
type NullableDecimal struct {
	Set   bool
	Value *decimal.Decimal
}

// UnmarshalJSON is only invoked for keys present in the document
func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	n.Value = &d
	return nil
}

// Clear returns a field that explicitly clears the value
func Clear() NullableDecimal { return NullableDecimal{Set: true} }

// SetTo returns a field that sets the value
func SetTo(d decimal.Decimal) NullableDecimal { return NullableDecimal{Set: true, Value: &d} }

// CreateInput is the body of a project create
type CreateInput struct {
	Name                   string           `json:"name" validate:"required,max=200"`
	Description            string           `json:"description" validate:"max=2000"`
	MonthlyBudget          *decimal.Decimal `json:"monthlyBudget"`
	BudgetWarningThreshold *decimal.Decimal `json:"budgetWarningThreshold"`
}

// Patch is a partial update. Unset fields are left alone; budget fields set
// to null are cleared.
type Patch struct {
	Name                   *string         `json:"name" validate:"omitempty,max=200"`
	Description            *string         `json:"description" validate:"omitempty,max=2000"`
	MonthlyBudget          NullableDecimal `json:"monthlyBudget"`
	BudgetWarningThreshold NullableDecimal `json:"budgetWarningThreshold"`
}

// Forgetter releases per-project state held outside the store
type Forgetter interface {
	Forget(projectID string)
}

// Service manages projects
type Service struct {
	repo     store.Projects
	forget   []Forgetter
	validate *validator.Validate
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a project service. Each forgetter is told when a
// project is deleted.
func NewService(repo store.Projects, log *logger.Logger, forget ...Forgetter) *Service {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Service{
		repo:     repo,
		forget:   forget,
		validate: validator.New(),
		log:      log.WithFields(map[string]interface{}{"component": "projects"}),
		now:      time.Now,
	}
}

// Create stores a new project
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return models.Project{}, err
	}
	if err := validateBudget(in.MonthlyBudget, in.BudgetWarningThreshold); err != nil {
		return models.Project{}, err
	}

	now := s.now().UTC()
	p := models.Project{
		ID:                     uuid.NewString(),
		Name:                   in.Name,
		Description:            in.Description,
		MonthlyBudget:          in.MonthlyBudget,
		BudgetWarningThreshold: in.BudgetWarningThreshold,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return models.Project{}, err
	}
	s.log.Info("created project %s (%s)", p.ID, p.Name)
	return p, nil
}

// Get returns a project
func (s *Service) Get(ctx context.Context, id string) (models.Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns every project oldest first
func (s *Service) List(ctx context.Context) ([]models.Project, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update
func (s *Service) Update(ctx context.Context, id string, patch Patch) (models.Project, error) {
	if err := s.check(patch); err != nil {
		return models.Project{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.Project{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Project{}, apperr.Validation("name must not be blank")
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.MonthlyBudget.Set {
		p.MonthlyBudget = patch.MonthlyBudget.Value
	}
	if patch.BudgetWarningThreshold.Set {
		p.BudgetWarningThreshold = patch.BudgetWarningThreshold.Value
	}
	if err := validateBudget(p.MonthlyBudget, p.BudgetWarningThreshold); err != nil {
		return models.Project{}, err
	}

	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// Delete removes a project and everything it owns
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, f := range s.forget {
		f.Forget(id)
	}
	s.log.Info("deleted project %s", id)
	return nil
}

func (s *Service) check(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation("%s failed %s", strings.ToLower(fe.Field()[:1])+fe.Field()[1:], fe.Tag())
	}
	return apperr.Validation("%v", err)
}

var hundred = decimal.NewFromInt(100)

func validateBudget(budget, threshold *decimal.Decimal) error {
	if budget != nil && budget.IsNegative() {
		return apperr.Validation("monthlyBudget must not be negative")
	}
	if threshold != nil && (threshold.IsNegative() || threshold.GreaterThan(hundred)) {
		return apperr.Validation("budgetWarningThreshold must be between 0 and 100")
	}
	return nil
}
