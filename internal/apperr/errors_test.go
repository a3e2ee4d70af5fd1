package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/cloudcity/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: http.StatusOK},
		{name: "validation", err: apperr.Validation("regions must not be empty"), expected: http.StatusBadRequest},
		{name: "not found", err: apperr.NotFound("project", "p1"), expected: http.StatusNotFound},
		{name: "invalid state", err: apperr.InvalidState("export is %s", "REJECTED"), expected: http.StatusConflict},
		{name: "conflict", err: apperr.Conflict("active export exists"), expected: http.StatusConflict},
		{name: "budget gate", err: fmt.Errorf("%w: over budget", apperr.ErrBudgetGateBlocked), expected: http.StatusUnprocessableEntity},
		{name: "provider", err: fmt.Errorf("%w: throttled", apperr.ErrProvider), expected: http.StatusBadGateway},
		{name: "wrapped twice", err: fmt.Errorf("create plan: %w", apperr.Conflict("x")), expected: http.StatusConflict},
		{name: "unknown", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apperr.HTTPStatus(tt.err))
		})
	}
}

func TestMessages(t *testing.T) {
	err := apperr.NotFound("export", "e-1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "not found: export e-1", err.Error())

	err = apperr.Validation("regions must contain at least %d entry", 1)
	assert.Equal(t, "validation failed: regions must contain at least 1 entry", err.Error())
}
