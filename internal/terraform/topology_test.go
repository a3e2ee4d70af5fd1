package terraform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
)

func TestCheckTopology(t *testing.T) {
	node := func(rt models.ResourceType) models.ResourceNode {
		return models.ResourceNode{ProviderID: string(rt), Type: rt}
	}
	tests := []struct {
		name     string
		nodes    []models.ResourceNode
		eligible bool
		reason   string
	}{
		{name: "empty graph", reason: "terraform plan requires at least one VPC"},
		{name: "no vpc", nodes: []models.ResourceNode{node(models.TypeEC2)}, reason: "terraform plan requires at least one VPC"},
		{name: "elb without subnet", nodes: []models.ResourceNode{node(models.TypeVPC), node(models.TypeELB)}, reason: "terraform plan has ELB resources but no subnet"},
		{name: "vpc only", nodes: []models.ResourceNode{node(models.TypeVPC)}, eligible: true},
		{name: "elb with subnet", nodes: []models.ResourceNode{node(models.TypeVPC), node(models.TypeSubnet), node(models.TypeELB)}, eligible: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckTopology(tt.nodes)
			assert.Equal(t, tt.eligible, got.Eligible)
			assert.NotEmpty(t, got.Action)
			err := ValidateTopology(tt.nodes)
			if tt.eligible {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.reason, got.Reason)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}
