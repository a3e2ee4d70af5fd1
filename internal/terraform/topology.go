package terraform

import (
	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
)

// Eligibility reports whether a graph can be rendered into a plan
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
	Action   string `json:"recommendedAction"`
}

// CheckTopology needs at least one VPC, and a subnet whenever load
// balancers are present.
func CheckTopology(nodes []models.ResourceNode) Eligibility {
	var hasVPC, hasSubnet, hasELB bool
	for _, n := range nodes {
		switch n.Type {
		case models.TypeVPC:
			hasVPC = true
		case models.TypeSubnet:
			hasSubnet = true
		case models.TypeELB:
			hasELB = true
		}
	}
	switch {
	case !hasVPC:
		return Eligibility{Reason: "terraform plan requires at least one VPC", Action: "Add a VPC resource before running pipeline apply."}
	case hasELB && !hasSubnet:
		return Eligibility{Reason: "terraform plan has ELB resources but no subnet", Action: "Add at least one subnet for load balancer resources."}
	}
	return Eligibility{Eligible: true, Reason: "terraform plan is eligible", Action: "Proceed to plan, approval and apply."}
}

// ValidateTopology is CheckTopology as an error
func ValidateTopology(nodes []models.ResourceNode) error {
	if e := CheckTopology(nodes); !e.Eligible {
		return apperr.Validation("%s", e.Reason)
	}
	return nil
}
