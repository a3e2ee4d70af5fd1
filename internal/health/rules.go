package health

import (
	"strings"

	"github.com/yourusername/cloudcity/internal/models"
)

// EdgeRequirement says a node must have at least one outbound edge with the
// given relation to a node of one of the target types.
type EdgeRequirement struct {
	Name     string
	Relation models.RelationType
	Targets  []models.ResourceType
}

// Rule is a named misconfiguration predicate over a node
type Rule struct {
	Name  string
	Issue string
	Check func(n models.ResourceNode) bool
}

// DefaultOrphanRules lists the edges each type needs to be considered attached.
// Types without an entry never count as orphans.
func DefaultOrphanRules() map[models.ResourceType][]EdgeRequirement {
	inSubnet := EdgeRequirement{Name: "subnet", Relation: models.RelationContains, Targets: []models.ResourceType{models.TypeSubnet}}
	inVPC := EdgeRequirement{Name: "vpc", Relation: models.RelationContains, Targets: []models.ResourceType{models.TypeVPC}}

	return map[models.ResourceType][]EdgeRequirement{
		models.TypeEC2:    {inSubnet},
		models.TypeRDS:    {inSubnet},
		models.TypeELB:    {inSubnet},
		models.TypeSubnet: {inVPC},
		models.TypeSG:     {inVPC},
	}
}

// AllTypes registers a rule for every node type
const AllTypes models.ResourceType = "*"

// DefaultRules is the built-in misconfiguration rule table
func DefaultRules() map[models.ResourceType][]Rule {
	return map[models.ResourceType][]Rule{
		AllTypes: {
			{
				Name:  "missing-region",
				Issue: "Resource region is unknown",
				Check: func(n models.ResourceNode) bool { return n.Region == models.UnknownRegion && n.Type != models.TypeS3 },
			},
		},
		models.TypeSG: {
			{
				Name:  "open-ingress",
				Issue: "Security group allows ingress from the whole internet",
				Check: func(n models.ResourceNode) bool {
					for _, cidr := range splitList(n.Configuration[models.ConfigIngressOpenCIDR]) {
						if cidr == "0.0.0.0/0" || cidr == "::/0" {
							return true
						}
					}
					return false
				},
			},
		},
		models.TypeS3: {
			{
				Name:  "unencrypted-bucket",
				Issue: "S3 bucket has no default encryption",
				Check: func(n models.ResourceNode) bool {
					v, ok := n.Configuration[models.ConfigEncryption]
					return !ok || v == "" || v == models.EncryptionNone
				},
			},
			{
				Name:  "public-bucket",
				Issue: "S3 bucket is publicly accessible",
				Check: func(n models.ResourceNode) bool { return isTrue(n.Configuration[models.ConfigPublic]) },
			},
		},
		models.TypeEC2: {
			{
				Name:  "public-ip-unmonitored",
				Issue: "Instance has a public IP without detailed monitoring",
				Check: func(n models.ResourceNode) bool {
					return n.Configuration[models.ConfigPublicIP] != "" && n.Configuration[models.ConfigMonitoring] == models.MonitoringDisabled
				},
			},
			{
				Name:  "unencrypted-root-volume",
				Issue: "Instance root volume is not encrypted",
				Check: func(n models.ResourceNode) bool { return isFalse(n.Configuration[models.ConfigRootVolumeEncrypted]) },
			},
		},
		models.TypeRDS: {
			{
				Name:  "publicly-accessible",
				Issue: "Database is publicly accessible",
				Check: func(n models.ResourceNode) bool { return isTrue(n.Configuration[models.ConfigPubliclyAccessible]) },
			},
			{
				Name:  "unencrypted-storage",
				Issue: "Database storage is not encrypted",
				Check: func(n models.ResourceNode) bool { return isFalse(n.Configuration[models.ConfigStorageEncrypted]) },
			},
		},
		models.TypeELB: {
			{
				Name:  "internet-facing-without-sg",
				Issue: "Internet-facing load balancer has no security group",
				Check: func(n models.ResourceNode) bool {
					return n.Configuration[models.ConfigScheme] == models.SchemeInternetFacing && len(splitList(n.Configuration[models.ConfigSecurityGroups])) == 0
				},
			},
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isTrue(v string) bool  { return strings.EqualFold(v, "true") }
func isFalse(v string) bool { return strings.EqualFold(v, "false") }
