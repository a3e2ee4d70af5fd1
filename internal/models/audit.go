package models

import "time"

// AuditAction names a recorded governance event
type AuditAction string

const (
	AuditPipelineCheck      AuditAction = "PIPELINE_CHECK_EXECUTED"
	AuditCostPolicyFailed   AuditAction = "COST_POLICY_CHECK_FAILED"
	AuditPlanCreated        AuditAction = "TERRAFORM_PLAN_CREATED"
	AuditPlanSuperseded     AuditAction = "TERRAFORM_PLAN_SUPERSEDED"
	AuditPlanApproved       AuditAction = "TERRAFORM_PLAN_APPROVED"
	AuditPlanRejected       AuditAction = "TERRAFORM_PLAN_REJECTED"
	AuditApplyBlocked       AuditAction = "TERRAFORM_APPLY_BLOCKED"
	AuditApplied            AuditAction = "TERRAFORM_APPLIED"
	AuditApplyFailed        AuditAction = "TERRAFORM_APPLY_FAILED"
	AuditDiscoveryCompleted AuditAction = "DISCOVERY_COMPLETED"
	AuditDiscoveryFailed    AuditAction = "DISCOVERY_FAILED"
)

// Entity types referenced by audit events
const (
	EntityProject   = "PROJECT"
	EntityExport    = "TERRAFORM_EXPORT"
	EntityDiscovery = "DISCOVERY_RUN"
)

// AuditEvent is an append-only record of a governance decision
type AuditEvent struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"projectId"`
	Action     AuditAction       `json:"action"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
