package models

import "time"

// ExportStatus is the lifecycle state of a Terraform export
type ExportStatus string

const (
	ExportDraft           ExportStatus = "DRAFT"
	ExportPendingApproval ExportStatus = "PENDING_APPROVAL"
	ExportApproved        ExportStatus = "APPROVED"
	ExportRejected        ExportStatus = "REJECTED"
	ExportApplied         ExportStatus = "APPLIED"
	ExportFailed          ExportStatus = "FAILED"
)

// Active reports whether the export still blocks a new plan for its project
func (s ExportStatus) Active() bool {
	return s == ExportPendingApproval || s == ExportApproved
}

// TerraformExport is a rendered plan moving through approval and apply.
type TerraformExport struct {
	ID             string       `json:"id"`
	ProjectID      string       `json:"projectId"`
	Status         ExportStatus `json:"status"`
	ArtifactPath   string       `json:"artifactPath"`
	SummaryJSON    string       `json:"summaryJson"`
	ApprovalReason *string      `json:"approvalReason"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	ApprovedAt     *time.Time   `json:"approvedAt,omitempty"`
	AppliedAt      *time.Time   `json:"appliedAt,omitempty"`
}
