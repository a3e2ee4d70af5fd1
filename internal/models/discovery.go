package models

import "time"

// DiscoveryStatus is the lifecycle state of a discovery run
type DiscoveryStatus string

const (
	DiscoveryCreated   DiscoveryStatus = "CREATED"
	DiscoveryRunning   DiscoveryStatus = "RUNNING"
	DiscoveryCompleted DiscoveryStatus = "COMPLETED"
	DiscoveryFailed    DiscoveryStatus = "FAILED"
	DiscoveryCancelled DiscoveryStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible
func (s DiscoveryStatus) Terminal() bool {
	return s == DiscoveryCompleted || s == DiscoveryFailed || s == DiscoveryCancelled
}

// DiscoveryRun is one enumeration of a cloud account into a project's graph.
// Assumed-role credentials never appear here; only the identifiers needed to
// obtain them do.
type DiscoveryRun struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"projectId"`
	Provider        string          `json:"provider"`
	AccountID       string          `json:"accountId,omitempty"`
	RoleARN         string          `json:"roleArn,omitempty"`
	ExternalID      string          `json:"externalId,omitempty"`
	Regions         []string        `json:"regions"`
	Status          DiscoveryStatus `json:"status"`
	Progress        int             `json:"progress"`
	Error           string          `json:"error,omitempty"`
	NodesDiscovered int             `json:"nodesDiscovered"`
	EdgesDiscovered int             `json:"edgesDiscovered"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	FinishedAt      *time.Time      `json:"finishedAt"`
}
