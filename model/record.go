package model

import "time"

// Status is the workflow status of a record.
type Status string

// Workflow statuses for proposal-like records. Draft is the initial
// status for every new record; Archived is the only terminal one.
const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusSent            Status = "sent"
	StatusArchived        Status = "archived"
)

// Resource type tags for lockable resources.
const (
	ResourceProposal          = "proposal"
	ResourceKnowledgeDocument = "knowledge_document"
)

// Record is a long-lived versioned business record (e.g. a proposal).
// Its current version pointer and status are the only mutable shared
// fields; every other piece of state hangs off it as append-only rows.
type Record struct {
	ID             int64     `json:"id"`
	ResourceType   string    `json:"resource_type"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	CurrentVersion int64     `json:"current_version"`
	Status         Status    `json:"status"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
