package domain

import (
	"encoding/json"
	"time"
)

// AuditLog represents one append-only audit event. Entries are never mutated
// after creation.
type AuditLog struct {
	ID             string
	UserID         string
	Action         string
	AnnouncementID string
	Note           string
	IP             string
	Metadata       string // JSON object; see Metadata below
	CreatedAt      time.Time
}

// Metadata is the structured part of an audit entry. Break-glass executions
// must carry BreakGlassUsed and BreakGlassReason; approval-workflow events
// carry the ApprovalID they concern.
type Metadata struct {
	BreakGlassUsed   bool   `json:"breakGlassUsed,omitempty"`
	BreakGlassReason string `json:"breakGlassReason,omitempty"`
	ApprovalID       string `json:"approvalId,omitempty"`
	Outcome          string `json:"outcome,omitempty"`
}

// Encode returns the metadata as a JSON string, or "" when every field is empty.
func (m Metadata) Encode() string {
	if !m.BreakGlassUsed && m.BreakGlassReason == "" && m.ApprovalID == "" && m.Outcome == "" {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
