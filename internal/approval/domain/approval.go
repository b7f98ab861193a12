package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an approval request.
//
// pending -> approved -> executed
//         -> rejected
//         -> expired
//
// approved, rejected, expired, and executed are all terminal for decisions;
// only approved can still move, and only to executed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
)

// Protected actions tracked by the ledger.
const (
	ActionCreatePublish       = "create-publish"
	ActionUpdateToPublished   = "update-to-published"
	ActionApproveAnnouncement = "approve-announcement"
	ActionRejectAnnouncement  = "reject-announcement"
	ActionRollbackToPublished = "rollback-to-published"
)

// ClassForAction maps an action to its action class. All publish-equivalent
// mutations of one announcement share a class, so only one of them can be
// pending at a time for the same target.
func ClassForAction(action string) string {
	switch action {
	case ActionCreatePublish, ActionUpdateToPublished, ActionApproveAnnouncement,
		ActionRejectAnnouncement, ActionRollbackToPublished:
		return "publish"
	default:
		return action
	}
}

// Request is one dual-approval workflow instance. Payload holds the JSON
// mutation to apply once approved; it is replayed verbatim at execute time.
type Request struct {
	ID              string
	Action          string
	ActionClass     string
	TargetID        string
	RequesterUserID string
	ReviewerUserID  string // empty until decided
	Status          Status
	Payload         string
	Note            string
	DecisionNote    string
	CreatedAt       time.Time
	DecidedAt       *time.Time
	ExecutedAt      *time.Time
}

// ExpiredBy reports whether a still-pending request has outlived ttl at now.
func (r *Request) ExpiredBy(now time.Time, ttl time.Duration) bool {
	return r.Status == StatusPending && now.After(r.CreatedAt.Add(ttl))
}

// Sentinel errors for the ledger; handlers map them to HTTP responses.
var (
	ErrNotFound         = errors.New("approval request not found")
	ErrDuplicatePending = errors.New("a pending approval request already exists for this target")
	ErrSelfApproval     = errors.New("requester may not decide their own request")
	ErrTargetMismatch   = errors.New("approval request does not cover this target")
	ErrNotRequester     = errors.New("only the original requester may execute an approved request")
)

// InvalidStatusError reports an operation attempted against a request whose
// status does not permit it. Reason() yields the machine-readable sub-reason
// surfaced to clients.
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("approval request status %q does not permit this operation", e.Status)
}

// Reason returns the wire sub-reason, e.g. "invalid_status:pending".
func (e *InvalidStatusError) Reason() string {
	return "invalid_status:" + string(e.Status)
}
