package engine

import "context"

// Route is the arbitration outcome for one sensitive request. The gate turns
// the route into ledger calls and HTTP errors; the engine itself never touches
// storage.
type Route string

const (
	// RouteAllow applies the mutation immediately; dual approval is off.
	RouteAllow Route = "allow"
	// RouteQueue opens a new pending approval request.
	RouteQueue Route = "queue"
	// RouteApprovalLookup resolves the supplied approval id against the ledger.
	RouteApprovalLookup Route = "approval_lookup"
	// RouteBreakGlassAllow applies immediately under the break-glass override.
	RouteBreakGlassAllow Route = "break_glass_allow"
	// RouteBreakGlassDenied rejects because break-glass is disabled by policy.
	RouteBreakGlassDenied Route = "break_glass_denied"
	// RouteReasonTooShort rejects because the justification is too short.
	RouteReasonTooShort Route = "break_glass_reason_too_short"
)

// GuardInput is the full input to guard policy evaluation: the runtime policy
// knobs plus the shape of the incoming request.
type GuardInput struct {
	DualApprovalRequired      bool
	BreakGlassEnabled         bool
	BreakGlassMinReasonLength int
	HasBreakGlass             bool
	ReasonLength              int
	HasApprovalID             bool
}

// Evaluator arbitrates between immediate execution, dual approval, and
// break-glass for a sensitive request.
type Evaluator interface {
	Evaluate(ctx context.Context, in GuardInput) (Route, error)
}
