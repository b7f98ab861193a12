package middleware

// Headers carried on sensitive mutation requests. Parsed once at the HTTP
// boundary into a typed intent; nothing below the handlers reads them.
const (
	// StepUpHeaderName carries the bearer step-up token.
	StepUpHeaderName = "X-Admin-Step-Up-Token"
	// ApprovalIDHeaderName replays a decided approval request.
	ApprovalIDHeaderName = "X-Admin-Approval-Id"
	// BreakGlassHeaderName requests the break-glass bypass with a reason.
	BreakGlassHeaderName = "X-Admin-Break-Glass-Reason"
)
