package domain

// AdminGuard holds the runtime-mutable knobs of the publish protection
// workflow. Flipping a flag takes effect on the next request; no restart.
type AdminGuard struct {
	// DualApprovalRequired routes publish-equivalent mutations through the
	// approval ledger. When false, a valid step-up token alone suffices.
	DualApprovalRequired bool `json:"dual_approval_required"`
	// BreakGlassEnabled allows a single operator to bypass dual approval
	// with a justification reason. Disabled by default.
	BreakGlassEnabled bool `json:"break_glass_enabled"`
	// BreakGlassMinReasonLength is the minimum accepted justification length.
	BreakGlassMinReasonLength int `json:"break_glass_min_reason_length"`
}

// AdminPolicyConfig is the stored shape. Sections are pointers so a partial
// update leaves untouched sections at their defaults.
type AdminPolicyConfig struct {
	AdminGuard *AdminGuard `json:"admin_guard,omitempty"`
}

// DefaultAdminGuard returns the default guard policy: dual approval on,
// break-glass off, 12-character minimum reason.
func DefaultAdminGuard() AdminGuard {
	return AdminGuard{
		DualApprovalRequired:      true,
		BreakGlassEnabled:         false,
		BreakGlassMinReasonLength: 12,
	}
}

// MergeWithDefaults returns a copy of c with nil sections replaced by defaults.
func MergeWithDefaults(c *AdminPolicyConfig) *AdminPolicyConfig {
	if c == nil {
		return &AdminPolicyConfig{AdminGuard: ptr(DefaultAdminGuard())}
	}
	out := *c
	if out.AdminGuard == nil {
		out.AdminGuard = ptr(DefaultAdminGuard())
	}
	return &out
}

func ptr[T any](v T) *T { return &v }
