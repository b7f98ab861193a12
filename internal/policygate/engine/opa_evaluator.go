package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const guardQuery = "data.examadmin.admin_guard.route"

// Guard arbitration policy. The bodies are mutually exclusive so exactly one
// route rule fires for any input; "queue" is the fallthrough.
const guardRegoPolicy = `package examadmin.admin_guard

default route = "queue"

route = "allow" if {
	not input.policy.dual_approval_required
}

route = "break_glass_denied" if {
	input.policy.dual_approval_required
	input.request.has_break_glass
	not input.policy.break_glass_enabled
}

route = "break_glass_reason_too_short" if {
	input.policy.dual_approval_required
	input.request.has_break_glass
	input.policy.break_glass_enabled
	input.request.reason_length < input.policy.break_glass_min_reason_length
}

route = "break_glass_allow" if {
	input.policy.dual_approval_required
	input.request.has_break_glass
	input.policy.break_glass_enabled
	input.request.reason_length >= input.policy.break_glass_min_reason_length
}

route = "approval_lookup" if {
	input.policy.dual_approval_required
	not input.request.has_break_glass
	input.request.has_approval_id
}
`

// OPAEvaluator evaluates the guard policy using in-process OPA Rego.
type OPAEvaluator struct{}

// NewOPAEvaluator returns an OPA-based guard evaluator.
func NewOPAEvaluator() *OPAEvaluator {
	return &OPAEvaluator{}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and
// evaluate the guard policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Evaluate(ctx, GuardInput{DualApprovalRequired: true})
	return err
}

// Evaluate runs the guard policy on the input. Fails closed: any compile or
// eval failure surfaces as an error and the caller must deny the request.
func (e *OPAEvaluator) Evaluate(ctx context.Context, in GuardInput) (Route, error) {
	compiler, err := ast.CompileModules(map[string]string{"admin_guard.rego": guardRegoPolicy})
	if err != nil {
		return "", fmt.Errorf("compile guard policy: %w", err)
	}
	input := map[string]interface{}{
		"policy": map[string]interface{}{
			"dual_approval_required":        in.DualApprovalRequired,
			"break_glass_enabled":           in.BreakGlassEnabled,
			"break_glass_min_reason_length": in.BreakGlassMinReasonLength,
		},
		"request": map[string]interface{}{
			"has_break_glass": in.HasBreakGlass,
			"reason_length":   in.ReasonLength,
			"has_approval_id": in.HasApprovalID,
		},
	}
	q := rego.New(
		rego.Query(guardQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return "", fmt.Errorf("eval guard policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", fmt.Errorf("guard policy query returned no result")
	}
	route, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("guard policy returned %T, want string", rs[0].Expressions[0].Value)
	}
	switch r := Route(route); r {
	case RouteAllow, RouteQueue, RouteApprovalLookup, RouteBreakGlassAllow, RouteBreakGlassDenied, RouteReasonTooShort:
		return r, nil
	default:
		return "", fmt.Errorf("guard policy returned unknown route %q", route)
	}
}
