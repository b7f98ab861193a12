// Package policygate composes step-up verification, the runtime guard policy,
// and the approval ledger into one decision for every sensitive mutation.
package policygate

import (
	"context"
	"errors"

	adminpolicydomain "exam-announce-admin/backend/internal/adminpolicy/domain"
	approvaldomain "exam-announce-admin/backend/internal/approval/domain"
	"exam-announce-admin/backend/internal/policygate/engine"
)

// Sentinel errors surfaced to handlers. Step-up and ledger failures pass
// through with their own sentinels.
var (
	ErrBreakGlassDisabled       = errors.New("break-glass is disabled by policy")
	ErrBreakGlassReasonTooShort = errors.New("break-glass reason is shorter than the policy minimum")
)

// ActorContext identifies the authenticated caller. Constructed once at the
// HTTP boundary from the session; the gate never reads ambient request state.
type ActorContext struct {
	UserID      string
	SessionID   string
	Permissions []string
}

// Intent is the typed form of the sensitive-request headers, parsed once at
// the boundary.
type Intent struct {
	StepUpToken      string
	ApprovalID       string
	BreakGlassReason string
}

// Outcome classifies a gate decision.
type Outcome int

const (
	// OutcomeAllow applies the mutation now; dual approval is off.
	OutcomeAllow Outcome = iota
	// OutcomeAllowBreakGlass applies the mutation now under break-glass.
	OutcomeAllowBreakGlass
	// OutcomeQueued opened a pending approval request instead of applying.
	OutcomeQueued
	// OutcomeExecuted claimed an approved request; the caller applies the
	// stored payload unless AlreadyExecuted is set.
	OutcomeExecuted
)

// Decision is the gate's verdict for one request.
type Decision struct {
	Outcome          Outcome
	ApprovalID       string
	TargetID         string
	Payload          string
	BreakGlassReason string
	AlreadyExecuted  bool
}

// StepUpVerifier checks the freshness proof for the actor and session.
type StepUpVerifier interface {
	Verify(ctx context.Context, userID, sessionID, token string) error
}

// Ledger is the slice of the approval ledger the gate drives.
type Ledger interface {
	CreatePending(ctx context.Context, action, targetID, requesterID, payload, note string) (*approvaldomain.Request, error)
	ClaimExecution(ctx context.Context, id, requesterID, targetID string) (*approvaldomain.Request, bool, error)
}

// PolicyRepo loads the stored guard policy; nil config means defaults apply.
type PolicyRepo interface {
	Get(ctx context.Context) (*adminpolicydomain.AdminPolicyConfig, error)
}

// Gate is the decision function for sensitive mutations.
type Gate struct {
	stepUp     StepUpVerifier
	policyRepo PolicyRepo
	evaluator  engine.Evaluator
	ledger     Ledger
}

// New returns a Gate with the given collaborators.
func New(stepUp StepUpVerifier, policyRepo PolicyRepo, evaluator engine.Evaluator, ledger Ledger) *Gate {
	return &Gate{stepUp: stepUp, policyRepo: policyRepo, evaluator: evaluator, ledger: ledger}
}

// Authorize decides what happens to a sensitive mutation. The step-up check
// runs before anything else; break-glass and approval handling are themselves
// sensitive capabilities and must not be reachable on session validity alone.
//
// payload is the JSON mutation the caller wants applied; on OutcomeExecuted
// the returned Decision carries the payload stored at queue time instead.
func (g *Gate) Authorize(ctx context.Context, actor ActorContext, action, targetID, payload, note string, intent Intent) (*Decision, error) {
	if err := g.stepUp.Verify(ctx, actor.UserID, actor.SessionID, intent.StepUpToken); err != nil {
		return nil, err
	}

	config, err := g.policyRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	guard := adminpolicydomain.MergeWithDefaults(config).AdminGuard

	route, err := g.evaluator.Evaluate(ctx, engine.GuardInput{
		DualApprovalRequired:      guard.DualApprovalRequired,
		BreakGlassEnabled:         guard.BreakGlassEnabled,
		BreakGlassMinReasonLength: guard.BreakGlassMinReasonLength,
		HasBreakGlass:             intent.BreakGlassReason != "",
		ReasonLength:              len(intent.BreakGlassReason),
		HasApprovalID:             intent.ApprovalID != "",
	})
	if err != nil {
		return nil, err
	}

	switch route {
	case engine.RouteAllow:
		return &Decision{Outcome: OutcomeAllow, Payload: payload}, nil
	case engine.RouteBreakGlassAllow:
		return &Decision{
			Outcome:          OutcomeAllowBreakGlass,
			Payload:          payload,
			BreakGlassReason: intent.BreakGlassReason,
		}, nil
	case engine.RouteBreakGlassDenied:
		return nil, ErrBreakGlassDisabled
	case engine.RouteReasonTooShort:
		return nil, ErrBreakGlassReasonTooShort
	case engine.RouteApprovalLookup:
		req, alreadyExecuted, err := g.ledger.ClaimExecution(ctx, intent.ApprovalID, actor.UserID, targetID)
		if err != nil {
			return nil, err
		}
		return &Decision{
			Outcome:         OutcomeExecuted,
			ApprovalID:      req.ID,
			TargetID:        req.TargetID,
			Payload:         req.Payload,
			AlreadyExecuted: alreadyExecuted,
		}, nil
	case engine.RouteQueue:
		req, err := g.ledger.CreatePending(ctx, action, targetID, actor.UserID, payload, note)
		if err != nil {
			return nil, err
		}
		return &Decision{Outcome: OutcomeQueued, ApprovalID: req.ID, TargetID: req.TargetID}, nil
	default:
		return nil, errors.New("policygate: unknown route " + string(route))
	}
}
