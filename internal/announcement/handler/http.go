// Package handler serves the announcement endpoints. Mutations that touch
// published content are routed through the policy gate; everything else
// applies directly.
package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"exam-announce-admin/backend/internal/announcement/domain"
	announcementservice "exam-announce-admin/backend/internal/announcement/service"
	approvaldomain "exam-announce-admin/backend/internal/approval/domain"
	"exam-announce-admin/backend/internal/audit"
	auditdomain "exam-announce-admin/backend/internal/audit/domain"
	"exam-announce-admin/backend/internal/policygate"
	"exam-announce-admin/backend/internal/server/middleware"
	stepupservice "exam-announce-admin/backend/internal/stepup/service"
)

// Handler serves announcement reads and gated mutations.
type Handler struct {
	announcements *announcementservice.Service
	gate          *policygate.Gate
	auditor       audit.AuditLogger
}

// NewHandler returns an announcement handler.
func NewHandler(announcements *announcementservice.Service, gate *policygate.Gate, auditor audit.AuditLogger) *Handler {
	return &Handler{announcements: announcements, gate: gate, auditor: auditor}
}

type announcementResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	ExamDate    *time.Time     `json:"examDate,omitempty"`
	Status      domain.Status  `json:"status"`
	Version     int32          `json:"version"`
	CreatedBy   string         `json:"createdBy"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func toResponse(a *domain.Announcement) announcementResponse {
	return announcementResponse{
		ID:          a.ID,
		Title:       a.Title,
		Body:        a.Body,
		ExamDate:    a.ExamDate,
		Status:      a.Status,
		Version:     a.Version,
		CreatedBy:   a.CreatedBy,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type revisionResponse struct {
	ID             string         `json:"id"`
	AnnouncementID string         `json:"announcementId"`
	Version        int32          `json:"version"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	ExamDate       *time.Time     `json:"examDate,omitempty"`
	Status         domain.Status  `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// List returns announcements, optionally filtered by status.
func (h *Handler) List(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Limit  int32  `form:"limit,default=50"`
		Offset int32  `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	status := domain.Status(query.Status)
	if query.Status != "" && !domain.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	items, err := h.announcements.List(c.Request.Context(), status, query.Limit, query.Offset)
	if err != nil {
		internalError(c, "announcements: list", err)
		return
	}
	out := make([]announcementResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// Get returns a single announcement.
func (h *Handler) Get(c *gin.Context) {
	a, err := h.announcements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		internalError(c, "announcements: get", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toResponse(a)})
}

// Revisions returns the snapshot history of an announcement, newest first.
func (h *Handler) Revisions(c *gin.Context) {
	revs, err := h.announcements.ListRevisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		internalError(c, "announcements: revisions", err)
		return
	}
	out := make([]revisionResponse, 0, len(revs))
	for _, r := range revs {
		out = append(out, revisionResponse{
			ID:             r.ID,
			AnnouncementID: r.AnnouncementID,
			Version:        r.Version,
			Title:          r.Title,
			Body:           r.Body,
			ExamDate:       r.ExamDate,
			Status:         r.Status,
			CreatedAt:      r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// Create creates an announcement. Creating directly into published status is
// sensitive and goes through the gate; drafts apply immediately.
func (h *Handler) Create(c *gin.Context) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	m, ok := bindMutation(c)
	if !ok {
		return
	}

	if !m.Sensitive("") {
		a, err := h.announcements.Create(c.Request.Context(), actor.UserID, m)
		if err != nil {
			internalError(c, "announcements: create", err)
			return
		}
		h.audit(c, actor.UserID, "create_announcement", a.ID, auditdomain.Metadata{Outcome: "allow"})
		c.JSON(http.StatusCreated, gin.H{"data": toResponse(a)})
		return
	}

	payload, err := m.Encode()
	if err != nil {
		internalError(c, "announcements: encode mutation", err)
		return
	}
	// The announcement id is minted before queueing so each pending create has
	// its own target and an approved create lands on the id the approval named.
	intent := intentFrom(c)
	targetID := ""
	if intent.ApprovalID == "" {
		targetID = uuid.New().String()
	}
	decision, err := h.gate.Authorize(c.Request.Context(), gateActor(actor), approvaldomain.ActionCreatePublish, targetID, payload, "", intent)
	if err != nil {
		writeGateError(c, err)
		return
	}
	if decision.Outcome == policygate.OutcomeQueued {
		c.JSON(http.StatusAccepted, gin.H{"error": "approval_required", "approvalId": decision.ApprovalID})
		return
	}
	if decision.AlreadyExecuted {
		body := gin.H{"approvalId": decision.ApprovalID, "alreadyExecuted": true}
		if existing, err := h.announcements.Get(c.Request.Context(), decision.TargetID); err == nil {
			body["announcement"] = toResponse(existing)
		}
		c.JSON(http.StatusOK, gin.H{"data": body})
		return
	}

	apply := m
	createID := targetID
	if decision.Outcome == policygate.OutcomeExecuted {
		createID = decision.TargetID
		apply, err = domain.DecodeMutation(decision.Payload)
		if err != nil {
			internalError(c, "announcements: decode stored payload", err)
			return
		}
	}
	a, err := h.announcements.CreateWithID(c.Request.Context(), createID, actor.UserID, apply)
	if err != nil {
		internalError(c, "announcements: create", err)
		return
	}
	h.audit(c, actor.UserID, "create_announcement", a.ID, decisionMetadata(decision))

	code := http.StatusCreated
	if decision.Outcome == policygate.OutcomeExecuted {
		code = http.StatusOK
	}
	c.JSON(code, gin.H{"data": toResponse(a)})
}

// Update mutates an announcement. Sensitive when the target is published or
// the mutation publishes it.
func (h *Handler) Update(c *gin.Context) {
	h.mutate(c, mutateParams{
		auditAction: "update_announcement",
		gateAction:  approvaldomain.ActionUpdateToPublished,
		mutation: func(c *gin.Context, _ *domain.Announcement) (domain.Mutation, string, bool) {
			m, ok := bindMutation(c)
			return m, "", ok
		},
	})
}

// Approve publishes an announcement on a reviewer's sign-off. Always routed
// through the gate.
func (h *Handler) Approve(c *gin.Context) {
	status := domain.StatusPublished
	h.mutate(c, mutateParams{
		auditAction:     "approve_announcement",
		gateAction:      approvaldomain.ActionApproveAnnouncement,
		alwaysSensitive: true,
		queuedFlag:      true,
		mutation: func(c *gin.Context, _ *domain.Announcement) (domain.Mutation, string, bool) {
			note := bindNote(c)
			return domain.Mutation{Status: &status}, note, true
		},
	})
}

// Reject archives an announcement. Always routed through the gate.
func (h *Handler) Reject(c *gin.Context) {
	status := domain.StatusArchived
	h.mutate(c, mutateParams{
		auditAction:     "reject_announcement",
		gateAction:      approvaldomain.ActionRejectAnnouncement,
		alwaysSensitive: true,
		queuedFlag:      true,
		mutation: func(c *gin.Context, _ *domain.Announcement) (domain.Mutation, string, bool) {
			note := bindNote(c)
			return domain.Mutation{Status: &status}, note, true
		},
	})
}

// Rollback restores the announcement to an earlier revision. Sensitive when
// the target or the restored snapshot is published.
func (h *Handler) Rollback(c *gin.Context) {
	h.mutate(c, mutateParams{
		auditAction: "rollback_announcement",
		gateAction:  approvaldomain.ActionRollbackToPublished,
		mutation: func(c *gin.Context, current *domain.Announcement) (domain.Mutation, string, bool) {
			var body struct {
				Version int32 `json:"version" binding:"required"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
				return domain.Mutation{}, "", false
			}
			m, err := h.announcements.RollbackMutation(c.Request.Context(), current.ID, body.Version)
			if err != nil {
				if errors.Is(err, domain.ErrRevisionNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "revision_not_found"})
					return domain.Mutation{}, "", false
				}
				internalError(c, "announcements: rollback", err)
				return domain.Mutation{}, "", false
			}
			return m, "", true
		},
	})
}

type mutateParams struct {
	auditAction     string
	gateAction      string
	alwaysSensitive bool
	// queuedFlag adds requiresApproval to the 202 body.
	queuedFlag bool
	// mutation builds the mutation (and optional note) from the request; it
	// writes its own error response and returns false on failure.
	mutation func(c *gin.Context, current *domain.Announcement) (domain.Mutation, string, bool)
}

// mutate is the shared flow for id-targeted mutations: load the target, build
// the mutation, route through the gate when sensitive, then apply and audit.
func (h *Handler) mutate(c *gin.Context, p mutateParams) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id := c.Param("id")
	current, err := h.announcements.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		internalError(c, "announcements: get", err)
		return
	}
	m, note, ok := p.mutation(c, current)
	if !ok {
		return
	}

	if !p.alwaysSensitive && !m.Sensitive(current.Status) {
		a, err := h.announcements.ApplyMutation(c.Request.Context(), id, m)
		if err != nil {
			internalError(c, "announcements: apply", err)
			return
		}
		h.audit(c, actor.UserID, p.auditAction, id, auditdomain.Metadata{Outcome: "allow"})
		c.JSON(http.StatusOK, gin.H{"data": toResponse(a)})
		return
	}

	payload, err := m.Encode()
	if err != nil {
		internalError(c, "announcements: encode mutation", err)
		return
	}
	decision, err := h.gate.Authorize(c.Request.Context(), gateActor(actor), p.gateAction, id, payload, note, intentFrom(c))
	if err != nil {
		writeGateError(c, err)
		return
	}
	if decision.Outcome == policygate.OutcomeQueued {
		body := gin.H{"error": "approval_required", "approvalId": decision.ApprovalID}
		if p.queuedFlag {
			body["requiresApproval"] = true
		}
		c.JSON(http.StatusAccepted, body)
		return
	}
	if decision.AlreadyExecuted {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"announcement":    toResponse(current),
			"approvalId":      decision.ApprovalID,
			"alreadyExecuted": true,
		}})
		return
	}

	apply := m
	if decision.Outcome == policygate.OutcomeExecuted {
		apply, err = domain.DecodeMutation(decision.Payload)
		if err != nil {
			internalError(c, "announcements: decode stored payload", err)
			return
		}
	}
	a, err := h.announcements.ApplyMutation(c.Request.Context(), id, apply)
	if err != nil {
		internalError(c, "announcements: apply", err)
		return
	}
	h.audit(c, actor.UserID, p.auditAction, id, decisionMetadata(decision))
	c.JSON(http.StatusOK, gin.H{"data": toResponse(a)})
}

func (h *Handler) audit(c *gin.Context, userID, action, announcementID string, meta auditdomain.Metadata) {
	h.auditor.Log(c.Request.Context(), audit.Entry{
		UserID:         userID,
		Action:         action,
		AnnouncementID: announcementID,
		Metadata:       meta,
	})
}

func bindMutation(c *gin.Context) (domain.Mutation, bool) {
	var m domain.Mutation
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return domain.Mutation{}, false
	}
	if m.Status != nil && !domain.ValidStatus(*m.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return domain.Mutation{}, false
	}
	return m, true
}

func bindNote(c *gin.Context) string {
	var body struct {
		Note string `json:"note"`
	}
	// Body is optional on approve/reject.
	_ = c.ShouldBindJSON(&body)
	return body.Note
}

func gateActor(a middleware.Actor) policygate.ActorContext {
	return policygate.ActorContext{UserID: a.UserID, SessionID: a.SessionID, Permissions: a.Permissions}
}

func intentFrom(c *gin.Context) policygate.Intent {
	return policygate.Intent{
		StepUpToken:      c.GetHeader(middleware.StepUpHeaderName),
		ApprovalID:       c.GetHeader(middleware.ApprovalIDHeaderName),
		BreakGlassReason: c.GetHeader(middleware.BreakGlassHeaderName),
	}
}

func decisionMetadata(d *policygate.Decision) auditdomain.Metadata {
	switch d.Outcome {
	case policygate.OutcomeAllowBreakGlass:
		return auditdomain.Metadata{
			BreakGlassUsed:   true,
			BreakGlassReason: d.BreakGlassReason,
			Outcome:          "break_glass_allow",
		}
	case policygate.OutcomeExecuted:
		return auditdomain.Metadata{ApprovalID: d.ApprovalID, Outcome: "approved_execution"}
	default:
		return auditdomain.Metadata{Outcome: "allow"}
	}
}

// writeGateError maps gate failures to their wire form. Unknown requests and
// wrong-requester replays both read as not_found so replay probing reveals
// nothing about other users' approvals.
func writeGateError(c *gin.Context, err error) {
	var invalid *approvaldomain.InvalidStatusError
	switch {
	case errors.Is(err, stepupservice.ErrStepUpRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "step_up_required"})
	case errors.Is(err, policygate.ErrBreakGlassDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "break_glass_disabled"})
	case errors.Is(err, policygate.ErrBreakGlassReasonTooShort):
		c.JSON(http.StatusForbidden, gin.H{"error": "break_glass_reason_too_short"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"error": "approval_invalid", "reason": invalid.Reason()})
	case errors.Is(err, approvaldomain.ErrDuplicatePending):
		c.JSON(http.StatusConflict, gin.H{"error": "approval_invalid", "reason": "invalid_status:pending"})
	case errors.Is(err, approvaldomain.ErrTargetMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "approval_invalid", "reason": "target_mismatch"})
	case errors.Is(err, approvaldomain.ErrNotFound), errors.Is(err, approvaldomain.ErrNotRequester):
		c.JSON(http.StatusConflict, gin.H{"error": "approval_invalid", "reason": "not_found"})
	default:
		internalError(c, "policy gate", err)
	}
}

func internalError(c *gin.Context, where string, err error) {
	log.Printf("%s: %v", where, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}
