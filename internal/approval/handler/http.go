// Package handler serves the approval review endpoints used by second
// reviewers.
package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"exam-announce-admin/backend/internal/approval/domain"
	approvalservice "exam-announce-admin/backend/internal/approval/service"
	"exam-announce-admin/backend/internal/server/middleware"
)

// Handler serves approval listing and decisions.
type Handler struct {
	approvals *approvalservice.Service
}

// NewHandler returns an approval handler.
func NewHandler(approvals *approvalservice.Service) *Handler {
	return &Handler{approvals: approvals}
}

type approvalResponse struct {
	ID              string        `json:"id"`
	Action          string        `json:"action"`
	TargetID        string        `json:"targetId,omitempty"`
	RequesterUserID string        `json:"requesterUserId"`
	ReviewerUserID  string        `json:"reviewerUserId,omitempty"`
	Status          domain.Status `json:"status"`
	Payload         string        `json:"payload"`
	Note            string        `json:"note,omitempty"`
	DecisionNote    string        `json:"decisionNote,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	DecidedAt       *time.Time    `json:"decidedAt,omitempty"`
	ExecutedAt      *time.Time    `json:"executedAt,omitempty"`
}

func toResponse(r *domain.Request) approvalResponse {
	return approvalResponse{
		ID:              r.ID,
		Action:          r.Action,
		TargetID:        r.TargetID,
		RequesterUserID: r.RequesterUserID,
		ReviewerUserID:  r.ReviewerUserID,
		Status:          r.Status,
		Payload:         r.Payload,
		Note:            r.Note,
		DecisionNote:    r.DecisionNote,
		CreatedAt:       r.CreatedAt,
		DecidedAt:       r.DecidedAt,
		ExecutedAt:      r.ExecutedAt,
	}
}

// List returns approval requests, pending-only by default.
func (h *Handler) List(c *gin.Context) {
	var query struct {
		Status string `form:"status,default=pending"`
		Limit  int32  `form:"limit,default=50"`
		Offset int32  `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	items, err := h.approvals.List(c.Request.Context(), domain.Status(query.Status), query.Limit, query.Offset)
	if err != nil {
		log.Printf("approvals: list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	out := make([]approvalResponse, 0, len(items))
	for _, r := range items {
		out = append(out, toResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// Get returns one approval request.
func (h *Handler) Get(c *gin.Context) {
	r, err := h.approvals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		log.Printf("approvals: get: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toResponse(r)})
}

// Approve marks a pending request approved.
func (h *Handler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject marks a pending request rejected.
func (h *Handler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *Handler) decide(c *gin.Context, approve bool) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	// Note is optional.
	_ = c.ShouldBindJSON(&body)

	r, err := h.approvals.Decide(c.Request.Context(), c.Param("id"), actor.UserID, approve, body.Note)
	if err != nil {
		var invalid *domain.InvalidStatusError
		switch {
		case errors.Is(err, domain.ErrSelfApproval):
			c.JSON(http.StatusForbidden, gin.H{"error": "self_approval_forbidden", "reason": "self_approval_forbidden"})
		case errors.As(err, &invalid):
			c.JSON(http.StatusConflict, gin.H{"error": "approval_invalid", "reason": invalid.Reason()})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		default:
			log.Printf("approvals: decide: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toResponse(r)})
}
