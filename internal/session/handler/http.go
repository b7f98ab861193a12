// Package handler serves session listing and bulk termination.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"exam-announce-admin/backend/internal/audit"
	"exam-announce-admin/backend/internal/server/middleware"
	"exam-announce-admin/backend/internal/session/domain"
	stepupservice "exam-announce-admin/backend/internal/stepup/service"
)

// SessionRepo is the minimal session repository needed by the handler.
type SessionRepo interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	RevokeOthersByUser(ctx context.Context, userID, keepSessionID string) (int64, error)
}

// StepUpVerifier proves fresh possession of the password. Terminating other
// sessions is destructive, so session validity alone is not enough.
type StepUpVerifier interface {
	Verify(ctx context.Context, userID, sessionID, token string) error
}

// Handler serves the caller's own sessions.
type Handler struct {
	sessions SessionRepo
	stepup   StepUpVerifier
	auditor  audit.AuditLogger
}

// NewHandler returns a session handler.
func NewHandler(sessions SessionRepo, stepup StepUpVerifier, auditor audit.AuditLogger) *Handler {
	return &Handler{sessions: sessions, stepup: stepup, auditor: auditor}
}

type sessionResponse struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ipAddress"`
	Device         string    `json:"device"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	Current        bool      `json:"current"`
	IssuedAt       time.Time `json:"issuedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt *time.Time `json:"lastActivityAt"`
}

// List returns the caller's active sessions.
func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	sessions, err := h.sessions.ListByUser(c.Request.Context(), actor.UserID)
	if err != nil {
		log.Printf("sessions: list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			Device:         s.Device,
			Browser:        s.Browser,
			OS:             s.OS,
			Current:        s.ID == actor.SessionID,
			IssuedAt:       s.IssuedAt,
			ExpiresAt:      s.ExpiresAt,
			LastActivityAt: s.LastActivityAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// TerminateOthers revokes every session of the caller except the current one.
// Requires a valid step-up token.
func (h *Handler) TerminateOthers(c *gin.Context) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	token := c.GetHeader(middleware.StepUpHeaderName)
	if err := h.stepup.Verify(c.Request.Context(), actor.UserID, actor.SessionID, token); err != nil {
		if errors.Is(err, stepupservice.ErrStepUpRequired) {
			c.JSON(http.StatusForbidden, gin.H{"error": "step_up_required"})
			return
		}
		log.Printf("sessions: step-up verify: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	terminated, err := h.sessions.RevokeOthersByUser(c.Request.Context(), actor.UserID, actor.SessionID)
	if err != nil {
		log.Printf("sessions: terminate others: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	h.auditor.Log(c.Request.Context(), audit.Entry{
		UserID: actor.UserID,
		Action: "terminate_other_sessions",
	})
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"terminated": terminated}})
}
