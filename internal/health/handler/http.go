// Package handler serves the health probe.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger checks database connectivity. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker verifies the policy engine can still compile and evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler reports readiness. Nil dependencies are skipped, so a partially
// wired test server still answers.
type Handler struct {
	db     Pinger
	policy PolicyChecker
}

// NewHandler returns a health handler.
func NewHandler(db Pinger, policy PolicyChecker) *Handler {
	return &Handler{db: db, policy: policy}
}

// Check answers 200 when the database and policy engine respond, 503 with the
// failing component otherwise.
func (h *Handler) Check(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "component": "database"})
			return
		}
	}
	if h.policy != nil {
		if err := h.policy.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "component": "policy_engine"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
