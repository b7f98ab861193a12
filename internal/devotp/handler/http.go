// Package handler exposes the dev-only OTP retrieval endpoint. Mounted only
// when OTP_RETURN_TO_CLIENT is enabled; never in production.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"exam-announce-admin/backend/internal/devotp"
)

// Handler serves plain OTPs by challenge id for local development.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a dev OTP handler.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// Get returns the OTP for a challenge id, or 404 when missing or expired.
func (h *Handler) Get(c *gin.Context) {
	challengeID := c.Query("challengeId")
	if challengeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	otp, ok := h.store.Get(c.Request.Context(), challengeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"otp": otp}})
}
