// Package handler serves the admin guard policy config endpoints.
package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"exam-announce-admin/backend/internal/adminpolicy/domain"
	adminpolicyrepo "exam-announce-admin/backend/internal/adminpolicy/repository"
	"exam-announce-admin/backend/internal/audit"
	"exam-announce-admin/backend/internal/server/middleware"
)

// Handler serves reads and writes of the admin guard config.
type Handler struct {
	repo    adminpolicyrepo.Repository
	auditor audit.AuditLogger
}

// NewHandler returns a policy config handler.
func NewHandler(repo adminpolicyrepo.Repository, auditor audit.AuditLogger) *Handler {
	return &Handler{repo: repo, auditor: auditor}
}

// Get returns the effective config, defaults included.
func (h *Handler) Get(c *gin.Context) {
	config, err := h.repo.Get(c.Request.Context())
	if err != nil {
		log.Printf("policy config: get: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": domain.MergeWithDefaults(config)})
}

// Put replaces the config. Omitted fields fall back to defaults.
func (h *Handler) Put(c *gin.Context) {
	var config domain.AdminPolicyConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if guard := config.AdminGuard; guard != nil && guard.BreakGlassMinReasonLength < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.repo.Upsert(c.Request.Context(), &config); err != nil {
		log.Printf("policy config: upsert: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if actor, ok := middleware.GetActor(c.Request.Context()); ok {
		h.auditor.Log(c.Request.Context(), audit.Entry{
			UserID: actor.UserID,
			Action: "update_policy_config",
		})
	}
	stored, err := h.repo.Get(c.Request.Context())
	if err != nil {
		log.Printf("policy config: reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": domain.MergeWithDefaults(stored)})
}
