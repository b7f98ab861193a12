// Package handler serves read access to the audit trail.
package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"exam-announce-admin/backend/internal/audit/domain"
	auditrepo "exam-announce-admin/backend/internal/audit/repository"
)

// Handler serves audit log listings.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns an audit handler.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

type entryResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId,omitempty"`
	Action         string          `json:"action"`
	AnnouncementID string          `json:"announcementId,omitempty"`
	Note           string          `json:"note,omitempty"`
	IP             string          `json:"ip"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func toResponse(a *domain.AuditLog) entryResponse {
	resp := entryResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Action:         a.Action,
		AnnouncementID: a.AnnouncementID,
		Note:           a.Note,
		IP:             a.IP,
		CreatedAt:      a.CreatedAt,
	}
	if a.Metadata != "" {
		resp.Metadata = json.RawMessage(a.Metadata)
	}
	return resp
}

// List returns audit entries, newest first, optionally scoped to one
// announcement.
func (h *Handler) List(c *gin.Context) {
	var query struct {
		AnnouncementID string `form:"announcementId"`
		Limit          int32  `form:"limit,default=50"`
		Offset         int32  `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var (
		items []*domain.AuditLog
		err   error
	)
	if query.AnnouncementID != "" {
		items, err = h.repo.ListByAnnouncement(c.Request.Context(), query.AnnouncementID, query.Limit, query.Offset)
	} else {
		items, err = h.repo.List(c.Request.Context(), query.Limit, query.Offset)
	}
	if err != nil {
		log.Printf("audit: list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	out := make([]entryResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
