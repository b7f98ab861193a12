// Package handler exposes login, logout, and step-up issuance over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	identityservice "exam-announce-admin/backend/internal/identity/service"
	"exam-announce-admin/backend/internal/server/middleware"
	stepupservice "exam-announce-admin/backend/internal/stepup/service"
)

// Handler serves the authentication endpoints.
type Handler struct {
	auth          *identityservice.AuthService
	stepup        *stepupservice.Service
	secureCookies bool
	sessionTTL    time.Duration
}

// NewHandler returns an auth handler. secureCookies should be true everywhere
// except plain-HTTP dev setups.
func NewHandler(auth *identityservice.AuthService, stepup *stepupservice.Service, secureCookies bool, sessionTTL time.Duration) *Handler {
	return &Handler{auth: auth, stepup: stepup, secureCookies: secureCookies, sessionTTL: sessionTTL}
}

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Code       string `json:"code"`
	BackupCode string `json:"backupCode"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// Login authenticates with email and password (plus an OTP or backup code when
// 2FA is enrolled), creates a session, and sets the session and CSRF cookies.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.Code, req.BackupCode, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if result.TwoFactorRequired {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":       "two_factor_required",
			"challengeId": result.ChallengeID,
		})
		return
	}

	h.setSessionCookies(c, result.Session.ID, result.Session.CSRFToken)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user": userResponse{
			ID:    result.User.ID,
			Email: result.User.Email,
			Name:  result.User.Name,
			Role:  string(result.User.Role),
		},
	}})
}

// Logout revokes the caller's session and clears both cookies.
func (h *Handler) Logout(c *gin.Context) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if err := h.auth.Logout(c.Request.Context(), actor.SessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"loggedOut": true}})
}

type stepUpRequest struct {
	Password   string `json:"password" binding:"required"`
	Code       string `json:"code"`
	BackupCode string `json:"backupCode"`
}

// StepUp re-verifies the caller's password (plus second factor when enrolled)
// and issues a short-lived step-up token bound to the current session.
func (h *Handler) StepUp(c *gin.Context) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req stepUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.stepup.Issue(c.Request.Context(), actor.UserID, actor.SessionID, req.Password, req.Code, req.BackupCode)
	if err != nil {
		switch {
		case errors.Is(err, stepupservice.ErrTwoFactorRequired):
			challengeID, chErr := h.stepup.RequestChallenge(c.Request.Context(), actor.UserID)
			if chErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":       "two_factor_required",
				"challengeId": challengeID,
			})
		case errors.Is(err, stepupservice.ErrNotEnrolledMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "not_enrolled_mismatch"})
		case errors.Is(err, stepupservice.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
	}})
}

func (h *Handler) setSessionCookies(c *gin.Context, sessionID, csrfToken string) {
	maxAge := int(h.sessionTTL.Seconds())
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	// Readable by the frontend, which echoes it in X-CSRF-Token.
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	for _, name := range []string{middleware.SessionCookieName, middleware.CSRFCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == middleware.SessionCookieName,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
