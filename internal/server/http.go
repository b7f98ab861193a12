// Package server assembles the gin router and HTTP server for the admin API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	adminpolicyhandler "exam-announce-admin/backend/internal/adminpolicy/handler"
	announcementhandler "exam-announce-admin/backend/internal/announcement/handler"
	approvalhandler "exam-announce-admin/backend/internal/approval/handler"
	audithandler "exam-announce-admin/backend/internal/audit/handler"
	devotphandler "exam-announce-admin/backend/internal/devotp/handler"
	healthhandler "exam-announce-admin/backend/internal/health/handler"
	identityhandler "exam-announce-admin/backend/internal/identity/handler"
	"exam-announce-admin/backend/internal/server/middleware"
	sessionhandler "exam-announce-admin/backend/internal/session/handler"
)

// Handlers groups the HTTP handlers mounted on the router. DevOTP may be nil;
// its route is then not mounted.
type Handlers struct {
	Auth          *identityhandler.Handler
	Announcements *announcementhandler.Handler
	Approvals     *approvalhandler.Handler
	Sessions      *sessionhandler.Handler
	PolicyConfig  *adminpolicyhandler.Handler
	Audit         *audithandler.Handler
	Health        *healthhandler.Handler
	DevOTP        *devotphandler.Handler
}

// NewRouter builds the gin engine: recovery and request telemetry on
// everything, then the public routes, then the session-authenticated and
// CSRF-guarded admin surface.
func NewRouter(sessions middleware.SessionValidator, h Handlers, loggerProvider *sdklog.LoggerProvider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestTelemetry(loggerProvider, map[string]bool{"/healthz": true}))

	r.GET("/healthz", h.Health.Check)
	r.POST("/auth/login", h.Auth.Login)
	if h.DevOTP != nil {
		r.GET("/dev/mfa/otp", h.DevOTP.Get)
	}

	authed := r.Group("/", middleware.SessionAuth(sessions), middleware.CSRFGuard())
	authed.POST("/auth/logout", h.Auth.Logout)
	authed.POST("/auth/admin/step-up", h.Auth.StepUp)

	admin := authed.Group("/admin")

	announcements := admin.Group("/announcements")
	announcements.GET("", h.Announcements.List)
	announcements.GET("/:id", h.Announcements.Get)
	announcements.GET("/:id/revisions", h.Announcements.Revisions)
	write := announcements.Group("", middleware.RequirePermission("announcements:write"))
	write.POST("", h.Announcements.Create)
	write.PUT("/:id", h.Announcements.Update)
	write.POST("/:id/approve", h.Announcements.Approve)
	write.POST("/:id/reject", h.Announcements.Reject)
	write.POST("/:id/rollback", h.Announcements.Rollback)

	approvals := admin.Group("/approvals", middleware.RequirePermission("approvals:decide"))
	approvals.GET("", h.Approvals.List)
	approvals.GET("/:id", h.Approvals.Get)
	approvals.POST("/:id/approve", h.Approvals.Approve)
	approvals.POST("/:id/reject", h.Approvals.Reject)

	admin.GET("/sessions", h.Sessions.List)
	admin.POST("/sessions/terminate-others", h.Sessions.TerminateOthers)

	policyConfig := admin.Group("/policy-config", middleware.RequirePermission("policy:manage"))
	policyConfig.GET("", h.PolicyConfig.Get)
	policyConfig.PUT("", h.PolicyConfig.Put)

	admin.GET("/audit-logs", middleware.RequirePermission("audit:read"), h.Audit.List)

	return r
}

// Server wraps the HTTP server with sane timeouts and graceful shutdown.
type Server struct {
	httpServer *http.Server
}

// New returns a Server listening on addr with the given router.
func New(addr string, router *gin.Engine) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start serves until Shutdown is called. Blocks; returns http.ErrServerClosed
// on clean shutdown.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
