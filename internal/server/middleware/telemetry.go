package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// RequestTelemetry returns middleware that records each request as an OTel log
// record after the handler runs: method, route, status, duration, and client IP,
// plus the actor when authenticated. Best-effort and async so a slow exporter
// never delays the response. skipPaths are not recorded (e.g. the health probe).
//
// It also stores the resolved client IP on the request context so the audit
// logger can stamp entries without depending on gin.
func RequestTelemetry(provider *sdklog.LoggerProvider, skipPaths map[string]bool) gin.HandlerFunc {
	var logger otellog.Logger
	if provider != nil {
		logger = provider.Logger("examadmin.http")
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), ip))

		start := time.Now()
		c.Next()

		if logger == nil || skipPaths[c.FullPath()] {
			return
		}
		rec := otellog.Record{}
		rec.SetTimestamp(start.UTC())
		rec.SetBody(otellog.StringValue("http_request"))
		rec.AddAttributes(
			otellog.String("method", c.Request.Method),
			otellog.String("route", c.FullPath()),
			otellog.Int("status", c.Writer.Status()),
			otellog.Int64("duration_ms", time.Since(start).Milliseconds()),
			otellog.String("client_ip", ip),
		)
		if actor, ok := GetActor(c.Request.Context()); ok {
			rec.AddAttributes(
				otellog.String("user_id", actor.UserID),
				otellog.String("session_id", actor.SessionID),
			)
		}
		go func() {
			emitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Emit(emitCtx, rec)
		}()
	}
}
