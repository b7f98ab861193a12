package middleware

import "context"

type contextKey struct{ name string }

var (
	actorKey    = contextKey{"actor"}
	clientIPKey = contextKey{"client_ip"}
)

// Actor is the authenticated caller resolved from the session cookie.
// Handlers and services read it via GetActor; nothing below the middleware
// touches the cookie itself.
type Actor struct {
	UserID      string
	SessionID   string
	Role        string
	Permissions []string
	// csrfToken is the value bound to the session; the CSRF guard compares
	// it against the request header.
	CSRFToken string
}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// GetActor returns the actor from context and true if set; otherwise a zero
// Actor and false.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// WithClientIP returns a context carrying the resolved client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the client IP stored by the telemetry middleware,
// or "" if none was recorded.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// HasPermission reports whether the actor's role grants perm.
func (a Actor) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
