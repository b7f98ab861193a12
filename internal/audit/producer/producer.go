// Package producer defines the interface for streaming audit events (e.g. to Kafka).
package producer

import (
	"context"

	"exam-announce-admin/backend/internal/audit/domain"
)

// Producer streams audit events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single audit event. Implementations may block briefly; call from a goroutine if needed.
	// Returns an error only on write failure; callers typically log and ignore.
	Emit(ctx context.Context, entry *domain.AuditLog) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
