package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"exam-announce-admin/backend/internal/audit/domain"
	auditrepo "exam-announce-admin/backend/internal/audit/repository"
)

// emitTimeout is the max time allowed for a single async fanout emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before
// shutting down OTel providers, so in-flight async audit emits have time to
// complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// EventEmitter forwards an audit entry to a secondary sink (Kafka stream, OTel logs).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, entry *domain.AuditLog) error
}

// Entry is one audit event as seen by callers; the Logger stamps id, ip, and time.
type Entry struct {
	UserID         string
	Action         string
	AnnouncementID string
	Note           string
	Metadata       domain.Metadata
}

// AuditLogger writes a single audit event. Log is best-effort: failures are
// logged and do not affect the caller, so a broken audit path never blocks
// the admin workflow it describes.
type AuditLogger interface {
	Log(ctx context.Context, e Entry)
}

// Logger implements AuditLogger using the audit repository, an optional IP
// extractor, and optional secondary emitters.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitters    []EventEmitter
}

// NewLogger returns an AuditLogger that persists to repo and fans out to emitters.
// ipExtractor may be nil; then IP is recorded as "unknown". Nil emitters are skipped.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitters ...EventEmitter) *Logger {
	var kept []EventEmitter
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitters: kept}
}

// Log writes one audit log entry and asynchronously forwards it to the
// configured emitters. Best-effort: errors are logged and not returned.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:             uuid.New().String(),
		UserID:         e.UserID,
		Action:         e.Action,
		AnnouncementID: e.AnnouncementID,
		Note:           e.Note,
		IP:             ip,
		Metadata:       e.Metadata.Encode(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s: %v", e.Action, err)
	}
	for _, emitter := range l.emitters {
		emitAsync(emitter, entry)
	}
}

// emitAsync runs Emit in a goroutine with a short timeout so the caller is not
// blocked. The goroutine uses context.Background() so request cancellation does
// not abort an in-flight emit.
func emitAsync(emitter EventEmitter, entry *domain.AuditLog) {
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, entry); err != nil {
			log.Printf("audit: async emit failed: %v", err)
		}
	}()
}
