package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/chatform/internal/policy"
)

// Recorder writes entries in the background. Writes are best effort: a
// failing store is logged and never reported to the caller.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger.With("component", "journal"), timeout: 2 * time.Second}
}

// Record appends an entry for sessionID. detail is redacted before it is
// stored.
func (r *Recorder) Record(sessionID string, kind Kind, detail string) {
	if r == nil || r.store == nil || sessionID == "" {
		return
	}
	redacted, changed := policy.RedactPII(detail)
	entry := Entry{
		SessionID: sessionID,
		Kind:      kind,
		Detail:    redacted,
		Redacted:  changed,
		CreatedAt: time.Now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.Append(ctx, entry); err != nil {
			r.logger.Warn("journal append failed", "session_id", sessionID, "kind", string(kind), "error", err)
		}
	}()
}

func (r *Recorder) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	return r.store.List(ctx, sessionID, limit)
}

// Flush waits for pending writes.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
