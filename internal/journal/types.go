// Package journal keeps a diagnostic trail of visitor sessions. It never
// stores lead field values.
package journal

import (
	"context"
	"time"
)

type Kind string

const (
	KindSessionStarted Kind = "session_started"
	KindConnected      Kind = "connected"
	KindFormDisplayed  Kind = "form_displayed"
	KindFormSubmitted  Kind = "form_submitted"
	KindFormCancelled  Kind = "form_cancelled"
	KindDeliveryFailed Kind = "delivery_failed"
	KindDisconnected   Kind = "disconnected"
	KindConnectFailed  Kind = "connect_failed"
	KindDetailsFailed  Kind = "details_failed"
	KindSessionExpired Kind = "session_expired"
)

// Entry is one lifecycle event of a visitor session.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      Kind      `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Redacted  bool      `json:"redacted"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and lists journal entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Close() error
}
