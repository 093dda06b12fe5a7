package session

import "time"

// CreateRequest defines payload for creating a new visitor session.
type CreateRequest struct {
	VisitorID string `json:"visitor_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	VisitorID       string    `json:"visitor_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

// EndResponse summarizes a visitor session once it has ended.
type EndResponse struct {
	SessionID  string `json:"session_id"`
	Status     Status `json:"status"`
	CallState  State  `json:"call_state"`
	FormsShown int    `json:"forms_shown"`
	LeadsSent  int    `json:"leads_sent"`
	DurationMS int64  `json:"duration_ms"`
}

// Summary builds the end-of-session summary for s.
func (s *Session) Summary() EndResponse {
	return EndResponse{
		SessionID:  s.ID,
		Status:     s.Status,
		CallState:  s.CallState,
		FormsShown: s.FormsShown,
		LeadsSent:  s.LeadsSent,
		DurationMS: s.LastActivityAt.Sub(s.StartedAt).Milliseconds(),
	}
}
