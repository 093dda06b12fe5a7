package session

import (
	"time"

	"github.com/ent0n29/chatform/internal/lead"
	"github.com/ent0n29/chatform/internal/rtc"
)

// State is the call lifecycle of one coordinator.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateDisconnected State = "disconnected"
)

// PendingForm is a lead record waiting for the visitor. ID changes for every
// inbound request, including one that repeats the previous record.
type PendingForm struct {
	ID         uint64
	Record     lead.Record
	Kind       lead.PayloadKind
	Caller     string
	ReceivedAt time.Time
}

func (p *PendingForm) clone() *PendingForm {
	if p == nil {
		return nil
	}
	c := *p
	c.Record = p.Record.Clone()
	return &c
}

type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventFormDisplayed     EventType = "form_displayed"
	EventFormCleared       EventType = "form_cleared"
	EventPayloadRejected   EventType = "payload_rejected"
	EventLeadDelivered     EventType = "lead_delivered"
	EventDeliveryFailed    EventType = "delivery_failed"
	EventConnectFailed     EventType = "connect_failed"
	EventMediaError        EventType = "media_error"
	EventParticipantJoined EventType = "participant_joined"
	EventDisconnected      EventType = "disconnected"
)

// Event notifies the shell of a coordinator change. Events from different
// transport goroutines are not ordered with each other, so consumers should
// reconcile with Snapshot.
type Event struct {
	Type        EventType
	State       State
	Pending     *PendingForm
	Participant rtc.Participant
	Reason      string
	Err         error
	At          time.Time
}

// Snapshot is a copy of coordinator state.
type Snapshot struct {
	State      State
	Pending    *PendingForm
	HasDetails bool
	RoomName   string
}
