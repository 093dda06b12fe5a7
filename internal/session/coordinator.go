package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/chatform/internal/connection"
	"github.com/ent0n29/chatform/internal/lead"
	"github.com/ent0n29/chatform/internal/rtc"
)

const (
	MethodDisplayLeadForm = "display_lead_form"
	MethodSubmitLeadForm  = "submit_lead_form"
	AckSuccess            = "SUCCESS"
)

var (
	ErrNoConnectionDetails = errors.New("connection details not available")
	ErrNotIdle             = errors.New("session is not idle")
	ErrNotConnected        = errors.New("not connected")
	ErrAgentNotFound       = errors.New("agent participant not found")
	ErrClosed              = errors.New("coordinator closed")
	ErrAborted             = errors.New("connect aborted")
	ErrUnexpectedMethod    = errors.New("unexpected rpc method")
)

type CoordinatorConfig struct {
	AgentIdentity string
	SubmitTimeout time.Duration
	EventBuffer   int
	// MaxQueuedEvents bounds events waiting for the reader. Past it new
	// events are dropped and reported to OnDrop.
	MaxQueuedEvents int
	OnDrop          func(EventType)
	Logger          *slog.Logger
}

// Coordinator owns one visitor call: connecting, the inbound form request
// handler, the pending form and teardown. All of its state is private and
// guarded by mu; nothing outside mutates it.
type Coordinator struct {
	dialer rtc.Dialer
	cfg    CoordinatorConfig
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	details    *connection.Details
	room       rtc.Room
	release    func()
	epoch      uint64
	pending    *PendingForm
	nextFormID uint64
	closed     bool

	// emit never blocks: events queue here and pump forwards them, so the
	// reader may call back into the coordinator from its own loop.
	qmu    sync.Mutex
	queue  []Event
	wake   chan struct{}
	events chan Event
	done   chan struct{}
}

func NewCoordinator(dialer rtc.Dialer, cfg CoordinatorConfig) *Coordinator {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.MaxQueuedEvents <= 0 {
		cfg.MaxQueuedEvents = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		dialer: dialer,
		cfg:    cfg,
		logger: logger.With("component", "coordinator"),
		state:  StateIdle,
		wake:   make(chan struct{}, 1),
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

// Events delivers coordinator notifications. The channel is never closed;
// stop reading when the owning context ends.
func (c *Coordinator) Events() <-chan Event { return c.events }

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:      c.state,
		Pending:    c.pending.clone(),
		HasDetails: c.details != nil,
	}
	if c.details != nil {
		s.RoomName = c.details.RoomName
	}
	return s
}

// Pending returns a copy of the pending form, or nil.
func (c *Coordinator) Pending() *PendingForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.clone()
}

// SetConnectionDetails caches details for the next Start. A disconnected
// coordinator becomes idle again.
func (c *Coordinator) SetConnectionDetails(d connection.Details) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.details = &d
	changed := false
	if c.state == StateDisconnected {
		c.state = StateIdle
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.emit(Event{Type: EventStateChanged, State: StateIdle})
	}
}

func (c *Coordinator) ClearConnectionDetails() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details = nil
}

// Start connects using the cached details. Without details it returns
// ErrNoConnectionDetails and changes nothing. It blocks until the transport
// connects or fails.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.details == nil {
		c.mu.Unlock()
		return ErrNoConnectionDetails
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.state = StateConnecting
	c.epoch++
	epoch := c.epoch
	details := *c.details
	c.mu.Unlock()

	c.emit(Event{Type: EventStateChanged, State: StateConnecting})
	c.logger.Info("connecting", "room", details.RoomName)

	room, err := c.dialer.Dial(ctx, details.ServerURL, details.ParticipantToken, c.callbacks(epoch))

	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != StateConnecting {
		c.mu.Unlock()
		if room != nil {
			room.Disconnect()
		}
		return ErrAborted
	}
	if err != nil {
		c.state = StateDisconnected
		c.details = nil
		c.epoch++
		c.mu.Unlock()

		c.logger.Warn("connect failed", "room", details.RoomName, "error", err)
		c.emit(Event{Type: EventConnectFailed, State: StateDisconnected, Err: err})
		c.emit(Event{Type: EventDisconnected, State: StateDisconnected, Reason: "connect_failed", Err: err})
		return fmt.Errorf("connect: %w", err)
	}

	release, err := c.acquireHandler(room, epoch)
	if err != nil {
		c.state = StateDisconnected
		c.details = nil
		c.epoch++
		c.mu.Unlock()

		room.Disconnect()
		c.logger.Error("register form handler failed", "error", err)
		c.emit(Event{Type: EventConnectFailed, State: StateDisconnected, Err: err})
		c.emit(Event{Type: EventDisconnected, State: StateDisconnected, Reason: "connect_failed", Err: err})
		return fmt.Errorf("register %s: %w", MethodDisplayLeadForm, err)
	}
	c.room = room
	c.release = release
	c.state = StateActive
	c.mu.Unlock()

	c.logger.Info("connected", "room", details.RoomName, "identity", room.LocalIdentity())
	c.emit(Event{Type: EventStateChanged, State: StateActive})
	return nil
}

// acquireHandler registers the form request handler and returns its release
// func. Callers run release on every exit from the active state.
func (c *Coordinator) acquireHandler(room rtc.Room, epoch uint64) (func(), error) {
	handler := func(ctx context.Context, inv rtc.RPCInvocation) (string, error) {
		return c.handleDisplayRequest(ctx, epoch, inv)
	}
	if err := room.RegisterRPCMethod(MethodDisplayLeadForm, handler); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { room.UnregisterRPCMethod(MethodDisplayLeadForm) })
	}, nil
}

func (c *Coordinator) handleDisplayRequest(_ context.Context, epoch uint64, inv rtc.RPCInvocation) (string, error) {
	if inv.Method != "" && inv.Method != MethodDisplayLeadForm {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedMethod, inv.Method)
	}

	payload, err := lead.ParsePayload(inv.Payload)
	if err != nil {
		c.logger.Warn("rejected form request", "caller", inv.CallerIdentity, "request_id", inv.RequestID, "error", err)
		c.emit(Event{Type: EventPayloadRejected, Err: err})
		return "", fmt.Errorf("failed to handle or parse payload: %w", err)
	}

	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != StateActive {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	c.nextFormID++
	pf := &PendingForm{
		ID:         c.nextFormID,
		Record:     payload.Record,
		Kind:       payload.Kind,
		Caller:     inv.CallerIdentity,
		ReceivedAt: time.Now().UTC(),
	}
	replaced := c.pending != nil
	c.pending = pf
	c.mu.Unlock()

	c.logger.Info("form requested", "form_id", pf.ID, "shape", string(pf.Kind), "replaced", replaced)
	c.emit(Event{Type: EventFormDisplayed, State: StateActive, Pending: pf.clone()})
	return AckSuccess, nil
}

// Submit sends the visitor's record for form formID to the agent. That form
// stops being pending whether or not delivery succeeds, and delivery is not
// retried. A newer form that already replaced it stays pending. formID 0
// clears whatever is pending.
func (c *Coordinator) Submit(ctx context.Context, formID uint64, record lead.Record) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	hadPending := c.clearPendingLocked(formID)
	room := c.room
	active := c.state == StateActive && room != nil
	c.mu.Unlock()

	if hadPending {
		c.emit(Event{Type: EventFormCleared})
	}
	if !active {
		c.emit(Event{Type: EventDeliveryFailed, Err: ErrNotConnected})
		return ErrNotConnected
	}

	err := c.deliver(ctx, room, record)
	if c.isClosed() {
		return err
	}
	if err != nil {
		c.logger.Warn("lead delivery failed", "error", err)
		c.emit(Event{Type: EventDeliveryFailed, Err: err})
		return err
	}
	c.logger.Info("lead delivered", "agent", c.cfg.AgentIdentity)
	c.emit(Event{Type: EventLeadDelivered})
	return nil
}

func (c *Coordinator) deliver(ctx context.Context, room rtc.Room, record lead.Record) error {
	if !hasParticipant(room.RemoteParticipants(), c.cfg.AgentIdentity) {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, c.cfg.AgentIdentity)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()
	_, err = room.PerformRPC(ctx, rtc.RPCRequest{
		DestinationIdentity: c.cfg.AgentIdentity,
		Method:              MethodSubmitLeadForm,
		Payload:             string(payload),
		ResponseTimeout:     c.cfg.SubmitTimeout,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", MethodSubmitLeadForm, err)
	}
	return nil
}

// Cancel drops form formID without sending anything. A newer pending form
// is kept; formID 0 drops whatever is pending.
func (c *Coordinator) Cancel(formID uint64) {
	c.mu.Lock()
	hadPending := c.clearPendingLocked(formID)
	c.mu.Unlock()
	if hadPending {
		c.emit(Event{Type: EventFormCleared})
	}
}

func (c *Coordinator) clearPendingLocked(formID uint64) bool {
	if c.pending == nil || (formID != 0 && c.pending.ID != formID) {
		return false
	}
	c.pending = nil
	return true
}

// ReportMediaError surfaces a local media failure. The call continues.
func (c *Coordinator) ReportMediaError(err error) {
	c.logger.Warn("media device error", "error", err)
	c.emit(Event{Type: EventMediaError, Err: err})
}

// Disconnect ends the current call at the visitor's request.
func (c *Coordinator) Disconnect() {
	c.handleDisconnect(0, false, "client_initiated")
}

// Close tears the coordinator down for good: the handler is unregistered,
// the transport is left, and results arriving later are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	room, release := c.detachLocked()
	c.mu.Unlock()

	if release != nil {
		release()
	}
	if room != nil {
		room.Disconnect()
	}
	close(c.done)
}

func (c *Coordinator) callbacks(epoch uint64) rtc.Callbacks {
	return rtc.Callbacks{
		OnDisconnected: func(reason string) {
			c.handleDisconnect(epoch, true, reason)
		},
		OnParticipantConnected: func(p rtc.Participant) {
			if c.stale(epoch) {
				return
			}
			c.logger.Info("participant connected", "identity", p.Identity, "sid", p.SID, "kind", p.Kind)
			c.emit(Event{Type: EventParticipantJoined, Participant: p})
		},
		OnMediaDevicesError: func(err error) {
			if c.stale(epoch) {
				return
			}
			c.ReportMediaError(err)
		},
	}
}

// handleDisconnect moves a connecting or active call to disconnected. With
// matchEpoch set, events from an earlier connection are ignored.
func (c *Coordinator) handleDisconnect(epoch uint64, matchEpoch bool, reason string) {
	c.mu.Lock()
	if c.closed || (matchEpoch && c.epoch != epoch) {
		c.mu.Unlock()
		return
	}
	if c.state != StateActive && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	hadPending := c.pending != nil
	room, release := c.detachLocked()
	c.mu.Unlock()

	if release != nil {
		release()
	}
	if room != nil && !matchEpoch {
		room.Disconnect()
	}

	c.logger.Info("disconnected", "reason", reason, "form_dismissed", hadPending)
	c.emit(Event{Type: EventDisconnected, State: StateDisconnected, Reason: reason})
}

// detachLocked clears everything tied to the current connection. The caller
// must run release and Disconnect on the returned values after unlocking.
func (c *Coordinator) detachLocked() (rtc.Room, func()) {
	room, release := c.room, c.release
	c.room = nil
	c.release = nil
	c.pending = nil
	c.details = nil
	c.epoch++
	if c.state == StateActive || c.state == StateConnecting {
		c.state = StateDisconnected
	}
	return room, release
}

func (c *Coordinator) stale(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.epoch != epoch
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) emit(ev Event) {
	if c.isClosed() {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	c.qmu.Lock()
	if len(c.queue) >= c.cfg.MaxQueuedEvents {
		c.qmu.Unlock()
		c.logger.Warn("event queue full, dropping event", "type", string(ev.Type))
		if c.cfg.OnDrop != nil {
			c.cfg.OnDrop(ev.Type)
		}
		return
	}
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pump forwards queued events in order until Close.
func (c *Coordinator) pump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			c.qmu.Lock()
			if len(c.queue) == 0 {
				c.qmu.Unlock()
				break
			}
			ev := c.queue[0]
			c.queue[0] = Event{}
			c.queue = c.queue[1:]
			c.qmu.Unlock()

			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}
}

// QueuedEvents reports events emitted but not yet handed to the reader.
func (c *Coordinator) QueuedEvents() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.queue)
}

func hasParticipant(ps []rtc.Participant, identity string) bool {
	for _, p := range ps {
		if p.Identity == identity {
			return true
		}
	}
	return false
}
