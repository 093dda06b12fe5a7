package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMockPayload = `{"name":"Jane Doe","inquiry":"Need a quote for a kitchen remodel","contact_detail":"jane@example.com"}`

// MockConfig scripts the simulated agent in a mock room.
type MockConfig struct {
	AgentIdentity string
	// DisplayDelay is how long after joining the agent asks for the form.
	// Negative disables the scripted request.
	DisplayDelay   time.Duration
	DisplayMethod  string
	DisplayPayload string
}

// MockDialer creates in-process rooms with a simulated agent participant.
// It is used for local runs without a media server and by tests.
type MockDialer struct {
	cfg MockConfig

	mu       sync.Mutex
	failNext error
	rooms    []*MockRoom
}

func NewMockDialer(cfg MockConfig) *MockDialer {
	if cfg.AgentIdentity == "" {
		cfg.AgentIdentity = "agent"
	}
	if cfg.DisplayMethod == "" {
		cfg.DisplayMethod = "display_lead_form"
	}
	if cfg.DisplayPayload == "" {
		cfg.DisplayPayload = defaultMockPayload
	}
	return &MockDialer{cfg: cfg}
}

// FailNext makes the next Dial return err.
func (d *MockDialer) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = err
}

// Rooms returns every room dialed so far.
func (d *MockDialer) Rooms() []*MockRoom {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockRoom(nil), d.rooms...)
}

// LastRoom returns the most recently dialed room or nil.
func (d *MockDialer) LastRoom() *MockRoom {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rooms) == 0 {
		return nil
	}
	return d.rooms[len(d.rooms)-1]
}

func (d *MockDialer) Dial(ctx context.Context, serverURL, token string, cb Callbacks) (Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("mock dial: empty token")
	}

	d.mu.Lock()
	if err := d.failNext; err != nil {
		d.failNext = nil
		d.mu.Unlock()
		return nil, err
	}
	r := &MockRoom{
		local:    "visitor-" + uuid.NewString(),
		cb:       cb,
		handlers: map[string]RPCHandler{},
		remote:   map[string]Participant{},
		done:     make(chan struct{}),
	}
	d.rooms = append(d.rooms, r)
	d.mu.Unlock()

	agent := Participant{Identity: d.cfg.AgentIdentity, SID: "PA_" + uuid.NewString()[:8], Name: "Agent", Kind: "agent"}
	r.AddParticipant(agent)

	if d.cfg.DisplayDelay >= 0 {
		go r.script(d.cfg)
	}
	return r, nil
}

// Submission is a request received by the simulated agent.
type Submission struct {
	Method  string
	Payload string
}

// MockRoom is an in-process Room.
type MockRoom struct {
	local string
	cb    Callbacks

	mu           sync.Mutex
	handlers     map[string]RPCHandler
	remote       map[string]Participant
	submissions  []Submission
	submitErr    error
	disconnected bool
	done         chan struct{}
}

func (r *MockRoom) LocalIdentity() string { return r.local }

func (r *MockRoom) RemoteParticipants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.remote))
	for _, p := range r.remote {
		out = append(out, p)
	}
	return out
}

func (r *MockRoom) RegisterRPCMethod(method string, handler RPCHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		return ErrNotConnected
	}
	if _, ok := r.handlers[method]; ok {
		return fmt.Errorf("%w: %s", ErrMethodRegistered, method)
	}
	r.handlers[method] = handler
	return nil
}

func (r *MockRoom) UnregisterRPCMethod(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

// Registered reports whether a handler is registered for method.
func (r *MockRoom) Registered(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[method]
	return ok
}

func (r *MockRoom) PerformRPC(ctx context.Context, req RPCRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		return "", ErrNotConnected
	}
	if _, ok := r.remote[req.DestinationIdentity]; !ok {
		return "", fmt.Errorf("mock rpc: no participant %q", req.DestinationIdentity)
	}
	r.submissions = append(r.submissions, Submission{Method: req.Method, Payload: req.Payload})
	if r.submitErr != nil {
		return "", r.submitErr
	}
	return "SUCCESS", nil
}

// SetSubmitError makes later PerformRPC calls fail after being recorded.
func (r *MockRoom) SetSubmitError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitErr = err
}

// Submissions returns the requests the simulated agent received.
func (r *MockRoom) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Submission(nil), r.submissions...)
}

// Invoke plays the agent calling method on the local participant.
func (r *MockRoom) Invoke(ctx context.Context, method, payload string) (string, error) {
	r.mu.Lock()
	h, ok := r.handlers[method]
	disconnected := r.disconnected
	r.mu.Unlock()
	if disconnected {
		return "", ErrNotConnected
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return h(ctx, RPCInvocation{
		RequestID:       uuid.NewString(),
		CallerIdentity:  "agent",
		Method:          method,
		Payload:         payload,
		ResponseTimeout: 10 * time.Second,
	})
}

// AddParticipant simulates a remote participant joining.
func (r *MockRoom) AddParticipant(p Participant) {
	r.mu.Lock()
	r.remote[p.Identity] = p
	r.mu.Unlock()
	if r.cb.OnParticipantConnected != nil {
		r.cb.OnParticipantConnected(p)
	}
}

// RemoveParticipant simulates a remote participant leaving.
func (r *MockRoom) RemoveParticipant(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remote, identity)
}

// EmitMediaError simulates a local media device failure.
func (r *MockRoom) EmitMediaError(err error) {
	if r.cb.OnMediaDevicesError != nil {
		r.cb.OnMediaDevicesError(err)
	}
}

// Drop simulates a remote or network initiated disconnect.
func (r *MockRoom) Drop(reason string) {
	if !r.markDisconnected() {
		return
	}
	if r.cb.OnDisconnected != nil {
		r.cb.OnDisconnected(reason)
	}
}

func (r *MockRoom) Disconnect() {
	if !r.markDisconnected() {
		return
	}
	if r.cb.OnDisconnected != nil {
		r.cb.OnDisconnected("client_initiated")
	}
}

// Disconnected reports whether the room has been left.
func (r *MockRoom) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

func (r *MockRoom) markDisconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		return false
	}
	r.disconnected = true
	r.handlers = map[string]RPCHandler{}
	close(r.done)
	return true
}

func (r *MockRoom) script(cfg MockConfig) {
	timer := time.NewTimer(cfg.DisplayDelay)
	defer timer.Stop()

	// The local handler is registered after Dial returns, so wait for it.
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()
	waited := false
	for {
		select {
		case <-r.done:
			return
		case <-timer.C:
			waited = true
		case <-poll.C:
		}
		if waited && r.Registered(cfg.DisplayMethod) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, _ = r.Invoke(ctx, cfg.DisplayMethod, cfg.DisplayPayload)
			cancel()
			return
		}
	}
}
