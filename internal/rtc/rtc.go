// Package rtc is the boundary to the real-time room transport. Media is not
// handled here; a session only needs signalling, participants and RPC.
package rtc

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected     = errors.New("room not connected")
	ErrMethodRegistered = errors.New("rpc method already registered")
	ErrUnknownMethod    = errors.New("rpc method not registered")
	ErrUnknownProvider  = errors.New("unknown rtc provider")
)

// Participant identifies a remote endpoint in a room.
type Participant struct {
	Identity string
	SID      string
	Name     string
	Kind     string
	Metadata string
}

// RPCInvocation is an inbound request addressed to the local participant.
type RPCInvocation struct {
	RequestID       string
	CallerIdentity  string
	Method          string
	Payload         string
	ResponseTimeout time.Duration
}

// RPCHandler returns the acknowledgement sent back to the caller, or an error
// that the caller receives as a rejection.
type RPCHandler func(ctx context.Context, inv RPCInvocation) (string, error)

// RPCRequest is an outbound invocation on a remote participant.
type RPCRequest struct {
	DestinationIdentity string
	Method              string
	Payload             string
	ResponseTimeout     time.Duration
}

// Callbacks are room lifecycle hooks. They run on transport goroutines.
type Callbacks struct {
	OnDisconnected         func(reason string)
	OnParticipantConnected func(p Participant)
	OnMediaDevicesError    func(err error)
}

// Room is one joined room.
type Room interface {
	LocalIdentity() string
	RemoteParticipants() []Participant
	RegisterRPCMethod(method string, handler RPCHandler) error
	UnregisterRPCMethod(method string)
	PerformRPC(ctx context.Context, req RPCRequest) (string, error)
	Disconnect()
}

// Dialer joins rooms.
type Dialer interface {
	Dial(ctx context.Context, serverURL, token string, cb Callbacks) (Room, error)
}

// Config selects and configures a Dialer.
type Config struct {
	Provider      string
	ServerURL     string
	AgentIdentity string
	Mock          MockConfig
}

// NewDialer resolves the provider name. "auto" picks livekit when a server
// URL is configured and the mock room otherwise.
func NewDialer(cfg Config) (Dialer, string, error) {
	switch cfg.Provider {
	case "", "auto":
		if cfg.ServerURL != "" {
			return NewLiveKitDialer(), "livekit", nil
		}
		return NewMockDialer(withAgent(cfg.Mock, cfg.AgentIdentity)), "mock", nil
	case "livekit":
		return NewLiveKitDialer(), "livekit", nil
	case "mock":
		return NewMockDialer(withAgent(cfg.Mock, cfg.AgentIdentity)), "mock", nil
	default:
		return nil, "", ErrUnknownProvider
	}
}

func withAgent(m MockConfig, identity string) MockConfig {
	if m.AgentIdentity == "" {
		m.AgentIdentity = identity
	}
	return m
}
