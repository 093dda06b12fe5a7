package rtc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockRoomScriptedDisplayRequest(t *testing.T) {
	d := NewMockDialer(MockConfig{AgentIdentity: "agent-1", DisplayDelay: 10 * time.Millisecond})

	var joined atomic.Int32
	room, err := d.Dial(context.Background(), "mock://", "tok", Callbacks{
		OnParticipantConnected: func(p Participant) {
			if p.Identity == "agent-1" {
				joined.Add(1)
			}
		},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if joined.Load() != 1 {
		t.Fatalf("agent join callbacks = %d, want 1", joined.Load())
	}

	got := make(chan string, 1)
	if err := room.RegisterRPCMethod("display_lead_form", func(_ context.Context, inv RPCInvocation) (string, error) {
		got <- inv.Payload
		return "SUCCESS", nil
	}); err != nil {
		t.Fatalf("RegisterRPCMethod() error = %v", err)
	}

	select {
	case payload := <-got:
		if payload != defaultMockPayload {
			t.Fatalf("payload = %q, want default script payload", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scripted request not delivered")
	}
	room.Disconnect()
}

func TestMockRoomRPCAndDisconnect(t *testing.T) {
	d := NewMockDialer(MockConfig{AgentIdentity: "agent-1", DisplayDelay: -1})

	var reasons []string
	room, err := d.Dial(context.Background(), "mock://", "tok", Callbacks{
		OnDisconnected: func(reason string) { reasons = append(reasons, reason) },
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	mock := d.LastRoom()

	if err := room.RegisterRPCMethod("m", func(context.Context, RPCInvocation) (string, error) { return "ok", nil }); err != nil {
		t.Fatalf("RegisterRPCMethod() error = %v", err)
	}
	if err := room.RegisterRPCMethod("m", func(context.Context, RPCInvocation) (string, error) { return "", nil }); !errors.Is(err, ErrMethodRegistered) {
		t.Fatalf("second register error = %v, want ErrMethodRegistered", err)
	}

	ack, err := room.PerformRPC(context.Background(), RPCRequest{DestinationIdentity: "agent-1", Method: "submit_lead_form", Payload: "{}"})
	if err != nil || ack != "SUCCESS" {
		t.Fatalf("PerformRPC() = %q, %v", ack, err)
	}
	if subs := mock.Submissions(); len(subs) != 1 || subs[0].Method != "submit_lead_form" {
		t.Fatalf("submissions = %+v", subs)
	}

	if _, err := room.PerformRPC(context.Background(), RPCRequest{DestinationIdentity: "nobody", Method: "x"}); err == nil {
		t.Fatalf("PerformRPC() to unknown participant should fail")
	}

	mock.Drop("network")
	room.Disconnect()
	if len(reasons) != 1 || reasons[0] != "network" {
		t.Fatalf("disconnect reasons = %v, want exactly [network]", reasons)
	}
	if _, err := mock.Invoke(context.Background(), "m", "{}"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Invoke() after drop error = %v, want ErrNotConnected", err)
	}
}

func TestMockDialerFailNext(t *testing.T) {
	d := NewMockDialer(MockConfig{DisplayDelay: -1})
	boom := errors.New("boom")
	d.FailNext(boom)
	if _, err := d.Dial(context.Background(), "mock://", "tok", Callbacks{}); !errors.Is(err, boom) {
		t.Fatalf("Dial() error = %v, want boom", err)
	}
	if _, err := d.Dial(context.Background(), "mock://", "tok", Callbacks{}); err != nil {
		t.Fatalf("second Dial() error = %v", err)
	}
}

func TestNewDialerResolvesProvider(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Provider: "auto"}, "mock"},
		{Config{Provider: "auto", ServerURL: "wss://x"}, "livekit"},
		{Config{Provider: "mock", ServerURL: "wss://x"}, "mock"},
		{Config{Provider: "livekit", ServerURL: "wss://x"}, "livekit"},
	}
	for _, tc := range cases {
		_, got, err := NewDialer(tc.cfg)
		if err != nil {
			t.Fatalf("NewDialer(%+v) error = %v", tc.cfg, err)
		}
		if got != tc.want {
			t.Fatalf("NewDialer(%+v) = %q, want %q", tc.cfg, got, tc.want)
		}
	}
	if _, _, err := NewDialer(Config{Provider: "carrier-pigeon"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("unknown provider error = %v", err)
	}
}
