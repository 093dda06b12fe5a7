package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKitDialer joins LiveKit rooms as a data-only participant.
type LiveKitDialer struct{}

func NewLiveKitDialer() *LiveKitDialer { return &LiveKitDialer{} }

type dialResult struct {
	room *lksdk.Room
	err  error
}

func (d *LiveKitDialer) Dial(ctx context.Context, serverURL, token string, cb Callbacks) (Room, error) {
	if serverURL == "" {
		return nil, errors.New("livekit dial: empty server url")
	}
	r := &liveKitRoom{cb: cb}

	callback := &lksdk.RoomCallback{
		OnDisconnected: func() {
			r.fireDisconnected("server_disconnect")
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			if cb.OnParticipantConnected != nil {
				cb.OnParticipantConnected(participantFrom(rp))
			}
		},
	}

	// The SDK connect call is not context aware; a late success after ctx is
	// done is disconnected right away.
	resCh := make(chan dialResult, 1)
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(serverURL, token, callback, lksdk.WithAutoSubscribe(false))
		resCh <- dialResult{room: room, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("livekit connect: %w", res.err)
		}
		r.room = res.room
		r.rpc = res.room
		return r, nil
	case <-ctx.Done():
		go func() {
			if res := <-resCh; res.err == nil && res.room != nil {
				res.room.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// rpcRegistrar is the handler table of a connected room.
type rpcRegistrar interface {
	RegisterRpcMethod(method string, handler lksdk.RpcHandlerFunc) error
	UnregisterRpcMethod(method string)
}

type liveKitRoom struct {
	room *lksdk.Room
	rpc  rpcRegistrar
	cb   Callbacks
	once sync.Once

	mu         sync.Mutex
	registered map[string]bool
}

func (r *liveKitRoom) LocalIdentity() string {
	return r.room.LocalParticipant.Identity()
}

func (r *liveKitRoom) RemoteParticipants() []Participant {
	remote := r.room.GetRemoteParticipants()
	out := make([]Participant, 0, len(remote))
	for _, rp := range remote {
		out = append(out, participantFrom(rp))
	}
	return out
}

// RegisterRPCMethod installs handler for method. The SDK reports an
// "already registered" error on the call that actually stores the handler
// and succeeds silently when one is present, so registration is tracked
// here and the SDK slot is cleared before every store.
func (r *liveKitRoom) RegisterRPCMethod(method string, handler RPCHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered[method] {
		return fmt.Errorf("%w: %s", ErrMethodRegistered, method)
	}

	r.rpc.UnregisterRpcMethod(method)
	if err := r.rpc.RegisterRpcMethod(method, rpcHandlerFunc(method, handler)); err != nil && !isAlreadyRegistered(err) {
		return fmt.Errorf("livekit register %s: %w", method, err)
	}
	if r.registered == nil {
		r.registered = make(map[string]bool)
	}
	r.registered[method] = true
	return nil
}

func (r *liveKitRoom) UnregisterRPCMethod(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, method)
	r.rpc.UnregisterRpcMethod(method)
}

func isAlreadyRegistered(err error) bool {
	return strings.Contains(err.Error(), "already registered")
}

func rpcHandlerFunc(method string, handler RPCHandler) lksdk.RpcHandlerFunc {
	return func(data lksdk.RpcInvocationData) (string, error) {
		timeout := data.ResponseTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return handler(ctx, RPCInvocation{
			RequestID:       data.RequestID,
			CallerIdentity:  data.CallerIdentity,
			Method:          method,
			Payload:         data.Payload,
			ResponseTimeout: data.ResponseTimeout,
		})
	}
}

type rpcResult struct {
	payload string
	err     error
}

func (r *liveKitRoom) PerformRPC(ctx context.Context, req RPCRequest) (string, error) {
	params := lksdk.PerformRpcParams{
		DestinationIdentity: req.DestinationIdentity,
		Method:              req.Method,
		Payload:             req.Payload,
	}
	if req.ResponseTimeout > 0 {
		timeout := req.ResponseTimeout
		params.ResponseTimeout = &timeout
	}

	resCh := make(chan rpcResult, 1)
	go func() {
		res, err := r.room.LocalParticipant.PerformRpc(params)
		out := rpcResult{err: err}
		if res != nil {
			out.payload = *res
		}
		resCh <- out
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			return "", fmt.Errorf("livekit rpc %s: %w", req.Method, res.err)
		}
		return res.payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *liveKitRoom) Disconnect() {
	r.room.Disconnect()
	r.fireDisconnected("client_initiated")
}

func (r *liveKitRoom) fireDisconnected(reason string) {
	r.once.Do(func() {
		if r.cb.OnDisconnected != nil {
			r.cb.OnDisconnected(reason)
		}
	})
}

func participantFrom(rp *lksdk.RemoteParticipant) Participant {
	return Participant{
		Identity: rp.Identity(),
		SID:      rp.SID(),
		Name:     rp.Name(),
		Metadata: rp.Metadata(),
	}
}
