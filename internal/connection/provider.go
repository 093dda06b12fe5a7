// Package connection fetches per-call connection details from the token
// service.
package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrFetchFailed = errors.New("connection details fetch failed")

// Details are what a session needs to join one room. They are never mutated
// after creation.
type Details struct {
	ServerURL        string `json:"server_url"`
	RoomName         string `json:"room_name"`
	ParticipantName  string `json:"participant_name"`
	ParticipantToken string `json:"-"`
}

// StatusError carries a non-success response from the token service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("token service status %d: %s", e.StatusCode, e.Body)
}

// Fetcher is the contract the shell depends on.
type Fetcher interface {
	Fetch(ctx context.Context) (Details, error)
}

type Config struct {
	TokenServiceURL string
	ServerURL       string
	CallerID        string
	CallerField     string
	ParticipantName string
	Timeout         time.Duration
}

// Provider requests a participant token for a freshly named room. It never
// retries; callers decide when to fetch again.
type Provider struct {
	cfg     Config
	client  *http.Client
	newID   func() string
	observe func(time.Duration, error)
}

type Option func(*Provider)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithObserver is called after every fetch with its latency and result.
func WithObserver(fn func(time.Duration, error)) Option {
	return func(p *Provider) { p.observe = fn }
}

func NewProvider(cfg Config, opts ...Option) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.CallerField) == "" {
		cfg.CallerField = "caller_id"
	}
	cfg.TokenServiceURL = strings.TrimRight(strings.TrimSpace(cfg.TokenServiceURL), "/")
	p := &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Fetch performs one token request for a new unique room.
func (p *Provider) Fetch(ctx context.Context) (Details, error) {
	started := time.Now()
	d, err := p.fetch(ctx)
	if p.observe != nil {
		p.observe(time.Since(started), err)
	}
	return d, err
}

func (p *Provider) fetch(ctx context.Context) (Details, error) {
	room := p.roomName()

	body := map[string]string{"room_name": room}
	if p.cfg.CallerID != "" {
		body[p.cfg.CallerField] = p.cfg.CallerID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Details{}, fmt.Errorf("%w: marshal request: %v", ErrFetchFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenServiceURL+"/api/token", bytes.NewReader(payload))
	if err != nil {
		return Details{}, fmt.Errorf("%w: create request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return Details{}, fmt.Errorf("%w: send request: %w", ErrFetchFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Details{}, fmt.Errorf("%w: %w", ErrFetchFailed, &StatusError{
			StatusCode: res.StatusCode,
			Body:       strings.TrimSpace(string(text)),
		})
	}

	var tok tokenResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&tok); err != nil {
		return Details{}, fmt.Errorf("%w: decode response: %v", ErrFetchFailed, err)
	}
	if strings.TrimSpace(tok.Token) == "" {
		return Details{}, fmt.Errorf("%w: response missing token", ErrFetchFailed)
	}

	return Details{
		ServerURL:        p.cfg.ServerURL,
		RoomName:         room,
		ParticipantName:  p.cfg.ParticipantName,
		ParticipantToken: tok.Token,
	}, nil
}

func (p *Provider) roomName() string {
	id := p.newID()
	if p.cfg.CallerID == "" {
		return id
	}
	return p.cfg.CallerID + "_" + id
}
