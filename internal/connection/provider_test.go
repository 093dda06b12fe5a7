package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFetchSendsRoomAndCaller(t *testing.T) {
	var (
		mu   sync.Mutex
		seen map[string]string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		seen = body
		mu.Unlock()
		_, _ = w.Write([]byte(`{"token":"tok-123"}`))
	}))
	defer ts.Close()

	p := NewProvider(Config{
		TokenServiceURL: ts.URL + "/",
		ServerURL:       "wss://rtc.example.test",
		CallerID:        "bob-the-builder-123",
		CallerField:     "contractor_id",
		ParticipantName: "Website Visitor",
	})

	d, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if d.ParticipantToken != "tok-123" {
		t.Fatalf("ParticipantToken = %q, want %q", d.ParticipantToken, "tok-123")
	}
	if d.ServerURL != "wss://rtc.example.test" || d.ParticipantName != "Website Visitor" {
		t.Fatalf("unexpected details: %+v", d)
	}
	if !strings.HasPrefix(d.RoomName, "bob-the-builder-123_") {
		t.Fatalf("RoomName = %q, want caller prefix", d.RoomName)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen["room_name"] != d.RoomName {
		t.Fatalf("room_name sent = %q, want %q", seen["room_name"], d.RoomName)
	}
	if seen["contractor_id"] != "bob-the-builder-123" {
		t.Fatalf("contractor_id sent = %q", seen["contractor_id"])
	}
}

func TestFetchYieldsDistinctRooms(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"t"}`))
	}))
	defer ts.Close()

	p := NewProvider(Config{TokenServiceURL: ts.URL})
	rooms := map[string]bool{}
	for i := 0; i < 50; i++ {
		d, err := p.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if rooms[d.RoomName] {
			t.Fatalf("room %q returned twice", d.RoomName)
		}
		rooms[d.RoomName] = true
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "credentials not configured", http.StatusInternalServerError)
	}))
	defer ts.Close()

	var observed error
	p := NewProvider(Config{TokenServiceURL: ts.URL}, WithObserver(func(_ time.Duration, err error) {
		observed = err
	}))

	_, err := p.Fetch(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusInternalServerError || !strings.Contains(se.Body, "credentials") {
		t.Fatalf("unexpected status error: %+v", se)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly one attempt", calls)
	}
	if observed == nil {
		t.Fatalf("observer did not see the failure")
	}
}

func TestFetchMalformedResponses(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"token":"  "}`} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		p := NewProvider(Config{TokenServiceURL: ts.URL})
		_, err := p.Fetch(context.Background())
		ts.Close()
		if !errors.Is(err, ErrFetchFailed) {
			t.Fatalf("body %q: error = %v, want ErrFetchFailed", body, err)
		}
	}
}

func TestFetchNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	p := NewProvider(Config{TokenServiceURL: url, Timeout: time.Second})
	if _, err := p.Fetch(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
}
