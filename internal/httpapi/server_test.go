package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/connection"
	"github.com/ent0n29/chatform/internal/journal"
	"github.com/ent0n29/chatform/internal/observability"
	"github.com/ent0n29/chatform/internal/rtc"
	"github.com/ent0n29/chatform/internal/session"
	"github.com/ent0n29/chatform/internal/shell"
)

var metricsSeq atomic.Int64

// promauto registers globally, so every server needs its own namespace.
func testMetrics(prefix string) *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("%s_%d", prefix, metricsSeq.Add(1)))
}

func testConfig() config.Config {
	return config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		RTCProvider:              "mock",
		ParticipantName:          "Website Visitor",
		UI:                       config.DefaultUI(),
	}
}

func TestCreateAndEndSession(t *testing.T) {
	cfg := testConfig()
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	srv := New(cfg, sessions, nil, nil, testMetrics("test_httpapi"))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"visitor_id": "visitor-1"})
	res, err := http.Post(ts.URL+"/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	if created["visitor_id"] != "visitor-1" {
		t.Fatalf("visitor_id = %v, want visitor-1", created["visitor_id"])
	}

	endRes, err := http.Post(ts.URL+"/v1/session/"+sessionID+"/end", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("end session request error = %v", err)
	}
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}
	var summary session.EndResponse
	if err := json.NewDecoder(endRes.Body).Decode(&summary); err != nil {
		t.Fatalf("decode end response: %v", err)
	}
	if summary.SessionID != sessionID || summary.Status != session.StatusEnded {
		t.Fatalf("end summary = %+v", summary)
	}

	missing, err := http.Post(ts.URL+"/v1/session/nope/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end missing request error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("end missing status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}
}

func TestUIRoutes(t *testing.T) {
	cfg := testConfig()
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), nil, nil, testMetrics("test_httpapi_ui"))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	rootRes, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer rootRes.Body.Close()
	if rootRes.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("GET / status = %d, want %d", rootRes.StatusCode, http.StatusTemporaryRedirect)
	}
	if got := rootRes.Header.Get("Location"); got != "/ui/" {
		t.Fatalf("GET / location = %q, want %q", got, "/ui/")
	}

	uiRes, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("GET /ui/ status = %d, want %d", uiRes.StatusCode, http.StatusOK)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(uiRes.Body); err != nil {
		t.Fatalf("reading /ui/ body failed: %v", err)
	}
	if !strings.Contains(body.String(), "id=\"app-shell\"") {
		t.Fatalf("GET /ui/ body missing expected content")
	}
}

func TestUISettings(t *testing.T) {
	cfg := testConfig()
	cfg.UI.StartButtonText = "Call us"
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), nil, nil, testMetrics("test_httpapi_settings"))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/ui/settings")
	if err != nil {
		t.Fatalf("GET /v1/ui/settings error = %v", err)
	}
	defer res.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["start_button_text"] != "Call us" {
		t.Fatalf("start_button_text = %v, want %q", payload["start_button_text"], "Call us")
	}
	labels, _ := payload["field_labels"].(map[string]any)
	if labels["inquiry"] != "Your Inquiry" {
		t.Fatalf("inquiry label = %v", labels["inquiry"])
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://contractor.example"}
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), nil, nil, testMetrics("test_httpapi_cors"))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/session", nil)
	req.Header.Set("Origin", "https://contractor.example")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://contractor.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/v1/session", nil)
	req.Header.Set("Origin", "https://evil.example")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error = %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin for unknown origin = %q, want empty", got)
	}
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "visitor-token"})
	}))
	t.Cleanup(ts.Close)
	return ts
}

type wsHarness struct {
	conn     *websocket.Conn
	sessions *session.Manager
	dialer   *rtc.MockDialer
	recorder *journal.Recorder
	base     string
	id       string
}

func (h *wsHarness) readUntil(t *testing.T, match func(map[string]any) bool) map[string]any {
	t.Helper()
	_ = h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := h.conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string, extra func(map[string]any) bool) func(map[string]any) bool {
	return func(m map[string]any) bool {
		return m["type"] == typ && (extra == nil || extra(m))
	}
}

func newWSHarness(t *testing.T, opts ...func(*Server)) *wsHarness {
	t.Helper()
	cfg := testConfig()
	cfg.UI = config.DefaultUI()
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := testMetrics("test_httpapi_ws")
	recorder := journal.NewRecorder(journal.NewInMemoryStore(), nil)

	tokens := newTokenServer(t)
	fetcher := connection.NewProvider(connection.Config{
		TokenServiceURL: tokens.URL,
		ServerURL:       "mock://local",
		CallerID:        "contractor-1",
		ParticipantName: cfg.ParticipantName,
	})
	dialer := rtc.NewMockDialer(rtc.MockConfig{AgentIdentity: "agent-1", DisplayDelay: -1})
	runner := shell.NewRunner(fetcher, dialer, shell.RunnerConfig{
		UI:          cfg.UI,
		Coordinator: session.CoordinatorConfig{AgentIdentity: "agent-1", SubmitTimeout: time.Second},
		Metrics:     metrics,
		Journal:     recorder,
		Sessions:    sessions,
	})

	srv := New(cfg, sessions, runner, recorder, metrics)
	for _, opt := range opts {
		opt(srv)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	sess := sessions.Create("visitor-1")
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session/ws?session_id=" + sess.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &wsHarness{conn: conn, sessions: sessions, dialer: dialer, recorder: recorder, base: ts.URL, id: sess.ID}
}

func TestIdleCallSurvivesReadTimeout(t *testing.T) {
	h := newWSHarness(t, func(s *Server) {
		s.pingInterval = 50 * time.Millisecond
		s.readTimeout = 300 * time.Millisecond
	})

	h.readUntil(t, ofType("view_state", func(m map[string]any) bool { return m["start_enabled"] == true }))
	if err := h.conn.WriteJSON(map[string]any{"type": "client_control", "session_id": h.id, "action": "start"}); err != nil {
		t.Fatalf("WriteJSON(start) error = %v", err)
	}
	h.readUntil(t, ofType("view_state", func(m map[string]any) bool { return m["call_state"] == "active" }))
	room := h.dialer.LastRoom()
	if room == nil {
		t.Fatalf("no room dialed")
	}
	before, err := h.sessions.Get(h.id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// The client only reads, which is what answers pings with pongs.
	_ = h.conn.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := h.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(time.Second)

	if room.Disconnected() {
		t.Fatalf("idle call was torn down")
	}
	after, err := h.sessions.Get(h.id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !after.LastActivityAt.After(before.LastActivityAt) {
		t.Fatalf("LastActivityAt = %v, want after %v", after.LastActivityAt, before.LastActivityAt)
	}
}

func TestSessionWebsocketLeadFlow(t *testing.T) {
	h := newWSHarness(t)

	h.readUntil(t, ofType("view_state", func(m map[string]any) bool { return m["start_enabled"] == true }))
	if err := h.conn.WriteJSON(map[string]any{"type": "client_control", "session_id": h.id, "action": "start"}); err != nil {
		t.Fatalf("WriteJSON(start) error = %v", err)
	}
	h.readUntil(t, ofType("view_state", func(m map[string]any) bool { return m["call_state"] == "active" }))

	room := h.dialer.LastRoom()
	if room == nil {
		t.Fatalf("no room dialed")
	}
	if _, err := room.Invoke(context.Background(), session.MethodDisplayLeadForm, `"{\"name\":\"Jane Doe\",\"inquiry\":\"Need a quote\",\"contact_detail\":\"jane@x.com\"}"`); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	display := h.readUntil(t, ofType("lead_form_display", nil))
	formID := display["form_id"]

	if err := h.conn.WriteJSON(map[string]any{
		"type":    "lead_form_submit",
		"form_id": formID,
		"fields":  map[string]string{"inquiry": "Need a quote urgently"},
	}); err != nil {
		t.Fatalf("WriteJSON(submit) error = %v", err)
	}
	h.readUntil(t, ofType("notification", func(m map[string]any) bool { return m["level"] == "success" }))

	subs := room.Submissions()
	if len(subs) != 1 || !strings.Contains(subs[0].Payload, "Need a quote urgently") {
		t.Fatalf("submissions = %+v", subs)
	}

	h.recorder.Flush()
	res, err := http.Get(h.base + "/v1/session/" + h.id + "/journal")
	if err != nil {
		t.Fatalf("GET journal error = %v", err)
	}
	defer res.Body.Close()
	var payload struct {
		Entries []journal.Entry `json:"entries"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(payload.Entries) == 0 {
		t.Fatalf("journal is empty")
	}
	for _, e := range payload.Entries {
		if strings.Contains(e.Detail, "Jane") || strings.Contains(e.Detail, "jane@x.com") {
			t.Fatalf("journal leaked lead data: %+v", e)
		}
	}
}

func TestSessionWebsocketRejectsInvalidMessage(t *testing.T) {
	h := newWSHarness(t)
	if err := h.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	msg := h.readUntil(t, ofType("error_event", func(m map[string]any) bool { return m["code"] == "invalid_client_message" }))
	if msg["source"] != "gateway" {
		t.Fatalf("source = %v, want gateway", msg["source"])
	}
}

func TestEndSessionClosesWebsocket(t *testing.T) {
	h := newWSHarness(t)
	h.readUntil(t, ofType("view_state", nil))

	res, err := http.Post(h.base+"/v1/session/"+h.id+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end request error = %v", err)
	}
	res.Body.Close()

	_ = h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := h.conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatalf("websocket still open after session end")
			}
			return
		}
	}
}

func TestSessionJournalUnknownSession(t *testing.T) {
	cfg := testConfig()
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), nil, journal.NewRecorder(journal.NewInMemoryStore(), nil), testMetrics("test_httpapi_journal"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/session/nope/journal")
	if err != nil {
		t.Fatalf("GET journal error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestPerfLatency(t *testing.T) {
	cfg := testConfig()
	metrics := testMetrics("test_httpapi_perf")
	metrics.ObserveCallStage(observability.StageConnect, 40*time.Millisecond, nil)
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), nil, nil, metrics)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET perf error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var body bytes.Buffer
	_, _ = body.ReadFrom(res.Body)
	if !strings.Contains(body.String(), observability.StageConnect) {
		t.Fatalf("perf body missing connect stage: %s", body.String())
	}
}

func TestSessionWebsocketUnknownSession(t *testing.T) {
	cfg := testConfig()
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), shell.NewRunner(nil, nil, shell.RunnerConfig{}), nil, testMetrics("test_httpapi_ws_missing"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/session/ws?session_id=nope")
	if err != nil {
		t.Fatalf("GET ws error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestPerfLatencyStageFilter(t *testing.T) {
	cfg := testConfig()
	metrics := testMetrics("test_httpapi_perf_filter")
	metrics.ObserveCallStage(observability.StageConnect, 40*time.Millisecond, nil)
	metrics.ObserveCallStage(observability.StageLeadDelivery, 15*time.Millisecond, errors.New("timeout"))
	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), nil, nil, metrics)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/perf/latency?stage=" + observability.StageLeadDelivery)
	if err != nil {
		t.Fatalf("GET perf error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.CallStageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode perf: %v", err)
	}
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != observability.StageLeadDelivery || snap.Stages[0].Failures != 1 {
		t.Fatalf("stages = %+v", snap.Stages)
	}
}
