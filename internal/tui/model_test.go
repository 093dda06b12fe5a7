package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/protocol"
)

func newTestModel() (Model, chan any) {
	toShell := make(chan any, 8)
	return NewModel(config.DefaultUI(), "sess-1", toShell, nil), toShell
}

func apply(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// runCmd executes cmd and any batched children, ignoring the shell reader.
func runCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				runCmd(c)
			}
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func received(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("nothing sent to shell")
		return nil
	}
}

func testForm(id uint64) protocol.LeadFormDisplay {
	return protocol.LeadFormDisplay{
		Type:       protocol.TypeLeadFormDisplay,
		FormID:     id,
		Title:      "Verify Your Information",
		SubmitText: "Looks Good, Send It",
		CancelText: "Cancel",
		Fields: []protocol.FormField{
			{Name: "name", Label: "Full Name", Value: "Jane Doe"},
			{Name: "inquiry", Label: "Your Inquiry", Value: "Need a quote", Required: true, Multi: true},
			{Name: "contactDetail", Label: "Contact (Email/Phone)", Value: "jane@x.com"},
		},
	}
}

func TestStartOnlyWhenEnabled(t *testing.T) {
	m, toShell := newTestModel()

	m, cmd := apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	runCmd(cmd)
	select {
	case msg := <-toShell:
		t.Fatalf("start sent while disabled: %+v", msg)
	default:
	}

	m, _ = apply(t, m, shellMsg{msg: protocol.ViewState{View: protocol.ViewWelcome, CallState: "idle", StartEnabled: true}})
	if !strings.Contains(m.View(), "Start call") {
		t.Fatalf("welcome view missing start button:\n%s", m.View())
	}
	_, cmd = apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	runCmd(cmd)

	ctrl, ok := received(t, toShell).(protocol.ClientControl)
	if !ok || ctrl.Action != protocol.ActionStart || ctrl.SessionID != "sess-1" {
		t.Fatalf("sent = %+v, want start control", ctrl)
	}
}

func TestFormEditAndSubmit(t *testing.T) {
	m, toShell := newTestModel()
	m, _ = apply(t, m, shellMsg{msg: protocol.ViewState{View: protocol.ViewSession, CallState: "active"}})
	m, _ = apply(t, m, shellMsg{msg: testForm(3)})

	if m.form == nil || len(m.form.inputs) != 3 {
		t.Fatalf("form not opened: %+v", m.form)
	}
	if !strings.Contains(m.View(), "Verify Your Information") {
		t.Fatalf("form view missing title")
	}

	m, _ = apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("!")})
	m, _ = apply(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.form.focus != 1 {
		t.Fatalf("focus = %d, want 1", m.form.focus)
	}

	_, cmd := apply(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	runCmd(cmd)

	submit, ok := received(t, toShell).(protocol.LeadFormSubmit)
	if !ok {
		t.Fatalf("expected LeadFormSubmit")
	}
	if submit.FormID != 3 {
		t.Fatalf("form id = %d, want 3", submit.FormID)
	}
	want := map[string]string{"name": "Jane Doe!", "inquiry": "Need a quote", "contactDetail": "jane@x.com"}
	for k, v := range want {
		if submit.Fields[k] != v {
			t.Fatalf("field %s = %q, want %q", k, submit.Fields[k], v)
		}
	}
}

func TestFormCancelAndDismiss(t *testing.T) {
	m, toShell := newTestModel()
	m, _ = apply(t, m, shellMsg{msg: testForm(5)})

	_, cmd := apply(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	runCmd(cmd)
	cancel, ok := received(t, toShell).(protocol.LeadFormCancel)
	if !ok || cancel.FormID != 5 {
		t.Fatalf("sent = %+v, want cancel for form 5", cancel)
	}

	// A dismiss for an older form leaves the current one open.
	m, _ = apply(t, m, shellMsg{msg: protocol.LeadFormDismiss{FormID: 4, Reason: "cancelled"}})
	if m.form == nil {
		t.Fatalf("form closed by stale dismiss")
	}
	m, _ = apply(t, m, shellMsg{msg: protocol.LeadFormDismiss{FormID: 5, Reason: "cancelled"}})
	if m.form != nil {
		t.Fatalf("form still open after dismiss")
	}
}

func TestNewFormReplacesOpenForm(t *testing.T) {
	m, _ := newTestModel()
	m, _ = apply(t, m, shellMsg{msg: testForm(1)})
	m, _ = apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})

	second := testForm(2)
	second.Fields[0].Value = "John Roe"
	m, _ = apply(t, m, shellMsg{msg: second})

	if m.form.display.FormID != 2 {
		t.Fatalf("form id = %d, want 2", m.form.display.FormID)
	}
	if got := m.form.inputs[0].value(); got != "John Roe" {
		t.Fatalf("name = %q, want John Roe", got)
	}
}

func TestNotificationAndErrorsRender(t *testing.T) {
	m, _ := newTestModel()
	m, _ = apply(t, m, shellMsg{msg: protocol.Notification{Level: protocol.LevelError, Title: "Could not send your information", Description: "agent left"}})
	m, _ = apply(t, m, shellMsg{msg: protocol.ErrorEvent{Code: "details_fetch_failed", Detail: "status 500"}})

	out := m.View()
	for _, want := range []string{"Could not send your information", "details_fetch_failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}

func TestShellClosedQuits(t *testing.T) {
	m, _ := newTestModel()
	m, cmd := apply(t, m, shellClosedMsg{})
	if cmd == nil || !m.quitting {
		t.Fatalf("expected quit after shell closed")
	}
	if m.View() != "" {
		t.Fatalf("view after quit should be empty")
	}
}
