// Package tui renders a visitor shell in the terminal. It speaks the same
// protocol messages as the browser page.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/protocol"
)

const sendTimeout = 2 * time.Second

// shellMsg carries one message from the shell.
type shellMsg struct{ msg any }

// shellClosedMsg is sent when the shell closes its outbound channel.
type shellClosedMsg struct{}

type Model struct {
	keys KeyMap
	help help.Model
	ui   config.UI

	sessionID string
	toShell   chan<- any
	fromShell <-chan any

	view   protocol.ViewState
	form   *formState
	toast  *protocol.Notification
	status string

	width    int
	showHelp bool
	quitting bool
}

type formState struct {
	display protocol.LeadFormDisplay
	inputs  []fieldInput
	focus   int
}

type fieldInput struct {
	field protocol.FormField
	line  textinput.Model
	area  textarea.Model
}

func (f *fieldInput) value() string {
	if f.field.Multi {
		return f.area.Value()
	}
	return f.line.Value()
}

func (f *fieldInput) focus() tea.Cmd {
	if f.field.Multi {
		return f.area.Focus()
	}
	return f.line.Focus()
}

func (f *fieldInput) blur() {
	if f.field.Multi {
		f.area.Blur()
		return
	}
	f.line.Blur()
}

// NewModel renders the shell reading from fromShell and writing user input
// to toShell.
func NewModel(ui config.UI, sessionID string, toShell chan<- any, fromShell <-chan any) Model {
	h := help.New()
	h.ShowAll = false
	return Model{
		keys:      DefaultKeyMap(),
		help:      h,
		ui:        ui,
		sessionID: sessionID,
		toShell:   toShell,
		fromShell: fromShell,
		view:      protocol.ViewState{View: protocol.ViewWelcome, CallState: "idle"},
		width:     80,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForShell(m.fromShell)
}

func waitForShell(ch <-chan any) tea.Cmd {
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		msg, ok := <-ch
		if !ok {
			return shellClosedMsg{}
		}
		return shellMsg{msg: msg}
	}
}

func sendToShell(ch chan<- any, msg any) tea.Cmd {
	return func() tea.Msg {
		select {
		case ch <- msg:
		case <-time.After(sendTimeout):
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case shellMsg:
		cmd := m.applyShell(msg.msg)
		return m, tea.Batch(cmd, waitForShell(m.fromShell))

	case shellClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Interrupt) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.form != nil {
			return m.updateForm(msg)
		}
		return m.updateCall(msg)
	}
	return m, nil
}

func (m *Model) applyShell(msg any) tea.Cmd {
	switch v := msg.(type) {
	case protocol.ViewState:
		m.view = v
	case protocol.LeadFormDisplay:
		return m.openForm(v)
	case protocol.LeadFormDismiss:
		if m.form != nil && (v.FormID == 0 || v.FormID == m.form.display.FormID) {
			m.form = nil
		}
	case protocol.Notification:
		n := v
		m.toast = &n
	case protocol.SystemEvent:
		m.status = v.Code
	case protocol.ErrorEvent:
		m.status = fmt.Sprintf("%s: %s", v.Code, v.Detail)
	}
	return nil
}

// openForm replaces any open form; a new request always wins.
func (m *Model) openForm(d protocol.LeadFormDisplay) tea.Cmd {
	fs := &formState{display: d}
	for _, f := range d.Fields {
		in := fieldInput{field: f}
		if f.Multi {
			ta := textarea.New()
			ta.CharLimit = 2000
			ta.ShowLineNumbers = false
			ta.SetWidth(60)
			ta.SetHeight(4)
			ta.SetValue(f.Value)
			in.area = ta
		} else {
			ti := textinput.New()
			ti.CharLimit = 500
			ti.Width = 56
			ti.SetValue(f.Value)
			ti.CursorEnd()
			in.line = ti
		}
		fs.inputs = append(fs.inputs, in)
	}
	m.form = fs
	if len(fs.inputs) == 0 {
		return nil
	}
	return fs.inputs[0].focus()
}

func (m Model) updateCall(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Start):
		if !m.view.StartEnabled {
			return m, nil
		}
		m.toast = nil
		return m, m.control(protocol.ActionStart)
	case key.Matches(msg, m.keys.End):
		if m.view.CallState != "active" && m.view.CallState != "connecting" {
			return m, nil
		}
		return m, m.control(protocol.ActionEnd)
	case key.Matches(msg, m.keys.Refresh):
		if m.view.Fetching || m.view.StartEnabled {
			return m, nil
		}
		return m, m.control(protocol.ActionRefresh)
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fs := m.form
	switch {
	case key.Matches(msg, m.keys.Submit):
		fields := make(map[string]string, len(fs.inputs))
		for i := range fs.inputs {
			fields[fs.inputs[i].field.Name] = fs.inputs[i].value()
		}
		return m, sendToShell(m.toShell, protocol.LeadFormSubmit{
			Type:      protocol.TypeLeadFormSubmit,
			SessionID: m.sessionID,
			FormID:    fs.display.FormID,
			Fields:    fields,
		})
	case key.Matches(msg, m.keys.Cancel):
		return m, sendToShell(m.toShell, protocol.LeadFormCancel{
			Type:      protocol.TypeLeadFormCancel,
			SessionID: m.sessionID,
			FormID:    fs.display.FormID,
		})
	case key.Matches(msg, m.keys.Next):
		return m, fs.move(1)
	case key.Matches(msg, m.keys.Prev):
		return m, fs.move(-1)
	case msg.Type == tea.KeyEnter && len(fs.inputs) > 0 && !fs.inputs[fs.focus].field.Multi:
		return m, fs.move(1)
	}

	if len(fs.inputs) == 0 {
		return m, nil
	}
	in := &fs.inputs[fs.focus]
	var cmd tea.Cmd
	if in.field.Multi {
		in.area, cmd = in.area.Update(msg)
	} else {
		in.line, cmd = in.line.Update(msg)
	}
	return m, cmd
}

func (fs *formState) move(delta int) tea.Cmd {
	if len(fs.inputs) == 0 {
		return nil
	}
	fs.inputs[fs.focus].blur()
	fs.focus = (fs.focus + delta + len(fs.inputs)) % len(fs.inputs)
	return fs.inputs[fs.focus].focus()
}

func (m Model) control(action string) tea.Cmd {
	return sendToShell(m.toShell, protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: m.sessionID,
		Action:    action,
	})
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(m.ui.PageTitle))
	b.WriteString("\n\n")

	if m.form != nil {
		b.WriteString(m.renderForm())
	} else {
		b.WriteString(PanelStyle.Render(m.renderCall()))
	}
	b.WriteString("\n")

	if m.toast != nil {
		style, ok := ToastStyles[m.toast.Level]
		if !ok {
			style = ToastStyles[protocol.LevelInfo]
		}
		line := m.toast.Title
		if m.toast.Description != "" {
			line += " - " + m.toast.Description
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(MutedStyle.Render(m.status))
		b.WriteString("\n")
	}

	var keys help.KeyMap = m.keys
	if m.form != nil {
		keys = formKeys{k: m.keys}
	}
	b.WriteString(StatusBarStyle.Render(m.help.View(keys)))
	return b.String()
}

func (m Model) renderCall() string {
	state := m.view.CallState
	style, ok := StateStyles[state]
	if !ok {
		style = MutedStyle
	}

	var lines []string
	if m.view.View == protocol.ViewSession {
		lines = append(lines, "Call: "+style.Render(state))
		if m.view.RoomName != "" {
			lines = append(lines, MutedStyle.Render("room "+m.view.RoomName))
		}
		lines = append(lines, "", MutedStyle.Render("press e to "+strings.ToLower(m.ui.EndButtonText)))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, "Status: "+style.Render(state))
	switch {
	case m.view.Fetching:
		lines = append(lines, MutedStyle.Render("preparing your call..."))
	case m.view.StartEnabled:
		lines = append(lines, "", FocusedLabelStyle.Render("[s] "+m.ui.StartButtonText))
	default:
		lines = append(lines, MutedStyle.Render("call unavailable, press r to retry"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderForm() string {
	fs := m.form
	var lines []string
	lines = append(lines, FormTitleStyle.Render(fs.display.Title))
	if fs.display.Description != "" {
		lines = append(lines, MutedStyle.Render(fs.display.Description))
	}
	for i := range fs.inputs {
		in := &fs.inputs[i]
		label := in.field.Label
		if in.field.Required {
			label += " *"
		}
		labelStyle := LabelStyle
		if i == fs.focus {
			labelStyle = FocusedLabelStyle
		}
		lines = append(lines, "", labelStyle.Render(label))
		if in.field.Multi {
			lines = append(lines, in.area.View())
		} else {
			lines = append(lines, in.line.View())
		}
	}
	lines = append(lines, "", MutedStyle.Render(fmt.Sprintf("ctrl+s %s  esc %s", fs.display.SubmitText, fs.display.CancelText)))
	return FormStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
