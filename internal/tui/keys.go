package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the terminal shell.
type KeyMap struct {
	// Call
	Start   key.Binding
	End     key.Binding
	Refresh key.Binding

	// Form
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
	Cancel key.Binding

	Help key.Binding
	Quit key.Binding
	// Interrupt quits from any view, including while the form has focus.
	Interrupt key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start call"),
		),
		End: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "end call"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry details"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "send"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel form"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.End, k.Help, k.Quit}
}

// FullHelp returns the bindings shown when help is expanded.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.End, k.Refresh},
		{k.Next, k.Prev, k.Submit, k.Cancel},
		{k.Help, k.Quit, k.Interrupt},
	}
}

// formKeys is the help shown while the form overlay is open.
type formKeys struct{ k KeyMap }

func (f formKeys) ShortHelp() []key.Binding {
	return []key.Binding{f.k.Next, f.k.Submit, f.k.Cancel}
}

func (f formKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{f.k.Next, f.k.Prev, f.k.Submit, f.k.Cancel, f.k.Interrupt}}
}
