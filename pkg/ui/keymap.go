package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SubmitMessage    key.Binding
	CancelCompletion key.Binding
	Regenerate       key.Binding
	Clear            key.Binding
	NewConversation  key.Binding
	ScrollUp         key.Binding
	ScrollDown       key.Binding
	DismissError     key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	SubmitMessage: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	CancelCompletion: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "stop"),
	),
	Regenerate: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "regenerate"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
	NewConversation: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("ctrl+n", "new"),
	),
	ScrollUp:     key.NewBinding(key.WithKeys("pgup", "shift+pgup")),
	ScrollDown:   key.NewBinding(key.WithKeys("pgdown", "shift+pgdown")),
	DismissError: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss")),
	Help:         key.NewBinding(key.WithKeys("ctrl+h"), key.WithHelp("ctrl+h", "help")),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SubmitMessage, k.CancelCompletion, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SubmitMessage, k.CancelCompletion, k.Regenerate},
		{k.Clear, k.NewConversation, k.DismissError},
		{k.Help, k.Quit},
	}
}
