package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/go-go-golems/quill/pkg/engine"
	"github.com/go-go-golems/quill/pkg/events"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Backend is the part of the engine the chat view drives.
type Backend interface {
	HandleSubmit(ctx context.Context, text string, deleteCount int) error
	Regenerate(ctx context.Context) error
	Clear(ctx context.Context) error
	NewConversation(ctx context.Context) (*conversation.Conversation, error)
	Stop() bool
	Snapshot() engine.Snapshot
}

var _ Backend = (*engine.Engine)(nil)

type State string

const (
	StateUserInput State = "user_input"
	StateError     State = "error"
)

// EngineEventMsg carries an engine event into the bubbletea loop.
type EngineEventMsg struct {
	Event *events.Event
}

// actionDoneMsg is returned once a blocking engine call returned.
type actionDoneMsg struct {
	action string
	err    error
}

type Model struct {
	ctx     context.Context
	backend Backend

	viewport viewport.Model
	textArea textarea.Model
	help     help.Model

	conv       *conversation.Conversation
	phase      string
	generating bool
	// warning is the last persistence failure, shown until the next
	// successful update
	warning string

	state  State
	err    error
	keyMap KeyMap
	style  *Style
	width  int
	height int
}

func NewModel(ctx context.Context, backend Backend) Model {
	snapshot := backend.Snapshot()
	ret := Model{
		ctx:        ctx,
		backend:    backend,
		viewport:   viewport.New(0, 0),
		help:       help.New(),
		conv:       snapshot.Conversation,
		phase:      snapshot.State.String(),
		generating: snapshot.Generating,
		state:      StateUserInput,
		keyMap:     DefaultKeyMap,
		style:      DefaultStyles(),
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Type a message..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(3)
	// enter submits
	ret.textArea.KeyMap.InsertNewline.SetEnabled(false)
	ret.textArea.Focus()

	ret.refreshViewport()
	ret.updateKeyBindings()

	return ret
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) updateKeyBindings() {
	idle := !m.generating
	m.keyMap.SubmitMessage.SetEnabled(idle && m.state == StateUserInput)
	m.keyMap.Regenerate.SetEnabled(idle)
	m.keyMap.Clear.SetEnabled(idle)
	m.keyMap.NewConversation.SetEnabled(idle)
	m.keyMap.CancelCompletion.SetEnabled(m.generating)
	m.keyMap.DismissError.SetEnabled(m.state == StateError)
}

// run performs a blocking engine call off the event loop.
func (m Model) run(action string, f func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: f(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.backend.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.CancelCompletion):
			if !m.backend.Stop() {
				log.Debug().Msg("no generation to stop")
			}

		case key.Matches(msg, m.keyMap.DismissError):
			m.err = nil
			m.state = StateUserInput
			m.textArea.Focus()

		case key.Matches(msg, m.keyMap.SubmitMessage):
			text := m.textArea.Value()
			if strings.TrimSpace(text) == "" {
				break
			}
			m.textArea.Reset()
			cmds = append(cmds, m.run("submit", func(ctx context.Context) error {
				return m.backend.HandleSubmit(ctx, text, 0)
			}))

		case key.Matches(msg, m.keyMap.Regenerate):
			cmds = append(cmds, m.run("regenerate", m.backend.Regenerate))

		case key.Matches(msg, m.keyMap.Clear):
			cmds = append(cmds, m.run("clear", m.backend.Clear))

		case key.Matches(msg, m.keyMap.NewConversation):
			cmds = append(cmds, m.run("new", func(ctx context.Context) error {
				_, err := m.backend.NewConversation(ctx)
				return err
			}))

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.ScrollUp), key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)

		default:
			if m.state == StateUserInput {
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case EngineEventMsg:
		m.applyEvent(msg.Event)

	case actionDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, engine.ErrGenerationInFlight) {
			m.err = errors.Wrap(msg.err, msg.action)
			m.state = StateError
			m.textArea.Blur()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recomputeSize()

	default:
		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.updateKeyBindings()
	return m, tea.Batch(cmds...)
}

func (m *Model) applyEvent(e *events.Event) {
	if e == nil {
		return
	}
	if e.State != "" {
		m.phase = e.State
	}

	switch e.Type {
	case events.EventTypeUpdated:
		if e.Conversation != nil {
			m.conv = e.Conversation
			m.warning = ""
			m.refreshViewport()
		}
	case events.EventTypeStart:
		m.generating = true
	case events.EventTypeFinal, events.EventTypeInterrupt:
		m.generating = false
	case events.EventTypeError:
		m.generating = false
		m.err = errors.New(e.Error)
		m.state = StateError
		m.textArea.Blur()
	case events.EventTypePersistenceError:
		m.warning = e.Error
	case events.EventTypeState, events.EventTypePartial:
	}
}

func (m *Model) recomputeSize() {
	if m.width == 0 {
		return
	}
	w, _ := m.style.FocusedInput.GetFrameSize()
	m.textArea.SetWidth(m.width - w)
	m.help.Width = m.width

	headerHeight := lipgloss.Height(m.headerView())
	statusHeight := 1
	inputHeight := lipgloss.Height(m.inputView())
	helpHeight := lipgloss.Height(m.help.View(m.keyMap))

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-headerHeight-statusHeight-inputHeight-helpHeight, 1)
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.messageView())
	m.viewport.GotoBottom()
}

func (m Model) messageView() string {
	if m.conv == nil {
		return ""
	}
	width := m.width
	if width == 0 {
		width = 80
	}

	var sb strings.Builder
	for _, msg := range m.conv.Messages {
		style := m.style.AssistantMessage
		if msg.Role == conversation.RoleUser {
			style = m.style.UserMessage
		}
		w, _ := style.GetFrameSize()
		text := wordwrap.String(msg.Content, max(width-w, 1))
		sb.WriteString(style.Width(max(width-w, 1)).Render(text))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) headerView() string {
	if m.conv == nil {
		return m.style.Header.Render("quill")
	}
	return m.style.Header.Render(fmt.Sprintf("%s · %s · %s", m.conv.Name, m.conv.Model.Name, m.phase))
}

func (m Model) statusView() string {
	switch {
	case m.err != nil:
		return m.style.Error.Render("Error: " + m.err.Error())
	case m.warning != "":
		return m.style.Error.Render("Not saved: " + m.warning)
	case m.generating:
		return m.style.Status.Render("Generating... (ctrl+s to stop)")
	default:
		return m.style.Status.Render("")
	}
}

func (m Model) inputView() string {
	v := m.textArea.View()
	if m.state == StateUserInput && !m.generating {
		return m.style.FocusedInput.Render(v)
	}
	return m.style.UnfocusedInput.Render(v)
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.inputView(),
		m.help.View(m.keyMap),
	)
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// ForwardEvents returns an event handler that hands every engine event to
// the bubbletea program.
func ForwardEvents(p Sender) events.EventHandler {
	return func(ctx context.Context, e *events.Event) error {
		p.Send(EngineEventMsg{Event: e})
		return nil
	}
}
