package ui

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/go-go-golems/quill/pkg/dialogue"
	"github.com/go-go-golems/quill/pkg/engine"
	"github.com/go-go-golems/quill/pkg/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	submitted []string
	stops     int
	cleared   int
	err       error
	conv      *conversation.Conversation
}

func (f *fakeBackend) HandleSubmit(ctx context.Context, text string, deleteCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
	return f.err
}

func (f *fakeBackend) Regenerate(ctx context.Context) error { return f.err }

func (f *fakeBackend) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.err
}

func (f *fakeBackend) NewConversation(ctx context.Context) (*conversation.Conversation, error) {
	return conversation.New(), f.err
}

func (f *fakeBackend) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return true
}

func (f *fakeBackend) Snapshot() engine.Snapshot {
	return engine.Snapshot{Conversation: f.conv.Clone(), State: dialogue.Scripted(0)}
}

func newTestModel(t *testing.T, b *fakeBackend) Model {
	t.Helper()
	if b.conv == nil {
		b.conv = conversation.New(
			conversation.WithModel(conversation.Model{ID: "llama2", Name: "llama2"}),
			conversation.WithMessages(conversation.NewAssistantMessage("👋 Hi Art Medical")))
	}
	m := NewModel(context.Background(), b)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return updated.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	ret, ok := updated.(Model)
	require.True(t, ok)
	return ret, cmd
}

// runCmd executes cmd and feeds the resulting message back into m.
func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			m = runCmd(t, m, c)
		}
		return m
	}
	m, _ = update(t, m, msg)
	return m
}

func TestViewShowsTranscript(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	v := m.View()
	assert.Contains(t, v, "👋 Hi Art Medical")
	assert.Contains(t, v, conversation.DefaultName)
	assert.Contains(t, v, "llama2")
}

func TestEnterSubmitsText(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(t, b)
	m.textArea.SetValue("hello")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "", m.textArea.Value())
	m = runCmd(t, m, cmd)

	assert.Equal(t, []string{"hello"}, b.submitted)
	assert.Nil(t, m.err)
}

func TestEmptySubmitIsIgnored(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(t, b)
	m.textArea.SetValue("   ")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, b.submitted)
}

func TestUpdatedEventRefreshesTranscript(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	c := conversation.New(
		conversation.WithName("MRI follow-up"),
		conversation.WithMessages(
			conversation.NewUserMessage("hi"),
			conversation.NewAssistantMessage("Dear Dr. Smith"),
		))

	m, _ = update(t, m, EngineEventMsg{Event: &events.Event{
		Type:         events.EventTypeUpdated,
		State:        dialogue.FreeChat().String(),
		Conversation: c,
	}})

	v := m.View()
	assert.Contains(t, v, "Dear Dr. Smith")
	assert.Contains(t, v, "MRI follow-up")
	assert.Equal(t, dialogue.FreeChat().String(), m.phase)
}

func TestStopWhileGenerating(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(t, b)

	// not generating: ctrl+s is disabled
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Equal(t, 0, b.stops)

	m, _ = update(t, m, EngineEventMsg{Event: &events.Event{Type: events.EventTypeStart}})
	assert.True(t, m.generating)
	assert.Contains(t, m.View(), "Generating")

	// enter is disabled until the generation ends
	m.textArea.SetValue("queued")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, b.submitted)
	assert.Equal(t, "queued", m.textArea.Value())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Equal(t, 1, b.stops)

	m, _ = update(t, m, EngineEventMsg{Event: &events.Event{Type: events.EventTypeInterrupt}})
	assert.False(t, m.generating)
}

func TestErrorsAreShownAndDismissed(t *testing.T) {
	b := &fakeBackend{err: errors.New("backend unreachable")}
	m := newTestModel(t, b)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	m = runCmd(t, m, cmd)
	assert.Equal(t, 1, b.cleared)
	assert.Equal(t, StateError, m.state)
	assert.Contains(t, m.View(), "backend unreachable")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateUserInput, m.state)
	assert.NotContains(t, m.View(), "backend unreachable")
}

func TestInFlightRejectionIsSilent(t *testing.T) {
	b := &fakeBackend{err: engine.ErrGenerationInFlight}
	m := newTestModel(t, b)
	m.textArea.SetValue("again")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = runCmd(t, m, cmd)
	assert.Equal(t, StateUserInput, m.state)
}

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.msgs = append(r.msgs, msg)
}

func TestForwardEvents(t *testing.T) {
	r := &recordingSender{}
	ev := &events.Event{Type: events.EventTypeFinal, Completion: "done"}
	require.NoError(t, ForwardEvents(r)(context.Background(), ev))
	assert.Equal(t, []tea.Msg{EngineEventMsg{Event: ev}}, r.msgs)
}
