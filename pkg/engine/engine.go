package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/go-go-golems/quill/pkg/dialogue"
	"github.com/go-go-golems/quill/pkg/email"
	"github.com/go-go-golems/quill/pkg/events"
	"github.com/go-go-golems/quill/pkg/helpers"
	"github.com/go-go-golems/quill/pkg/metrics"
	"github.com/go-go-golems/quill/pkg/store"
	"github.com/go-go-golems/quill/pkg/stream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var (
	// ErrGenerationInFlight rejects an operation while a response is still
	// streaming into the active conversation.
	ErrGenerationInFlight  = errors.New("a generation is in flight")
	ErrNoConversation      = errors.New("no active conversation")
	ErrNothingToRegenerate = errors.New("nothing to regenerate")
)

// FailureNotice is appended to a partially streamed message when its
// generation failed.
const FailureNotice = "⚠️ The response was interrupted and may be incomplete: %s"

// Store is where the engine persists conversations.
type Store interface {
	SaveConversation(ctx context.Context, c *conversation.Conversation) error
	SaveConversationList(ctx context.Context, list []*conversation.Conversation) error
	SaveSelectedConversationID(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) error
}

// Defaults are the generation settings of newly created conversations.
type Defaults struct {
	Model       conversation.Model
	Prompt      string
	Temperature float64
}

// Engine owns the active conversation and drives it through the dialogue
// script and the generation phase.
//
// Operations on an engine are serialized: while a generation streams, every
// mutating call except Stop returns ErrGenerationInFlight. Each mutation is
// persisted before the call returns. Write failures are reported but never
// undo the in-memory change.
type Engine struct {
	mu         sync.Mutex
	script     *dialogue.Script
	client     stream.Client
	store      Store
	list       *conversation.ListManager
	publisher  *events.PublisherManager
	metrics    *metrics.Metrics
	defaults   Defaults
	conv       *conversation.Conversation
	state      dialogue.State
	answers    []string
	generating bool
	// events collected while mu is held, published once it is released
	outbox []*events.Event

	streamMu         sync.Mutex
	cancelGeneration context.CancelFunc
}

type Option func(*Engine)

func WithStore(s Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

func WithPublisherManager(p *events.PublisherManager) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithDefaults(d Defaults) Option {
	return func(e *Engine) {
		e.defaults = d
	}
}

// WithConversations restores a previously persisted list and selection.
func WithConversations(list []*conversation.Conversation, selectedID string) Option {
	return func(e *Engine) {
		e.list = conversation.NewListManager(list, selectedID)
	}
}

// New creates an engine and opens the selected conversation, or a fresh one
// when nothing is selected.
func New(ctx context.Context, script *dialogue.Script, client stream.Client, options ...Option) (*Engine, error) {
	if script == nil {
		return nil, errors.New("engine needs a dialogue script")
	}
	if client == nil {
		return nil, errors.New("engine needs a streaming client")
	}
	ret := &Engine{
		script: script,
		client: client,
		list:   conversation.NewListManager(nil, ""),
		defaults: Defaults{
			Temperature: conversation.DefaultTemperature,
		},
	}
	for _, o := range options {
		o(ret)
	}

	var err error
	if selected, ok := ret.list.Selected(); ok {
		err = ret.Open(ctx, selected)
	} else {
		_, err = ret.NewConversation(ctx)
	}
	// persistence failures are logged and do not prevent startup
	if err != nil && !IsPersistenceOnly(err) {
		return nil, err
	}
	return ret, nil
}

func asPersistenceError(op string, err error) error {
	if err == nil || errors.Is(err, store.ErrPersistence) {
		return err
	}
	return &store.PersistenceError{Op: op, Err: err}
}

// IsPersistenceOnly reports whether err is made up of persistence failures
// only. Those leave the new in-memory state in place, so callers may carry on.
func IsPersistenceOnly(err error) bool {
	if err == nil {
		return false
	}
	for _, err := range multierr.Errors(err) {
		if !errors.Is(err, store.ErrPersistence) {
			return false
		}
	}
	return true
}

// Snapshot is a deep copy of the engine's view of the active conversation.
type Snapshot struct {
	Conversation *conversation.Conversation
	State        dialogue.State
	Answers      []string
	Generating   bool
	SelectedID   string
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Conversation: e.conv.Clone(),
		State:        e.state,
		Answers:      append([]string(nil), e.answers...),
		Generating:   e.generating,
		SelectedID:   e.list.SelectedID(),
	}
}

// Conversations returns copies of every known conversation.
func (e *Engine) Conversations() []*conversation.Conversation {
	return e.list.List()
}

func (e *Engine) Script() *dialogue.Script {
	return e.script
}

func (e *Engine) logger() zerolog.Logger {
	l := log.With().Str("state", e.state.String())
	if e.conv != nil {
		l = l.Str("conversation_id", e.conv.ID)
	}
	return l.Logger()
}

func (e *Engine) convID() string {
	if e.conv == nil {
		return ""
	}
	return e.conv.ID
}

func (e *Engine) emitLocked(ev *events.Event) {
	if e.publisher == nil {
		return
	}
	if ev.ConversationID == "" {
		ev.ConversationID = e.convID()
	}
	if ev.State == "" {
		ev.State = e.state.String()
	}
	e.outbox = append(e.outbox, ev)
}

func (e *Engine) emitUpdatedLocked(generationID string) {
	if e.publisher == nil {
		return
	}
	e.emitLocked(&events.Event{
		Type:         events.EventTypeUpdated,
		GenerationID: generationID,
		Conversation: e.conv.Clone(),
	})
}

// Announce publishes the current state and a copy of the active
// conversation, for subscribers that missed the events emitted so far.
func (e *Engine) Announce() {
	e.mu.Lock()
	if e.conv != nil {
		e.emitLocked(&events.Event{Type: events.EventTypeState})
		e.emitUpdatedLocked("")
	}
	e.unlockAndFlush()
}

// unlockAndFlush releases mu and then publishes the collected events, so
// that event handlers may call back into the engine.
func (e *Engine) unlockAndFlush() {
	pending := e.outbox
	e.outbox = nil
	e.mu.Unlock()
	for _, ev := range pending {
		e.publisher.PublishBlind(ev)
	}
}

func (e *Engine) setStateLocked(s dialogue.State) {
	if s == e.state {
		return
	}
	log.Debug().
		Str("conversation_id", e.convID()).
		Stringer("from", e.state).
		Stringer("to", s).
		Msg("dialogue transition")
	e.state = s
	e.metrics.Transition(s.Phase().String())
	e.emitLocked(&events.Event{Type: events.EventTypeState})
}

// persistLocked reconciles the list with the active conversation and writes
// both. It counts as a single persistence write.
func (e *Engine) persistLocked(ctx context.Context) error {
	if e.conv == nil {
		return nil
	}
	c := e.conv.Clone()
	e.list.Upsert(c)

	if e.store == nil {
		return nil
	}
	err := multierr.Append(
		asPersistenceError("save conversation", e.store.SaveConversation(ctx, c)),
		asPersistenceError("save conversation list", e.store.SaveConversationList(ctx, e.list.List())),
	)
	e.metrics.PersistenceWrite(err)
	if err != nil {
		l := e.logger()
		l.Warn().Err(err).Msg("could not persist conversation")
		e.emitLocked(&events.Event{
			Type:  events.EventTypePersistenceError,
			Error: err.Error(),
		})
	}
	return err
}

func (e *Engine) persistSelectionLocked(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	err := asPersistenceError("save selection", e.store.SaveSelectedConversationID(ctx, e.list.SelectedID()))
	e.metrics.PersistenceWrite(err)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", e.list.SelectedID()).Msg("could not persist selection")
		e.emitLocked(&events.Event{
			Type:  events.EventTypePersistenceError,
			Error: err.Error(),
		})
	}
	return err
}

// resetDialogueLocked restarts the script on the active conversation by
// appending the first prompt.
func (e *Engine) resetDialogueLocked() {
	e.answers = nil
	e.conv.Append(conversation.NewAssistantMessage(e.script.FirstPrompt()))
	e.setStateLocked(dialogue.Scripted(0))
}

// resumeLocked makes c the active conversation and derives its dialogue
// state from the transcript. An empty transcript starts the script, a
// transcript holding only the first prompt waits for its answer, and
// anything else resumes free chat.
func (e *Engine) resumeLocked(c *conversation.Conversation) (seeded bool) {
	e.conv = c
	e.answers = nil
	switch {
	case c.Len() == 0:
		e.resetDialogueLocked()
		return true
	case c.Len() == 1 && c.Messages[0].Role == conversation.RoleAssistant &&
		c.Messages[0].Content == e.script.FirstPrompt():
		e.state = dialogue.Scripted(0)
	default:
		e.state = dialogue.FreeChat()
	}
	e.emitLocked(&events.Event{Type: events.EventTypeState})
	return false
}

func (e *Engine) newConversation() *conversation.Conversation {
	model := e.defaults.Model
	prompt := e.defaults.Prompt
	temperature := e.defaults.Temperature
	return conversation.New(
		conversation.WithModel(model),
		conversation.WithPrompt(prompt),
		conversation.WithTemperature(temperature),
	)
}

// NewConversation creates, selects and seeds a fresh conversation.
func (e *Engine) NewConversation(ctx context.Context) (*conversation.Conversation, error) {
	e.mu.Lock()
	if e.generating {
		e.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	c := e.newConversation()
	e.list.UpsertSelected(c)
	e.resumeLocked(c)
	err := multierr.Append(e.persistLocked(ctx), e.persistSelectionLocked(ctx))
	e.emitUpdatedLocked("")
	ret := e.conv.Clone()
	l := e.logger()
	e.unlockAndFlush()

	l.Info().Msg("created conversation")
	return ret, err
}

// Open selects c, adding it to the list if it is unknown, and resumes it.
func (e *Engine) Open(ctx context.Context, c *conversation.Conversation) error {
	if c == nil {
		return ErrNoConversation
	}
	e.mu.Lock()
	if e.generating {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	_, known := e.list.Get(c.ID)
	e.list.UpsertSelected(c)
	var err error
	// the list only keeps metadata, so a new transcript needs its own entry
	if e.resumeLocked(c.Clone()) || !known {
		err = e.persistLocked(ctx)
	}
	err = multierr.Append(err, e.persistSelectionLocked(ctx))
	e.emitUpdatedLocked("")
	e.unlockAndFlush()
	return err
}

// Select opens the known conversation with the given id.
func (e *Engine) Select(ctx context.Context, id string) error {
	c, ok := e.list.Get(id)
	if !ok {
		return fmt.Errorf("select %s: %w", id, conversation.ErrConversationNotFound)
	}
	return e.Open(ctx, c)
}

// Delete removes a conversation. Deleting the active conversation opens the
// newly selected one, or a fresh conversation when none is left.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	if e.generating {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	if err := e.list.Remove(id); err != nil {
		e.mu.Unlock()
		return err
	}
	var err error
	if e.store != nil {
		err = multierr.Append(
			asPersistenceError("delete conversation", e.store.DeleteConversation(ctx, id)),
			asPersistenceError("save conversation list", e.store.SaveConversationList(ctx, e.list.List())),
		)
		e.metrics.PersistenceWrite(err)
	}
	wasActive := e.convID() == id
	if wasActive {
		if next, ok := e.list.Selected(); ok {
			if e.resumeLocked(next) {
				err = multierr.Append(err, e.persistLocked(ctx))
			}
		} else {
			c := e.newConversation()
			e.list.UpsertSelected(c)
			e.resumeLocked(c)
			err = multierr.Append(err, e.persistLocked(ctx))
		}
		err = multierr.Append(err, e.persistSelectionLocked(ctx))
		e.emitUpdatedLocked("")
	}
	e.unlockAndFlush()

	log.Info().Str("conversation_id", id).Bool("active", wasActive).Msg("deleted conversation")
	return err
}

// Clear empties the active transcript and restarts the script.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	if e.generating {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	if e.conv == nil {
		e.mu.Unlock()
		return ErrNoConversation
	}
	e.conv.Reset()
	e.resetDialogueLocked()
	err := e.persistLocked(ctx)
	e.emitUpdatedLocked("")
	e.unlockAndFlush()
	return err
}

// Configure applies options (model, system prompt, temperature, name) to the
// active conversation.
func (e *Engine) Configure(ctx context.Context, options ...conversation.Option) error {
	e.mu.Lock()
	if e.generating {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	if e.conv == nil {
		e.mu.Unlock()
		return ErrNoConversation
	}
	id := e.conv.ID
	for _, o := range options {
		o(e.conv)
	}
	e.conv.ID = id
	err := e.persistLocked(ctx)
	e.emitUpdatedLocked("")
	e.unlockAndFlush()
	return err
}

// AppendDraft adds a hand-composed email to the transcript as a user
// message. No generation is started.
func (e *Engine) AppendDraft(ctx context.Context, d email.Draft) error {
	e.mu.Lock()
	if e.generating {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	if e.conv == nil {
		e.mu.Unlock()
		return ErrNoConversation
	}
	e.conv.Append(conversation.NewUserMessage(d.Message()))
	err := e.persistLocked(ctx)
	e.emitUpdatedLocked("")
	e.unlockAndFlush()
	return err
}

// Regenerate resubmits the last user message, replacing it and everything
// after it.
func (e *Engine) Regenerate(ctx context.Context) error {
	e.mu.Lock()
	if e.conv == nil {
		e.mu.Unlock()
		return ErrNoConversation
	}
	n := e.conv.Len()
	i := n - 1
	for ; i >= 0; i-- {
		if e.conv.Messages[i].Role == conversation.RoleUser {
			break
		}
	}
	if i < 0 {
		e.mu.Unlock()
		return ErrNothingToRegenerate
	}
	text := e.conv.Messages[i].Content
	e.mu.Unlock()
	return e.HandleSubmit(ctx, text, n-i)
}

// Stop cancels the generation in flight. It reports whether there was one.
func (e *Engine) Stop() bool {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.cancelGeneration == nil {
		return false
	}
	e.cancelGeneration()
	return true
}

type generationSettings struct {
	model       string
	system      string
	temperature float64
	prompt      string
}

// HandleSubmit applies a user submission to the active conversation. The
// last deleteCount messages are removed first.
//
// Scripted turns and confirmation answers return once the transition is
// persisted. Turns that generate block until the response stream ends:
// completed, cancelled through Stop or ctx, or failed. Cancellation is not
// an error. Persistence failures are returned alongside the (kept) new state
// and match store.ErrPersistence.
func (e *Engine) HandleSubmit(ctx context.Context, text string, deleteCount int) error {
	e.mu.Lock()
	if e.generating || e.state.Phase() == dialogue.PhaseGeneratingEmail {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	if e.conv == nil {
		e.mu.Unlock()
		return ErrNoConversation
	}

	e.conv.TrimLast(deleteCount)
	e.conv.Append(conversation.NewUserMessage(text))

	var prompt string
	switch e.state.Phase() {
	case dialogue.PhaseScripted:
		err := e.answerLocked(text)
		err = multierr.Append(err, e.persistLocked(ctx))
		e.emitUpdatedLocked("")
		e.unlockAndFlush()
		return err

	case dialogue.PhaseAwaitingConfirmation:
		switch dialogue.ParseConfirmation(text) {
		case dialogue.ConfirmationYes:
			instruction, err := e.script.BuildGenerationInstruction(e.answers)
			if err != nil {
				perr := e.persistLocked(ctx)
				e.emitUpdatedLocked("")
				e.unlockAndFlush()
				return multierr.Append(err, perr)
			}
			e.setStateLocked(dialogue.GeneratingEmail())
			prompt = instruction
		case dialogue.ConfirmationNo:
			e.resetDialogueLocked()
			err := e.persistLocked(ctx)
			e.emitUpdatedLocked("")
			e.unlockAndFlush()
			return err
		default:
			e.conv.Append(conversation.NewAssistantMessage(dialogue.Reprompt))
			err := e.persistLocked(ctx)
			e.emitUpdatedLocked("")
			e.unlockAndFlush()
			return err
		}

	case dialogue.PhaseFreeChat:
		if e.conv.Len() == 1 {
			e.conv.Name = conversation.DeriveName(text)
		}
		prompt = e.conv.JoinedContents()
	}

	settings := generationSettings{
		model:       e.conv.Model.Name,
		system:      e.conv.Prompt,
		temperature: e.conv.Temperature,
		prompt:      prompt,
	}
	perr := e.persistLocked(ctx)
	e.emitUpdatedLocked("")
	e.generating = true
	e.unlockAndFlush()

	return multierr.Append(perr, e.generate(ctx, settings))
}

// answerLocked records the answer to the current scripted question and
// moves to the next question, or to the confirmation after the last one.
func (e *Engine) answerLocked(text string) error {
	i, _ := e.state.Question()
	if len(e.answers) > i {
		e.answers = e.answers[:i]
	}
	for len(e.answers) < i {
		e.answers = append(e.answers, "")
	}
	e.answers = append(e.answers, text)

	if next, ok := e.script.NextPrompt(i); ok {
		e.conv.Append(conversation.NewAssistantMessage(next))
		e.setStateLocked(dialogue.Scripted(i + 1))
		return nil
	}

	summary, err := e.script.BuildSummary(e.answers)
	if err != nil {
		return err
	}
	e.conv.Append(conversation.NewAssistantMessage(summary))
	e.setStateLocked(dialogue.AwaitingConfirmation())
	return nil
}

// generate streams a response into the active conversation. It is entered
// with e.generating set and clears it before returning.
func (e *Engine) generate(ctx context.Context, settings generationSettings) error {
	generationID := helpers.NewGenerationID()
	ctx = helpers.ContextWithGenerationID(ctx, generationID)
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.streamMu.Lock()
	e.cancelGeneration = cancel
	e.streamMu.Unlock()
	defer func() {
		e.streamMu.Lock()
		e.cancelGeneration = nil
		e.streamMu.Unlock()
	}()

	e.mu.Lock()
	l := e.logger().With().Str("generation_id", generationID).Logger()
	e.emitLocked(&events.Event{Type: events.EventTypeStart, GenerationID: generationID})
	e.unlockAndFlush()

	started := time.Now()
	e.metrics.GenerationStarted()
	l.Debug().Str("model", settings.model).Msg("starting generation")

	completion, chunks, streamErr, writeErr := e.streamInto(genCtx, generationID, settings)

	outcome := metrics.OutcomeCompleted
	switch {
	case streamErr == nil:
	case stream.IsCancelled(streamErr) || genCtx.Err() != nil:
		outcome = metrics.OutcomeCancelled
	default:
		outcome = metrics.OutcomeFailed
	}

	e.mu.Lock()
	e.generating = false
	fromEmail := e.state.Phase() == dialogue.PhaseGeneratingEmail
	var ret error
	switch outcome {
	case metrics.OutcomeCompleted:
		if fromEmail {
			e.answers = nil
			e.setStateLocked(dialogue.FreeChat())
		}
		// the last chunk write already holds the completed transcript
		if writeErr != nil {
			writeErr = multierr.Append(writeErr, e.persistLocked(context.WithoutCancel(ctx)))
		}
		e.emitLocked(&events.Event{
			Type:         events.EventTypeFinal,
			GenerationID: generationID,
			Completion:   completion,
		})
		e.emitUpdatedLocked(generationID)

	case metrics.OutcomeCancelled:
		// the transcript stays at its last folded state and is not written again
		if fromEmail {
			e.answers = nil
			e.setStateLocked(dialogue.FreeChat())
		}
		e.emitLocked(&events.Event{
			Type:         events.EventTypeInterrupt,
			GenerationID: generationID,
			Completion:   completion,
		})

	case metrics.OutcomeFailed:
		ret = streamErr
		if chunks > 0 {
			e.conv.ReplaceLastContent(completion + "\n\n" + fmt.Sprintf(FailureNotice, streamErr))
			writeErr = multierr.Append(writeErr, e.persistLocked(context.WithoutCancel(ctx)))
		}
		if fromEmail {
			// answers are kept so that "yes" can be sent again
			e.setStateLocked(dialogue.AwaitingConfirmation())
		}
		e.emitLocked(&events.Event{
			Type:         events.EventTypeError,
			GenerationID: generationID,
			Completion:   completion,
			Error:        streamErr.Error(),
		})
		e.emitUpdatedLocked(generationID)
	}
	e.unlockAndFlush()

	e.metrics.GenerationFinished(outcome, time.Since(started))
	ev := l.Info()
	if outcome == metrics.OutcomeFailed {
		ev = l.Warn().Err(streamErr)
	}
	ev.Str("outcome", outcome).
		Int("chunk_count", chunks).
		Dur("duration", time.Since(started)).
		Msg("generation finished")

	return multierr.Append(ret, writeErr)
}

// streamInto sends the request and folds every chunk into the active
// conversation, persisting after each one. Cancellation is checked before
// every fold: once genCtx is done nothing is folded or written.
func (e *Engine) streamInto(
	genCtx context.Context,
	generationID string,
	settings generationSettings,
) (completion string, chunks int, streamErr error, writeErr error) {
	req, err := stream.NewRequest(settings.model, settings.system, settings.prompt, settings.temperature)
	if err != nil {
		return "", 0, err, nil
	}
	s, err := e.client.Send(genCtx, req)
	if err != nil {
		return "", 0, err, nil
	}
	defer s.Cancel()

	// writes already under way when Stop is called are allowed to finish
	writeCtx := context.WithoutCancel(genCtx)

	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return completion, chunks, nil, writeErr
		}
		if err != nil {
			return completion, chunks, err, writeErr
		}

		e.mu.Lock()
		if genCtx.Err() != nil {
			e.mu.Unlock()
			return completion, chunks, stream.ErrCancelled, writeErr
		}
		e.conv.Messages, completion = Fold(e.conv.Messages, completion, chunk)
		chunks++
		e.metrics.ChunkFolded()
		e.emitLocked(&events.Event{
			Type:         events.EventTypePartial,
			GenerationID: generationID,
			Delta:        chunk,
			Completion:   completion,
		})
		writeErr = multierr.Append(writeErr, e.persistLocked(writeCtx))
		e.emitUpdatedLocked(generationID)
		e.unlockAndFlush()
	}
}
