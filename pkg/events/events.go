package events

import (
	"encoding/json"

	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/rs/zerolog"
)

// TopicEngine carries every event emitted by the conversation engine.
const TopicEngine = "quill.engine"

type EventType string

const (
	// EventTypeUpdated is sent after any mutation of the active
	// conversation. It carries a copy of the conversation.
	EventTypeUpdated EventType = "updated"
	EventTypeState   EventType = "state"

	EventTypeStart     EventType = "start"
	EventTypePartial   EventType = "partial"
	EventTypeFinal     EventType = "final"
	EventTypeError     EventType = "error"
	EventTypeInterrupt EventType = "interrupt"

	EventTypePersistenceError EventType = "persistence-error"
)

// Event is the JSON payload published on TopicEngine.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	GenerationID   string    `json:"generation_id,omitempty"`
	State          string    `json:"state,omitempty"`

	// Delta is the chunk just folded, Completion the text accumulated so far.
	Delta      string `json:"delta,omitempty"`
	Completion string `json:"completion,omitempty"`
	Error      string `json:"error,omitempty"`

	Conversation *conversation.Conversation `json:"conversation,omitempty"`
}

func (e *Event) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	ev.Str("conversation_id", e.ConversationID)
	if e.GenerationID != "" {
		ev.Str("generation_id", e.GenerationID)
	}
	if e.State != "" {
		ev.Str("state", e.State)
	}
	if e.Error != "" {
		ev.Str("error", e.Error)
	}
	if e.Type == EventTypePartial {
		ev.Int("completion_length", len(e.Completion))
	}
}

func NewEventFromJson(b []byte) (*Event, error) {
	ret := &Event{}
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, err
	}
	return ret, nil
}
