package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	KeySelectedConversationID = "selectedConversationId"
	KeyConversationList       = "conversationList"
	conversationKeyPrefix     = "conversation:"
)

func ConversationKey(id string) string {
	return conversationKeyPrefix + id
}

// Store persists conversations, the conversation list and the selection into
// a KV. Transcripts live only under their conversation key; the list keeps
// the metadata of every conversation.
type Store struct {
	kv KV

	mu       sync.Mutex
	lastList string
}

// ListEntry is what the conversation list keeps of a conversation.
type ListEntry struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Model       conversation.Model `json:"model"`
	Prompt      string             `json:"prompt"`
	Temperature float64            `json:"temperature"`
}

func NewListEntry(c *conversation.Conversation) ListEntry {
	return ListEntry{
		ID:          c.ID,
		Name:        c.Name,
		Model:       c.Model,
		Prompt:      c.Prompt,
		Temperature: c.Temperature,
	}
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) KV() KV {
	return s.kv
}

func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) set(ctx context.Context, op string, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return &PersistenceError{Op: op, Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, string(b)); err != nil {
		return &PersistenceError{Op: op, Key: key, Err: err}
	}
	return nil
}

// SaveConversation writes the conversation under its own key.
func (s *Store) SaveConversation(ctx context.Context, c *conversation.Conversation) error {
	if c == nil {
		return &PersistenceError{Op: "save conversation", Err: errors.New("conversation is nil")}
	}
	return s.set(ctx, "save conversation", ConversationKey(c.ID), c)
}

// SaveConversationList writes the metadata of every conversation in list. A
// list identical to the last one written is not written again.
func (s *Store) SaveConversationList(ctx context.Context, list []*conversation.Conversation) error {
	const op = "save conversation list"
	entries := make([]ListEntry, 0, len(list))
	for _, c := range list {
		if c != nil {
			entries = append(entries, NewListEntry(c))
		}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return &PersistenceError{Op: op, Key: KeyConversationList, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if string(b) == s.lastList {
		return nil
	}
	if err := s.kv.Set(ctx, KeyConversationList, string(b)); err != nil {
		return &PersistenceError{Op: op, Key: KeyConversationList, Err: err}
	}
	s.lastList = string(b)
	return nil
}

func (s *Store) SaveSelectedConversationID(ctx context.Context, id string) error {
	if err := s.kv.Set(ctx, KeySelectedConversationID, id); err != nil {
		return &PersistenceError{Op: "save selected conversation", Key: KeySelectedConversationID, Err: err}
	}
	return nil
}

// DeleteConversation removes the per-conversation entry. The list is saved
// separately by the caller.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	key := ConversationKey(id)
	if err := s.kv.Delete(ctx, key); err != nil {
		return &PersistenceError{Op: "delete conversation", Key: key, Err: err}
	}
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, id string) (*conversation.Conversation, bool, error) {
	raw, ok, err := s.kv.Get(ctx, ConversationKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	ret := &conversation.Conversation{}
	if err := json.Unmarshal([]byte(raw), ret); err != nil {
		return nil, false, errors.Wrapf(err, "could not decode conversation %s", id)
	}
	if ret.Messages == nil {
		ret.Messages = []conversation.Message{}
	}
	return ret, true, nil
}

// LoadConversationList returns the listed conversations without their
// transcripts. Lists written with full conversations keep theirs.
func (s *Store) LoadConversationList(ctx context.Context) ([]*conversation.Conversation, error) {
	raw, ok, err := s.kv.Get(ctx, KeyConversationList)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []*conversation.Conversation{}, nil
	}
	var list []*conversation.Conversation
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation list")
	}
	ret := make([]*conversation.Conversation, 0, len(list))
	for _, c := range list {
		if c == nil {
			continue
		}
		if c.Messages == nil {
			c.Messages = []conversation.Message{}
		}
		ret = conversation.ReplaceOrAppend(ret, c)
	}
	return ret, nil
}

func (s *Store) LoadSelectedConversationID(ctx context.Context) (string, error) {
	id, _, err := s.kv.Get(ctx, KeySelectedConversationID)
	return id, err
}

// Snapshot is everything needed to restore the conversation list on
// startup.
type Snapshot struct {
	Conversations []*conversation.Conversation
	SelectedID    string
}

// Load restores the list and selection, filling in each transcript from its
// conversation entry.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	list, err := s.LoadConversationList(ctx)
	if err != nil {
		return nil, err
	}
	for i, c := range list {
		stored, ok, err := s.LoadConversation(ctx, c.ID)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", c.ID).Msg("ignoring unreadable conversation entry")
			continue
		}
		if ok {
			list[i] = stored
		}
	}

	selectedID, err := s.LoadSelectedConversationID(ctx)
	if err != nil {
		return nil, err
	}
	if selectedID != "" {
		found := false
		for _, c := range list {
			if c.ID == selectedID {
				found = true
				break
			}
		}
		if !found {
			// the selected conversation may only exist under its own key
			c, ok, err := s.LoadConversation(ctx, selectedID)
			if err != nil {
				return nil, err
			}
			if ok {
				list = conversation.ReplaceOrAppend(list, c)
			} else {
				selectedID = ""
			}
		}
	}

	return &Snapshot{Conversations: list, SelectedID: selectedID}, nil
}
