package conversation

import (
	"errors"
	"fmt"
	"sync"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ReplaceOrAppend returns a new list in which the entry sharing updated's id
// is replaced by updated. If no entry matches, updated is appended. The input
// slice is never modified and no other entry is dropped or altered.
func ReplaceOrAppend(list []*Conversation, updated *Conversation) []*Conversation {
	ret := make([]*Conversation, 0, len(list)+1)
	replaced := false
	for _, c := range list {
		if c != nil && updated != nil && c.ID == updated.ID {
			if !replaced {
				ret = append(ret, updated)
				replaced = true
			}
			continue
		}
		ret = append(ret, c)
	}
	if !replaced && updated != nil {
		ret = append(ret, updated)
	}
	return ret
}

// ListManager keeps the set of known conversations together with the
// selected one. The selected conversation is always present in the list.
type ListManager struct {
	mu            sync.RWMutex
	conversations []*Conversation
	selectedID    string
}

func NewListManager(conversations []*Conversation, selectedID string) *ListManager {
	ret := &ListManager{}
	for _, c := range conversations {
		ret.conversations = ReplaceOrAppend(ret.conversations, c.Clone())
	}
	if selectedID != "" && ret.indexOf(selectedID) >= 0 {
		ret.selectedID = selectedID
	}
	return ret
}

func (l *ListManager) indexOf(id string) int {
	for i, c := range l.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// List returns deep copies of all conversations in list order.
func (l *ListManager) List() []*Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]*Conversation, len(l.conversations))
	for i, c := range l.conversations {
		ret[i] = c.Clone()
	}
	return ret
}

func (l *ListManager) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conversations)
}

func (l *ListManager) Get(id string) (*Conversation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return l.conversations[idx].Clone(), true
}

func (l *ListManager) SelectedID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selectedID
}

func (l *ListManager) Selected() (*Conversation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.indexOf(l.selectedID)
	if idx < 0 {
		return nil, false
	}
	return l.conversations[idx].Clone(), true
}

func (l *ListManager) Select(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexOf(id) < 0 {
		return fmt.Errorf("select %s: %w", id, ErrConversationNotFound)
	}
	l.selectedID = id
	return nil
}

// Upsert stores a copy of c, replacing the entry with the same id or
// appending it.
func (l *ListManager) Upsert(c *Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conversations = ReplaceOrAppend(l.conversations, c.Clone())
}

// UpsertSelected stores c and makes it the selected conversation.
func (l *ListManager) UpsertSelected(c *Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conversations = ReplaceOrAppend(l.conversations, c.Clone())
	l.selectedID = c.ID
}

// Remove deletes a conversation. When the selected conversation is removed,
// the most recent remaining one becomes selected.
func (l *ListManager) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrConversationNotFound)
	}
	l.conversations = append(l.conversations[:idx:idx], l.conversations[idx+1:]...)
	if l.selectedID == id {
		l.selectedID = ""
		if len(l.conversations) > 0 {
			l.selectedID = l.conversations[len(l.conversations)-1].ID
		}
	}
	return nil
}
