package conversation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(list []*Conversation) []string {
	ret := make([]string, len(list))
	for i, c := range list {
		ret[i] = c.ID
	}
	return ret
}

func TestReplaceOrAppend(t *testing.T) {
	a := New(WithID("a"), WithName("A"))
	b := New(WithID("b"), WithName("B"))
	c := New(WithID("c"), WithName("C"))

	tests := []struct {
		name      string
		list      []*Conversation
		updated   *Conversation
		wantIDs   []string
		wantNames []string
	}{
		{
			name:      "empty list appends",
			list:      nil,
			updated:   New(WithID("x"), WithName("X")),
			wantIDs:   []string{"x"},
			wantNames: []string{"X"},
		},
		{
			name:      "no match appends",
			list:      []*Conversation{a, b},
			updated:   New(WithID("x"), WithName("X")),
			wantIDs:   []string{"a", "b", "x"},
			wantNames: []string{"A", "B", "X"},
		},
		{
			name:      "match replaces in place",
			list:      []*Conversation{a, b, c},
			updated:   New(WithID("b"), WithName("B2")),
			wantIDs:   []string{"a", "b", "c"},
			wantNames: []string{"A", "B2", "C"},
		},
		{
			name:      "duplicate ids collapse to the update",
			list:      []*Conversation{a, b, New(WithID("b"), WithName("B-dup"))},
			updated:   New(WithID("b"), WithName("B3")),
			wantIDs:   []string{"a", "b"},
			wantNames: []string{"A", "B3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fmt.Sprintf("%v", ids(tt.list))
			got := ReplaceOrAppend(tt.list, tt.updated)

			assert.Equal(t, tt.wantIDs, ids(got))
			names := make([]string, len(got))
			count := 0
			for i, c := range got {
				names[i] = c.Name
				if c.ID == tt.updated.ID {
					count++
					assert.Same(t, tt.updated, c)
				}
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, 1, count)
			assert.Equal(t, before, fmt.Sprintf("%v", ids(tt.list)), "input list must not change")
		})
	}
}

func TestReplaceOrAppendKeepsOtherEntries(t *testing.T) {
	list := []*Conversation{}
	for i := 0; i < 10; i++ {
		list = append(list, New(WithID(fmt.Sprintf("c%d", i))))
	}
	for i := 0; i < 12; i++ {
		updated := New(WithID(fmt.Sprintf("c%d", i)), WithName("updated"))
		got := ReplaceOrAppend(list, updated)
		require.GreaterOrEqual(t, len(got), len(list))
		for _, c := range got {
			if c.ID == updated.ID {
				continue
			}
			assert.Equal(t, DefaultName, c.Name)
		}
	}
}

func TestListManagerSelection(t *testing.T) {
	a := New(WithID("a"))
	b := New(WithID("b"))
	m := NewListManager([]*Conversation{a, b}, "b")

	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.ID)

	require.NoError(t, m.Select("a"))
	assert.Equal(t, "a", m.SelectedID())

	err := m.Select("missing")
	assert.True(t, errors.Is(err, ErrConversationNotFound))

	c := New(WithID("c"))
	m.UpsertSelected(c)
	assert.Equal(t, "c", m.SelectedID())
	assert.Equal(t, []string{"a", "b", "c"}, ids(m.List()))
}

func TestListManagerUnknownSelectionIgnored(t *testing.T) {
	m := NewListManager([]*Conversation{New(WithID("a"))}, "zzz")
	assert.Equal(t, "", m.SelectedID())
	_, ok := m.Selected()
	assert.False(t, ok)
}

func TestListManagerRemove(t *testing.T) {
	m := NewListManager([]*Conversation{New(WithID("a")), New(WithID("b")), New(WithID("c"))}, "c")

	require.NoError(t, m.Remove("a"))
	assert.Equal(t, []string{"b", "c"}, ids(m.List()))
	assert.Equal(t, "c", m.SelectedID())

	require.NoError(t, m.Remove("c"))
	assert.Equal(t, "b", m.SelectedID())

	require.NoError(t, m.Remove("b"))
	assert.Equal(t, "", m.SelectedID())
	assert.Equal(t, 0, m.Len())

	assert.ErrorIs(t, m.Remove("b"), ErrConversationNotFound)
}

func TestListManagerReturnsCopies(t *testing.T) {
	m := NewListManager(nil, "")
	c := New(WithID("a"), WithMessages(NewUserMessage("x")))
	m.UpsertSelected(c)

	c.Messages[0].Content = "mutated"
	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", got.Messages[0].Content)

	got.Messages[0].Content = "mutated again"
	again, _ := m.Get("a")
	assert.Equal(t, "x", again.Messages[0].Content)
}
