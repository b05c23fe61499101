package conversation

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

const (
	DefaultName        = "New Conversation"
	DefaultTemperature = 0.5
	// NameMaxLength is the number of characters kept when a name is derived
	// from the first user message.
	NameMaxLength = 30
)

// Model describes the generation model a conversation talks to. Name is the
// identifier sent to the backend.
type Model struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func (m Model) IsZero() bool {
	return m.Name == ""
}

type Conversation struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Messages    []Message `json:"messages" yaml:"messages"`
	Model       Model     `json:"model" yaml:"model"`
	Prompt      string    `json:"prompt" yaml:"prompt"`
	Temperature float64   `json:"temperature" yaml:"temperature"`
}

type Option func(*Conversation)

func WithModel(model Model) Option {
	return func(c *Conversation) {
		c.Model = model
	}
}

func WithPrompt(prompt string) Option {
	return func(c *Conversation) {
		c.Prompt = prompt
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *Conversation) {
		c.Temperature = temperature
	}
}

func WithID(id string) Option {
	return func(c *Conversation) {
		c.ID = id
	}
}

func WithName(name string) Option {
	return func(c *Conversation) {
		c.Name = name
	}
}

func WithMessages(msgs ...Message) Option {
	return func(c *Conversation) {
		c.Messages = append(c.Messages, msgs...)
	}
}

// New creates an empty conversation with a fresh id.
func New(options ...Option) *Conversation {
	ret := &Conversation{
		ID:          uuid.NewString(),
		Name:        DefaultName,
		Messages:    []Message{},
		Temperature: DefaultTemperature,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	ret := clone.Clone(c).(*Conversation)
	if ret.Messages == nil {
		ret.Messages = []Message{}
	}
	return ret
}

func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

// TrimLast drops the n most recent messages. Trimming more messages than
// the transcript holds empties it.
func (c *Conversation) TrimLast(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.Messages) {
		c.Messages = c.Messages[:0]
		return
	}
	c.Messages = c.Messages[:len(c.Messages)-n]
}

// ReplaceLastContent overwrites the content of the most recent message. It
// is the only permitted non-append mutation of a transcript and is used
// while a generation is streaming into that message.
func (c *Conversation) ReplaceLastContent(content string) bool {
	if len(c.Messages) == 0 {
		return false
	}
	c.Messages[len(c.Messages)-1].Content = content
	return true
}

// Reset empties the transcript, keeping id, name and generation settings.
func (c *Conversation) Reset() {
	c.Messages = []Message{}
}

// JoinedContents concatenates every message content separated by a single
// space. This is the prompt sent for free-form chat turns.
func (c *Conversation) JoinedContents() string {
	parts := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, " ")
}

// DeriveName returns the name a conversation gets from its first user
// message: the text itself, or its first NameMaxLength characters followed
// by "..." when longer.
func DeriveName(content string) string {
	if utf8.RuneCountInString(content) <= NameMaxLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:NameMaxLength]) + "..."
}
