package engine

import (
	"context"
	"sync"

	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/go-go-golems/quill/pkg/store"
	"github.com/go-go-golems/quill/pkg/stream"
)

// fakeClient replays a fixed list of chunks, optionally failing afterwards.
type fakeClient struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	sendErr  error
	requests []*stream.Request
	// block, when set, is waited on before the first chunk
	block  chan struct{}
	onSend func()
}

func (f *fakeClient) Send(ctx context.Context, req *stream.Request) (*stream.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	chunks := append([]string(nil), f.chunks...)
	streamErr := f.err
	sendErr := f.sendErr
	block := f.block
	onSend := f.onSend
	f.mu.Unlock()

	if sendErr != nil {
		return nil, sendErr
	}
	if onSend != nil {
		onSend()
	}

	return stream.NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		if block != nil {
			select {
			case <-ctx.Done():
				return stream.ErrCancelled
			case <-block:
			}
		}
		for _, c := range chunks {
			if !emit(c) {
				return stream.ErrCancelled
			}
		}
		return streamErr
	}), nil
}

func (f *fakeClient) Requests() []*stream.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stream.Request(nil), f.requests...)
}

// countingStore wraps a memory store and counts conversation writes.
type countingStore struct {
	*store.Store

	mu          sync.Mutex
	saves       int
	listSaves   int
	failWith    error
	onSave      func(n int)
	lastSaved   *conversation.Conversation
	selectedIDs []string
}

func newCountingStore() *countingStore {
	return &countingStore{Store: store.New(store.NewMemoryKV())}
}

func (c *countingStore) SaveConversation(ctx context.Context, conv *conversation.Conversation) error {
	c.mu.Lock()
	c.saves++
	n := c.saves
	c.lastSaved = conv.Clone()
	failWith := c.failWith
	onSave := c.onSave
	c.mu.Unlock()

	if onSave != nil {
		onSave(n)
	}
	if failWith != nil {
		return failWith
	}
	return c.Store.SaveConversation(ctx, conv)
}

func (c *countingStore) SaveConversationList(ctx context.Context, list []*conversation.Conversation) error {
	c.mu.Lock()
	c.listSaves++
	failWith := c.failWith
	c.mu.Unlock()
	if failWith != nil {
		return failWith
	}
	return c.Store.SaveConversationList(ctx, list)
}

func (c *countingStore) SaveSelectedConversationID(ctx context.Context, id string) error {
	c.mu.Lock()
	c.selectedIDs = append(c.selectedIDs, id)
	c.mu.Unlock()
	return c.Store.SaveSelectedConversationID(ctx, id)
}

func (c *countingStore) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func (c *countingStore) LastSaved() *conversation.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved.Clone()
}
