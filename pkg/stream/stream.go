package stream

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-go-golems/quill/pkg/helpers"
)

// Client sends a generation request and exposes the response as a stream of
// text chunks.
type Client interface {
	Send(ctx context.Context, req *Request) (*Stream, error)
}

// Producer pushes chunks into a stream through emit until the response is
// exhausted. emit returns false once the stream was cancelled, in which case
// the producer should return promptly.
type Producer func(ctx context.Context, emit func(chunk string) bool) error

// Stream is a cancellable, strictly ordered sequence of text chunks.
//
// Next returns the chunks in arrival order, then io.EOF on completion,
// ErrCancelled after Cancel (or cancellation of the parent context), or the
// error that terminated the response. Terminal results are sticky.
type Stream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	chunks    <-chan helpers.Result[string]
	cancelled atomic.Bool
	once      sync.Once

	mu  sync.Mutex
	err error
}

// NewStream runs produce in its own goroutine and returns the stream it
// feeds. Chunks are handed over unbuffered: the producer only reads ahead as
// far as its transport does.
func NewStream(ctx context.Context, produce Producer) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	c := make(chan helpers.Result[string])
	s := &Stream{
		ctx:    ctx,
		cancel: cancel,
		chunks: c,
	}

	go func() {
		defer close(c)
		emit := func(chunk string) bool {
			if chunk == "" {
				return ctx.Err() == nil
			}
			select {
			case <-ctx.Done():
				return false
			case c <- helpers.NewValueResult(chunk):
				return true
			}
		}
		err := produce(ctx, emit)
		if err != nil && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case c <- helpers.NewErrorResult[string](err):
			}
		}
	}()

	return s
}

// Cancel aborts the in-flight request. It is safe to call more than once and
// from any goroutine.
func (s *Stream) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		s.cancel()
	})
}

func (s *Stream) isCancelled() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

func (s *Stream) finish(err error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	if s.err != io.EOF {
		s.cancel()
	}
	return "", s.err
}

// Next blocks until the next chunk is available. Cancellation is checked
// before every read.
func (s *Stream) Next() (string, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if s.isCancelled() {
		return s.finish(ErrCancelled)
	}

	r, ok := <-s.chunks
	if !ok {
		if s.isCancelled() {
			return s.finish(ErrCancelled)
		}
		return s.finish(io.EOF)
	}

	v, err := r.Value()
	if err != nil {
		if s.isCancelled() {
			return s.finish(ErrCancelled)
		}
		return s.finish(err)
	}
	if s.isCancelled() {
		return s.finish(ErrCancelled)
	}
	return v, nil
}

// Err returns the terminal result once the stream has ended: nil after a
// normal completion, ErrCancelled, or the failure.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// ReadAll drains the stream and returns the concatenated text. On failure or
// cancellation the text received so far is returned with the error.
func ReadAll(s *Stream) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
}
