package stream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func produceAll(chunks ...string) Producer {
	return func(ctx context.Context, emit func(string) bool) error {
		for _, c := range chunks {
			if !emit(c) {
				return ErrCancelled
			}
		}
		return nil
	}
}

func TestStreamYieldsChunksInOrder(t *testing.T) {
	s := NewStream(context.Background(), produceAll("Hel", "lo, ", "world"))

	var got []string
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, got)
	assert.NoError(t, s.Err())

	// terminal results are sticky
	_, err := s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamSkipsEmptyChunks(t *testing.T) {
	s := NewStream(context.Background(), produceAll("", "a", "", "b"))
	text, err := ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestStreamCancelStopsBeforeNextRead(t *testing.T) {
	s := NewStream(context.Background(), produceAll("1", "2", "3", "4", "5"))

	c, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", c)
	c, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "2", c)

	s.Cancel()
	s.Cancel()

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsCancelled(s.Err()))

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStreamCancelWhileBlocked(t *testing.T) {
	s := NewStream(context.Background(), func(ctx context.Context, emit func(string) bool) error {
		<-ctx.Done()
		return ErrCancelled
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Cancel()
	}()

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStreamParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, produceAll("a", "b"))
	cancel()

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStreamFailureKeepsPartialText(t *testing.T) {
	boom := errors.New("boom")
	s := NewStream(context.Background(), func(ctx context.Context, emit func(string) bool) error {
		emit("par")
		emit("tial")
		return &TransportError{Err: boom}
	})

	text, err := ReadAll(s)
	assert.Equal(t, "partial", text)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsCancelled(err))
}

func TestRequestValidation(t *testing.T) {
	_, err := NewRequest("", "sys", "prompt", 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestConstruction)

	var rce *RequestConstructionError
	require.True(t, errors.As(err, &rce))
	assert.Equal(t, "model", rce.Field)

	var nilReq *Request
	assert.ErrorIs(t, nilReq.Validate(), ErrRequestConstruction)

	req, err := NewRequest("llama2", "sys", "prompt", 0.7)
	require.NoError(t, err)
	assert.Equal(t, 0.7, req.Options.Temperature)
}

func TestEchoClient(t *testing.T) {
	e := &EchoClient{ChunkSize: 3}
	s, err := e.Send(context.Background(), &Request{Model: "echo", Prompt: "héllo wörld"})
	require.NoError(t, err)

	var chunks []string
	for {
		c, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
	assert.Equal(t, []string{"hél", "lo ", "wör", "ld"}, chunks)

	_, err = e.Send(context.Background(), &Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrRequestConstruction)
}

func TestEchoClientCancel(t *testing.T) {
	e := &EchoClient{ChunkSize: 1, Delay: 10 * time.Millisecond}
	s, err := e.Send(context.Background(), &Request{Model: "echo", Prompt: "abcdefgh"})
	require.NoError(t, err)

	c, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", c)
	s.Cancel()

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSplitChunks(t *testing.T) {
	assert.Equal(t, []string{}, SplitChunks("", 3))
	assert.Equal(t, []string{"a", "b"}, SplitChunks("ab", 0))
	assert.Equal(t, []string{"abc"}, SplitChunks("abc", 10))
}
