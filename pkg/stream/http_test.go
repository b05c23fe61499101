package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flushPieces(t *testing.T, pieces ...[]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		for _, p := range pieces {
			_, _ = w.Write(p)
			flusher.Flush()
		}
	}
}

func TestHTTPClientPostsRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("Hello, world"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	req, err := NewRequest("llama2", "You are helpful", "Say hi", 0.7)
	require.NoError(t, err)

	s, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	text, err := ReadAll(s)
	require.NoError(t, err)

	assert.Equal(t, "Hello, world", text)
	assert.Equal(t, *req, got)
}

func TestHTTPClientRequestJSONShape(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL).Send(context.Background(), &Request{
		Model: "m", System: "s", Prompt: "p", Options: Options{Temperature: 0.5},
	})
	require.NoError(t, err)
	_, err = ReadAll(s)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"model":   "m",
		"system":  "s",
		"prompt":  "p",
		"options": map[string]interface{}{"temperature": 0.5},
	}, raw)
}

func TestHTTPClientHoldsBackSplitRunes(t *testing.T) {
	// "é" is 0xC3 0xA9 and "世" is 0xE4 0xB8 0x96
	srv := httptest.NewServer(flushPieces(t,
		[]byte("h\xc3"),
		[]byte("\xa9llo "),
		[]byte("\xe4"),
		[]byte("\xb8"),
		[]byte("\x96!"),
	))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL, WithReadSize(utf8.UTFMax)).
		Send(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)

	text := ""
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(chunk), "chunk %q", chunk)
		text += chunk
	}
	assert.Equal(t, "héllo 世!", text)
}

func TestHTTPClientEmptyBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL).Send(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestHTTPClientNoContentIsMissingBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL).Send(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestHTTPClientNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL).Send(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	text, err := ReadAll(s)
	assert.Equal(t, "", text)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Equal(t, "404 Not Found", te.Status)
	assert.Contains(t, err.Error(), "404 Not Found")
	assert.False(t, errors.Is(err, ErrNoBody))
}

func TestHTTPClientMissingModelSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL).Send(context.Background(), &Request{Prompt: "hi"})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrRequestConstruction)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	_, err = NewHTTPClient("").Send(context.Background(), &Request{Model: "m"})
	assert.ErrorIs(t, err, ErrRequestConstruction)
}

func TestHTTPClientCancelAbortsRequest(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		_, _ = w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	s, err := NewHTTPClient(srv.URL).Send(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)

	chunk, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", chunk)

	s.Cancel()
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrCancelled)

	// the server sees the connection go away
	<-done
}

type statusTransport struct {
	status int
}

func (s statusTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: s.status,
		Status:     http.StatusText(s.status),
		Header:     http.Header{},
		Request:    r,
	}, nil
}

func TestHTTPClientTransportWithoutBody(t *testing.T) {
	c := NewHTTPClient("http://quill.invalid/generate",
		WithHTTPClient(&http.Client{Transport: statusTransport{status: http.StatusNoContent}}))

	s, err := c.Send(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrNoBody)
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
