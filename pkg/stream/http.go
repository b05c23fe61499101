package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/unicode"
)

const DefaultReadSize = 4096

// HTTPClient posts the JSON request to Endpoint and streams the response
// body as UTF-8 text. The body has no framing: every read that yields
// complete characters becomes one chunk.
type HTTPClient struct {
	Endpoint   string
	HTTPClient *http.Client
	// ReadSize bounds the number of bytes consumed per read.
	ReadSize int
}

type HTTPClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.HTTPClient = c
	}
}

func WithReadSize(n int) HTTPClientOption {
	return func(h *HTTPClient) {
		h.ReadSize = n
	}
}

func NewHTTPClient(endpoint string, options ...HTTPClientOption) *HTTPClient {
	ret := &HTTPClient{
		Endpoint:   endpoint,
		HTTPClient: http.DefaultClient,
		ReadSize:   DefaultReadSize,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

var _ Client = (*HTTPClient)(nil)

func (h *HTTPClient) Send(ctx context.Context, req *Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if h.Endpoint == "" {
		return nil, &RequestConstructionError{Field: "endpoint", Reason: "endpoint is required"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &RequestConstructionError{Field: "request", Reason: err.Error()}
	}

	s := NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
		if err != nil {
			return &RequestConstructionError{Field: "endpoint", Reason: err.Error()}
		}
		httpReq.Header.Set("Content-Type", "application/json")

		client := h.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}

		log.Debug().Str("endpoint", h.Endpoint).Str("model", req.Model).Msg("sending generation request")
		resp, err := client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return &TransportError{Err: err}
		}
		if resp.Body != nil {
			defer func() {
				_ = resp.Body.Close()
			}()
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		if resp.Body == nil || resp.StatusCode == http.StatusNoContent {
			return &TransportError{StatusCode: resp.StatusCode, Status: resp.Status, Err: ErrNoBody}
		}

		return h.readBody(ctx, resp.Body, emit)
	})

	return s, nil
}

// readBody decodes r incrementally. A multi-byte character split across two
// reads is held back by the decoder until its remaining bytes arrive.
func (h *HTTPClient) readBody(ctx context.Context, r io.Reader, emit func(string) bool) error {
	size := h.ReadSize
	if size < utf8.UTFMax {
		size = DefaultReadSize
	}
	decoded := unicode.UTF8.NewDecoder().Reader(r)
	buf := make([]byte, size)
	// bytes of a character cut by a short destination buffer
	var carry []byte

	for {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		n, err := decoded.Read(buf)
		if n > 0 {
			text := append(carry, buf[:n]...)
			cut := completePrefix(text)
			carry = append([]byte(nil), text[cut:]...)
			if cut > 0 && !emit(string(text[:cut])) {
				return ErrCancelled
			}
		}
		if err == io.EOF {
			if len(carry) > 0 && !emit(string(carry)) {
				return ErrCancelled
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return &TransportError{Err: errors.Wrap(err, "could not read response body")}
		}
	}
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte character.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
