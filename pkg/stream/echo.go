package stream

import (
	"context"
	"time"
)

// EchoClient replays the prompt back in fixed size pieces, waiting Delay
// before each one. It needs no server and is used for demos and tests.
type EchoClient struct {
	// ChunkSize is counted in characters, not bytes.
	ChunkSize int
	Delay     time.Duration
}

func NewEchoClient() *EchoClient {
	return &EchoClient{
		ChunkSize: 4,
		Delay:     50 * time.Millisecond,
	}
}

var _ Client = (*EchoClient)(nil)

func (e *EchoClient) Send(ctx context.Context, req *Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chunks := SplitChunks(req.Prompt, e.ChunkSize)

	return NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		for _, chunk := range chunks {
			if e.Delay > 0 {
				select {
				case <-ctx.Done():
					return ErrCancelled
				case <-time.After(e.Delay):
				}
			}
			if !emit(chunk) {
				return ErrCancelled
			}
		}
		return nil
	}), nil
}

// SplitChunks cuts s into pieces of at most size characters.
func SplitChunks(s string, size int) []string {
	if size <= 0 {
		size = 1
	}
	runes := []rune(s)
	ret := make([]string, 0, len(runes)/size+1)
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		ret = append(ret, string(runes[:n]))
		runes = runes[n:]
	}
	return ret
}
