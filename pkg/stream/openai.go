package stream

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient streams chat completions from an OpenAI compatible server.
// The system prompt and the generation prompt are sent as two messages.
type OpenAIClient struct {
	Client *go_openai.Client
}

func NewOpenAIClient(apiKey string, baseURL string) *OpenAIClient {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{Client: go_openai.NewClientWithConfig(config)}
}

var _ Client = (*OpenAIClient)(nil)

func (o *OpenAIClient) Send(ctx context.Context, req *Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if o.Client == nil {
		return nil, &RequestConstructionError{Field: "client", Reason: "openai client is not configured"}
	}

	messages := []go_openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := go_openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Options.Temperature),
		Stream:      true,
	}

	s := NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		log.Debug().Str("model", req.Model).Msg("starting openai chat completion stream")
		stream, err := o.Client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return openaiError(err)
		}
		defer stream.Close()

		for {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ErrCancelled
				}
				return openaiError(err)
			}
			if len(response.Choices) == 0 {
				continue
			}
			if !emit(response.Choices[0].Delta.Content) {
				return ErrCancelled
			}
		}
	})

	return s, nil
}

func openaiError(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return &TransportError{
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return &TransportError{
			StatusCode: reqErr.HTTPStatusCode,
			Status:     http.StatusText(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return &TransportError{Err: err}
}
