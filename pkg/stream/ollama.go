package stream

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmorganca/ollama/api"
	pkg_errors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OllamaAPI is the subset of *api.Client used by OllamaClient.
type OllamaAPI interface {
	Generate(ctx context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error
	List(ctx context.Context) (*api.ListResponse, error)
}

// OllamaClient streams completions from an ollama server through its
// generate endpoint.
type OllamaClient struct {
	API OllamaAPI
}

// NewOllamaClientFromEnvironment connects to the server named by OLLAMA_HOST.
func NewOllamaClientFromEnvironment() (*OllamaClient, error) {
	c, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, pkg_errors.Wrap(err, "could not create ollama client")
	}
	return &OllamaClient{API: c}, nil
}

var _ Client = (*OllamaClient)(nil)

func (o *OllamaClient) Send(ctx context.Context, req *Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if o.API == nil {
		return nil, &RequestConstructionError{Field: "client", Reason: "ollama client is not configured"}
	}

	stream := true
	generateReq := &api.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": req.Options.Temperature,
		},
	}

	s := NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		log.Debug().Str("model", req.Model).Msg("starting ollama generation")
		err := o.API.Generate(ctx, generateReq, func(resp api.GenerateResponse) error {
			if !emit(resp.Response) {
				return ErrCancelled
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrCancelled) {
			return ErrCancelled
		}
		return ollamaError(err)
	})

	return s, nil
}

// Models returns the names of the models installed on the server.
func (o *OllamaClient) Models(ctx context.Context) ([]string, error) {
	if o.API == nil {
		return nil, &RequestConstructionError{Field: "client", Reason: "ollama client is not configured"}
	}
	resp, err := o.API.List(ctx)
	if err != nil {
		return nil, ollamaError(err)
	}
	ret := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ret = append(ret, m.Name)
	}
	return ret, nil
}

func ollamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.Status
		if status == "" {
			status = http.StatusText(statusErr.StatusCode)
		}
		if statusErr.ErrorMessage != "" {
			return &TransportError{
				StatusCode: statusErr.StatusCode,
				Status:     status,
				Err:        errors.New(statusErr.ErrorMessage),
			}
		}
		return &TransportError{StatusCode: statusErr.StatusCode, Status: status}
	}
	return &TransportError{Err: err}
}
