package stream

import "strings"

type Options struct {
	Temperature float64 `json:"temperature"`
}

// Request is the generation payload sent to the backend.
type Request struct {
	Model   string  `json:"model"`
	System  string  `json:"system"`
	Prompt  string  `json:"prompt"`
	Options Options `json:"options"`
}

func NewRequest(model string, system string, prompt string, temperature float64) (*Request, error) {
	ret := &Request{
		Model:  model,
		System: system,
		Prompt: prompt,
		Options: Options{
			Temperature: temperature,
		},
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *Request) Validate() error {
	if r == nil {
		return &RequestConstructionError{Field: "request", Reason: "request is nil"}
	}
	if strings.TrimSpace(r.Model) == "" {
		return &RequestConstructionError{Field: "model", Reason: "model is required"}
	}
	return nil
}
