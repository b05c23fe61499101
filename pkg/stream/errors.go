package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled ends a stream that was aborted by the caller. It is a clean
	// partial result, not a failure.
	ErrCancelled = errors.New("generation cancelled")

	ErrRequestConstruction = errors.New("invalid generation request")
	ErrTransport           = errors.New("generation transport failed")
	// ErrNoBody is reported when the backend answered without a response
	// body. An empty body is a successful stream with zero chunks.
	ErrNoBody = errors.New("response has no body")
)

// RequestConstructionError reports a request that cannot be sent. It is
// raised before any network activity.
type RequestConstructionError struct {
	Field  string
	Reason string
}

func (e *RequestConstructionError) Error() string {
	if e == nil {
		return ErrRequestConstruction.Error()
	}
	return fmt.Sprintf("%s (%s): %s", ErrRequestConstruction, e.Field, e.Reason)
}

func (e *RequestConstructionError) Is(target error) bool { return target == ErrRequestConstruction }

// TransportError reports a non-success response status or a failure while
// reading the response body.
type TransportError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ErrTransport.Error()
	}
	switch {
	case e.Status != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Status, e.Err)
	case e.Status != "":
		return fmt.Sprintf("%s: %s", ErrTransport, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrTransport, e.Err)
	default:
		return ErrTransport.Error()
	}
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// IsCancelled reports whether err ended a stream because of cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
