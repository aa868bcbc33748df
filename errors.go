package satori

import (
	"errors"
	"fmt"
	"net/http"
)

// REST failures by status code. An *ActionFailed unwraps to one of these
// when its status matches.
var (
	ErrBadRequest        = errors.New("satori: bad request")
	ErrUnauthorized      = errors.New("satori: unauthorized")
	ErrForbidden         = errors.New("satori: forbidden")
	ErrNotFound          = errors.New("satori: not found")
	ErrMethodNotAllowed  = errors.New("satori: method not allowed")
	ErrAPINotImplemented = errors.New("satori: api not implemented")
)

var (
	// ErrNetwork wraps transport failures of REST calls.
	ErrNetwork = errors.New("satori: network error")
	// ErrUnexpectedPayload is returned when the handshake gets something
	// other than READY.
	ErrUnexpectedPayload = errors.New("satori: unexpected payload")
	// ErrMalformedEvent is returned when an event lacks a field its type
	// requires.
	ErrMalformedEvent = errors.New("satori: malformed event")
	// ErrShutdownTimeout is returned by Shutdown when tasks outlive the
	// shutdown timeout.
	ErrShutdownTimeout = errors.New("satori: shutdown timed out")
	// ErrAlreadyStarted is returned by Start on a running client.
	ErrAlreadyStarted = errors.New("satori: client already started")
	// ErrNoChannel is returned when replying to an event without a channel.
	ErrNoChannel = errors.New("satori: event has no channel")
)

// ActionFailed is a non-2xx answer from the REST API.
type ActionFailed struct {
	Method     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *ActionFailed) Error() string {
	return fmt.Sprintf("satori: %s returned %d: %s", e.Method, e.StatusCode, string(e.Body))
}

func (e *ActionFailed) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case http.StatusInternalServerError:
		return ErrAPINotImplemented
	}
	return nil
}

// AsActionFailed extracts an *ActionFailed from an error chain.
func AsActionFailed(err error) (*ActionFailed, bool) {
	var af *ActionFailed
	if errors.As(err, &af) {
		return af, true
	}
	return nil, false
}
