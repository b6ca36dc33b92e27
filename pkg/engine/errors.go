package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrMalformedResponse is returned (wrapped in a TransportError) when a response
// cannot be decoded or lacks expected fields
var ErrMalformedResponse = errors.New("malformed response")

// TransportError reports a failure exchanging a request with the engine:
// connection errors, timeouts and undecodable responses. The outcome of the
// operation is unknown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout returns true if the request did not complete in time
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ProtocolError reports a response from the engine that does not confirm the
// requested operation
type ProtocolError struct {
	Op string
	// StatusCode is the HTTP status code of the response
	StatusCode int
	// Status is the value of the status field in the response, if any
	Status string
	// Message is the error reported by the engine, if any
	Message string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: engine rejected request (http %d", e.Op, e.StatusCode)
	if e.Status != "" {
		msg += fmt.Sprintf(", status %q", e.Status)
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// IsTransportError returns true if err is or wraps a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError returns true if err is or wraps a *ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
