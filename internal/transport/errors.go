package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("channel not connected")
	ErrAckTimeout   = errors.New("timed out waiting for send ack")
	ErrClosed       = errors.New("transport closed")
)

// APIError is a non-2xx response from the REST backend.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// AckError is an error reported by the server in reply to a channel send.
type AckError struct {
	Reason string
}

func (e *AckError) Error() string {
	return "send rejected: " + e.Reason
}
