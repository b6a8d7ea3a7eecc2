package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a service has no entry in the connection table.
	ErrNotConnected = errors.New("service not connected")
	// ErrNotConfigured is returned when a service has no spawn or dial configuration.
	ErrNotConfigured = errors.New("service not configured")
	// ErrTimeout is returned when a call exceeds its deadline. The transport stays usable.
	ErrTimeout = errors.New("backend call timed out")
	// ErrTransportClosed is returned for calls on, or pending when, a transport shuts down.
	ErrTransportClosed = errors.New("transport closed")
)

// ConnectionError reports a failed spawn, dial or handshake.
type ConnectionError struct {
	Service string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Service, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or mismatched JSON-RPC message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// RemoteError is a JSON-RPC error object returned by a backend. Message is
// passed to callers verbatim.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
