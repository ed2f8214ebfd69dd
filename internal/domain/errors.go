package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for remote-call failures. Every failure reaching the
// presentation layer is one of these, so the UI can surface a message
// without inspecting transport details.

// ErrTransport indicates the ledger was unreachable or answered with a
// non-2xx status and no usable body.
type ErrTransport struct {
	Op  string
	Err error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("transport failure [%s]: %v", e.Op, e.Err)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrBadResponse indicates a response body that failed to parse as
// structured data.
type ErrBadResponse struct {
	Op  string
	Err error
}

func (e *ErrBadResponse) Error() string {
	return fmt.Sprintf("bad response [%s]: %v", e.Op, e.Err)
}

func (e *ErrBadResponse) Unwrap() error { return e.Err }

// ErrRemote indicates a well-formed response whose declared outcome is
// failure. Message is taken from the response's message/error field and
// is safe to show to the user as-is.
type ErrRemote struct {
	Op      string
	Message string
}

func (e *ErrRemote) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s failed", e.Op)
}

// ErrTimeout indicates a call exceeded its bounded per-call deadline.
// Treated as a transport failure for retry purposes.
type ErrTimeout struct {
	Op string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Op)
}

// ErrCircuitOpen indicates the circuit breaker rejected the call.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// FailureKind classifies err for metrics and display.
func FailureKind(err error) string {
	var (
		transport *ErrTransport
		badResp   *ErrBadResponse
		remote    *ErrRemote
		timeout   *ErrTimeout
		open      *ErrCircuitOpen
	)
	switch {
	case errors.As(err, &remote):
		return "application"
	case errors.As(err, &badResp):
		return "format"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &open):
		return "circuit_open"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "unknown"
	}
}

// FailureMessage returns the user-facing message for err: the remote's
// declared message when there is one, otherwise the error text.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var remote *ErrRemote
	if errors.As(err, &remote) {
		return remote.Error()
	}
	return err.Error()
}
