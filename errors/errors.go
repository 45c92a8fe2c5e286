package errors

import (
	"fmt"
	"time"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrTransport        = fmt.Errorf("transport failure")
	ErrTransportTimeout = fmt.Errorf("transport timeout")
	ErrInvalidAction    = fmt.Errorf("invalid negotiation action")
	ErrActionInProgress = fmt.Errorf("another action is already in flight")
	ErrStaleState       = fmt.Errorf("local state superseded by server resolution")
	ErrSessionClosed    = fmt.Errorf("conversation session is closed")
	ErrTokenExpired     = fmt.Errorf("session token expired")
	ErrEmptyBody        = fmt.Errorf("message body is empty")
)

// TransportError reports a failed or timed-out exchange with the server.
// It is recoverable: the same command may be retried as-is.
type TransportError struct {
	Op           string // "send", "poll", "connect"
	Conversation string
	Timeout      bool
	Err          error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport %s timed out (conversation %s)", e.Op, e.Conversation)
	}
	return fmt.Sprintf("transport %s failed (conversation %s): %v", e.Op, e.Conversation, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e.Timeout {
		return ErrTransportTimeout
	}
	return ErrTransport
}

func NewTimeoutError(op, conversation string, elapsed time.Duration) *TransportError {
	return &TransportError{
		Op:           op,
		Conversation: conversation,
		Timeout:      true,
		Err:          fmt.Errorf("no outcome after %s", elapsed),
	}
}

// InvalidActionError reports a local precondition violation.
// The action never reached the transport and must be changed before retrying.
type InvalidActionError struct {
	Action  string
	OfferID string
	Reason  string
}

func (e *InvalidActionError) Error() string {
	if e.OfferID == "" {
		return fmt.Sprintf("invalid action %q: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("invalid action %q on offer %s: %s", e.Action, e.OfferID, e.Reason)
}

func (e *InvalidActionError) Unwrap() error { return ErrInvalidAction }

// ActionInProgressError reports that a prior local action on the same
// conversation has not settled yet. Retryable once it does.
type ActionInProgressError struct {
	Conversation string
	Pending      string
}

func (e *ActionInProgressError) Error() string {
	return fmt.Sprintf("action %q still in flight for conversation %s", e.Pending, e.Conversation)
}

func (e *ActionInProgressError) Unwrap() error { return ErrActionInProgress }

// StaleStateError records that an authoritative server resolution overwrote
// an optimistic local guess. Reconciliation detail for logs, never a user error.
type StaleStateError struct {
	OfferID string
	Local   string
	Server  string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("offer %s: local resolution %q overwritten by server %q", e.OfferID, e.Local, e.Server)
}

func (e *StaleStateError) Unwrap() error { return ErrStaleState }
