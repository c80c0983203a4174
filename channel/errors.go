package channel

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/canvas/mutlog"
)

// ErrSessionNotFound is returned by Publish when the session no longer
// exists (never created, or terminated).
var ErrSessionNotFound = mutlog.ErrNoSession

// ErrRateLimited is returned when an actor publishes faster than allowed.
var ErrRateLimited = errors.New("channel: publish rate exceeded")

// ErrOwnerAction is the cause of the validation error Publish returns for
// RESET_LAYOUT and TERMINATE_SESSION. Those go through PublishControl.
var ErrOwnerAction = errors.New("channel: reset and terminate are owner actions")

// ErrActorInUse is returned by Subscribe when the actor id already has a
// subscription on the session.
var ErrActorInUse = errors.New("channel: actor already subscribed")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("channel: hub closed")

// TransportError reports a publish or delivery that kept failing after
// the bounded retry. Callers surface it as a transient failure notice.
type TransportError struct {
	Op        string
	SessionID string
	Attempts  int
	Cause     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel: %s on session %s failed after %d attempts: %v", e.Op, e.SessionID, e.Attempts, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
