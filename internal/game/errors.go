// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// RejectError reports an action that does not apply in the current
// state: wrong player state, unknown move, game already started or
// finished. It is an expected outcome of remote input, not a failure;
// nothing is mutated and nothing is logged.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return e.Reason }

func reject(format string, args ...interface{}) error {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// InvariantError reports a bug in the transition logic or deck
// bookkeeping, such as drawing from a structurally non-empty deck that
// turned out empty. It aborts the request and must never be swallowed.
type InvariantError struct {
	Err error
}

func (e *InvariantError) Error() string { return fmt.Sprintf("invariant violation: %v", e.Err) }
func (e *InvariantError) Unwrap() error { return e.Err }

// Rejection extracts the user-facing reason when err is a rejection.
func Rejection(err error) (string, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
