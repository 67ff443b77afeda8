// Package lifecycle holds the pure rules of the class reservation
// lifecycle: the role-scoped transition table, the admission and
// mutation guards and the read-side status projection.  Nothing in this
// package performs I/O.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/iliyamo/class-reservation/internal/model"
)

// Error taxonomy shared by the service and the HTTP adapter.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrWindowClosed      = errors.New("reservation window closed")
	ErrCapacityFull      = errors.New("session capacity full")
	ErrAlreadyReserved   = errors.New("already reserved")
	ErrNotEligible       = errors.New("learner not enrolled in offering")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInternal          = errors.New("internal error")
)

// TransitionError reports a move the transition table does not allow.
type TransitionError struct {
	Role   model.Role
	From   model.Status
	Action model.Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s (role %s)", e.From, e.Action, e.Role)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
