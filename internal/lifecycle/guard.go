package lifecycle

import (
	"time"

	"github.com/iliyamo/class-reservation/internal/model"
)

// CheckWindow fails with ErrWindowClosed once the session has started or
// the instructor has closed reservations.
func CheckWindow(s *model.Session, now time.Time) error {
	if !now.Before(s.StartTime) || s.ReservationsClosed {
		return ErrWindowClosed
	}
	return nil
}

// CheckOwnership verifies that actor may act on r.  Learners must own
// the reservation; instructors must own the session's offering.  Other
// roles are refused.
func CheckOwnership(actor model.Actor, r *model.Reservation, s *model.Session) error {
	switch actor.Role {
	case model.RoleLearner:
		if r.LearnerID == actor.ID {
			return nil
		}
	case model.RoleInstructor:
		if s.InstructorID == actor.ID {
			return nil
		}
	}
	return ErrForbidden
}

// CanView reports whether actor may read r and its audit trail.  It is
// the ownership rule of CheckOwnership without the error.
func CanView(actor model.Actor, r *model.Reservation, s *model.Session) bool {
	return CheckOwnership(actor, r, s) == nil
}
