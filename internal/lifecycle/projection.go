package lifecycle

import (
	"time"

	"github.com/iliyamo/class-reservation/internal/model"
)

// EffectiveStatus is the status shown to readers.  Once a session has
// started, pending administrative states are moot and read as approved.
// The stored status is never changed by this correction.
func EffectiveStatus(stored model.Status, sessionStart, now time.Time) model.Status {
	if now.Before(sessionStart) {
		return stored
	}
	switch stored {
	case model.StatusApplied, model.StatusCancelRequest:
		return model.StatusApproved
	}
	return stored
}

// Project builds the read view of r against its session start.
func Project(r model.Reservation, title string, sessionStart, now time.Time) model.ReservationView {
	return model.ReservationView{
		Reservation:     r,
		SessionTitle:    title,
		SessionStart:    sessionStart,
		EffectiveStatus: EffectiveStatus(r.Status, sessionStart, now),
	}
}

// Phase derives the display state of a session from its window, its
// capacity and the number of active reservations.
func Phase(s *model.Session, reserved int, now time.Time) model.SessionPhase {
	switch {
	case now.Before(s.StartTime):
		if s.ReservationsClosed || reserved >= s.Capacity {
			return model.PhaseReservedClosed
		}
		return model.PhaseReservedOpen
	case !now.After(s.EndTime):
		return model.PhaseInProgress
	default:
		return model.PhaseCompleted
	}
}

// ActiveStatuses lists the statuses that consume a seat.  countCancelRequest
// controls whether a pending cancellation still holds its seat.
func ActiveStatuses(countCancelRequest bool) []model.Status {
	if countCancelRequest {
		return []model.Status{model.StatusApplied, model.StatusApproved, model.StatusCancelRequest}
	}
	return []model.Status{model.StatusApplied, model.StatusApproved}
}
