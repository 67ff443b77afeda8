package model

import "time"

// Session is a single scheduled, capacity-limited class occurrence.  It
// is owned by the session registry; the reservation core reads it but
// never writes it.
//
// Fields:
//
//	ID                 – primary key identifier.
//	OfferingID         – parent course offering learners enroll in.
//	InstructorID       – instructor who owns the parent offering.
//	Title              – display title.
//	StartTime          – when the class begins; reservations freeze here.
//	EndTime            – when the class ends.
//	Capacity           – maximum number of active reservations.
//	ReservationsClosed – manual close flag set by the instructor.
type Session struct {
	ID                 uint64    `json:"id"`                  // class_sessions.id
	OfferingID         uint64    `json:"offering_id"`         // class_sessions.offering_id
	InstructorID       uint64    `json:"instructor_id"`       // offerings.instructor_id
	Title              string    `json:"title"`               // class_sessions.title
	StartTime          time.Time `json:"start_time"`          // class_sessions.start_time
	EndTime            time.Time `json:"end_time"`            // class_sessions.end_time
	Capacity           int       `json:"capacity"`            // class_sessions.capacity
	ReservationsClosed bool      `json:"reservations_closed"` // class_sessions.reservations_closed
}

// SessionPhase is the derived, display-only state of a session.
type SessionPhase string

const (
	PhaseReservedOpen   SessionPhase = "reserved_open"
	PhaseReservedClosed SessionPhase = "reserved_closed"
	PhaseInProgress     SessionPhase = "in_progress"
	PhaseCompleted      SessionPhase = "completed"
)

// SessionSummary is the public read model of a session.
type SessionSummary struct {
	Session
	ReservedCount int          `json:"reserved_count"`
	Phase         SessionPhase `json:"phase"`
}
