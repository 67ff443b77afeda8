package model

import "time"

// Status is the stored lifecycle state of a class reservation.
type Status string

const (
	StatusApplied       Status = "applied"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCancelRequest Status = "cancel_request"
	StatusCancelled     Status = "cancelled"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusApplied, StatusApproved, StatusRejected, StatusCancelRequest, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether a reservation in this status holds a seat and a
// chat room membership.
func (s Status) Active() bool {
	return s == StatusApplied || s == StatusApproved || s == StatusCancelRequest
}

// Action is a requested lifecycle move. Every successful action produces
// exactly one audit entry.
type Action string

const (
	ActionApply         Action = "apply"
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionCancel        Action = "cancel"
	ActionCancelRequest Action = "cancel_request"
	ActionCancelApprove Action = "cancel_approve"
	ActionCancelDeny    Action = "cancel_deny"
)

// Reservation records a learner's seat claim on a class session.  A
// learner has at most one row per session; re-applying after a
// rejection or cancellation reuses the row.
//
// Fields:
//
//	ID        – primary key identifier.
//	SessionID – session being reserved.
//	LearnerID – learner who holds the reservation.
//	Status    – stored lifecycle status, never corrected by time.
//	CreatedAt – creation timestamp.
//	UpdatedAt – last update timestamp.
type Reservation struct {
	ID        uint64    `json:"id"`         // class_reservations.id
	SessionID uint64    `json:"session_id"` // class_reservations.session_id
	LearnerID uint64    `json:"learner_id"` // class_reservations.learner_id
	Status    Status    `json:"status"`     // class_reservations.status
	CreatedAt time.Time `json:"created_at"` // class_reservations.created_at
	UpdatedAt time.Time `json:"updated_at"` // class_reservations.updated_at
}

// ReservationView is a reservation as presented on the read path: the
// stored row plus the session start it was projected against and the
// display-time effective status.
type ReservationView struct {
	Reservation
	SessionTitle    string    `json:"session_title"`
	SessionStart    time.Time `json:"session_start"`
	EffectiveStatus Status    `json:"effective_status"`
}

// AuditEntry is one immutable row of the reservation audit ledger.
//
// Fields:
//
//	ID            – primary key identifier.
//	ReservationID – reservation the action was applied to.
//	Action        – the action performed.
//	PerformedBy   – user id of the actor.
//	PerformerRole – role the actor acted under.
//	Reason        – optional justification (rejections, cancellations).
//	CreatedAt     – when the action was committed.
type AuditEntry struct {
	ID            uint64    `json:"id"`               // reservation_audit.id
	ReservationID uint64    `json:"reservation_id"`   // reservation_audit.reservation_id
	Action        Action    `json:"action"`           // reservation_audit.action
	PerformedBy   uint64    `json:"performed_by"`     // reservation_audit.performed_by
	PerformerRole Role      `json:"performer_role"`   // reservation_audit.performer_role
	Reason        *string   `json:"reason,omitempty"` // reservation_audit.reason (nullable)
	CreatedAt     time.Time `json:"created_at"`       // reservation_audit.created_at
}
