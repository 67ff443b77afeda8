// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer for them.
package queue

// ReservationChangedQueue is the durable queue reservation events are
// routed to through the default exchange.
const ReservationChangedQueue = "reservation.changed"

// ReservationChangedEvent is published after a reservation transaction
// commits.  It carries enough for downstream consumers to log or notify
// without querying the primary database.
type ReservationChangedEvent struct {
	ReservationID uint64 `json:"reservation_id"`
	SessionID     uint64 `json:"session_id"`
	LearnerID     uint64 `json:"learner_id"`
	Action        string `json:"action"`
	FromStatus    string `json:"from_status,omitempty"`
	ToStatus      string `json:"to_status"`
	PerformedBy   uint64 `json:"performed_by"`
	PerformerRole string `json:"performer_role"`
	Reason        string `json:"reason,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}
