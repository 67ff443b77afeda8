package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/queue"
)

// EventPublisher receives reservation events after their transaction has
// committed.  *queue.Publisher implements it.
type EventPublisher interface {
	PublishReservationChanged(ctx context.Context, ev queue.ReservationChangedEvent) error
}

const publishTimeout = 3 * time.Second

func changedEvent(r *model.Reservation, from model.Status, action model.Action, actor model.Actor, reason *string, at time.Time) queue.ReservationChangedEvent {
	ev := queue.ReservationChangedEvent{
		ReservationID: r.ID,
		SessionID:     r.SessionID,
		LearnerID:     r.LearnerID,
		Action:        string(action),
		FromStatus:    string(from),
		ToStatus:      string(r.Status),
		PerformedBy:   actor.ID,
		PerformerRole: string(actor.Role),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
	if reason != nil {
		ev.Reason = *reason
	}
	return ev
}

// publish is best effort: the change is already committed, so a broker
// failure is logged and otherwise ignored.
func (s *ReservationService) publish(ctx context.Context, ev queue.ReservationChangedEvent) {
	if s.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.PublishReservationChanged(pctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Uint64("reservation_id", ev.ReservationID).Msg("reservation event not published")
	}
}
