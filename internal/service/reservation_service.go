// Package service implements the class reservation operations on top of
// the repository unit of work.  Every mutation runs in one transaction
// that first locks the session row, so admission and status changes on
// the same session are serialized by the database.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/class-reservation/internal/config"
	"github.com/iliyamo/class-reservation/internal/lifecycle"
	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/repository"
)

// ReservationService is the reservation core.
type ReservationService struct {
	store     repository.Store
	chat      ChatSync
	events    EventPublisher
	summaries SummaryInvalidator
	cfg       config.ReservationConfig
	now       func() time.Time
}

// NewReservationService builds the service.  events may be nil when
// publishing is disabled.
func NewReservationService(store repository.Store, events EventPublisher, cfg config.ReservationConfig) *ReservationService {
	if cfg.TxRetryAttempts < 1 {
		cfg.TxRetryAttempts = 1
	}
	return &ReservationService{store: store, events: events, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source.
func (s *ReservationService) WithClock(now func() time.Time) *ReservationService {
	s.now = now
	return s
}

// runTx runs fn in a store transaction, retrying deadlocks and lock wait
// timeouts.  fn must assign its results afresh on every attempt.
func (s *ReservationService) runTx(ctx context.Context, fn func(repository.UnitOfWork) error) error {
	err := retry.Do(
		func() error { return s.store.InTx(ctx, fn) },
		retry.Context(ctx),
		retry.Attempts(s.cfg.TxRetryAttempts),
		retry.Delay(s.cfg.TxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(repository.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zerolog.Ctx(ctx).Debug().Err(err).Uint("attempt", n+1).Msg("retrying reservation transaction")
		}),
	)
	return translate(err)
}

// CreateReservation admits learnerID into sessionID.  A learner whose
// previous reservation was rejected or cancelled re-enters on the same
// row.  Checks run in a fixed order: session exists, window open,
// enrollment, capacity, existing reservation.
func (s *ReservationService) CreateReservation(ctx context.Context, sessionID, learnerID uint64) (*model.Reservation, error) {
	var (
		res  *model.Reservation
		from model.Status
	)
	now := s.now()
	err := s.runTx(ctx, func(uow repository.UnitOfWork) error {
		res, from = nil, ""
		sess, err := uow.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckWindow(sess, now); err != nil {
			return err
		}
		ok, err := uow.IsEnrolled(ctx, learnerID, sess.OfferingID)
		if err != nil {
			return err
		}
		if !ok {
			return lifecycle.ErrNotEligible
		}
		active, err := uow.CountReservations(ctx, sessionID, lifecycle.ActiveStatuses(s.cfg.CountCancelRequest))
		if err != nil {
			return err
		}
		if active >= sess.Capacity {
			return lifecycle.ErrCapacityFull
		}

		existing, err := uow.FindReservation(ctx, sessionID, learnerID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			res = &model.Reservation{SessionID: sessionID, LearnerID: learnerID, Status: model.StatusApplied}
			if err := uow.InsertReservation(ctx, res); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return lifecycle.ErrAlreadyReserved
				}
				return err
			}
		case err != nil:
			return err
		case existing.Status == model.StatusRejected || existing.Status == model.StatusCancelled:
			from = existing.Status
			if err := uow.UpdateReservationStatus(ctx, existing, model.StatusApplied); err != nil {
				return err
			}
			res = existing
		default:
			return lifecycle.ErrAlreadyReserved
		}

		if err := uow.AppendAudit(ctx, &model.AuditEntry{
			ReservationID: res.ID,
			Action:        model.ActionApply,
			PerformedBy:   learnerID,
			PerformerRole: model.RoleLearner,
		}); err != nil {
			return err
		}
		return s.chat.Join(ctx, uow, sessionID, learnerID)
	})
	if err != nil {
		return nil, err
	}

	actor := model.Actor{ID: learnerID, Role: model.RoleLearner}
	zerolog.Ctx(ctx).Info().
		Uint64("reservation_id", res.ID).
		Uint64("session_id", sessionID).
		Uint64("learner_id", learnerID).
		Bool("reentry", from != "").
		Msg("reservation applied")
	s.invalidateSummary(ctx, sessionID)
	s.publish(ctx, changedEvent(res, from, model.ActionApply, actor, nil, now))
	return res, nil
}

// ChangeReservationStatus applies action to a reservation on behalf of
// actor.  Checks run in a fixed order: reservation exists, window open,
// ownership, transition legality.  reason is recorded on the audit entry.
func (s *ReservationService) ChangeReservationStatus(ctx context.Context, reservationID uint64, action model.Action, actor model.Actor, reason *string) (*model.Reservation, error) {
	var (
		res  *model.Reservation
		from model.Status
	)
	now := s.now()
	err := s.runTx(ctx, func(uow repository.UnitOfWork) error {
		res, from = nil, ""
		// Session first, then reservation: the lock order every mutation uses.
		peek, err := uow.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		sess, err := uow.LockSession(ctx, peek.SessionID)
		if err != nil {
			return err
		}
		r, err := uow.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckWindow(sess, now); err != nil {
			return err
		}
		if err := lifecycle.CheckOwnership(actor, r, sess); err != nil {
			return err
		}
		to, err := lifecycle.Next(actor.Role, r.Status, action)
		if err != nil {
			return err
		}

		from = r.Status
		if err := uow.UpdateReservationStatus(ctx, r, to); err != nil {
			return err
		}
		if err := uow.AppendAudit(ctx, &model.AuditEntry{
			ReservationID: r.ID,
			Action:        action,
			PerformedBy:   actor.ID,
			PerformerRole: actor.Role,
			Reason:        reason,
		}); err != nil {
			return err
		}
		res = r
		if to.Active() {
			return s.chat.Join(ctx, uow, sess.ID, r.LearnerID)
		}
		return s.chat.Leave(ctx, uow, sess.ID, r.LearnerID)
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Uint64("reservation_id", res.ID).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(res.Status)).
		Uint64("actor_id", actor.ID).
		Str("actor_role", string(actor.Role)).
		Msg("reservation status changed")
	s.invalidateSummary(ctx, res.SessionID)
	s.publish(ctx, changedEvent(res, from, action, actor, reason, now))
	return res, nil
}

// GetReservation returns one reservation with its effective status.  Only
// its learner and the instructor owning the session may read it.
func (s *ReservationService) GetReservation(ctx context.Context, actor model.Actor, reservationID uint64) (*model.ReservationView, error) {
	r, sess, err := s.visible(ctx, actor, reservationID)
	if err != nil {
		return nil, err
	}
	v := lifecycle.Project(*r, sess.Title, sess.StartTime, s.now())
	return &v, nil
}

// ListAuditTrail returns the audit entries of a reservation, newest first.
func (s *ReservationService) ListAuditTrail(ctx context.Context, actor model.Actor, reservationID uint64) ([]model.AuditEntry, error) {
	if _, _, err := s.visible(ctx, actor, reservationID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, reservationID)
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

// ListSessionReservations lists every reservation of a session for the
// instructor who owns it.
func (s *ReservationService) ListSessionReservations(ctx context.Context, actor model.Actor, sessionID uint64) ([]model.ReservationView, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	if actor.Role != model.RoleInstructor || sess.InstructorID != actor.ID {
		return nil, lifecycle.ErrForbidden
	}
	views, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	return s.project(views), nil
}

// ListLearnerReservations lists the learner's reservations across sessions.
func (s *ReservationService) ListLearnerReservations(ctx context.Context, learnerID uint64) ([]model.ReservationView, error) {
	views, err := s.store.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, translate(err)
	}
	return s.project(views), nil
}

// GetSessionSummary reports a session with its reserved seat count and
// derived phase.
func (s *ReservationService) GetSessionSummary(ctx context.Context, sessionID uint64) (*model.SessionSummary, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	n, err := s.store.CountReservations(ctx, sessionID, lifecycle.ActiveStatuses(s.cfg.CountCancelRequest))
	if err != nil {
		return nil, translate(err)
	}
	return &model.SessionSummary{
		Session:       *sess,
		ReservedCount: n,
		Phase:         lifecycle.Phase(sess, n, s.now()),
	}, nil
}

// OpenChatRoom returns the session's chat room, creating and seeding it on
// first use.  The caller must be a participant of the room.
func (s *ReservationService) OpenChatRoom(ctx context.Context, actor model.Actor, sessionID uint64) (*model.ChatRoom, error) {
	var (
		room    *model.ChatRoom
		created bool
	)
	err := s.runTx(ctx, func(uow repository.UnitOfWork) error {
		room, created = nil, false
		sess, err := uow.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		room, err = uow.ChatRoomForSession(ctx, sessionID)
		if errors.Is(err, repository.ErrNotFound) {
			room = &model.ChatRoom{SessionID: sessionID, Title: sess.Title}
			if err := uow.CreateChatRoom(ctx, room); err != nil {
				return err
			}
			if err := s.chat.Seed(ctx, uow, room, sess.InstructorID); err != nil {
				return err
			}
			created = true
		} else if err != nil {
			return err
		}
		ok, err := uow.IsParticipant(ctx, room.ID, actor.Role, actor.ID)
		if err != nil {
			return err
		}
		if !ok {
			return lifecycle.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		zerolog.Ctx(ctx).Info().Uint64("session_id", sessionID).Uint64("room_id", room.ID).Msg("chat room created")
	}
	return room, nil
}

func (s *ReservationService) visible(ctx context.Context, actor model.Actor, reservationID uint64) (*model.Reservation, *model.Session, error) {
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, nil, translate(err)
	}
	sess, err := s.store.GetSession(ctx, r.SessionID)
	if err != nil {
		return nil, nil, translate(err)
	}
	if !lifecycle.CanView(actor, r, sess) {
		return nil, nil, lifecycle.ErrForbidden
	}
	return r, sess, nil
}

func (s *ReservationService) project(views []model.ReservationView) []model.ReservationView {
	now := s.now()
	for i := range views {
		views[i].EffectiveStatus = lifecycle.EffectiveStatus(views[i].Status, views[i].SessionStart, now)
	}
	return views
}
