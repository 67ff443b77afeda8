package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/repository"
)

// chatStatuses are the reservation statuses that keep a learner in the
// session's chat room.  Independent of the capacity counting policy.
var chatStatuses = []model.Status{model.StatusApplied, model.StatusApproved, model.StatusCancelRequest}

// ChatSync keeps chat room membership in step with reservations.  It
// always runs inside the caller's transaction so a chat failure rolls
// the reservation change back with it.
type ChatSync struct{}

// Join adds the learner to the session's room.  A session without a room
// is skipped with a warning.
func (ChatSync) Join(ctx context.Context, uow repository.UnitOfWork, sessionID, learnerID uint64) error {
	room, err := roomFor(ctx, uow, sessionID)
	if room == nil || err != nil {
		return err
	}
	return uow.EnsureParticipant(ctx, room.ID, model.RoleLearner, learnerID)
}

// Leave removes the learner from the session's room.  Removing a member
// that is not present is not an error.
func (ChatSync) Leave(ctx context.Context, uow repository.UnitOfWork, sessionID, learnerID uint64) error {
	room, err := roomFor(ctx, uow, sessionID)
	if room == nil || err != nil {
		return err
	}
	return uow.RemoveParticipant(ctx, room.ID, model.RoleLearner, learnerID)
}

// Seed fills a newly created room with the instructor and every learner
// holding an active reservation.
func (ChatSync) Seed(ctx context.Context, uow repository.UnitOfWork, room *model.ChatRoom, instructorID uint64) error {
	if err := uow.EnsureParticipant(ctx, room.ID, model.RoleInstructor, instructorID); err != nil {
		return err
	}
	learners, err := uow.LearnersWithStatus(ctx, room.SessionID, chatStatuses)
	if err != nil {
		return err
	}
	for _, id := range learners {
		if err := uow.EnsureParticipant(ctx, room.ID, model.RoleLearner, id); err != nil {
			return err
		}
	}
	return nil
}

func roomFor(ctx context.Context, uow repository.UnitOfWork, sessionID uint64) (*model.ChatRoom, error) {
	room, err := uow.ChatRoomForSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		zerolog.Ctx(ctx).Warn().Uint64("session_id", sessionID).Msg("chat room missing; membership not synced")
		return nil, nil
	}
	return room, err
}
