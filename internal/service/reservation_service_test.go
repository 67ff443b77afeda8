package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/class-reservation/internal/config"
	"github.com/iliyamo/class-reservation/internal/lifecycle"
	"github.com/iliyamo/class-reservation/internal/model"
)

const (
	testSession    = uint64(1)
	testOffering   = uint64(10)
	testInstructor = uint64(50)
)

var (
	sessionStart = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	beforeStart  = sessionStart.Add(-24 * time.Hour)

	instructor = model.Actor{ID: testInstructor, Role: model.RoleInstructor}
)

func learner(id uint64) model.Actor { return model.Actor{ID: id, Role: model.RoleLearner} }

type fixture struct {
	store     *mockStore
	pub       *mockPublisher
	summaries *mockSummaries
	svc       *ReservationService
	now       time.Time
}

func (f *fixture) setNow(t time.Time) { f.now = t }

// newFixture builds a service over a session with the given capacity whose
// learners 1..20 are all enrolled.  The session has a chat room.
func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	st := newMockStore()
	st.addSession(model.Session{
		ID: testSession, OfferingID: testOffering, InstructorID: testInstructor,
		Title: "Knots 101", StartTime: sessionStart, EndTime: sessionStart.Add(2 * time.Hour),
		Capacity: capacity,
	})
	for id := uint64(1); id <= 20; id++ {
		st.enroll(id, testOffering)
	}
	st.addRoom(testSession)

	f := &fixture{store: st, pub: &mockPublisher{}, summaries: &mockSummaries{}, now: beforeStart}
	f.svc = NewReservationService(st, f.pub, config.ReservationConfig{
		CountCancelRequest: true,
		TxRetryAttempts:    3,
		TxRetryDelay:       time.Millisecond,
	}).WithClock(func() time.Time { return f.now }).WithSummaryCache(f.summaries)
	return f
}

func TestCreateReservation_CapacityScenario(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	const a, b, c = 1, 2, 3

	ra, err := f.svc.CreateReservation(ctx, testSession, a)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, ra.Status)
	_, err = f.svc.CreateReservation(ctx, testSession, b)
	require.NoError(t, err)

	_, err = f.svc.CreateReservation(ctx, testSession, c)
	assert.ErrorIs(t, err, lifecycle.ErrCapacityFull)

	_, err = f.svc.ChangeReservationStatus(ctx, ra.ID, model.ActionCancel, learner(a), nil)
	require.NoError(t, err)

	rc, err := f.svc.CreateReservation(ctx, testSession, c)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, rc.Status)
}

func TestCreateReservation_ConcurrentAppliesRespectCapacity(t *testing.T) {
	const capacity, applicants = 3, 12
	f := newFixture(t, capacity)

	var (
		wg                sync.WaitGroup
		mu                sync.Mutex
		admitted, refused int
	)
	for id := uint64(1); id <= applicants; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := f.svc.CreateReservation(context.Background(), testSession, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, lifecycle.ErrCapacityFull):
				refused++
			default:
				t.Errorf("learner %d: unexpected error %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, applicants-capacity, refused)
	sum, err := f.svc.GetSessionSummary(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, capacity, sum.ReservedCount)
	assert.Equal(t, model.PhaseReservedClosed, sum.Phase)
}

func TestCreateReservation_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, 5)
		_, err := f.svc.CreateReservation(ctx, 999, 1)
		assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	})

	t.Run("session started", func(t *testing.T) {
		f := newFixture(t, 5)
		f.setNow(sessionStart)
		_, err := f.svc.CreateReservation(ctx, testSession, 1)
		assert.ErrorIs(t, err, lifecycle.ErrWindowClosed)
	})

	t.Run("reservations closed", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.store.state.sessions[testSession]
		s.ReservationsClosed = true
		f.store.addSession(s)
		_, err := f.svc.CreateReservation(ctx, testSession, 1)
		assert.ErrorIs(t, err, lifecycle.ErrWindowClosed)
	})

	t.Run("not enrolled", func(t *testing.T) {
		f := newFixture(t, 5)
		_, err := f.svc.CreateReservation(ctx, testSession, 77)
		assert.ErrorIs(t, err, lifecycle.ErrNotEligible)
	})

	t.Run("already reserved", func(t *testing.T) {
		f := newFixture(t, 5)
		_, err := f.svc.CreateReservation(ctx, testSession, 1)
		require.NoError(t, err)
		_, err = f.svc.CreateReservation(ctx, testSession, 1)
		assert.ErrorIs(t, err, lifecycle.ErrAlreadyReserved)
		assert.Equal(t, 1, f.store.reservationCount())
		assert.Equal(t, 1, f.store.auditCount())
	})
}

func TestCreateReservation_ReentryReusesRow(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	first, err := f.svc.CreateReservation(ctx, testSession, 4)
	require.NoError(t, err)
	_, err = f.svc.ChangeReservationStatus(ctx, first.ID, model.ActionReject, instructor, nil)
	require.NoError(t, err)

	again, err := f.svc.CreateReservation(ctx, testSession, 4)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, model.StatusApplied, again.Status)
	assert.Equal(t, 1, f.store.reservationCount())

	trail, err := f.svc.ListAuditTrail(ctx, learner(4), first.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, model.ActionApply, trail[0].Action)
	assert.Equal(t, model.ActionReject, trail[1].Action)
	assert.Equal(t, model.ActionApply, trail[2].Action)
	assert.True(t, f.store.isMember(testSession, 4))

	evs := f.pub.all()
	require.Len(t, evs, 3)
	assert.Equal(t, "rejected", evs[2].FromStatus)
	assert.Equal(t, "applied", evs[2].ToStatus)
}

func TestChangeReservationStatus_RejectWithReason(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, testSession, 3)
	require.NoError(t, err)
	require.True(t, f.store.isMember(testSession, 3))

	reason := "no-show history"
	got, err := f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionReject, instructor, &reason)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)

	trail, err := f.svc.ListAuditTrail(ctx, instructor, r.ID)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, model.ActionReject, trail[0].Action)
	assert.Equal(t, testInstructor, trail[0].PerformedBy)
	assert.Equal(t, model.RoleInstructor, trail[0].PerformerRole)
	require.NotNil(t, trail[0].Reason)
	assert.Equal(t, reason, *trail[0].Reason)

	assert.False(t, f.store.isMember(testSession, 3))
}

func TestChangeReservationStatus_CancelRequestAfterStart(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, testSession, 5)
	require.NoError(t, err)
	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionApprove, instructor, nil)
	require.NoError(t, err)
	audits := f.store.auditCount()

	f.setNow(sessionStart.Add(time.Minute))
	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelRequest, learner(5), nil)
	assert.ErrorIs(t, err, lifecycle.ErrWindowClosed)

	view, err := f.svc.GetReservation(ctx, learner(5), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, view.Status)
	assert.Equal(t, audits, f.store.auditCount())
}

func TestChangeReservationStatus_Guards(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	r, err := f.svc.CreateReservation(ctx, testSession, 6)
	require.NoError(t, err)

	_, err = f.svc.ChangeReservationStatus(ctx, 999, model.ActionCancel, learner(6), nil)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancel, learner(7), nil)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionApprove, model.Actor{ID: 51, Role: model.RoleInstructor}, nil)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionApprove, learner(6), nil)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	var te *lifecycle.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.StatusApplied, te.From)
	assert.Equal(t, model.ActionApprove, te.Action)

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelDeny, instructor, nil)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	// one apply entry, nothing from the refused attempts
	assert.Equal(t, 1, f.store.auditCount())
	assert.Len(t, f.pub.all(), 1)
}

func TestChangeReservationStatus_CancelRequestFlow(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	r, err := f.svc.CreateReservation(ctx, testSession, 8)
	require.NoError(t, err)

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionApprove, instructor, nil)
	require.NoError(t, err)
	members := f.store.memberCount(testSession)

	got, err := f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelRequest, learner(8), nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelRequest, got.Status)
	assert.True(t, f.store.isMember(testSession, 8))

	got, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelDeny, instructor, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, members, f.store.memberCount(testSession), "approve never duplicates membership")

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelRequest, learner(8), nil)
	require.NoError(t, err)
	got, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelApprove, instructor, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.False(t, f.store.isMember(testSession, 8))
}

func TestChatCoupling_RemovesOnlyThatLearner(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	r1, err := f.svc.CreateReservation(ctx, testSession, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateReservation(ctx, testSession, 2)
	require.NoError(t, err)

	_, err = f.svc.ChangeReservationStatus(ctx, r1.ID, model.ActionCancel, learner(1), nil)
	require.NoError(t, err)
	assert.False(t, f.store.isMember(testSession, 1))
	assert.True(t, f.store.isMember(testSession, 2))
}

func TestChatCoupling_MissingRoomIsSkipped(t *testing.T) {
	f := newFixture(t, 5)
	delete(f.store.state.rooms, testSession)

	r, err := f.svc.CreateReservation(context.Background(), testSession, 1)
	require.NoError(t, err)
	_, err = f.svc.ChangeReservationStatus(context.Background(), r.ID, model.ActionReject, instructor, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.memberCount(testSession))
}

func TestChatFailureRollsBack(t *testing.T) {
	f := newFixture(t, 5)
	f.store.participantErr = errChatDown

	_, err := f.svc.CreateReservation(context.Background(), testSession, 1)
	assert.ErrorIs(t, err, lifecycle.ErrInternal)
	assert.ErrorIs(t, err, errChatDown)
	assert.Equal(t, 0, f.store.reservationCount())
	assert.Equal(t, 0, f.store.auditCount())
	assert.Empty(t, f.pub.all())
}

func TestTransientFailuresAreRetried(t *testing.T) {
	f := newFixture(t, 5)
	f.store.transientFailures = 2

	_, err := f.svc.CreateReservation(context.Background(), testSession, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.txCount)
}

func TestTransientFailuresExhausted(t *testing.T) {
	f := newFixture(t, 5)
	f.store.transientFailures = 10

	_, err := f.svc.CreateReservation(context.Background(), testSession, 1)
	assert.ErrorIs(t, err, lifecycle.ErrInternal)
	assert.Equal(t, 3, f.store.txCount)
	assert.Equal(t, 0, f.store.reservationCount())
}

func TestPublishFailureDoesNotFailTheChange(t *testing.T) {
	f := newFixture(t, 5)
	f.pub.err = errors.New("broker down")

	r, err := f.svc.CreateReservation(context.Background(), testSession, 1)
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, 1, f.store.reservationCount())
}

func TestListReservations_ProjectsAfterStart(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	r, err := f.svc.CreateReservation(ctx, testSession, 9)
	require.NoError(t, err)

	views, err := f.svc.ListLearnerReservations(ctx, 9)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.StatusApplied, views[0].EffectiveStatus)

	f.setNow(sessionStart.Add(time.Minute))
	views, err = f.svc.ListSessionReservations(ctx, instructor, testSession)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, r.ID, views[0].ID)
	assert.Equal(t, model.StatusApplied, views[0].Status)
	assert.Equal(t, model.StatusApproved, views[0].EffectiveStatus)

	_, err = f.svc.ListSessionReservations(ctx, model.Actor{ID: 51, Role: model.RoleInstructor}, testSession)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = f.svc.ListSessionReservations(ctx, learner(9), testSession)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = f.svc.ListSessionReservations(ctx, instructor, 999)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestReadAccess(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	r, err := f.svc.CreateReservation(ctx, testSession, 2)
	require.NoError(t, err)

	_, err = f.svc.GetReservation(ctx, learner(2), r.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetReservation(ctx, instructor, r.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetReservation(ctx, learner(3), r.ID)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = f.svc.ListAuditTrail(ctx, learner(3), r.ID)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = f.svc.GetReservation(ctx, learner(2), 999)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestGetSessionSummary_CancelRequestPolicy(t *testing.T) {
	ctx := context.Background()
	for _, count := range []bool{true, false} {
		f := newFixture(t, 5)
		f.svc.cfg.CountCancelRequest = count
		r, err := f.svc.CreateReservation(ctx, testSession, 1)
		require.NoError(t, err)
		_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionApprove, instructor, nil)
		require.NoError(t, err)
		_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancelRequest, learner(1), nil)
		require.NoError(t, err)

		sum, err := f.svc.GetSessionSummary(ctx, testSession)
		require.NoError(t, err)
		want := 0
		if count {
			want = 1
		}
		assert.Equal(t, want, sum.ReservedCount, "count cancel_request=%v", count)
		assert.Equal(t, model.PhaseReservedOpen, sum.Phase)
		// membership does not depend on the counting policy
		assert.True(t, f.store.isMember(testSession, 1))
	}
}

func TestOpenChatRoom(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	delete(f.store.state.rooms, testSession)

	_, err := f.svc.CreateReservation(ctx, testSession, 1)
	require.NoError(t, err)
	r2, err := f.svc.CreateReservation(ctx, testSession, 2)
	require.NoError(t, err)
	_, err = f.svc.ChangeReservationStatus(ctx, r2.ID, model.ActionReject, instructor, nil)
	require.NoError(t, err)

	_, err = f.svc.OpenChatRoom(ctx, learner(2), testSession)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	assert.Equal(t, 0, f.store.memberCount(testSession), "refused open leaves no room behind")

	room, err := f.svc.OpenChatRoom(ctx, learner(1), testSession)
	require.NoError(t, err)
	assert.NotZero(t, room.ID)
	assert.Equal(t, "Knots 101", room.Title)
	assert.True(t, f.store.isMember(testSession, 1))
	assert.False(t, f.store.isMember(testSession, 2))
	assert.Equal(t, 2, f.store.memberCount(testSession))

	again, err := f.svc.OpenChatRoom(ctx, instructor, testSession)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	_, err = f.svc.OpenChatRoom(ctx, instructor, 999)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestMutationsInvalidateSessionSummary(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, testSession, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{testSession}, f.summaries.all())

	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionCancel, learner(1), nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{testSession, testSession}, f.summaries.all())

	// refused mutations leave the cache alone
	_, err = f.svc.CreateReservation(ctx, testSession, 99)
	require.ErrorIs(t, err, lifecycle.ErrNotEligible)
	_, err = f.svc.ChangeReservationStatus(ctx, r.ID, model.ActionApprove, learner(1), nil)
	require.Error(t, err)
	assert.Len(t, f.summaries.all(), 2)
}

func TestSummaryInvalidationFailureKeepsMutation(t *testing.T) {
	f := newFixture(t, 1)
	f.summaries.err = errors.New("redis down")

	r, err := f.svc.CreateReservation(context.Background(), testSession, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, r.Status)
	assert.Len(t, f.pub.all(), 1)
}
