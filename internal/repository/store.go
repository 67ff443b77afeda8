package repository

import (
	"context"
	"database/sql"

	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/class-reservation/internal/model"
)

// UnitOfWork is the set of reads and writes available inside one
// database transaction.  Everything done through it commits or rolls
// back together.
type UnitOfWork interface {
	LockSession(ctx context.Context, sessionID uint64) (*model.Session, error)
	IsEnrolled(ctx context.Context, learnerID, offeringID uint64) (bool, error)

	CountReservations(ctx context.Context, sessionID uint64, statuses []model.Status) (int, error)
	LearnersWithStatus(ctx context.Context, sessionID uint64, statuses []model.Status) ([]uint64, error)
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	LockReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	FindReservation(ctx context.Context, sessionID, learnerID uint64) (*model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservationStatus(ctx context.Context, r *model.Reservation, status model.Status) error

	AppendAudit(ctx context.Context, e *model.AuditEntry) error

	ChatRoomForSession(ctx context.Context, sessionID uint64) (*model.ChatRoom, error)
	CreateChatRoom(ctx context.Context, room *model.ChatRoom) error
	EnsureParticipant(ctx context.Context, roomID uint64, role model.Role, memberID uint64) error
	RemoveParticipant(ctx context.Context, roomID uint64, role model.Role, memberID uint64) error
	IsParticipant(ctx context.Context, roomID uint64, role model.Role, memberID uint64) (bool, error)
}

// Store is the persistence boundary of the reservation service: one
// transactional entry point plus the read-only queries.
type Store interface {
	InTx(ctx context.Context, fn func(UnitOfWork) error) error

	GetSession(ctx context.Context, id uint64) (*model.Session, error)
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	CountReservations(ctx context.Context, sessionID uint64, statuses []model.Status) (int, error)
	ListBySession(ctx context.Context, sessionID uint64) ([]model.ReservationView, error)
	ListByLearner(ctx context.Context, learnerID uint64) ([]model.ReservationView, error)
	ListAudit(ctx context.Context, reservationID uint64) ([]model.AuditEntry, error)
}

// SQLStore implements Store on MySQL by composing the table repositories.
type SQLStore struct {
	db           *sql.DB
	Sessions     *SessionRepo
	Enrollments  *EnrollmentRepo
	Reservations *ReservationRepo
	Audit        *AuditRepo
	Chat         *ChatRepo
}

// NewSQLStore wires every repository to db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:           db,
		Sessions:     NewSessionRepo(db),
		Enrollments:  NewEnrollmentRepo(db),
		Reservations: NewReservationRepo(db),
		Audit:        NewAuditRepo(db),
		Chat:         NewChatRepo(db),
	}
}

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// InTx runs fn inside a READ COMMITTED transaction.  Admission safety does
// not depend on the isolation level: every mutation first locks the
// session row with SELECT ... FOR UPDATE, which serializes writers per
// session.  The transaction is rolled back unless fn returns nil and the
// commit succeeds.
func (s *SQLStore) InTx(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return pkgerrors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txScope{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "commit transaction")
	}
	committed = true
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, id uint64) (*model.Session, error) {
	return s.Sessions.GetByID(ctx, id)
}

func (s *SQLStore) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.Reservations.GetByID(ctx, id)
}

func (s *SQLStore) CountReservations(ctx context.Context, sessionID uint64, statuses []model.Status) (int, error) {
	return s.Reservations.CountByStatus(ctx, sessionID, statuses)
}

func (s *SQLStore) ListBySession(ctx context.Context, sessionID uint64) ([]model.ReservationView, error) {
	return s.Reservations.ListBySession(ctx, sessionID)
}

func (s *SQLStore) ListByLearner(ctx context.Context, learnerID uint64) ([]model.ReservationView, error) {
	return s.Reservations.ListByLearner(ctx, learnerID)
}

func (s *SQLStore) ListAudit(ctx context.Context, reservationID uint64) ([]model.AuditEntry, error) {
	return s.Audit.ListByReservation(ctx, reservationID)
}

// txScope binds the repositories to a single transaction.
type txScope struct {
	s  *SQLStore
	tx *sql.Tx
}

func (t *txScope) LockSession(ctx context.Context, id uint64) (*model.Session, error) {
	return t.s.Sessions.GetForUpdateTx(ctx, t.tx, id)
}

func (t *txScope) IsEnrolled(ctx context.Context, learnerID, offeringID uint64) (bool, error) {
	return t.s.Enrollments.IsEnrolledTx(ctx, t.tx, learnerID, offeringID)
}

func (t *txScope) CountReservations(ctx context.Context, sessionID uint64, statuses []model.Status) (int, error) {
	return t.s.Reservations.CountByStatusTx(ctx, t.tx, sessionID, statuses)
}

func (t *txScope) LearnersWithStatus(ctx context.Context, sessionID uint64, statuses []model.Status) ([]uint64, error) {
	return t.s.Reservations.LearnersByStatusTx(ctx, t.tx, sessionID, statuses)
}

func (t *txScope) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.s.Reservations.GetTx(ctx, t.tx, id)
}

func (t *txScope) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.s.Reservations.GetForUpdateTx(ctx, t.tx, id)
}

func (t *txScope) FindReservation(ctx context.Context, sessionID, learnerID uint64) (*model.Reservation, error) {
	return t.s.Reservations.FindBySessionAndLearnerTx(ctx, t.tx, sessionID, learnerID)
}

func (t *txScope) InsertReservation(ctx context.Context, r *model.Reservation) error {
	return t.s.Reservations.CreateTx(ctx, t.tx, r)
}

func (t *txScope) UpdateReservationStatus(ctx context.Context, r *model.Reservation, status model.Status) error {
	return t.s.Reservations.UpdateStatusTx(ctx, t.tx, r, status)
}

func (t *txScope) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	return t.s.Audit.AppendTx(ctx, t.tx, e)
}

func (t *txScope) ChatRoomForSession(ctx context.Context, sessionID uint64) (*model.ChatRoom, error) {
	return t.s.Chat.RoomBySessionTx(ctx, t.tx, sessionID)
}

func (t *txScope) CreateChatRoom(ctx context.Context, room *model.ChatRoom) error {
	return t.s.Chat.CreateRoomTx(ctx, t.tx, room)
}

func (t *txScope) EnsureParticipant(ctx context.Context, roomID uint64, role model.Role, memberID uint64) error {
	return t.s.Chat.EnsureParticipantTx(ctx, t.tx, roomID, role, memberID)
}

func (t *txScope) RemoveParticipant(ctx context.Context, roomID uint64, role model.Role, memberID uint64) error {
	return t.s.Chat.RemoveParticipantTx(ctx, t.tx, roomID, role, memberID)
}

func (t *txScope) IsParticipant(ctx context.Context, roomID uint64, role model.Role, memberID uint64) (bool, error) {
	return t.s.Chat.IsParticipantTx(ctx, t.tx, roomID, role, memberID)
}
