package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/class-reservation/internal/model"
)

// ReservationRepo provides persistence for class reservations.  A
// reservation row is never deleted; cancellations and rejections are
// status changes.  All timestamp fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationCols = `id, session_id, learner_id, status, created_at, updated_at`

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID and timestamps on res.  A
// second row for the same (session, learner) yields ErrConflict.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO class_reservations (session_id, learner_id, status) VALUES (?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.SessionID, res.LearnerID, res.Status)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return pkgerrors.Wrap(err, "insert reservation")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return pkgerrors.Wrap(err, "reservation id")
	}
	// Query back the full row to populate timestamps and defaults
	row := tx.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM class_reservations WHERE id = ?`, id)
	got, err := scanReservation(row)
	if err != nil {
		return err
	}
	*res = *got
	return nil
}

// GetByID returns a reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM class_reservations WHERE id = ?`, id)
	return scanReservation(row)
}

// GetTx returns a reservation inside tx without locking it.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM class_reservations WHERE id = ?`, id)
	return scanReservation(row)
}

// GetForUpdateTx returns a reservation and locks its row until tx ends.
// Callers must already hold the lock on the reservation's session.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM class_reservations WHERE id = ? FOR UPDATE`, id)
	return scanReservation(row)
}

// FindBySessionAndLearnerTx returns the learner's reservation row for the
// session, locked, or ErrNotFound.
func (r *ReservationRepo) FindBySessionAndLearnerTx(ctx context.Context, tx *sql.Tx, sessionID, learnerID uint64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM class_reservations
	           WHERE session_id = ? AND learner_id = ? FOR UPDATE`
	return scanReservation(tx.QueryRowContext(ctx, q, sessionID, learnerID))
}

// UpdateStatusTx writes a new status and refreshes res from the row.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, res *model.Reservation, status model.Status) error {
	const q = `UPDATE class_reservations SET status = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, q, status, res.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "update reservation status")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	got, err := r.GetTx(ctx, tx, res.ID)
	if err != nil {
		return err
	}
	*res = *got
	return nil
}

// CountByStatusTx counts the session's reservations whose status is in
// statuses.
func (r *ReservationRepo) CountByStatusTx(ctx context.Context, tx *sql.Tx, sessionID uint64, statuses []model.Status) (int, error) {
	return countByStatus(ctx, tx, sessionID, statuses)
}

// CountByStatus is CountByStatusTx outside a transaction, for read models.
func (r *ReservationRepo) CountByStatus(ctx context.Context, sessionID uint64, statuses []model.Status) (int, error) {
	return countByStatus(ctx, r.db, sessionID, statuses)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func countByStatus(ctx context.Context, q queryer, sessionID uint64, statuses []model.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	ph, args := statusArgs(statuses)
	query := `SELECT COUNT(*) FROM class_reservations WHERE session_id = ? AND status IN (` + ph + `)`
	var n int
	if err := q.QueryRowContext(ctx, query, append([]any{sessionID}, args...)...).Scan(&n); err != nil {
		return 0, pkgerrors.Wrap(err, "count reservations")
	}
	return n, nil
}

// LearnersByStatusTx returns the learner IDs of the session's reservations
// whose status is in statuses, ordered by learner ID.
func (r *ReservationRepo) LearnersByStatusTx(ctx context.Context, tx *sql.Tx, sessionID uint64, statuses []model.Status) ([]uint64, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	ph, args := statusArgs(statuses)
	query := `SELECT learner_id FROM class_reservations
	          WHERE session_id = ? AND status IN (` + ph + `) ORDER BY learner_id`
	rows, err := tx.QueryContext(ctx, query, append([]any{sessionID}, args...)...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list learners")
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, pkgerrors.Wrap(err, "scan learner")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBySession returns every reservation of a session with the session
// title and start time, newest first.  EffectiveStatus is left for the
// caller to project.
func (r *ReservationRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.ReservationView, error) {
	return r.listViews(ctx, `r.session_id = ?`, sessionID)
}

// ListByLearner returns every reservation a learner holds, newest first.
func (r *ReservationRepo) ListByLearner(ctx context.Context, learnerID uint64) ([]model.ReservationView, error) {
	return r.listViews(ctx, `r.learner_id = ?`, learnerID)
}

func (r *ReservationRepo) listViews(ctx context.Context, where string, arg uint64) ([]model.ReservationView, error) {
	q := `SELECT r.id, r.session_id, r.learner_id, r.status, r.created_at, r.updated_at,
	             s.title, s.start_time
	      FROM class_reservations r
	      JOIN class_sessions s ON s.id = r.session_id
	      WHERE ` + where + `
	      ORDER BY r.created_at DESC, r.id DESC`
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list reservations")
	}
	defer rows.Close()
	views := make([]model.ReservationView, 0)
	for rows.Next() {
		var v model.ReservationView
		if err := rows.Scan(&v.ID, &v.SessionID, &v.LearnerID, &v.Status, &v.CreatedAt, &v.UpdatedAt,
			&v.SessionTitle, &v.SessionStart); err != nil {
			return nil, pkgerrors.Wrap(err, "scan reservation")
		}
		v.CreatedAt = v.CreatedAt.UTC()
		v.UpdatedAt = v.UpdatedAt.UTC()
		v.SessionStart = v.SessionStart.UTC()
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "iterate reservations")
	}
	return views, nil
}

func scanReservation(row *sql.Row) (*model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(&res.ID, &res.SessionID, &res.LearnerID, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan reservation")
	}
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return &res, nil
}

func statusArgs(statuses []model.Status) (string, []any) {
	placeholders := make([]string, 0, len(statuses))
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		placeholders = append(placeholders, "?")
		args = append(args, string(s))
	}
	return strings.Join(placeholders, ","), args
}
