package repository

import (
	"context"
	"database/sql"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/class-reservation/internal/model"
)

// SessionRepo reads the session registry.  Sessions are owned by the
// catalog service; this repository never writes them.  The join through
// offerings resolves the instructor that owns each session.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo constructs a SessionRepo with the given DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionCols = `s.id, s.offering_id, o.instructor_id, s.title, s.start_time, s.end_time, s.capacity, s.reservations_closed`

// GetByID retrieves a session.  It returns ErrNotFound if there is no
// matching row.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	q := `SELECT ` + sessionCols + `
	      FROM class_sessions s
	      JOIN offerings o ON o.id = s.offering_id
	      WHERE s.id = ?`
	return scanSession(r.db.QueryRowContext(ctx, q, id))
}

// GetForUpdateTx reads a session and takes an exclusive lock on its row
// for the rest of the transaction.  Every reservation mutation on the
// session goes through this lock first, so the capacity count and the
// write that follows it cannot interleave with another admission.
func (r *SessionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	q := `SELECT ` + sessionCols + `
	      FROM class_sessions s
	      JOIN offerings o ON o.id = s.offering_id
	      WHERE s.id = ?
	      FOR UPDATE OF s`
	return scanSession(tx.QueryRowContext(ctx, q, id))
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.OfferingID, &s.InstructorID, &s.Title,
		&s.StartTime, &s.EndTime, &s.Capacity, &s.ReservationsClosed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan session")
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return &s, nil
}
