package repository

import (
	"context"
	"database/sql"

	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/class-reservation/internal/model"
)

// AuditRepo appends to and reads the reservation audit ledger.  It has
// no update or delete methods: entries are immutable once written.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns an AuditRepo bound to db.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// AppendTx writes one entry inside tx and fills in its ID and timestamp.
func (r *AuditRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
	const q = `INSERT INTO reservation_audit (reservation_id, action, performed_by, performer_role, reason)
	           VALUES (?, ?, ?, ?, ?)`
	var reason sql.NullString
	if e.Reason != nil {
		reason = sql.NullString{String: *e.Reason, Valid: true}
	}
	res, err := tx.ExecContext(ctx, q, e.ReservationID, e.Action, e.PerformedBy, e.PerformerRole, reason)
	if err != nil {
		return pkgerrors.Wrap(err, "append audit entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return pkgerrors.Wrap(err, "audit entry id")
	}
	e.ID = uint64(id)
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM reservation_audit WHERE id = ?`, e.ID).Scan(&e.CreatedAt); err != nil {
		return pkgerrors.Wrap(err, "audit entry timestamp")
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

// ListByReservation returns the reservation's entries, newest first.
// Entries committed in the same microsecond are ordered by ID.
func (r *AuditRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.AuditEntry, error) {
	const q = `SELECT id, reservation_id, action, performed_by, performer_role, reason, created_at
	           FROM reservation_audit
	           WHERE reservation_id = ?
	           ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list audit entries")
	}
	defer rows.Close()
	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.Action, &e.PerformedBy, &e.PerformerRole, &reason, &e.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan audit entry")
		}
		if reason.Valid {
			s := reason.String
			e.Reason = &s
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
