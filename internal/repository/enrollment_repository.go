package repository

import (
	"context"
	"database/sql"

	pkgerrors "github.com/pkg/errors"
)

// EnrollmentRepo answers eligibility questions against the enrollment
// service's table.  Only approved enrollments make a learner eligible.
type EnrollmentRepo struct {
	db *sql.DB
}

// NewEnrollmentRepo constructs an EnrollmentRepo with the given DB handle.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

// IsEnrolledTx reports whether the learner holds an approved enrollment
// in the offering.
func (r *EnrollmentRepo) IsEnrolledTx(ctx context.Context, tx *sql.Tx, learnerID, offeringID uint64) (bool, error) {
	const q = `SELECT EXISTS(
	               SELECT 1 FROM enrollments
	               WHERE offering_id = ? AND learner_id = ? AND status = 'approved')`
	var ok bool
	if err := tx.QueryRowContext(ctx, q, offeringID, learnerID).Scan(&ok); err != nil {
		return false, pkgerrors.Wrap(err, "check enrollment")
	}
	return ok, nil
}
