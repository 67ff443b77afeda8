// Package repository defines the MySQL persistence of class reservations,
// their audit ledger and the chat-room rosters derived from them, and
// the read-only views of the session registry and enrollments.  Sentinel
// errors here let the service layer distinguish failure scenarios
// without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with a unique key,
// such as a second reservation row for the same session and learner.
var ErrConflict = errors.New("conflict")

// MySQL server error numbers the repository reacts to.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// IsTransient reports whether err is a contention failure that is safe
// to retry with a fresh transaction: an InnoDB deadlock or a lock-wait
// timeout.  The failed attempt is rolled back by InTx.
func IsTransient(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
	}
	return false
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
