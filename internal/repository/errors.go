// Package repository holds the MySQL-backed stores.  Sentinel errors let
// the service layer tell failure cases apart without inspecting driver
// errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write matched no row because
// the row changed underneath the caller (for example a status update
// guarded by the expected current status).
var ErrConflict = errors.New("conflict")

// MySQL server error numbers the repositories care about.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicate reports whether err is a unique-key violation.
func IsDuplicate(err error) bool { return mysqlErrNumber(err) == mysqlDuplicateEntry }

// IsTransient reports whether err is a lock wait timeout or deadlock, the
// two failures InnoDB expects callers to retry.
func IsTransient(err error) bool {
	switch mysqlErrNumber(err) {
	case mysqlDeadlock, mysqlLockWaitTimeout:
		return true
	}
	return false
}
