// Package repository holds the MySQL and Redis data access for the service.
// Repositories return the sentinel values below so that higher layers can
// tell failure scenarios apart without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be performed because of
// concurrent or conflicting state (deadlock, lock wait timeout).
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when a unique key would be violated.
var ErrDuplicate = errors.New("duplicate")

// ErrHasOrders is returned when a reservation is still referenced by an order
// and therefore cannot be hard-deleted.
var ErrHasOrders = errors.New("reservation is referenced by an order")

// MySQL server error numbers the repositories care about.
const (
	erDupEntry        = 1062
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
	erRowIsReferenced = 1451
	erNoReferencedRow = 1452
)

// mapError translates driver errors into repository sentinels.  The original
// error stays in the chain for logging.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case erDupEntry:
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case erLockWaitTimeout, erLockDeadlock:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case erRowIsReferenced:
		return fmt.Errorf("%w: %w", ErrHasOrders, err)
	case erNoReferencedRow:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
