package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// ReservationRepo provides persistence for reservations.  All timestamps are
// stored and returned in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// LockedReservations is the set of operations available while a table row
// is locked.  Every call runs inside the same transaction.
type LockedReservations interface {
	// ActiveOverlapping returns the ACTIVE reservations of tableID whose
	// window [reservation_time, reservation_time+duration) intersects
	// [start, end).  excludeID, when non-zero, is left out.
	ActiveOverlapping(ctx context.Context, tableID uint64, start, end time.Time, excludeID uint64) ([]model.Reservation, error)
	// GetForUpdate loads and locks a single reservation row.
	GetForUpdate(ctx context.Context, id uint64) (model.Reservation, error)
	// Insert stores res and fills ID and timestamps.
	Insert(ctx context.Context, res *model.Reservation) error
	// Update writes the mutable fields of res.
	Update(ctx context.Context, res *model.Reservation) error
}

const reservationColumns = `id, client_id, table_id, reservation_time, duration_minutes, party_size, status, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		res   model.Reservation
		notes sql.NullString
	)
	err := row.Scan(&res.ID, &res.ClientID, &res.TableID, &res.ReservationTime,
		&res.DurationMinutes, &res.PartySize, &res.Status, &notes,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Notes = stringPtr(notes)
	res.ReservationTime = res.ReservationTime.UTC()
	return res, nil
}

// WithTableLock opens a transaction, takes an exclusive row lock on the
// restaurant table and runs fn.  Concurrent callers for the same table block
// on the lock until the holder commits or rolls back, so a check-then-insert
// inside fn cannot race with another booking.  The transaction is committed
// when fn returns nil and rolled back otherwise.  ErrNotFound is returned
// when the table does not exist.
func (r *ReservationRepo) WithTableLock(ctx context.Context, tableID uint64, fn func(LockedReservations) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM restaurant_tables WHERE id = ? FOR UPDATE`, tableID).Scan(&locked)
	if err != nil {
		return mapError(err)
	}

	if err := fn(&lockedTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}

type lockedTx struct {
	tx *sql.Tx
}

func (l *lockedTx) ActiveOverlapping(ctx context.Context, tableID uint64, start, end time.Time, excludeID uint64) ([]model.Reservation, error) {
	// Strict half-open overlap: existing.start < new.end AND existing.end > new.start.
	q := `SELECT ` + reservationColumns + `
	      FROM reservations
	      WHERE table_id = ? AND status = 'ACTIVE'
	        AND reservation_time < ?
	        AND DATE_ADD(reservation_time, INTERVAL duration_minutes MINUTE) > ?`
	args := []any{tableID, end.UTC(), start.UTC()}
	if excludeID != 0 {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	q += ` ORDER BY reservation_time`

	rows, err := l.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (l *lockedTx) GetForUpdate(ctx context.Context, id uint64) (model.Reservation, error) {
	row := l.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id)
	res, err := scanReservation(row)
	return res, mapError(err)
}

func (l *lockedTx) Insert(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (client_id, table_id, reservation_time, duration_minutes, party_size, status, notes)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := l.tx.ExecContext(ctx, q, res.ClientID, res.TableID, res.ReservationTime.UTC(),
		res.DurationMinutes, res.PartySize, string(res.Status), nullString(res.Notes))
	if err != nil {
		return mapError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	// Query back the full row to populate timestamps and defaults
	stored, err := scanReservation(l.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		return mapError(err)
	}
	*res = stored
	return nil
}

func (l *lockedTx) Update(ctx context.Context, res *model.Reservation) error {
	const q = `UPDATE reservations
	           SET reservation_time = ?, duration_minutes = ?, party_size = ?, notes = ?, status = ?
	           WHERE id = ?`
	_, err := l.tx.ExecContext(ctx, q, res.ReservationTime.UTC(), res.DurationMinutes,
		res.PartySize, nullString(res.Notes), string(res.Status), res.ID)
	return mapError(err)
}

// GetByID loads a single reservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	return res, mapError(err)
}

// FindActiveForTable returns ACTIVE reservations of tableID overlapping
// [start, end) without taking any lock.  It backs the read-only
// availability check; bookings go through WithTableLock instead.
func (r *ReservationRepo) FindActiveForTable(ctx context.Context, tableID uint64, start, end time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
	           FROM reservations
	           WHERE table_id = ? AND status = 'ACTIVE'
	             AND reservation_time < ?
	             AND DATE_ADD(reservation_time, INTERVAL duration_minutes MINUTE) > ?
	           ORDER BY reservation_time`
	rows, err := r.db.QueryContext(ctx, q, tableID, end.UTC(), start.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// List returns one page of reservations matching f, ordered by reservation
// time, and the total number of matches.
func (r *ReservationRepo) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, int, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.TableID != 0 {
		where = append(where, "table_id = ?")
		args = append(args, f.TableID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations`+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	q := `SELECT ` + reservationColumns + ` FROM reservations` + cond + ` ORDER BY reservation_time, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, f.Size, f.Page*f.Size)...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0, f.Size)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SetStatus changes the status of a reservation.  ErrNotFound is returned
// when the reservation does not exist.
func (r *ReservationRepo) SetStatus(ctx context.Context, id uint64, status model.ReservationStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or already in the requested status.
		var exists uint64
		if err := r.db.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = ?`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// Delete hard-deletes a reservation.  ErrHasOrders is returned while any
// order still references it.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = ? FOR UPDATE`, id).Scan(&locked); err != nil {
		return mapError(err)
	}
	var orders int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE reservation_id = ?`, id).Scan(&orders); err != nil {
		return mapError(err)
	}
	if orders > 0 {
		return fmt.Errorf("%w: %d order(s)", ErrHasOrders, orders)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
