package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

var reservationCols = []string{"id", "client_id", "table_id", "reservation_time", "duration_minutes",
	"party_size", "status", "notes", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestWithTableLock_InsertsWhenFree(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()

	start := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	now := time.Date(2030, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM restaurant_tables WHERE id = \? FOR UPDATE`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`FROM reservations WHERE table_id = \? AND status = 'ACTIVE'`).
		WithArgs(3, end, start).
		WillReturnRows(sqlmock.NewRows(reservationCols))
	mock.ExpectExec(`INSERT INTO reservations`).
		WithArgs(7, 3, start, 90, 2, "ACTIVE", nil).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(`FROM reservations WHERE id = \?`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(10, 7, 3, start, 90, 2, "ACTIVE", nil, now, now))
	mock.ExpectCommit()

	res := model.Reservation{ClientID: 7, TableID: 3, ReservationTime: start, DurationMinutes: 90, PartySize: 2, Status: model.StatusActive}
	err := repo.WithTableLock(ctx, 3, func(tx LockedReservations) error {
		overlapping, err := tx.ActiveOverlapping(ctx, 3, start, end, 0)
		if err != nil {
			return err
		}
		assert.Empty(t, overlapping)
		return tx.Insert(ctx, &res)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.ID)
	assert.Equal(t, model.StatusActive, res.Status)
	assert.Nil(t, res.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTableLock_ExcludesSelfOnUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()
	start := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`status = 'ACTIVE' .* AND id <> \? ORDER BY reservation_time`).
		WithArgs(3, end, start, 42).
		WillReturnRows(sqlmock.NewRows(reservationCols))
	mock.ExpectCommit()

	err := repo.WithTableLock(ctx, 3, func(tx LockedReservations) error {
		_, err := tx.ActiveOverlapping(ctx, 3, start, end, 42)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTableLock_TableMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM restaurant_tables`).WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := repo.WithTableLock(context.Background(), 99, func(LockedReservations) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTableLock_RollsBackOnCallbackError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM restaurant_tables`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.WithTableLock(context.Background(), 1, func(LockedReservations) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DeadlockMapsToConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM restaurant_tables`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO reservations`).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()

	err := repo.WithTableLock(ctx, 1, func(tx LockedReservations) error {
		return tx.Insert(ctx, &model.Reservation{ClientID: 1, TableID: 1, DurationMinutes: 90, PartySize: 1, Status: model.StatusActive})
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationList_FiltersAndPages(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	at := time.Date(2030, 5, 1, 19, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservations WHERE client_id = \? AND status = \?`).
		WithArgs(7, "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`FROM reservations WHERE client_id = \? AND status = \? ORDER BY reservation_time, id LIMIT \? OFFSET \?`).
		WithArgs(7, "ACTIVE", 5, 10).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(31, 7, 2, at, 90, 4, "ACTIVE", "window seat", at, at))

	items, total, err := repo.List(context.Background(), model.ReservationFilter{
		ClientID: 7, Status: model.StatusActive, Page: 2, Size: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Notes)
	assert.Equal(t, "window seat", *items[0].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationDelete_RefusesWhenOrdered(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE reservation_id = \?`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 5)
	assert.ErrorIs(t, err, ErrHasOrders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(`FROM orders`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DELETE FROM reservations WHERE id = \?`).WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationSetStatus_Missing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectExec(`UPDATE reservations SET status = \? WHERE id = \?`).WithArgs("CANCELLED", 8).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id FROM reservations WHERE id = \?`).WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.SetStatus(context.Background(), 8, model.StatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: 1062}), ErrDuplicate)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: 1205}), ErrConflict)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: 1451}), ErrHasOrders)

	other := errors.New("driver: bad connection")
	assert.Equal(t, other, mapError(other))
}
