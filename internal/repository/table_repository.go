package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// TableRepo manages persistence for restaurant tables.
type TableRepo struct {
	db *sql.DB
}

func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

const tableColumns = "id, table_number, capacity, is_available, location, created_at, updated_at"

func scanTable(row rowScanner) (model.Table, error) {
	var (
		t   model.Table
		loc sql.NullString
	)
	if err := row.Scan(&t.ID, &t.TableNumber, &t.Capacity, &t.IsAvailable, &loc, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Table{}, err
	}
	t.Location = stringPtr(loc)
	return t, nil
}

// Create inserts t and fills ID and timestamps.  ErrDuplicate is returned
// when the table number is already in use.
func (r *TableRepo) Create(ctx context.Context, t *model.Table) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO restaurant_tables (table_number, capacity, is_available, location) VALUES (?, ?, ?, ?)",
		t.TableNumber, t.Capacity, t.IsAvailable, nullString(t.Location))
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*t = stored
	return nil
}

// GetByID returns the table or ErrNotFound.
func (r *TableRepo) GetByID(ctx context.Context, id uint64) (model.Table, error) {
	t, err := scanTable(r.db.QueryRowContext(ctx, "SELECT "+tableColumns+" FROM restaurant_tables WHERE id = ?", id))
	return t, mapError(err)
}

// List returns every table ordered by table number.
func (r *TableRepo) List(ctx context.Context) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+tableColumns+" FROM restaurant_tables ORDER BY table_number")
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := make([]model.Table, 0)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
