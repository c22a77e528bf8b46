package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// ClientRepo manages persistence for restaurant clients.
type ClientRepo struct {
	db *sql.DB
}

func NewClientRepo(db *sql.DB) *ClientRepo { return &ClientRepo{db: db} }

const clientColumns = "id, full_name, phone, email, created_at, updated_at"

// Create inserts c and fills ID and timestamps.  ErrDuplicate is returned
// when the email is already registered.
func (r *ClientRepo) Create(ctx context.Context, c *model.Client) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO clients (full_name, phone, email) VALUES (?, ?, ?)",
		c.FullName, c.Phone, c.Email)
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
	*c = stored
	return nil
}

// GetByID returns the client or ErrNotFound.
func (r *ClientRepo) GetByID(ctx context.Context, id uint64) (model.Client, error) {
	var c model.Client
	err := r.db.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM clients WHERE id = ?", id).
		Scan(&c.ID, &c.FullName, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Client{}, mapError(err)
	}
	return c, nil
}

// List returns one page of clients ordered by name and the total count.
func (r *ClientRepo) List(ctx context.Context, page, size int) ([]model.Client, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clients").Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM clients ORDER BY full_name, id LIMIT ? OFFSET ?", size, page*size)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()
	out := make([]model.Client, 0, size)
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.FullName, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
