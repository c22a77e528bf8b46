package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,password_hash,full_name,phone,role,enabled,created_at,updated_at"

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Create inserts u (PasswordHash must already be set) and fills its ID.
// ErrDuplicate is returned when the username is taken.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Username = NormalizeUsername(u.Username)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, full_name, phone, role, enabled) VALUES (?,?,?,?,?,?)",
		u.Username, u.PasswordHash, nullString(u.FullName), nullString(u.Phone), string(u.Role), u.Enabled)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", NormalizeUsername(username)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u               model.User
		fullName, phone sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &fullName, &phone, &u.Role, &u.Enabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, mapError(err)
	}
	u.FullName = stringPtr(fullName)
	u.Phone = stringPtr(phone)
	return u, nil
}
