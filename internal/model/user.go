package model

import "time"

// User represents an application account as stored in the `users` table.
// Handlers never serialise it directly; see handler.userResponse.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	PasswordHash string    // users.password_hash
	FullName     *string   // users.full_name (nullable)
	Phone        *string   // users.phone (nullable)
	Role         Role      // users.role
	Enabled      bool      // users.enabled
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
