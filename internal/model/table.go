package model

import "time"

// Table is a bookable restaurant table (`restaurant_tables`).
type Table struct {
	ID          uint64    `json:"id"`
	TableNumber string    `json:"table_number"`
	Capacity    int       `json:"capacity"`
	IsAvailable bool      `json:"is_available"`
	Location    *string   `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
