package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.  ACTIVE is the
// only state that blocks a table; CANCELLED is terminal.
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "ACTIVE"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s ReservationStatus) Valid() bool {
	return s == StatusActive || s == StatusCancelled
}

// Reservation is a row of the `reservations` table.
//
// Fields:
//
//	ID              – primary key identifier.
//	ClientID        – client the booking belongs to.
//	TableID         – restaurant table being held.
//	ReservationTime – start instant of the booking (UTC).
//	DurationMinutes – length of the booking, at least 15.
//	PartySize       – number of guests, at least 1.
//	Status          – ACTIVE or CANCELLED.
//	Notes           – optional free text, at most 500 characters.
type Reservation struct {
	ID              uint64            `json:"id"`
	ClientID        uint64            `json:"client_id"`
	TableID         uint64            `json:"table_id"`
	ReservationTime time.Time         `json:"reservation_time"`
	DurationMinutes int               `json:"duration_minutes"`
	PartySize       int               `json:"party_size"`
	Status          ReservationStatus `json:"status"`
	Notes           *string           `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// End returns the instant the table is released.
func (r Reservation) End() time.Time {
	return r.ReservationTime.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// Interval returns the half-open window [start, end) occupied by r.
func (r Reservation) Interval() Interval {
	return Interval{Start: r.ReservationTime, End: r.End()}
}

// Interval is a half-open time window [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open windows share any instant.
// Windows that merely touch (one ends exactly when the other starts) do not
// overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Empty reports whether the window contains no instant.
func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// ReservationFilter narrows a reservation listing.  Zero values mean "any".
type ReservationFilter struct {
	ClientID uint64
	TableID  uint64
	Status   ReservationStatus
	Page     int // zero-based
	Size     int
}

// Page is a slice of results together with paging metadata.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPage computes the total page count from total and size.
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{Items: items, Page: page, Size: size, TotalItems: total, TotalPages: pages}
}
