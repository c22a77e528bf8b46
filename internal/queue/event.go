// Package queue carries reservation lifecycle events over RabbitMQ.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// QueueName is the durable queue all reservation events are routed to.
const QueueName = "reservation.events"

// Event types.
const (
	EventCreated   = "reservation.created"
	EventUpdated   = "reservation.updated"
	EventCancelled = "reservation.cancelled"
	EventDeleted   = "reservation.deleted"
)

// ReservationEvent is published after a reservation changes state.  It
// contains enough information for downstream consumers to log or notify
// without querying the primary database.
type ReservationEvent struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	ReservationID   uint64    `json:"reservation_id"`
	ClientID        uint64    `json:"client_id"`
	TableID         uint64    `json:"table_id"`
	ReservationTime time.Time `json:"reservation_time"`
	DurationMinutes int       `json:"duration_minutes"`
	PartySize       int       `json:"party_size"`
	Status          string    `json:"status"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewReservationEvent builds an event of the given type from r.
func NewReservationEvent(eventType string, r model.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		ID:              uuid.NewString(),
		Type:            eventType,
		ReservationID:   r.ID,
		ClientID:        r.ClientID,
		TableID:         r.TableID,
		ReservationTime: r.ReservationTime.UTC(),
		DurationMinutes: r.DurationMinutes,
		PartySize:       r.PartySize,
		Status:          string(r.Status),
		OccurredAt:      at.UTC(),
	}
}
