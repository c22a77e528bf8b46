// Package service implements the reservation conflict checker and the
// account flows on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-reservation/internal/apperr"
	"github.com/iliyamo/restaurant-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

const (
	MaxNotesLen     = 500
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ReservationStore is the persistence the conflict checker needs.
type ReservationStore interface {
	WithTableLock(ctx context.Context, tableID uint64, fn func(repository.LockedReservations) error) error
	GetByID(ctx context.Context, id uint64) (model.Reservation, error)
	FindActiveForTable(ctx context.Context, tableID uint64, start, end time.Time) ([]model.Reservation, error)
	List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, int, error)
	SetStatus(ctx context.Context, id uint64, status model.ReservationStatus) error
	Delete(ctx context.Context, id uint64) error
}

// ClientFinder looks up clients by id.
type ClientFinder interface {
	GetByID(ctx context.Context, id uint64) (model.Client, error)
}

// TableFinder looks up restaurant tables by id.
type TableFinder interface {
	GetByID(ctx context.Context, id uint64) (model.Table, error)
}

// EventPublisher delivers reservation events.  Failures never fail the
// operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// ReservationOptions tunes a ReservationService.  Zero values select the
// defaults.
type ReservationOptions struct {
	DefaultDurationMin int
	MinDurationMin     int
	MaxDurationMin     int
	Now                func() time.Time
	Metrics            *metrics.Metrics
	Log                zerolog.Logger
}

// ReservationService books, updates and cancels reservations while keeping
// at most one ACTIVE reservation on any table at any instant.
type ReservationService struct {
	store     ReservationStore
	clients   ClientFinder
	tables    TableFinder
	publisher EventPublisher

	defaultDuration int
	minDuration     int
	maxDuration     int
	now             func() time.Time
	metrics         *metrics.Metrics
	log             zerolog.Logger
}

func NewReservationService(store ReservationStore, clients ClientFinder, tables TableFinder, pub EventPublisher, opts ReservationOptions) *ReservationService {
	if opts.DefaultDurationMin <= 0 {
		opts.DefaultDurationMin = 90
	}
	if opts.MinDurationMin <= 0 {
		opts.MinDurationMin = 15
	}
	if opts.MaxDurationMin < opts.MinDurationMin {
		opts.MaxDurationMin = 24 * 60
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &ReservationService{
		store:           store,
		clients:         clients,
		tables:          tables,
		publisher:       pub,
		defaultDuration: opts.DefaultDurationMin,
		minDuration:     opts.MinDurationMin,
		maxDuration:     opts.MaxDurationMin,
		now:             opts.Now,
		metrics:         opts.Metrics,
		log:             opts.Log.With().Str("component", "reservations").Logger(),
	}
}

// CreateInput is a booking request.  Zero DurationMinutes and PartySize
// select the defaults (90 minutes, one guest).
type CreateInput struct {
	ClientID        uint64
	TableID         uint64
	Start           time.Time
	DurationMinutes int
	PartySize       int
	Notes           *string
}

// UpdateInput carries the fields to change; nil fields are left untouched.
type UpdateInput struct {
	Start           *time.Time
	DurationMinutes *int
	PartySize       *int
	Notes           *string
}

// CheckAvailability returns the ACTIVE reservations of tableID that overlap
// [start, end).  An empty result means the window is free.
func (s *ReservationService) CheckAvailability(ctx context.Context, tableID uint64, start, end time.Time) ([]model.Reservation, error) {
	if start.IsZero() || end.IsZero() {
		return nil, apperr.BadRequestf("start and end are required")
	}
	if !start.Before(end) {
		return nil, apperr.BadRequestf("start must be before end")
	}
	if _, err := s.tables.GetByID(ctx, tableID); err != nil {
		return nil, translate(err, "table", tableID)
	}
	conflicts, err := s.store.FindActiveForTable(ctx, tableID, start.UTC(), end.UTC())
	if err != nil {
		return nil, translate(err, "table", tableID)
	}
	s.metrics.IncAvailabilityCheck()
	return conflicts, nil
}

// CreateReservation books a table.  The overlap check and the insert run
// under the table's row lock, so two concurrent requests for overlapping
// windows cannot both succeed.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateInput) (model.Reservation, error) {
	if in.DurationMinutes == 0 {
		in.DurationMinutes = s.defaultDuration
	}
	if in.PartySize == 0 {
		in.PartySize = 1
	}
	if err := s.validate(in.Start, in.DurationMinutes, in.PartySize, in.Notes); err != nil {
		s.metrics.IncReservation(metrics.OutcomeRejected)
		return model.Reservation{}, err
	}
	if in.ClientID == 0 || in.TableID == 0 {
		s.metrics.IncReservation(metrics.OutcomeRejected)
		return model.Reservation{}, apperr.BadRequestf("client_id and table_id are required")
	}
	if _, err := s.clients.GetByID(ctx, in.ClientID); err != nil {
		s.metrics.IncReservation(metrics.OutcomeRejected)
		return model.Reservation{}, translate(err, "client", in.ClientID)
	}

	res := model.Reservation{
		ClientID:        in.ClientID,
		TableID:         in.TableID,
		ReservationTime: in.Start.UTC(),
		DurationMinutes: in.DurationMinutes,
		PartySize:       in.PartySize,
		Status:          model.StatusActive,
		Notes:           trimNotes(in.Notes),
	}

	err := s.store.WithTableLock(ctx, in.TableID, func(tx repository.LockedReservations) error {
		conflicts, err := tx.ActiveOverlapping(ctx, res.TableID, res.ReservationTime, res.End(), 0)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return occupied(res.TableID, conflicts)
		}
		return tx.Insert(ctx, &res)
	})
	if err != nil {
		err = translate(err, "table", in.TableID)
		s.recordFailure(err)
		return model.Reservation{}, err
	}

	s.metrics.IncReservation(metrics.OutcomeCreated)
	s.log.Info().Uint64("reservation_id", res.ID).Uint64("table_id", res.TableID).
		Time("start", res.ReservationTime).Int("duration_minutes", res.DurationMinutes).Msg("reservation created")
	s.publish(ctx, queue.EventCreated, res)
	return res, nil
}

// UpdateReservation changes the time, duration, party size or notes of an
// ACTIVE reservation.  The conflict check is repeated under the table lock
// with the reservation itself excluded.
func (s *ReservationService) UpdateReservation(ctx context.Context, id uint64, in UpdateInput) (model.Reservation, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Reservation{}, translate(err, "reservation", id)
	}

	var updated model.Reservation
	err = s.store.WithTableLock(ctx, current.TableID, func(tx repository.LockedReservations) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusActive {
			return apperr.Conflictf("reservation %d is %s and cannot be modified", id, cur.Status)
		}

		next := cur
		if in.Start != nil {
			next.ReservationTime = in.Start.UTC()
		}
		if in.DurationMinutes != nil {
			next.DurationMinutes = *in.DurationMinutes
		}
		if in.PartySize != nil {
			next.PartySize = *in.PartySize
		}
		if in.Notes != nil {
			next.Notes = trimNotes(in.Notes)
		}

		// The start only has to lie in the future when it is being moved.
		start := next.ReservationTime
		if in.Start == nil {
			start = time.Time{}
		}
		if err := s.validateUpdate(start, next.DurationMinutes, next.PartySize, next.Notes); err != nil {
			return err
		}

		conflicts, err := tx.ActiveOverlapping(ctx, next.TableID, next.ReservationTime, next.End(), next.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return occupied(next.TableID, conflicts)
		}
		if err := tx.Update(ctx, &next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return model.Reservation{}, translate(err, "reservation", id)
	}

	updated.UpdatedAt = s.now()
	s.publish(ctx, queue.EventUpdated, updated)
	return updated, nil
}

// CancelReservation moves a reservation to CANCELLED.  Cancelling an
// already cancelled reservation succeeds without side effects.
func (s *ReservationService) CancelReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Reservation{}, translate(err, "reservation", id)
	}
	if res.Status == model.StatusCancelled {
		return res, nil
	}
	if err := s.store.SetStatus(ctx, id, model.StatusCancelled); err != nil {
		return model.Reservation{}, translate(err, "reservation", id)
	}
	res.Status = model.StatusCancelled
	res.UpdatedAt = s.now()

	s.metrics.IncCancellation()
	s.log.Info().Uint64("reservation_id", id).Msg("reservation cancelled")
	s.publish(ctx, queue.EventCancelled, res)
	return res, nil
}

// DeleteReservation hard-deletes a reservation that no order references.
func (s *ReservationService) DeleteReservation(ctx context.Context, id uint64) error {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return translate(err, "reservation", id)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return translate(err, "reservation", id)
	}
	s.log.Info().Uint64("reservation_id", id).Msg("reservation deleted")
	s.publish(ctx, queue.EventDeleted, res)
	return nil
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Reservation{}, translate(err, "reservation", id)
	}
	return res, nil
}

// List returns a page of reservations ordered by reservation time.
func (s *ReservationService) List(ctx context.Context, f model.ReservationFilter) (model.Page[model.Reservation], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.Page[model.Reservation]{}, apperr.BadRequestf("unknown status %q", f.Status)
	}
	f.Page, f.Size = NormalizePage(f.Page, f.Size)
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return model.Page[model.Reservation]{}, translate(err, "reservation", 0)
	}
	return model.NewPage(items, f.Page, f.Size, total), nil
}

// NormalizePage clamps paging parameters.  page is zero-based.
func NormalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func (s *ReservationService) validate(start time.Time, duration, partySize int, notes *string) error {
	if start.IsZero() {
		return apperr.BadRequestf("reservation time is required")
	}
	if !start.After(s.now()) {
		return apperr.BadRequestf("reservation time must be in the future")
	}
	return s.validateUpdate(time.Time{}, duration, partySize, notes)
}

// validateUpdate checks the non-time fields, and start too when non-zero.
func (s *ReservationService) validateUpdate(start time.Time, duration, partySize int, notes *string) error {
	if !start.IsZero() && !start.After(s.now()) {
		return apperr.BadRequestf("reservation time must be in the future")
	}
	if duration < s.minDuration {
		return apperr.BadRequestf("duration must be at least %d minutes", s.minDuration)
	}
	if duration > s.maxDuration {
		return apperr.BadRequestf("duration must be at most %d minutes", s.maxDuration)
	}
	if partySize < 1 {
		return apperr.BadRequestf("party size must be at least 1")
	}
	if notes != nil && utf8.RuneCountInString(*notes) > MaxNotesLen {
		return apperr.BadRequestf("notes must be at most %d characters", MaxNotesLen)
	}
	return nil
}

func (s *ReservationService) recordFailure(err error) {
	switch apperr.KindOf(err) {
	case apperr.Conflict:
		s.metrics.IncReservation(metrics.OutcomeConflict)
	case apperr.Internal:
		s.metrics.IncReservation(metrics.OutcomeError)
	default:
		s.metrics.IncReservation(metrics.OutcomeRejected)
	}
}

func (s *ReservationService) publish(ctx context.Context, eventType string, res model.Reservation) {
	ev := queue.NewReservationEvent(eventType, res, s.now())
	err := s.publisher.Publish(context.WithoutCancel(ctx), ev)
	s.metrics.IncEventPublished(err == nil)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Uint64("reservation_id", res.ID).Msg("event not published")
	}
}

func occupied(tableID uint64, conflicts []model.Reservation) error {
	windows := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		windows = append(windows, fmt.Sprintf("%s-%s",
			c.ReservationTime.UTC().Format(time.RFC3339), c.End().UTC().Format(time.RFC3339)))
	}
	return apperr.Conflictf("the table %d is occupied at the indicated time (%s)", tableID, strings.Join(windows, ", "))
}

func trimNotes(n *string) *string {
	if n == nil {
		return nil
	}
	t := strings.TrimSpace(*n)
	if t == "" {
		return nil
	}
	return &t
}

// translate maps repository sentinels to error kinds.  Errors that already
// carry a kind pass through.
func translate(err error, what string, id uint64) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFoundf("%s %d not found", what, id)
	case errors.Is(err, repository.ErrHasOrders):
		return apperr.Wrap(apperr.Conflict, err, fmt.Sprintf("%s %d is referenced by an order", what, id))
	case errors.Is(err, repository.ErrConflict):
		return apperr.Wrap(apperr.Conflict, err, "concurrent update, please retry")
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Wrap(apperr.Conflict, err, fmt.Sprintf("%s already exists", what))
	}
	return apperr.Wrap(apperr.Internal, err, what)
}
