package service

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/apperr"
	"github.com/iliyamo/restaurant-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
)

var clock = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return time.Date(2030, 5, 1, h, m, 0, 0, time.UTC) }

type fixture struct {
	svc   *ReservationService
	store *memStore
	pub   *recordingPublisher
	m     *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := newMemStore(1, 2, 3)
	clients := memClients{7: {ID: 7, FullName: "Ann"}, 8: {ID: 8, FullName: "Ben"}}
	tables := memTables{1: {ID: 1}, 2: {ID: 2}, 3: {ID: 3}}
	pub := &recordingPublisher{}
	m := metrics.New()
	svc := NewReservationService(store, clients, tables, pub, ReservationOptions{
		Now:     func() time.Time { return clock },
		Metrics: m,
		Log:     zerolog.Nop(),
	})
	return fixture{svc: svc, store: store, pub: pub, m: m}
}

func ptr[T any](v T) *T { return &v }

func TestCreateReservation_OverlapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 3, Start: at(10, 0), DurationMinutes: 90})
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, first.Status)
	assert.Equal(t, at(11, 30), first.End())

	_, err = f.svc.CreateReservation(ctx, CreateInput{ClientID: 8, TableID: 3, Start: at(10, 30), DurationMinutes: 60})
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "occupied at the indicated time")

	// Touching intervals do not overlap.
	_, err = f.svc.CreateReservation(ctx, CreateInput{ClientID: 8, TableID: 3, Start: at(11, 30), DurationMinutes: 60})
	require.NoError(t, err)

	// A different table is unaffected.
	_, err = f.svc.CreateReservation(ctx, CreateInput{ClientID: 8, TableID: 2, Start: at(10, 30), DurationMinutes: 60})
	require.NoError(t, err)

	assert.Equal(t, []string{queue.EventCreated, queue.EventCreated, queue.EventCreated}, f.pub.types())
}

// Booking [11:00, 12:00) fails while [10:00, 11:30) is ACTIVE and succeeds
// once that reservation is cancelled.
func TestCreateReservation_SucceedsAfterBlockingReservationCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 3, Start: at(10, 0), DurationMinutes: 90})
	require.NoError(t, err)

	late := CreateInput{ClientID: 8, TableID: 3, Start: at(11, 0), DurationMinutes: 60}
	_, err = f.svc.CreateReservation(ctx, late)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = f.svc.CancelReservation(ctx, first.ID)
	require.NoError(t, err)

	second, err := f.svc.CreateReservation(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, at(11, 0), second.ReservationTime)
	assert.Equal(t, at(12, 0), second.End())
	assert.Equal(t, model.StatusActive, second.Status)

	active := f.store.active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestCreateReservation_Defaults(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateReservation(context.Background(), CreateInput{ClientID: 7, TableID: 1, Start: at(19, 0), Notes: ptr("  ")})
	require.NoError(t, err)
	assert.Equal(t, 90, res.DurationMinutes)
	assert.Equal(t, 1, res.PartySize)
	assert.Nil(t, res.Notes)
}

func TestCreateReservation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
		kind apperr.Kind
	}{
		{"missing start", CreateInput{ClientID: 7, TableID: 1}, apperr.BadRequest},
		{"past start", CreateInput{ClientID: 7, TableID: 1, Start: clock.Add(-time.Minute)}, apperr.BadRequest},
		{"start equals now", CreateInput{ClientID: 7, TableID: 1, Start: clock}, apperr.BadRequest},
		{"short duration", CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0), DurationMinutes: 14}, apperr.BadRequest},
		{"day-long plus one", CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0), DurationMinutes: 24*60 + 1}, apperr.BadRequest},
		{"overflowing duration", CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0), DurationMinutes: 200_000_000}, apperr.BadRequest},
		{"negative party", CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0), PartySize: -1}, apperr.BadRequest},
		{"long notes", CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0), Notes: ptr(strings.Repeat("é", 501))}, apperr.BadRequest},
		{"unknown client", CreateInput{ClientID: 99, TableID: 1, Start: at(12, 0)}, apperr.NotFound},
		{"unknown table", CreateInput{ClientID: 7, TableID: 99, Start: at(12, 0)}, apperr.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateReservation(ctx, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
	assert.Empty(t, f.store.active())

	_, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0), DurationMinutes: 15,
		Notes: ptr(strings.Repeat("é", 500))})
	assert.NoError(t, err)
}

func TestCreateReservation_PublisherFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.pub.fail = true

	res, err := f.svc.CreateReservation(context.Background(), CreateInput{ClientID: 7, TableID: 1, Start: at(12, 0)})
	require.NoError(t, err)
	assert.NotZero(t, res.ID)
}

func TestCreateReservation_ConcurrentRequestsForSameWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(18, 0).Add(time.Duration(i%4) * 10 * time.Minute)
			_, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 1, Start: start, DurationMinutes: 60})
			switch apperr.KindOf(err) {
			case apperr.Conflict:
				conflicts.Add(1)
			default:
				if err == nil {
					successes.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(31), conflicts.Load())
	assert.Len(t, f.store.active(), 1)
}

// Random bookings never leave two ACTIVE reservations overlapping on one
// table, and every rejection is explained by an existing overlap.
func TestCreateReservation_NoOverlapProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	base := at(9, 0)

	for i := 0; i < 400; i++ {
		table := uint64(1 + rng.Intn(3))
		start := base.Add(time.Duration(rng.Intn(12*60)) * time.Minute)
		dur := 15 + rng.Intn(180)
		win := model.Interval{Start: start, End: start.Add(time.Duration(dur) * time.Minute)}

		before := f.store.overlapping(table, win, 0, nil)
		_, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: table, Start: start, DurationMinutes: dur})
		if len(before) > 0 {
			assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
		} else {
			assert.NoError(t, err)
		}
		if rng.Intn(10) == 0 {
			if act := f.store.active(); len(act) > 0 {
				_, err := f.svc.CancelReservation(ctx, act[rng.Intn(len(act))].ID)
				require.NoError(t, err)
			}
		}
	}

	active := f.store.active()
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			if active[i].TableID != active[j].TableID {
				continue
			}
			assert.False(t, active[i].Interval().Overlaps(active[j].Interval()),
				"reservations %d and %d overlap", active[i].ID, active[j].ID)
		}
	}
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 3, Start: at(10, 0), DurationMinutes: 90})
	require.NoError(t, err)

	conflicts, err := f.svc.CheckAvailability(ctx, 3, at(11, 0), at(12, 0))
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = f.svc.CheckAvailability(ctx, 3, at(11, 30), at(12, 0))
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, err = f.svc.CheckAvailability(ctx, 3, at(12, 0), at(12, 0))
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	_, err = f.svc.CheckAvailability(ctx, 42, at(11, 0), at(12, 0))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 3, Start: at(10, 0)})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	// Second cancel is a no-op.
	again, err := f.svc.CancelReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, again.Status)
	assert.Equal(t, []string{queue.EventCreated, queue.EventCancelled}, f.pub.types())

	// The window is free again.
	_, err = f.svc.CreateReservation(ctx, CreateInput{ClientID: 8, TableID: 3, Start: at(10, 0)})
	require.NoError(t, err)

	_, err = f.svc.CancelReservation(ctx, 999)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestUpdateReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 3, Start: at(10, 0), DurationMinutes: 60})
	require.NoError(t, err)
	b, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 8, TableID: 3, Start: at(12, 0), DurationMinutes: 60})
	require.NoError(t, err)

	// Growing a into b's slot conflicts.
	_, err = f.svc.UpdateReservation(ctx, a.ID, UpdateInput{DurationMinutes: ptr(150)})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// Growing up to b's start is fine; a never conflicts with itself.
	updated, err := f.svc.UpdateReservation(ctx, a.ID, UpdateInput{DurationMinutes: ptr(120), PartySize: ptr(6), Notes: ptr("birthday")})
	require.NoError(t, err)
	assert.Equal(t, 120, updated.DurationMinutes)
	assert.Equal(t, 6, updated.PartySize)
	assert.Equal(t, "birthday", *updated.Notes)

	// Moving b into the past is rejected.
	_, err = f.svc.UpdateReservation(ctx, b.ID, UpdateInput{Start: ptr(clock.Add(-time.Hour))})
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	_, err = f.svc.UpdateReservation(ctx, b.ID, UpdateInput{DurationMinutes: ptr(5)})
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	// A duration large enough to wrap the end time before the start would
	// slip past the overlap check; it is rejected up front.
	_, err = f.svc.UpdateReservation(ctx, a.ID, UpdateInput{Start: ptr(at(9, 0)), DurationMinutes: ptr(200_000_000)})
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
	_, err = f.svc.UpdateReservation(ctx, b.ID, UpdateInput{DurationMinutes: ptr(24*60 + 1)})
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	// Cancelled reservations cannot be modified.
	_, err = f.svc.CancelReservation(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateReservation(ctx, b.ID, UpdateInput{PartySize: ptr(2)})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = f.svc.UpdateReservation(ctx, 999, UpdateInput{})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestDeleteReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 1, Start: at(10, 0)})
	require.NoError(t, err)
	b, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 2, Start: at(10, 0)})
	require.NoError(t, err)
	f.store.orders[b.ID] = 1

	require.NoError(t, f.svc.DeleteReservation(ctx, a.ID))
	_, err = f.svc.Get(ctx, a.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	err = f.svc.DeleteReservation(ctx, b.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestListReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 7, TableID: 1, Start: at(9+i*2, 0)})
		require.NoError(t, err)
	}
	_, err := f.svc.CreateReservation(ctx, CreateInput{ClientID: 8, TableID: 2, Start: at(9, 0)})
	require.NoError(t, err)

	page, err := f.svc.List(ctx, model.ReservationFilter{ClientID: 7, Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, at(13, 0), page.Items[0].ReservationTime)

	_, err = f.svc.List(ctx, model.ReservationFilter{Status: "PENDING"})
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
}

func TestNormalizePage(t *testing.T) {
	p, s := NormalizePage(-1, 0)
	assert.Equal(t, 0, p)
	assert.Equal(t, DefaultPageSize, s)

	_, s = NormalizePage(0, 1000)
	assert.Equal(t, MaxPageSize, s)
}
