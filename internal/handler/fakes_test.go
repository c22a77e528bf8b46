package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

type fakeReservations struct {
	mu     sync.Mutex
	rows   map[uint64]model.Reservation
	nextID uint64
	tables map[uint64]bool
}

func newFakeReservations(tables ...uint64) *fakeReservations {
	f := &fakeReservations{rows: map[uint64]model.Reservation{}, tables: map[uint64]bool{}}
	for _, id := range tables {
		f.tables[id] = true
	}
	return f
}

func (f *fakeReservations) WithTableLock(_ context.Context, tableID uint64, fn func(repository.LockedReservations) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tables[tableID] {
		return repository.ErrNotFound
	}
	return fn(lockedFake{f})
}

func (f *fakeReservations) GetByID(_ context.Context, id uint64) (model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeReservations) overlapping(tableID uint64, start, end time.Time, exclude uint64) []model.Reservation {
	win := model.Interval{Start: start, End: end}
	out := []model.Reservation{}
	for _, r := range f.rows {
		if r.TableID == tableID && r.ID != exclude && r.Status == model.StatusActive && r.Interval().Overlaps(win) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationTime.Before(out[j].ReservationTime) })
	return out
}

func (f *fakeReservations) FindActiveForTable(_ context.Context, tableID uint64, start, end time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapping(tableID, start, end, 0), nil
}

func (f *fakeReservations) List(_ context.Context, flt model.ReservationFilter) ([]model.Reservation, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range f.rows {
		if flt.Status != "" && r.Status != flt.Status {
			continue
		}
		if flt.ClientID != 0 && r.ClientID != flt.ClientID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationTime.Before(out[j].ReservationTime) })
	return out, len(out), nil
}

func (f *fakeReservations) SetStatus(_ context.Context, id uint64, status model.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	f.rows[id] = r
	return nil
}

func (f *fakeReservations) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type lockedFake struct{ f *fakeReservations }

func (l lockedFake) ActiveOverlapping(_ context.Context, tableID uint64, start, end time.Time, excludeID uint64) ([]model.Reservation, error) {
	return l.f.overlapping(tableID, start, end, excludeID), nil
}

func (l lockedFake) GetForUpdate(_ context.Context, id uint64) (model.Reservation, error) {
	r, ok := l.f.rows[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (l lockedFake) Insert(_ context.Context, r *model.Reservation) error {
	l.f.nextID++
	r.ID = l.f.nextID
	l.f.rows[r.ID] = *r
	return nil
}

func (l lockedFake) Update(_ context.Context, r *model.Reservation) error {
	l.f.rows[r.ID] = *r
	return nil
}

type fakeTables struct {
	mu   sync.Mutex
	rows []model.Table
}

func (f *fakeTables) Create(_ context.Context, t *model.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.TableNumber == t.TableNumber {
			return repository.ErrDuplicate
		}
	}
	t.ID = uint64(len(f.rows) + 1)
	f.rows = append(f.rows, *t)
	return nil
}

func (f *fakeTables) GetByID(_ context.Context, id uint64) (model.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Table{}, repository.ErrNotFound
}

func (f *fakeTables) List(context.Context) ([]model.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Table(nil), f.rows...), nil
}

type fakeClients struct {
	mu   sync.Mutex
	rows []model.Client
}

func (f *fakeClients) Create(_ context.Context, c *model.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.Email == c.Email {
			return repository.ErrDuplicate
		}
	}
	c.ID = uint64(len(f.rows) + 1)
	f.rows = append(f.rows, *c)
	return nil
}

func (f *fakeClients) GetByID(_ context.Context, id uint64) (model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Client{}, repository.ErrNotFound
}

func (f *fakeClients) List(_ context.Context, page, size int) ([]model.Client, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := page * size
	if from > len(f.rows) {
		from = len(f.rows)
	}
	to := from + size
	if to > len(f.rows) {
		to = len(f.rows)
	}
	return append([]model.Client(nil), f.rows[from:to]...), len(f.rows), nil
}

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]model.User
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[u.Username]; ok {
		return repository.ErrDuplicate
	}
	u.ID = uint64(len(f.byName) + 1)
	u.CreatedAt = time.Now().UTC()
	f.byName[u.Username] = *u
	return nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[repository.NormalizeUsername(username)]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type recordingCache struct {
	mu     sync.Mutex
	routes []string
}

func (r *recordingCache) Invalidate(_ context.Context, route string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
	return nil
}
