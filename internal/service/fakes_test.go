package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// memStore is an in-memory ReservationStore.  A single mutex plays the
// role of the per-table row lock.
type memStore struct {
	mu     sync.Mutex
	tables map[uint64]bool
	rows   map[uint64]model.Reservation
	orders map[uint64]int
	nextID uint64
}

func newMemStore(tableIDs ...uint64) *memStore {
	s := &memStore{tables: map[uint64]bool{}, rows: map[uint64]model.Reservation{}, orders: map[uint64]int{}}
	for _, id := range tableIDs {
		s.tables[id] = true
	}
	return s
}

func (s *memStore) WithTableLock(ctx context.Context, tableID uint64, fn func(repository.LockedReservations) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tables[tableID] {
		return repository.ErrNotFound
	}
	tx := &memTx{s: s, staged: map[uint64]model.Reservation{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, r := range tx.staged {
		s.rows[id] = r
	}
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uint64) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *memStore) overlapping(tableID uint64, win model.Interval, excludeID uint64, extra map[uint64]model.Reservation) []model.Reservation {
	out := []model.Reservation{}
	seen := map[uint64]bool{}
	for _, src := range []map[uint64]model.Reservation{extra, s.rows} {
		for id, r := range src {
			if seen[id] {
				continue
			}
			seen[id] = true
			if r.TableID != tableID || r.Status != model.StatusActive || r.ID == excludeID {
				continue
			}
			if r.Interval().Overlaps(win) {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationTime.Before(out[j].ReservationTime) })
	return out
}

func (s *memStore) FindActiveForTable(_ context.Context, tableID uint64, start, end time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapping(tableID, model.Interval{Start: start, End: end}, 0, nil), nil
}

func (s *memStore) List(_ context.Context, f model.ReservationFilter) ([]model.Reservation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []model.Reservation{}
	for _, r := range s.rows {
		if f.ClientID != 0 && r.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ReservationTime.Before(all[j].ReservationTime) })
	from := f.Page * f.Size
	if from > len(all) {
		from = len(all)
	}
	to := from + f.Size
	if to > len(all) {
		to = len(all)
	}
	return all[from:to], len(all), nil
}

func (s *memStore) SetStatus(_ context.Context, id uint64, status model.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	s.rows[id] = r
	return nil
}

func (s *memStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	if s.orders[id] > 0 {
		return repository.ErrHasOrders
	}
	delete(s.rows, id)
	return nil
}

func (s *memStore) active() []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range s.rows {
		if r.Status == model.StatusActive {
			out = append(out, r)
		}
	}
	return out
}

type memTx struct {
	s      *memStore
	staged map[uint64]model.Reservation
}

func (t *memTx) ActiveOverlapping(_ context.Context, tableID uint64, start, end time.Time, excludeID uint64) ([]model.Reservation, error) {
	return t.s.overlapping(tableID, model.Interval{Start: start, End: end}, excludeID, t.staged), nil
}

func (t *memTx) GetForUpdate(_ context.Context, id uint64) (model.Reservation, error) {
	if r, ok := t.staged[id]; ok {
		return r, nil
	}
	r, ok := t.s.rows[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (t *memTx) Insert(_ context.Context, r *model.Reservation) error {
	t.s.nextID++
	r.ID = t.s.nextID
	t.staged[r.ID] = *r
	return nil
}

func (t *memTx) Update(_ context.Context, r *model.Reservation) error {
	t.staged[r.ID] = *r
	return nil
}

type memClients map[uint64]model.Client

func (m memClients) GetByID(_ context.Context, id uint64) (model.Client, error) {
	c, ok := m[id]
	if !ok {
		return model.Client{}, repository.ErrNotFound
	}
	return c, nil
}

type memTables map[uint64]model.Table

func (m memTables) GetByID(_ context.Context, id uint64) (model.Table, error) {
	t, ok := m[id]
	if !ok {
		return model.Table{}, repository.ErrNotFound
	}
	return t, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
