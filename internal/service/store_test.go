package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/queue"
	"github.com/geocms/lab-reservation/internal/repository"
)

// memStore is an in-memory ReservationStore.  WithinLabLock holds a single
// mutex for the whole callback and rolls back on error, matching the
// row-lock transaction of the MySQL store.
type memStore struct {
	mu     sync.Mutex
	labs   map[uint64]model.Lab
	rows   map[uint64]model.Reservation
	nextID uint64

	// lockErrs are returned by successive WithinLabLock calls before fn runs.
	lockErrs []error
	lockCalls int

	sweptDate model.Date
	sweptTime model.TimeOfDay
}

func newMemStore(labs ...model.Lab) *memStore {
	s := &memStore{labs: map[uint64]model.Lab{}, rows: map[uint64]model.Reservation{}}
	for _, l := range labs {
		s.labs[l.ID] = l
	}
	return s
}

// seed stores r as is, bypassing validation.
func (s *memStore) seed(r model.Reservation) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.rows[r.ID] = r
	return r.ID
}

func (s *memStore) status(id uint64) model.ReservationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

func (s *memStore) Get(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) list(keep func(model.Reservation) bool) []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, r := range s.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool { return r.UserID == userID }), nil
}

func (s *memStore) ListByStatus(_ context.Context, st model.ReservationStatus) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool { return r.Status == st }), nil
}

func (s *memStore) ListApprovedBetween(_ context.Context, labID uint64, from, to model.Date) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool {
		return r.LabID == labID && r.Status == model.StatusApproved && !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

func (s *memStore) CompleteElapsed(_ context.Context, today model.Date, now model.TimeOfDay) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweptDate, s.sweptTime = today, now
	var n int64
	for id, r := range s.rows {
		if r.Status == model.StatusApproved && (r.Date.Before(today) || (r.Date == today && r.EndTime <= now)) {
			r.Status = model.StatusCompleted
			s.rows[id] = r
			n++
		}
	}
	return n, nil
}

func (s *memStore) WithinLabLock(_ context.Context, labID uint64, fn func(repository.ReservationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockCalls++
	if len(s.lockErrs) > 0 {
		err := s.lockErrs[0]
		s.lockErrs = s.lockErrs[1:]
		return err
	}
	lab, ok := s.labs[labID]
	if !ok {
		return repository.ErrNotFound
	}
	snapshot := make(map[uint64]model.Reservation, len(s.rows))
	for k, v := range s.rows {
		snapshot[k] = v
	}
	next := s.nextID
	if err := fn(&memTx{s: s, lab: lab}); err != nil {
		s.rows, s.nextID = snapshot, next
		return err
	}
	return nil
}

type memTx struct {
	s   *memStore
	lab model.Lab
}

func (t *memTx) Lab() model.Lab { return t.lab }

func (t *memTx) Get(_ context.Context, id uint64) (*model.Reservation, error) {
	r, ok := t.s.rows[id]
	if !ok || r.LabID != t.lab.ID {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (t *memTx) ListOnDate(_ context.Context, date model.Date, statuses ...model.ReservationStatus) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	for _, r := range t.s.rows {
		if r.LabID != t.lab.ID || r.Date != date {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (t *memTx) Insert(_ context.Context, r *model.Reservation) error {
	t.s.nextID++
	r.ID = t.s.nextID
	t.s.rows[r.ID] = *r
	return nil
}

func (t *memTx) Transition(_ context.Context, id uint64, from model.ReservationStatus, ch model.StatusChange) error {
	r, ok := t.s.rows[id]
	if !ok || r.Status != from {
		return repository.ErrConflict
	}
	applyChange(&r, ch)
	t.s.rows[id] = r
	return nil
}

// recorder collects notifications and cache invalidations.
type recorder struct {
	mu       sync.Mutex
	events   []queue.ReservationEvent
	labs     []uint64
	all      int
	notifyFn func(queue.ReservationEvent) error
}

func (r *recorder) Notify(_ context.Context, ev queue.ReservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.notifyFn != nil {
		return r.notifyFn(ev)
	}
	return nil
}

func (r *recorder) InvalidateLab(_ context.Context, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labs = append(r.labs, id)
}

func (r *recorder) InvalidateAll(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type + "/" + ev.Audience
	}
	return out
}

var (
	labL = model.Lab{ID: 7, Name: "GIS Lab", Code: "GIS-1", Capacity: 30, Status: model.LabAvailable}

	student  = model.Actor{UserID: 100, Role: model.RoleStudent}
	lecturer = model.Actor{UserID: 101, Role: model.RoleLecturer}
	staff    = model.Actor{UserID: 200, Role: model.RoleStaff}
	admin    = model.Actor{UserID: 300, Role: model.RoleAdmin}

	// 2025-06-01 08:00 UTC.
	fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
)

func newTestService(store *memStore, rec *recorder, opts ReservationOptions) *ReservationService {
	opts.Views = rec
	opts.RetryBackoff = time.Millisecond
	svc := NewReservationService(store, rec, nil, opts)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func req(date, start, end string) SubmitRequest {
	return SubmitRequest{LabID: labL.ID, Date: date, StartTime: start, EndTime: end, Purpose: "Remote sensing practical", ExpectedAttendees: 20}
}

func mustTime(s string) model.TimeOfDay {
	t, err := model.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}
