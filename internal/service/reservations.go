package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/queue"
	"github.com/geocms/lab-reservation/internal/repository"
)

// ReservationStore is the persistence the workflow needs.  It is satisfied
// by *repository.ReservationRepo.
type ReservationStore interface {
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	ListByStatus(ctx context.Context, status model.ReservationStatus) ([]model.Reservation, error)
	ListApprovedBetween(ctx context.Context, labID uint64, from, to model.Date) ([]model.Reservation, error)
	CompleteElapsed(ctx context.Context, today model.Date, now model.TimeOfDay) (int64, error)
	WithinLabLock(ctx context.Context, labID uint64, fn func(repository.ReservationTx) error) error
}

// Notifier delivers workflow events.  Failures are logged by the caller
// and never fail the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev queue.ReservationEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, queue.ReservationEvent) error { return nil }

// ReservationOptions tunes the workflow.
type ReservationOptions struct {
	// EnforceCapacity rejects requests whose attendee count exceeds the
	// lab capacity.
	EnforceCapacity bool
	// Location is the campus time zone used to decide what "today" is.
	Location *time.Location
	// ApprovalRetries bounds retries of the approval write after a
	// deadlock or lock wait timeout.
	ApprovalRetries int
	// RetryBackoff is the base delay between approval retries.
	RetryBackoff time.Duration
	// Views is told when approved reservations change so cached
	// timetable views can be dropped.
	Views ViewInvalidator
}

// ReservationService implements the lab reservation workflow: request
// validation, overlap detection and the status lifecycle.  It keeps no
// per-request state; every call stands alone against the store.
type ReservationService struct {
	store    ReservationStore
	notifier Notifier
	log      *zap.Logger
	opts     ReservationOptions
	now      func() time.Time
}

// NewReservationService wires the workflow.  A nil notifier disables
// notifications and a nil logger disables logging.
func NewReservationService(store ReservationStore, notifier Notifier, log *zap.Logger, opts ReservationOptions) *ReservationService {
	if store == nil {
		panic("nil store passed to NewReservationService")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Views == nil {
		opts.Views = nopInvalidator{}
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 25 * time.Millisecond
	}
	return &ReservationService{store: store, notifier: notifier, log: log, opts: opts, now: time.Now}
}

// SubmitRequest is a reservation request as received from a client.
// Date is YYYY-MM-DD and the times are HH:MM in campus time.
type SubmitRequest struct {
	LabID               uint64
	Date                string
	StartTime           string
	EndTime             string
	Purpose             string
	ExpectedAttendees   int
	SpecialRequirements string
}

// Submit validates req and stores it as a pending reservation.  The overlap
// check and the insert run under the lab lock, so two overlapping requests
// cannot both be accepted.
func (s *ReservationService) Submit(ctx context.Context, actor model.Actor, req SubmitRequest) (res *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "reservations.Submit", actor, req.LabID)
	defer func() { endSpan(span, err) }()

	if !actor.Can(model.CapRequestReservation) {
		return nil, forbiddenf("Your role cannot request lab reservations")
	}
	if req.LabID == 0 {
		return nil, validationf("Lab is required")
	}
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		return nil, validationf("Purpose is required")
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, validationf("Reservation date must be in YYYY-MM-DD format")
	}
	start, err := model.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, validationf("Start time must be in HH:MM format")
	}
	end, err := model.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, validationf("End time must be in HH:MM format")
	}
	slot := model.Slot{Start: start, End: end}
	if !slot.Valid() {
		return nil, validationf("End time must be after start time")
	}
	now := s.now()
	if date.Before(model.DateOf(now.In(s.opts.Location))) {
		return nil, validationf("Reservation date cannot be in the past")
	}
	if req.ExpectedAttendees < 1 {
		return nil, validationf("Expected attendees must be at least 1")
	}

	r := &model.Reservation{
		LabID:             req.LabID,
		UserID:            actor.UserID,
		Date:              date,
		StartTime:         start,
		EndTime:           end,
		Purpose:           purpose,
		ExpectedAttendees: req.ExpectedAttendees,
		Status:            model.StatusPending,
		RequestDate:       now.UTC(),
	}
	if sr := strings.TrimSpace(req.SpecialRequirements); sr != "" {
		r.SpecialRequirements = &sr
	}

	var lab model.Lab
	err = s.store.WithinLabLock(ctx, req.LabID, func(tx repository.ReservationTx) error {
		lab = tx.Lab()
		if lab.Status != model.LabAvailable {
			return validationf("Lab %s is not available for reservation (status: %s)", lab.Code, lab.Status)
		}
		if s.opts.EnforceCapacity && req.ExpectedAttendees > lab.Capacity {
			return validationf("Expected attendees (%d) exceed lab capacity (%d)", req.ExpectedAttendees, lab.Capacity)
		}
		existing, err := tx.ListOnDate(ctx, date, model.StatusPending, model.StatusApproved)
		if err != nil {
			return err
		}
		if c := firstOverlap(existing, slot, 0); c != nil {
			return overlapError(c)
		}
		return tx.Insert(ctx, r)
	})
	if err != nil {
		return nil, s.storeError(err, "Lab not found")
	}

	s.log.Info("reservation submitted",
		zap.Uint64("reservation_id", r.ID), zap.Uint64("lab_id", r.LabID),
		zap.Uint64("user_id", r.UserID), zap.String("date", r.Date.String()),
		zap.Stringer("start", r.StartTime), zap.Stringer("end", r.EndTime))
	s.notify(ctx, queue.NewReservationEvent(queue.EventSubmitted, queue.AudienceStaff, *r, lab, actor.UserID, now))
	return r, nil
}

// Approve moves a pending reservation to approved.  The overlap check is
// repeated against approved reservations under the lab lock so that two
// reviewers approving overlapping requests at once cannot both succeed.
// Requests whose date has already passed cannot be approved.
func (s *ReservationService) Approve(ctx context.Context, actor model.Actor, id uint64, notes string) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, edge{
		op:       "reservations.Approve",
		review:   true,
		decision: true,
		from:     model.StatusPending,
		to:       model.StatusApproved,
		notes:    notes,
		event:    queue.EventApproved,
		retry:    true,
		check: func(ctx context.Context, tx repository.ReservationTx, r *model.Reservation) error {
			if today := model.DateOf(s.now().In(s.opts.Location)); r.Date.Before(today) {
				return invalidStatef("Reservation date %s has passed and can no longer be approved", r.Date)
			}
			approved, err := tx.ListOnDate(ctx, r.Date, model.StatusApproved)
			if err != nil {
				return err
			}
			if c := firstOverlap(approved, r.Slot(), r.ID); c != nil {
				return overlapError(c)
			}
			return nil
		},
	})
}

// Reject moves a pending reservation to rejected.  A reason is required.
func (s *ReservationService) Reject(ctx context.Context, actor model.Actor, id uint64, reason string) (*model.Reservation, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, edge{
		op:       "reservations.Reject",
		review:   true,
		decision: true,
		from:     model.StatusPending,
		to:       model.StatusRejected,
		reason:   reason,
		event:    queue.EventRejected,
		pre: func() error {
			if reason == "" {
				return validationf("A rejection reason is required")
			}
			return nil
		},
	})
}

// Cancel lets the requester withdraw their own pending reservation.  No
// other user may cancel it, whatever their role.
func (s *ReservationService) Cancel(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, edge{
		op:        "reservations.Cancel",
		ownerOnly: true,
		from:      model.StatusPending,
		to:        model.StatusCancelled,
		event:     queue.EventCancelled,
		audience:  queue.AudienceStaff,
	})
}

// Complete marks an approved reservation as used.
func (s *ReservationService) Complete(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, edge{
		op:     "reservations.Complete",
		review: true,
		from:   model.StatusApproved,
		to:     model.StatusCompleted,
		event:  queue.EventCompleted,
	})
}

// Revoke cancels an already approved reservation on behalf of staff, for
// example when the lab has to close.  The reason is appended to the notes
// and the approver is kept.
func (s *ReservationService) Revoke(ctx context.Context, actor model.Actor, id uint64, reason string) (*model.Reservation, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, edge{
		op:     "reservations.Revoke",
		review: true,
		from:   model.StatusApproved,
		to:     model.StatusCancelled,
		remark: reason,
		event:  queue.EventRevoked,
		pre: func() error {
			if reason == "" {
				return validationf("A reason is required to revoke an approved reservation")
			}
			return nil
		},
	})
}

// edge describes one lifecycle edge.
type edge struct {
	op string
	// review requires CapReviewReservation; ownerOnly requires the actor
	// to be the requester.
	review    bool
	ownerOnly bool
	// decision records the actor as approved_by.
	decision bool
	from, to model.ReservationStatus
	notes    string
	reason   string
	// remark is appended to the notes and sent as the event reason.
	remark   string
	event    string
	audience string
	retry    bool
	pre      func() error
	check    func(ctx context.Context, tx repository.ReservationTx, r *model.Reservation) error
}

// allows reports whether a reservation in st can take this edge.
func (e edge) allows(st model.ReservationStatus) bool {
	return st == e.from && st.CanTransition(e.to)
}

func (s *ReservationService) transition(ctx context.Context, actor model.Actor, id uint64, e edge) (res *model.Reservation, err error) {
	ctx, span := startSpan(ctx, e.op, actor, 0)
	defer func() { endSpan(span, err) }()

	if e.review && !actor.Can(model.CapReviewReservation) {
		return nil, forbiddenf("Only staff or administrators can review reservations")
	}
	if e.pre != nil {
		if err := e.pre(); err != nil {
			return nil, err
		}
	}
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "Reservation not found")
	}
	if e.ownerOnly && cur.UserID != actor.UserID {
		return nil, forbiddenf("Only the requester can cancel this reservation")
	}
	if !e.allows(cur.Status) {
		return nil, wrongState(cur.Status, e.to)
	}

	now := s.now()
	change := model.StatusChange{To: e.to, ActorID: actor.UserID, At: now.UTC(), Review: e.decision}
	if e.remark != "" {
		r := e.remark
		change.Remark = &r
	}
	if e.notes != "" {
		n := e.notes
		change.Notes = &n
	}
	if e.reason != "" {
		r := e.reason
		change.RejectionReason = &r
	}

	var lab model.Lab
	attempts := 1
	if e.retry {
		attempts += s.opts.ApprovalRetries
	}
	for attempt := 1; ; attempt++ {
		err = s.store.WithinLabLock(ctx, cur.LabID, func(tx repository.ReservationTx) error {
			lab = tx.Lab()
			locked, err := tx.Get(ctx, id)
			if err != nil {
				return err
			}
			if !e.allows(locked.Status) {
				return wrongState(locked.Status, e.to)
			}
			if e.check != nil {
				if err := e.check(ctx, tx, locked); err != nil {
					return err
				}
			}
			if err := tx.Transition(ctx, id, e.from, change); err != nil {
				return err
			}
			cur = locked
			return nil
		})
		if err == nil || attempt >= attempts || !repository.IsTransient(err) {
			break
		}
		s.log.Warn("retrying reservation update after transient storage error",
			zap.String("op", e.op), zap.Uint64("reservation_id", id), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.opts.RetryBackoff):
		}
	}
	if err != nil {
		return nil, s.storeError(err, "Reservation not found")
	}

	applyChange(cur, change)
	if e.from == model.StatusApproved || e.to == model.StatusApproved {
		s.opts.Views.InvalidateLab(ctx, cur.LabID)
	}
	s.log.Info("reservation status changed",
		zap.Uint64("reservation_id", id), zap.String("from", string(e.from)),
		zap.String("to", string(e.to)), zap.Uint64("actor_id", actor.UserID))
	audience := e.audience
	if audience == "" {
		audience = queue.AudienceRequester
	}
	ev := queue.NewReservationEvent(e.event, audience, *cur, lab, actor.UserID, now)
	if e.remark != "" {
		ev.Reason = e.remark
	}
	s.notify(ctx, ev)
	return cur, nil
}

func applyChange(r *model.Reservation, ch model.StatusChange) {
	r.Status = ch.To
	if ch.Review {
		by, at := ch.ActorID, ch.At
		r.ApprovedBy = &by
		r.ApprovedDate = &at
		r.RejectionReason = ch.RejectionReason
		if ch.Notes != nil {
			r.Notes = ch.Notes
		}
	}
	if ch.Remark != nil {
		r.Notes = model.AppendNote(r.Notes, *ch.Remark)
	}
}

// Get returns one reservation.  Requesters see their own; reviewers see all.
func (s *ReservationService) Get(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "Reservation not found")
	}
	if r.UserID != actor.UserID && !actor.Can(model.CapViewAllReservations) {
		return nil, forbiddenf("You cannot view this reservation")
	}
	return r, nil
}

// ListMine returns the actor's own reservations.
func (s *ReservationService) ListMine(ctx context.Context, actor model.Actor) ([]model.Reservation, error) {
	return s.store.ListByUser(ctx, actor.UserID)
}

// ListByStatus returns every reservation in a state; reviewers only.
func (s *ReservationService) ListByStatus(ctx context.Context, actor model.Actor, status model.ReservationStatus) ([]model.Reservation, error) {
	if !actor.Can(model.CapViewAllReservations) {
		return nil, forbiddenf("Only staff or administrators can list all reservations")
	}
	return s.store.ListByStatus(ctx, status)
}

// SweepCompleted marks approved reservations that have ended as completed.
func (s *ReservationService) SweepCompleted(ctx context.Context) (int64, error) {
	now := s.now().In(s.opts.Location)
	n, err := s.store.CompleteElapsed(ctx, model.DateOf(now), model.ClockOf(now))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.opts.Views.InvalidateAll(ctx)
		s.log.Info("completed elapsed reservations", zap.Int64("count", n))
	}
	return n, nil
}

func (s *ReservationService) notify(ctx context.Context, ev queue.ReservationEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn("reservation notification failed",
			zap.String("type", ev.Type), zap.Uint64("reservation_id", ev.ReservationID), zap.Error(err))
	}
}

// storeError converts repository errors into typed errors.  Typed errors
// raised inside a locked section pass through unchanged.
func (s *ReservationService) storeError(err error, notFound string) error {
	var typed *Error
	switch {
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, repository.ErrNotFound):
		return notFoundf("%s", notFound)
	case errors.Is(err, repository.ErrConflict):
		return invalidStatef("Reservation was modified concurrently; reload and try again")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("reservation store: %w", err)
}

func firstOverlap(existing []model.Reservation, slot model.Slot, exclude uint64) *model.Reservation {
	for i := range existing {
		if existing[i].ID != exclude && existing[i].Slot().Overlaps(slot) {
			return &existing[i]
		}
	}
	return nil
}

func overlapError(c *model.Reservation) *Error {
	if c.Status == model.StatusApproved {
		return conflictf("This slot overlaps an existing approved reservation (%s-%s)", c.StartTime, c.EndTime)
	}
	return conflictf("This slot overlaps an existing pending request (%s-%s)", c.StartTime, c.EndTime)
}

func wrongState(cur, to model.ReservationStatus) *Error {
	if cur.Terminal() {
		return invalidStatef("Reservation is already %s and can no longer change", cur)
	}
	return invalidStatef("Reservation is %s and cannot be %s", cur, to)
}
