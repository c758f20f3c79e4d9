package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/repository"
)

// Kinds of slot in a timetable view.
const (
	SlotClass       = "class"
	SlotReservation = "reservation"
)

// ViewSlot is one occupied range on one day of a timetable view.
type ViewSlot struct {
	Kind          string          `json:"kind"`
	StartTime     model.TimeOfDay `json:"start_time"`
	EndTime       model.TimeOfDay `json:"end_time"`
	Title         string          `json:"title"`
	EntryID       uint64          `json:"entry_id,omitempty"`
	ReservationID uint64          `json:"reservation_id,omitempty"`
	LecturerID    *uint64         `json:"lecturer_id,omitempty"`
	Batch         string          `json:"batch,omitempty"`
	Semester      string          `json:"semester,omitempty"`
	ReservedBy    uint64          `json:"reserved_by,omitempty"`
	Attendees     int             `json:"expected_attendees,omitempty"`
}

// ViewDay holds every slot on one date.
type ViewDay struct {
	Date    model.Date    `json:"date"`
	Weekday model.Weekday `json:"weekday"`
	Slots   []ViewSlot    `json:"slots"`
}

// TimetableView is the merged schedule of a lab over a date range.
type TimetableView struct {
	Lab  model.Lab  `json:"lab"`
	From model.Date `json:"from"`
	To   model.Date `json:"to"`
	Days []ViewDay  `json:"days"`
}

// ComposeTimetable lays recurring entries and approved reservations over
// the dates from..to inclusive.  Entries repeat on their weekday;
// reservations appear on their own date.  Nothing is deduplicated: when a
// class and a reservation share a slot both are listed.  Slots within a
// day are ordered by start time, classes first on ties.
func ComposeTimetable(lab model.Lab, from, to model.Date, entries []model.TimetableEntry, reservations []model.Reservation) TimetableView {
	byDate := make(map[model.Date][]model.Reservation)
	for _, r := range reservations {
		if r.LabID == lab.ID && r.Status == model.StatusApproved {
			byDate[r.Date] = append(byDate[r.Date], r)
		}
	}
	view := TimetableView{Lab: lab, From: from, To: to, Days: make([]ViewDay, 0)}
	for d := from; !d.After(to); d = d.AddDays(1) {
		day := ViewDay{Date: d, Weekday: model.Weekday(d.Weekday()), Slots: make([]ViewSlot, 0)}
		for _, e := range entries {
			if e.LabID != lab.ID || e.DayOfWeek != day.Weekday {
				continue
			}
			day.Slots = append(day.Slots, ViewSlot{
				Kind:       SlotClass,
				StartTime:  e.StartTime,
				EndTime:    e.EndTime,
				Title:      e.Subject,
				EntryID:    e.ID,
				LecturerID: e.LecturerID,
				Batch:      e.Batch,
				Semester:   e.Semester,
			})
		}
		for _, r := range byDate[d] {
			day.Slots = append(day.Slots, ViewSlot{
				Kind:          SlotReservation,
				StartTime:     r.StartTime,
				EndTime:       r.EndTime,
				Title:         r.Purpose,
				ReservationID: r.ID,
				ReservedBy:    r.UserID,
				Attendees:     r.ExpectedAttendees,
			})
		}
		sort.SliceStable(day.Slots, func(i, j int) bool {
			a, b := day.Slots[i], day.Slots[j]
			if a.StartTime != b.StartTime {
				return a.StartTime < b.StartTime
			}
			return a.Kind == SlotClass && b.Kind != SlotClass
		})
		view.Days = append(view.Days, day)
	}
	return view
}

// LabReader loads labs.
type LabReader interface {
	Get(ctx context.Context, id uint64) (*model.Lab, error)
}

// TimetableStore persists recurring entries.
type TimetableStore interface {
	ListByLab(ctx context.Context, labID uint64) ([]model.TimetableEntry, error)
	Create(ctx context.Context, e *model.TimetableEntry) error
	Delete(ctx context.Context, id uint64) (uint64, error)
}

// ApprovedReader lists approved reservations of a lab over a date range.
type ApprovedReader interface {
	ListApprovedBetween(ctx context.Context, labID uint64, from, to model.Date) ([]model.Reservation, error)
}

// ViewInvalidator drops cached read views after a write.  Errors are the
// implementation's to log.
type ViewInvalidator interface {
	InvalidateLab(ctx context.Context, labID uint64)
	InvalidateAll(ctx context.Context)
}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateLab(context.Context, uint64) {}
func (nopInvalidator) InvalidateAll(context.Context)         {}

// TimetableService serves the merged availability view and the recurring
// schedule administration.
type TimetableService struct {
	labs         LabReader
	entries      TimetableStore
	reservations ApprovedReader
	views        ViewInvalidator
	log          *zap.Logger
	loc          *time.Location
	maxSpanDays  int
	now          func() time.Time
}

// NewTimetableService wires the view composer.  maxSpanDays bounds the
// range a single request may ask for.
func NewTimetableService(labs LabReader, entries TimetableStore, reservations ApprovedReader, views ViewInvalidator,
	log *zap.Logger, loc *time.Location, maxSpanDays int) *TimetableService {
	if views == nil {
		views = nopInvalidator{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if maxSpanDays <= 0 {
		maxSpanDays = 31
	}
	return &TimetableService{labs: labs, entries: entries, reservations: reservations, views: views,
		log: log, loc: loc, maxSpanDays: maxSpanDays, now: time.Now}
}

// GetTimetable returns the merged view of a lab between from and to, both
// YYYY-MM-DD and inclusive.  An empty from means today; an empty to means
// six days after from.
func (s *TimetableService) GetTimetable(ctx context.Context, labID uint64, fromStr, toStr string) (view *TimetableView, err error) {
	ctx, span := startSpan(ctx, "timetable.Get", model.Actor{}, labID)
	defer func() { endSpan(span, err) }()

	from := model.DateOf(s.now().In(s.loc))
	if fromStr != "" {
		if from, err = model.ParseDate(fromStr); err != nil {
			return nil, validationf("from must be in YYYY-MM-DD format")
		}
	}
	to := from.AddDays(6)
	if toStr != "" {
		if to, err = model.ParseDate(toStr); err != nil {
			return nil, validationf("to must be in YYYY-MM-DD format")
		}
	}
	if to.Before(from) {
		return nil, validationf("to must not be before from")
	}
	if from.AddDays(s.maxSpanDays - 1).Before(to) {
		return nil, validationf("A timetable view may cover at most %d days", s.maxSpanDays)
	}

	lab, err := s.labs.Get(ctx, labID)
	if err != nil {
		return nil, mapLookup(err, "Lab not found")
	}
	entries, err := s.entries.ListByLab(ctx, labID)
	if err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	approved, err := s.reservations.ListApprovedBetween(ctx, labID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list approved reservations: %w", err)
	}
	v := ComposeTimetable(*lab, from, to, entries, approved)
	return &v, nil
}

// EntryRequest describes a recurring class slot.
type EntryRequest struct {
	DayOfWeek  string
	StartTime  string
	EndTime    string
	Subject    string
	LecturerID *uint64
	Batch      string
	Semester   string
}

// AddEntry adds a recurring class to a lab's timetable.
func (s *TimetableService) AddEntry(ctx context.Context, actor model.Actor, labID uint64, req EntryRequest) (*model.TimetableEntry, error) {
	if !actor.Can(model.CapManageTimetable) {
		return nil, forbiddenf("Only administrators can edit timetables")
	}
	day, err := model.ParseWeekday(req.DayOfWeek)
	if err != nil {
		return nil, validationf("Day of week must be a weekday name such as Monday")
	}
	start, err := model.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, validationf("Start time must be in HH:MM format")
	}
	end, err := model.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, validationf("End time must be in HH:MM format")
	}
	if !(model.Slot{Start: start, End: end}).Valid() {
		return nil, validationf("End time must be after start time")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, validationf("Subject is required")
	}
	if _, err := s.labs.Get(ctx, labID); err != nil {
		return nil, mapLookup(err, "Lab not found")
	}
	e := &model.TimetableEntry{
		LabID:      labID,
		DayOfWeek:  day,
		StartTime:  start,
		EndTime:    end,
		Subject:    subject,
		LecturerID: req.LecturerID,
		Batch:      strings.TrimSpace(req.Batch),
		Semester:   strings.TrimSpace(req.Semester),
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}
	s.views.InvalidateLab(ctx, labID)
	s.log.Info("timetable entry added", zap.Uint64("entry_id", e.ID), zap.Uint64("lab_id", labID),
		zap.Stringer("day", e.DayOfWeek), zap.Stringer("start", e.StartTime), zap.Stringer("end", e.EndTime))
	return e, nil
}

// DeleteEntry removes a recurring class.
func (s *TimetableService) DeleteEntry(ctx context.Context, actor model.Actor, id uint64) error {
	if !actor.Can(model.CapManageTimetable) {
		return forbiddenf("Only administrators can edit timetables")
	}
	labID, err := s.entries.Delete(ctx, id)
	if err != nil {
		return mapLookup(err, "Timetable entry not found")
	}
	s.views.InvalidateLab(ctx, labID)
	s.log.Info("timetable entry deleted", zap.Uint64("entry_id", id), zap.Uint64("lab_id", labID))
	return nil
}

// mapLookup turns repository.ErrNotFound into a NotFound error with msg.
func mapLookup(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundf("%s", msg)
	}
	return err
}
