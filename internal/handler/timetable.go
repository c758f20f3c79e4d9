package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/service"
)

// Timetables is the timetable service seen by the HTTP layer.
type Timetables interface {
	GetTimetable(ctx context.Context, labID uint64, from, to string) (*service.TimetableView, error)
	AddEntry(ctx context.Context, actor model.Actor, labID uint64, req service.EntryRequest) (*model.TimetableEntry, error)
	DeleteEntry(ctx context.Context, actor model.Actor, id uint64) error
}

type TimetableHandler struct {
	Timetables Timetables
	Log        *zap.Logger
}

func NewTimetableHandler(t Timetables, log *zap.Logger) *TimetableHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TimetableHandler{Timetables: t, Log: log}
}

// Get handles GET /v1/labs/:id/timetable?from=&to=.
func (h *TimetableHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid lab id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	view, err := h.Timetables.GetTimetable(ctx, id, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

type entryReq struct {
	DayOfWeek  string  `json:"day_of_week"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Subject    string  `json:"subject"`
	LecturerID *uint64 `json:"lecturer_id"`
	Batch      string  `json:"batch"`
	Semester   string  `json:"semester"`
}

// AddEntry handles POST /v1/labs/:id/timetable.
func (h *TimetableHandler) AddEntry(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid lab id")
	}
	var req entryReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	e, err := h.Timetables.AddEntry(ctx, a, id, service.EntryRequest{
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Subject:    req.Subject,
		LecturerID: req.LecturerID,
		Batch:      req.Batch,
		Semester:   req.Semester,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// DeleteEntry handles DELETE /v1/timetable/:id.
func (h *TimetableHandler) DeleteEntry(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Timetables.DeleteEntry(ctx, a, id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
