package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/service"
)

// ReservationWorkflow is the part of the reservation service the HTTP
// layer drives.  Satisfied by *service.ReservationService.
type ReservationWorkflow interface {
	Submit(ctx context.Context, actor model.Actor, req service.SubmitRequest) (*model.Reservation, error)
	Approve(ctx context.Context, actor model.Actor, id uint64, notes string) (*model.Reservation, error)
	Reject(ctx context.Context, actor model.Actor, id uint64, reason string) (*model.Reservation, error)
	Cancel(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error)
	Complete(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error)
	Revoke(ctx context.Context, actor model.Actor, id uint64, reason string) (*model.Reservation, error)
	BulkProcess(ctx context.Context, actor model.Actor, ids []uint64, action, text string) (*service.BulkResult, error)
	Get(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error)
	ListMine(ctx context.Context, actor model.Actor) ([]model.Reservation, error)
	ListByStatus(ctx context.Context, actor model.Actor, status model.ReservationStatus) ([]model.Reservation, error)
}

// ReservationHandler serves requester and reviewer reservation endpoints.
// Authorization beyond authentication is left to the workflow.
type ReservationHandler struct {
	Workflow ReservationWorkflow
	Log      *zap.Logger
}

func NewReservationHandler(w ReservationWorkflow, log *zap.Logger) *ReservationHandler {
	if w == nil {
		panic("nil workflow passed to NewReservationHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationHandler{Workflow: w, Log: log}
}

type submitReq struct {
	LabID               uint64 `json:"lab_id"`
	ReservationDate     string `json:"reservation_date"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	Purpose             string `json:"purpose"`
	ExpectedAttendees   int    `json:"expected_attendees"`
	SpecialRequirements string `json:"special_requirements"`
}

// Submit handles POST /v1/reservations.
func (h *ReservationHandler) Submit(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	var req submitReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	r, err := h.Workflow.Submit(ctx, a, service.SubmitRequest{
		LabID:               req.LabID,
		Date:                req.ReservationDate,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Purpose:             req.Purpose,
		ExpectedAttendees:   req.ExpectedAttendees,
		SpecialRequirements: req.SpecialRequirements,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Workflow.ListMine(ctx, a)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	r, err := h.Workflow.Get(ctx, a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	return h.change(c, func(ctx context.Context, a model.Actor, id uint64, _ reviewReq) (*model.Reservation, error) {
		return h.Workflow.Cancel(ctx, a, id)
	})
}

// ListByStatus handles GET /v1/admin/reservations?status=pending.
func (h *ReservationHandler) ListByStatus(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	status := model.StatusPending
	if s := strings.TrimSpace(c.QueryParam("status")); s != "" {
		if status, ok = model.ParseReservationStatus(strings.ToLower(s)); !ok {
			return badRequest(c, "unknown status")
		}
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Workflow.ListByStatus(ctx, a, status)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

type reviewReq struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// Approve handles POST /v1/admin/reservations/:id/approve.
func (h *ReservationHandler) Approve(c echo.Context) error {
	return h.change(c, func(ctx context.Context, a model.Actor, id uint64, req reviewReq) (*model.Reservation, error) {
		return h.Workflow.Approve(ctx, a, id, req.Notes)
	})
}

// Reject handles POST /v1/admin/reservations/:id/reject.
func (h *ReservationHandler) Reject(c echo.Context) error {
	return h.change(c, func(ctx context.Context, a model.Actor, id uint64, req reviewReq) (*model.Reservation, error) {
		return h.Workflow.Reject(ctx, a, id, req.Reason)
	})
}

// Complete handles POST /v1/admin/reservations/:id/complete.
func (h *ReservationHandler) Complete(c echo.Context) error {
	return h.change(c, func(ctx context.Context, a model.Actor, id uint64, _ reviewReq) (*model.Reservation, error) {
		return h.Workflow.Complete(ctx, a, id)
	})
}

// Revoke handles POST /v1/admin/reservations/:id/revoke.
func (h *ReservationHandler) Revoke(c echo.Context) error {
	return h.change(c, func(ctx context.Context, a model.Actor, id uint64, req reviewReq) (*model.Reservation, error) {
		return h.Workflow.Revoke(ctx, a, id, req.Reason)
	})
}

// change runs one status transition on the reservation named by :id.  The
// body is optional.
func (h *ReservationHandler) change(c echo.Context, fn func(context.Context, model.Actor, uint64, reviewReq) (*model.Reservation, error)) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req reviewReq
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	r, err := fn(ctx, a, id, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

type bulkReq struct {
	IDs    []uint64 `json:"ids"`
	Action string   `json:"action"`
	Notes  string   `json:"notes"`
	Reason string   `json:"reason"`
}

// Bulk handles POST /v1/admin/reservations/bulk.  Per-item failures are
// part of a 200 response; only a request that could not be attempted at
// all gets an error status.
func (h *ReservationHandler) Bulk(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	var req bulkReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.IDs) > 200 {
		return badRequest(c, "at most 200 reservations per request")
	}
	text := req.Notes
	if strings.EqualFold(strings.TrimSpace(req.Action), service.BulkReject) {
		text = req.Reason
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), bulkTimeout(len(req.IDs)))
	defer cancel()
	res, err := h.Workflow.BulkProcess(ctx, a, req.IDs, req.Action, text)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// bulkTimeout budgets a batch: each item runs its own transaction and
// publishes its own notification.
func bulkTimeout(n int) time.Duration {
	return requestTimeout + time.Duration(n)*bulkItemTimeout
}
