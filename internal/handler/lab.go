package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/service"
)

// LabDirectory is the lab service seen by the HTTP layer.
type LabDirectory interface {
	List(ctx context.Context, status string) ([]model.Lab, error)
	Get(ctx context.Context, id uint64) (*model.Lab, error)
	Create(ctx context.Context, actor model.Actor, in service.LabInput) (*model.Lab, error)
	Update(ctx context.Context, actor model.Actor, id uint64, in service.LabInput) (*model.Lab, error)
	SetStatus(ctx context.Context, actor model.Actor, id uint64, status string) (*model.Lab, error)
}

type LabHandler struct {
	Labs LabDirectory
	Log  *zap.Logger
}

func NewLabHandler(labs LabDirectory, log *zap.Logger) *LabHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LabHandler{Labs: labs, Log: log}
}

type labReq struct {
	Name             string `json:"name"`
	Code             string `json:"code"`
	Capacity         int    `json:"capacity"`
	Location         string `json:"location"`
	EquipmentList    string `json:"equipment_list"`
	SafetyGuidelines string `json:"safety_guidelines"`
}

func (r labReq) input() service.LabInput {
	return service.LabInput{
		Name:             r.Name,
		Code:             r.Code,
		Capacity:         r.Capacity,
		Location:         r.Location,
		EquipmentList:    r.EquipmentList,
		SafetyGuidelines: r.SafetyGuidelines,
	}
}

// List handles GET /v1/labs[?status=available].
func (h *LabHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	labs, err := h.Labs.List(ctx, c.QueryParam("status"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": labs})
}

// Get handles GET /v1/labs/:id.
func (h *LabHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid lab id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	l, err := h.Labs.Get(ctx, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

// Create handles POST /v1/labs.
func (h *LabHandler) Create(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	var req labReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	l, err := h.Labs.Create(ctx, a, req.input())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, l)
}

// Update handles PUT /v1/labs/:id.
func (h *LabHandler) Update(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid lab id")
	}
	var req labReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	l, err := h.Labs.Update(ctx, a, id, req.input())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

// SetStatus handles PATCH /v1/labs/:id/status.
func (h *LabHandler) SetStatus(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid lab id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	l, err := h.Labs.SetStatus(ctx, a, id, req.Status)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}
