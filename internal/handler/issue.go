package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/service"
)

// IssueDesk is the issue service seen by the HTTP layer.
type IssueDesk interface {
	Report(ctx context.Context, actor model.Actor, in service.IssueInput) (*model.IssueReport, error)
	List(ctx context.Context, actor model.Actor, status string) ([]model.IssueReport, error)
	Assign(ctx context.Context, actor model.Actor, id, assignee uint64) (*model.IssueReport, error)
	UpdateStatus(ctx context.Context, actor model.Actor, id uint64, status string) (*model.IssueReport, error)
}

type IssueHandler struct {
	Issues IssueDesk
	Log    *zap.Logger
}

func NewIssueHandler(issues IssueDesk, log *zap.Logger) *IssueHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &IssueHandler{Issues: issues, Log: log}
}

type issueReq struct {
	LabID       *uint64 `json:"lab_id"`
	IssueType   string  `json:"issue_type"`
	Priority    string  `json:"priority"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// Report handles POST /v1/issues.
func (h *IssueHandler) Report(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	var req issueReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	is, err := h.Issues.Report(ctx, a, service.IssueInput{
		LabID:       req.LabID,
		IssueType:   req.IssueType,
		Priority:    req.Priority,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, is)
}

// List handles GET /v1/issues[?status=].
func (h *IssueHandler) List(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Issues.List(ctx, a, c.QueryParam("status"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Assign handles PATCH /v1/issues/:id/assign.
func (h *IssueHandler) Assign(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid issue id")
	}
	var req struct {
		AssignedTo uint64 `json:"assigned_to"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	is, err := h.Issues.Assign(ctx, a, id, req.AssignedTo)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, is)
}

// UpdateStatus handles PATCH /v1/issues/:id/status.
func (h *IssueHandler) UpdateStatus(c echo.Context) error {
	a, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid issue id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	is, err := h.Issues.UpdateStatus(ctx, a, id, req.Status)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, is)
}
