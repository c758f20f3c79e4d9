package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geocms/lab-reservation/internal/handler"
	"github.com/geocms/lab-reservation/internal/middleware"
	"github.com/geocms/lab-reservation/internal/model"
)

// RegisterReservations registers requester endpoints under /v1 and the
// review endpoints under /v1/admin.  Write endpoints share the limiter.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, limit echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(allRoles...))
	g.POST("/reservations", h.Submit, limit)
	g.GET("/my-reservations", h.ListMine)
	g.GET("/reservations/:id", h.Get)
	// Cancels a pending request; owner only.
	g.DELETE("/reservations/:id", h.Cancel, limit)

	admin := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleStaff),
	)
	admin.GET("/reservations", h.ListByStatus)
	admin.POST("/reservations/bulk", h.Bulk, limit)
	admin.POST("/reservations/:id/approve", h.Approve)
	admin.POST("/reservations/:id/reject", h.Reject)
	admin.POST("/reservations/:id/complete", h.Complete)
	admin.POST("/reservations/:id/revoke", h.Revoke)
}

// RegisterIssues registers the issue desk.
func RegisterIssues(e *echo.Echo, h *handler.IssueHandler, limit echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(allRoles...))
	g.POST("/issues", h.Report, limit)
	g.GET("/issues", h.List)

	staff := middleware.RequireRole(model.RoleAdmin, model.RoleStaff)
	g.PATCH("/issues/:id/assign", h.Assign, staff)
	g.PATCH("/issues/:id/status", h.UpdateStatus, staff)
}
