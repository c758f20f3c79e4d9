package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geocms/lab-reservation/internal/handler"
	"github.com/geocms/lab-reservation/internal/middleware"
	"github.com/geocms/lab-reservation/internal/model"
)

// RegisterLabs registers the lab directory and timetable routes.  Reads
// are open to every authenticated role and go through the response cache;
// the services decide who may write.
func RegisterLabs(e *echo.Echo, labs *handler.LabHandler, tt *handler.TimetableHandler, cache *middleware.ResponseCache, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(allRoles...))
	cached := cache.Middleware()

	g.GET("/labs", labs.List, cached)
	g.GET("/labs/:id", labs.Get, cached)
	g.GET("/labs/:id/timetable", tt.Get, cached)

	adminOnly := middleware.RequireRole(model.RoleAdmin)
	g.POST("/labs", labs.Create, adminOnly)
	g.PUT("/labs/:id", labs.Update, adminOnly)
	g.POST("/labs/:id/timetable", tt.AddEntry, adminOnly)
	g.DELETE("/timetable/:id", tt.DeleteEntry, adminOnly)

	g.PATCH("/labs/:id/status", labs.SetStatus, middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
}
