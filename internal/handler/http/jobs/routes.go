package jobs

import (
	"github.com/labstack/echo/v4"
)

// SetupRoutes registers the job-submission routes with the Echo instance.
// Follows the separated routes pattern every handler in this pack uses
// (route registration kept apart from handler logic).
func (h *Handler) SetupRoutes(e *echo.Echo) {
	e.POST("/jobs", h.HandleExecute)
	e.POST("/jobs/queue", h.HandleQueue)
}
