package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/handlers"
)

// RegisterAdminRoutes registers operational maintenance routes
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAdminHandler(c)

	admin := e.Group("/api/v1/admin")
	{
		admin.POST("/quarantine/prune", h.PruneQuarantine)     // POST /api/v1/admin/quarantine/prune
		admin.POST("/cleanup/purge", h.PurgeCleanupStates)     // POST /api/v1/admin/cleanup/purge
		admin.POST("/breaker/:scanner/reset", h.ResetBreaker)  // POST /api/v1/admin/breaker/clamav/reset
	}
}
