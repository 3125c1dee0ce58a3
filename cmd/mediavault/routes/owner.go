package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/handlers"
)

// RegisterOwnerRoutes registers media owner routes
func RegisterOwnerRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewOwnerHandler(c)

	owners := e.Group("/api/v1/owners")
	{
		owners.POST("", h.RegisterOwner) // POST /api/v1/owners
		owners.GET("/:id", h.GetOwner)   // GET /api/v1/owners/{id}
	}
}
