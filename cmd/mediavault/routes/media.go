package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/handlers"
	commonmiddleware "github.com/vaultiq/mediavault/common/middleware"
)

// RegisterMediaRoutes registers upload and media serving routes
func RegisterMediaRoutes(e *echo.Echo, c *container.Container) {
	uploadHandler := handlers.NewUploadHandler(c)
	mediaHandler := handlers.NewMediaHandler(c)

	rl := c.Components.Config.RateLimit

	// Uploads are the expensive path; reads stay unthrottled.
	owners := e.Group("/api/v1/owners",
		commonmiddleware.GlobalRateLimitMiddleware(c.RateLimiter, int64(rl.GlobalLimit), rl.WindowSeconds),
	)
	{
		owners.POST("/:owner_id/media/:collection", uploadHandler.Upload,
			commonmiddleware.OwnerRateLimitMiddleware(c.RateLimiter, int64(rl.OwnerLimit), rl.WindowSeconds),
		) // POST /api/v1/owners/{id}/media/avatar
	}

	media := e.Group("/api/v1/media")
	{
		media.GET("/:id", mediaHandler.GetMedia)                          // GET /api/v1/media/{id}
		media.GET("/:id/file", mediaHandler.ServeOriginal)                // GET /api/v1/media/{id}/file
		media.GET("/:id/conversions/:name", mediaHandler.ServeConversion) // GET /api/v1/media/{id}/conversions/thumb
	}
}
