package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/service"
	"github.com/vaultiq/mediavault/common/bootstrap"
)

// MediaHandler handles media metadata and download requests
type MediaHandler struct {
	components *bootstrap.Components
	media      *service.MediaService
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(c *container.Container) *MediaHandler {
	return &MediaHandler{
		components: c.Components,
		media:      c.MediaService,
	}
}

// GetMedia returns artifact metadata
// GET /api/v1/media/:id
func (h *MediaHandler) GetMedia(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a valid uuid",
		})
	}

	artifact, err := h.media.GetMedia(ctx, id)
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, artifact)
}

// ServeOriginal streams the original file
// GET /api/v1/media/:id/file
func (h *MediaHandler) ServeOriginal(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a valid uuid",
		})
	}

	artifact, rc, err := h.media.OpenOriginal(ctx, id)
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, artifact.MimeType, rc)
}

// ServeConversion streams a named rendition
// GET /api/v1/media/:id/conversions/:name
func (h *MediaHandler) ServeConversion(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a valid uuid",
		})
	}

	artifact, rc, err := h.media.OpenConversion(ctx, id, c.Param("name"))
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, artifact.MimeType, rc)
}
