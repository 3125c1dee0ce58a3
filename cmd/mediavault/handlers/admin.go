package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/service"
	"github.com/vaultiq/mediavault/common/bootstrap"
)

// AdminHandler handles operational maintenance endpoints
type AdminHandler struct {
	components  *bootstrap.Components
	maintenance *service.MaintenanceService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(c *container.Container) *AdminHandler {
	return &AdminHandler{
		components:  c.Components,
		maintenance: c.MaintenanceService,
	}
}

// PruneQuarantine removes stale quarantine entries and orphaned sidecars
// POST /api/v1/admin/quarantine/prune
func (h *AdminHandler) PruneQuarantine(c echo.Context) error {
	ctx := c.Request().Context()

	pruned, orphans, err := h.maintenance.PruneQuarantine(ctx)
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"pruned":          pruned,
		"orphan_sidecars": orphans,
	})
}

// PurgeCleanupStates force-flushes cleanup payloads past their TTL
// POST /api/v1/admin/cleanup/purge
func (h *AdminHandler) PurgeCleanupStates(c echo.Context) error {
	ctx := c.Request().Context()

	purged, err := h.maintenance.PurgeCleanupStates(ctx)
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"purged": purged,
	})
}

// ResetBreaker clears a scanner's circuit breaker counter
// POST /api/v1/admin/breaker/:scanner/reset
func (h *AdminHandler) ResetBreaker(c echo.Context) error {
	ctx := c.Request().Context()

	scannerID := c.Param("scanner")
	if scannerID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "scanner id is required",
		})
	}

	if err := h.maintenance.ResetBreaker(ctx, scannerID); err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"scanner": scannerID,
		"reset":   true,
	})
}
