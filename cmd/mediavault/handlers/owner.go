package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/service"
	"github.com/vaultiq/mediavault/common/bootstrap"
)

// OwnerHandler handles media owner requests
type OwnerHandler struct {
	components *bootstrap.Components
	owners     *service.OwnerService
}

// NewOwnerHandler creates a new owner handler
func NewOwnerHandler(c *container.Container) *OwnerHandler {
	return &OwnerHandler{
		components: c.Components,
		owners:     c.OwnerService,
	}
}

// RegisterOwner creates a media owner
// POST /api/v1/owners
func (h *OwnerHandler) RegisterOwner(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Kind     string `json:"kind"`
		TenantID string `json:"tenant_id"`
		Name     string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.TenantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "tenant_id is required",
		})
	}
	if req.Kind == "" {
		req.Kind = "user"
	}

	owner, err := h.owners.RegisterOwner(ctx, req.Kind, req.TenantID, req.Name)
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusCreated, owner)
}

// GetOwner returns an owner by id
// GET /api/v1/owners/:id
func (h *OwnerHandler) GetOwner(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a valid uuid",
		})
	}

	owner, err := h.owners.GetOwner(ctx, id)
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, owner)
}
