package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/container"
	"github.com/vaultiq/mediavault/cmd/mediavault/middleware"
	"github.com/vaultiq/mediavault/cmd/mediavault/service"
	"github.com/vaultiq/mediavault/common/bootstrap"
)

// UploadHandler handles media upload/replace requests
type UploadHandler struct {
	components *bootstrap.Components
	upload     *service.UploadService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(c *container.Container) *UploadHandler {
	return &UploadHandler{
		components: c.Components,
		upload:     c.UploadService,
	}
}

// Upload stages, scans, and commits an upload into an owner's slot,
// replacing whatever the slot held before.
// POST /api/v1/owners/:owner_id/media/:collection
func (h *UploadHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()

	ownerID, err := uuid.Parse(c.Param("owner_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "owner_id must be a valid uuid",
		})
	}

	collection := c.Param("collection")
	profileName := c.FormValue("profile")
	if profileName == "" {
		profileName = collection
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "multipart field 'file' is required",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "could not read uploaded file",
		})
	}
	defer src.Close()

	h.components.Logger.Info("upload received",
		"owner_id", ownerID,
		"collection", collection,
		"file_name", fileHeader.Filename,
		"declared_size", fileHeader.Size)

	artifact, err := h.upload.Upload(ctx, &service.UploadRequest{
		OwnerID:       ownerID,
		CollectionKey: collection,
		ProfileName:   profileName,
		FileName:      fileHeader.Filename,
		MimeType:      fileHeader.Header.Get("Content-Type"),
		Body:          src,
		CorrelationID: middleware.RequestID(c),
	})
	if err != nil {
		return writeError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"media_id":   artifact.ID,
		"owner_id":   artifact.OwnerID,
		"collection": artifact.CollectionKey,
		"file_name":  artifact.FileName,
		"mime_type":  artifact.MimeType,
		"size_bytes": artifact.SizeBytes,
		"created_at": artifact.CreatedAt,
	})
}
