package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/cmd/mediavault/repository"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/quarantine"
	"github.com/vaultiq/mediavault/common/scan"
	"github.com/vaultiq/mediavault/common/tenantpath"
)

// writeError maps a service error to an HTTP response with a stable error
// code. Scanner output, filesystem paths, and other internals never reach
// the client.
func writeError(c echo.Context, log *logger.Logger, err error) error {
	var validationErr *scan.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error_code": validationErr.Code,
		})
	}

	var rejection *scan.Rejection
	if errors.As(err, &rejection) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error_code": "content_rejected",
		})
	}

	var unavailable *scan.UnavailableError
	if errors.As(err, &unavailable) {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error_code": "scanner_unavailable",
			"retryable":  true,
		})
	}

	var infraErr *scan.InfraError
	if errors.As(err, &infraErr) {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error_code": "scan_failed_transient",
			"retryable":  true,
		})
	}

	var configErr *scan.ConfigError
	if errors.As(err, &configErr) {
		// Operator problem, not a user problem. Details go to the log.
		log.Error("scanner misconfigured", "scanner", configErr.ScannerID, "reason", configErr.Reason, "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error_code": "scanner_misconfigured",
			"retryable":  false,
		})
	}

	var pathErr *tenantpath.PathSafetyError
	if errors.As(err, &pathErr) {
		log.Security("path safety violation surfaced to client",
			"path", pathErr.Path,
			"reason", pathErr.Reason)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error_code": "invalid_path",
		})
	}

	var integrityErr *quarantine.IntegrityError
	if errors.As(err, &integrityErr) {
		log.Error("quarantine integrity failure", "op", integrityErr.Op, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error_code": "storage_failure",
		})
	}

	var transitionErr *models.IllegalTransitionError
	if errors.As(err, &transitionErr) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error_code": "conflicting_state",
		})
	}

	switch {
	case errors.Is(err, repository.ErrOwnerNotFound):
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error_code": "owner_not_found",
		})
	case errors.Is(err, repository.ErrMediaNotFound), errors.Is(err, quarantine.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error_code": "media_not_found",
		})
	}

	log.Error("request failed", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error_code": "internal_error",
	})
}
