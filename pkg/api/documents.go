package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sbportal/editlock/pkg/controller"
	"github.com/sbportal/editlock/pkg/middleware/identity"
	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/server/router"
	"github.com/sbportal/editlock/pkg/versionguard"
)

// DocumentsController handles version-checked document reads and writes.
type DocumentsController struct {
	guard *versionguard.Guard
	log   logger.Logger
}

// NewDocumentsController creates a documents controller.
func NewDocumentsController(guard *versionguard.Guard, log logger.Logger) *DocumentsController {
	return &DocumentsController{guard: guard, log: log}
}

// SaveRequest is the body of PUT /documents/:id. ExpectedVersion nil means
// an unconditional write, creating the document at version 1 when absent.
type SaveRequest struct {
	Content         json.RawMessage `json:"content"`
	ExpectedVersion *int64          `json:"expected_version"`
}

// SaveResponse carries the version assigned to an applied write.
type SaveResponse struct {
	Version int64 `json:"version"`
}

// DocumentResponse is the full document record.
type DocumentResponse struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	Content   json.RawMessage `json:"content"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Save handles PUT /documents/:id. Writes pass the version check regardless
// of lock state; a stale expected version gets 409 with the authoritative
// current version and is never retried server-side.
func (dc *DocumentsController) Save(c router.Context) error {
	if _, ok := identity.FromContext(c.Request().Context()); !ok {
		return controller.Error(c, controller.NewUnauthorizedError("authentication required"))
	}

	var req SaveRequest
	if err := c.Bind(&req); err != nil {
		return controller.Error(c, controller.NewValidationError("invalid request body", nil))
	}
	if len(req.Content) == 0 {
		return controller.Error(c, controller.NewValidationError("content is required", nil))
	}

	result, err := dc.guard.CheckAndApply(c.Request().Context(), c.Param("id"), req.ExpectedVersion, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, versionguard.ErrNotFound):
			return controller.Error(c, controller.NewNotFoundError("document not found"))
		case errors.Is(err, versionguard.ErrInvalidArgument):
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		default:
			return controller.Error(c, controller.NewInternalError("failed to save document", err))
		}
	}

	if !result.Applied {
		return controller.Error(c, controller.NewConflictError(
			"document was modified by another user",
			map[string]interface{}{"current_version": result.CurrentVersion}))
	}

	return controller.Success(c, SaveResponse{Version: result.NewVersion})
}

// Get handles GET /documents/:id.
func (dc *DocumentsController) Get(c router.Context) error {
	doc, err := dc.guard.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, versionguard.ErrNotFound):
			return controller.Error(c, controller.NewNotFoundError("document not found"))
		case errors.Is(err, versionguard.ErrInvalidArgument):
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		default:
			return controller.Error(c, controller.NewInternalError("failed to load document", err))
		}
	}

	return controller.Success(c, DocumentResponse{
		ID:        doc.ID,
		Version:   doc.Version,
		Content:   doc.Content,
		UpdatedAt: doc.UpdatedAt,
	})
}
