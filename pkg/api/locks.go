// Package api exposes the lock and document HTTP surface.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sbportal/editlock/pkg/controller"
	"github.com/sbportal/editlock/pkg/lease"
	"github.com/sbportal/editlock/pkg/middleware/identity"
	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/server/router"
)

// LocksController handles lease acquire, heartbeat, release and lookup.
type LocksController struct {
	manager *lease.Manager
	log     logger.Logger
}

// NewLocksController creates a locks controller.
func NewLocksController(manager *lease.Manager, log logger.Logger) *LocksController {
	return &LocksController{manager: manager, log: log}
}

// AcquireRequest is the body of POST /locks.
type AcquireRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

// LockResponse is the lease record returned to its holder.
type LockResponse struct {
	LeaseID         string    `json:"lease_id"`
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	AcquiredAt      time.Time `json:"acquired_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

func lockResponse(l *lease.Lease) LockResponse {
	return LockResponse{
		LeaseID:         l.ID,
		ResourceType:    l.ResourceType,
		ResourceID:      l.ResourceID,
		AcquiredAt:      l.AcquiredAt,
		ExpiresAt:       l.ExpiresAt,
		LastHeartbeatAt: l.LastHeartbeatAt,
	}
}

func holderDetails(l *lease.Lease) map[string]interface{} {
	return map[string]interface{}{
		"holder_id":   l.HolderID,
		"holder_name": l.HolderName,
		"acquired_at": l.AcquiredAt,
		"expires_at":  l.ExpiresAt,
	}
}

// Acquire handles POST /locks. Returns the lease on success, or 409 with the
// current holder's full record when the resource is locked by someone else.
func (lc *LocksController) Acquire(c router.Context) error {
	caller, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return controller.Error(c, controller.NewUnauthorizedError("authentication required"))
	}

	var req AcquireRequest
	if err := c.Bind(&req); err != nil {
		return controller.Error(c, controller.NewValidationError("invalid request body", nil))
	}

	key := lease.Key{ResourceType: req.ResourceType, ResourceID: req.ResourceID}
	outcome, err := lc.manager.Acquire(c.Request().Context(), key, caller.UserID, caller.FullName)
	if err != nil {
		if isInvalidArgument(err) {
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		}
		return controller.Error(c, controller.NewInternalError("failed to acquire lock", err))
	}

	if !outcome.Acquired {
		return controller.Error(c, controller.NewConflictError(
			"resource is locked by another user", holderDetails(outcome.Lease)))
	}

	return controller.Success(c, lockResponse(outcome.Lease))
}

// Heartbeat handles PUT /locks/:id/heartbeat. A rejected heartbeat means the
// lock is lost; the caller must stop editing.
func (lc *LocksController) Heartbeat(c router.Context) error {
	caller, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return controller.Error(c, controller.NewUnauthorizedError("authentication required"))
	}

	extended, err := lc.manager.Heartbeat(c.Request().Context(), c.Param("id"), caller.UserID)
	if err != nil {
		if isInvalidArgument(err) {
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		}
		return controller.Error(c, controller.NewInternalError("failed to extend lock", err))
	}
	if !extended {
		return controller.Error(c, controller.NewNotFoundError("lock not found or not held by caller"))
	}

	return controller.Success(c, map[string]interface{}{"status": "extended"})
}

// Release handles DELETE /locks/:id and the beacon form POST /locks/:id with
// a _method=DELETE query. Idempotent for the holder; 403 only when the lease
// belongs to someone else.
func (lc *LocksController) Release(c router.Context) error {
	caller, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return controller.Error(c, controller.NewUnauthorizedError("authentication required"))
	}

	released, err := lc.manager.Release(c.Request().Context(), c.Param("id"), caller.UserID)
	if err != nil {
		if isInvalidArgument(err) {
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		}
		return controller.Error(c, controller.NewInternalError("failed to release lock", err))
	}
	if !released {
		return controller.Error(c, controller.NewForbiddenError("lock is held by another user"))
	}

	return controller.Success(c, map[string]interface{}{"status": "released"})
}

// BeaconRelease handles POST /locks/:id sent by navigator.sendBeacon, which
// cannot issue DELETE. Only the _method=DELETE form is accepted.
func (lc *LocksController) BeaconRelease(c router.Context) error {
	if c.Query("_method") != http.MethodDelete {
		return controller.Error(c, controller.NewValidationError("unsupported method override", nil))
	}
	return lc.Release(c)
}

// ReleaseByResource handles DELETE /locks with resource_type and resource_id
// query parameters, for callers that no longer know their lease id.
func (lc *LocksController) ReleaseByResource(c router.Context) error {
	caller, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return controller.Error(c, controller.NewUnauthorizedError("authentication required"))
	}

	key := lease.Key{
		ResourceType: c.Query("resource_type"),
		ResourceID:   c.Query("resource_id"),
	}
	if err := lc.manager.ReleaseByResource(c.Request().Context(), key, caller.UserID); err != nil {
		if isInvalidArgument(err) {
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		}
		return controller.Error(c, controller.NewInternalError("failed to release lock", err))
	}

	return controller.Success(c, map[string]interface{}{"status": "released"})
}

// Get handles GET /locks with resource_type and resource_id query parameters.
// Returns the live lease with holder info, or 404 when the resource is free.
func (lc *LocksController) Get(c router.Context) error {
	key := lease.Key{
		ResourceType: c.Query("resource_type"),
		ResourceID:   c.Query("resource_id"),
	}

	l, err := lc.manager.Get(c.Request().Context(), key)
	if err != nil {
		if isInvalidArgument(err) {
			return controller.Error(c, controller.NewValidationError(err.Error(), nil))
		}
		return controller.Error(c, controller.NewInternalError("failed to look up lock", err))
	}
	if l == nil {
		return controller.Error(c, controller.NewNotFoundError("no lock on resource"))
	}

	return controller.Success(c, holderDetails(l))
}

func isInvalidArgument(err error) bool {
	return errors.Is(err, lease.ErrInvalidArgument)
}
