package api

import (
	"github.com/sbportal/editlock/pkg/server/router"
)

// RegisterRoutes mounts the lock and document endpoints under /api/v1.
// The auth middleware is applied to the whole group; unauthenticated
// requests never reach a controller.
func RegisterRoutes(r router.Router, locks *LocksController, docs *DocumentsController, auth router.MiddlewareFunc) {
	v1 := r.Group("/api/v1", auth)

	v1.POST("/locks", locks.Acquire)
	v1.GET("/locks", locks.Get)
	v1.DELETE("/locks", locks.ReleaseByResource)
	v1.PUT("/locks/:id/heartbeat", locks.Heartbeat)
	v1.DELETE("/locks/:id", locks.Release)
	v1.POST("/locks/:id", locks.BeaconRelease)

	v1.PUT("/documents/:id", docs.Save)
	v1.GET("/documents/:id", docs.Get)
}
