package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/app"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/bundle"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/cache"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	apps    *app.Manager
	cache   *cache.Manager
	bundles *bundle.Registry
	metrics *monitoring.Metrics
}

// NewHandlers creates a new handler set
func NewHandlers(apps *app.Manager, cache *cache.Manager, bundles *bundle.Registry, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		apps:    apps,
		cache:   cache,
		bundles: bundles,
		metrics: metrics,
	}
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "appmgr",
		"version": Version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"processes": h.apps.Stats(),
		"cache":     h.cacheStatus(),
		"bundles":   h.bundles.Len(),
		"observers": h.apps.Hub().Subscribers(),
	})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrBundleNotFound),
		errors.Is(err, app.ErrProcessNotFound),
		errors.Is(err, app.ErrAbilityNotFound),
		errors.Is(err, bundle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrModuleNotFound):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrSpawnFailed), errors.Is(err, app.ErrKillFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
