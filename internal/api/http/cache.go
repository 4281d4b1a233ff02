package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// CacheStatus is the process cache view returned by /cache
type CacheStatus struct {
	Enabled  bool                `json:"enabled"`
	Capacity int                 `json:"capacity"`
	Size     int                 `json:"size"`
	Queue    []types.ProcessInfo `json:"queue"`
}

// GetCache returns the process cache state, oldest entry first
func (h *Handlers) GetCache(c *gin.Context) {
	c.JSON(http.StatusOK, h.cacheStatus())
}

// RefreshCache re-reads the cache capacity from the system parameters
func (h *Handlers) RefreshCache(c *gin.Context) {
	h.cache.RefreshCapacity()
	c.JSON(http.StatusOK, h.cacheStatus())
}

// ListBundles lists installed bundles
func (h *Handlers) ListBundles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bundles": h.bundles.List(),
	})
}

// LaunchStats returns recent launch latency per start path
func (h *Handlers) LaunchStats(c *gin.Context) {
	stats := map[string]monitoring.LatencySummary{}
	if h.metrics != nil {
		stats = h.metrics.Latency.Summaries()
	}
	c.JSON(http.StatusOK, gin.H{
		"launch": stats,
	})
}

func (h *Handlers) cacheStatus() CacheStatus {
	return CacheStatus{
		Enabled:  h.cache.QueryEnabled(),
		Capacity: h.cache.Capacity(),
		Size:     h.cache.Len(),
		Queue:    h.cache.Snapshot(),
	}
}
