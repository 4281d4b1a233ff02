package http

import "github.com/gin-gonic/gin"

// Register mounts every REST endpoint on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Process records
	r.GET("/processes", h.ListProcesses)
	r.GET("/processes/:id", h.GetProcess)
	r.POST("/processes/:id/kill", h.KillProcess)

	// Ability lifecycle
	r.POST("/abilities", h.Launch)
	r.POST("/abilities/:token/foreground", h.Foreground)
	r.POST("/abilities/:token/background", h.Background)
	r.DELETE("/abilities/:token", h.Terminate)

	// Process cache
	r.GET("/cache", h.GetCache)
	r.POST("/cache/refresh", h.RefreshCache)

	r.GET("/bundles", h.ListBundles)
	r.GET("/stats/launch", h.LaunchStats)
}
