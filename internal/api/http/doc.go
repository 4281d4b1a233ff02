// Package http provides the REST handlers of the application manager.
//
// Endpoints:
//   - Health: / and /health
//   - Processes: /processes, /processes/:id, /processes/:id/kill
//   - Abilities: /abilities, /abilities/:token/foreground, /abilities/:token/background
//   - Cache: /cache, /cache/refresh
//   - Bundles: /bundles
//   - Stats: /stats/launch
//
// Errors are returned as {"success": false, "error": "..."} with a status
// derived from the domain error.
//
// Example Usage:
//
//	handlers := http.NewHandlers(appManager, cacheManager, bundles, metrics)
//	router.GET("/processes", handlers.ListProcesses)
package http
