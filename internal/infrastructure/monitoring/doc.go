/*
Package monitoring provides Prometheus metrics for the process manager.

# Overview

Metrics live on a per-instance registry so tests and embedded managers can
create as many collectors as they need. Besides the Prometheus series, a
bounded window of launch latencies per start path (warm or cold) is kept
for the /stats/launch endpoint, summarized with gonum/stat.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordLaunch("warm", time.Since(start))
	metrics.SetCache(size, capacity)
*/
package monitoring
