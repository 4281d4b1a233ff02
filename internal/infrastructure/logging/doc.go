// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON, development mode (LOG_DEV=true) writes
// colored console output. Components take a named child logger so log
// lines carry their origin:
//
//	logger := logging.NewDefault()
//	cacheLog := logger.Named("cache")
//	cacheLog.Warn("kill failed", zap.Int("pid", pid), zap.Int("code", code))
package logging
