// Command appmgr runs the application process manager and talks to a
// running one.
//
// Usage:
//
//	appmgr serve                       # run the manager (default)
//	appmgr ps [--state cached]         # list processes
//	appmgr cache status                # show the warm process cache
//	appmgr cache refresh               # re-read the cache capacity
//	appmgr param get max_process_cache_num
//	appmgr param set max_process_cache_num 4
//
// Environment Variables:
//
//	PORT, HOST            HTTP listen address (default 0.0.0.0:8100)
//	GRPC_PORT             gRPC health port (default 8101)
//	PARAMS_FILE           system parameter file
//	BUNDLES_DIR           bundle manifest directory
//	LOG_LEVEL, LOG_DEV    logging
//	RESTART_MAX           consecutive resident restarts before giving up
//	RESTART_STABLE_AFTER  uptime after which the restart count resets
//	SPAWN_BREAKER_*       per-bundle spawn breaker (failures, cooldown)
//	APPMGR_ADDR           REST address used by client commands
package main
