/*
Package resilience guards process spawning with circuit breakers.

# Breaker

A Breaker moves between three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[success]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open

Expiry is driven by a clock.Clock so tests can advance time explicitly.

# SpawnGuard

SpawnGuard keeps one breaker per bundle in front of the host spawner.
After Failures consecutive failed starts the bundle is rejected with
ErrCircuitOpen for Timeout, then a single trial spawn decides whether
the breaker closes again.

	spawner := resilience.NewSpawnGuard(osproc.NewSpawner(logger), resilience.Settings{
		Failures: 5,
		Timeout:  30 * time.Second,
	}).WithLogger(logger).WithMetrics(metrics)
*/
package resilience
