// Package cache implements the warm process cache.
//
// When the last ability of an application process goes away the process
// can be parked here instead of being torn down, so the next launch of the
// same bundle skips a cold start. The cache is a FIFO bounded by the
// persisted max_process_cache_num parameter (0 disables it). Admitting a
// process past capacity evicts the oldest entries and asks the Owner to
// kill them.
//
// Lifecycle of an entry:
//
//	TryPend        appended at the tail (keep-alive processes refused)
//	CheckAndCache  state set to cached once no abilities remain
//	Reuse          removed, state set to ready, process hosts a new launch
//	OnProcessKilled removed after the process died
//	eviction       removed from the head, kill requested
//
// All operations are safe for concurrent use.
package cache
