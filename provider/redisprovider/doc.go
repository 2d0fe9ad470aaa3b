// Package redisprovider implements provider.Provider on top of Redis so that
// hosts and clients in different processes share one session registry.
//
// Layout (all keys carry the configured prefix):
//
//	session:<id>  hash   owner, host_addr, settings (JSON), open slots, started flag
//	members:<id>  set    players holding a slot in the session
//	index         zset   advertised session ids scored by creation sequence
//	seq           string creation sequence counter
//
// Joins reserve a slot inside a WATCH/MULTI transaction. Redis round trips
// run behind a circuit breaker; while it is open, issue calls fail with
// provider.ErrBackendUnavailable instead of queueing work.
//
// Named sessions (the local view returned by NamedSession) live in process,
// exactly like a console or PC online subsystem keeps them per machine.
package redisprovider
