// Package hub implements the relay that lets two agent processes hold a
// synchronous, turn-based dialogue through named sessions.
//
// Invariants:
// - Session names are unique among active sessions; a name frees up only after its session ends.
// - At most one caller holds a session at a time; connect is an atomic check-and-set.
// - Message queues are strictly FIFO and each message is consumed by exactly one waiter.
// - A session ends exactly once; blocked waiters release with a termination result, never hang.
//
// Usage:
//
//	srv, _ := hub.NewServer(hub.Config{Port: 7777, IdleTimeout: time.Hour})
//	_ = srv.Start()
//	defer srv.Stop()
package hub
