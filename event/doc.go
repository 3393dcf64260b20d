// Package event provides the single-threaded event loop that drives both
// the master and slave sides of the runtime, and the push-style
// future/promise types layered on top of it.
//
// # Reading Guide
//
//   - reactor.go: the Reactor: socket, timer and immediate-event dispatch
//   - timer_heap.go: the deterministic timer priority queue
//   - future.go: Promise/Future and their shared state
//   - chain.go: Chain/Then/Catch composition of futures
//   - when_all.go: aggregation of many futures into one
//
// # Threading model
//
// A Reactor dispatches every handler on the goroutine that called Run.
// Socket readiness is detected by one internal reader goroutine per
// registered socket, but those goroutines only forward received messages
// into the loop; no handler ever runs outside the Run goroutine. All
// other types in this package (Promise, Future, chains) are therefore
// unsynchronized and must only be touched from the Run goroutine, or
// before Run is called.
package event
