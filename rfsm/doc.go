// Package rfsm implements the Remote Finite-State-Machine protocol: a
// REQ/REP-style request/response pattern where the master sends events
// (typed byte payloads) and the slave replies with its new state tag plus
// a response payload.
//
// Wire format, on a message-boundary-preserving socket:
//
//	request:  "EVENT" | event-id | event-data        (three frames)
//	reply:    state-tag (u16 LE) | response-id | response-data
//
// The master allows a single outstanding request at a time, attaches a
// timeout to each one, and rebuilds its socket after a timeout (the
// REQ/REP state machine cannot be resynchronized otherwise).
package rfsm
