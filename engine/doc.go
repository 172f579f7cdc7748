// Package engine implements the tunnel engine: the peer table, the
// scatter state that balances outbound packets across independent
// transmission paths ("dimensions"), and the routing pipeline that
// seals each packet for its destination.
//
// The engine is computation-only. It never performs network I/O; a
// routed packet is returned to the caller as sealed bytes for an
// external transport, and lifecycle events are emitted to a
// non-blocking sink. Errors are surfaced typed and untouched: the
// engine does not log, retry or suppress.
package engine
