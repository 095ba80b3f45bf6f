// Package connection drives the client-side reconnect lifecycle.
//
// A Manager wraps the caller's dial function with a state machine
// (DISCONNECTED, CONNECTING, CONNECTED, RECONNECTING, CLOSED) and a
// background redial loop. When the caller reports a lost connection,
// the loop retries with exponential backoff: 1s doubling to a 60s
// ceiling, staying there until a dial succeeds, then resetting. Up to
// 25% random jitter is added to each delay so clients of a restarted
// server do not redial in lockstep.
//
// Backoff resets only on a completed connection. A server that accepts
// the TCP connection but rejects individual requests does not count as
// recovered.
package connection
