// Package transport provides the pva transport layer implementation.
//
// The transport layer handles:
//   - TCP connections between clients and PV servers
//   - Length-prefixed message framing
//   - Keep-alive ping/pong for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Keep-Alive
//
// Clients drive sequence-numbered pings; servers answer with pongs.
// Defaults:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
//   - Maximum detection delay: 95 seconds
package transport
