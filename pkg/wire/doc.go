// Package wire defines the CBOR wire format types for the pva protocol.
//
// pva uses CBOR (RFC 8949) with integer keys for efficient encoding.
// All messages are length-prefixed and transmitted over TCP.
//
// # Message Types
//
// There are three primary message types:
//   - Request: Client to server (Get, Put, Info, Rpc, Monitor, MonitorCancel)
//   - Response: Server to client (success or error, matched by message ID)
//   - Notification: Server to client (monitor updates, message ID 0)
//
// A small control message family (ping/pong/close) handles connection
// liveness outside the request/response model.
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. The key mappings are
// defined as constants in this package.
//
// Process variable values travel as the Value transfer structure, a
// recursive CBOR encoding of the typed value tree defined in pkg/pvdata.
package wire
