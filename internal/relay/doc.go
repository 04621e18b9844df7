// Package relay implements the connection, subscription and routing engine
// between device agents and dashboard client sessions.
//
// The package implements:
//   - Registry: live device and client connections, keyed by identifier
//   - Index: device identifier -> observing client connections
//   - Router: the (sender role, message kind) delivery state machine
//   - Handler: WebSocket transport with read/write pumps
//   - Service: single owner tying the pieces together
//
// Key behaviors:
//   - Online state is derived solely from the registry, never from storage
//   - Per-connection frames are processed in arrival order; no ordering
//     guarantee exists across connections
//   - Persistence and blob writes run on a background task queue so relay
//     latency is independent of storage latency
//   - Malformed frames are dropped without failing the connection
package relay
