// Package audit implements async delivery of flow audit events.
//
// # Components
//
//   - [Sink]: consumer interface with channel, JSON writer, slog and no-op implementations.
//   - [Dispatcher]: buffered async relay, dropping or blocking when full.
//   - [Event]: one structured flow outcome record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Controller does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on flow state.
//   - Import authflow or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
