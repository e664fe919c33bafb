// Package audit relays session lifecycle events to pluggable sinks without
// blocking the caller.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, AMQP, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full.
//   - [Event]: timestamp, type, user, namespace, tab, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The monitor does that.
//   - Import sessionwatch or any sibling internal package.
package audit
