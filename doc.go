// Package xmlstream is a streaming XML protocol engine. It turns byte
// chunks arriving from a transport into lifecycle and stanza events for
// XML-framed wire protocols, where a long-lived connection carries a
// single unbounded root element containing a sequence of child elements.
//
// The moving parts:
//
//   - EventDispatcher: a selector-keyed publish/subscribe registry
//     (Observer pattern). Dispatch is synchronous and run-to-completion.
//   - ElementStream: an incremental push parser. Feed it chunks of any
//     size and it reports the root opening, each completed direct child
//     of the root, and the root closing. Parse failure is terminal.
//   - Stream: the connection state machine tying the two together with
//     the transport lifecycle (ConnectionMade, DataReceived,
//     ConnectionLost) and the reserved stream-start / stream-error /
//     stream-end selectors.
//   - Bootstraps and Factory: declarative observer lists applied to every
//     protocol instance a factory builds (Factory pattern).
//
// Transports are a Strategy: anything with Write and Close. Adapters
// under adapter/ register Connectors by name (memory loopback, tcp,
// redis-streams) and drive the Receiver side of a Stream.
//
// The engine itself never spawns goroutines and never blocks. All calls
// into a single Stream must come from one goroutine, typically the
// transport's read loop.
package xmlstream
