// Package crdt implements the wire frames exchanged with the script runtime
// and the last-writer-wins state table that reconciles them.
//
// # Frames
//
// A batch is a concatenation of frames with a fixed 17-byte header:
//
//	entity:4 | component:4 | timestamp:4 | kind:1 | payloadLen:4 | payload
//
// Integers are little-endian. A batch either decodes completely or not at
// all; there is no partial recovery.
//
// # Reconciliation
//
// Every (entity, component) pair is an LWW register with a logical timestamp.
// A PUT or DELETE is accepted only when its timestamp is strictly greater than
// the stored one, so on ties the value accepted first stays. Deletes leave a
// tombstone that keeps rejecting stale writes. APPEND messages bypass the
// table entirely and are always applied in arrival order.
//
// The State is not safe for concurrent use. It is owned by the goroutine that
// drives the script runtime.
package crdt
