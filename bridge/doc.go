// Package bridge implements the two boundary calls between a scene script
// runtime and the host world.
//
// SendToRenderer runs one synchronization cycle:
//
//	Idle → Decoding → Reconciling → Staging → Applying → Idle
//
// Decoding parses the incoming batch. Reconciling runs every message through
// the LWW state table. Staging records the accepted changes in a command buffer
// and deserializes their payloads. Applying hands the buffer to the gate,
// which mutates the world under its lock. The pending host-originated writes
// are then flushed and encoded as the call's result.
//
// A malformed batch or a failed apply leaves the bridge in Faulted until the
// next cycle starts. Nothing is retried. Failures go to the Reporter.
//
// GetState flushes pending host writes and returns the full state table, for a
// script runtime that reconnects.
//
// After Dispose every entry point returns an empty result.
package bridge
