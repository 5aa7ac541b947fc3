// Package worldsync stages reconciled CRDT changes into a per-cycle command
// buffer and applies them to the host world.
//
// A cycle goes through three steps, in order:
//
//	buf := syncer.GetSyncCommandBuffer()
//	for _, pm := range processed {
//		buf.SyncCRDTMessage(pm.Message, pm.Effect) // script goroutine
//	}
//	buf.FinalizeAndDeserialize(registry, report) // script goroutine
//	committed, err := buf.Apply(w)               // under the world lock
//
// Staging and finalization touch only the buffer. Apply is the only step that
// touches the world and must run while the world's single-writer lock is held;
// the gate package does that.
//
// Apply is all-or-nothing per cycle: when any command fails or panics, every
// reversible mutation already made in that cycle is undone and no commits are
// returned. Appends are delivered immediately and cannot be undone.
package worldsync
