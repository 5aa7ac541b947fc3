// Package gate applies command buffers to the host world under the world's
// single-writer lock and releases throttled host systems afterwards.
//
// Every Apply opens the gate once, whether or not the apply succeeded, so a
// host system waiting for the next cycle is never starved by a bad batch.
// Opening advances a generation counter; host systems either block on it with
// Wait or poll it once per host tick through a Throttle:
//
//	th := g.NewThrottle()
//	for range ticker.C {
//		if th.Ready() {
//			runOncePerSyncedCycle()
//		}
//	}
package gate
