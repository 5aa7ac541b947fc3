// Package scenebridge synchronizes a sandboxed scene script runtime with the
// host world it drives.
//
// The script runtime proposes entity/component mutations as binary CRDT
// batches. The bridge reconciles them with last-writer-wins registers, stages
// the accepted changes, applies them to the host world under the world's
// mutex once per cycle, and answers with the host-originated changes the
// script has not seen yet.
//
// # Architecture Overview
//
//	scenebridge/        Root package with the shared entity and component handles
//	├── crdt/           Frame codec and the LWW state table
//	├── component/      Component payload codecs and the well-known components
//	├── worldsync/      Per-cycle command buffer staged for the host world
//	├── world/          Host world contract and an in-memory implementation
//	├── gate/           Mutex-guarded apply and the release signal for throttled systems
//	├── outgoing/       Coalescing of host-originated writes
//	├── observable/     Semantic events derived from committed writes
//	├── bridge/         The two boundary calls and the cycle state machine
//	├── scripthost/     wazero host module exposing the bridge to wasm scenes
//	├── journal/        Compressed record of boundary traffic for replay
//	├── errors/         Structured error types for diagnostics
//	├── internal/       Private helpers (pooled result buffers)
//	└── cmd/bridge/     CLI: replay journals, run scenes, interactive inspector
//
// # Quick Start
//
//	w := world.NewMemory()
//	reg := component.NewRegistry()
//	if err := component.RegisterWellKnown(reg); err != nil {
//	    log.Fatal(err)
//	}
//
//	b, err := bridge.New(w, reg, bridge.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Dispose()
//
//	out := b.SendToRenderer(batch) // encoded host-side changes for the script
//
// # Thread Safety
//
// SendToRenderer and GetState are meant to be called from the script runtime's
// goroutine. The host world is only mutated inside gate.Apply, which holds the
// world's mutex. Host systems may write to the outgoing collector from their
// own goroutine at any time.
package scenebridge
