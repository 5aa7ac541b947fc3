// Package outgoing collects host-originated writes for the script side.
//
// Host systems write into a Collector while they run, directly or by
// subscribing it to a world.Memory. Within one flush window only the last
// write per (entity, component) survives and it takes the position of that
// last write. Appends are never coalesced.
//
// Flush runs on the script goroutine. It swaps the window out under the
// collector's mutex, so host goroutines can keep writing into the next window
// while the previous one is serialized, stamped, and installed into the
// state table.
package outgoing
