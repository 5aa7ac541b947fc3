// Package observable derives semantic scene events from committed writes.
//
// The Deriver watches the committed-write stream from both directions (script
// writes applied to the world, host writes flushed to the script) and turns
// writes on well-known components into events such as a player entering the
// scene. Routing is a static table keyed by component id, checked once when
// the Deriver is created.
//
// An event is only recorded when the externally supplied Subscriptions
// contain its id. The Deriver never writes to the state table.
package observable
