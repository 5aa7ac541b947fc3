// Package scripthost runs scene scripts compiled to core WebAssembly on
// wazero and exposes the bridge's boundary calls to them as the host module
// "crdt":
//
//	(import "crdt" "send"          (func (param i32 i32) (result i32)))
//	(import "crdt" "get_state"     (func (result i32)))
//	(import "crdt" "read_response" (func (param i32 i32) (result i32)))
//
// send and get_state return the size of the response the bridge produced and
// keep it until the scene fetches it with read_response. A scene that calls
// send again without reading loses the previous response. Functions return -1
// when the scene passes memory it does not own or a buffer that is too small.
//
// Every scene is instantiated under its own module name, which is how the
// host functions find the scene's bridge.
package scripthost
