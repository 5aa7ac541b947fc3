// Package component turns opaque component payloads into typed values and back.
//
// The bridge never interprets payloads itself. A Registry maps each component
// id to a Codec; the world sync buffer uses it to deserialize staged payloads
// before they reach the host world, and the outgoing collector uses it to
// serialize host-authored values for the script runtime.
//
// Three codec families are provided:
//
//	RawCodec          payload bytes are the value
//	JSONCodec[T]      JSON into T, optionally validated against a JSON Schema
//	ProtoCodec[T]     protobuf messages, e.g. structpb.Struct for free-form data
//
// RegisterWellKnown installs the components the observable event deriver
// watches (player identity, avatar, emotes, engine and realm info).
package component
