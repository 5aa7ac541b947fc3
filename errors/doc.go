// Package errors provides structured error types for the scene bridge.
//
// Errors are categorized by Phase (which stage of the sync cycle failed) and
// Kind (error category). The Error type carries the offending entity/component
// key, the byte offset for wire errors, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDeserialize, errors.KindUnknownComponent).
//		Key(key).
//		Detail("no codec registered").
//		Build()
//
// Or use the constructors that mirror the bridge's failure taxonomy:
//
//	err := errors.Parse(offset, "payload length %d exceeds %d remaining bytes", n, rest)
//	err := errors.Deserialize(key, cause)
//	err := errors.Apply(key, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
