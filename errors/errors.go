package errors

import (
	"fmt"
	"strconv"
	"strings"

	scenebridge "github.com/wippyai/scene-bridge"
)

// Phase indicates where in the sync cycle the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // wire to messages
	PhaseEncode      Phase = "encode"      // messages to wire
	PhaseReconcile   Phase = "reconcile"   // state table
	PhaseStage       Phase = "stage"       // command buffer staging
	PhaseDeserialize Phase = "deserialize" // payload to component value
	PhaseSerialize   Phase = "serialize"   // component value to payload
	PhaseApply       Phase = "apply"       // host world mutation
	PhaseHost        Phase = "host"        // script host boundary
	PhaseConfig      Phase = "config"      // configuration and registration
	PhaseJournal     Phase = "journal"     // batch recording and replay
)

// Kind categorizes the error
type Kind string

const (
	KindTruncated        Kind = "truncated"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidData      Kind = "invalid_data"
	KindInvalidKind      Kind = "invalid_kind"
	KindUnknownComponent Kind = "unknown_component"
	KindSchema           Kind = "schema"
	KindTypeMismatch     Kind = "type_mismatch"
	KindBufferTooSmall   Kind = "buffer_too_small"
	KindDisposed         Kind = "disposed"
	KindPanic            Kind = "panic"
	KindRejected         Kind = "rejected"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindRegistration     Kind = "registration"
	KindInstantiation    Kind = "instantiation"
	KindIO               Kind = "io"
	KindClockExhausted   Kind = "clock_exhausted"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Key    *scenebridge.Key
	Phase  Phase
	Kind   Kind
	Detail string
	Offset int // byte offset into a batch, -1 when not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Key != nil {
		b.WriteString(" at entity ")
		b.WriteString(e.Key.Entity.String())
		b.WriteString(" component ")
		b.WriteString(strconv.FormatUint(uint64(e.Key.Component), 10))
	}

	if e.Offset >= 0 {
		b.WriteString(" @")
		b.WriteString(strconv.Itoa(e.Offset))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: -1,
		},
	}
}

// Key sets the entity/component key
func (b *Builder) Key(k scenebridge.Key) *Builder {
	b.err.Key = &k
	return b
}

// Offset sets the byte offset into the batch
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Taxonomy constructors

// Parse creates a malformed-frame error. A parse error invalidates the whole batch.
func Parse(offset int, detail string, args ...any) *Error {
	return New(PhaseDecode, KindTruncated).Offset(offset).Detail(detail, args...).Build()
}

// InvalidKind creates an unknown message kind error
func InvalidKind(offset int, kind uint8) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidKind,
		Offset: offset,
		Detail: fmt.Sprintf("unknown message kind %d", kind),
		Value:  kind,
	}
}

// BufferTooSmall creates an encode error for an undersized destination
func BufferTooSmall(need, have int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindBufferTooSmall,
		Offset: -1,
		Detail: fmt.Sprintf("need %d bytes, have %d", need, have),
	}
}

// UnknownComponent creates an error for a component id with no registered codec
func UnknownComponent(phase Phase, key scenebridge.Key) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownComponent,
		Key:    &key,
		Offset: -1,
		Detail: "no codec registered",
	}
}

// Deserialize creates a payload deserialization error scoped to a single command
func Deserialize(key scenebridge.Key, cause error) *Error {
	return &Error{
		Phase:  PhaseDeserialize,
		Kind:   KindInvalidData,
		Key:    &key,
		Offset: -1,
		Cause:  cause,
	}
}

// Serialize creates a component value serialization error
func Serialize(key scenebridge.Key, cause error) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindInvalidData,
		Key:    &key,
		Offset: -1,
		Cause:  cause,
	}
}

// TypeMismatch creates an error for a value of the wrong Go type
func TypeMismatch(phase Phase, key scenebridge.Key, want string, got any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Key:    &key,
		Offset: -1,
		Detail: fmt.Sprintf("expected %s, got %T", want, got),
		Value:  got,
	}
}

// Apply creates a host world mutation error
func Apply(key scenebridge.Key, cause error) *Error {
	return &Error{
		Phase:  PhaseApply,
		Kind:   KindRejected,
		Key:    &key,
		Offset: -1,
		Cause:  cause,
	}
}

// ClockExhausted reports a key whose timestamp cannot advance any further
func ClockExhausted(key scenebridge.Key) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindClockExhausted,
		Key:    &key,
		Offset: -1,
		Detail: "timestamp already at maximum",
	}
}

// Panic wraps a recovered panic value
func Panic(phase Phase, v any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Offset: -1,
		Detail: fmt.Sprintf("%v", v),
		Value:  v,
	}
}

// Disposed creates an error for calls made after teardown
func Disposed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDisposed,
		Offset: -1,
		Detail: "bridge disposed",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Offset: -1,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Offset: -1,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Offset: -1,
		Detail: fmt.Sprintf("register %s", what),
		Cause:  cause,
	}
}

// Instantiation creates a script instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInstantiation,
		Offset: -1,
		Detail: "instantiate scene",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: -1,
		Detail: detail,
		Cause:  cause,
	}
}

// PhaseOf returns the phase of a structured error, or "" for foreign errors.
func PhaseOf(err error) Phase {
	var e *Error
	if As(err, &e) {
		return e.Phase
	}
	return ""
}

// KindOf returns the kind of a structured error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return ""
}
