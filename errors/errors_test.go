package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	scenebridge "github.com/wippyai/scene-bridge"
)

func TestError_Error(t *testing.T) {
	key := scenebridge.Key{Entity: scenebridge.NewEntityID(512, 1), Component: 1089}

	tests := []struct {
		name     string
		err      *Error
		contains []string
		excludes []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseDeserialize,
				Kind:   KindSchema,
				Key:    &key,
				Offset: -1,
				Detail: "missing address",
			},
			contains: []string{"[deserialize]", "schema", "entity 512:1", "component 1089", "missing address"},
			excludes: []string{"@"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindTruncated,
				Offset: -1,
			},
			contains: []string{"[decode]", "truncated"},
			excludes: []string{"entity", "@"},
		},
		{
			name: "offset",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindTruncated,
				Offset: 34,
			},
			contains: []string{"@34"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseApply,
				Kind:   KindRejected,
				Offset: -1,
				Detail: "world refused",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[apply]", "rejected", "world refused", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(msg, s) {
					t.Errorf("error message %q should not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Apply(scenebridge.Key{Entity: 1, Component: 2}, cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Parse(10, "truncated header")

	if !err.Is(&Error{Phase: PhaseDecode, Kind: KindTruncated}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseEncode, Kind: KindTruncated}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindInvalidKind}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("batch: %w", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseDecode, Kind: KindTruncated}) {
		t.Error("errors.Is should match through wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	key := scenebridge.Key{Entity: 7, Component: 9}
	err := New(PhaseStage, KindInvalidData).
		Key(key).
		Offset(12).
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "put", "append").
		Build()

	if err.Phase != PhaseStage {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseStage)
	}
	if err.Kind != KindInvalidData {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidData)
	}
	if err.Key == nil || *err.Key != key {
		t.Errorf("Key = %v, want %v", err.Key, key)
	}
	if err.Offset != 12 {
		t.Errorf("Offset = %d, want 12", err.Offset)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected put, got append" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestBuilder_DefaultOffset(t *testing.T) {
	if err := New(PhaseApply, KindPanic).Build(); err.Offset != -1 {
		t.Errorf("Offset = %d, want -1", err.Offset)
	}
}

func TestTaxonomyConstructors(t *testing.T) {
	key := scenebridge.Key{Entity: 1, Component: 1}

	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"Parse", Parse(0, "short"), PhaseDecode, KindTruncated},
		{"InvalidKind", InvalidKind(4, 9), PhaseDecode, KindInvalidKind},
		{"BufferTooSmall", BufferTooSmall(20, 10), PhaseEncode, KindBufferTooSmall},
		{"UnknownComponent", UnknownComponent(PhaseDeserialize, key), PhaseDeserialize, KindUnknownComponent},
		{"Deserialize", Deserialize(key, errors.New("x")), PhaseDeserialize, KindInvalidData},
		{"Serialize", Serialize(key, errors.New("x")), PhaseSerialize, KindInvalidData},
		{"TypeMismatch", TypeMismatch(PhaseSerialize, key, "[]byte", 3), PhaseSerialize, KindTypeMismatch},
		{"Apply", Apply(key, errors.New("x")), PhaseApply, KindRejected},
		{"Panic", Panic(PhaseApply, "boom"), PhaseApply, KindPanic},
		{"Disposed", Disposed(PhaseHost), PhaseHost, KindDisposed},
		{"ClockExhausted", ClockExhausted(key), PhaseSerialize, KindClockExhausted},
		{"NotFound", NotFound(PhaseHost, "export", "send"), PhaseHost, KindNotFound},
		{"InvalidInput", InvalidInput(PhaseConfig, "bad"), PhaseConfig, KindInvalidInput},
		{"Registration", Registration(PhaseConfig, "codec", nil), PhaseConfig, KindRegistration},
		{"Instantiation", Instantiation(errors.New("x")), PhaseHost, KindInstantiation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestPhaseOfKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Disposed(PhaseHost))
	if PhaseOf(err) != PhaseHost {
		t.Errorf("PhaseOf = %q", PhaseOf(err))
	}
	if KindOf(err) != KindDisposed {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if PhaseOf(errors.New("plain")) != "" || KindOf(nil) != "" {
		t.Error("foreign errors have no phase or kind")
	}
}
