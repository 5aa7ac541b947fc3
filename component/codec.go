package component

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wippyai/scene-bridge/errors"
)

// Codec converts between payload bytes and component values.
type Codec interface {
	Name() string
	Deserialize(data []byte) (any, error)
	Serialize(v any) ([]byte, error)
}

// RawCodec keeps payloads as byte slices.
type RawCodec struct{}

func (RawCodec) Name() string { return "raw" }

// Deserialize copies data so the value outlives the batch buffer.
func (RawCodec) Deserialize(data []byte) (any, error) {
	return append([]byte(nil), data...), nil
}

func (RawCodec) Serialize(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("raw codec expects []byte, got %T", v)
	}
}

// JSONCodec decodes JSON payloads into T.
type JSONCodec[T any] struct {
	schema *jsonschema.Schema
}

// NewJSONCodec creates a JSON codec without schema validation.
func NewJSONCodec[T any]() *JSONCodec[T] {
	return &JSONCodec[T]{}
}

// NewJSONCodecWithSchema creates a JSON codec that validates every payload
// against the given JSON Schema document before decoding.
func NewJSONCodecWithSchema[T any](name, schema string) (*JSONCodec[T], error) {
	s, err := CompileSchema(name, schema)
	if err != nil {
		return nil, err
	}
	return &JSONCodec[T]{schema: s}, nil
}

// CompileSchema compiles an in-memory JSON Schema document.
func CompileSchema(name, schema string) (*jsonschema.Schema, error) {
	url := "https://scene-bridge.wippy.ai/schemas/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, errors.Registration(errors.PhaseConfig, "schema "+name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, errors.Registration(errors.PhaseConfig, "schema "+name, err)
	}
	return s, nil
}

func (c *JSONCodec[T]) Name() string {
	if c.schema != nil {
		return "json+schema"
	}
	return "json"
}

func (c *JSONCodec[T]) Deserialize(data []byte) (any, error) {
	if c.schema != nil {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if err := c.schema.Validate(doc); err != nil {
			return nil, errors.New(errors.PhaseDeserialize, errors.KindSchema).Cause(err).Build()
		}
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *JSONCodec[T]) Serialize(v any) ([]byte, error) {
	switch t := v.(type) {
	case T:
		return json.Marshal(t)
	case *T:
		if t == nil {
			return nil, fmt.Errorf("json codec: nil %T", v)
		}
		return json.Marshal(t)
	default:
		var zero T
		return nil, fmt.Errorf("json codec expects %T, got %T", zero, v)
	}
}

// ProtoCodec decodes protobuf payloads into messages created by newFn.
type ProtoCodec[T proto.Message] struct {
	newFn func() T
}

// NewProtoCodec creates a protobuf codec.
func NewProtoCodec[T proto.Message](newFn func() T) *ProtoCodec[T] {
	return &ProtoCodec[T]{newFn: newFn}
}

// NewStructCodec creates a codec for free-form structpb.Struct payloads.
func NewStructCodec() *ProtoCodec[*structpb.Struct] {
	return NewProtoCodec(func() *structpb.Struct { return &structpb.Struct{} })
}

func (c *ProtoCodec[T]) Name() string {
	return "proto:" + string(c.newFn().ProtoReflect().Descriptor().FullName())
}

func (c *ProtoCodec[T]) Deserialize(data []byte) (any, error) {
	m := c.newFn()
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *ProtoCodec[T]) Serialize(v any) ([]byte, error) {
	m, ok := v.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("proto codec expects %T, got %T", zero, v)
	}
	return proto.Marshal(m)
}
