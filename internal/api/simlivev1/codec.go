// Package simlivev1 defines the session service wire contract.
//
// Messages travel as JSON under the "json" content subtype. Loosely typed fields (action
// payloads and checklist answers) use the protobuf well-known types so both sides agree on
// their encoding.
package simlivev1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// CodecName is the content subtype clients must request.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return CodecName
}

// Struct is a free-form JSON object.
type Struct struct {
	*structpb.Struct
}

// NewStruct builds a Struct from a Go map. Values must be JSON compatible.
func NewStruct(m map[string]any) (Struct, error) {
	if m == nil {
		return Struct{}, nil
	}

	s, err := structpb.NewStruct(m)
	if err != nil {
		return Struct{}, fmt.Errorf("struct: %w", err)
	}
	return Struct{Struct: s}, nil
}

// Map returns the object as a Go map, nil when empty.
func (s Struct) Map() map[string]any {
	if s.Struct == nil {
		return nil
	}
	return s.AsMap()
}

func (s Struct) MarshalJSON() ([]byte, error) {
	if s.Struct == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(s.Struct)
}

func (s *Struct) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		s.Struct = nil
		return nil
	}

	s.Struct = new(structpb.Struct)
	return protojson.Unmarshal(b, s.Struct)
}

// Value is a single loosely typed JSON value.
type Value struct {
	*structpb.Value
}

func NewValue(v any) (Value, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return Value{}, fmt.Errorf("value: %w", err)
	}
	return Value{Value: pv}, nil
}

// Interface returns the Go value, nil when absent.
func (v Value) Interface() any {
	if v.Value == nil {
		return nil
	}
	return v.AsInterface()
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Value == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(v.Value)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	v.Value = new(structpb.Value)
	if err := protojson.Unmarshal(b, v.Value); err != nil {
		return err
	}
	if _, ok := v.Value.GetKind().(*structpb.Value_NullValue); ok {
		v.Value = nil
	}
	return nil
}
