package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf carries V as a google.protobuf.Struct, for APIs that speak
// protobuf without a schema shared with this client. V goes through its JSON
// form, so json tags name the struct fields and numbers travel as doubles.
// The zero value is ready to use.
type Protobuf[V any] struct{}

var _ Codec[struct{}] = Protobuf[struct{}]{}

func (Protobuf[V]) Encode(v V) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("codec: protobuf needs an object value: %w", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func (Protobuf[V]) Decode(b []byte) (V, error) {
	var v V
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return v, err
	}
	js, err := json.Marshal(s.AsMap())
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(js, &v)
	return v, err
}

func (Protobuf[V]) ContentType() string { return MediaProtobuf }
