package codec

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Structpb stores dynamic documents in protobuf binary form using the
// well-known google.protobuf.Value message. To must return a tree of
// map[string]any, []any, string, bool, nil and numeric values; From receives
// the same shape back (numbers always come back as float64).
type Structpb[V any] struct {
	To   func(V) (any, error)
	From func(any) (V, error)
}

var valueCodec = NewProtobuf(func() *structpb.Value { return &structpb.Value{} })

func (c Structpb[V]) Encode(v V) ([]byte, error) {
	tree, err := c.To(v)
	if err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(tree)
	if err != nil {
		return nil, fmt.Errorf("structpb: %w", err)
	}
	return valueCodec.Encode(pv)
}

func (c Structpb[V]) Decode(b []byte) (V, error) {
	pv, err := valueCodec.Decode(b)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.From(pv.AsInterface())
}
