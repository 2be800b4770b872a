package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes one concrete message type. Output is deterministic so a
// snapshot re-encoded from the same documents is byte-identical.
type Protobuf[T proto.Message] struct {
	ctor func() T
}

// NewProtobuf takes a constructor for empty messages, e.g.
// func() *structpb.Value { return new(structpb.Value) }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

var deterministic = proto.MarshalOptions{Deterministic: true}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return deterministic.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	msg := c.ctor()
	if err := proto.Unmarshal(b, msg); err != nil {
		var zero T
		return zero, err
	}
	return msg, nil
}
