package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Named returns the reflection-based codec registered under name:
// "json" (default for ""), "msgpack" or "cbor".
// Protobuf needs a message constructor or converters and is built explicitly.
func Named[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	case "cbor":
		return NewCBOR[V](false)
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
