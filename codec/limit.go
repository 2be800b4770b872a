package codec

import "fmt"

// Limit refuses to decode payloads larger than MaxDecode bytes (<= 0 means
// no limit) so one oversized snapshot is not decoded on every request.
// Encoding is passed through.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

// ErrTooLarge is returned by Limit.Decode for oversized payloads.
type ErrTooLarge struct{ Size, Max int }

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("codec: payload too large: %d > %d bytes", e.Size, e.Max)
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, &ErrTooLarge{Size: len(b), Max: c.MaxDecode}
	}
	return c.Inner.Decode(b)
}
