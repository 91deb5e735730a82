package codec

import "fmt"

// TooLargeError is returned by Limit.Decode for payloads above the limit.
type TooLargeError struct {
	Size, Max int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("codec: payload too large: %d > %d", e.Size, e.Max)
}

// Limit wraps another codec to enforce a maximum payload size at Decode time.
// Encode is forwarded to Inner unchanged. If MaxDecode <= 0, size limiting
// is disabled.
type Limit[V any] struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec[V]
	// MaxDecode is the maximum permitted length in bytes of a Decode input.
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, &TooLargeError{Size: len(b), Max: c.MaxDecode}
	}
	return c.Inner.Decode(b)
}
func (c Limit[V]) ContentType() string { return c.Inner.ContentType() }
