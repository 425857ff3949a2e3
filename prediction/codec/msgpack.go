package codec

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// handle encodes maps with sorted keys so equal values always produce equal
// bytes, which the baseline comparison relies on.
var handle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	h.RawToString = true
	return h
}()

// Marshal encodes v as canonical msgpack.
func Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, handle).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return out, nil
}

// Unmarshal decodes msgpack data into out, which must be a pointer.
func Unmarshal(data []byte, out any) error {
	if err := codec.NewDecoderBytes(data, handle).Decode(out); err != nil {
		return fmt.Errorf("codec: decode %T: %w", out, err)
	}
	return nil
}
