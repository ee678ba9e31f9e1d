package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Human-readable and handy while debugging; decoding is strict so that a
// payload written for a different message type is reported rather than
// silently dropped.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("codec: json: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("codec: json: trailing data after value")
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
