package codec

import "fmt"

// WireMessage is implemented by messages that encode themselves in protobuf
// wire format (see package message).
type WireMessage interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(data []byte) error
}

// ProtoCodec encodes WireMessage values in protobuf wire format.
// Compact and schema-tolerant: unknown fields are skipped by the decoders.
type ProtoCodec struct{}

func (c *ProtoCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(WireMessage)
	if !ok {
		return nil, fmt.Errorf("codec: proto: %T does not implement WireMessage", v)
	}
	return m.MarshalWire()
}

func (c *ProtoCodec) Decode(data []byte, v any) error {
	m, ok := v.(WireMessage)
	if !ok {
		return fmt.Errorf("codec: proto: %T does not implement WireMessage", v)
	}
	return m.UnmarshalWire(data)
}

func (c *ProtoCodec) Type() CodecType {
	return CodecTypeProto
}
