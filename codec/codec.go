// Package codec serializes RPC payloads: the request arguments carried after a
// frame header and the result carried in a response frame.
//
// Client and server must agree on the codec; it is part of deployment
// configuration, not negotiated on the wire.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON  CodecType = 0
	CodecTypeProto CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &ProtoCodec{}
}

// ParseCodecType maps a configuration name ("proto", "json") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "proto", "protobuf":
		return CodecTypeProto, nil
	case "json":
		return CodecTypeJSON, nil
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeProto:
		return "proto"
	}
	return fmt.Sprintf("CodecType(%d)", byte(t))
}
