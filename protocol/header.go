package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Header field numbers, protobuf wire format.
const (
	fieldServiceName protowire.Number = 1
	fieldMethodName  protowire.Number = 2
	fieldArgsSize    protowire.Number = 3
)

// Header names the target method of a request and the length of its payload.
type Header struct {
	ServiceName string
	MethodName  string
	ArgsSize    uint32
}

// Marshal returns the protobuf wire encoding of h.
func (h *Header) Marshal() []byte {
	b := make([]byte, 0, len(h.ServiceName)+len(h.MethodName)+12)
	b = protowire.AppendTag(b, fieldServiceName, protowire.BytesType)
	b = protowire.AppendString(b, h.ServiceName)
	b = protowire.AppendTag(b, fieldMethodName, protowire.BytesType)
	b = protowire.AppendString(b, h.MethodName)
	b = protowire.AppendTag(b, fieldArgsSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.ArgsSize))
	return b
}

// Unmarshal decodes a header from b. Unknown fields are skipped.
func (h *Header) Unmarshal(b []byte) error {
	*h = Header{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return headerErr(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldServiceName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return headerErr(protowire.ParseError(n))
			}
			h.ServiceName = v
			b = b[n:]
		case num == fieldMethodName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return headerErr(protowire.ParseError(n))
			}
			h.MethodName = v
			b = b[n:]
		case num == fieldArgsSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return headerErr(protowire.ParseError(n))
			}
			if v > uint64(^uint32(0)) {
				return fmt.Errorf("%w: args_size %d overflows uint32", ErrInvalidFrame, v)
			}
			h.ArgsSize = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return headerErr(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func headerErr(err error) error {
	return fmt.Errorf("%w: header: %w", ErrInvalidFrame, err)
}
