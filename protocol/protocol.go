// Package protocol implements the length-prefixed binary frame protocol used by dmonitor.
//
// A request frame names the target method in a small header and carries the
// serialized arguments after it. A response frame carries only the serialized
// result: a connection has at most one outstanding request, so the response is
// correlated to it implicitly and needs no header.
//
// Frame formats (all length fields are big-endian uint32):
//
//	request:  ┌───────────┬────────────┬──────────────────┬─────────────────┐
//	          │ total_len │ header_len │ header_len bytes │ payload ...     │
//	          └───────────┴────────────┴──────────────────┴─────────────────┘
//	          total_len = 4 + header_len + len(payload)
//
//	response: ┌───────────┬─────────────────┐
//	          │  resp_len │ payload ...     │
//	          └───────────┴─────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
)

// DefaultMaxFrameSize bounds the declared length of any frame when the caller
// does not configure a limit. A corrupted or hostile length field would
// otherwise make the reader buffer without bound.
const DefaultMaxFrameSize uint32 = 4 << 20

// lenSize is the size of one length field on the wire.
const lenSize = 4

var (
	// ErrInvalidFrame reports a malformed frame: an out-of-range length field,
	// an undecodable header, or an args_size that disagrees with the payload.
	ErrInvalidFrame = errors.New("protocol: invalid frame")
	// ErrConnectionClosed reports that the stream ended before a complete frame was read.
	ErrConnectionClosed = errors.New("protocol: connection closed")
)

// Request is a decoded request frame.
type Request struct {
	Header  Header
	Payload []byte
}

// EncodeRequest serializes h and payload into a complete request frame.
// h.ArgsSize is overwritten with len(payload).
func EncodeRequest(h *Header, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrInvalidFrame, len(payload))
	}
	h.ArgsSize = uint32(len(payload))
	headerBytes := h.Marshal()

	total := uint64(lenSize) + uint64(len(headerBytes)) + uint64(len(payload))
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrInvalidFrame, total)
	}

	buf := make([]byte, lenSize+total)
	// total_len -- 4 bytes
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	// header_len -- 4 bytes
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(headerBytes)))
	// header + payload
	n := copy(buf[8:], headerBytes)
	copy(buf[8+n:], payload)
	return buf, nil
}

// DecodeRequest reads exactly one request frame from r. maxSize bounds total_len;
// zero selects DefaultMaxFrameSize.
func DecodeRequest(r io.Reader, maxSize uint32) (*Request, error) {
	body, err := readFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	if len(body) < lenSize {
		return nil, fmt.Errorf("%w: total_len %d shorter than header_len field", ErrInvalidFrame, len(body))
	}

	headerLen := binary.BigEndian.Uint32(body[0:4])
	rest := body[lenSize:]
	if uint64(headerLen) > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: header_len %d exceeds frame body %d", ErrInvalidFrame, headerLen, len(rest))
	}

	req := &Request{Payload: rest[headerLen:]}
	if err := req.Header.Unmarshal(rest[:headerLen]); err != nil {
		return nil, err
	}
	if uint64(req.Header.ArgsSize) != uint64(len(req.Payload)) {
		return nil, fmt.Errorf("%w: args_size %d but payload is %d bytes", ErrInvalidFrame, req.Header.ArgsSize, len(req.Payload))
	}
	return req, nil
}

// EncodeResponse prefixes payload with its big-endian length.
func EncodeResponse(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrInvalidFrame, len(payload))
	}
	buf := make([]byte, lenSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[lenSize:], payload)
	return buf, nil
}

// DecodeResponse reads exactly one response frame from r and returns its payload.
func DecodeResponse(r io.Reader, maxSize uint32) ([]byte, error) {
	return readFrame(r, maxSize)
}

// WriteRequest encodes a request frame and writes it to w in a single Write call,
// so that a writer serializing whole Writes never interleaves two frames.
func WriteRequest(w io.Writer, h *Header, payload []byte) error {
	frame, err := EncodeRequest(h, payload)
	if err != nil {
		return err
	}
	return writeFull(w, frame)
}

// WriteResponse encodes a response frame and writes it to w in a single Write call.
func WriteResponse(w io.Writer, payload []byte) error {
	frame, err := EncodeResponse(payload)
	if err != nil {
		return err
	}
	return writeFull(w, frame)
}

// readFrame reads one 4-byte length prefix and exactly that many bytes after it.
func readFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}

	var lenBuf [lenSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, streamErr(err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds limit %d", ErrInvalidFrame, n, maxSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, streamErr(err)
	}
	return body, nil
}

func writeFull(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return streamErr(err)
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}

// streamErr folds the ways a stream can end into ErrConnectionClosed and keeps
// every other I/O error visible to the caller.
func streamErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}
