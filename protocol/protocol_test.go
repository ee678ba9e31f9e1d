package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		service string
		method  string
		payload []byte
	}{
		{"empty payload", "Echo", "Ping", nil},
		{"small payload", "MonitorReportService", "Report", []byte("hello world")},
		{"empty names", "", "", []byte{0x00, 0x01}},
		{"large payload", "MonitorQueryService", "Query", bytes.Repeat([]byte{0xab}, 1<<20)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Header{ServiceName: tc.service, MethodName: tc.method}
			frame, err := EncodeRequest(h, tc.payload)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}

			req, err := DecodeRequest(bytes.NewReader(frame), 0)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}
			if req.Header.ServiceName != tc.service {
				t.Errorf("ServiceName mismatch: got %q, want %q", req.Header.ServiceName, tc.service)
			}
			if req.Header.MethodName != tc.method {
				t.Errorf("MethodName mismatch: got %q, want %q", req.Header.MethodName, tc.method)
			}
			if req.Header.ArgsSize != uint32(len(tc.payload)) {
				t.Errorf("ArgsSize mismatch: got %d, want %d", req.Header.ArgsSize, len(tc.payload))
			}
			if !bytes.Equal(req.Payload, tc.payload) {
				t.Errorf("Payload mismatch: got %d bytes, want %d", len(req.Payload), len(tc.payload))
			}
		})
	}
}

func TestRequestLengthFields(t *testing.T) {
	h := &Header{ServiceName: "Echo", MethodName: "Ping"}
	payload := []byte(`{"msg":"hi"}`)
	frame, err := EncodeRequest(h, payload)
	if err != nil {
		t.Fatal(err)
	}

	total := binary.BigEndian.Uint32(frame[0:4])
	headerLen := binary.BigEndian.Uint32(frame[4:8])
	if int(total) != len(frame)-4 {
		t.Fatalf("total_len %d does not cover the frame (%d bytes after prefix)", total, len(frame)-4)
	}
	if total != 4+headerLen+uint32(len(payload)) {
		t.Fatalf("total_len %d != 4 + header_len %d + payload %d", total, headerLen, len(payload))
	}
	if !bytes.Equal(frame[8+headerLen:], payload) {
		t.Fatalf("payload is not at the end of the frame")
	}
}

func TestDecodeRequestExactConsumption(t *testing.T) {
	for _, size := range []int{0, 1, 7, 4096} {
		payload := bytes.Repeat([]byte{'x'}, size)
		frame, err := EncodeRequest(&Header{ServiceName: "Echo", MethodName: "Ping"}, payload)
		if err != nil {
			t.Fatal(err)
		}
		trailer := []byte("next-frame")

		r := bytes.NewReader(append(frame, trailer...))
		if _, err := DecodeRequest(r, 0); err != nil {
			t.Fatalf("size %d: DecodeRequest failed: %v", size, err)
		}
		rest, _ := io.ReadAll(r)
		if !bytes.Equal(rest, trailer) {
			t.Fatalf("size %d: decoder left %q, want %q", size, rest, trailer)
		}
	}
}

func TestDecodeRequestTruncated(t *testing.T) {
	frame, err := EncodeRequest(&Header{ServiceName: "Echo", MethodName: "Ping"}, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}

	for _, cut := range []int{0, 2, 4, 9, len(frame) - 1} {
		_, err := DecodeRequest(bytes.NewReader(frame[:cut]), 0)
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("cut at %d: expect ErrConnectionClosed, got %v", cut, err)
		}
		if errors.Is(err, ErrInvalidFrame) {
			t.Errorf("cut at %d: truncation must not be reported as ErrInvalidFrame", cut)
		}
	}
}

func TestDecodeRequestOversized(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(1<<30))

	_, err := DecodeRequest(&buf, 1024)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expect ErrInvalidFrame, got %v", err)
	}
}

func TestDecodeRequestBadHeaderLen(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(8))   // total_len
	binary.Write(&buf, binary.BigEndian, uint32(100)) // header_len, larger than the frame
	buf.Write([]byte{0, 0, 0, 0})

	_, err := DecodeRequest(&buf, 0)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expect ErrInvalidFrame, got %v", err)
	}
}

func TestDecodeRequestShortTotalLen(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(2))
	buf.Write([]byte{0, 0})

	_, err := DecodeRequest(&buf, 0)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expect ErrInvalidFrame, got %v", err)
	}
}

func TestDecodeRequestArgsSizeMismatch(t *testing.T) {
	h := Header{ServiceName: "Echo", MethodName: "Ping", ArgsSize: 99}
	headerBytes := h.Marshal()
	payload := []byte("short")

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(4+len(headerBytes)+len(payload)))
	binary.Write(&buf, binary.BigEndian, uint32(len(headerBytes)))
	buf.Write(headerBytes)
	buf.Write(payload)

	_, err := DecodeRequest(&buf, 0)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expect ErrInvalidFrame, got %v", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResponse(&buf, []byte("result")); err != nil {
		t.Fatal(err)
	}
	if err := WriteResponse(&buf, nil); err != nil {
		t.Fatal(err)
	}

	first, err := DecodeResponse(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "result" {
		t.Fatalf("expect %q, got %q", "result", first)
	}
	second, err := DecodeResponse(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("expect empty payload, got %d bytes", len(second))
	}
	if _, err := DecodeResponse(&buf, 0); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expect ErrConnectionClosed at end of stream, got %v", err)
	}
}

func TestDecodeResponseOversized(t *testing.T) {
	frame, err := EncodeResponse(make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeResponse(bytes.NewReader(frame), 32); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expect ErrInvalidFrame, got %v", err)
	}
}

func TestHeaderSkipsUnknownFields(t *testing.T) {
	h := Header{ServiceName: "Echo", MethodName: "Ping", ArgsSize: 5}
	b := h.Marshal()
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	var got Header
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != h {
		t.Fatalf("expect %+v, got %+v", h, got)
	}
}

func TestHeaderGarbage(t *testing.T) {
	var h Header
	if err := h.Unmarshal([]byte{0x0a, 0xff}); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expect ErrInvalidFrame, got %v", err)
	}
}
