package client

import (
	"context"
	"net"
	"testing"
	"time"

	"dmonitor/codec"
	"dmonitor/server"
)

func benchServer(b *testing.B, c codec.Codec) string {
	srv := server.NewServer(server.WithCodec(c))
	if err := srv.Register(echoService()); err != nil {
		b.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	go srv.Serve(ln)
	b.Cleanup(func() { srv.Shutdown(time.Second) })
	return ln.Addr().String()
}

func BenchmarkCallSerial(b *testing.B) {
	addr := benchServer(b, &codec.JSONCodec{})
	ch := NewChannel(WithCodec(&codec.JSONCodec{}))
	defer ch.Close()

	req := &Msg{Msg: "ping"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var reply Msg
		if err := ch.Call(context.Background(), addr, "Echo", "Ping", req, &reply); err != nil {
			b.Fatal(err)
		}
	}
}

// Shared channel: callers queue on the channel mutex.
func BenchmarkCallSharedChannel(b *testing.B) {
	addr := benchServer(b, &codec.JSONCodec{})
	ch := NewChannel(WithCodec(&codec.JSONCodec{}))
	defer ch.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		req := &Msg{Msg: "ping"}
		for pb.Next() {
			var reply Msg
			if err := ch.Call(context.Background(), addr, "Echo", "Ping", req, &reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
