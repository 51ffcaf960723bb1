package transport

import (
	"context"
	"net"
	"testing"
	"time"

	zterr "github.com/zteradb/zteradb-go/errors"
	"github.com/zteradb/zteradb-go/wire"
)

// startServer runs handler on the first accepted connection and returns the
// listener's port.
func startServer(t *testing.T, handler func(net.Conn)) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func mustOpen(t *testing.T, port int, opts Options) *Transport {
	t.Helper()
	tr, err := Open(context.Background(), "127.0.0.1", port, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func writeMessage(conn net.Conn, code wire.ResponseCode, data interface{}) {
	wire.WriteJSONFrame(conn, map[string]interface{}{
		"response_code": int(code),
		"data":          data,
	})
}

func TestOpenFailure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Open(context.Background(), "127.0.0.1", port, Options{})
	if !zterr.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestSendReceiveStream(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {
		// Consume the request frame, then stream two rows and the
		// terminator.
		if _, err := wire.ReadFrame(conn); err != nil {
			return
		}
		writeMessage(conn, wire.ResponseQueryData, map[string]interface{}{"id": 1})
		writeMessage(conn, wire.ResponseQueryData, map[string]interface{}{"id": 2})
		writeMessage(conn, wire.ResponseQueryComplete, nil)
	})

	tr := mustOpen(t, port, Options{})
	if err := tr.SendJSON(map[string]interface{}{"request_type": int(wire.RequestQuery)}); err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}

	stream := tr.Receive()
	var ids []float64
	for stream.Next() {
		msg := stream.Message()
		if msg.ResponseCode != wire.ResponseQueryData {
			t.Fatalf("unexpected response code %#x", msg.ResponseCode)
		}
		ids = append(ids, msg.Row()["id"].(float64))
	}
	if stream.Err() != nil {
		t.Fatalf("stream error: %v", stream.Err())
	}

	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("rows = %v, want [1 2]", ids)
	}

	// Drained stream stays drained.
	if stream.Next() {
		t.Error("drained stream yielded another frame")
	}
}

func TestStreamInterrupted(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {
		if _, err := wire.ReadFrame(conn); err != nil {
			return
		}
		writeMessage(conn, wire.ResponseQueryData, map[string]interface{}{"id": 1})
		// Drop the connection mid-stream, before the terminator.
	})

	tr := mustOpen(t, port, Options{})
	if err := tr.SendJSON(map[string]interface{}{"request_type": int(wire.RequestQuery)}); err != nil {
		t.Fatal(err)
	}

	stream := tr.Receive()
	if !stream.Next() {
		t.Fatalf("expected first frame, got error %v", stream.Err())
	}
	if stream.Next() {
		t.Fatal("expected stream to fail after server hangup")
	}
	if !zterr.IsProtocol(stream.Err()) {
		t.Errorf("expected protocol error, got %v", stream.Err())
	}
	if !tr.Closed() {
		t.Error("transport should be closed after an interrupted read")
	}
}

func TestTruncatedFrame(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {
		if _, err := wire.ReadFrame(conn); err != nil {
			return
		}
		// Advertise 100 bytes but send only 3.
		conn.Write([]byte{0x00, 0x00, 0x00, 0x64, 'a', 'b', 'c'})
	})

	tr := mustOpen(t, port, Options{})
	if err := tr.SendJSON(map[string]interface{}{}); err != nil {
		t.Fatal(err)
	}

	stream := tr.Receive()
	if stream.Next() {
		t.Fatal("expected truncated frame to fail")
	}
	if !zterr.IsProtocol(stream.Err()) {
		t.Errorf("expected protocol error, got %v", stream.Err())
	}
}

func TestReadDeadline(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {
		// Never respond; hold the connection open past the deadline.
		time.Sleep(2 * time.Second)
	})

	tr := mustOpen(t, port, Options{Timeout: 50 * time.Millisecond})
	stream := tr.Receive()
	if stream.Next() {
		t.Fatal("expected deadline to end the stream")
	}
	if !zterr.IsConnection(stream.Err()) {
		t.Errorf("expected connection error on deadline, got %v", stream.Err())
	}
}

func TestCloseIdempotent(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {})

	tr := mustOpen(t, port, Options{})
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
	if !tr.Closed() {
		t.Error("Closed() should report true")
	}
}

func TestSendOnClosedTransport(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {})

	tr := mustOpen(t, port, Options{})
	tr.Close()

	if err := tr.Send([]byte("{}")); !zterr.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestBadJSONFrame(t *testing.T) {
	port := startServer(t, func(conn net.Conn) {
		if _, err := wire.ReadFrame(conn); err != nil {
			return
		}
		conn.Write(wire.EncodeFrame([]byte(`{"response_code":`)))
	})

	tr := mustOpen(t, port, Options{})
	if err := tr.SendJSON(map[string]interface{}{}); err != nil {
		t.Fatal(err)
	}

	stream := tr.Receive()
	if stream.Next() {
		t.Fatal("expected malformed frame to fail")
	}
	if !zterr.IsJSONParse(stream.Err()) {
		t.Errorf("expected JSON parse error, got %v", stream.Err())
	}
}
