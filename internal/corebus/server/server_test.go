package server

import (
	"net"
	"testing"
	"time"

	"github.com/edgerun/ipcbus/internal/corebus/wire"
	"github.com/edgerun/ipcbus/internal/frame"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendRequest(t *testing.T, conn net.Conn, method string, reqType wire.RequestType, params gobj.Object) {
	t.Helper()
	payload, err := gobj.Encode(params)
	if err != nil {
		t.Fatalf("encode params: %v", err)
	}
	f := frame.Frame{Headers: wire.RequestHeaders(method, reqType), Payload: payload}
	if err := frame.Write(conn, f, MaxMsgLen); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readResponse(t *testing.T, conn net.Conn) frame.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := frame.Read(conn, MaxMsgLen)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return f
}

func TestCallEchoesPayloadAndCloses(t *testing.T) {
	dir := t.TempDir()

	echo := MethodDesc{
		Name: "echo",
		Handler: func(s *Server, h sockpool.Handle, params gobj.Object) error {
			return s.Respond(h, params)
		},
	}
	srv, err := Listen(dir, "test-echo", []MethodDesc{echo})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn := dial(t, dir+"/test-echo")
	req := gobj.Map(gobj.Field("x", gobj.I64(42)))
	sendRequest(t, conn, "echo", wire.Call, req)

	resp := readResponse(t, conn)
	got, err := gobj.Decode(resp.Payload)
	if err != nil {
		t.Fatalf("decode response payload: %v", err)
	}
	if !gobj.Equal(got, req) {
		t.Fatalf("expected echoed params, got %+v", got)
	}
}

func TestNotifyClosesWithoutResponding(t *testing.T) {
	dir := t.TempDir()
	seen := make(chan gobj.Object, 1)

	fire := MethodDesc{
		Name: "fire",
		Handler: func(s *Server, h sockpool.Handle, params gobj.Object) error {
			seen <- params
			return s.Respond(h, gobj.Null())
		},
	}
	srv, err := Listen(dir, "test-notify", []MethodDesc{fire})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn := dial(t, dir+"/test-notify")
	req := gobj.Map(gobj.Field("key", gobj.Str("v")))
	sendRequest(t, conn, "fire", wire.Notify, req)

	select {
	case got := <-seen:
		if !gobj.Equal(got, req) {
			t.Fatalf("unexpected params: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if n, err := conn.Read(buf); n != 0 || err == nil {
		t.Fatalf("expected connection closed without a response, got n=%d err=%v", n, err)
	}
}

func TestUnknownMethodFailsNoEntry(t *testing.T) {
	dir := t.TempDir()
	srv, err := Listen(dir, "test-noentry", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn := dial(t, dir+"/test-noentry")
	sendRequest(t, conn, "missing", wire.Call, gobj.Map())

	resp := readResponse(t, conn)
	code, ok := wire.ErrorCode(resp)
	if !ok || ggerr.Kind(code) != ggerr.NoEntry {
		t.Fatalf("expected NoEntry error header, got ok=%v code=%d", ok, code)
	}
}

func TestRequestTypeMismatchFailsInvalid(t *testing.T) {
	dir := t.TempDir()
	sub := MethodDesc{
		Name:         "feed",
		Subscription: true,
		Handler: func(s *Server, h sockpool.Handle, params gobj.Object) error {
			return s.SubAccept(h, nil)
		},
	}
	srv, err := Listen(dir, "test-mismatch", []MethodDesc{sub})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn := dial(t, dir+"/test-mismatch")
	sendRequest(t, conn, "feed", wire.Call, gobj.Map())

	resp := readResponse(t, conn)
	code, ok := wire.ErrorCode(resp)
	if !ok || ggerr.Kind(code) != ggerr.Invalid {
		t.Fatalf("expected Invalid error header, got ok=%v code=%d", ok, code)
	}
}

func TestSubscribeAcceptThenPushedEvents(t *testing.T) {
	dir := t.TempDir()
	var srv *Server
	sub := MethodDesc{
		Name:         "feed",
		Subscription: true,
		Handler: func(s *Server, h sockpool.Handle, params gobj.Object) error {
			if err := s.SubAccept(h, nil); err != nil {
				return err
			}
			go func() {
				_ = s.SubRespond(h, gobj.Str("event-1"))
			}()
			return nil
		},
	}
	var err error
	srv, err = Listen(dir, "test-sub", []MethodDesc{sub})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn := dial(t, dir+"/test-sub")
	sendRequest(t, conn, "feed", wire.Subscribe, gobj.Map())

	accept := readResponse(t, conn)
	if !wire.Accepted(accept) {
		t.Fatalf("expected accepted=1, got headers %+v", accept.Headers)
	}

	event := readResponse(t, conn)
	got, err := gobj.Decode(event.Payload)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	str, ok := got.AsString()
	if !ok || str != "event-1" {
		t.Fatalf("expected event-1, got %+v", got)
	}
}

func TestInterfaceNameTooLongFailsRange(t *testing.T) {
	dir := t.TempDir()
	long := make([]byte, InterfaceNameMax+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Listen(dir, string(long), nil); ggerr.KindOf(err) != ggerr.Range {
		t.Fatalf("expected Range, got %v", err)
	}
}
