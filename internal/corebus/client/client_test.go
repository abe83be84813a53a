package client

import (
	"testing"
	"time"

	"github.com/edgerun/ipcbus/internal/corebus/server"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

func TestCallRoundTrip(t *testing.T) {
	dir := t.TempDir()
	echo := server.MethodDesc{
		Name: "echo",
		Handler: func(s *server.Server, h sockpool.Handle, params gobj.Object) error {
			return s.Respond(h, params)
		},
	}
	srv, err := server.Listen(dir, "echo-iface", []server.MethodDesc{echo})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	req := gobj.Map(gobj.Field("thingName", gobj.Bytes([]byte("thing-1"))))
	got, err := Call(dir, "echo-iface", "echo", req)
	if err != nil {
		t.Fatal(err)
	}
	if !gobj.Equal(got, req) {
		t.Fatalf("expected echoed object, got %+v", got)
	}
}

func TestNotifyThenCallReadsStoredValue(t *testing.T) {
	dir := t.TempDir()
	store := map[string]gobj.Object{}

	write := server.MethodDesc{
		Name: "write",
		Handler: func(s *server.Server, h sockpool.Handle, params gobj.Object) error {
			key, _ := params.Get("key")
			str, _ := key.AsString()
			val, _ := params.Get("value")
			store[str] = val
			return s.Respond(h, gobj.Null())
		},
	}
	read := server.MethodDesc{
		Name: "read",
		Handler: func(s *server.Server, h sockpool.Handle, params gobj.Object) error {
			key, _ := params.Get("key")
			str, _ := key.AsString()
			v, ok := store[str]
			if !ok {
				s.ReturnErr(h, ggerr.NoEntry)
				return nil
			}
			return s.Respond(h, v)
		},
	}
	srv, err := server.Listen(dir, "gg_config", []server.MethodDesc{write, read})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	if err := Notify(dir, "gg_config", "write", gobj.Map(
		gobj.Field("key", gobj.Str("thingName")),
		gobj.Field("value", gobj.Bytes([]byte("thing-1"))),
	)); err != nil {
		t.Fatal(err)
	}

	got, err := Call(dir, "gg_config", "read", gobj.Map(gobj.Field("key", gobj.Str("thingName"))))
	if err != nil {
		t.Fatal(err)
	}
	str, ok := got.AsString()
	if !ok || str != "thing-1" {
		t.Fatalf("expected thing-1, got %+v", got)
	}
}

func TestCallUnknownMethodReturnsNoEntry(t *testing.T) {
	dir := t.TempDir()
	srv, err := server.Listen(dir, "empty-iface", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	_, err = Call(dir, "empty-iface", "missing", gobj.Map())
	if ggerr.KindOf(err) != ggerr.NoEntry {
		t.Fatalf("expected NoEntry, got %v", err)
	}
}

func TestSubscribeDeliversThreeEventsThenClose(t *testing.T) {
	dir := t.TempDir()
	sub := server.MethodDesc{
		Name:         "feed",
		Subscription: true,
		Handler: func(s *server.Server, h sockpool.Handle, params gobj.Object) error {
			if err := s.SubAccept(h, nil); err != nil {
				return err
			}
			go func() {
				for i := 0; i < 3; i++ {
					if err := s.SubRespond(h, gobj.I64(int64(i))); err != nil {
						return
					}
				}
				s.CloseSub(h)
			}()
			return nil
		},
	}
	srv, err := server.Listen(dir, "feed-iface", []server.MethodDesc{sub})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	events := make(chan int64, 3)
	closed := make(chan struct{})

	subs := NewSubscriptions(DefaultMaxSubscriptions)
	_, err = subs.Subscribe(dir, "feed-iface", "feed", gobj.Map(),
		func(ctx any, h sockpool.Handle, value gobj.Object) error {
			events <- value.I64
			return nil
		},
		func(ctx any, h sockpool.Handle) { close(closed) },
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(0); i < 3; i++ {
		select {
		case v := <-events:
			if v != i {
				t.Fatalf("expected event %d, got %d", i, v)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected onClose to fire after server closed subscription")
	}
}
