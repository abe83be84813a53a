package sockpool

import (
	"net"
	"sync"
	"testing"

	"github.com/edgerun/ipcbus/internal/ggerr"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return a, b
}

func TestRegisterCloseInvalidatesHandle(t *testing.T) {
	p := New(4)
	a, _ := pipePair(t)

	h, err := p.Register(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if h == Invalid {
		t.Fatal("expected non-zero handle")
	}

	p.Close(h)

	if err := p.WithHandle(h, func(net.Conn) {}); ggerr.KindOf(err) != ggerr.NotConnected {
		t.Fatalf("expected NotConnected after close, got %v", err)
	}
	if _, err := p.conn(h); ggerr.KindOf(err) != ggerr.NotConnected {
		t.Fatalf("expected NotConnected after close, got %v", err)
	}
}

func TestCloseIsIdempotentNoOpOnStaleHandle(t *testing.T) {
	p := New(2)
	a, _ := pipePair(t)
	h, err := p.Register(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Close(h)
	p.Close(h) // must not panic or double-invoke release
}

func TestReleaseCallbackFiresOnClose(t *testing.T) {
	p := New(2)
	a, _ := pipePair(t)

	called := make(chan struct{}, 1)
	h, err := p.Register(a, func(h Handle, idx int) { called <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	p.Close(h)
	select {
	case <-called:
	default:
		t.Fatal("expected release callback to fire synchronously during Close")
	}
}

func TestPoolExhaustionFailsNoMem(t *testing.T) {
	p := New(1)
	a, _ := pipePair(t)
	if _, err := p.Register(a, nil); err != nil {
		t.Fatal(err)
	}
	b, _ := pipePair(t)
	if _, err := p.Register(b, nil); ggerr.KindOf(err) != ggerr.NoMem {
		t.Fatalf("expected NoMem, got %v", err)
	}
}

func TestNoTwoLiveHandlesShareASlotUnderConcurrentChurn(t *testing.T) {
	p := New(8)
	var wg sync.WaitGroup
	seen := make(chan Handle, 1000)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _ := pipePair(t)
			h, err := p.Register(conn, nil)
			if err != nil {
				return // pool momentarily full, acceptable under contention
			}
			seen <- h
			p.Close(h)
		}()
	}
	wg.Wait()
	close(seen)

	live := map[Handle]bool{}
	for h := range seen {
		if live[h] {
			t.Fatalf("handle %v observed twice as live", h)
		}
		live[h] = true
	}
}
