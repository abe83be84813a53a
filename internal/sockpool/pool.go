// Package sockpool implements the fixed-capacity handle table described in
// spec §3 (Handle, Socket pool) and §4.3. A Handle is an opaque uint32
// packing a 16-bit slot index and a 16-bit generation counter; it is valid
// only while the slot's generation matches. The pool is the sole owner of
// every connection registered with it.
//
// Grounded on _examples/original_source/modules/core-bus/src/*.c (which
// thread every request through an fd + handle pair resolved via the pool)
// and on the teacher's internal/gateway/retention/inmem.go mutex discipline
// (slot metadata guarded by one mutex, with the actual I/O happening
// outside the critical section). Go's net.Conn already wraps the
// runtime's netpoller, so where the C source dereferences a raw fd under
// epoll, this port stores a net.Conn in the slot and lets goroutines block
// on it directly — the idiomatic Go substitute for the C epoll reactor the
// spec calls out as "auxiliary" (§4.3 epoll_add/epoll_run); the core
// invariant (handles never alias a released slot) is unaffected by that
// substitution.
package sockpool

import (
	"net"
	"sync"

	"github.com/edgerun/ipcbus/internal/ggerr"
)

// Handle is an opaque reference to a pool slot: low 16 bits are the slot
// index, high 16 bits are the generation at registration time.
type Handle uint32

// Invalid is the zero Handle, never returned by Register.
const Invalid Handle = 0

func makeHandle(index, generation uint16) Handle {
	return Handle(uint32(generation)<<16 | uint32(index))
}

func (h Handle) index() uint16      { return uint16(h & 0xFFFF) }
func (h Handle) generation() uint16 { return uint16(h >> 16) }

type slot struct {
	conn       net.Conn
	generation uint16
	occupied   bool
	onRelease  func(h Handle, index int)
	user       any
}

// Pool is a fixed-capacity table of connection handles guarded by a single
// mutex for slot metadata; connection I/O happens outside the lock.
type Pool struct {
	mu    sync.Mutex
	slots []slot
}

// New returns a Pool with the given fixed capacity.
func New(capacity int) *Pool {
	return &Pool{slots: make([]slot, capacity)}
}

// Register stores conn in a free slot, bumps its generation, and returns the
// composed Handle. onRelease, if non-nil, is invoked synchronously by Close
// when the slot is later released, without the pool mutex held and while
// the handle still resolves (so it may call User), before the slot is
// cleared.
func (p *Pool) Register(conn net.Conn, onRelease func(h Handle, index int)) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if !p.slots[i].occupied {
			p.slots[i].occupied = true
			p.slots[i].conn = conn
			p.slots[i].generation++
			p.slots[i].onRelease = onRelease
			p.slots[i].user = nil
			return makeHandle(uint16(i), p.slots[i].generation), nil
		}
	}
	return Invalid, ggerr.New(ggerr.NoMem, "socket pool exhausted")
}

// resolve returns the slot index if h is currently valid, else false. Must
// be called with p.mu held.
func (p *Pool) resolveLocked(h Handle) (int, bool) {
	idx := int(h.index())
	if idx < 0 || idx >= len(p.slots) {
		return 0, false
	}
	s := &p.slots[idx]
	if !s.occupied || s.generation != h.generation() {
		return 0, false
	}
	return idx, true
}

// Close releases h: if it is still valid, invokes the release callback,
// closes the underlying connection, and bumps the generation so the handle
// can never resolve again. Stale handles are a silent no-op, matching
// spec §4.3.
func (p *Pool) Close(h Handle) {
	p.mu.Lock()
	idx, ok := p.resolveLocked(h)
	if !ok {
		p.mu.Unlock()
		return
	}
	onRelease := p.slots[idx].onRelease
	p.slots[idx].onRelease = nil
	p.mu.Unlock()

	// h still resolves while the callback runs; clearing onRelease first
	// keeps a concurrent Close from running it twice.
	if onRelease != nil {
		onRelease(h, idx)
	}

	p.mu.Lock()
	if _, ok := p.resolveLocked(h); !ok {
		p.mu.Unlock()
		return
	}
	s := &p.slots[idx]
	conn := s.conn
	s.occupied = false
	s.conn = nil
	s.user = nil
	s.generation++
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// WithHandle runs fn(conn) while holding the pool mutex, guaranteeing the
// slot cannot be released concurrently. fn must not block on socket I/O or
// re-enter the pool (see spec §5 "no lock held across a blocking read").
func (p *Pool) WithHandle(h Handle, fn func(conn net.Conn)) error {
	p.mu.Lock()
	idx, ok := p.resolveLocked(h)
	if !ok {
		p.mu.Unlock()
		return ggerr.New(ggerr.NotConnected, "handle is stale")
	}
	conn := p.slots[idx].conn
	fn(conn)
	p.mu.Unlock()
	return nil
}

// SetUser attaches arbitrary per-slot state (e.g. connection phase,
// subscription bookkeeping) to h.
func (p *Pool) SetUser(h Handle, user any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.resolveLocked(h)
	if !ok {
		return ggerr.New(ggerr.NotConnected, "handle is stale")
	}
	p.slots[idx].user = user
	return nil
}

// User returns the per-slot state attached via SetUser.
func (p *Pool) User(h Handle) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.resolveLocked(h)
	if !ok {
		return nil, ggerr.New(ggerr.NotConnected, "handle is stale")
	}
	return p.slots[idx].user, nil
}

// Conn resolves h to its net.Conn for callers that need to perform their
// own framed I/O (e.g. internal/corebus/server reading a whole frame at
// once). The lookup happens under the lock; the returned conn must only be
// used for I/O, never to bypass Close.
func (p *Pool) Conn(h Handle) (net.Conn, error) {
	return p.conn(h)
}

// conn resolves h to its net.Conn without holding the mutex across I/O: the
// lookup happens under the lock, the I/O happens after release, matching
// spec §4.3's read/write contract.
func (p *Pool) conn(h Handle) (net.Conn, error) {
	p.mu.Lock()
	idx, ok := p.resolveLocked(h)
	if !ok {
		p.mu.Unlock()
		return nil, ggerr.New(ggerr.NotConnected, "handle is stale")
	}
	conn := p.slots[idx].conn
	p.mu.Unlock()
	return conn, nil
}

// Read performs a full-buffer read on h's connection without holding the
// pool mutex during I/O. A short read due to the peer closing mid-read
// surfaces as NotConnected.
func (p *Pool) Read(h Handle, buf []byte) error {
	conn, err := p.conn(h)
	if err != nil {
		return err
	}
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return ggerr.Wrap(ggerr.NotConnected, "read failed before buffer filled", err)
		}
	}
	return nil
}

// Write performs a full-buffer write on h's connection without holding the
// pool mutex during I/O.
func (p *Pool) Write(h Handle, buf []byte) error {
	conn, err := p.conn(h)
	if err != nil {
		return err
	}
	n := 0
	for n < len(buf) {
		m, err := conn.Write(buf[n:])
		n += m
		if err != nil {
			return ggerr.Wrap(ggerr.NotConnected, "write failed before buffer flushed", err)
		}
	}
	return nil
}

// Len reports the pool's fixed capacity.
func (p *Pool) Len() int { return len(p.slots) }
