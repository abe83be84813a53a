package transport

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/edgerun/ipcbus/internal/sockpool"
)

// Phase is a gateway connection's lifecycle state, matching spec §4.6.
type Phase int32

const (
	PhaseInit Phase = iota
	PhaseConnected
)

// Connection is the per-slot state the gateway pool's user field holds.
// phase is atomic so that a bridge goroutine (writing a pushed event) can
// observe it without taking the write mutex, mirroring the teacher's
// atomic-phase style used for its own connection bookkeeping.
type Connection struct {
	Handle sockpool.Handle

	phase atomic.Int32

	ComponentName string
	Svcuid        string

	writeMu sync.Mutex // serializes frame writes per connection, per spec §5 ordering guarantee
}

func newConnection(h sockpool.Handle) *Connection {
	c := &Connection{Handle: h}
	c.phase.Store(int32(PhaseInit))
	return c
}

// Phase returns the connection's current lifecycle phase.
func (c *Connection) Phase() Phase { return Phase(c.phase.Load()) }

func (c *Connection) setPhase(p Phase) { c.phase.Store(int32(p)) }

// WithWriteLock runs fn while holding the connection's write-serialization
// mutex. Server.WriteFrame takes it for every frame it writes, including the
// events the subscription bridge pushes through WriteFrame.
func (c *Connection) WithWriteLock(fn func()) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fn()
}
