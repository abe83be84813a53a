// Package bridge implements the subscription bridge described in spec
// §4.9: it binds one gateway stream to one core-bus subscription, forwards
// bus events as modeled frames on the gateway stream, and owns cleanup when
// either side closes.
//
// Grounded on _examples/original_source/modules/ggipcd/src/ipc_subscriptions.c
// (subscription slot table, resp_handle/stream_id/recv_handle triple,
// connection-close cleanup iterating the slot table). The source's
// fixed-capacity array guarded by one mutex is kept as a plain slice under
// one sync.Mutex (spec §3 Subscription context; §5 "dedicated mutex").
package bridge

import (
	"sync"

	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/sockpool"
	"github.com/edgerun/ipcbus/internal/telemetry"
)

// MaxSessions bounds the number of concurrently bridged subscriptions,
// matching the source's fixed-capacity GglIpcSubscription array.
const MaxSessions = 256

// Formatter turns one bus subscription event into a modeled
// service-model-type string and JSON payload, specific to the operation
// that opened the session (e.g. aws.greengrass#SubscriptionResponseMessage
// for gg_pubsub, aws.greengrass#IoTCoreMessage for iotcored).
type Formatter func(value gobj.Object) (modelType string, payload []byte, err error)

// Session is one bound (gateway stream) <-> (bus subscription) pair.
type Session struct {
	bridge   *Bridge
	conn     *transport.Connection
	streamID int32
	format   Formatter

	mu         sync.Mutex
	recvHandle sockpool.Handle
	closed     bool
}

// Bridge owns every active Session for one gateway listener, wired to the
// gateway transport (to push frames, and to learn when a connection
// closes) and to the core-bus client's subscription table (to close a bus
// subscription when the owning gateway connection or stream goes away).
type Bridge struct {
	mu       sync.Mutex
	sessions []*Session

	gw   *transport.Server
	subs *client.Subscriptions
}

// New builds a Bridge and registers its connection-close hook on gw.
func New(gw *transport.Server, subs *client.Subscriptions) *Bridge {
	b := &Bridge{gw: gw, subs: subs}
	gw.OnConnectionClosed(b.closeConnection)
	return b
}

// Open claims a bridge slot for (conn, streamID), matching ipc_subscriptions.c's
// claim-before-subscribe ordering: the slot exists before the bus
// subscription is requested so a concurrent connection close can never
// race past it unobserved.
func (b *Bridge) Open(conn *transport.Connection, streamID int32, format Formatter) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.sessions) >= MaxSessions {
		return nil, ggerr.New(ggerr.NoMem, "subscription bridge at capacity")
	}
	s := &Session{bridge: b, conn: conn, streamID: streamID, format: format}
	b.sessions = append(b.sessions, s)
	telemetry.BridgeSessions.Inc()
	telemetry.GatewayStreams.Inc()
	return s, nil
}

// Attach records the bus subscription handle once client.Subscribe
// succeeds.
func (s *Session) Attach(h sockpool.Handle) {
	s.mu.Lock()
	s.recvHandle = h
	s.mu.Unlock()
}

// Release drops the session without touching any bus subscription, used
// when the subscribe call itself failed (step 3, failure branch of spec
// §4.9).
func (s *Session) Release() {
	s.bridge.remove(s)
}

// OnResponse adapts client.OnResponse for this session: it formats the bus
// event and writes it to the gateway stream. A write failure or a format
// error causes the caller (the subscription reactor) to close the bus
// subscription, matching "If the write fails ... the bridge returns an
// error; the caller closes the bus subscription."
func (s *Session) OnResponse(_ any, _ sockpool.Handle, value gobj.Object) error {
	modelType, payload, err := s.format(value)
	if err != nil {
		return err
	}
	f := transport.JSONFrame(transport.MessageApplicationMessage, transport.FlagNone, s.streamID, modelType, payload)
	return s.bridge.gw.WriteFrame(s.conn, f)
}

// OnClose adapts client.OnClose: the bus subscription ended on its own
// (peer close, server close, or an OnResponse error), so the session is
// simply dropped from the bridge table; nothing further needs closing.
func (s *Session) OnClose(_ any, _ sockpool.Handle) {
	s.bridge.remove(s)
}

// Terminate closes the session's bus subscription in response to a
// terminate-stream frame from the gateway client (spec §3 Lifecycles).
func (s *Session) Terminate() {
	s.mu.Lock()
	h := s.recvHandle
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return
	}
	if h != sockpool.Invalid {
		s.bridge.subs.Close(h) // fires OnClose, which removes the session
	} else {
		s.bridge.remove(s)
	}
}

func (b *Bridge) remove(target *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.sessions {
		if s == target {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			telemetry.BridgeSessions.Dec()
			telemetry.GatewayStreams.Dec()
			return
		}
	}
}

// closeConnection is the gateway transport's connection-release hook: it
// closes every bus subscription still bridged to conn, matching
// ipc_subscriptions.c's cleanup walk over the slot table keyed by
// resp_handle.
func (b *Bridge) closeConnection(conn *transport.Connection) {
	b.mu.Lock()
	var toClose []sockpool.Handle
	removed := 0
	remaining := b.sessions[:0:0]
	for _, s := range b.sessions {
		if s.conn == conn {
			s.mu.Lock()
			h := s.recvHandle
			s.closed = true
			s.mu.Unlock()
			if h != sockpool.Invalid {
				toClose = append(toClose, h)
			}
			removed++
		} else {
			remaining = append(remaining, s)
		}
	}
	b.sessions = remaining
	b.mu.Unlock()
	for i := 0; i < removed; i++ {
		telemetry.BridgeSessions.Dec()
		telemetry.GatewayStreams.Dec()
	}

	for _, h := range toClose {
		b.subs.Close(h)
	}
}

// StreamTerminate looks up the session for (conn, streamID) and terminates
// it, used by the dispatcher's Dispatcher.Terminate hook. It is a no-op if
// no session is bridged to that stream.
func (b *Bridge) StreamTerminate(conn *transport.Connection, streamID int32) {
	b.mu.Lock()
	var found *Session
	for _, s := range b.sessions {
		if s.conn == conn && s.streamID == streamID {
			found = s
			break
		}
	}
	b.mu.Unlock()
	if found != nil {
		found.Terminate()
	}
}
