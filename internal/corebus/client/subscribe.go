// Subscription client. Grounded on
// _examples/original_source/core-bus/src/client_subscribe.c.
//
// The source starts one process-wide epoll thread (lazily, via a
// constructor function) that multiplexes every subscription fd and
// demultiplexes frames to per-subscription callbacks. The idiomatic Go
// substitute is one goroutine per subscription blocking directly on its
// net.Conn — the runtime netpoller already provides the multiplexing an
// epoll_wait loop exists to hand-roll in C, so there is no separate
// "reactor" type to construct or start explicitly. Each goroutine is the
// reactor for its one subscription.
package client

import (
	"net"

	"github.com/edgerun/ipcbus/internal/corebus/wire"
	"github.com/edgerun/ipcbus/internal/frame"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

// OnResponse is invoked once per event delivered on a subscription. An
// error return closes the subscription, matching the source's contract
// that a callback error unsubscribes.
type OnResponse func(ctx any, h sockpool.Handle, value gobj.Object) error

// OnClose is invoked once when a subscription's connection is released,
// whether by peer close, server close, or a callback error.
type OnClose func(ctx any, h sockpool.Handle)

type subState struct {
	onResponse OnResponse
	onClose    OnClose
	ctx        any
}

// Subscriptions is a fixed-capacity table of this process's active bus
// subscriptions, mirroring the source's static sub_fds/sub_generations
// pool (default GGL_COREBUS_CLIENT_MAX_SUBSCRIPTIONS = 50).
type Subscriptions struct {
	pool *sockpool.Pool
}

// DefaultMaxSubscriptions matches the source's compiled-in default.
const DefaultMaxSubscriptions = 50

// NewSubscriptions creates an empty subscription table with the given
// capacity.
func NewSubscriptions(capacity int) *Subscriptions {
	return &Subscriptions{pool: sockpool.New(capacity)}
}

func makeSubscribeRequest(socketDir, iface, method string, params gobj.Object) (net.Conn, error) {
	conn, err := connectInterface(socketDir, iface, nil)
	if err != nil {
		return nil, err
	}
	if err := sendMessage(conn, method, wire.Subscribe, params); err != nil {
		_ = conn.Close()
		return nil, err
	}
	f, err := getResponse(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !wire.Accepted(f) {
		_ = conn.Close()
		return nil, ggerr.New(ggerr.Failure, "response for subscription not accepted")
	}
	return conn, nil
}

// Subscribe opens a bus subscription and starts the goroutine that
// delivers events to onResponse until the subscription closes. Grounded on
// ggl_subscribe.
func (s *Subscriptions) Subscribe(
	socketDir, iface, method string,
	params gobj.Object,
	onResponse OnResponse,
	onClose OnClose,
	ctx any,
) (sockpool.Handle, error) {
	conn, err := makeSubscribeRequest(socketDir, iface, method, params)
	if err != nil {
		return sockpool.Invalid, err
	}

	st := &subState{onResponse: onResponse, onClose: onClose, ctx: ctx}

	h, err := s.pool.Register(conn, func(h sockpool.Handle, _ int) {
		if st.onClose != nil {
			st.onClose(st.ctx, h)
		}
	})
	if err != nil {
		_ = conn.Close()
		return sockpool.Invalid, err
	}
	if err := s.pool.SetUser(h, st); err != nil {
		s.pool.Close(h)
		return sockpool.Invalid, err
	}

	go s.reactorLoop(h)
	return h, nil
}

// Close ends a subscription, firing its onClose callback. Grounded on
// ggl_client_sub_close.
func (s *Subscriptions) Close(h sockpool.Handle) {
	s.pool.Close(h)
}

func (s *Subscriptions) reactorLoop(h sockpool.Handle) {
	for {
		if err := s.deliverOne(h); err != nil {
			s.pool.Close(h)
			return
		}
	}
}

func (s *Subscriptions) deliverOne(h sockpool.Handle) error {
	conn, err := s.pool.Conn(h)
	if err != nil {
		return err
	}

	f, err := frame.Read(conn, MaxMsgLen)
	if err != nil {
		return err
	}
	if code, ok := wire.ErrorCode(f); ok {
		return ggerr.New(ggerr.Kind(code), "subscription response carried an error header")
	}

	var obj gobj.Object
	if len(f.Payload) > 0 {
		obj, err = gobj.Decode(f.Payload)
		if err != nil {
			logging.Sugar().Errorw("failed to decode subscription response payload", "error", err)
			return err
		}
	} else {
		obj = gobj.Null()
	}

	userState, err := s.pool.User(h)
	if err != nil {
		return err
	}
	st, _ := userState.(*subState)
	if st == nil || st.onResponse == nil {
		return nil
	}
	return st.onResponse(st.ctx, h, obj)
}
