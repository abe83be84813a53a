// Package client implements the core-bus client side: notify, call, and
// subscribe over per-interface Unix domain sockets.
//
// Grounded on _examples/original_source/core-bus/src/client_common.c
// (interface_connect, ggl_client_send_message, ggl_client_get_response)
// and client.c (ggl_notify, ggl_call). Dial retry uses
// github.com/cenkalti/backoff/v4, matching the teacher's
// internal/agent/exporter/grpc_exporter.go reconnect pattern.
package client

import (
	"net"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/edgerun/ipcbus/internal/corebus/wire"
	"github.com/edgerun/ipcbus/internal/frame"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

const (
	// MaxMsgLen is the largest frame this client will decode.
	MaxMsgLen = frame.DefaultMaxSize
	// InterfaceNameMax mirrors the server's limit.
	InterfaceNameMax = 50
	// socketTimeout bounds how long a call waits on a hung peer.
	socketTimeout = 5 * time.Second
)

// DialRetry controls how interface_connect retries a refused connection
// (e.g. the target daemon has not started its listener yet). A nil
// DialRetry disables retrying; connect fails immediately on the first
// refusal.
type DialRetry struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultDialRetry matches the teacher's default exporter backoff: start
// fast, cap at 15s, give up after a minute.
func DefaultDialRetry() *DialRetry {
	return &DialRetry{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

func connectInterface(socketDir, iface string, retry *DialRetry) (net.Conn, error) {
	if len(iface) == 0 || len(iface) > InterfaceNameMax {
		return nil, ggerr.New(ggerr.Range, "interface name too long")
	}
	path := filepath.Join(socketDir, iface)

	dial := func() (net.Conn, error) {
		conn, err := net.DialTimeout("unix", path, socketTimeout)
		if err != nil {
			return nil, ggerr.Wrap(ggerr.Failure, "failed to connect to bus server", err)
		}
		return conn, nil
	}

	if retry == nil {
		return dial()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retry.InitialInterval
	bo.MaxInterval = retry.MaxInterval
	bo.MaxElapsedTime = retry.MaxElapsedTime

	var conn net.Conn
	err := backoff.Retry(func() error {
		c, err := dial()
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, bo)
	if err != nil {
		return nil, ggerr.Wrap(ggerr.Failure, "failed to connect to bus server after retry", err)
	}
	return conn, nil
}

func sendMessage(conn net.Conn, method string, t wire.RequestType, params gobj.Object) error {
	_ = conn.SetDeadline(time.Now().Add(socketTimeout))
	payload, err := gobj.Encode(params)
	if err != nil {
		return err
	}
	f := frame.Frame{Headers: wire.RequestHeaders(method, t), Payload: payload}
	return frame.Write(conn, f, MaxMsgLen)
}

// getResponse reads one frame and turns an "error" header into a Go error,
// matching ggl_client_get_response.
func getResponse(conn net.Conn) (frame.Frame, error) {
	_ = conn.SetDeadline(time.Now().Add(socketTimeout))
	f, err := frame.Read(conn, MaxMsgLen)
	if err != nil {
		return frame.Frame{}, err
	}
	if code, ok := wire.ErrorCode(f); ok {
		return f, ggerr.New(ggerr.Kind(code), "bus server returned an error response")
	}
	return f, nil
}

// Notify sends a fire-and-forget request and does not wait for a response.
// Grounded on ggl_notify.
func Notify(socketDir, iface, method string, params gobj.Object) error {
	conn, err := connectInterface(socketDir, iface, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	return sendMessage(conn, method, wire.Notify, params)
}

// Call sends a request and waits for a unary response. Grounded on
// ggl_call.
func Call(socketDir, iface, method string, params gobj.Object) (gobj.Object, error) {
	conn, err := connectInterface(socketDir, iface, nil)
	if err != nil {
		return gobj.Object{}, err
	}
	defer conn.Close()

	if err := sendMessage(conn, method, wire.Call, params); err != nil {
		return gobj.Object{}, err
	}
	f, err := getResponse(conn)
	if err != nil {
		return gobj.Object{}, err
	}
	if len(f.Payload) == 0 {
		return gobj.Null(), nil
	}
	return gobj.Decode(f.Payload)
}

// CallWithRetry is Call but retries the initial dial with retry (or
// DefaultDialRetry() if nil) before giving up.
func CallWithRetry(socketDir, iface, method string, params gobj.Object, retry *DialRetry) (gobj.Object, error) {
	if retry == nil {
		retry = DefaultDialRetry()
	}
	conn, err := connectInterface(socketDir, iface, retry)
	if err != nil {
		return gobj.Object{}, err
	}
	defer conn.Close()

	if err := sendMessage(conn, method, wire.Call, params); err != nil {
		return gobj.Object{}, err
	}
	f, err := getResponse(conn)
	if err != nil {
		return gobj.Object{}, err
	}
	if len(f.Payload) == 0 {
		return gobj.Null(), nil
	}
	return gobj.Decode(f.Payload)
}
