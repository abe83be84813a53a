package transport

import (
	"encoding/json"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/edgerun/ipcbus/internal/frame"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/internal/sockpool"
	"github.com/edgerun/ipcbus/internal/telemetry"
)

const (
	// GatewayMaxClients bounds simultaneously connected IPC clients.
	GatewayMaxClients = 128
	// MaxMsgLen is the largest gateway frame accepted.
	MaxMsgLen = frame.DefaultMaxSize
	// SocketName is the gateway's well-known socket filename, created
	// under the runtime root.
	SocketName = "gg-ipc.socket"
	// socketTimeout bounds how long a connection may go without sending a
	// complete frame, per spec §4.3 Policy: "Each open socket has receive
	// and send timeouts (default 5 s) to prevent indefinite blocking on
	// hung peers." Refreshed before every frame read since a gateway
	// connection stays open across many inbound frames.
	socketTimeout = 5 * time.Second

	socketMode = 0o666
)

// AuthResult is what a successful authentication attempt establishes about
// the connecting client.
type AuthResult struct {
	ComponentName string
	Svcuid        string
}

// Authenticator implements the two connect-time authentication modes
// described in spec §4.6.
type Authenticator interface {
	// AuthenticateToken validates a base64 svcuid (token mode). If
	// componentName is non-empty it must match the registered name.
	AuthenticateToken(authToken, componentName string) (AuthResult, error)
	// AuthenticatePeer validates a claimed componentName against the
	// connecting peer's pid via an external authority (peer mode), then
	// registers (idempotently) and mints a svcuid.
	AuthenticatePeer(pid int32, componentName string) (AuthResult, error)
}

// Dispatcher handles one decoded application-message operation and stream
// termination requests.
type Dispatcher interface {
	Dispatch(conn *Connection, streamID int32, operation string, payload []byte)
	// Terminate is invoked when the peer sends a terminate-stream frame on
	// an already-open stream (spec §3 "Lifecycles": a stream ends on a
	// terminate-stream flag from either direction). It carries no
	// operation or payload of its own.
	Terminate(conn *Connection, streamID int32)
}

// Server is the gateway's single listener.
type Server struct {
	pool   *sockpool.Pool
	ln     net.Listener
	path   string
	auth   Authenticator
	dispatch Dispatcher
	onClose  func(conn *Connection)
}

// Listen opens the gateway's well-known socket under runtimeRoot and starts
// accepting connections. Grounded on ggl_ipc_listen.
func Listen(runtimeRoot string, auth Authenticator, dispatch Dispatcher) (*Server, error) {
	path := runtimeRoot + string(os.PathSeparator) + SocketName
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, ggerr.Wrap(ggerr.Failure, "listen on gateway socket", err)
	}
	if err := os.Chmod(path, socketMode); err != nil {
		_ = ln.Close()
		return nil, ggerr.Wrap(ggerr.Failure, "chmod gateway socket", err)
	}

	s := &Server{
		pool:     sockpool.New(GatewayMaxClients),
		ln:       ln,
		path:     path,
		auth:     auth,
		dispatch: dispatch,
	}
	go s.acceptLoop()
	return s, nil
}

// OnConnectionClosed registers a callback invoked when a gateway
// connection's slot is released, used by internal/gateway/bridge to tear
// down that connection's bus subscriptions.
func (s *Server) OnConnectionClosed(fn func(conn *Connection)) {
	s.onClose = fn
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) acceptLoop() {
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return
		}

		h, err := s.pool.Register(raw, s.onRelease)
		if err != nil {
			logging.Sugar().Warnw("gateway connection pool exhausted")
			_ = raw.Close()
			continue
		}
		conn := newConnection(h)
		if err := s.pool.SetUser(h, conn); err != nil {
			s.pool.Close(h)
			continue
		}
		telemetry.GatewayConnections.Inc()
		go s.connLoop(conn)
	}
}

func (s *Server) onRelease(h sockpool.Handle, _ int) {
	telemetry.GatewayConnections.Dec()
	if s.onClose == nil {
		return
	}
	user, err := s.pool.User(h)
	if err != nil {
		return
	}
	if conn, ok := user.(*Connection); ok {
		s.onClose(conn)
	}
}

// WriteFrame serializes f onto conn's socket under the connection's write
// mutex, matching spec §5's per-fd ordering guarantee. Exported so the
// subscription bridge can push events without re-implementing locking.
func (s *Server) WriteFrame(conn *Connection, f frame.Frame) error {
	netConn, err := s.pool.Conn(conn.Handle)
	if err != nil {
		return err
	}
	var writeErr error
	conn.WithWriteLock(func() {
		writeErr = frame.Write(netConn, f, MaxMsgLen)
	})
	return writeErr
}

// CloseConn ends a single gateway connection.
func (s *Server) CloseConn(h sockpool.Handle) { s.pool.Close(h) }

func (s *Server) connLoop(conn *Connection) {
	netConn, err := s.pool.Conn(conn.Handle)
	if err != nil {
		return
	}

	for {
		_ = netConn.SetDeadline(time.Now().Add(socketTimeout))
		f, err := frame.Read(netConn, MaxMsgLen)
		if err != nil {
			s.pool.Close(conn.Handle)
			return
		}

		ch, ok := ParseCommonHeaders(f)
		if !ok {
			logging.Sugar().Errorw("gateway frame missing reserved headers")
			s.pool.Close(conn.Handle)
			return
		}

		switch ch.Type {
		case MessagePing:
			s.handlePing(conn, f)
			continue
		case MessagePingResponse:
			continue
		}

		switch conn.Phase() {
		case PhaseInit:
			if !s.handleConnect(conn, f, ch) {
				s.pool.Close(conn.Handle)
				return
			}
		case PhaseConnected:
			s.handleApplicationMessage(conn, f, ch)
		}
	}
}

func (s *Server) handlePing(conn *Connection, f frame.Frame) {
	headers := make([]frame.Header, 0, len(f.Headers)+1)
	for _, h := range f.Headers {
		if !isReservedHeader(h.Name) {
			headers = append(headers, h)
		}
	}
	headers = append(headers,
		frame.NewHeader(HeaderMessageType, frame.Int32Value(int32(MessagePingResponse))),
		frame.NewHeader(HeaderMessageFlags, frame.Int32Value(int32(FlagNone))),
		frame.NewHeader(HeaderStreamID, frame.Int32Value(0)),
	)
	_ = s.WriteFrame(conn, frame.Frame{Headers: headers, Payload: f.Payload})
}

func isReservedHeader(name string) bool {
	switch name {
	case HeaderMessageType, HeaderMessageFlags, HeaderStreamID:
		return true
	default:
		return false
	}
}

func (s *Server) handleConnect(conn *Connection, f frame.Frame, ch CommonHeaders) bool {
	if ch.Type != MessageConnect || ch.StreamID != 0 || ch.Flags != FlagNone {
		logging.Sugar().Errorw("client initial message not a valid connect")
		return false
	}
	if v, ok := Version(f); ok && v != ProtocolVersion010 {
		logging.Sugar().Errorw("client protocol version mismatch", "version", v)
		_ = s.WriteFrame(conn, ConnectAckFrame(false, ""))
		return false
	}

	var payload map[string]any
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			_ = s.WriteFrame(conn, ConnectAckFrame(false, ""))
			return false
		}
	}

	authToken, _ := payload["authToken"].(string)
	componentName, _ := payload["componentName"].(string)

	var (
		result AuthResult
		err    error
	)
	switch {
	case authToken != "":
		result, err = s.auth.AuthenticateToken(authToken, componentName)
	case componentName != "":
		pid, perr := peerPID(conn, s)
		if perr != nil {
			_ = s.WriteFrame(conn, ConnectAckFrame(false, ""))
			return false
		}
		result, err = s.auth.AuthenticatePeer(pid, componentName)
	default:
		logging.Sugar().Errorw("connect payload has neither authToken nor componentName")
		_ = s.WriteFrame(conn, ConnectAckFrame(false, ""))
		return false
	}
	if err != nil {
		logging.Sugar().Errorw("connect authentication failed", "error", err)
		_ = s.WriteFrame(conn, ConnectAckFrame(false, ""))
		return false
	}

	conn.ComponentName = result.ComponentName
	conn.Svcuid = result.Svcuid
	conn.setPhase(PhaseConnected)

	svcuidInAck := ""
	if authToken == "" {
		svcuidInAck = result.Svcuid
	}
	if err := s.WriteFrame(conn, ConnectAckFrame(true, svcuidInAck)); err != nil {
		return false
	}
	return true
}

func peerPID(conn *Connection, s *Server) (int32, error) {
	netConn, err := s.pool.Conn(conn.Handle)
	if err != nil {
		return 0, err
	}
	unixConn, ok := netConn.(*net.UnixConn)
	if !ok {
		return 0, ggerr.New(ggerr.Failure, "gateway connection is not a unix socket")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, ggerr.Wrap(ggerr.Failure, "getting raw conn for peer credentials", err)
	}
	var (
		ucred *unix.Ucred
		cerr  error
	)
	err = raw.Control(func(fd uintptr) {
		ucred, cerr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, ggerr.Wrap(ggerr.Failure, "reading SO_PEERCRED", err)
	}
	if cerr != nil {
		return 0, ggerr.Wrap(ggerr.Failure, "reading SO_PEERCRED", cerr)
	}
	return ucred.Pid, nil
}

func (s *Server) handleApplicationMessage(conn *Connection, f frame.Frame, ch CommonHeaders) {
	if ch.Type != MessageApplicationMessage || ch.StreamID == 0 {
		logging.Sugar().Errorw("client sent unhandled or malformed message", "stream_id", ch.StreamID)
		return
	}
	if ch.Flags&FlagTerminateStream != 0 {
		s.dispatch.Terminate(conn, ch.StreamID)
		return
	}
	if ch.Flags != FlagNone {
		logging.Sugar().Errorw("client sent unhandled or malformed message", "stream_id", ch.StreamID)
		return
	}
	op, ok := Operation(f)
	if !ok {
		logging.Sugar().Errorw("client request missing operation header")
		return
	}
	s.dispatch.Dispatch(conn, ch.StreamID, op, f.Payload)
}
