package bridge

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	busclient "github.com/edgerun/ipcbus/internal/corebus/client"
	busserver "github.com/edgerun/ipcbus/internal/corebus/server"
	"github.com/edgerun/ipcbus/internal/frame"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

type allowAllAuth struct{}

func (allowAllAuth) AuthenticateToken(string, string) (transport.AuthResult, error) {
	return transport.AuthResult{ComponentName: "c", Svcuid: "tok"}, nil
}
func (allowAllAuth) AuthenticatePeer(int32, string) (transport.AuthResult, error) {
	return transport.AuthResult{ComponentName: "c", Svcuid: "tok"}, nil
}

// bridgingDispatcher opens a bridge session on every Dispatch call and
// wires it straight to the test bus interface's "subscribe" method.
type bridgingDispatcher struct {
	bridge    *Bridge
	subs      *busclient.Subscriptions
	socketDir string
	iface     string
}

func (d *bridgingDispatcher) Dispatch(conn *transport.Connection, streamID int32, operation string, payload []byte) {
	sess, err := d.bridge.Open(conn, streamID, func(value gobj.Object) (string, []byte, error) {
		s, _ := value.AsString()
		return "test#Event", []byte(fmt.Sprintf("%q", s)), nil
	})
	if err != nil {
		return
	}
	h, err := d.subs.Subscribe(d.socketDir, d.iface, "subscribe", gobj.Map(), sess.OnResponse, sess.OnClose, nil)
	if err != nil {
		sess.Release()
		return
	}
	sess.Attach(h)
}

func (d *bridgingDispatcher) Terminate(conn *transport.Connection, streamID int32) {
	d.bridge.StreamTerminate(conn, streamID)
}

func busSubscribeMethods(events int) []busserver.MethodDesc {
	return []busserver.MethodDesc{
		{
			Name:         "subscribe",
			Subscription: true,
			Handler: func(s *busserver.Server, h sockpool.Handle, params gobj.Object) error {
				if err := s.SubAccept(h, func(sockpool.Handle) {}); err != nil {
					return nil
				}
				go func() {
					for i := 0; i < events; i++ {
						if err := s.SubRespond(h, gobj.Str(fmt.Sprintf("evt-%d", i))); err != nil {
							return
						}
					}
				}()
				return nil
			},
		},
	}
}

func dial(t *testing.T, dir string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", dir+"/"+transport.SocketName, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn net.Conn) frame.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := frame.Read(conn, transport.MaxMsgLen)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestBridgeForwardsSubscriptionEvents(t *testing.T) {
	dir := t.TempDir()

	busSrv, err := busserver.Listen(dir, "test_pubsub", busSubscribeMethods(3))
	if err != nil {
		t.Fatal(err)
	}
	defer busSrv.Close()

	subs := busclient.NewSubscriptions(busclient.DefaultMaxSubscriptions)
	disp := &bridgingDispatcher{subs: subs, socketDir: dir, iface: "test_pubsub"}

	gw, err := transport.Listen(dir, allowAllAuth{}, disp)
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	disp.bridge = New(gw, subs)

	conn := dial(t, dir)
	connectPayload, _ := json.Marshal(map[string]any{"componentName": "com.acme.Widget"})
	connectFrame := frame.Frame{
		Headers: []frame.Header{
			frame.NewHeader(transport.HeaderMessageType, frame.Int32Value(int32(transport.MessageConnect))),
			frame.NewHeader(transport.HeaderMessageFlags, frame.Int32Value(0)),
			frame.NewHeader(transport.HeaderStreamID, frame.Int32Value(0)),
			frame.NewHeader(transport.HeaderVersion, frame.StringValue(transport.ProtocolVersion010)),
		},
		Payload: connectPayload,
	}
	if err := frame.Write(conn, connectFrame, transport.MaxMsgLen); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn) // connect-ack

	appPayload, _ := json.Marshal(map[string]any{"topic": "my/topic"})
	appFrame := frame.Frame{
		Headers: []frame.Header{
			frame.NewHeader(transport.HeaderMessageType, frame.Int32Value(int32(transport.MessageApplicationMessage))),
			frame.NewHeader(transport.HeaderMessageFlags, frame.Int32Value(0)),
			frame.NewHeader(transport.HeaderStreamID, frame.Int32Value(3)),
			frame.NewHeader(transport.HeaderOperation, frame.StringValue("aws.greengrass#SubscribeToTopic")),
		},
		Payload: appPayload,
	}
	if err := frame.Write(conn, appFrame, transport.MaxMsgLen); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		f := readFrame(t, conn)
		ch, ok := transport.ParseCommonHeaders(f)
		if !ok || ch.Type != transport.MessageApplicationMessage || ch.StreamID != 3 {
			t.Fatalf("unexpected event frame: %+v ok=%v", ch, ok)
		}
		want := fmt.Sprintf("%q", fmt.Sprintf("evt-%d", i))
		if string(f.Payload) != want {
			t.Fatalf("event %d: got payload %q, want %q", i, f.Payload, want)
		}
	}
}
