package dispatch

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/edgerun/ipcbus/internal/config"
	busclient "github.com/edgerun/ipcbus/internal/corebus/client"
	busserver "github.com/edgerun/ipcbus/internal/corebus/server"
	"github.com/edgerun/ipcbus/internal/frame"
	"github.com/edgerun/ipcbus/internal/gateway/bridge"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
)

type allowAllAuth struct{}

func (allowAllAuth) AuthenticateToken(string, string) (transport.AuthResult, error) {
	return transport.AuthResult{ComponentName: "com.acme.Widget", Svcuid: "tok"}, nil
}
func (allowAllAuth) AuthenticatePeer(int32, string) (transport.AuthResult, error) {
	return transport.AuthResult{ComponentName: "com.acme.Widget", Svcuid: "tok"}, nil
}

func dialGateway(t *testing.T, dir string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", dir+"/"+transport.SocketName, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readOneFrame(t *testing.T, conn net.Conn) frame.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := frame.Read(conn, transport.MaxMsgLen)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func connectAndOpen(t *testing.T, conn net.Conn, operation string, streamID int32, payload any) {
	t.Helper()
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
	readOneFrame(t, conn) // connect-ack

	appPayload, _ := json.Marshal(payload)
	appFrame := frame.Frame{
		Headers: []frame.Header{
			frame.NewHeader(transport.HeaderMessageType, frame.Int32Value(int32(transport.MessageApplicationMessage))),
			frame.NewHeader(transport.HeaderMessageFlags, frame.Int32Value(0)),
			frame.NewHeader(transport.HeaderStreamID, frame.Int32Value(streamID)),
			frame.NewHeader(transport.HeaderOperation, frame.StringValue(operation)),
		},
		Payload: appPayload,
	}
	if err := frame.Write(conn, appFrame, transport.MaxMsgLen); err != nil {
		t.Fatal(err)
	}
}

// newTestGateway wires a real config daemon, a real gg_config-backed
// dispatcher, and a real gateway transport over Unix sockets rooted at dir.
func newTestGateway(t *testing.T, dir string) {
	t.Helper()
	tree := config.New()
	configSrv, err := busserver.Listen(dir, config.InterfaceName, tree.BusMethods())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = configSrv.Close() })

	subs := busclient.NewSubscriptions(busclient.DefaultMaxSubscriptions)
	d := New(dir, nil, nil, subs, tree)
	RegisterAll(d)

	gw, err := transport.Listen(dir, allowAllAuth{}, d)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = gw.Close() })
	d.Gateway = gw
	d.Bridge = bridge.New(gw, subs)
}

func TestUpdateThenGetConfigurationRoundTrips(t *testing.T) {
	dir := t.TempDir()
	newTestGateway(t, dir)

	conn := dialGateway(t, dir)
	connectAndOpen(t, conn, "aws.greengrass#UpdateConfiguration", 1, map[string]any{
		"keyPath":      []string{"greeting"},
		"valueToMerge": map[string]any{"message": "hello"},
	})
	f := readOneFrame(t, conn)
	ch, ok := transport.ParseCommonHeaders(f)
	if !ok || ch.Type != transport.MessageApplicationMessage {
		t.Fatalf("unexpected update response: %+v ok=%v payload=%s", ch, ok, f.Payload)
	}

	conn2 := dialGateway(t, dir)
	connectAndOpen(t, conn2, "aws.greengrass#GetConfiguration", 2, map[string]any{
		"keyPath": []string{"greeting"},
	})
	f2 := readOneFrame(t, conn2)
	ch2, ok := transport.ParseCommonHeaders(f2)
	if !ok || ch2.Type != transport.MessageApplicationMessage {
		t.Fatalf("unexpected get response: %+v ok=%v payload=%s", ch2, ok, f2.Payload)
	}

	var body struct {
		ComponentName string         `json:"componentName"`
		Value         map[string]any `json:"value"`
	}
	if err := json.Unmarshal(f2.Payload, &body); err != nil {
		t.Fatalf("decode response: %v, payload=%s", err, f2.Payload)
	}
	if body.ComponentName != "com.acme.Widget" {
		t.Fatalf("unexpected componentName: %q", body.ComponentName)
	}
	if got, _ := body.Value["message"].(string); got != "hello" {
		t.Fatalf("unexpected configuration value: %+v", body.Value)
	}
}

func TestGetConfigurationMissingKeyReturnsError(t *testing.T) {
	dir := t.TempDir()
	newTestGateway(t, dir)

	conn := dialGateway(t, dir)
	connectAndOpen(t, conn, "aws.greengrass#GetConfiguration", 1, map[string]any{
		"keyPath": []string{"does-not-exist"},
	})
	f := readOneFrame(t, conn)
	ch, ok := transport.ParseCommonHeaders(f)
	if !ok || ch.Type != transport.MessageApplicationError {
		t.Fatalf("expected application error, got %+v ok=%v", ch, ok)
	}
}
