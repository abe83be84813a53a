package dispatch

import (
	"encoding/json"
	"time"

	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/gateway/authz"
	"github.com/edgerun/ipcbus/internal/gateway/bridge"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/internal/telemetry"
)

// Args is a decoded JSON operation payload, per spec §4.10 (JSON on the
// gateway wire, translated to/from the object tree at the bus boundary).
type Args map[string]any

// HandlerFunc implements one modeled operation. It returns a non-nil
// *OpError on any failure path (schema, authorization, or bus-call
// failure); on success it is responsible for sending the modeled response
// itself via Dispatcher.Respond (subscription operations use it too, for
// their initial response), matching
// spec §4.8's "exactly one of respond/sub_accept/error" contract carried
// over from the core bus.
type HandlerFunc func(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError

// Operation is one entry in the static service/operation table.
type Operation struct {
	// Name is the modeled operation name, e.g. "aws.greengrass#PublishToIoTCore".
	Name string
	// Service is the IPC namespace used for the access-control lookup,
	// e.g. "aws.greengrass.ipc.mqttproxy". Empty means no authorization
	// check is performed (the operation only ever acts on the caller's
	// own component-scoped state).
	Service string
	// Resource extracts the resource string to authorize from args. Must
	// be set whenever Service is non-empty.
	Resource func(args Args) (string, bool)
	// Matcher selects the pattern-matching semantics for Resource,
	// authz.DefaultMatcher or authz.MQTTMatcher.
	Matcher authz.ResourceMatcher
	Handler HandlerFunc
}

// Dispatcher is the gateway's static operation table plus everything a
// handler needs to reach the core bus: the interface socket directory, the
// gateway transport (to write responses), the subscription bridge, the
// bus client's subscription table, and the authorization policy reader.
type Dispatcher struct {
	ops map[string]Operation

	SocketDir string
	Gateway   *transport.Server
	Bridge    *bridge.Bridge
	Subs      *client.Subscriptions
	Config    authz.ConfigReader
	DialRetry *client.DialRetry
}

// New builds an empty Dispatcher wired to its collaborators. Register
// operations with Register (or RegisterAll for the default table).
func New(socketDir string, gw *transport.Server, br *bridge.Bridge, subs *client.Subscriptions, cfg authz.ConfigReader) *Dispatcher {
	return &Dispatcher{
		ops:       make(map[string]Operation),
		SocketDir: socketDir,
		Gateway:   gw,
		Bridge:    br,
		Subs:      subs,
		Config:    cfg,
	}
}

// Register adds one operation to the table. Panics on a duplicate name
// since the table is built once at startup from a fixed literal list.
func (d *Dispatcher) Register(op Operation) {
	if _, exists := d.ops[op.Name]; exists {
		panic("dispatch: duplicate operation " + op.Name)
	}
	d.ops[op.Name] = op
}

var _ transport.Dispatcher = (*Dispatcher)(nil)

// Dispatch implements transport.Dispatcher. It decodes the JSON payload,
// looks up the operation, runs its authorization check if one applies, and
// invokes its handler. Grounded on ipc_dispatch.c's lookup_operation plus
// ggl_ipc_call_handler.
func (d *Dispatcher) Dispatch(conn *transport.Connection, streamID int32, operation string, payload []byte) {
	op, ok := d.ops[operation]
	if !ok {
		logging.Sugar().Warnw("no handler for ipc operation", "operation", operation)
		d.SendError(conn, streamID, ServiceError, "Operation not modeled.")
		return
	}

	args := Args{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &args); err != nil {
			d.SendError(conn, streamID, InvalidArgumentsError, "Request payload is not valid JSON.")
			return
		}
	}

	if op.Service != "" {
		resource, ok := op.Resource(args)
		if !ok {
			d.SendError(conn, streamID, InvalidArgumentsError, "Request is missing the resource field required for authorization.")
			return
		}
		info := authz.OperationInfo{Component: conn.ComponentName, Service: op.Service, Operation: op.Name}
		if err := authz.Authorize(d.Config, info, resource, op.Matcher); err != nil {
			d.SendError(conn, streamID, UnauthorizedError, "IPC Operation not authorized.")
			return
		}
	}

	start := time.Now()
	opErr := op.Handler(d, conn, streamID, args)
	telemetry.DispatchOperationDuration.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
	if opErr != nil {
		d.SendError(conn, streamID, opErr.Code, opErr.Message)
	}
}

// Terminate implements transport.Dispatcher: it ends the stream's bridged
// bus subscription, if any.
func (d *Dispatcher) Terminate(conn *transport.Connection, streamID int32) {
	d.Bridge.StreamTerminate(conn, streamID)
}

// Respond sends a successful unary response, per spec §4.10's response
// envelope: headers plus a JSON payload, no terminate-stream flag (the
// caller may still receive bridged events on the same stream for a
// subscription operation).
func (d *Dispatcher) Respond(conn *transport.Connection, streamID int32, modelType string, value any) *OpError {
	payload, err := json.Marshal(value)
	if err != nil {
		return &OpError{Code: ServiceError, Message: "failed to encode response"}
	}
	f := transport.JSONFrame(transport.MessageApplicationMessage, transport.FlagNone, streamID, modelType, payload)
	if err := d.Gateway.WriteFrame(conn, f); err != nil {
		logging.Sugar().Warnw("failed to write ipc response", "error", err)
	}
	return nil
}

// SendError writes a terminating application-error frame, per spec §4.10.
func (d *Dispatcher) SendError(conn *transport.Connection, streamID int32, code ErrorCode, message string) {
	body := map[string]string{"_message": message, "_errorCode": string(code)}
	payload, _ := json.Marshal(body)
	f := transport.JSONFrame(transport.MessageApplicationError, transport.FlagTerminateStream, streamID, code.ModelType(), payload)
	if err := d.Gateway.WriteFrame(conn, f); err != nil {
		logging.Sugar().Warnw("failed to write ipc error response", "error", err)
	}
}
