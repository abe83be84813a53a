// Package transport implements the IPC gateway's single well-known socket:
// per-connection phase state machine, eventstream-envelope framing (reusing
// internal/frame, the same prelude+headers+payload+CRC layer the core bus
// uses), and ping handling. Grounded on
// _examples/original_source/modules/ggipcd/src/ipc_server.c.
package transport

import "github.com/edgerun/ipcbus/internal/frame"

// MessageType mirrors the eventstream ":message-type" header values used by
// the AWS IoT device SDK's event-stream RPC framing, which the gateway
// socket speaks on top of the shared frame codec.
type MessageType int32

const (
	MessageApplicationMessage MessageType = 0
	MessageApplicationError   MessageType = 1
	MessagePing               MessageType = 2
	MessagePingResponse       MessageType = 3
	MessageConnect            MessageType = 4
	MessageConnectAck         MessageType = 5
)

// MessageFlags bits. ConnectionAccepted only has meaning on a ConnectAck
// frame; TerminateStream only on an application message/error frame. Both
// occupy bit 0, matching the source.
type MessageFlags int32

const (
	FlagNone               MessageFlags = 0
	FlagConnectionAccepted MessageFlags = 1
	FlagTerminateStream    MessageFlags = 1
)

// Reserved header names carried on every gateway frame.
const (
	HeaderMessageType   = ":message-type"
	HeaderMessageFlags  = ":message-flags"
	HeaderStreamID      = ":stream-id"
	HeaderContentType   = ":content-type"
	HeaderVersion       = ":version"
	HeaderSvcuid        = "svcuid"
	HeaderOperation     = "operation"
	HeaderModelType     = "service-model-type"
	ContentTypeJSON     = "application/json"
	ProtocolVersion010  = "0.1.0"
)

// CommonHeaders is every gateway frame's mandatory reserved-header trio.
type CommonHeaders struct {
	Type     MessageType
	Flags    MessageFlags
	StreamID int32
}

// ParseCommonHeaders extracts the reserved headers from f. Missing
// :message-type or :stream-id is a decode failure; :message-flags defaults
// to FlagNone if absent.
func ParseCommonHeaders(f frame.Frame) (CommonHeaders, bool) {
	var h CommonHeaders

	v, ok := f.Get(HeaderMessageType)
	if !ok || v.Type != frame.ValueInt32 {
		return h, false
	}
	h.Type = MessageType(v.Int32)

	if v, ok := f.Get(HeaderMessageFlags); ok {
		if v.Type != frame.ValueInt32 {
			return h, false
		}
		h.Flags = MessageFlags(v.Int32)
	}

	v, ok = f.Get(HeaderStreamID)
	if !ok || v.Type != frame.ValueInt32 {
		return h, false
	}
	h.StreamID = v.Int32

	return h, true
}

// Operation reads the "operation" string header from an application
// message.
func Operation(f frame.Frame) (string, bool) {
	v, ok := f.Get(HeaderOperation)
	if !ok || v.Type != frame.ValueString {
		return "", false
	}
	return v.Str, true
}

// Version reads the ":version" string header carried on a connect frame.
func Version(f frame.Frame) (string, bool) {
	v, ok := f.Get(HeaderVersion)
	if !ok || v.Type != frame.ValueString {
		return "", false
	}
	return v.Str, true
}

// ModelType reads the "service-model-type" string header.
func ModelType(f frame.Frame) (string, bool) {
	v, ok := f.Get(HeaderModelType)
	if !ok || v.Type != frame.ValueString {
		return "", false
	}
	return v.Str, true
}

func baseHeaders(t MessageType, flags MessageFlags, streamID int32) []frame.Header {
	return []frame.Header{
		frame.NewHeader(HeaderMessageType, frame.Int32Value(int32(t))),
		frame.NewHeader(HeaderMessageFlags, frame.Int32Value(int32(flags))),
		frame.NewHeader(HeaderStreamID, frame.Int32Value(streamID)),
	}
}

// JSONFrame builds an application-message/error-shaped frame with the
// standard :content-type and optional service-model-type headers over a
// JSON payload.
func JSONFrame(t MessageType, flags MessageFlags, streamID int32, modelType string, payload []byte) frame.Frame {
	headers := baseHeaders(t, flags, streamID)
	headers = append(headers, frame.NewHeader(HeaderContentType, frame.StringValue(ContentTypeJSON)))
	if modelType != "" {
		headers = append(headers, frame.NewHeader(HeaderModelType, frame.StringValue(modelType)))
	}
	return frame.Frame{Headers: headers, Payload: payload}
}

// ConnectAckFrame builds the response to a connect attempt. accepted=false
// sends no svcuid header regardless of the value passed.
func ConnectAckFrame(accepted bool, svcuid string) frame.Frame {
	flags := FlagNone
	if accepted {
		flags = FlagConnectionAccepted
	}
	headers := baseHeaders(MessageConnectAck, flags, 0)
	if accepted {
		headers = append(headers, frame.NewHeader(HeaderSvcuid, frame.StringValue(svcuid)))
	}
	return frame.Frame{Headers: headers}
}
