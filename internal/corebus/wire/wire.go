// Package wire holds the header names and request-type tags shared by the
// core bus server and client, grounded on
// _examples/original_source/modules/core-bus/src/{server,client_common}.c
// and spec.md §3 (Core-bus request type, Header).
package wire

import "github.com/edgerun/ipcbus/internal/frame"

// Header names used on every core-bus frame.
const (
	HeaderMethod    = "method"
	HeaderType      = "type"
	HeaderError     = "error"
	HeaderAccepted  = "accepted"
)

// RequestType is carried in the "type" header as an int32.
type RequestType int32

const (
	Notify RequestType = iota
	Call
	Subscribe
)

func (t RequestType) String() string {
	switch t {
	case Notify:
		return "notify"
	case Call:
		return "call"
	case Subscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// RequestHeaders builds the mandatory header pair for an outbound request.
func RequestHeaders(method string, t RequestType) []frame.Header {
	return []frame.Header{
		frame.NewHeader(HeaderMethod, frame.StringValue(method)),
		frame.NewHeader(HeaderType, frame.Int32Value(int32(t))),
	}
}

// Method reads the mandatory "method" header from a request frame.
func Method(f frame.Frame) (string, bool) {
	v, ok := f.Get(HeaderMethod)
	if !ok || v.Type != frame.ValueString {
		return "", false
	}
	return v.Str, true
}

// Type reads the mandatory "type" header from a request frame.
func Type(f frame.Frame) (RequestType, bool) {
	v, ok := f.Get(HeaderType)
	if !ok || v.Type != frame.ValueInt32 {
		return 0, false
	}
	return RequestType(v.Int32), true
}

// ErrorCode reads the "error" header from a response frame.
func ErrorCode(f frame.Frame) (int32, bool) {
	v, ok := f.Get(HeaderError)
	if !ok || v.Type != frame.ValueInt32 {
		return 0, false
	}
	return v.Int32, true
}

// Accepted reports whether a subscribe response carries accepted=1.
func Accepted(f frame.Frame) bool {
	v, ok := f.Get(HeaderAccepted)
	return ok && v.Type == frame.ValueInt32 && v.Int32 == 1
}
