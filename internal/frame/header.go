package frame

import (
	"encoding/binary"

	"github.com/edgerun/ipcbus/internal/ggerr"
)

// ValueType tags the type of a header's value, per spec §3 Header.
type ValueType uint8

const (
	ValueBoolTrue ValueType = iota
	ValueBoolFalse
	ValueInt32
	ValueInt64
	ValueString
	ValueByteBuf
	ValueUUID
	ValueTimestamp
)

// maxNameLen is the 1-byte length bound on header names (§3 Header).
const maxNameLen = 127

// Value is the typed value half of a header.
type Value struct {
	Type      ValueType
	Int32     int32
	Int64     int64
	Str       string
	Bytes     []byte
	UUID      [16]byte
	Timestamp int64 // milliseconds since Unix epoch
}

func BoolValue(b bool) Value {
	if b {
		return Value{Type: ValueBoolTrue}
	}
	return Value{Type: ValueBoolFalse}
}
func Int32Value(v int32) Value     { return Value{Type: ValueInt32, Int32: v} }
func Int64Value(v int64) Value     { return Value{Type: ValueInt64, Int64: v} }
func StringValue(s string) Value   { return Value{Type: ValueString, Str: s} }
func ByteBufValue(b []byte) Value  { return Value{Type: ValueByteBuf, Bytes: b} }
func TimestampValue(ms int64) Value { return Value{Type: ValueTimestamp, Timestamp: ms} }

// Bool reports the boolean carried by a bool_true/bool_false header.
func (v Value) Bool() bool { return v.Type == ValueBoolTrue }

// Header is one name/value pair as carried in a frame.
type Header struct {
	Name  string
	Value Value
}

func NewHeader(name string, v Value) Header { return Header{Name: name, Value: v} }

func encodeHeaders(headers []Header) ([]byte, error) {
	var buf []byte
	for _, h := range headers {
		if len(h.Name) > maxNameLen {
			return nil, ggerr.Newf(ggerr.Range, "header name %q exceeds %d bytes", h.Name, maxNameLen)
		}
		buf = append(buf, byte(len(h.Name)))
		buf = append(buf, h.Name...)
		buf = append(buf, byte(h.Value.Type))
		switch h.Value.Type {
		case ValueBoolTrue, ValueBoolFalse:
			// boolean is carried entirely in the type tag; no value bytes.
		case ValueInt32:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(h.Value.Int32))
			buf = append(buf, b[:]...)
		case ValueInt64, ValueTimestamp:
			var b [8]byte
			val := h.Value.Int64
			if h.Value.Type == ValueTimestamp {
				val = h.Value.Timestamp
			}
			binary.BigEndian.PutUint64(b[:], uint64(val))
			buf = append(buf, b[:]...)
		case ValueString:
			if len(h.Value.Str) > 0xFFFF {
				return nil, ggerr.New(ggerr.Range, "header string value exceeds 65535 bytes")
			}
			var lb [2]byte
			binary.BigEndian.PutUint16(lb[:], uint16(len(h.Value.Str)))
			buf = append(buf, lb[:]...)
			buf = append(buf, h.Value.Str...)
		case ValueByteBuf:
			if len(h.Value.Bytes) > 0xFFFF {
				return nil, ggerr.New(ggerr.Range, "header byte_buf value exceeds 65535 bytes")
			}
			var lb [2]byte
			binary.BigEndian.PutUint16(lb[:], uint16(len(h.Value.Bytes)))
			buf = append(buf, lb[:]...)
			buf = append(buf, h.Value.Bytes...)
		case ValueUUID:
			buf = append(buf, h.Value.UUID[:]...)
		default:
			return nil, ggerr.Newf(ggerr.Invalid, "unknown header value type %d", h.Value.Type)
		}
	}
	return buf, nil
}

// decodeHeaders parses a flat header block; restartable in the sense that it
// takes the exact byte window (already sliced to headersLen) and can be
// called repeatedly on the same bytes to re-derive the same header list.
func decodeHeaders(buf []byte) ([]Header, error) {
	var headers []Header
	for len(buf) > 0 {
		nameLen := int(buf[0])
		buf = buf[1:]
		if nameLen > maxNameLen || nameLen > len(buf) {
			return nil, ggerr.New(ggerr.Parse, "header name length overflow")
		}
		name := string(buf[:nameLen])
		buf = buf[nameLen:]

		if len(buf) < 1 {
			return nil, ggerr.New(ggerr.Parse, "truncated header value tag")
		}
		vt := ValueType(buf[0])
		buf = buf[1:]

		var val Value
		val.Type = vt
		switch vt {
		case ValueBoolTrue, ValueBoolFalse:
			// no bytes
		case ValueInt32:
			if len(buf) < 4 {
				return nil, ggerr.New(ggerr.Parse, "truncated int32 header")
			}
			val.Int32 = int32(binary.BigEndian.Uint32(buf[:4]))
			buf = buf[4:]
		case ValueInt64:
			if len(buf) < 8 {
				return nil, ggerr.New(ggerr.Parse, "truncated int64 header")
			}
			val.Int64 = int64(binary.BigEndian.Uint64(buf[:8]))
			buf = buf[8:]
		case ValueTimestamp:
			if len(buf) < 8 {
				return nil, ggerr.New(ggerr.Parse, "truncated timestamp header")
			}
			val.Timestamp = int64(binary.BigEndian.Uint64(buf[:8]))
			buf = buf[8:]
		case ValueString:
			if len(buf) < 2 {
				return nil, ggerr.New(ggerr.Parse, "truncated string header length")
			}
			n := int(binary.BigEndian.Uint16(buf[:2]))
			buf = buf[2:]
			if n > len(buf) {
				return nil, ggerr.New(ggerr.Parse, "string header length overrun")
			}
			val.Str = string(buf[:n])
			buf = buf[n:]
		case ValueByteBuf:
			if len(buf) < 2 {
				return nil, ggerr.New(ggerr.Parse, "truncated byte_buf header length")
			}
			n := int(binary.BigEndian.Uint16(buf[:2]))
			buf = buf[2:]
			if n > len(buf) {
				return nil, ggerr.New(ggerr.Parse, "byte_buf header length overrun")
			}
			val.Bytes = append([]byte(nil), buf[:n]...)
			buf = buf[n:]
		case ValueUUID:
			if len(buf) < 16 {
				return nil, ggerr.New(ggerr.Parse, "truncated uuid header")
			}
			copy(val.UUID[:], buf[:16])
			buf = buf[16:]
		default:
			return nil, ggerr.Newf(ggerr.Parse, "unknown header value type %d", vt)
		}
		headers = append(headers, Header{Name: name, Value: val})
	}
	return headers, nil
}
