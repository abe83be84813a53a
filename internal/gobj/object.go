// Package gobj implements the tagged object tree and its binary codec
// described in the core bus wire format: null, bool, i64, f64, bytes, list
// and map, with maps preserving insertion order (including duplicate keys,
// first-wins at lookup) and a bounded nesting depth.
//
// Grounded on _examples/original_source/modules/core-bus/src/object_serde.c
// (GglObject / ggl_serialize / ggl_deserialize). The C implementation walks
// an explicit work-stack because its allocator is a single-pass bump arena
// with no call-stack recursion budget; this port keeps the same external
// invariants (strict max depth, iterative-looking size accounting) via plain
// recursion with an explicit depth counter, which is the idiomatic Go
// equivalent given the runtime's growable stack.
package gobj

import "fmt"

// Kind tags the variant carried by an Object.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindI64
	KindF64
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxDepth is the compile-time nesting bound from the specification (≥32).
const MaxDepth = 32

// KV is one (key, value) pair of a Map object. Maps preserve insertion order
// and may contain duplicate keys at the wire level; Map.Get returns the
// first match.
type KV struct {
	Key   []byte
	Value Object
}

// Object is the sum type carried over the core bus. Exactly one of the
// fields is meaningful, selected by Kind; zero value is Null.
type Object struct {
	Kind  Kind
	Bool  bool
	I64   int64
	F64   float64
	Bytes []byte
	List  []Object
	Map   []KV
}

func Null() Object                { return Object{Kind: KindNull} }
func Bool(b bool) Object          { return Object{Kind: KindBool, Bool: b} }
func I64(v int64) Object          { return Object{Kind: KindI64, I64: v} }
func F64(v float64) Object        { return Object{Kind: KindF64, F64: v} }
func Bytes(b []byte) Object       { return Object{Kind: KindBytes, Bytes: b} }
func Str(s string) Object         { return Object{Kind: KindBytes, Bytes: []byte(s)} }
func List(items ...Object) Object { return Object{Kind: KindList, List: items} }
func Map(pairs ...KV) Object      { return Object{Kind: KindMap, Map: pairs} }

// Field builds a KV pair from a string key, the common case when building
// request/response maps by hand.
func Field(key string, val Object) KV { return KV{Key: []byte(key), Value: val} }

// IsNull reports whether o is the Null variant (including the zero value).
func (o Object) IsNull() bool { return o.Kind == KindNull }

// Get returns the first value associated with key in a Map object, or
// (Object{}, false) if o is not a Map or key is absent.
func (o Object) Get(key string) (Object, bool) {
	if o.Kind != KindMap {
		return Object{}, false
	}
	for _, kv := range o.Map {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return Object{}, false
}

// AsString is a convenience accessor for Bytes objects used as text.
func (o Object) AsString() (string, bool) {
	if o.Kind != KindBytes {
		return "", false
	}
	return string(o.Bytes), true
}

// Equal performs a deep, order-sensitive comparison (used by the codec,
// config and core-bus round-trip tests).
func Equal(a, b Object) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindI64:
		return a.I64 == b.I64
	case KindF64:
		return a.F64 == b.F64
	case KindBytes:
		return bytesEqual(a.Bytes, b.Bytes)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for i := range a.Map {
			if !bytesEqual(a.Map[i].Key, b.Map[i].Key) || !Equal(a.Map[i].Value, b.Map[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
