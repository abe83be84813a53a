package gobj

import (
	"encoding/binary"
	"math"

	"github.com/edgerun/ipcbus/internal/ggerr"
)

// Encode serializes obj into a freshly allocated, growable buffer.
func Encode(obj Object) ([]byte, error) {
	return encodeInto(make([]byte, 0, 64), obj, 0, -1)
}

// EncodeInto appends the serialization of obj to dst, treating cap(dst) as a
// fixed arena limit: once the encoding would need to grow past that
// capacity, it fails with NoMem instead of silently reallocating. This
// mirrors the bump-allocator arenas the wire format was designed around
// (§5 Memory discipline).
func EncodeInto(dst []byte, obj Object) ([]byte, error) {
	return encodeInto(dst, obj, 0, cap(dst))
}

// limit < 0 means unbounded (growable) output.
func encodeInto(buf []byte, obj Object, depth int, limit int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ggerr.New(ggerr.Range, "object exceeds max nesting depth")
	}
	var err error
	if buf, err = appendBounded(buf, limit, []byte{byte(obj.Kind)}); err != nil {
		return nil, err
	}
	switch obj.Kind {
	case KindNull:
		return buf, nil
	case KindBool:
		v := byte(0)
		if obj.Bool {
			v = 1
		}
		return appendBounded(buf, limit, []byte{v})
	case KindI64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(obj.I64))
		return appendBounded(buf, limit, b[:])
	case KindF64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(obj.F64))
		return appendBounded(buf, limit, b[:])
	case KindBytes:
		return encodeBytes(buf, obj.Bytes, limit)
	case KindList:
		if len(obj.List) > 0xFFFFFFFF {
			return nil, ggerr.New(ggerr.Range, "list length exceeds uint32")
		}
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(obj.List)))
		if buf, err = appendBounded(buf, limit, lb[:]); err != nil {
			return nil, err
		}
		for _, item := range obj.List {
			if buf, err = encodeInto(buf, item, depth+1, limit); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindMap:
		if len(obj.Map) > 0xFFFFFFFF {
			return nil, ggerr.New(ggerr.Range, "map length exceeds uint32")
		}
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(obj.Map)))
		if buf, err = appendBounded(buf, limit, lb[:]); err != nil {
			return nil, err
		}
		for _, kv := range obj.Map {
			if buf, err = encodeBytes(buf, kv.Key, limit); err != nil {
				return nil, err
			}
			if buf, err = encodeInto(buf, kv.Value, depth+1, limit); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, ggerr.New(ggerr.Invalid, "unknown object kind")
	}
}

// appendBounded appends more to buf, refusing to exceed limit (when limit
// is non-negative) rather than letting append silently reallocate past a
// fixed arena's capacity.
func appendBounded(buf []byte, limit int, more []byte) ([]byte, error) {
	if limit >= 0 && len(buf)+len(more) > limit {
		return nil, ggerr.New(ggerr.NoMem, "encode buffer capacity exceeded")
	}
	return append(buf, more...), nil
}

func encodeBytes(buf []byte, b []byte, limit int) ([]byte, error) {
	if len(b) > 0xFFFFFFFF {
		return nil, ggerr.New(ggerr.Range, "bytes length exceeds uint32")
	}
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(b)))
	buf, err := appendBounded(buf, limit, lb[:])
	if err != nil {
		return nil, err
	}
	return appendBounded(buf, limit, b)
}

// Decode parses buf into an Object. Bytes fields in the result alias buf
// (borrowed, zero-copy); use Claim to detach them. Decode fails with Parse
// if buf is truncated, a tag is unknown, or bytes remain after the top-level
// object.
func Decode(buf []byte) (Object, error) {
	obj, rest, err := decodeOne(buf, 0)
	if err != nil {
		return Object{}, err
	}
	if len(rest) != 0 {
		return Object{}, ggerr.Newf(ggerr.Parse, "%d trailing bytes after object", len(rest))
	}
	return obj, nil
}

func decodeOne(buf []byte, depth int) (Object, []byte, error) {
	if depth > MaxDepth {
		return Object{}, nil, ggerr.New(ggerr.Range, "object exceeds max nesting depth")
	}
	if len(buf) < 1 {
		return Object{}, nil, ggerr.New(ggerr.Parse, "truncated object tag")
	}
	kind := Kind(buf[0])
	buf = buf[1:]
	switch kind {
	case KindNull:
		return Object{Kind: KindNull}, buf, nil
	case KindBool:
		if len(buf) < 1 {
			return Object{}, nil, ggerr.New(ggerr.Parse, "truncated bool")
		}
		return Object{Kind: KindBool, Bool: buf[0] != 0}, buf[1:], nil
	case KindI64:
		if len(buf) < 8 {
			return Object{}, nil, ggerr.New(ggerr.Parse, "truncated i64")
		}
		v := int64(binary.LittleEndian.Uint64(buf[:8]))
		return Object{Kind: KindI64, I64: v}, buf[8:], nil
	case KindF64:
		if len(buf) < 8 {
			return Object{}, nil, ggerr.New(ggerr.Parse, "truncated f64")
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(buf[:8]))
		return Object{Kind: KindF64, F64: v}, buf[8:], nil
	case KindBytes:
		b, rest, err := decodeBytes(buf)
		if err != nil {
			return Object{}, nil, err
		}
		return Object{Kind: KindBytes, Bytes: b}, rest, nil
	case KindList:
		if len(buf) < 4 {
			return Object{}, nil, ggerr.New(ggerr.Parse, "truncated list length")
		}
		n := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		items := make([]Object, 0, clampPrealloc(n))
		for i := uint32(0); i < n; i++ {
			var item Object
			var err error
			item, buf, err = decodeOne(buf, depth+1)
			if err != nil {
				return Object{}, nil, err
			}
			items = append(items, item)
		}
		return Object{Kind: KindList, List: items}, buf, nil
	case KindMap:
		if len(buf) < 4 {
			return Object{}, nil, ggerr.New(ggerr.Parse, "truncated map length")
		}
		n := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		pairs := make([]KV, 0, clampPrealloc(n))
		for i := uint32(0); i < n; i++ {
			key, rest, err := decodeBytes(buf)
			if err != nil {
				return Object{}, nil, err
			}
			buf = rest
			var val Object
			val, buf, err = decodeOne(buf, depth+1)
			if err != nil {
				return Object{}, nil, err
			}
			pairs = append(pairs, KV{Key: key, Value: val})
		}
		return Object{Kind: KindMap, Map: pairs}, buf, nil
	default:
		return Object{}, nil, ggerr.Newf(ggerr.Parse, "unknown object tag %d", kind)
	}
}

// clampPrealloc bounds a length-prefixed preallocation so a corrupt/huge
// declared length can't be used to force an outsized allocation before the
// bounds check on the actual remaining buffer fails.
func clampPrealloc(n uint32) int {
	const cap = 4096
	if n > cap {
		return cap
	}
	return int(n)
}

func decodeBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ggerr.New(ggerr.Parse, "truncated bytes length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(n) > uint64(len(buf)) {
		return nil, nil, ggerr.New(ggerr.Parse, "bytes length overruns buffer")
	}
	return buf[:n], buf[n:], nil
}

// Claim deep-copies every Bytes field in obj (recursively through List/Map)
// so the result no longer aliases the buffer Decode borrowed from. This is
// the Go equivalent of the spec's "claim step" that copies into a
// caller-supplied arena.
func Claim(obj Object) Object {
	switch obj.Kind {
	case KindBytes:
		return Object{Kind: KindBytes, Bytes: append([]byte(nil), obj.Bytes...)}
	case KindList:
		items := make([]Object, len(obj.List))
		for i, it := range obj.List {
			items[i] = Claim(it)
		}
		return Object{Kind: KindList, List: items}
	case KindMap:
		pairs := make([]KV, len(obj.Map))
		for i, kv := range obj.Map {
			pairs[i] = KV{Key: append([]byte(nil), kv.Key...), Value: Claim(kv.Value)}
		}
		return Object{Kind: KindMap, Map: pairs}
	default:
		return obj
	}
}
