package gobj

import (
	"testing"

	"github.com/edgerun/ipcbus/internal/ggerr"
)

func roundTrip(t *testing.T, o Object) Object {
	t.Helper()
	buf, err := Encode(o)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []Object{
		Null(),
		Bool(true),
		Bool(false),
		I64(-12345),
		I64(0),
		F64(3.5),
		F64(-0.0),
		Bytes([]byte("thing-1")),
		Bytes([]byte{}),
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		if !Equal(got, c) {
			t.Errorf("round trip mismatch: got %+v want %+v", got, c)
		}
	}
}

func TestRoundTripListAndMapOrder(t *testing.T) {
	m := Map(
		Field("z", I64(1)),
		Field("a", I64(2)),
		Field("z", I64(3)), // duplicate key, first-wins at lookup
	)
	l := List(I64(1), Str("two"), Bool(true), m)

	got := roundTrip(t, l)
	if !Equal(got, l) {
		t.Fatalf("list round trip mismatch: got %+v want %+v", got, l)
	}

	gotMap := got.List[3]
	v, ok := gotMap.Get("z")
	if !ok {
		t.Fatal("expected key z present")
	}
	if v.I64 != 1 {
		t.Fatalf("first-wins lookup: got %d want 1 (first occurrence)", v.I64)
	}
}

func TestEmptyMapIsLegal(t *testing.T) {
	got := roundTrip(t, Map())
	if got.Kind != KindMap || len(got.Map) != 0 {
		t.Fatalf("expected empty map, got %+v", got)
	}
}

func TestDecodeTruncatedFailsParse(t *testing.T) {
	buf, err := Encode(I64(42))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Decode(buf[:len(buf)-1])
	if ggerr.KindOf(err) != ggerr.Parse {
		t.Fatalf("expected Parse, got %v", err)
	}
}

func TestDecodeUnknownTagFailsParse(t *testing.T) {
	_, err := Decode([]byte{0xFF})
	if ggerr.KindOf(err) != ggerr.Parse {
		t.Fatalf("expected Parse, got %v", err)
	}
}

func TestDecodeTrailingBytesFailsParse(t *testing.T) {
	buf, err := Encode(I64(42))
	if err != nil {
		t.Fatal(err)
	}
	buf = append(buf, 0x00)
	_, err = Decode(buf)
	if ggerr.KindOf(err) != ggerr.Parse {
		t.Fatalf("expected Parse for trailing bytes, got %v", err)
	}
}

func TestDepthAtLimitSucceedsBeyondFails(t *testing.T) {
	// Build a list nested exactly MaxDepth levels deep (innermost is a scalar
	// at depth MaxDepth, matching encodeInto's depth>MaxDepth check).
	obj := I64(1)
	for i := 0; i < MaxDepth; i++ {
		obj = List(obj)
	}
	if _, err := Encode(obj); err != nil {
		t.Fatalf("object at max depth should encode, got %v", err)
	}

	obj = List(obj) // one level beyond
	if _, err := Encode(obj); ggerr.KindOf(err) != ggerr.Range {
		t.Fatalf("object beyond max depth should fail Range, got %v", err)
	}
}

func TestClaimDetachesFromInputBuffer(t *testing.T) {
	buf, err := Encode(Bytes([]byte("hello")))
	if err != nil {
		t.Fatal(err)
	}
	obj, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	claimed := Claim(obj)
	buf[5] = 'X' // corrupt the original wire buffer (tag+len prefix is 5 bytes)
	if string(claimed.Bytes) != "hello" {
		t.Fatalf("claimed object aliased input buffer: got %q", claimed.Bytes)
	}
}

func TestEncodeIntoFixedCapacityNoMem(t *testing.T) {
	dst := make([]byte, 0, 2) // too small for even a null tag + anything else
	dst, err := EncodeInto(dst, Null())
	if err != nil {
		t.Fatalf("unexpected error encoding null into small buffer: %v", err)
	}
	_, err = EncodeInto(dst, I64(1))
	if ggerr.KindOf(err) != ggerr.NoMem {
		t.Fatalf("expected NoMem once capacity is exhausted, got %v", err)
	}
}
