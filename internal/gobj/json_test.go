package gobj

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	in := map[string]any{
		"name":    "widget",
		"count":   float64(3),
		"enabled": true,
		"tags":    []any{"a", "b"},
		"nested":  map[string]any{"x": float64(1)},
		"empty":   nil,
	}

	obj := FromJSON(in)
	if obj.Kind != KindMap {
		t.Fatalf("expected KindMap, got %v", obj.Kind)
	}

	out := ToJSON(obj)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%#v\nout=%#v", in, out)
	}
}

func TestFromJSONMarshalledInput(t *testing.T) {
	var v any
	if err := json.Unmarshal([]byte(`{"a":[1,2,3],"b":"text"}`), &v); err != nil {
		t.Fatal(err)
	}
	obj := FromJSON(v)
	a, ok := obj.Get("a")
	if !ok || a.Kind != KindList || len(a.List) != 3 {
		t.Fatalf("unexpected a: %+v ok=%v", a, ok)
	}
	b, ok := obj.Get("b")
	if !ok {
		t.Fatal("missing b")
	}
	s, ok := b.AsString()
	if !ok || s != "text" {
		t.Fatalf("unexpected b: %q ok=%v", s, ok)
	}
}

func TestToJSONBytesAsString(t *testing.T) {
	if got := ToJSON(Str("hello")); got != "hello" {
		t.Fatalf("got %v", got)
	}
}
