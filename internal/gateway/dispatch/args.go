package dispatch

import (
	"encoding/base64"
	"encoding/json"

	"github.com/edgerun/ipcbus/internal/gobj"
)

func getString(args Args, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getFloat64(args Args, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func getStringList(args Args, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func getObject(args Args, key string) (map[string]any, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func segmentsOf(parts []string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func segmentsToStrings(segs [][]byte) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = string(s)
	}
	return out
}

// gobjToJSON converts a decoded object-tree value into a plain Go value
// suitable for json.Marshal. Every value this dispatcher reads back off
// the bus (configuration, pub/sub messages) originates as text, and the
// operations that carry genuinely binary payloads (PublishToIoTCore,
// IoTCoreMessage) encode/decode their own base64 fields explicitly
// instead of going through this generic path.
func gobjToJSON(o gobj.Object) any {
	return gobj.ToJSON(o)
}

// jsonToGobj is the egress-to-bus inverse of gobjToJSON, used to translate
// an arbitrary JSON value (e.g. UpdateConfiguration's valueToMerge) into
// the object tree gg_config stores.
func jsonToGobj(v any) gobj.Object {
	return gobj.FromJSON(v)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// marshalJSON is used only for formatter functions that are known to
// receive marshalable input (plain maps/strings), to keep bridge.Formatter
// signatures terse; errors are surfaced rather than panicking.
func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
