package authz

import (
	"testing"

	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

func TestDefaultMatcherExactAndWildcard(t *testing.T) {
	cases := []struct {
		resource, pattern string
		want              bool
	}{
		{"widgets/1", "widgets/1", true},
		{"widgets/1", "widgets/2", false},
		{"widgets/1", "widgets/*", true},
		{"widgets/1", "*", true},
		{"anything", "*", true},
		{"widgets/1/status", "widgets/*/status", true},
		{"widgets/1/other", "widgets/*/status", false},
		{"prefix-middle-suffix", "prefix-*-suffix", true},
		{"prefix-suffix", "prefix-*-middle-*-suffix", false},
		{"a-b-c-suffix", "a-*-*-suffix", true},
	}
	for _, c := range cases {
		if got := DefaultMatcher(c.resource, c.pattern); got != c.want {
			t.Errorf("DefaultMatcher(%q, %q) = %v, want %v", c.resource, c.pattern, got, c.want)
		}
	}
}

func TestDefaultMatcherStripsEscapedSegments(t *testing.T) {
	// "${aws:username}" is an escape; its contents are literal text, not a
	// wildcard, so the pattern behaves as if it read "aws:username".
	if !DefaultMatcher("aws:username", "${aws:username}") {
		t.Fatal("expected escaped literal segment to match verbatim")
	}
	if DefaultMatcher("someone-else", "${aws:username}") {
		t.Fatal("escaped literal segment must not match a different value")
	}
}

func TestDefaultMatcherEscapedWildcardBounds(t *testing.T) {
	// "${x}*${y}" matches any resource beginning with literal "x" and ending
	// with literal "y" (spec §8 boundary behavior).
	if !DefaultMatcher("x-middle-y", "${x}*${y}") {
		t.Fatal("expected prefix/suffix literal match through escape+wildcard")
	}
	if DefaultMatcher("z-middle-y", "${x}*${y}") {
		t.Fatal("expected mismatch when prefix literal differs")
	}
	if DefaultMatcher("x-middle-z", "${x}*${y}") {
		t.Fatal("expected mismatch when suffix literal differs")
	}
}

func TestMQTTMatcherWildcards(t *testing.T) {
	cases := []struct {
		topic, filter string
		want          bool
	}{
		{"widgets/1/status", "widgets/1/status", true},
		{"widgets/1/status", "widgets/+/status", true},
		{"widgets/1/2/status", "widgets/+/status", false},
		{"widgets/1/status", "widgets/#", true},
		{"widgets", "widgets/#", true},
		{"widgets/1/status/deep", "widgets/#", true},
		{"widgets/1", "widgets/+/status", false},
		{"other/topic", "widgets/#", false},
	}
	for _, c := range cases {
		if got := MQTTMatcher(c.topic, c.filter); got != c.want {
			t.Errorf("MQTTMatcher(%q, %q) = %v, want %v", c.topic, c.filter, got, c.want)
		}
	}
}

type fakeConfigReader struct {
	policies gobj.Object
	err      error
}

func (f fakeConfigReader) ReadAccessControl(component, service string) (gobj.Object, error) {
	return f.policies, f.err
}

func policyObj(operations, resources []string) gobj.Object {
	ops := make([]gobj.Object, len(operations))
	for i, o := range operations {
		ops[i] = gobj.Str(o)
	}
	res := make([]gobj.Object, len(resources))
	for i, r := range resources {
		res[i] = gobj.Str(r)
	}
	return gobj.Map(
		gobj.Field("operations", gobj.List(ops...)),
		gobj.Field("resources", gobj.List(res...)),
	)
}

func TestAuthorizeAllowsMatchingPolicy(t *testing.T) {
	policies := gobj.Map(gobj.Field("p1", policyObj(
		[]string{"aws.greengrass#PublishToTopic"},
		[]string{"widgets/*"},
	)))
	reader := fakeConfigReader{policies: policies}

	err := Authorize(reader, OperationInfo{
		Component: "com.acme.Widget",
		Service:   "aws.greengrass.ipc.pubsub",
		Operation: "aws.greengrass#PublishToTopic",
	}, "widgets/1", DefaultMatcher)
	if err != nil {
		t.Fatalf("expected authorized, got %v", err)
	}
}

func TestAuthorizeRejectsUnlistedOperation(t *testing.T) {
	policies := gobj.Map(gobj.Field("p1", policyObj(
		[]string{"aws.greengrass#SubscribeToTopic"},
		[]string{"widgets/*"},
	)))
	reader := fakeConfigReader{policies: policies}

	err := Authorize(reader, OperationInfo{
		Component: "com.acme.Widget",
		Service:   "aws.greengrass.ipc.pubsub",
		Operation: "aws.greengrass#PublishToTopic",
	}, "widgets/1", DefaultMatcher)
	if ggerr.KindOf(err) != ggerr.NoEntry {
		t.Fatalf("expected NoEntry, got %v", err)
	}
}

func TestAuthorizeRejectsUnmatchedResource(t *testing.T) {
	policies := gobj.Map(gobj.Field("p1", policyObj(
		[]string{"aws.greengrass#PublishToTopic"},
		[]string{"gadgets/*"},
	)))
	reader := fakeConfigReader{policies: policies}

	err := Authorize(reader, OperationInfo{
		Component: "com.acme.Widget",
		Service:   "aws.greengrass.ipc.pubsub",
		Operation: "aws.greengrass#PublishToTopic",
	}, "widgets/1", DefaultMatcher)
	if ggerr.KindOf(err) != ggerr.NoEntry {
		t.Fatalf("expected NoEntry, got %v", err)
	}
}

func TestAuthorizeWildcardOperationAndResource(t *testing.T) {
	policies := gobj.Map(gobj.Field("admin", policyObj([]string{"*"}, []string{"*"})))
	reader := fakeConfigReader{policies: policies}

	err := Authorize(reader, OperationInfo{
		Component: "com.acme.AdminTool",
		Service:   "aws.greengrass.ipc.pubsub",
		Operation: "aws.greengrass#PublishToTopic",
	}, "anything/at/all", DefaultMatcher)
	if err != nil {
		t.Fatalf("expected wildcard policy to authorize, got %v", err)
	}
}

func TestAuthorizeUsesMQTTMatcherWhenSelected(t *testing.T) {
	policies := gobj.Map(gobj.Field("p1", policyObj(
		[]string{"aws.greengrass#PublishToIoTCore"},
		[]string{"widgets/+/status"},
	)))
	reader := fakeConfigReader{policies: policies}
	info := OperationInfo{
		Component: "com.acme.Widget",
		Service:   "aws.greengrass.ipc.mqttproxy",
		Operation: "aws.greengrass#PublishToIoTCore",
	}

	if err := Authorize(reader, info, "widgets/1/status", MQTTMatcher); err != nil {
		t.Fatalf("expected MQTT wildcard match, got %v", err)
	}
	if err := Authorize(reader, info, "widgets/1/2/status", MQTTMatcher); ggerr.KindOf(err) != ggerr.NoEntry {
		t.Fatalf("expected multi-level topic to fail a single-level '+' filter, got %v", err)
	}
}

func TestAuthorizeMalformedPolicyDoesNotBlockOthers(t *testing.T) {
	policies := gobj.Map(
		gobj.Field("broken", gobj.I64(42)), // not a map: malformed
		gobj.Field("good", policyObj([]string{"aws.greengrass#PublishToTopic"}, []string{"widgets/*"})),
	)
	reader := fakeConfigReader{policies: policies}

	err := Authorize(reader, OperationInfo{
		Component: "com.acme.Widget",
		Service:   "aws.greengrass.ipc.pubsub",
		Operation: "aws.greengrass#PublishToTopic",
	}, "widgets/1", DefaultMatcher)
	if err != nil {
		t.Fatalf("expected the well-formed policy to still authorize, got %v", err)
	}
}

func TestAuthorizePropagatesConfigReadError(t *testing.T) {
	reader := fakeConfigReader{err: ggerr.New(ggerr.NoEntry, "no such component")}

	err := Authorize(reader, OperationInfo{Component: "com.acme.Ghost"}, "x", DefaultMatcher)
	if ggerr.KindOf(err) != ggerr.NoEntry {
		t.Fatalf("expected config read error to propagate, got %v", err)
	}
}
