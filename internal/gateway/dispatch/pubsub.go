// PublishToTopic and SubscribeToTopic, the local pub/sub operations named
// in spec §4.13/§4.14, grounded on
// _examples/original_source/modules/ggipcd/src/handlers/publish_to_topic.c
// and subscribe_to_topic.c. Both authorize against the
// "aws.greengrass.ipc.pubsub" namespace using the same glob matching as
// configuration access control (spec §4.7 DefaultMatcher), and translate
// against the "gg_pubsub" bus interface (spec §6, out of scope as a
// collaborator).
package dispatch

import (
	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/gateway/authz"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

const pubsubInterface = "gg_pubsub"

// RegisterPubSub adds PublishToTopic and SubscribeToTopic to d.
func RegisterPubSub(d *Dispatcher) {
	d.Register(Operation{
		Name:    "aws.greengrass#PublishToTopic",
		Service: "aws.greengrass.ipc.pubsub",
		Resource: func(args Args) (string, bool) {
			return getString(args, "topic")
		},
		Matcher: authz.DefaultMatcher,
		Handler: handlePublishToTopic,
	})
	d.Register(Operation{
		Name:    "aws.greengrass#SubscribeToTopic",
		Service: "aws.greengrass.ipc.pubsub",
		Resource: func(args Args) (string, bool) {
			return getString(args, "topic")
		},
		Matcher: authz.DefaultMatcher,
		Handler: handleSubscribeToTopic,
	})
}

// publishMessage mirrors the union the handlers accept: a JSON message has
// either a "binaryMessage" or a "jsonMessage" field, never both.
func publishMessage(args Args) (gobj.Object, bool) {
	if binMsg, ok := getObject(args, "publishMessage"); ok {
		if bin, ok := binMsg["binaryMessage"].(map[string]any); ok {
			payloadB64, _ := bin["message"].(string)
			payload, err := decodeBase64(payloadB64)
			if err != nil {
				return gobj.Object{}, false
			}
			return gobj.Map(
				gobj.Field("kind", gobj.Str("binary")),
				gobj.Field("payload", gobj.Bytes(payload)),
			), true
		}
		if js, ok := binMsg["jsonMessage"].(map[string]any); ok {
			value, _ := js["message"]
			return gobj.Map(
				gobj.Field("kind", gobj.Str("json")),
				gobj.Field("payload", jsonToGobj(value)),
			), true
		}
	}
	return gobj.Object{}, false
}

func handlePublishToTopic(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError {
	topic, ok := getString(args, "topic")
	if !ok {
		return &OpError{Code: InvalidArgumentsError, Message: "topic is required"}
	}
	message, ok := publishMessage(args)
	if !ok {
		return &OpError{Code: InvalidArgumentsError, Message: "publishMessage must set binaryMessage or jsonMessage"}
	}

	params := gobj.Map(
		gobj.Field("topic", gobj.Str(topic)),
		gobj.Field("message", message),
	)
	if _, err := client.Call(d.SocketDir, pubsubInterface, "publish", params); err != nil {
		return &OpError{Code: errKindToCode(ggerr.KindOf(err)), Message: "failed to publish to topic"}
	}
	return d.Respond(conn, streamID, "aws.greengrass#PublishToTopicResponse", map[string]any{})
}

func handleSubscribeToTopic(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError {
	topic, ok := getString(args, "topic")
	if !ok {
		return &OpError{Code: InvalidArgumentsError, Message: "topic is required"}
	}

	sess, err := d.Bridge.Open(conn, streamID, formatTopicMessage)
	if err != nil {
		return &OpError{Code: ServiceError, Message: "too many active subscriptions"}
	}

	params := gobj.Map(gobj.Field("topic", gobj.Str(topic)))
	h, err := d.Subs.Subscribe(d.SocketDir, pubsubInterface, "subscribe", params, sess.OnResponse, sess.OnClose, nil)
	if err != nil {
		sess.Release()
		return &OpError{Code: errKindToCode(ggerr.KindOf(err)), Message: "failed to subscribe to topic"}
	}
	sess.Attach(h)
	return d.Respond(conn, streamID, "aws.greengrass#SubscribeToTopicResponse", map[string]any{})
}

func formatTopicMessage(value gobj.Object) (string, []byte, error) {
	topic, _ := value.Get("topic")
	message, _ := value.Get("message")
	topicStr, _ := topic.AsString()

	kind, _ := message.Get("kind")
	payload, _ := message.Get("payload")
	kindStr, _ := kind.AsString()

	var msg map[string]any
	if kindStr == "binary" {
		msg = map[string]any{"binaryMessage": map[string]any{
			"message": encodeBase64(payload.Bytes),
		}}
	} else {
		msg = map[string]any{"jsonMessage": map[string]any{
			"message": gobjToJSON(payload),
		}}
	}

	body := map[string]any{
		"topicName": topicStr,
		"message":   msg,
	}
	data, err := marshalJSON(body)
	return "aws.greengrass#SubscriptionResponseMessage", data, err
}
