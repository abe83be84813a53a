// PublishToIoTCore and SubscribeToIoTCore, the two MQTT-proxy operations
// named in spec §4.13/§4.14, grounded on
// _examples/original_source/modules/ggipcd/src/handlers/publish_to_iot_core.c
// and subscribe_to_iot_core.c. Both authorize against the
// "aws.greengrass.ipc.mqttproxy" namespace using MQTT topic-filter
// matching (spec §4.7), and translate against the "aws_iot_mqtt" bus
// interface the iotcored daemon exposes (spec §6, out of scope as a
// collaborator).
package dispatch

import (
	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/gateway/authz"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

const mqttInterface = "aws_iot_mqtt"

// RegisterMQTT adds PublishToIoTCore and SubscribeToIoTCore to d.
func RegisterMQTT(d *Dispatcher) {
	d.Register(Operation{
		Name:    "aws.greengrass#PublishToIoTCore",
		Service: "aws.greengrass.ipc.mqttproxy",
		Resource: func(args Args) (string, bool) {
			return getString(args, "topicName")
		},
		Matcher: authz.MQTTMatcher,
		Handler: handlePublishToIoTCore,
	})
	d.Register(Operation{
		Name:    "aws.greengrass#SubscribeToIoTCore",
		Service: "aws.greengrass.ipc.mqttproxy",
		Resource: func(args Args) (string, bool) {
			return getString(args, "topicName")
		},
		Matcher: authz.MQTTMatcher,
		Handler: handleSubscribeToIoTCore,
	})
}

func handlePublishToIoTCore(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError {
	topic, ok := getString(args, "topicName")
	if !ok {
		return &OpError{Code: InvalidArgumentsError, Message: "topicName is required"}
	}
	payloadB64, _ := getString(args, "payload")
	payload, err := decodeBase64(payloadB64)
	if err != nil {
		return &OpError{Code: InvalidArgumentsError, Message: "payload is not valid base64"}
	}
	qosStr, _ := getString(args, "qos")
	var qos int64
	switch qosStr {
	case "1":
		qos = 1
	case "2":
		qos = 2
	default:
		qos = 0
	}
	// retain is not part of the request schema: the original only validates
	// topicName/payload/qos and hardcodes true at the publish call site
	// (publish_to_iot_core.c), matching spec scenario 2.
	params := gobj.Map(
		gobj.Field("topic", gobj.Str(topic)),
		gobj.Field("payload", gobj.Bytes(payload)),
		gobj.Field("qos", gobj.I64(qos)),
		gobj.Field("retain", gobj.Bool(true)),
	)
	if _, err := client.Call(d.SocketDir, mqttInterface, "publish", params); err != nil {
		return &OpError{Code: errKindToCode(ggerr.KindOf(err)), Message: "failed to publish to IoT Core"}
	}
	return d.Respond(conn, streamID, "aws.greengrass#PublishToIoTCoreResponse", map[string]any{})
}

func handleSubscribeToIoTCore(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError {
	topic, ok := getString(args, "topicName")
	if !ok {
		return &OpError{Code: InvalidArgumentsError, Message: "topicName is required"}
	}
	qosStr, _ := getString(args, "qos")

	sess, err := d.Bridge.Open(conn, streamID, formatIoTCoreMessage)
	if err != nil {
		return &OpError{Code: ServiceError, Message: "too many active subscriptions"}
	}

	params := gobj.Map(
		gobj.Field("topic_filter", gobj.Str(topic)),
		gobj.Field("qos", gobj.Str(qosStr)),
	)
	h, err := d.Subs.Subscribe(d.SocketDir, mqttInterface, "subscribe", params, sess.OnResponse, sess.OnClose, nil)
	if err != nil {
		sess.Release()
		return &OpError{Code: errKindToCode(ggerr.KindOf(err)), Message: "failed to subscribe to IoT Core topic"}
	}
	sess.Attach(h)
	return d.Respond(conn, streamID, "aws.greengrass#SubscribeToIoTCoreResponse", map[string]any{})
}

func formatIoTCoreMessage(value gobj.Object) (string, []byte, error) {
	topic, _ := value.Get("topic")
	payload, _ := value.Get("payload")
	topicStr, _ := topic.AsString()
	body := map[string]any{
		"message": map[string]any{
			"topicName": topicStr,
			"payload":   encodeBase64(payload.Bytes),
		},
	}
	data, err := marshalJSON(body)
	return "aws.greengrass#IoTCoreMessage", data, err
}
