// GetConfiguration and UpdateConfiguration, grounded on
// _examples/original_source/modules/ggipcd/src/handlers/get_configuration.c
// and update_configuration.c. Neither carries a Service/Resource/Matcher,
// so no access-control check runs for either, per spec §4.8's Service-empty
// convention. internal/config.ComponentScopedPath rewrites a bare key path
// under the component's subtree; a path already starting with "services"
// passes through unchanged, and GetConfiguration reads another component's
// subtree when its componentName argument names one.
package dispatch

import (
	"github.com/edgerun/ipcbus/internal/config"
	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

// RegisterConfig adds GetConfiguration and UpdateConfiguration to d.
func RegisterConfig(d *Dispatcher) {
	d.Register(Operation{
		Name:    "aws.greengrass#GetConfiguration",
		Handler: handleGetConfiguration,
	})
	d.Register(Operation{
		Name:    "aws.greengrass#UpdateConfiguration",
		Handler: handleUpdateConfiguration,
	})
}

func keyPathSegments(args Args) [][]byte {
	raw, ok := getStringList(args, "keyPath")
	if !ok {
		return nil
	}
	return segmentsOf(raw)
}

func handleGetConfiguration(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError {
	component := conn.ComponentName
	if name, ok := getString(args, "componentName"); ok && name != "" {
		component = name
	}
	path := config.ComponentScopedPath(component, keyPathSegments(args))

	params := gobj.Map(gobj.Field("key_path", pathToGobjList(path)))
	value, err := client.Call(d.SocketDir, config.InterfaceName, "read", params)
	if err != nil {
		return &OpError{Code: errKindToCode(ggerr.KindOf(err)), Message: "no configuration found for the requested key path"}
	}

	body := map[string]any{
		"componentName": component,
		"value":         gobjToJSON(value),
	}
	return d.Respond(conn, streamID, "aws.greengrass#GetConfigurationResponse", body)
}

func handleUpdateConfiguration(d *Dispatcher, conn *transport.Connection, streamID int32, args Args) *OpError {
	segments := keyPathSegments(args)
	path := config.ComponentScopedPath(conn.ComponentName, segments)

	value, ok := getObject(args, "valueToMerge")
	if !ok {
		return &OpError{Code: InvalidArgumentsError, Message: "valueToMerge is required"}
	}

	fields := []gobj.KV{
		gobj.Field("key_path", pathToGobjList(path)),
		gobj.Field("value", jsonToGobj(value)),
	}
	if seconds, ok := getFloat64(args, "timestamp"); ok {
		fields = append(fields, gobj.Field("timestamp", gobj.I64(config.TimestampToMillis(seconds))))
	}
	params := gobj.Map(fields...)

	if _, err := client.Call(d.SocketDir, config.InterfaceName, "write", params); err != nil {
		return &OpError{Code: errKindToCode(ggerr.KindOf(err)), Message: "failed to update configuration"}
	}
	return d.Respond(conn, streamID, "aws.greengrass#UpdateConfigurationResponse", map[string]any{})
}

func pathToGobjList(path [][]byte) gobj.Object {
	items := make([]gobj.Object, len(path))
	for i, seg := range path {
		items[i] = gobj.Bytes(seg)
	}
	return gobj.List(items...)
}
