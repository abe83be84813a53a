package gateway

import (
	"github.com/edgerun/ipcbus/internal/config"
	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/gobj"
)

// busConfigReader implements authz.ConfigReader by calling the gg_config
// bus interface over a core-bus client, matching ggl_ipc_auth's real
// deployment (the gateway and the configuration daemon are separate
// processes per spec §2.1's process layout; there is no in-memory Tree to
// call directly from here).
type busConfigReader struct {
	socketDir string
}

func (r *busConfigReader) ReadAccessControl(component, service string) (gobj.Object, error) {
	path := gobj.List(
		gobj.Str("services"),
		gobj.Str(component),
		gobj.Str("configuration"),
		gobj.Str("accessControl"),
		gobj.Str(service),
	)
	params := gobj.Map(gobj.Field("key_path", path))
	value, err := client.Call(r.socketDir, config.InterfaceName, "read", params)
	if err != nil {
		return gobj.Map(), nil
	}
	return value, nil
}
