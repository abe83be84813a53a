package auth

import (
	"github.com/edgerun/ipcbus/internal/corebus/server"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

// InterfaceName is the auxiliary bus interface ggl_ipc_start_component_server
// listens on, exposing verify_svcuid to other daemons that need to validate
// a svcuid without going through the gateway socket.
const InterfaceName = "ipc_component"

// BusMethods returns the method table for the ipc_component interface.
func (r *Registry) BusMethods() []server.MethodDesc {
	return []server.MethodDesc{
		{Name: "verify_svcuid", Handler: r.handleVerifySvcuid},
	}
}

func (r *Registry) handleVerifySvcuid(s *server.Server, h sockpool.Handle, params gobj.Object) error {
	v, ok := params.Get("svcuid")
	if !ok {
		s.ReturnErr(h, ggerr.Invalid)
		return nil
	}
	svcuid, ok := v.AsString()
	if !ok {
		s.ReturnErr(h, ggerr.Invalid)
		return nil
	}
	return s.Respond(h, gobj.Bool(r.Verify(svcuid)))
}
