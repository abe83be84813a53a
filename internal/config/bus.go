// Bus-facing wiring for the configuration tree: registers "gg_config" on
// the core bus with the read/write/list/delete/subscribe methods described
// in spec §4.11, and implements authz.ConfigReader so the gateway's
// authorization check can read a component's access-control policy without
// going through the gateway socket.
package config

import (
	"github.com/edgerun/ipcbus/internal/corebus/server"
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

// InterfaceName is the core-bus interface name the configuration store
// registers under, matching the collaborator daemon named in spec §6.
const InterfaceName = "gg_config"

// TimestampToMillis converts a write's optional seconds-as-float64
// timestamp to milliseconds-as-int64 by multiplying before truncating,
// per spec §9's deliberately-lossy UpdateConfiguration behavior.
func TimestampToMillis(seconds float64) int64 {
	return int64(seconds * 1000)
}

// BusMethods returns the gg_config method table for corebus/server.Listen.
func (t *Tree) BusMethods() []server.MethodDesc {
	return []server.MethodDesc{
		{Name: "read", Handler: t.handleRead},
		{Name: "write", Handler: t.handleWrite},
		{Name: "list", Handler: t.handleList},
		{Name: "delete", Handler: t.handleDelete},
		{Name: "subscribe", Subscription: true, Handler: t.handleSubscribe},
	}
}

func keyPathFrom(params gobj.Object) ([][]byte, error) {
	v, ok := params.Get("key_path")
	if !ok || v.Kind != gobj.KindList {
		return nil, ggerr.New(ggerr.Invalid, "key_path must be a list of byte segments")
	}
	path := make([][]byte, 0, len(v.List))
	for _, elem := range v.List {
		if elem.Kind != gobj.KindBytes {
			return nil, ggerr.New(ggerr.Invalid, "key_path segment must be bytes")
		}
		path = append(path, elem.Bytes)
	}
	return path, nil
}

func (t *Tree) handleRead(s *server.Server, h sockpool.Handle, params gobj.Object) error {
	path, err := keyPathFrom(params)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	value, err := t.Read(path)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	return s.Respond(h, value)
}

func (t *Tree) handleWrite(s *server.Server, h sockpool.Handle, params gobj.Object) error {
	path, err := keyPathFrom(params)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	value, ok := params.Get("value")
	if !ok {
		s.ReturnErr(h, ggerr.Invalid)
		return nil
	}
	// The optional timestamp is accepted for API parity with
	// UpdateConfiguration callers but carries no on-disk retention (§1
	// out of scope). The gateway dispatcher is responsible for the
	// seconds-to-milliseconds truncation (TimestampToMillis); this store
	// only checks that, if present, it is numeric.
	if ts, present := params.Get("timestamp"); present && ts.Kind != gobj.KindF64 && ts.Kind != gobj.KindI64 {
		s.ReturnErr(h, ggerr.Invalid)
		return nil
	}
	if err := t.Write(path, value); err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	return s.Respond(h, gobj.Null())
}

func (t *Tree) handleList(s *server.Server, h sockpool.Handle, params gobj.Object) error {
	path, err := keyPathFrom(params)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	names, err := t.List(path)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	items := make([]gobj.Object, len(names))
	for i, n := range names {
		items[i] = gobj.Str(n)
	}
	return s.Respond(h, gobj.List(items...))
}

func (t *Tree) handleDelete(s *server.Server, h sockpool.Handle, params gobj.Object) error {
	path, err := keyPathFrom(params)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	if err := t.Delete(path); err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}
	return s.Respond(h, gobj.Null())
}

func (t *Tree) handleSubscribe(s *server.Server, h sockpool.Handle, params gobj.Object) error {
	path, err := keyPathFrom(params)
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}

	unsubscribe, err := t.Subscribe(path, func(keyPath [][]byte, value gobj.Object) {
		segs := make([]gobj.Object, len(keyPath))
		for i, seg := range keyPath {
			segs[i] = gobj.Bytes(seg)
		}
		event := gobj.Map(
			gobj.Field("key_path", gobj.List(segs...)),
			gobj.Field("value", value),
		)
		if err := s.SubRespond(h, event); err != nil {
			s.CloseSub(h)
		}
	})
	if err != nil {
		s.ReturnErr(h, ggerr.KindOf(err))
		return nil
	}

	return s.SubAccept(h, func(sockpool.Handle) { unsubscribe() })
}
