package config

import (
	"github.com/edgerun/ipcbus/internal/gobj"
)

// ReadAccessControl implements internal/gateway/authz.ConfigReader: it
// resolves the policy map at
// services/<component>/configuration/accessControl/<service>, per spec
// §4.7. A missing node (component never configured, or no policy for this
// IPC namespace) is reported as an empty map so Authorize's loop simply
// finds no match rather than failing with a config error.
func (t *Tree) ReadAccessControl(component, service string) (gobj.Object, error) {
	path := [][]byte{
		[]byte("services"),
		[]byte(component),
		[]byte("configuration"),
		[]byte("accessControl"),
		[]byte(service),
	}
	value, err := t.Read(path)
	if err != nil {
		return gobj.Map(), nil
	}
	return value, nil
}

// ComponentScopedPath rewrites a bare key path claimed by component into
// its namespaced location under the tree, per spec §3 "Configuration key
// path": "[..segments]" becomes "[services, component_name, ..segments]"
// unless the path already starts with "services", which passes through
// unchanged (an explicit, already deployment-scoped read). Grounded on
// _examples/original_source/ggipcd/src/handlers/make_key_path_object.c and
// _examples/original_source/ggipcd/src/services/config/make_config_path_object.c,
// neither of which inserts a "configuration" level.
func ComponentScopedPath(component string, segments [][]byte) [][]byte {
	if len(segments) > 0 && string(segments[0]) == "services" {
		return segments
	}
	out := make([][]byte, 0, len(segments)+2)
	out = append(out, []byte("services"), []byte(component))
	out = append(out, segments...)
	return out
}
