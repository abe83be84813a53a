// Package auth implements the gateway's component registry and the two
// connect-time authentication modes described in spec §4.7: token mode
// (an already-minted svcuid presented back to the gateway) and peer mode
// (a claimed component name authorized via SO_PEERCRED against an external
// authority, then registered for the first time).
//
// Grounded on _examples/original_source/modules/ggipcd/src/ipc_components.c,
// whose fixed-capacity parallel arrays (svcuids / component_names /
// component_name_lengths) this port keeps in spirit as a capacity-bounded
// slice of entries under one mutex, linear-scanned exactly like the source
// (component counts are small — tens, not thousands).
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
)

const (
	// MaxComponents bounds the number of distinct components the registry
	// will track, matching the source's GGL_MAX_GENERIC_COMPONENTS-style
	// fixed capacity.
	MaxComponents = 128

	// MaxComponentNameLength mirrors MAX_COMPONENT_NAME_LENGTH.
	MaxComponentNameLength = 128

	// svcuidBytes is the raw entropy backing one svcuid (96 bits).
	svcuidBytes = 12
)

type entry struct {
	name   string
	svcuid string
}

// Registry is the in-memory component table backing both connect-time
// authentication modes and the auxiliary ipc_component.verify_svcuid bus
// method.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make([]entry, 0, MaxComponents)}
}

// newSvcuid mints a fresh 96-bit token, base64-encoded without padding, the
// same 16-character shape ggl_ipc_svcuid_from_str expects to decode.
// crypto/rand is used instead of a general-purpose PRNG since a guessable
// svcuid lets one component impersonate another over the bus.
func newSvcuid() (string, error) {
	var b [svcuidBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", ggerr.Wrap(ggerr.Failure, "generating svcuid entropy", err)
	}
	return base64.RawStdEncoding.EncodeToString(b[:]), nil
}

// Register idempotently adds name to the registry, returning its existing
// svcuid if name was already registered (matching
// ggl_ipc_components_register's name-first linear scan) or minting and
// storing a new one otherwise.
func (r *Registry) Register(name string) (svcuid string, err error) {
	if name == "" || len(name) >= MaxComponentNameLength {
		return "", ggerr.New(ggerr.Range, "component name length out of bounds")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.name == name {
			return e.svcuid, nil
		}
	}
	if len(r.entries) >= MaxComponents {
		return "", ggerr.New(ggerr.NoMem, "component registry at capacity")
	}

	token, err := newSvcuid()
	if err != nil {
		return "", err
	}
	r.entries = append(r.entries, entry{name: name, svcuid: token})
	return token, nil
}

// Lookup resolves a svcuid to its registered component name, mirroring
// ggl_ipc_components_get_handle's linear scan over stored tokens.
func (r *Registry) Lookup(svcuid string) (name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.svcuid == svcuid {
			return e.name, true
		}
	}
	return "", false
}

// Verify reports whether svcuid is a currently registered token, the exact
// check the ipc_component.verify_svcuid bus method exposes.
func (r *Registry) Verify(svcuid string) bool {
	_, ok := r.Lookup(svcuid)
	return ok
}

// PeerAuthority authorizes a claimed component name for a connecting pid in
// peer mode. Grounded on the source's comment that component-name claims in
// peer mode are only trustworthy because the process lifecycle manager is
// the one spawning components and can attest to which pid owns which name;
// that external authority has no implementation in this module, so it is a
// pluggable seam rather than a hardcoded check.
type PeerAuthority interface {
	// Authorize returns nil if pid is permitted to claim componentName.
	Authorize(pid int32, componentName string) error
}

// AllowAllAuthority is a PeerAuthority that authorizes any claim, useful for
// local development or single-tenant deployments with no external lifecycle
// manager running.
type AllowAllAuthority struct{}

// Authorize always succeeds.
func (AllowAllAuthority) Authorize(pid int32, componentName string) error { return nil }

// Authenticator implements transport.Authenticator over a Registry.
type Authenticator struct {
	registry *Registry
	peers    PeerAuthority
}

// NewAuthenticator builds a transport.Authenticator backed by registry. A
// nil peers defaults to AllowAllAuthority.
func NewAuthenticator(registry *Registry, peers PeerAuthority) *Authenticator {
	if peers == nil {
		peers = AllowAllAuthority{}
	}
	return &Authenticator{registry: registry, peers: peers}
}

var _ transport.Authenticator = (*Authenticator)(nil)

// AuthenticateToken implements transport.Authenticator (token mode).
func (a *Authenticator) AuthenticateToken(authToken, componentName string) (transport.AuthResult, error) {
	name, ok := a.registry.Lookup(authToken)
	if !ok {
		return transport.AuthResult{}, ggerr.New(ggerr.NoEntry, "svcuid not registered")
	}
	if componentName != "" && componentName != name {
		return transport.AuthResult{}, ggerr.New(ggerr.Invalid, "component name does not match svcuid")
	}
	return transport.AuthResult{ComponentName: name, Svcuid: authToken}, nil
}

// AuthenticatePeer implements transport.Authenticator (peer mode): the
// claimed name is authorized against the external authority, then
// idempotently registered (a component reconnecting gets back the same
// svcuid it was issued the first time).
func (a *Authenticator) AuthenticatePeer(pid int32, componentName string) (transport.AuthResult, error) {
	if err := a.peers.Authorize(pid, componentName); err != nil {
		return transport.AuthResult{}, ggerr.Wrap(ggerr.Invalid, "peer not authorized for claimed component name", err)
	}
	svcuid, err := a.registry.Register(componentName)
	if err != nil {
		return transport.AuthResult{}, err
	}
	return transport.AuthResult{ComponentName: componentName, Svcuid: svcuid}, nil
}
