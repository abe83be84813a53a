// Package config implements the in-memory configuration tree backing the
// core bus "gg_config" interface (spec §4.11): read, write, list, delete and
// subscribe over a depth-bounded key path of byte-string segments.
//
// Grounded on _examples/original_source/ggconfigd/src/db_interface.c, whose
// two competing schemas spec.md §9 resolves in favor of the relational
// (key-id + parent-id) variant because it handles arbitrary depth without
// ambiguity from separator characters inside a key segment. The on-disk
// representation is out of scope (spec.md §1); this keeps the same
// key-id/parent-id adjacency shape as a plain in-memory tree instead of a
// SQL-backed table.
package config

import (
	"sort"
	"sync"

	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

// MaxKeyDepth bounds key path length, per spec §3 Configuration key path
// (depth-bounded, ≥16).
const MaxKeyDepth = 16

// node is one key-id, holding its own segment name, its value (if any is
// written directly to it) and its children keyed by segment name — the
// adjacency-list shape of the relational key-id/parent-id schema, collapsed
// into pointers since there is no on-disk row identity to preserve.
type node struct {
	value    gobj.Object
	hasValue bool
	children map[string]*node
}

func newNode() *node { return &node{children: make(map[string]*node)} }

// watcher is one active subscription: notify delivers an event when a
// write lands at or under path.
type watcher struct {
	path   [][]byte
	notify func(keyPath [][]byte, value gobj.Object)
}

// Tree is the configuration store's in-memory adjacency structure. All
// mutations and reads are guarded by one mutex, matching the bus server's
// policy of short, non-blocking critical sections (no I/O happens under the
// lock — pure map/slice bookkeeping).
type Tree struct {
	mu       sync.Mutex
	root     *node
	watchers []*watcher
}

// New returns an empty configuration tree.
func New() *Tree {
	return &Tree{root: newNode()}
}

func validatePath(path [][]byte) error {
	if len(path) == 0 {
		return ggerr.New(ggerr.Invalid, "key path must have at least one segment")
	}
	if len(path) > MaxKeyDepth {
		return ggerr.New(ggerr.Range, "key path exceeds maximum depth")
	}
	for _, seg := range path {
		if len(seg) == 0 {
			return ggerr.New(ggerr.Invalid, "key path segment must not be empty")
		}
	}
	return nil
}

// Write stores value at path, creating intermediate nodes as needed.
// Grounded on ggconfigd's "write creates or updates a key, and its parent
// chain" behavior.
func (t *Tree) Write(path [][]byte, value gobj.Object) error {
	if err := validatePath(path); err != nil {
		return err
	}

	t.mu.Lock()
	cur := t.root
	for _, seg := range path {
		key := string(seg)
		child, ok := cur.children[key]
		if !ok {
			child = newNode()
			cur.children[key] = child
		}
		cur = child
	}
	cur.value = value
	cur.hasValue = true
	watchers := append([]*watcher(nil), t.watchers...)
	t.mu.Unlock()

	for _, w := range watchers {
		if pathCovers(w.path, path) {
			w.notify(path, value)
		}
	}
	return nil
}

// pathCovers reports whether a write at writePath should be delivered to a
// subscription on subPath: subPath must be a prefix of (or equal to)
// writePath, per spec §4.11 "prefix- or exact-match of the subscribed
// path".
func pathCovers(subPath, writePath [][]byte) bool {
	if len(subPath) > len(writePath) {
		return false
	}
	for i, seg := range subPath {
		if string(seg) != string(writePath[i]) {
			return false
		}
	}
	return true
}

// Read returns the value stored at path. Fails NoEntry if nothing was ever
// written there.
func (t *Tree) Read(path [][]byte) (gobj.Object, error) {
	if err := validatePath(path); err != nil {
		return gobj.Object{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for _, seg := range path {
		child, ok := cur.children[string(seg)]
		if !ok {
			return gobj.Object{}, ggerr.New(ggerr.NoEntry, "key path not found")
		}
		cur = child
	}
	if !cur.hasValue {
		return gobj.Object{}, ggerr.New(ggerr.NoEntry, "key path has no value")
	}
	return cur.value, nil
}

// List returns the sorted child segment names directly under path.
func (t *Tree) List(path [][]byte) ([]string, error) {
	if len(path) > MaxKeyDepth {
		return nil, ggerr.New(ggerr.Range, "key path exceeds maximum depth")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for _, seg := range path {
		child, ok := cur.children[string(seg)]
		if !ok {
			return nil, ggerr.New(ggerr.NoEntry, "key path not found")
		}
		cur = child
	}

	names := make([]string, 0, len(cur.children))
	for name := range cur.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes path and its entire subtree.
func (t *Tree) Delete(path [][]byte) error {
	if err := validatePath(path); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for i, seg := range path {
		child, ok := cur.children[string(seg)]
		if !ok {
			return ggerr.New(ggerr.NoEntry, "key path not found")
		}
		if i == len(path)-1 {
			delete(cur.children, string(seg))
			return nil
		}
		cur = child
	}
	return nil
}

// Subscribe registers notify to fire on every write at or under path. It
// returns an unsubscribe function.
func (t *Tree) Subscribe(path [][]byte, notify func(keyPath [][]byte, value gobj.Object)) (func(), error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	w := &watcher{path: path, notify: notify}

	t.mu.Lock()
	t.watchers = append(t.watchers, w)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, existing := range t.watchers {
			if existing == w {
				t.watchers = append(t.watchers[:i], t.watchers[i+1:]...)
				return
			}
		}
	}, nil
}
