// Package ext defines the extension hooks of a device. Extensions observe
// every inbound command and contribute items to the manifest.
package ext

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// Scope separates the built-in extensions from user supplied ones.
type Scope string

const (
	ScopeCore  Scope = "core"
	ScopeLocal Scope = "local"
)

// BaseName is reserved for the no-op base implementation and never
// instantiated as a core extension.
const BaseName = "base"

// Extension is implemented by every extension. Embed Base to implement only
// the hooks you need.
type Extension interface {
	// OnSendManifest returns items merged into the outgoing manifest. The
	// manifest passed in is a copy and may be read freely.
	OnSendManifest(manifest map[string]any) (map[string]any, error)

	// OnCmdReceive observes every inbound command, including reserved ones,
	// before it is dispatched.
	OnCmdReceive(cmd string, args protocol.Args, execID int64) error
}

// Base implements Extension with no-op hooks.
type Base struct{}

func (Base) OnSendManifest(map[string]any) (map[string]any, error) { return nil, nil }

func (Base) OnCmdReceive(string, protocol.Args, int64) error { return nil }

var _ Extension = Base{}

// Host is the view of the device an extension is constructed with.
type Host interface {
	// Send writes a frame on the current channel.
	Send(cmd string, args any) error

	// Post runs fn on the device event loop.
	Post(fn func())

	// Restart replaces the running process with a fresh copy.
	Restart()

	// ConfigFile returns the path the configuration was loaded from, or an
	// empty string if it did not come from a file.
	ConfigFile() string

	// Logger returns a logger tagged for the extension.
	Logger() log.Logger
}

// Factory constructs an extension.
type Factory func(h Host) (Extension, error)

// Registration names an extension factory.
type Registration struct {
	Name    string
	Factory Factory
}

// Key identifies an extension instance.
type Key struct {
	Scope Scope
	Name  string
}

func (k Key) String() string {
	return string(k.Scope) + ":" + k.Name
}

// ResolveName maps a lookup name onto a key: a leading underscore selects
// the core scope, anything else the local scope.
func ResolveName(name string) Key {
	if rest, ok := strings.CutPrefix(name, "_"); ok {
		return Key{Scope: ScopeCore, Name: rest}
	}
	return Key{Scope: ScopeLocal, Name: name}
}

var (
	localMu sync.Mutex
	locals  []Registration
)

// Register adds a local extension. It is meant to be called from init.
// Registering a name twice replaces the earlier factory.
func Register(name string, f Factory) {
	localMu.Lock()
	defer localMu.Unlock()
	for i, r := range locals {
		if r.Name == name {
			locals[i].Factory = f
			return
		}
	}
	locals = append(locals, Registration{Name: name, Factory: f})
}

// Registered returns the local extensions in registration order.
func Registered() []Registration {
	localMu.Lock()
	defer localMu.Unlock()
	return append([]Registration(nil), locals...)
}

// Set holds the instantiated extensions in load order. A slot whose factory
// failed is kept with a nil extension.
type Set struct {
	keys  []Key
	items map[Key]Extension
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{items: map[Key]Extension{}}
}

// Put stores e under k.
func (s *Set) Put(k Key, e Extension) {
	if _, ok := s.items[k]; !ok {
		s.keys = append(s.keys, k)
	}
	s.items[k] = e
}

// Lookup returns the extension stored under k. It returns nil for unknown
// keys and for slots whose factory failed.
func (s *Set) Lookup(k Key) Extension {
	if s == nil {
		return nil
	}
	return s.items[k]
}

// Get resolves name with ResolveName and returns the extension.
func (s *Set) Get(name string) Extension {
	return s.Lookup(ResolveName(name))
}

// Keys returns every slot key in load order.
func (s *Set) Keys() []Key {
	if s == nil {
		return nil
	}
	return append([]Key(nil), s.keys...)
}

// Each calls fn for every live extension in load order.
func (s *Set) Each(fn func(k Key, e Extension)) {
	if s == nil {
		return
	}
	for _, k := range s.keys {
		if e := s.items[k]; e != nil {
			fn(k, e)
		}
	}
}

// Load instantiates the core and then the local registrations. hostFor
// returns the host handed to the extension stored under a key. Failures are
// logged and recorded as absent slots.
func Load(logger log.Logger, hostFor func(Key) Host, core, local []Registration) *Set {
	set := NewSet()

	load := func(scope Scope, regs []Registration) {
		for _, r := range regs {
			if scope == ScopeCore && r.Name == BaseName {
				continue
			}
			k := Key{Scope: scope, Name: r.Name}
			logger.Debug("Initializing extension", "extension", k.String())

			e, err := instantiate(r.Factory, hostFor(k))
			if err != nil {
				logger.Warn("Could not initialize extension", "extension", k.String(), "error", err)
				e = nil
			}
			set.Put(k, e)
		}
	}

	load(ScopeCore, core)
	load(ScopeLocal, local)
	return set
}

func instantiate(f Factory, h Host) (e Extension, err error) {
	if f == nil {
		return nil, fmt.Errorf("nil factory")
	}
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return f(h)
}
