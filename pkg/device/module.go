package device

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// HandlerFunc executes one command. Returning true asks the dispatcher to
// acknowledge the command on the handler's behalf; a handler that answers
// through the Responder itself returns false.
type HandlerFunc func(args protocol.Args, resp *Responder) bool

// Handlers maps command names onto their handlers.
type Handlers map[string]HandlerFunc

// HandlersFactory builds the handlers of the device or of a command module.
type HandlersFactory func(cfg *Config, logger log.Logger, helper *Helper) (Handlers, error)

// Module is an installable set of commands, exposed to the server under
// "name:command". Modules are constructed with a redacted configuration.
type Module struct {
	Name     string
	Commands *protocol.CommandTable
	New      HandlersFactory
}

var moduleNameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the module name and its command names.
func (m Module) Validate() error {
	if !moduleNameRegexp.MatchString(m.Name) {
		return fmt.Errorf("invalid module name %q", m.Name)
	}
	if m.New == nil {
		return fmt.Errorf("module %s: nil factory", m.Name)
	}
	if err := m.Commands.Validate(); err != nil {
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	return nil
}

var (
	moduleMu sync.Mutex
	modules  []Module
)

// RegisterModule installs a command module. It is meant to be called from
// init and panics on an invalid module, like a duplicate name would.
func RegisterModule(m Module) {
	if err := m.Validate(); err != nil {
		panic(err)
	}

	moduleMu.Lock()
	defer moduleMu.Unlock()
	for _, existing := range modules {
		if existing.Name == m.Name {
			panic(fmt.Sprintf("command module %s registered twice", m.Name))
		}
	}
	modules = append(modules, m)
}

// Modules returns the installed modules in registration order.
func Modules() []Module {
	moduleMu.Lock()
	defer moduleMu.Unlock()
	return append([]Module(nil), modules...)
}

// Helper gives handlers access to the loaded extensions.
type Helper struct {
	exts *ext.Set
}

// NewHelper returns a helper over exts.
func NewHelper(exts *ext.Set) *Helper {
	return &Helper{exts: exts}
}

// Extension returns the named extension: "_kvs" selects a core extension,
// a plain name a local one. It returns nil when the extension is absent.
func (h *Helper) Extension(name string) ext.Extension {
	if h == nil {
		return nil
	}
	return h.exts.Get(name)
}
