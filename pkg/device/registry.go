package device

import (
	"fmt"
	"runtime/debug"

	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// HandlerTag tags the logger handed to command handlers.
const HandlerTag = "CommandsHandler"

type moduleEntry struct {
	name     string
	commands *protocol.CommandTable
	handlers Handlers
}

// Registry resolves command names onto handlers. It is built once and read
// only afterwards.
type Registry struct {
	commands *protocol.CommandTable
	handlers Handlers
	modules  []moduleEntry
}

// Match is a resolved command.
type Match struct {
	// Module is empty for a local command.
	Module  string
	Command string
	Handler HandlerFunc
}

// NewRegistry builds the registry: local handlers from factory over the full
// configuration, then every module over a redacted one. A module failing to
// build is logged and left out.
func NewRegistry(cfg *Config, factory HandlersFactory, mods []Module, logger log.Logger, helper *Helper) (*Registry, error) {
	r := &Registry{commands: cfg.Commands.Clone(), handlers: Handlers{}}

	if factory != nil {
		h, err := buildHandlers(factory, cfg, logger.WithName(HandlerTag), helper)
		if err != nil {
			return nil, fmt.Errorf("build command handlers: %w", err)
		}
		r.handlers = h
	}

	for _, m := range mods {
		if err := m.Validate(); err != nil {
			logger.Warn("Skipping command module", "module", m.Name, "error", err)
			continue
		}
		h, err := buildHandlers(m.New, cfg.Redacted(), logger.WithName(m.Name), helper)
		if err != nil {
			logger.Warn("Could not initialize command module", "module", m.Name, "error", err)
			continue
		}
		r.modules = append(r.modules, moduleEntry{name: m.Name, commands: m.Commands.Clone(), handlers: h})
	}

	return r, nil
}

func buildHandlers(f HandlersFactory, cfg *Config, logger log.Logger, helper *Helper) (h Handlers, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	h, err = f(cfg, logger, helper)
	if h == nil {
		h = Handlers{}
	}
	return h, err
}

// Resolve finds the handler of name. Local commands win. A qualified name
// "module:command" is then looked up in the first module of that name that
// declares the command. The returned handler is nil for a command that is
// declared but has no implementation.
func (r *Registry) Resolve(name string) (Match, bool) {
	if r.commands.Has(name) {
		return Match{Command: name, Handler: r.handlers[name]}, true
	}

	mod, tail, ok := protocol.SplitQualified(name)
	if !ok {
		return Match{}, false
	}
	for _, m := range r.modules {
		if m.name == mod && m.commands.Has(tail) {
			return Match{Module: m.name, Command: tail, Handler: m.handlers[tail]}, true
		}
	}
	return Match{}, false
}

// Commands returns the local commands followed by every module command under
// its qualified name.
func (r *Registry) Commands() *protocol.CommandTable {
	out := r.commands.Clone()
	for _, m := range r.modules {
		for _, name := range m.commands.Names() {
			def, _ := m.commands.Get(name)
			out.Set(protocol.Qualify(m.name, name), def)
		}
	}
	return out
}

// ModuleNames returns the names of the loaded modules.
func (r *Registry) ModuleNames() []string {
	names := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		names = append(names, m.name)
	}
	return names
}
