package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var commandNameRegexp = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]+$`)

// ErrInvalidCommandName is returned for command names that cannot be
// declared by a device.
var ErrInvalidCommandName = errors.New("invalid command name")

// ValidateCommandName checks that name is a declarable command: an ASCII
// letter followed by at least one letter or digit.
func ValidateCommandName(name string) error {
	if !commandNameRegexp.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCommandName, name)
	}
	return nil
}

// Argument is one declared argument of a command.
type Argument struct {
	Name string
	Spec string
}

// Arguments is an ordered set of declared arguments. It is encoded as a JSON
// object whose key order is preserved.
type Arguments []Argument

// Lookup returns the spec of the argument called name.
func (a Arguments) Lookup(name string) (string, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Spec, true
		}
	}
	return "", false
}

// Names returns the argument names in declaration order.
func (a Arguments) Names() []string {
	names := make([]string, 0, len(a))
	for _, arg := range a {
		names = append(names, arg.Name)
	}
	return names
}

func (a Arguments) MarshalJSON() ([]byte, error) {
	m := orderedmap.New[string, string]()
	for _, arg := range a {
		m.Set(arg.Name, arg.Spec)
	}
	return m.MarshalJSON()
}

func (a *Arguments) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	m := orderedmap.New[string, json.RawMessage]()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	out := make(Arguments, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		var spec string
		if err := json.Unmarshal(pair.Value, &spec); err != nil {
			// Non-string specs are kept verbatim.
			spec = string(bytes.TrimSpace(pair.Value))
		}
		out = append(out, Argument{Name: pair.Key, Spec: spec})
	}
	*a = out
	return nil
}

// CommandDefinition describes a command a device accepts.
type CommandDefinition struct {
	Description string    `json:"description"`
	Arguments   Arguments `json:"arguments"`
}

func (d *CommandDefinition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Description string    `json:"description"`
		Arguments   Arguments `json:"arguments"`
		Args        Arguments `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Description = raw.Description
	d.Arguments = raw.Arguments
	if d.Arguments == nil {
		d.Arguments = raw.Args
	}
	if d.Arguments == nil {
		d.Arguments = Arguments{}
	}
	return nil
}

// CommandTable is an ordered name to definition table.
type CommandTable struct {
	defs *orderedmap.OrderedMap[string, CommandDefinition]
}

// NewCommandTable returns an empty table.
func NewCommandTable() *CommandTable {
	return &CommandTable{defs: orderedmap.New[string, CommandDefinition]()}
}

// Set adds or replaces a definition. New names are appended.
func (t *CommandTable) Set(name string, def CommandDefinition) {
	if t.defs == nil {
		t.defs = orderedmap.New[string, CommandDefinition]()
	}
	t.defs.Set(name, def)
}

// Get returns the definition of name.
func (t *CommandTable) Get(name string) (CommandDefinition, bool) {
	if t == nil || t.defs == nil {
		return CommandDefinition{}, false
	}
	return t.defs.Get(name)
}

// Has reports whether name is defined.
func (t *CommandTable) Has(name string) bool {
	_, ok := t.Get(name)
	return ok
}

// Names returns the command names in declaration order.
func (t *CommandTable) Names() []string {
	if t == nil || t.defs == nil {
		return nil
	}
	names := make([]string, 0, t.defs.Len())
	for pair := t.defs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Clone returns a copy of the table. Cloning nil yields an empty table.
func (t *CommandTable) Clone() *CommandTable {
	out := NewCommandTable()
	if t == nil || t.defs == nil {
		return out
	}
	for pair := t.defs.Oldest(); pair != nil; pair = pair.Next() {
		def := pair.Value
		def.Arguments = append(Arguments{}, def.Arguments...)
		out.Set(pair.Key, def)
	}
	return out
}

// Len returns the number of commands.
func (t *CommandTable) Len() int {
	if t == nil || t.defs == nil {
		return 0
	}
	return t.defs.Len()
}

// Validate checks every command name.
func (t *CommandTable) Validate() error {
	var errs []error
	for _, name := range t.Names() {
		if err := ValidateCommandName(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *CommandTable) MarshalJSON() ([]byte, error) {
	if t == nil || t.defs == nil {
		return []byte("{}"), nil
	}
	return t.defs.MarshalJSON()
}

func (t *CommandTable) UnmarshalJSON(data []byte) error {
	defs := orderedmap.New[string, CommandDefinition]()
	if !isNull(data) {
		if err := defs.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("commands: %w", err)
		}
	}
	t.defs = defs
	return nil
}
