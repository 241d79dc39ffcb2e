package generator

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// PrintCommands writes the command table of cfg followed by the qualified
// commands of mods.
func PrintCommands(w io.Writer, cfg *device.Config, mods []device.Module) error {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true

	table.AddRow("COMMAND", "SOURCE", "DESCRIPTION", "ARGUMENTS")
	addRows := func(source, prefix string, t *protocol.CommandTable) {
		if t == nil {
			return
		}
		for _, name := range t.Names() {
			def, _ := t.Get(name)
			if prefix != "" {
				name = protocol.Qualify(prefix, name)
			}
			table.AddRow(name, source, def.Description, formatArgs(def.Arguments))
		}
	}

	addRows("config", "", cfg.Commands)
	for _, m := range mods {
		addRows("module", m.Name, m.Commands)
	}

	_, err := fmt.Fprintln(w, table)
	return err
}

func formatArgs(args protocol.Arguments) string {
	if len(args) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.Name+":"+a.Spec)
	}
	return strings.Join(parts, ", ")
}
