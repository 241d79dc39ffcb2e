package device

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

type manifestExt struct {
	ext.Base

	items map[string]any
	err   error
	seen  map[string]any
}

func (e *manifestExt) OnSendManifest(m map[string]any) (map[string]any, error) {
	e.seen = m
	m["deviceName"] = "tampered"
	return e.items, e.err
}

func TestBuildManifest(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	sensors := protocol.NewCommandTable()
	sensors.Set("temperature", protocol.CommandDefinition{Description: "Read the temperature"})
	sensors.Set("humidity", protocol.CommandDefinition{Description: "Read the humidity"})
	sensors.Set("pressure", protocol.CommandDefinition{Description: "Read the pressure"})

	mod := Module{
		Name:     "sensors",
		Commands: sensors,
		New: func(*Config, log.Logger, *Helper) (Handlers, error) {
			return Handlers{}, nil
		},
	}

	exts := ext.NewSet()
	good := &manifestExt{items: map[string]any{"deviceEnv": map[string]any{"arch": "arm64"}}}
	failing := &manifestExt{items: map[string]any{"ignored": true}, err: errors.New("nope")}
	exts.Put(ext.Key{Scope: ext.ScopeCore, Name: "good"}, good)
	exts.Put(ext.Key{Scope: ext.ScopeCore, Name: "failing"}, failing)
	exts.Put(ext.Key{Scope: ext.ScopeLocal, Name: "absent"}, nil)

	registry, err := NewRegistry(cfg, nil, []Module{mod}, log.NewNopLogger(), NewHelper(exts))
	require.NoError(t, err)

	m := BuildManifest(cfg, registry, exts, log.NewNopLogger())

	// N local + M module commands under qualified names.
	commands := m[KeyCommands].(*protocol.CommandTable)
	assert.Equal(t, cfg.Commands.Len()+sensors.Len(), commands.Len())
	assert.Equal(t, []string{"ping", "move", "sensors:temperature", "sensors:humidity", "sensors:pressure"}, commands.Names())

	assert.Equal(t, []string{"sensors"}, m[KeyCommandModuleNames])
	assert.Equal(t, DaemonID(), m[KeyDeviceDaemon])
	assert.Equal(t, map[string]any{"arch": "arm64"}, m["deviceEnv"])
	assert.NotContains(t, m, "ignored")

	// Extensions work on copies.
	assert.Equal(t, "d0", m[KeyDeviceName])
	assert.Equal(t, "d0", cfg.DeviceName)
	require.NotNil(t, good.seen)

	// The manifest is plain JSON with the command order preserved.
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"commands":{"ping":{"description":"p","arguments":{}},"move":`)

	// Every build starts from a fresh copy.
	m["location"].(map[string]any)["room"] = "changed"
	again := BuildManifest(cfg, registry, exts, log.NewNopLogger())
	assert.Equal(t, map[string]any{"room": "lab"}, again["location"])
}

func TestRedactManifest(t *testing.T) {
	m := map[string]any{KeyDeviceName: "d0", KeyDeviceToken: "abc", KeyServerHost: "ws://localhost/"}
	r := RedactManifest(m)

	assert.Equal(t, "xxxxx", r[KeyDeviceToken])
	assert.Equal(t, "xxxxx", r[KeyServerHost])
	assert.Equal(t, "d0", r[KeyDeviceName])
	assert.Equal(t, "abc", m[KeyDeviceToken])
}

func TestRegisterModule(t *testing.T) {
	assert.Panics(t, func() { RegisterModule(Module{Name: "Bad Name"}) })
	assert.Panics(t, func() {
		RegisterModule(Module{Name: "nofactory", Commands: protocol.NewCommandTable()})
	})

	invalid := protocol.NewCommandTable()
	invalid.Set("no-dash", protocol.CommandDefinition{})
	err := Module{Name: "ok", Commands: invalid, New: func(*Config, log.Logger, *Helper) (Handlers, error) { return nil, nil }}.Validate()
	assert.ErrorIs(t, err, ErrInvalidCommandName)
}
