package device

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/protocol"
)

const sampleConfig = `{
	"denhubServerHost": "ws://localhost:8080/",
	"deviceName": "d0",
	"deviceType": "t0",
	"deviceToken": "abc",
	"location": {"room": "lab"},
	"commands": {
		"ping": {"description": "p"},
		"move": {"description": "Move the arm", "args": {"x": "NUMBER", "y": "NUMBER"}}
	}
}`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "d0", cfg.DeviceName)
	assert.Equal(t, "t0", cfg.DeviceType)
	assert.Equal(t, "abc", cfg.DeviceToken)
	assert.Equal(t, "ws://localhost:8080/", cfg.ServerHost)
	assert.False(t, cfg.DebugMode)
	assert.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultRestartDelay, cfg.RestartDelay)

	assert.Equal(t, []string{"ping", "move"}, cfg.Commands.Names())
	move, ok := cfg.Commands.Get("move")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, move.Arguments.Names())

	require.NoError(t, cfg.Validate())
}

func TestParseConfigOverrides(t *testing.T) {
	data := `{
		"denhubServerHost": "wss://hub.example.com/",
		"deviceName": "d0",
		"deviceType": "t0",
		"isDebugMode": true,
		"isSuppressLog": true,
		"reconnectDelayTimeMsec": 250,
		"heartbeatIntervalMsec": 1000,
		"restartDelayTime": 10,
		"cmds": {"blink": {"description": "b"}}
	}`

	t.Setenv("DENHUB_DEVICE_NAME", "from-env")

	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DeviceName)
	assert.True(t, cfg.DebugMode)
	assert.True(t, cfg.SuppressLog)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.RestartDelay)
	assert.Equal(t, []string{"blink"}, cfg.Commands.Names())
}

func TestConfigValidate(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"deviceType": "t0", "commands": {"_hidden": {}}}`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingConfig)
	assert.ErrorIs(t, err, ErrInvalidCommandName)
	assert.Contains(t, err.Error(), "a required configuration undefined: denhubServerHost")
	assert.Contains(t, err.Error(), "a required configuration undefined: deviceName")
	assert.NotContains(t, err.Error(), "deviceType")
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte(`{"deviceName": `))
	assert.Error(t, err)

	_, err = ParseConfig([]byte(`{"commands": {"ping": "nope"}}`))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, []string{"ping", "move"}, cfg.Commands.Names())

	// A companion commands file replaces the inline table.
	require.NoError(t, os.WriteFile(filepath.Join(dir, CommandsFileName), []byte(`{"reboot": {"description": "r"}}`), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"reboot"}, cfg.Commands.Names())

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestConfigMapIsACopy(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	m := cfg.Map()
	assert.Equal(t, "abc", m[KeyDeviceToken])
	assert.Equal(t, map[string]any{"room": "lab"}, m["location"])
	assert.Equal(t, int64(5000), m[KeyReconnectDelay])

	m["location"].(map[string]any)["room"] = "changed"
	m[KeyCommands].(*protocol.CommandTable).Set("extra", protocol.CommandDefinition{})

	again := cfg.Map()
	assert.Equal(t, map[string]any{"room": "lab"}, again["location"])
	assert.Equal(t, 2, cfg.Commands.Len())
}

func TestConfigRedacted(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	cfg.File = "/etc/denhub/config.json"

	r := cfg.Redacted()
	assert.Empty(t, r.ServerHost)
	assert.Empty(t, r.DeviceToken)
	assert.Empty(t, r.File)
	assert.Equal(t, "d0", r.DeviceName)

	_, ok := r.Raw.Get(KeyDeviceToken)
	assert.False(t, ok)
	_, ok = r.Raw.Get(KeyServerHost)
	assert.False(t, ok)

	data, err := json.Marshal(r.Map())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abc")
	assert.NotContains(t, string(data), "localhost:8080")

	// The original is untouched.
	assert.Equal(t, "abc", cfg.DeviceToken)
	assert.Equal(t, "/etc/denhub/config.json", cfg.File)
	_, ok = cfg.Raw.Get(KeyDeviceToken)
	assert.True(t, ok)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		want     string
		upgraded bool
		insecure bool
	}{
		{"loopback", "ws://localhost:8080/", "ws://localhost:8080/?deviceName=d0&deviceToken=abc&deviceType=t0", false, false},
		{"loopback ip", "ws://127.0.0.1:8080", "ws://127.0.0.1:8080?deviceName=d0&deviceToken=abc&deviceType=t0", false, false},
		{"remote plain", "ws://hub.example.com/ws", "ws://hub.example.com/ws?deviceName=d0&deviceToken=abc&deviceType=t0", false, true},
		{"secure", "wss://hub.example.com/ws", "wss://hub.example.com/ws?deviceName=d0&deviceToken=abc&deviceType=t0", false, false},
		{"heroku", "ws://denhub.herokuapp.com/", "wss://denhub.herokuapp.com/?deviceName=d0&deviceToken=abc&deviceType=t0", true, false},
		{"mqtt", "mqtt://broker.example.com:1883/denhub/v1", "mqtt://broker.example.com:1883/denhub/v1?deviceName=d0&deviceToken=abc&deviceType=t0", false, true},
		{"keeps query", "wss://hub.example.com/?region=eu", "wss://hub.example.com/?deviceName=d0&deviceToken=abc&deviceType=t0&region=eu", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{DeviceName: "d0", DeviceType: "t0", DeviceToken: "abc", ServerHost: tt.host}
			ep, err := cfg.Endpoint()
			require.NoError(t, err)
			assert.Equal(t, tt.want, ep.String())
			assert.Equal(t, tt.upgraded, ep.Upgraded)
			assert.Equal(t, tt.insecure, ep.Insecure)
			assert.NotContains(t, ep.Redacted(), "abc")
		})
	}

	_, err := (&Config{ServerHost: "localhost:8080"}).Endpoint()
	assert.Error(t, err)
}

func TestConfigComplete(t *testing.T) {
	cfg := &Config{ReconnectDelay: -time.Second, HeartbeatInterval: 0, RestartDelay: time.Second}
	cfg.Complete()

	assert.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.RestartDelay)
	require.NotNil(t, cfg.Commands)
	assert.NoError(t, cfg.Commands.Validate())
}
