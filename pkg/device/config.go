package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/autopeer-io/denhub/pkg/protocol"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "config.json"

	// CommandsFileName is the companion file holding the command table.
	CommandsFileName = "commands.json"

	// EnvPrefix prefixes the environment variables overriding the file.
	EnvPrefix = "DENHUB"
)

// Configuration keys as they appear in config.json.
const (
	KeyDeviceName        = "deviceName"
	KeyDeviceType        = "deviceType"
	KeyDeviceToken       = "deviceToken"
	KeyServerHost        = "denhubServerHost"
	KeyDebugMode         = "isDebugMode"
	KeySuppressLog       = "isSuppressLog"
	KeyReconnectDelay    = "reconnectDelayTimeMsec"
	KeyHeartbeatInterval = "heartbeatIntervalMsec"
	KeyRestartDelay      = "restartDelayTime"
	KeyCommands          = "commands"
	KeyCommandsAlias     = "cmds"
)

const (
	DefaultReconnectDelay    = 5000 * time.Millisecond
	DefaultHeartbeatInterval = 10000 * time.Millisecond
	DefaultRestartDelay      = 6000 * time.Millisecond
)

// envKeys maps configuration keys onto their environment variables.
var envKeys = map[string]string{
	KeyDeviceName:        "DEVICE_NAME",
	KeyDeviceType:        "DEVICE_TYPE",
	KeyDeviceToken:       "DEVICE_TOKEN",
	KeyServerHost:        "SERVER_HOST",
	KeyDebugMode:         "DEBUG_MODE",
	KeySuppressLog:       "SUPPRESS_LOG",
	KeyReconnectDelay:    "RECONNECT_DELAY_MSEC",
	KeyHeartbeatInterval: "HEARTBEAT_INTERVAL_MSEC",
	KeyRestartDelay:      "RESTART_DELAY_MSEC",
}

// Config is the device configuration.
type Config struct {
	DeviceName  string
	DeviceType  string
	DeviceToken string
	ServerHost  string

	DebugMode   bool
	SuppressLog bool

	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	RestartDelay      time.Duration

	Commands *protocol.CommandTable

	// Raw holds every key of the file in document order. Unknown keys are
	// carried into the manifest.
	Raw protocol.Object

	// File is the path the configuration was read from.
	File string
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		ReconnectDelay:    DefaultReconnectDelay,
		HeartbeatInterval: DefaultHeartbeatInterval,
		RestartDelay:      DefaultRestartDelay,
		Commands:          protocol.NewCommandTable(),
	}
}

// ConfigPaths returns the candidate locations of name: the directory of the
// running executable and the working directory.
func ConfigPaths(name string) []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), name))
	}
	return append(paths, filepath.Join(".", name))
}

// LoadConfig reads the configuration from path, or from the first existing
// default location when path is empty. A commands.json found next to the
// configuration, in the executable directory or in the working directory
// replaces the inline command table.
func LoadConfig(path string) (*Config, error) {
	candidates := []string{path}
	if path == "" {
		candidates = ConfigPaths(ConfigFileName)
	}

	file, data, err := readFirst(candidates)
	if err != nil {
		return nil, fmt.Errorf("could not read the configuration file (tried %s): %w", strings.Join(candidates, ", "), err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	cfg.File = file

	commandPaths := append([]string{filepath.Join(filepath.Dir(file), CommandsFileName)}, ConfigPaths(CommandsFileName)...)
	if cmdFile, cmdData, err := readFirst(commandPaths); err == nil {
		table := protocol.NewCommandTable()
		if err := json.Unmarshal(cmdData, table); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cmdFile, err)
		}
		cfg.Commands = table
	}

	return cfg, nil
}

func readFirst(paths []string) (string, []byte, error) {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", nil, os.ErrNotExist
	}
	return "", nil, errors.Join(errs...)
}

// ParseConfig decodes a JSON configuration document. Environment variables
// prefixed with DENHUB_ override the file.
func ParseConfig(data []byte) (*Config, error) {
	var raw protocol.Object
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault(KeyReconnectDelay, DefaultReconnectDelay.Milliseconds())
	v.SetDefault(KeyHeartbeatInterval, DefaultHeartbeatInterval.Milliseconds())
	v.SetDefault(KeyRestartDelay, DefaultRestartDelay.Milliseconds())
	for key, env := range envKeys {
		if err := v.BindEnv(key, EnvPrefix+"_"+env); err != nil {
			return nil, err
		}
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	cfg := NewConfig()
	cfg.Raw = raw
	cfg.DeviceName = v.GetString(KeyDeviceName)
	cfg.DeviceType = v.GetString(KeyDeviceType)
	cfg.DeviceToken = v.GetString(KeyDeviceToken)
	cfg.ServerHost = v.GetString(KeyServerHost)
	cfg.DebugMode = v.GetBool(KeyDebugMode)
	cfg.SuppressLog = v.GetBool(KeySuppressLog)
	cfg.ReconnectDelay = msec(v.GetInt64(KeyReconnectDelay), DefaultReconnectDelay)
	cfg.HeartbeatInterval = msec(v.GetInt64(KeyHeartbeatInterval), DefaultHeartbeatInterval)
	cfg.RestartDelay = msec(v.GetInt64(KeyRestartDelay), DefaultRestartDelay)

	// viper folds key case, so the command table is decoded from the raw
	// document to keep names and order intact.
	for _, key := range []string{KeyCommands, KeyCommandsAlias} {
		if rm, ok := raw.Get(key); ok {
			table := protocol.NewCommandTable()
			if err := json.Unmarshal(rm, table); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			cfg.Commands = table
			break
		}
	}

	return cfg, nil
}

func msec(n int64, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// Complete replaces non-positive durations with their defaults and a missing
// command table with an empty one.
func (c *Config) Complete() {
	c.ReconnectDelay = orDefault(c.ReconnectDelay, DefaultReconnectDelay)
	c.HeartbeatInterval = orDefault(c.HeartbeatInterval, DefaultHeartbeatInterval)
	c.RestartDelay = orDefault(c.RestartDelay, DefaultRestartDelay)
	if c.Commands == nil {
		c.Commands = protocol.NewCommandTable()
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Validate checks the required identity keys and the declared command names.
func (c *Config) Validate() error {
	var errs []error
	for _, kv := range []struct{ key, value string }{
		{KeyServerHost, c.ServerHost},
		{KeyDeviceName, c.DeviceName},
		{KeyDeviceType, c.DeviceType},
	} {
		if kv.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingConfig, kv.key))
		}
	}
	if err := c.Commands.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Map returns a deep copy of the configuration as a JSON object. Typed
// fields take precedence over the raw document.
func (c *Config) Map() map[string]any {
	out := map[string]any{}
	c.Raw.Each(func(key string, value json.RawMessage) {
		var v any
		if err := json.Unmarshal(value, &v); err == nil {
			out[key] = v
		}
	})
	delete(out, KeyCommandsAlias)

	out[KeyDeviceName] = c.DeviceName
	out[KeyDeviceType] = c.DeviceType
	out[KeyDeviceToken] = c.DeviceToken
	out[KeyServerHost] = c.ServerHost
	out[KeyDebugMode] = c.DebugMode
	out[KeySuppressLog] = c.SuppressLog
	out[KeyReconnectDelay] = c.ReconnectDelay.Milliseconds()
	out[KeyHeartbeatInterval] = c.HeartbeatInterval.Milliseconds()
	out[KeyRestartDelay] = c.RestartDelay.Milliseconds()
	out[KeyCommands] = c.Commands.Clone()
	return out
}

// Redacted returns a copy without the server address, the token and the
// path of the file holding them.
func (c *Config) Redacted() *Config {
	out := *c
	out.ServerHost = ""
	out.DeviceToken = ""
	out.File = ""
	out.Commands = c.Commands.Clone()
	out.Raw = c.Raw.Clone()
	out.Raw.Delete(KeyServerHost)
	out.Raw.Delete(KeyDeviceToken)
	return &out
}
