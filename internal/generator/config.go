package generator

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/google/renameio/v2/maybe"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// Answers are the values asked by the configuration wizard.
type Answers struct {
	DeviceName  string
	DeviceType  string
	DeviceToken string
	ServerHost  string
}

// Validate checks every answer.
func (a Answers) Validate() error {
	return errors.Join(
		ValidateDeviceName(a.DeviceName),
		ValidateDeviceType(a.DeviceType),
		ValidateDeviceToken(a.DeviceToken),
		ValidateServerHost(a.ServerHost),
	)
}

// LoadExisting reads the configuration at path without validating it. A
// missing file yields an empty configuration.
func LoadExisting(path string) (*device.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := device.NewConfig()
		cfg.File = path
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg, err := device.ParseConfig(data)
	if err != nil {
		return nil, err
	}
	cfg.File = path
	return cfg, nil
}

// AnswersFrom returns the answers stored in cfg, used as wizard defaults.
func AnswersFrom(cfg *device.Config) Answers {
	return Answers{
		DeviceName:  cfg.DeviceName,
		DeviceType:  cfg.DeviceType,
		DeviceToken: cfg.DeviceToken,
		ServerHost:  cfg.ServerHost,
	}
}

// RenderConfig builds the new config.json: the answers first, then the
// commands of old, then the other keys of old in their original order. A
// blank token is written as null.
func RenderConfig(old *device.Config, a Answers) ([]byte, error) {
	obj := protocol.Object{}

	var token any
	if strings.TrimSpace(a.DeviceToken) != "" {
		token = a.DeviceToken
	}

	for _, kv := range []struct {
		key   string
		value any
	}{
		{device.KeyDeviceName, a.DeviceName},
		{device.KeyDeviceType, a.DeviceType},
		{device.KeyDeviceToken, token},
		{device.KeyServerHost, a.ServerHost},
	} {
		if err := obj.Set(kv.key, kv.value); err != nil {
			return nil, err
		}
	}

	commands := protocol.NewCommandTable()
	if old != nil && old.Commands != nil {
		commands = old.Commands
	}
	if err := obj.Set(device.KeyCommands, commands); err != nil {
		return nil, err
	}

	if old != nil {
		old.Raw.Each(func(key string, value json.RawMessage) {
			if _, ok := obj.Get(key); ok || key == device.KeyCommandsAlias {
				return
			}
			obj.SetRaw(key, value)
		})
	}

	return obj.Indent("    ")
}

// WriteConfig replaces the file at path with data. The file holds the device
// token, so it is created readable by the owner only.
func WriteConfig(path string, data []byte) error {
	return maybe.WriteFile(path, data, 0o600)
}
