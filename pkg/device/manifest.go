package device

import (
	"maps"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/log"
)

// Manifest keys added on top of the configuration.
const (
	KeyCommandModuleNames = "commandModuleNames"
	KeyDeviceDaemon       = "deviceDaemon"
)

// BuildManifest assembles the manifest from a fresh copy of the
// configuration, the items contributed by every extension, the command
// table including module commands under their qualified names, and the
// daemon identifier.
func BuildManifest(cfg *Config, registry *Registry, exts *ext.Set, logger log.Logger) map[string]any {
	manifest := cfg.Map()

	exts.Each(func(k ext.Key, e ext.Extension) {
		var items map[string]any
		err := callHook(func() error {
			var err error
			items, err = e.OnSendManifest(maps.Clone(manifest))
			return err
		})
		if err != nil {
			logger.Debug("Could not call onSendManifest hook of the extension", "extension", k.String(), "error", err)
			return
		}
		maps.Copy(manifest, items)
	})

	manifest[KeyCommands] = registry.Commands()
	manifest[KeyCommandModuleNames] = registry.ModuleNames()
	manifest[KeyDeviceDaemon] = DaemonID()
	return manifest
}

// RedactManifest returns a shallow copy of m without the server address and
// the device token.
func RedactManifest(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for _, key := range []string{KeyDeviceToken, KeyServerHost} {
		if _, ok := out[key]; ok {
			out[key] = "xxxxx"
		}
	}
	return out
}
