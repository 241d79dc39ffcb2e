package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/denhub/cmd/denhub-device/app/options"
	"github.com/autopeer-io/denhub/pkg/app"
	"github.com/autopeer-io/denhub/pkg/device"

	// Command modules.
	_ "github.com/autopeer-io/denhub/pkg/modules/sysinfo"
)

const (
	commandName = device.DaemonName
	commandDesc = `The denhub device daemon keeps a connection to a denhub server open,
executes the commands the server sends, and forwards its logs to the server.

The device is described by config.json: its name, type and token, the server
URL and the commands it accepts.`
)

func NewApp() *app.App {
	return NewAppWithHandlers(NewHandlers)
}

// NewAppWithHandlers returns the daemon command serving the device's own
// commands with handlers.
func NewAppWithHandlers(handlers device.HandlersFactory) *app.App {
	opts := options.NewDeviceOptions()
	application := app.NewApp(
		commandName,
		"Launch a denhub device",
		app.WithDescription(commandDesc),
		app.WithVersion(device.Version),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts, handlers)),
	)
	return application
}

func run(opts *options.DeviceOptions, handlers device.HandlersFactory) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Handlers = handlers

		d, err := cfg.NewDaemon()
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		return d.Run(ctx)
	}
}
