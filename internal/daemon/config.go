package daemon

import (
	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/options"
	"github.com/autopeer-io/denhub/pkg/transport"
)

// Config is everything the daemon needs to run a device.
type Config struct {
	Device      *device.Config
	HttpOptions *options.HttpOptions
	LogOptions  *log.Options
	Dialer      transport.Dialer
	WatchConfig bool

	// Handlers serves the device's own commands.
	Handlers device.HandlersFactory
}
