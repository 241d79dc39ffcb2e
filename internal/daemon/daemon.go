package daemon

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/denhub/internal/daemon/server/http"
	"github.com/autopeer-io/denhub/internal/daemon/watch"
	"github.com/autopeer-io/denhub/internal/pkg/metrics"
	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/log"
)

// Server defines the common interface for everything the daemon runs next
// to the device.
type Server interface {
	Start(ctx context.Context) error
}

// ServerFunc adapts a function to Server.
type ServerFunc func(ctx context.Context) error

func (f ServerFunc) Start(ctx context.Context) error { return f(ctx) }

// Daemon runs a device with its status server and configuration watcher.
type Daemon struct {
	device  *device.Device
	servers []Server
}

// NewDaemon builds the device and the servers enabled in the config.
func (c *Config) NewDaemon(opts ...device.Option) (*Daemon, error) {
	devOpts := []device.Option{
		device.WithObserver(metrics.Observer{}),
		device.WithLogOptions(c.LogOptions),
	}
	if c.Dialer != nil {
		devOpts = append(devOpts, device.WithDialer(c.Dialer))
	}
	if c.Handlers != nil {
		devOpts = append(devOpts, device.WithHandlers(c.Handlers))
	}

	dev, err := device.New(c.Device, append(devOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	d := &Daemon{device: dev}
	d.servers = append(d.servers, ServerFunc(dev.Run))

	if c.HttpOptions.Enabled() {
		d.servers = append(d.servers, http.NewServer(c.HttpOptions, dev, metrics.Registry))
	}

	if c.WatchConfig {
		if c.Device.File == "" {
			return nil, errors.New("--watch-config needs a configuration file")
		}
		logger := dev.Logger().WithName("watch")
		d.servers = append(d.servers, watch.NewWatcher(c.Device, func(_, _ *device.Config) {
			restart(dev, logger)
		}, logger))
	}

	return d, nil
}

// Device returns the managed device.
func (d *Daemon) Device() *device.Device {
	return d.device
}

// Run launches the device and the servers and waits until one of them
// fails or ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range d.servers {
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(d.servers))
	return g.Wait()
}

func restart(dev *device.Device, logger log.Logger) {
	if err := dev.Restart(); err != nil && !errors.Is(err, device.ErrRestartPending) {
		logger.Error(err, "Failed to schedule restart")
	}
}
