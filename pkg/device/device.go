// Package device implements the denhub device daemon: it keeps a channel to
// the server open, announces the device with a manifest, dispatches inbound
// commands to handlers and forwards its logs.
package device

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/device/ext/envreporter"
	"github.com/autopeer-io/denhub/pkg/device/ext/kvs"
	"github.com/autopeer-io/denhub/pkg/device/ext/tokenchanger"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
	"github.com/autopeer-io/denhub/pkg/transport"
	transportmqtt "github.com/autopeer-io/denhub/pkg/transport/mqtt"
	"github.com/autopeer-io/denhub/pkg/transport/websocket"
)

// ManifestDelay is the wait between the channel opening and the manifest
// being sent.
const ManifestDelay = 100 * time.Millisecond

// CoreExtensions returns the built-in extensions.
func CoreExtensions() []ext.Registration {
	return []ext.Registration{
		{Name: envreporter.Name, Factory: envreporter.New},
		{Name: kvs.Name, Factory: kvs.New},
		{Name: tokenchanger.Name, Factory: tokenchanger.New},
	}
}

// DefaultDialer routes ws and wss URLs to websocket and the mqtt family to
// an MQTT broker.
func DefaultDialer(logger log.Logger) *transport.Mux {
	mux := transport.NewMux()
	mux.Handle(websocket.NewDialer(), websocket.Schemes...)

	md := transportmqtt.NewDialer()
	md.Logger = logger
	mux.Handle(md, transportmqtt.Schemes...)
	return mux
}

// StartFunc is told the outcome of the first connection attempt: nil once
// the channel opened, an error if it could not be created or closed first.
type StartFunc func(err error)

// Option configures a Device.
type Option func(*Device)

// WithDialer replaces the default transport.
func WithDialer(d transport.Dialer) Option {
	return func(dev *Device) { dev.dialer = d }
}

// WithHandlers sets the factory of the device's own command handlers.
func WithHandlers(f HandlersFactory) Option {
	return func(dev *Device) { dev.handlers = f }
}

// WithModules replaces the registered command modules.
func WithModules(mods ...Module) Option {
	return func(dev *Device) { dev.modules = mods }
}

// WithExtensions replaces the core and local extension registrations.
func WithExtensions(core, local []ext.Registration) Option {
	return func(dev *Device) {
		dev.coreExts = core
		dev.localExts = local
	}
}

// WithLogOptions sets the console logger options. The level and quiet
// settings are derived from the configuration.
func WithLogOptions(opts *log.Options) Option {
	return func(dev *Device) { dev.logOpts = opts }
}

// WithObserver installs an instrumentation observer.
func WithObserver(o Observer) Option {
	return func(dev *Device) { dev.observer = o }
}

// WithStartCallback sets the callback told about the first connection.
func WithStartCallback(f StartFunc) Option {
	return func(dev *Device) { dev.onStart = f }
}

// WithRestarter replaces the process restarter.
func WithRestarter(r *Restarter) Option {
	return func(dev *Device) { dev.restarter = r }
}

// Device is a denhub device daemon.
type Device struct {
	cfg      *Config
	endpoint *Endpoint

	dialer    transport.Dialer
	handlers  HandlersFactory
	modules   []Module
	coreExts  []ext.Registration
	localExts []ext.Registration
	logOpts   *log.Options
	observer  Observer
	restarter *Restarter

	logger     log.Logger
	connLog    log.Logger
	exts       *ext.Set
	registry   *Registry
	dispatcher *Dispatcher
	state      *ConnectionStateMachine

	loop    *eventLoop
	fatal   chan error
	running atomic.Bool
	runCtx  context.Context

	// Owned by the event loop.
	gen       uint64
	channel   transport.Channel
	heartbeat chan struct{}
	reconnect *time.Timer
	onStart   StartFunc

	current  atomic.Pointer[channelRef]
	manifest atomic.Pointer[map[string]any]
}

type channelRef struct {
	ch transport.Channel
}

// New validates cfg and builds a device. Extensions and command modules are
// instantiated here.
func New(cfg *Config, opts ...Option) (*Device, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	cfg.Complete()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:      cfg,
		endpoint: endpoint,
		modules:  Modules(),
		coreExts: CoreExtensions(),
		observer: NopObserver{},
		loop:     newEventLoop(),
		fatal:    make(chan error, 1),
		runCtx:   context.Background(),
	}
	d.localExts = ext.Registered()
	for _, o := range opts {
		o(d)
	}
	if d.observer == nil {
		d.observer = NopObserver{}
	}

	d.logger = log.NewLogger(d.consoleOptions(), log.WithSink(d, zapcore.DebugLevel))
	d.connLog = d.logger.WithName("ws")

	if d.dialer == nil {
		d.dialer = DefaultDialer(d.logger.WithName("transport").Local())
	}
	if d.restarter == nil {
		d.restarter = NewRestarter(cfg.RestartDelay, d.logger.WithName("restart"))
	}

	d.state = NewConnectionStateMachine(d.observer)
	d.exts = ext.Load(d.logger.WithName("extensions"), d.hostFor, d.coreExts, d.localExts)

	d.registry, err = NewRegistry(cfg, d.handlers, d.modules, d.logger, NewHelper(d.exts))
	if err != nil {
		return nil, err
	}
	d.dispatcher = NewDispatcher(d.exts, d.registry, d.sendRaw, d.logger.WithName("dispatcher"), d.observer)

	return d, nil
}

func (d *Device) consoleOptions() *log.Options {
	o := log.NewOptions()
	if d.logOpts != nil {
		copied := *d.logOpts
		o = &copied
	}
	if d.cfg.DebugMode {
		o.Level = zapcore.DebugLevel.String()
	}
	o.Quiet = o.Quiet || d.cfg.SuppressLog
	return o
}

// Config returns the device configuration.
func (d *Device) Config() *Config { return d.cfg }

// Logger returns the device logger. Entries are forwarded to the server.
func (d *Device) Logger() log.Logger { return d.logger }

// Endpoint returns the resolved connection address.
func (d *Device) Endpoint() *Endpoint { return d.endpoint }

// Registry returns the command registry.
func (d *Device) Registry() *Registry { return d.registry }

// Extension returns a loaded extension, see Helper.Extension.
func (d *Device) Extension(name string) ext.Extension { return d.exts.Get(name) }

// State returns the connection state.
func (d *Device) State() string { return d.state.Current() }

// Connected reports whether the channel is open.
func (d *Device) Connected() bool { return d.state.Is(StateConnected) }

// Manifest returns the last manifest sent, or nil.
func (d *Device) Manifest() map[string]any {
	if m := d.manifest.Load(); m != nil {
		return *m
	}
	return nil
}

// Post runs fn on the event loop.
func (d *Device) Post(fn func()) {
	d.loop.post(fn)
}

// Send writes a command frame on the current channel.
func (d *Device) Send(cmd string, args any) error {
	data, err := protocol.Encode(cmd, args)
	if err != nil {
		return err
	}
	return d.sendRaw(data)
}

func (d *Device) sendRaw(data []byte) error {
	ref := d.current.Load()
	if ref == nil {
		return ErrNotConnected
	}
	return ref.ch.Send(data)
}

// Restart replaces the process with a fresh copy after the configured delay.
func (d *Device) Restart() error {
	return d.restarter.Restart()
}

// Exit terminates the process with status 0.
func (d *Device) Exit() {
	d.logger.Local().Info("Exiting")
	d.restarter.Exit(0)
}

// Run connects and serves until ctx is done. Outside debug mode every
// failure is recovered; in debug mode the first transport failure or task
// panic is returned.
func (d *Device) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("device is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.runCtx = ctx

	d.logger.Info("Starting denhub device",
		"deviceName", d.cfg.DeviceName,
		"deviceType", d.cfg.DeviceType,
		"server", d.endpoint.Redacted(),
		"daemon", DaemonID(),
		"extensions", len(d.exts.Keys()),
		"commandModules", d.registry.ModuleNames(),
	)
	if d.endpoint.Upgraded {
		d.connLog.Info("Upgraded the server address to the secure scheme", "server", d.endpoint.Redacted())
	}
	if d.endpoint.Insecure {
		d.connLog.Warn("Insecure scheme is not recommended; use a secure connection", "scheme", d.endpoint.URL.Scheme)
	}

	d.Post(d.connect)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case err := <-d.fatal:
			d.shutdown()
			return err
		case <-d.loop.wake:
			for {
				fn, ok := d.loop.next()
				if !ok {
					break
				}
				if err := d.runTask(fn); err != nil {
					d.shutdown()
					return err
				}
			}
		}
	}
}

// runTask runs fn and recovers a panic. Outside debug mode the panic is
// logged without forwarding and the daemon restarts.
func (d *Device) runTask(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("uncaught panic: %v\n%s", r, debug.Stack())
		if d.cfg.DebugMode {
			return
		}
		d.logger.WithName("uncaughtException").Local().Error(err, "Recovered from an uncaught panic")
		_ = d.Restart()
		err = nil
	}()
	fn()
	return nil
}

// Go runs fn in its own goroutine under the same panic policy as the event
// loop. A returned error is logged.
func (d *Device) Go(fn func() error) {
	go func() {
		if err := d.runTask(func() {
			if err := fn(); err != nil {
				d.logger.Warn("Task failed", "error", err.Error())
			}
		}); err != nil {
			d.fail(err)
		}
	}()
}

func (d *Device) fail(err error) {
	select {
	case d.fatal <- err:
	default:
	}
}

func (d *Device) shutdown() {
	d.cancelReconnect()
	d.stopHeartbeat()
	d.gen++
	d.dropChannel()
	_ = d.state.Fire(EventStop)
}

func (d *Device) hostFor(k ext.Key) ext.Host {
	return &extHost{d: d, logger: d.logger.WithName(k.Name)}
}

type extHost struct {
	d      *Device
	logger log.Logger
}

var _ ext.Host = (*extHost)(nil)

func (h *extHost) Send(cmd string, args any) error { return h.d.Send(cmd, args) }

func (h *extHost) Post(fn func()) { h.d.Post(fn) }

func (h *extHost) Restart() {
	if err := h.d.Restart(); err != nil {
		h.logger.Local().Debug("Restart not scheduled", "error", err.Error())
	}
}

func (h *extHost) ConfigFile() string { return h.d.cfg.File }

func (h *extHost) Logger() log.Logger { return h.logger }
