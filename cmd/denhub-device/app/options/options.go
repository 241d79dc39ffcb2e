package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/denhub/internal/daemon"
	"github.com/autopeer-io/denhub/pkg/app"
	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/log"
	genericoptions "github.com/autopeer-io/denhub/pkg/options"
	"github.com/autopeer-io/denhub/pkg/transport"
	transportmqtt "github.com/autopeer-io/denhub/pkg/transport/mqtt"
	"github.com/autopeer-io/denhub/pkg/transport/websocket"
)

type DeviceOptions struct {
	ConfigFile  string `json:"config" mapstructure:"config"`
	Development bool   `json:"dev" mapstructure:"dev"`
	WatchConfig bool   `json:"watch-config" mapstructure:"watch-config"`

	Hub       *genericoptions.HubOptions       `json:"hub" mapstructure:"hub"`
	Http      *genericoptions.HttpOptions      `json:"http" mapstructure:"http"`
	Mqtt      *genericoptions.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	WebSocket *genericoptions.WebSocketOptions `json:"websocket" mapstructure:"websocket"`
	Log       *log.Options                     `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*DeviceOptions)(nil)
	_ app.LogOptions          = (*DeviceOptions)(nil)
)

func NewDeviceOptions() *DeviceOptions {
	o := &DeviceOptions{
		Hub:       genericoptions.NewHubOptions(),
		Http:      genericoptions.NewHttpOptions(),
		Mqtt:      genericoptions.NewMqttOptions(),
		WebSocket: genericoptions.NewWebSocketOptions(),
		Log:       log.NewOptions(),
	}

	return o
}

func (o *DeviceOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	fs := fss.FlagSet("Device")
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile,
		"Path to config.json. Defaults to the executable directory, then the working directory.")
	fs.BoolVar(&o.Development, "dev", o.Development, "Run in debug mode: verbose logging, and transport failures stop the daemon.")
	fs.BoolVar(&o.Development, "development", o.Development, "Alias of --dev.")
	fs.BoolVar(&o.WatchConfig, "watch-config", o.WatchConfig,
		"Restart when deviceToken or denhubServerHost change in the configuration file.")

	o.Hub.AddFlags(fss.FlagSet("Hub"))
	o.Http.AddFlags(fss.FlagSet("Status server"))
	o.Mqtt.AddFlags(fss.FlagSet("MQTT"))
	o.WebSocket.AddFlags(fss.FlagSet("WebSocket"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *DeviceOptions) Complete() error {
	if o.Development {
		o.Log.Level = "debug"
	}
	return nil
}

func (o *DeviceOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.Hub.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.WebSocket.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	return utilerrors.NewAggregate(errs)
}

func (o *DeviceOptions) LoggerOptions() *log.Options {
	return o.Log
}

// Dialer builds the transport for ws, wss and the mqtt family of URLs.
func (o *DeviceOptions) Dialer() transport.Dialer {
	mux := transport.NewMux()

	wsd := websocket.NewDialer()
	o.WebSocket.ApplyTo(wsd)
	mux.Handle(wsd, websocket.Schemes...)

	md := transportmqtt.NewDialer()
	o.Mqtt.ApplyTo(md)
	md.Logger = log.WithName("mqtt")
	mux.Handle(md, transportmqtt.Schemes...)

	return mux
}

func (o *DeviceOptions) Config() (*daemon.Config, error) {
	cfg, err := device.LoadConfig(o.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load device configuration: %w", err)
	}

	o.Hub.ApplyTo(cfg)
	if o.Development {
		cfg.DebugMode = true
	}

	return &daemon.Config{
		Device:      cfg,
		HttpOptions: o.Http,
		LogOptions:  o.Log,
		Dialer:      o.Dialer(),
		WatchConfig: o.WatchConfig,
	}, nil
}
