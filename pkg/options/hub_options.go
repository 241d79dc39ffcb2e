package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/denhub/pkg/device"
)

var _ IOptions = (*HubOptions)(nil)

// HubOptions overrides values of the device configuration file. Empty and
// zero values leave the file untouched.
type HubOptions struct {
	ServerHost        string        `json:"server-host" mapstructure:"server-host"`
	DeviceName        string        `json:"device-name" mapstructure:"device-name"`
	DeviceType        string        `json:"device-type" mapstructure:"device-type"`
	DeviceToken       string        `json:"device-token" mapstructure:"device-token"`
	ReconnectDelay    time.Duration `json:"reconnect-delay" mapstructure:"reconnect-delay"`
	HeartbeatInterval time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
	RestartDelay      time.Duration `json:"restart-delay" mapstructure:"restart-delay"`
	SuppressLog       bool          `json:"suppress-log" mapstructure:"suppress-log"`
}

// NewHubOptions creates a HubOptions object that overrides nothing.
func NewHubOptions() *HubOptions {
	return &HubOptions{}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HubOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.ServerHost != "" {
		if u, err := url.Parse(o.ServerHost); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Errorf("--hub.server-host %q is not an absolute URL", o.ServerHost))
		}
	}
	for name, d := range map[string]time.Duration{
		"--hub.reconnect-delay":    o.ReconnectDelay,
		"--hub.heartbeat-interval": o.HeartbeatInterval,
		"--hub.restart-delay":      o.RestartDelay,
	} {
		if d < 0 {
			errors = append(errors, fmt.Errorf("%s must not be negative", name))
		}
	}

	return errors
}

// AddFlags adds flags for HubOptions to the specified FlagSet.
func (o *HubOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ServerHost, join(prefixes, "hub.server-host"), o.ServerHost, "Override denhubServerHost, the URL of the denhub server.")
	fs.StringVar(&o.DeviceName, join(prefixes, "hub.device-name"), o.DeviceName, "Override deviceName.")
	fs.StringVar(&o.DeviceType, join(prefixes, "hub.device-type"), o.DeviceType, "Override deviceType.")
	fs.StringVar(&o.DeviceToken, join(prefixes, "hub.device-token"), o.DeviceToken, "Override deviceToken.")
	fs.DurationVar(&o.ReconnectDelay, join(prefixes, "hub.reconnect-delay"), o.ReconnectDelay, "Override the wait before reconnecting.")
	fs.DurationVar(&o.HeartbeatInterval, join(prefixes, "hub.heartbeat-interval"), o.HeartbeatInterval, "Override the heartbeat interval.")
	fs.DurationVar(&o.RestartDelay, join(prefixes, "hub.restart-delay"), o.RestartDelay, "Override the wait before a restart.")
	fs.BoolVar(&o.SuppressLog, join(prefixes, "hub.suppress-log"), o.SuppressLog, "Suppress debug and info lines on the console.")
}

// ApplyTo writes the overrides into cfg.
func (o *HubOptions) ApplyTo(cfg *device.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ServerHost, o.ServerHost)
	set(&cfg.DeviceName, o.DeviceName)
	set(&cfg.DeviceType, o.DeviceType)
	set(&cfg.DeviceToken, o.DeviceToken)

	if o.ReconnectDelay > 0 {
		cfg.ReconnectDelay = o.ReconnectDelay
	}
	if o.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = o.HeartbeatInterval
	}
	if o.RestartDelay > 0 {
		cfg.RestartDelay = o.RestartDelay
	}
	if o.SuppressLog {
		cfg.SuppressLog = true
	}
}
