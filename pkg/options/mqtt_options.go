package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	transportmqtt "github.com/autopeer-io/denhub/pkg/transport/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions tunes the MQTT transport. The broker, credentials and topic
// root come from the device server URL.
type MqttOptions struct {
	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// If true, TLS accepts any certificate presented by the server and any host name in that certificate.
	// In this mode, TLS is susceptible to man-in-the-middle attacks. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	QoS            uint8         `json:"qos" mapstructure:"qos"`
	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	d := transportmqtt.NewDialer()
	return &MqttOptions{
		KeepAlive:      d.KeepAlive,
		ConnectTimeout: d.ConnectTimeout,
		SessionExpiry:  d.SessionExpiry,
		CleanStart:     d.CleanStart,
		QoS:            d.QoS,
		PublishTimeout: d.PublishTimeout,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.QoS > 2 {
		errors = append(errors, fmt.Errorf("--mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}
	if o.KeepAlive < time.Second {
		errors = append(errors, fmt.Errorf("--mqtt.keep-alive must be at least 1s"))
	}
	if o.ConnectTimeout <= 0 || o.PublishTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--mqtt.connect-timeout and --mqtt.publish-timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.KeepAlive, join(prefixes, "mqtt.keep-alive"), o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, join(prefixes, "mqtt.connect-timeout"), o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, join(prefixes, "mqtt.session-expiry"), o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, join(prefixes, "mqtt.clean-start"), o.CleanStart, "Start a clean MQTT session on every connect.")
	fs.BoolVar(&o.InsecureSkipVerify, join(prefixes, "mqtt.insecure-skip-verify"), o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
	fs.Uint8Var(&o.QoS, join(prefixes, "mqtt.qos"), o.QoS, "QoS used for subscriptions and publishes.")
	fs.DurationVar(&o.PublishTimeout, join(prefixes, "mqtt.publish-timeout"), o.PublishTimeout, "Timeout for a single publish.")
}

// ApplyTo copies the options onto an MQTT dialer.
func (o *MqttOptions) ApplyTo(d *transportmqtt.Dialer) {
	d.KeepAlive = o.KeepAlive
	d.ConnectTimeout = o.ConnectTimeout
	d.SessionExpiry = o.SessionExpiry
	d.CleanStart = o.CleanStart
	d.InsecureSkipVerify = o.InsecureSkipVerify
	d.QoS = o.QoS
	d.PublishTimeout = o.PublishTimeout
}
