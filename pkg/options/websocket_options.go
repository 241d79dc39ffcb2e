package options

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/denhub/pkg/transport/websocket"
)

var _ IOptions = (*WebSocketOptions)(nil)

// WebSocketOptions tunes the websocket transport.
type WebSocketOptions struct {
	HandshakeTimeout time.Duration `json:"handshake-timeout" mapstructure:"handshake-timeout"`
	WriteTimeout     time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// ReadLimit is the maximum size in bytes of an inbound frame. Zero means no limit.
	ReadLimit int64 `json:"read-limit" mapstructure:"read-limit"`

	// InsecureSkipVerify disables verification of the server certificate.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewWebSocketOptions creates a WebSocketOptions object with default parameters.
func NewWebSocketOptions() *WebSocketOptions {
	d := websocket.NewDialer()
	return &WebSocketOptions{
		HandshakeTimeout: d.HandshakeTimeout,
		WriteTimeout:     d.WriteTimeout,
		ReadLimit:        1 << 20,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *WebSocketOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.HandshakeTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--websocket.handshake-timeout must be positive"))
	}
	if o.WriteTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--websocket.write-timeout must be positive"))
	}
	if o.ReadLimit < 0 {
		errors = append(errors, fmt.Errorf("--websocket.read-limit must not be negative"))
	}

	return errors
}

// AddFlags adds flags for WebSocketOptions to the specified FlagSet.
func (o *WebSocketOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.HandshakeTimeout, join(prefixes, "websocket.handshake-timeout"), o.HandshakeTimeout, "Timeout for the websocket opening handshake.")
	fs.DurationVar(&o.WriteTimeout, join(prefixes, "websocket.write-timeout"), o.WriteTimeout, "Timeout for writing a single websocket frame.")
	fs.Int64Var(&o.ReadLimit, join(prefixes, "websocket.read-limit"), o.ReadLimit, "Maximum size in bytes of an inbound frame, 0 for no limit.")
	fs.BoolVar(&o.InsecureSkipVerify, join(prefixes, "websocket.insecure-skip-verify"), o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
}

// ApplyTo copies the options onto a websocket dialer.
func (o *WebSocketOptions) ApplyTo(d *websocket.Dialer) {
	d.HandshakeTimeout = o.HandshakeTimeout
	d.WriteTimeout = o.WriteTimeout
	d.ReadLimit = o.ReadLimit
	if o.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
}
