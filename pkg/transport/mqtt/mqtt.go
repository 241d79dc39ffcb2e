// Package mqtt implements transport.Channel over an MQTT v5 broker. Each
// device subscribes to its downlink topic and publishes to its uplink topic
// below the namespace given by the URL path. Presence is kept retained on the
// status topic: online once subscribed, offline on close or, through the
// will message, when the broker loses the device.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/mqtt"
	"github.com/autopeer-io/denhub/pkg/mqtt/topic"
	"github.com/autopeer-io/denhub/pkg/transport"
)

// Schemes handled by this package.
var Schemes = []string{"mqtt", "mqtts", "tcp", "ssl"}

// Retained presence payloads of the status topic.
var (
	PresenceOnline  = []byte(`{"online":true}`)
	PresenceOffline = []byte(`{"online":false}`)
)

var brokerSchemes = map[string]string{
	"mqtt":  "tcp",
	"tcp":   "tcp",
	"mqtts": "ssl",
	"ssl":   "ssl",
}

// Dialer opens MQTT channels.
type Dialer struct {
	KeepAlive          time.Duration
	ConnectTimeout     time.Duration
	SessionExpiry      uint32
	CleanStart         bool
	InsecureSkipVerify bool

	// QoS used for both directions. Default is 1.
	QoS byte

	// PublishTimeout bounds a single Send. Default is 5s.
	PublishTimeout time.Duration

	Logger log.Logger

	// newClient is replaced in tests.
	newClient func(cfg *mqtt.ClientConfig) (mqtt.Client, error)
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer with defaults.
func NewDialer() *Dialer {
	return &Dialer{
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		QoS:            1,
		PublishTimeout: 5 * time.Second,
	}
}

// Endpoint is the broker and topic layout derived from a device URL.
type Endpoint struct {
	BrokerURL  string
	ClientID   string
	Username   string
	Password   string
	DeviceName string
	Topics     *topic.Builder
}

// ParseEndpoint maps a device URL such as
// mqtt://broker:1883/denhub/v1?deviceName=cam1&deviceType=camera&deviceToken=s3cr3t
// onto broker settings. The URL path is the topic namespace.
func ParseEndpoint(rawURL string) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("mqtt: invalid url: %w", err)
	}
	scheme, ok := brokerSchemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("mqtt: missing host in %q", u.Redacted())
	}

	q := u.Query()
	name := q.Get("deviceName")
	if name == "" {
		return nil, fmt.Errorf("mqtt: deviceName query parameter is required")
	}
	if strings.ContainsAny(name, "+#/") {
		return nil, fmt.Errorf("mqtt: deviceName %q is not a valid topic level", name)
	}

	clientID := "denhub-" + name
	if t := q.Get("deviceType"); t != "" {
		clientID = fmt.Sprintf("denhub-%s-%s", t, name)
	}

	return &Endpoint{
		BrokerURL:  (&url.URL{Scheme: scheme, Host: u.Host}).String(),
		ClientID:   clientID,
		Username:   name,
		Password:   q.Get("deviceToken"),
		DeviceName: name,
		Topics:     topic.NewBuilder(u.Path),
	}, nil
}

// Dial validates rawURL and starts connecting in the background.
func (d *Dialer) Dial(ctx context.Context, rawURL string, l transport.Listener) (transport.Channel, error) {
	ep, err := ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = log.Std()
	}
	logger = logger.Local()

	ctx, cancel := context.WithCancel(ctx)
	c := &channel{
		listener:       l,
		cancel:         cancel,
		qos:            d.QoS,
		publishTimeout: d.PublishTimeout,
		uplink:         ep.Topics.Uplink(ep.DeviceName),
		status:         ep.Topics.Status(ep.DeviceName),
		logger:         logger,
	}

	cfg := &mqtt.ClientConfig{
		BrokerURL:          ep.BrokerURL,
		ClientID:           ep.ClientID,
		Username:           ep.Username,
		Password:           ep.Password,
		KeepAlive:          uint16(d.KeepAlive.Seconds()),
		ConnectTimeout:     d.ConnectTimeout,
		SessionExpiry:      d.SessionExpiry,
		CleanStart:         d.CleanStart,
		InsecureSkipVerify: d.InsecureSkipVerify,
		WillTopic:          c.status,
		WillPayload:        PresenceOffline,
		WillQoS:            d.QoS,
		WillRetain:         true,
		OnConnectionDown:   c.finish,
		Logger:             logger,
	}

	newClient := d.newClient
	if newClient == nil {
		newClient = mqtt.NewClient
	}
	client, err := newClient(cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	c.client = client

	go c.run(ctx, ep.Topics.Downlink(ep.DeviceName))
	return c, nil
}

type channel struct {
	listener       transport.Listener
	client         mqtt.Client
	cancel         context.CancelFunc
	qos            byte
	publishTimeout time.Duration
	uplink         string
	status         string
	logger         log.Logger

	// emitMu serializes listener callbacks.
	emitMu sync.Mutex

	mu     sync.Mutex
	opened bool
	closed bool
}

var _ transport.Channel = (*channel)(nil)

func (c *channel) run(ctx context.Context, downlink string) {
	if err := c.client.Start(ctx); err != nil {
		c.finish(err)
		return
	}

	// Subscribe waits for the first connection before sending SUBSCRIBE.
	if err := c.client.Subscribe(ctx, downlink, int(c.qos), c.onMessage); err != nil {
		c.finish(err)
		return
	}
	if err := c.publish(ctx, c.status, true, PresenceOnline); err != nil {
		c.logger.Warn("Failed to publish presence", "topic", c.status, "error", err)
	}
	c.open()
}

func (c *channel) open() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.opened || c.closed {
		c.mu.Unlock()
		return
	}
	c.opened = true
	c.mu.Unlock()

	c.listener.OnOpen()
}

func (c *channel) onMessage(_ context.Context, _ string, payload []byte) {
	// A frame may race ahead of the SUBACK handling in run.
	c.open()

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.listener.OnMessage(payload)
}

// finish ends the channel once. Connection loss is final: the device decides
// when to dial again. OnClose is delivered asynchronously so that it may be
// triggered from inside a listener callback.
func (c *channel) finish(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	opened := c.opened
	c.mu.Unlock()

	c.cancel()

	// A clean disconnect suppresses the will, so an orderly close announces
	// the offline presence itself.
	announce := opened && errors.Is(err, transport.ErrClosed)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if announce {
			if err := c.client.Publish(ctx, c.status, int(c.qos), true, PresenceOffline); err != nil {
				c.logger.Debug("Failed to publish presence", "topic", c.status, "error", err)
			}
		}
		c.client.Disconnect(ctx)
	}()

	go func() {
		c.emitMu.Lock()
		defer c.emitMu.Unlock()
		c.listener.OnClose(err)
	}()
}

func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	opened, closed := c.opened, c.closed
	c.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if !opened {
		return transport.ErrNotOpen
	}

	return c.publish(context.Background(), c.uplink, false, data)
}

func (c *channel) publish(ctx context.Context, to string, retain bool, data []byte) error {
	if c.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.publishTimeout)
		defer cancel()
	}
	return c.client.Publish(ctx, to, int(c.qos), retain, data)
}

func (c *channel) Close() error {
	c.finish(transport.ErrClosed)
	return nil
}
