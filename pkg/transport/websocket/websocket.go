// Package websocket implements transport.Channel over gorilla/websocket.
package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autopeer-io/denhub/pkg/transport"
)

// Schemes handled by this package.
var Schemes = []string{"ws", "wss"}

// Dialer opens websocket channels.
type Dialer struct {
	// HandshakeTimeout bounds the opening handshake. Default is 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write. Default is 10s.
	WriteTimeout time.Duration

	// ReadLimit is the maximum size of an inbound frame. Zero means no limit.
	ReadLimit int64

	TLSConfig *tls.Config
	Header    http.Header
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer with default timeouts.
func NewDialer() *Dialer {
	return &Dialer{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Dial validates rawURL and starts connecting in the background.
func (d *Dialer) Dial(ctx context.Context, rawURL string, l transport.Listener) (transport.Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("websocket: invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("websocket: missing host in %q", rawURL)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &channel{
		listener:     l,
		cancel:       cancel,
		writeTimeout: d.WriteTimeout,
	}

	wsd := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}

	go c.run(ctx, wsd, u.String(), d.Header, d.ReadLimit)
	return c, nil
}

type channel struct {
	listener     transport.Listener
	cancel       context.CancelFunc
	writeTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ transport.Channel = (*channel)(nil)

// run owns every listener callback so that events are delivered in order.
func (c *channel) run(ctx context.Context, wsd *websocket.Dialer, rawURL string, header http.Header, readLimit int64) {
	conn, resp, err := wsd.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.finish(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(transport.ErrClosed)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}

	c.listener.OnOpen()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		c.listener.OnMessage(data)
	}
}

func (c *channel) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		closed := c.closed
		c.closed = true
		conn := c.conn
		c.mu.Unlock()

		c.cancel()
		if conn != nil {
			_ = conn.Close()
		}
		if closed {
			err = transport.ErrClosed
		}
		c.listener.OnClose(err)
	})
}

func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if conn == nil {
		return transport.ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		// The dial goroutine observes the cancellation and reports OnClose.
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}
