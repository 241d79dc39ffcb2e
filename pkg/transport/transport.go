// Package transport defines the duplex, message framed channel a device
// keeps open to its server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned when sending on a closed channel.
	ErrClosed = errors.New("transport: channel closed")

	// ErrNotOpen is returned when sending before the channel opened.
	ErrNotOpen = errors.New("transport: channel not open")

	// ErrUnsupportedScheme is returned by Mux for URLs no dialer handles.
	ErrUnsupportedScheme = errors.New("transport: unsupported scheme")
)

// Channel is one connection to the server.
type Channel interface {
	// Send writes one text frame.
	Send(data []byte) error

	// Close tears the connection down. OnClose is still delivered once.
	Close() error
}

// Listener receives the events of a Channel. OnOpen is delivered at most
// once, OnClose exactly once, and OnMessage only between the two.
type Listener interface {
	OnOpen()
	OnClose(err error)
	OnMessage(data []byte)
}

// Dialer creates channels. Dial returns immediately: an error is returned
// only when the channel cannot even be constructed (for example a malformed
// URL), connection failures are reported through Listener.OnClose.
type Dialer interface {
	Dial(ctx context.Context, rawURL string, l Listener) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, rawURL string, l Listener) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context, rawURL string, l Listener) (Channel, error) {
	return f(ctx, rawURL, l)
}

// ListenerFuncs adapts plain functions to the Listener interface. Nil
// functions are ignored.
type ListenerFuncs struct {
	Open    func()
	Closed  func(err error)
	Message func(data []byte)
}

func (l ListenerFuncs) OnOpen() {
	if l.Open != nil {
		l.Open()
	}
}

func (l ListenerFuncs) OnClose(err error) {
	if l.Closed != nil {
		l.Closed(err)
	}
}

func (l ListenerFuncs) OnMessage(data []byte) {
	if l.Message != nil {
		l.Message(data)
	}
}

// Mux routes Dial calls to a registered Dialer by URL scheme.
type Mux struct {
	mu      sync.RWMutex
	dialers map[string]Dialer
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{dialers: map[string]Dialer{}}
}

// Handle registers d for each scheme.
func (m *Mux) Handle(d Dialer, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range schemes {
		m.dialers[strings.ToLower(s)] = d
	}
}

// Schemes returns the registered schemes.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.dialers))
	for s := range m.dialers {
		out = append(out, s)
	}
	return out
}

func (m *Mux) Dial(ctx context.Context, rawURL string, l Listener) (Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid url: %w", err)
	}

	m.mu.RLock()
	d, ok := m.dialers[strings.ToLower(u.Scheme)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return d.Dial(ctx, rawURL, l)
}
