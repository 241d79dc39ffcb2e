// Package exttest provides an in-memory ext.Host for extension tests.
package exttest

import (
	"sync"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/log"
)

// Frame is a recorded Send call.
type Frame struct {
	Cmd  string
	Args any
}

// Host records what extensions do with it. Post runs the function inline.
type Host struct {
	File    string
	SendErr error

	mu       sync.Mutex
	frames   []Frame
	restarts int
}

var _ ext.Host = (*Host)(nil)

// NewHost returns a Host whose configuration lives at file.
func NewHost(file string) *Host {
	return &Host{File: file}
}

func (h *Host) Send(cmd string, args any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SendErr != nil {
		return h.SendErr
	}
	h.frames = append(h.frames, Frame{Cmd: cmd, Args: args})
	return nil
}

func (h *Host) Post(fn func()) { fn() }

func (h *Host) Restart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarts++
}

func (h *Host) ConfigFile() string { return h.File }

func (h *Host) Logger() log.Logger { return log.NewNopLogger() }

// Frames returns the recorded frames.
func (h *Host) Frames() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frame(nil), h.frames...)
}

// Restarts returns how often Restart was called.
func (h *Host) Restarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts
}
