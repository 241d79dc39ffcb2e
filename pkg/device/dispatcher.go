package device

import (
	"fmt"
	"runtime/debug"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// Dispatcher routes inbound frames to the extensions and the matching
// command handler. Dispatch is not safe for concurrent use; the device calls
// it from its event loop only.
type Dispatcher struct {
	exts     *ext.Set
	registry *Registry
	send     SendFunc
	logger   log.Logger
	observer Observer
}

// NewDispatcher returns a dispatcher answering through send.
func NewDispatcher(exts *ext.Set, registry *Registry, send SendFunc, logger log.Logger, observer Observer) *Dispatcher {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Dispatcher{exts: exts, registry: registry, send: send, logger: logger, observer: observer}
}

// Dispatch handles one raw frame. Frames that are not JSON or carry no cmd
// are dropped silently.
func (d *Dispatcher) Dispatch(data []byte) {
	c, err := protocol.Decode(data)
	if err != nil {
		d.observer.MessageDropped()
		return
	}
	d.Handle(c)
}

// Handle notifies every extension of c, then runs its handler. It returns
// the dispatch outcome.
func (d *Dispatcher) Handle(c *protocol.Command) string {
	d.notify(c)

	outcome := d.run(c)
	d.observer.CommandDispatched(outcome)
	return outcome
}

func (d *Dispatcher) notify(c *protocol.Command) {
	d.exts.Each(func(k ext.Key, e ext.Extension) {
		if err := callHook(func() error { return e.OnCmdReceive(c.Name, c.Args, c.ExecID) }); err != nil {
			d.logger.Debug("Could not call onCmdReceive hook of the extension", "extension", k.String(), "error", err)
		}
	})
}

func (d *Dispatcher) run(c *protocol.Command) string {
	if protocol.IsReserved(c.Name) {
		return OutcomeReserved
	}

	m, ok := d.registry.Resolve(c.Name)
	if !ok {
		d.logger.Debug("Not found the matched command handler", "command", c.Name)
		return OutcomeUnmatched
	}

	resp := NewResponder(c.Name, c.ExecID, d.send, d.logger, d.observer)

	ack, err := invoke(m.Handler, c.Args, resp)
	if err != nil {
		d.logger.Warn("Error occurred in the command handler", "command", c.Name, "error", err.Error())
		return OutcomeFailed
	}

	if ack && !resp.Sent() {
		resp.Send(nil, DefaultAck)
		return OutcomeAcked
	}
	return OutcomeExecuted
}

func invoke(h HandlerFunc, args protocol.Args, resp *Responder) (ack bool, err error) {
	if h == nil {
		return false, fmt.Errorf("no handler implemented for %s", resp.Command())
	}
	defer func() {
		if r := recover(); r != nil {
			ack, err = false, fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(args, resp), nil
}

func callHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
