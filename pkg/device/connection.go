package device

import (
	"fmt"
	"time"

	"github.com/autopeer-io/denhub/pkg/protocol"
)

// channelListener forwards the events of one channel to the event loop.
// Events of a channel that is no longer current are ignored there.
type channelListener struct {
	d   *Device
	gen uint64
}

func (l *channelListener) OnOpen() {
	l.d.Post(func() { l.d.handleOpen(l.gen) })
}

func (l *channelListener) OnClose(err error) {
	l.d.Post(func() { l.d.handleClose(l.gen, err) })
}

func (l *channelListener) OnMessage(data []byte) {
	l.d.Post(func() {
		if l.gen == l.d.gen {
			l.d.dispatcher.Dispatch(data)
		}
	})
}

// connect replaces the current channel with a new one.
func (d *Device) connect() {
	d.cancelReconnect()
	d.stopHeartbeat()
	d.dropChannel()

	d.gen++
	gen := d.gen
	d.fireState(EventDial)

	ch, err := d.dialer.Dial(d.runCtx, d.endpoint.String(), &channelListener{d: d, gen: gen})
	if err != nil {
		d.consumeStart(err)
		if d.cfg.DebugMode {
			d.fail(fmt.Errorf("connect: %w", err))
			return
		}
		d.connLog.Warn("Could not connect to server; Reconnecting...", "error", err.Error())
		d.fireState(EventLose)
		d.scheduleReconnect()
		return
	}

	d.channel = ch
	d.current.Store(&channelRef{ch: ch})
}

func (d *Device) handleOpen(gen uint64) {
	if gen != d.gen {
		return
	}
	d.fireState(EventOpen)
	d.connLog.Info("Connected to " + d.endpoint.URL.Host)
	d.consumeStart(nil)
	d.startHeartbeat(gen)

	time.AfterFunc(ManifestDelay, func() {
		d.Post(func() {
			if gen == d.gen && d.state.Is(StateConnected) {
				d.sendManifest()
			}
		})
	})
}

func (d *Device) handleClose(gen uint64, cause error) {
	if gen != d.gen {
		return
	}
	d.stopHeartbeat()
	d.channel = nil
	d.current.Store(nil)

	err := ErrConnectionClosed
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
	}
	d.consumeStart(err)

	if d.cfg.DebugMode {
		d.fail(err)
		return
	}

	d.connLog.Warn("Disconnected from server; Reconnecting...", "error", err.Error())
	d.fireState(EventLose)
	d.scheduleReconnect()
}

func (d *Device) scheduleReconnect() {
	d.cancelReconnect()
	d.observer.Reconnecting()

	gen := d.gen
	d.reconnect = time.AfterFunc(d.cfg.ReconnectDelay, func() {
		d.Post(func() {
			if gen == d.gen {
				d.connect()
			}
		})
	})
}

func (d *Device) cancelReconnect() {
	if d.reconnect != nil {
		d.reconnect.Stop()
		d.reconnect = nil
	}
}

// startHeartbeat arms the heartbeat of channel gen, cancelling any earlier one.
func (d *Device) startHeartbeat(gen uint64) {
	d.stopHeartbeat()

	stop := make(chan struct{})
	d.heartbeat = stop

	interval := d.cfg.HeartbeatInterval
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				d.Post(func() { d.beat(gen, stop) })
			}
		}
	}()
}

func (d *Device) stopHeartbeat() {
	if d.heartbeat != nil {
		close(d.heartbeat)
		d.heartbeat = nil
	}
}

func (d *Device) beat(gen uint64, stop chan struct{}) {
	if gen != d.gen || d.heartbeat != stop {
		return
	}

	err := d.Send(protocol.CmdSendHeartbeat, protocol.Args{})
	d.observer.HeartbeatSent(err)
	if err == nil {
		return
	}

	d.stopHeartbeat()
	d.connLog.Local().Error(err, "Could not send the heartbeat")
	if d.cfg.DebugMode {
		d.fail(fmt.Errorf("heartbeat: %w", err))
		return
	}
	d.fireState(EventLose)
	d.observer.Reconnecting()
	d.connect()
}

func (d *Device) sendManifest() {
	manifest := BuildManifest(d.cfg, d.registry, d.exts, d.logger.WithName("manifest"))
	if d.cfg.DebugMode {
		d.logger.WithName("manifest").Local().Debug("Sending manifest", "manifest", RedactManifest(manifest))
	}

	if err := d.Send(protocol.CmdSendManifest, manifest); err != nil {
		d.connLog.Local().Debug("Could not send the manifest", "error", err.Error())
		return
	}
	d.manifest.Store(&manifest)
}

func (d *Device) dropChannel() {
	ch := d.channel
	d.channel = nil
	d.current.Store(nil)
	if ch != nil {
		_ = ch.Close()
	}
}

func (d *Device) consumeStart(err error) {
	if d.onStart == nil {
		return
	}
	cb := d.onStart
	d.onStart = nil
	cb(err)
}

func (d *Device) fireState(event string) {
	if err := d.state.Fire(event); err != nil {
		d.connLog.Local().Debug("Connection state transition failed", "event", event, "error", err.Error())
	}
}
