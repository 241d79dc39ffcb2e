package device

import (
	"time"

	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

var _ log.Sink = (*Device)(nil)

// Write forwards a log entry to the server as a _sendLog frame. It is the
// sink of the device logger and must not log itself.
func (d *Device) Write(level, tag, text string) error {
	data, err := protocol.EncodeStamped(protocol.CmdSendLog, protocol.LogRecord{
		Type: level,
		Text: text,
		Tag:  tag,
	}, time.Now())
	if err == nil {
		err = d.sendRaw(data)
	}
	d.observer.LogForwarded(level, err)
	return err
}
