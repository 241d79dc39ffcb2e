package device

import (
	"sync/atomic"
	"time"

	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// SendFunc writes one frame on the current channel.
type SendFunc func(data []byte) error

// DefaultAck is the response sent for handlers that ask for an automatic
// acknowledgement.
const DefaultAck = "Command executed"

// Responder answers one inbound command. It may be used from any goroutine.
type Responder struct {
	cmd    string
	execID int64

	send     SendFunc
	logger   log.Logger
	observer Observer
	sent     atomic.Int32
}

// NewResponder returns a responder for the command cmd with execution id execID.
func NewResponder(cmd string, execID int64, send SendFunc, logger log.Logger, observer Observer) *Responder {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Responder{cmd: cmd, execID: execID, send: send, logger: logger, observer: observer}
}

// Command returns the name of the command being answered.
func (r *Responder) Command() string { return r.cmd }

// ExecID returns the execution id of the command being answered.
func (r *Responder) ExecID() int64 { return r.execID }

// Sent reports whether Send was called.
func (r *Responder) Sent() bool { return r.sent.Load() > 0 }

// Send transmits the outcome of the command. A non-nil err wins over
// success. Transmission failures are dropped.
func (r *Responder) Send(err error, success any) {
	r.sent.Add(1)

	resp := protocol.CommandResponse{
		SourceCmd:       r.cmd,
		SourceCmdExecID: r.execID,
		ResponseSuccess: success,
	}
	if err != nil {
		r.logger.Local().Warn("Command failed", "command", r.cmd, "error", err.Error())
		resp.ResponseSuccess = nil
		resp.ResponseError = err.Error()
	}

	data, encErr := protocol.EncodeStamped(protocol.CmdSendCmdResponse, resp, time.Now())
	if encErr != nil {
		r.logger.Local().Warn("Could not encode the response", "command", r.cmd, "error", encErr.Error())
		r.observer.ResponseSent(encErr)
		return
	}

	sendErr := r.send(data)
	if sendErr != nil {
		r.logger.Local().Debug("Could not send the response", "command", r.cmd, "error", sendErr.Error())
	}
	r.observer.ResponseSent(sendErr)
}
