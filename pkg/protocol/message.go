// Package protocol defines the JSON text frames exchanged between a device
// and the denhub server.
package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

// Reserved command names. Every name starting with ReservedPrefix belongs to
// the protocol and is never dispatched to a command handler.
const (
	ReservedPrefix = "_"

	CmdSendManifest    = "_sendManifest"
	CmdSendHeartbeat   = "_sendHeartbeat"
	CmdSendLog         = "_sendLog"
	CmdSendCmdResponse = "_sendCmdResponse"
	CmdGetKvs          = "_getKvs"
	CmdSetKvs          = "_setKvs"
	CmdChangeToken     = "_changeToken"
)

// ModuleSeparator joins a module name and a command name.
const ModuleSeparator = ":"

// NoExecID is the execution id of a command that did not carry one.
const NoExecID int64 = -1

// ErrMissingCmd is returned by Decode for frames without a cmd field.
var ErrMissingCmd = errors.New("message has no cmd")

// IsReserved reports whether name is a protocol command.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}

// Qualify returns the module-qualified name of a command.
func Qualify(module, command string) string {
	return module + ModuleSeparator + command
}

// SplitQualified splits "module:command" at the first separator.
func SplitQualified(name string) (module, command string, ok bool) {
	return strings.Cut(name, ModuleSeparator)
}

// Envelope is an outbound frame.
type Envelope struct {
	Cmd    string `json:"cmd"`
	Args   any    `json:"args"`
	SentAt int64  `json:"sentAt,omitempty"`
}

// Encode renders an outbound frame.
func Encode(cmd string, args any) ([]byte, error) {
	if args == nil {
		args = Args{}
	}
	return json.Marshal(Envelope{Cmd: cmd, Args: args})
}

// EncodeStamped renders an outbound frame carrying a sentAt timestamp in
// milliseconds.
func EncodeStamped(cmd string, args any, at time.Time) ([]byte, error) {
	if args == nil {
		args = Args{}
	}
	return json.Marshal(Envelope{Cmd: cmd, Args: args, SentAt: at.UnixMilli()})
}

// Command is a decoded inbound frame.
type Command struct {
	Name   string
	ExecID int64
	Args   Args
}

type inbound struct {
	Cmd       *string         `json:"cmd"`
	CmdExecID json.RawMessage `json:"cmdExecId"`
	Args      json.RawMessage `json:"args"`
}

// Decode parses an inbound frame. A missing or empty cmd yields
// ErrMissingCmd. A missing, non-integral or out of range cmdExecId becomes
// NoExecID and a missing or non-object args becomes an empty Args.
func Decode(data []byte) (*Command, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	if in.Cmd == nil || *in.Cmd == "" {
		return nil, ErrMissingCmd
	}

	c := &Command{Name: *in.Cmd, ExecID: NoExecID, Args: Args{}}

	if len(in.CmdExecID) > 0 {
		var n float64
		if err := json.Unmarshal(in.CmdExecID, &n); err == nil && isInt64(n) {
			c.ExecID = int64(n)
		}
	}

	if len(in.Args) > 0 {
		var args Args
		if err := json.Unmarshal(in.Args, &args); err == nil && args != nil {
			c.Args = args
		}
	}

	return c, nil
}

// isInt64 reports whether n is integral and inside the int64 range. The upper
// bound is exclusive because float64(math.MaxInt64) rounds up to 2^63.
func isInt64(n float64) bool {
	return n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64
}

// CommandResponse is the payload of a _sendCmdResponse frame.
type CommandResponse struct {
	SourceCmd       string `json:"sourceCmd"`
	SourceCmdExecID int64  `json:"sourceCmdExecId"`
	ResponseSuccess any    `json:"responseSuccess"`
	ResponseError   any    `json:"responseError"`
}

// LogRecord is the payload of a _sendLog frame.
type LogRecord struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Tag  string `json:"tag"`
}
