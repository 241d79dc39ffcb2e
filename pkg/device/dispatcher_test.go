package device

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// recorder collects outbound frames.
type recorder struct {
	mu     sync.Mutex
	frames []map[string]any
	err    error
}

func (r *recorder) send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) byCmd(cmd string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, f := range r.frames {
		if f["cmd"] == cmd {
			out = append(out, f)
		}
	}
	return out
}

type receipt struct {
	cmd    string
	args   protocol.Args
	execID int64
}

// hookRecorder records every command it observes.
type hookRecorder struct {
	ext.Base

	receipts []receipt
	err      error
	panics   bool
}

func (h *hookRecorder) OnCmdReceive(cmd string, args protocol.Args, execID int64) error {
	if h.panics {
		panic("hook exploded")
	}
	h.receipts = append(h.receipts, receipt{cmd: cmd, args: args, execID: execID})
	return h.err
}

type fixture struct {
	rec        *recorder
	hooks      []*hookRecorder
	calls      map[string]int
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, mods ...Module) *fixture {
	t.Helper()

	f := &fixture{rec: &recorder{}, calls: map[string]int{}}

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	cfg.Commands.Set("status", protocol.CommandDefinition{Description: "s"})
	cfg.Commands.Set("crash", protocol.CommandDefinition{Description: "c"})
	cfg.Commands.Set("fail", protocol.CommandDefinition{Description: "f"})
	cfg.Commands.Set("both", protocol.CommandDefinition{Description: "b"})

	handlers := func(*Config, log.Logger, *Helper) (Handlers, error) {
		return Handlers{
			"ping": func(_ protocol.Args, resp *Responder) bool {
				f.calls["ping"]++
				resp.Send(nil, "pong")
				return false
			},
			"status": func(protocol.Args, *Responder) bool {
				f.calls["status"]++
				return true
			},
			"crash": func(protocol.Args, *Responder) bool {
				f.calls["crash"]++
				panic("boom")
			},
			"fail": func(_ protocol.Args, resp *Responder) bool {
				f.calls["fail"]++
				resp.Send(errors.New("motor jammed"), "ignored")
				return false
			},
			"both": func(_ protocol.Args, resp *Responder) bool {
				f.calls["both"]++
				resp.Send(nil, "done")
				return true
			},
		}, nil
	}

	exts := ext.NewSet()
	for _, name := range []string{"a", "bad", "b"} {
		h := &hookRecorder{}
		if name == "bad" {
			h.panics = true
		}
		exts.Put(ext.Key{Scope: ext.ScopeLocal, Name: name}, h)
		f.hooks = append(f.hooks, h)
	}

	logger := log.NewNopLogger()
	registry, err := NewRegistry(cfg, handlers, mods, logger, NewHelper(exts))
	require.NoError(t, err)

	f.dispatcher = NewDispatcher(exts, registry, f.rec.send, logger, nil)
	return f
}

func (f *fixture) dispatch(t *testing.T, frame string) {
	t.Helper()
	f.dispatcher.Dispatch([]byte(frame))
}

func (f *fixture) receipts() []receipt {
	return append(append([]receipt(nil), f.hooks[0].receipts...), f.hooks[2].receipts...)
}

func TestDispatchPingPong(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"cmd":"ping","cmdExecId":7,"args":{}}`)

	responses := f.rec.byCmd(protocol.CmdSendCmdResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, map[string]any{
		"sourceCmd":       "ping",
		"sourceCmdExecId": float64(7),
		"responseSuccess": "pong",
		"responseError":   nil,
	}, responses[0]["args"])
	assert.Equal(t, 1, f.calls["ping"])
}

func TestDispatchAutoAck(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"cmd":"status","cmdExecId":3}`)

	responses := f.rec.byCmd(protocol.CmdSendCmdResponse)
	require.Len(t, responses, 1)
	args := responses[0]["args"].(map[string]any)
	assert.Equal(t, DefaultAck, args["responseSuccess"])
	assert.Nil(t, args["responseError"])
	assert.Equal(t, float64(3), args["sourceCmdExecId"])
}

func TestDispatchNoSecondResponse(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"cmd":"both"}`)

	responses := f.rec.byCmd(protocol.CmdSendCmdResponse)
	require.Len(t, responses, 1)
	args := responses[0]["args"].(map[string]any)
	assert.Equal(t, "done", args["responseSuccess"])
	assert.Equal(t, float64(protocol.NoExecID), args["sourceCmdExecId"])
}

func TestDispatchErrorResponse(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"cmd":"fail","cmdExecId":9}`)

	responses := f.rec.byCmd(protocol.CmdSendCmdResponse)
	require.Len(t, responses, 1)
	args := responses[0]["args"].(map[string]any)
	assert.Nil(t, args["responseSuccess"])
	assert.Equal(t, "motor jammed", args["responseError"])
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"cmd":"dance","cmdExecId":1,"args":{"speed":2}}`)

	assert.Empty(t, f.rec.byCmd(protocol.CmdSendCmdResponse))
	assert.Empty(t, f.calls)

	// Every live hook saw the receipt, including the one after the panicking hook.
	got := f.receipts()
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "dance", r.cmd)
		assert.Equal(t, int64(1), r.execID)
		assert.Equal(t, protocol.Args{"speed": float64(2)}, r.args)
	}
}

func TestDispatchDroppedMessages(t *testing.T) {
	f := newFixture(t)

	for _, frame := range []string{
		`not json`,
		`{"args":{"x":1}}`,
		`{"cmd":""}`,
		`{"cmd":null,"cmdExecId":4}`,
		`[1,2,3]`,
	} {
		f.dispatch(t, frame)
	}

	assert.Empty(t, f.rec.frames)
	assert.Empty(t, f.receipts())
	assert.Empty(t, f.calls)
}

func TestDispatchReservedCommandsAreHookOnly(t *testing.T) {
	f := newFixture(t)

	outcome := f.dispatcher.Handle(&protocol.Command{Name: "_ping", ExecID: protocol.NoExecID, Args: protocol.Args{}})
	assert.Equal(t, OutcomeReserved, outcome)
	assert.Empty(t, f.rec.frames)
	assert.Len(t, f.receipts(), 2)
}

func TestDispatchHandlerPanic(t *testing.T) {
	f := newFixture(t)

	outcome := f.dispatcher.Handle(&protocol.Command{Name: "crash", ExecID: 5, Args: protocol.Args{}})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 1, f.calls["crash"])
	assert.Empty(t, f.rec.byCmd(protocol.CmdSendCmdResponse))

	// The dispatcher keeps working.
	f.dispatch(t, `{"cmd":"status"}`)
	assert.Len(t, f.rec.byCmd(protocol.CmdSendCmdResponse), 1)
}

func TestDispatchDeclaredWithoutHandler(t *testing.T) {
	f := newFixture(t)

	outcome := f.dispatcher.Handle(&protocol.Command{Name: "move", ExecID: 1, Args: protocol.Args{}})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, f.rec.frames)
}

func TestDispatchModuleCommands(t *testing.T) {
	var calls []string
	module := func(name string) Module {
		commands := protocol.NewCommandTable()
		commands.Set("blink", protocol.CommandDefinition{Description: "Blink"})
		return Module{
			Name:     name,
			Commands: commands,
			New: func(cfg *Config, _ log.Logger, _ *Helper) (Handlers, error) {
				assert.Empty(t, cfg.DeviceToken)
				assert.Empty(t, cfg.ServerHost)
				return Handlers{
					"blink": func(protocol.Args, *Responder) bool {
						calls = append(calls, name)
						return true
					},
				}, nil
			},
		}
	}
	broken := Module{
		Name:     "broken",
		Commands: protocol.NewCommandTable(),
		New: func(*Config, log.Logger, *Helper) (Handlers, error) {
			return nil, errors.New("no hardware")
		},
	}

	f := newFixture(t, module("led"), broken, module("buzzer"))

	f.dispatch(t, `{"cmd":"led:blink","cmdExecId":1}`)
	f.dispatch(t, `{"cmd":"buzzer:blink","cmdExecId":2}`)
	f.dispatch(t, `{"cmd":"blink","cmdExecId":3}`)
	f.dispatch(t, `{"cmd":"broken:blink","cmdExecId":4}`)
	f.dispatch(t, `{"cmd":"led:ping","cmdExecId":5}`)

	assert.Equal(t, []string{"led", "buzzer"}, calls)
	responses := f.rec.byCmd(protocol.CmdSendCmdResponse)
	require.Len(t, responses, 2)
	assert.Equal(t, "led:blink", responses[0]["args"].(map[string]any)["sourceCmd"])
	assert.Equal(t, "buzzer:blink", responses[1]["args"].(map[string]any)["sourceCmd"])
}

func TestResponderSendFailureIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("closed")}
	r := NewResponder("ping", 1, rec.send, log.NewNopLogger(), nil)

	assert.NotPanics(t, func() { r.Send(nil, "pong") })
	assert.True(t, r.Sent())
	assert.Equal(t, "ping", r.Command())
	assert.Equal(t, int64(1), r.ExecID())
}

func TestHelperResolvesScopes(t *testing.T) {
	exts := ext.NewSet()
	core := &hookRecorder{}
	local := &hookRecorder{}
	exts.Put(ext.Key{Scope: ext.ScopeCore, Name: "kvs"}, core)
	exts.Put(ext.Key{Scope: ext.ScopeLocal, Name: "kvs"}, local)
	exts.Put(ext.Key{Scope: ext.ScopeLocal, Name: "broken"}, nil)

	h := NewHelper(exts)
	assert.Same(t, core, h.Extension("_kvs"))
	assert.Same(t, local, h.Extension("kvs"))
	assert.Nil(t, h.Extension("broken"))
	assert.Nil(t, h.Extension("missing"))
	assert.Nil(t, (*Helper)(nil).Extension("_kvs"))
}
