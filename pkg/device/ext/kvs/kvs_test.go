package kvs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device/ext/exttest"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

func newKVS(t *testing.T) (*KVS, *exttest.Host) {
	t.Helper()
	h := exttest.NewHost("")
	e, err := New(h)
	require.NoError(t, err)
	return e.(*KVS), h
}

func TestSet(t *testing.T) {
	k, h := newKVS(t)

	require.NoError(t, k.Set("greeting", "hello", 0))
	require.NoError(t, k.Set("point", map[string]int{"x": 1}, 90*time.Second))
	assert.Error(t, k.Set("", "x", 0))

	frames := h.Frames()
	require.Len(t, frames, 2)

	assert.Equal(t, protocol.CmdSetKvs, frames[0].Cmd)
	assert.Equal(t, protocol.Args{"key": "greeting", "value": "hello", "lifetime": nil}, frames[0].Args)
	assert.Equal(t, protocol.Args{"key": "point", "value": `{"x":1}`, "lifetime": int64(90)}, frames[1].Args)
}

func TestGetMatchesRequestID(t *testing.T) {
	k, h := newKVS(t)

	var got any
	var gotErr error
	calls := 0
	require.NoError(t, k.Get("greeting", func(v any, err error) {
		calls++
		got, gotErr = v, err
	}))

	frames := h.Frames()
	require.Len(t, frames, 1)
	args := frames[0].Args.(protocol.Args)
	id, ok := args.String("requestId")
	require.True(t, ok)
	assert.Equal(t, 1, k.Pending())

	// Unrelated commands and unknown ids are ignored.
	require.NoError(t, k.OnCmdReceive("ping", protocol.Args{}, 1))
	require.NoError(t, k.OnCmdReceive(protocol.CmdGetKvs, protocol.Args{"requestId": "other"}, -1))
	assert.Equal(t, 0, calls)

	require.NoError(t, k.OnCmdReceive(protocol.CmdGetKvs, protocol.Args{"requestId": id, "value": "hello"}, -1))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "hello", got)
	assert.NoError(t, gotErr)
	assert.Equal(t, 0, k.Pending())

	// A duplicate reply is dropped.
	require.NoError(t, k.OnCmdReceive(protocol.CmdGetKvs, protocol.Args{"requestId": id, "value": "again"}, -1))
	assert.Equal(t, 1, calls)
}

func TestGetMatchesKeyAndError(t *testing.T) {
	k, _ := newKVS(t)

	var gotErr error
	require.NoError(t, k.Get("missing", func(_ any, err error) { gotErr = err }))
	require.NoError(t, k.OnCmdReceive(protocol.CmdGetKvs, protocol.Args{"key": "missing", "error": "not found"}, -1))

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "not found")
}

func TestGetTimeout(t *testing.T) {
	k, _ := newKVS(t)
	k.timeout = 10 * time.Millisecond

	done := make(chan error, 1)
	require.NoError(t, k.Get("slow", func(_ any, err error) { done <- err }))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not called")
	}
	assert.Equal(t, 0, k.Pending())
}

func TestGetSendFailure(t *testing.T) {
	k, h := newKVS(t)
	h.SendErr = errors.New("offline")

	assert.Error(t, k.Get("x", func(any, error) {}))
	assert.Equal(t, 0, k.Pending())
}
