package sysinfo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

type sink struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (s *sink) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f map[string]any
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *sink) responses() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, f := range s.frames {
		out = append(out, f["args"].(map[string]any))
	}
	return out
}

func fakeCollector() *Collector {
	c := NewCollector(log.NewNopLogger())
	c.uptime = func(context.Context) (uint64, error) { return 3600, nil }
	c.load = func(context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: 0.5, Load5: 0.25, Load15: 0.125}, nil
	}
	c.memory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("no /proc")
	}
	c.usage = func(_ context.Context, interval time.Duration, perCPU bool) ([]float64, error) {
		if !perCPU {
			return nil, errors.New("expected per cpu sampling")
		}
		return []float64{12.5, float64(interval.Milliseconds())}, nil
	}
	return c
}

func run(c *Collector, cmd string, args protocol.Args) *sink {
	s := &sink{}
	resp := device.NewResponder(protocol.Qualify(Name, cmd), 1, s.send, log.NewNopLogger(), nil)
	c.Handlers()[cmd](args, resp)
	return s
}

func TestHandlers(t *testing.T) {
	c := fakeCollector()

	up := run(c, "uptime", protocol.Args{}).responses()
	require.Len(t, up, 1)
	assert.Equal(t, float64(3600), up[0]["responseSuccess"])
	assert.Equal(t, "sysinfo:uptime", up[0]["sourceCmd"])

	l := run(c, "load", protocol.Args{}).responses()
	require.Len(t, l, 1)
	assert.Equal(t, map[string]any{"load1": 0.5, "load5": 0.25, "load15": 0.125}, l[0]["responseSuccess"])

	m := run(c, "memory", protocol.Args{}).responses()
	require.Len(t, m, 1)
	assert.Nil(t, m[0]["responseSuccess"])
	assert.Equal(t, "no /proc", m[0]["responseError"])
}

func TestCPUAnswersLater(t *testing.T) {
	c := fakeCollector()

	s := run(c, "cpu", protocol.Args{"intervalMsec": float64(20)})
	require.Eventually(t, func() bool { return len(s.responses()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []any{12.5, float64(20)}, s.responses()[0]["responseSuccess"])

	bad := run(c, "cpu", protocol.Args{"intervalMsec": float64(60000)}).responses()
	require.Len(t, bad, 1)
	assert.Contains(t, bad[0]["responseError"], "intervalMsec")
}

func TestRegistered(t *testing.T) {
	var found *device.Module
	for _, m := range device.Modules() {
		if m.Name == Name {
			found = &m
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []string{"uptime", "load", "memory", "cpu"}, found.Commands.Names())
	require.NoError(t, found.Validate())
}
