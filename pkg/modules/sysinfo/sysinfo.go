// Package sysinfo is a command module reporting host statistics. Importing it
// installs the commands sysinfo:uptime, sysinfo:load, sysinfo:memory and
// sysinfo:cpu.
package sysinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// Name is the module name.
const Name = "sysinfo"

const (
	defaultSampleInterval = time.Second
	maxSampleInterval     = 10 * time.Second
	collectTimeout        = 15 * time.Second
)

func init() {
	device.RegisterModule(device.Module{
		Name:     Name,
		Commands: Commands(),
		New:      New,
	})
}

// Commands returns the command table of the module.
func Commands() *protocol.CommandTable {
	t := protocol.NewCommandTable()
	t.Set("uptime", protocol.CommandDefinition{Description: "Seconds since boot", Arguments: protocol.Arguments{}})
	t.Set("load", protocol.CommandDefinition{Description: "Load averages over 1, 5 and 15 minutes", Arguments: protocol.Arguments{}})
	t.Set("memory", protocol.CommandDefinition{Description: "Virtual memory usage in bytes", Arguments: protocol.Arguments{}})
	t.Set("cpu", protocol.CommandDefinition{
		Description: "CPU usage in percent per core",
		Arguments:   protocol.Arguments{{Name: "intervalMsec", Spec: "INTEGER"}},
	})
	return t
}

// Memory is the reply of sysinfo:memory.
type Memory struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

// Load is the reply of sysinfo:load.
type Load struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// Collector reads host statistics. Fields are replaced in tests.
type Collector struct {
	logger log.Logger

	uptime func(context.Context) (uint64, error)
	load   func(context.Context) (*load.AvgStat, error)
	memory func(context.Context) (*mem.VirtualMemoryStat, error)
	usage  func(context.Context, time.Duration, bool) ([]float64, error)
}

// NewCollector returns a collector backed by gopsutil.
func NewCollector(logger log.Logger) *Collector {
	return &Collector{
		logger: logger,
		uptime: host.UptimeWithContext,
		load:   load.AvgWithContext,
		memory: mem.VirtualMemoryWithContext,
		usage:  cpu.PercentWithContext,
	}
}

// New is the module factory.
func New(_ *device.Config, logger log.Logger, _ *device.Helper) (device.Handlers, error) {
	return NewCollector(logger).Handlers(), nil
}

// Handlers returns the command handlers of c.
func (c *Collector) Handlers() device.Handlers {
	return device.Handlers{
		"uptime": c.handleUptime,
		"load":   c.handleLoad,
		"memory": c.handleMemory,
		"cpu":    c.handleCPU,
	}
}

func (c *Collector) handleUptime(_ protocol.Args, resp *device.Responder) bool {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	up, err := c.uptime(ctx)
	resp.Send(err, up)
	return false
}

func (c *Collector) handleLoad(_ protocol.Args, resp *device.Responder) bool {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	avg, err := c.load(ctx)
	if err != nil {
		resp.Send(err, nil)
		return false
	}
	resp.Send(nil, Load{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15})
	return false
}

func (c *Collector) handleMemory(_ protocol.Args, resp *device.Responder) bool {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	vm, err := c.memory(ctx)
	if err != nil {
		resp.Send(err, nil)
		return false
	}
	resp.Send(nil, Memory{Total: vm.Total, Available: vm.Available, Used: vm.Used, UsedPercent: vm.UsedPercent})
	return false
}

// handleCPU samples in the background and answers once the sample is taken.
func (c *Collector) handleCPU(args protocol.Args, resp *device.Responder) bool {
	interval := defaultSampleInterval
	if ms, ok := args.Int64("intervalMsec"); ok {
		if ms <= 0 || time.Duration(ms)*time.Millisecond > maxSampleInterval {
			resp.Send(fmt.Errorf("intervalMsec must be between 1 and %d", maxSampleInterval.Milliseconds()), nil)
			return false
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
		defer cancel()

		percent, err := c.usage(ctx, interval, true)
		if err != nil {
			c.logger.Warn("cpu.PercentWithContext failed", "error", err.Error())
		}
		resp.Send(err, percent)
	}()
	return false
}
