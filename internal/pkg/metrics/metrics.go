package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/autopeer-io/denhub/pkg/device"
)

// Registry holds every collector of the daemon. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// ConnectionState is 1 for the current connection state and 0 for the others.
	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "denhub_device_connection_state",
			Help: "Current connection state of the device (1 for the active state).",
		},
		[]string{"state"},
	)

	// ReconnectsTotal counts scheduled reconnects.
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "denhub_device_reconnects_total",
			Help: "Total number of reconnects scheduled after a failure.",
		},
	)

	// HeartbeatsTotal counts heartbeats by result.
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denhub_device_heartbeats_total",
			Help: "Total number of heartbeats sent to the server.",
		},
		[]string{"status"}, // status: success/failed
	)

	// MessagesDroppedTotal counts inbound frames without a command.
	MessagesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "denhub_device_messages_dropped_total",
			Help: "Total number of inbound frames dropped because they were not commands.",
		},
	)

	// CommandsTotal counts dispatched commands by outcome.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denhub_device_commands_total",
			Help: "Total number of inbound commands by dispatch outcome.",
		},
		[]string{"outcome"}, // outcome: reserved/executed/acked/failed/unmatched
	)

	// ResponsesTotal counts command responses by result.
	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denhub_device_responses_total",
			Help: "Total number of command responses sent to the server.",
		},
		[]string{"status"},
	)

	// LogsForwardedTotal counts forwarded log entries by level and result.
	LogsForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denhub_device_logs_forwarded_total",
			Help: "Total number of log entries forwarded to the server.",
		},
		[]string{"level", "status"},
	)
)

var states = []string{
	device.StateIdle,
	device.StateConnecting,
	device.StateConnected,
	device.StateWaiting,
	device.StateStopped,
}

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ConnectionState,
		ReconnectsTotal,
		HeartbeatsTotal,
		MessagesDroppedTotal,
		CommandsTotal,
		ResponsesTotal,
		LogsForwardedTotal,
	)
	setState(device.StateIdle)
}

func setState(current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// Observer records device events in the collectors above.
type Observer struct{}

var _ device.Observer = Observer{}

func (Observer) StateChanged(_, to string) { setState(to) }

func (Observer) Reconnecting() { ReconnectsTotal.Inc() }

func (Observer) HeartbeatSent(err error) { HeartbeatsTotal.WithLabelValues(status(err)).Inc() }

func (Observer) MessageDropped() { MessagesDroppedTotal.Inc() }

func (Observer) CommandDispatched(outcome string) { CommandsTotal.WithLabelValues(outcome).Inc() }

func (Observer) ResponseSent(err error) { ResponsesTotal.WithLabelValues(status(err)).Inc() }

func (Observer) LogForwarded(level string, err error) {
	LogsForwardedTotal.WithLabelValues(level, status(err)).Inc()
}
