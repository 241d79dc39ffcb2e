package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/autopeer-io/denhub/pkg/device"
)

func TestObserver(t *testing.T) {
	var o Observer

	o.StateChanged(device.StateIdle, device.StateConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionState.WithLabelValues(device.StateConnected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionState.WithLabelValues(device.StateIdle)))

	before := testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("failed"))
	o.HeartbeatSent(errors.New("closed"))
	assert.Equal(t, before+1, testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("failed")))

	before = testutil.ToFloat64(CommandsTotal.WithLabelValues(device.OutcomeAcked))
	o.CommandDispatched(device.OutcomeAcked)
	assert.Equal(t, before+1, testutil.ToFloat64(CommandsTotal.WithLabelValues(device.OutcomeAcked)))

	before = testutil.ToFloat64(LogsForwardedTotal.WithLabelValues("warn", "success"))
	o.LogForwarded("warn", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(LogsForwardedTotal.WithLabelValues("warn", "success")))
}

func TestRegistryGathers(t *testing.T) {
	families, err := Registry.Gather()
	assert.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["denhub_device_connection_state"])
	assert.True(t, names["go_goroutines"])
}
