package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device"
	transportmqtt "github.com/autopeer-io/denhub/pkg/transport/mqtt"
	"github.com/autopeer-io/denhub/pkg/transport/websocket"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr string
		ok   bool
	}{
		{"127.0.0.1:9465", true},
		{":8080", true},
		{"[::1]:80", true},
		{"localhost", false},
		{"host:http", false},
		{"host:70000", false},
	}
	for _, tt := range tests {
		err := ValidateAddress(tt.addr)
		assert.Equal(t, tt.ok, err == nil, tt.addr)
	}
}

func TestHttpOptions(t *testing.T) {
	o := NewHttpOptions()
	assert.True(t, o.Enabled())
	assert.Empty(t, o.Validate())

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http.addr="}))
	assert.False(t, o.Enabled())
	assert.Empty(t, o.Validate())

	o.Addr = "nope"
	assert.Len(t, o.Validate(), 1)
}

func TestMqttOptionsApplyTo(t *testing.T) {
	o := NewMqttOptions()
	assert.Empty(t, o.Validate())

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--mqtt.qos=0", "--mqtt.keep-alive=10s", "--mqtt.insecure-skip-verify"}))

	d := transportmqtt.NewDialer()
	o.ApplyTo(d)
	assert.Equal(t, byte(0), d.QoS)
	assert.Equal(t, 10*time.Second, d.KeepAlive)
	assert.True(t, d.InsecureSkipVerify)

	o.QoS = 3
	assert.Len(t, o.Validate(), 1)
}

func TestWebSocketOptionsApplyTo(t *testing.T) {
	o := NewWebSocketOptions()
	assert.Empty(t, o.Validate())

	d := websocket.NewDialer()
	o.ApplyTo(d)
	assert.Equal(t, int64(1<<20), d.ReadLimit)
	assert.Nil(t, d.TLSConfig)

	o.InsecureSkipVerify = true
	o.ApplyTo(d)
	require.NotNil(t, d.TLSConfig)
	assert.True(t, d.TLSConfig.InsecureSkipVerify)

	o.HandshakeTimeout = 0
	assert.Len(t, o.Validate(), 1)
}

func TestHubOptionsApplyTo(t *testing.T) {
	cfg := &device.Config{
		ServerHost:     "ws://localhost:8080",
		DeviceName:     "d0",
		DeviceType:     "t0",
		ReconnectDelay: device.DefaultReconnectDelay,
	}

	o := NewHubOptions()
	o.ApplyTo(cfg)
	assert.Equal(t, "d0", cfg.DeviceName)
	assert.Equal(t, device.DefaultReconnectDelay, cfg.ReconnectDelay)

	o.DeviceName = "d1"
	o.ServerHost = "wss://hub.example.com"
	o.ReconnectDelay = time.Second
	o.SuppressLog = true
	assert.Empty(t, o.Validate())

	o.ApplyTo(cfg)
	assert.Equal(t, "d1", cfg.DeviceName)
	assert.Equal(t, "t0", cfg.DeviceType)
	assert.Equal(t, "wss://hub.example.com", cfg.ServerHost)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.True(t, cfg.SuppressLog)

	o.ServerHost = "localhost:8080"
	o.RestartDelay = -time.Second
	assert.Len(t, o.Validate(), 2)
}
