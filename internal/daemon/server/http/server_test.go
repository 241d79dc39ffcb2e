package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/options"
)

type fakeStatus struct {
	connected bool
	manifest  map[string]any
}

func (f *fakeStatus) State() string {
	if f.connected {
		return device.StateConnected
	}
	return device.StateWaiting
}

func (f *fakeStatus) Connected() bool          { return f.connected }
func (f *fakeStatus) Manifest() map[string]any { return f.manifest }

func newTestServer(st *fakeStatus) *Server {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "t"})
	reg.MustRegister(c)
	c.Inc()
	return NewServer(options.NewHttpOptions(), st, reg)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	st := &fakeStatus{}
	h := newTestServer(st).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	rec := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), device.StateWaiting)

	st.connected = true
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
}

func TestManifestIsRedacted(t *testing.T) {
	st := &fakeStatus{}
	h := newTestServer(st).Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/manifest").Code)

	st.manifest = map[string]any{
		device.KeyDeviceName:  "d0",
		device.KeyDeviceToken: "secret",
		device.KeyServerHost:  "wss://hub.example.com",
	}
	rec := get(t, h, "/manifest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "d0", got[device.KeyDeviceName])
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.NotContains(t, rec.Body.String(), "hub.example.com")
	// The device's copy is untouched.
	assert.Equal(t, "secret", st.manifest[device.KeyDeviceToken])
}

func TestMetrics(t *testing.T) {
	rec := get(t, newTestServer(&fakeStatus{}).Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total 1")
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeStatus{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
