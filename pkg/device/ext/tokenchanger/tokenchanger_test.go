package tokenchanger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/denhub/pkg/device/ext/exttest"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

const original = `{
	"deviceName": "cam1",
	"deviceType": "camera",
	"deviceToken": "old",
	"denhubServerHost": "ws://localhost:3000/"
}`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(original), 0o640))
	return path
}

func TestChangeTokenRewritesAndRestarts(t *testing.T) {
	path := writeConfig(t)
	h := exttest.NewHost(path)

	e, err := New(h)
	require.NoError(t, err)

	require.NoError(t, e.OnCmdReceive(protocol.CmdChangeToken, protocol.Args{"deviceToken": "fresh"}, -1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{
  "deviceName": "cam1",
  "deviceType": "camera",
  "deviceToken": "fresh",
  "denhubServerHost": "ws://localhost:3000/"
}
`, string(data))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())

	assert.Equal(t, 1, h.Restarts())
}

func TestChangeTokenIgnored(t *testing.T) {
	path := writeConfig(t)
	h := exttest.NewHost(path)
	e, _ := New(h)

	require.NoError(t, e.OnCmdReceive("ping", protocol.Args{"deviceToken": "x"}, 1))
	require.NoError(t, e.OnCmdReceive(protocol.CmdChangeToken, protocol.Args{}, -1))
	require.NoError(t, e.OnCmdReceive(protocol.CmdChangeToken, protocol.Args{"deviceToken": ""}, -1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
	assert.Equal(t, 0, h.Restarts())
}

func TestChangeTokenWithoutFile(t *testing.T) {
	h := exttest.NewHost("")
	e, _ := New(h)

	assert.Error(t, e.OnCmdReceive(protocol.CmdChangeToken, protocol.Args{"deviceToken": "x"}, -1))
	assert.Equal(t, 0, h.Restarts())
}

func TestWriteTokenAddsMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"deviceName":"cam1"}`), 0o600))

	require.NoError(t, WriteToken(path, "t1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"deviceName\": \"cam1\",\n  \"deviceToken\": \"t1\"\n}\n", string(data))
}

func TestWriteTokenKeepsNestedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"zeta":{"b":1,"a":[true]},"deviceToken":null,"alpha":"x"}`), 0o600))

	require.NoError(t, WriteToken(path, "t2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{
  "zeta": {
    "b": 1,
    "a": [true]
  },
  "deviceToken": "t2",
  "alpha": "x"
}
`, string(data))
}

func TestWriteTokenRejectsNonObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`["deviceToken"]`), 0o600))

	assert.Error(t, WriteToken(path, "t3"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `["deviceToken"]`, string(data))
}
