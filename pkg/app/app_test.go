package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/denhub/pkg/log"
)

type testOptions struct {
	Addr     string
	Timeout  time.Duration
	Paths    []string
	Log      *log.Options
	complete int
	invalid  bool
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("Server")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "addr")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "timeout")
	fs.StringSliceVar(&o.Paths, "paths", o.Paths, "paths")
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *testOptions) Complete() error {
	o.complete++
	return nil
}

func (o *testOptions) Validate() error {
	if o.invalid {
		return errors.New("invalid")
	}
	return nil
}

func (o *testOptions) LoggerOptions() *log.Options { return o.Log }

func newTestApp(opts *testOptions, ran *bool) *App {
	return NewApp("test", "a test app",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithSilence(),
		WithRunFunc(func() error {
			*ran = true
			return nil
		}),
	)
}

func TestAppFlagsAndEnv(t *testing.T) {
	t.Setenv("DENHUB_HTTP_TIMEOUT", "3s")
	t.Setenv("DENHUB_HTTP_ADDR", "0.0.0.0:1")
	t.Setenv("DENHUB_PATHS", "a,b")

	opts := &testOptions{Addr: "127.0.0.1:80", Timeout: time.Second, Log: log.NewOptions()}
	var ran bool
	a := newTestApp(opts, &ran)

	a.Command().SetArgs([]string{"--http.addr", "127.0.0.1:9000"})
	require.NoError(t, a.Command().Execute())

	assert.True(t, ran)
	assert.Equal(t, 1, opts.complete)
	// Command line wins over the environment.
	assert.Equal(t, "127.0.0.1:9000", opts.Addr)
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, []string{"a", "b"}, opts.Paths)
}

func TestAppRejectsArgs(t *testing.T) {
	var ran bool
	a := newTestApp(&testOptions{Log: log.NewOptions()}, &ran)

	a.Command().SetArgs([]string{"extra"})
	assert.Error(t, a.Command().Execute())
	assert.False(t, ran)
}

func TestAppValidationFails(t *testing.T) {
	var ran bool
	a := newTestApp(&testOptions{Log: log.NewOptions(), invalid: true}, &ran)

	a.Command().SetArgs([]string{})
	assert.EqualError(t, a.Command().Execute(), "invalid")
	assert.False(t, ran)
}

func TestAppSections(t *testing.T) {
	var ran bool
	a := newTestApp(&testOptions{Log: log.NewOptions()}, &ran)

	for _, name := range []string{"http.addr", "log.level", "help", "options"} {
		assert.NotNil(t, a.Command().Flags().Lookup(name), name)
	}
}

func TestAppOptionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: 10.0.0.1:8080\n  timeout: 5s\npaths: [x, y]\nlog:\n  level: debug\n"), 0o600))

	opts := &testOptions{Addr: "127.0.0.1:80", Timeout: time.Second, Log: log.NewOptions()}
	var ran bool
	a := newTestApp(opts, &ran)

	a.Command().SetArgs([]string{"--options", path, "--http.timeout", "7s"})
	require.NoError(t, a.Command().Execute())

	assert.Equal(t, "10.0.0.1:8080", opts.Addr)
	assert.Equal(t, 7*time.Second, opts.Timeout)
	assert.Equal(t, []string{"x", "y"}, opts.Paths)
	assert.Equal(t, "debug", opts.Log.Level)
}
