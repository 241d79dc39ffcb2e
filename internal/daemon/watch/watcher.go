package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/log"
)

// DefaultDebounce groups the bursts of events editors produce on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the device configuration file when it changes and calls
// OnChange when the identity the daemon connects with differs.
type Watcher struct {
	path     string
	current  *device.Config
	onChange func(old, updated *device.Config)
	logger   log.Logger

	// Debounce is the quiet period after the last event before reloading.
	Debounce time.Duration
}

// NewWatcher watches the file the configuration was loaded from.
func NewWatcher(current *device.Config, onChange func(old, updated *device.Config), logger log.Logger) *Watcher {
	return &Watcher{
		path:     current.File,
		current:  current,
		onChange: onChange,
		logger:   logger,
		Debounce: DefaultDebounce,
	}
}

// IdentityChanged reports whether a restart is needed to apply updated.
func IdentityChanged(old, updated *device.Config) bool {
	return old.DeviceToken != updated.DeviceToken || old.ServerHost != updated.ServerHost
}

// Start watches until ctx is done. The parent directory is watched so that
// files replaced by rename are followed.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	path, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return err
	}
	w.logger.Info("Watching configuration", "file", path)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			reload = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Configuration watcher error", "err", err)
		case <-reload:
			reload = nil
			w.reload(path)
		}
	}
}

func (w *Watcher) reload(path string) {
	updated, err := device.LoadConfig(path)
	if err != nil {
		w.logger.Warn("Ignoring unreadable configuration", "file", path, "err", err)
		return
	}
	if !IdentityChanged(w.current, updated) {
		w.logger.Debug("Configuration changed without identity change", "file", path)
		return
	}

	old := w.current
	w.current = updated
	w.logger.Info("Configuration identity changed", "file", path)
	w.onChange(old, updated)
}
