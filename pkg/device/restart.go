package device

import (
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/denhub/pkg/log"
)

// DefaultSettleDelay is the time between spawning the replacement and exiting.
const DefaultSettleDelay = 500 * time.Millisecond

// Restarter replaces the running process with a fresh copy of itself.
type Restarter struct {
	// Delay is the wait before the replacement is spawned.
	Delay time.Duration

	// SettleDelay is the wait between spawning and exiting.
	SettleDelay time.Duration

	// Spawn starts the replacement process.
	Spawn func() error

	// Exit terminates the current process.
	Exit func(code int)

	logger  log.Logger
	pending atomic.Bool
}

// NewRestarter returns a restarter that re-executes the current binary.
func NewRestarter(delay time.Duration, logger log.Logger) *Restarter {
	return &Restarter{
		Delay:       delay,
		SettleDelay: DefaultSettleDelay,
		Spawn:       SpawnSelf,
		Exit:        os.Exit,
		logger:      logger.Local(),
	}
}

// Pending reports whether a restart is scheduled.
func (r *Restarter) Pending() bool {
	return r.pending.Load()
}

// Restart schedules the replacement. Calling it again while a restart is
// pending returns ErrRestartPending and does nothing.
func (r *Restarter) Restart() error {
	if !r.pending.CompareAndSwap(false, true) {
		return ErrRestartPending
	}

	pid := os.Getpid()
	r.logger.Info("The daemon will be restart soon", "delay", r.Delay, "cancel", fmt.Sprintf("kill -9 %d", pid))

	time.AfterFunc(r.Delay, r.replace)
	return nil
}

func (r *Restarter) replace() {
	r.logger.Info("Restarting...")

	if err := r.Spawn(); err != nil {
		r.logger.Error(err, "Could not restart myself")
		r.pending.Store(false)
		return
	}

	time.AfterFunc(r.SettleDelay, func() { r.Exit(0) })
}

// SpawnSelf starts a detached copy of the current process with the same
// arguments, environment, working directory and standard streams.
func SpawnSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = os.Environ()
	if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
