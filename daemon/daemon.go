/*
Copyright 2018 The OpenEBS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package daemon

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/openebs/smart/config"
	"github.com/openebs/smart/logging"
	"github.com/openebs/smart/monitor"
	"github.com/openebs/smart/notify"
	"github.com/openebs/smart/state"
)

// nopCloser lets openConfigSource hand back an io.ReadCloser for stdin
// without ever closing the process's actual stdin handle.
type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

// openConfigSource implements the -c FILE|- flag (spec.md §6): "-" reads
// the configuration from stdin.
func openConfigSource(path string) (io.ReadCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdin}, nil
	}
	return os.Open(path)
}

// ExitCode mirrors spec.md §6's exit code table.
type ExitCode int

const (
	ExitOK                   ExitCode = 0
	ExitBadCmdline           ExitCode = 1
	ExitBadConfigSyntax      ExitCode = 2
	ExitStartupForkFail      ExitCode = 3
	ExitPidFileFail          ExitCode = 4
	ExitConfigMissing        ExitCode = 5
	ExitConfigUnreadable     ExitCode = 6
	ExitOutOfMemory          ExitCode = 8
	ExitInternalBug          ExitCode = 10
	ExitMonitoredDeviceFail  ExitCode = 16
	ExitNoMonitoredDevices   ExitCode = 17
	ExitTerminatedBySignal   ExitCode = 254
)

// QuitMode is the -q flag's exit policy (spec.md §6).
type QuitMode int

const (
	QuitNever QuitMode = iota
	QuitNodev
	QuitNodevStartup
	QuitOnecheck
	QuitShowtests
	QuitErrors
)

// ParseQuitMode maps the -q flag's string value to a QuitMode.
func ParseQuitMode(s string) (QuitMode, error) {
	switch s {
	case "never":
		return QuitNever, nil
	case "nodev":
		return QuitNodev, nil
	case "nodevstartup":
		return QuitNodevStartup, nil
	case "onecheck":
		return QuitOnecheck, nil
	case "showtests":
		return QuitShowtests, nil
	case "errors":
		return QuitErrors, nil
	default:
		return 0, fmt.Errorf("daemon: unrecognized -q mode %q", s)
	}
}

// Config bundles the inputs gathered from CLI flags (spec.md §6) that the
// Runner needs beyond the parsed device entries themselves.
type Config struct {
	ConfigPath string
	StateDir   string
	Interval   time.Duration
	Debug      bool
	Quit       QuitMode
	ScanFunc   func() ([]string, error)
}

// Runner owns the monitoring engine, the live device set, and the signal-
// driven reload/exit flags that implement spec.md §4.M's main loop.
type Runner struct {
	cfg    Config
	log    logging.Logger
	engine *monitor.Engine

	runtimes []*monitor.DeviceRuntime

	caughtHUP  atomic.Bool
	caughtUSR1 atomic.Bool
	caughtExit atomic.Int32 // 0 = none, else the signal number that requested exit

	// wake interrupts a pending sleepUntilNext wait; buffered so a signal
	// arriving with nobody sleeping yet is never lost.
	wake chan struct{}
}

// NewRunner constructs a Runner. notifier is typically notify.Multi wrapping
// a notify.LogNotifier and, if configured, a notify.ExecNotifier.
func NewRunner(cfg Config, log logging.Logger, notifier notify.Notifier) *Runner {
	return &Runner{
		cfg:  cfg,
		log:  log,
		wake: make(chan struct{}, 1),
		engine: &monitor.Engine{
			Log:      log,
			Notify:   notifier,
			StateDir: cfg.StateDir,
		},
	}
}

// installSignalHandlers arms the sticky-flag signal handlers spec.md §4.M
// and §5 describe: handlers only set flags, all action happens on the main
// loop's next iteration.
func (r *Runner) installSignalHandlers() chan os.Signal {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGHUP:
				r.caughtHUP.Store(true)
			case syscall.SIGUSR1:
				r.caughtUSR1.Store(true)
			default:
				r.caughtExit.Store(int32(sig.(syscall.Signal)))
			}
			select {
			case r.wake <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}

// reloadError carries the exit code a first-pass reload failure should
// produce (spec.md §6): 5/6 for an unreadable config file, 2 for a syntax
// error. A reload triggered by SIGHUP rather than startup ignores Code and
// simply keeps running on the previous configuration (spec.md §7).
type reloadError struct {
	Code ExitCode
	Err  error
}

func (e *reloadError) Error() string { return e.Err.Error() }

// reload re-parses the configuration and rebuilds the device runtime set.
// On failure it logs and keeps the previous configuration running (spec.md
// §7 "a parser error on HUP preserves the previous configuration"); the
// caller decides whether a first-pass failure is fatal.
func (r *Runner) reload() error {
	f, err := openConfigSource(r.cfg.ConfigPath)
	if err != nil {
		r.log.Log(logging.Crit, fmt.Sprintf("daemon: config open failed, keeping previous configuration: %v", err))
		code := ExitConfigUnreadable
		if os.IsNotExist(err) {
			code = ExitConfigMissing
		}
		return &reloadError{Code: code, Err: err}
	}
	defer f.Close()

	entries, err := config.Parse(f, r.cfg.ScanFunc)
	if err != nil {
		r.log.Log(logging.Crit, fmt.Sprintf("daemon: config parse failed, keeping previous configuration: %v", err))
		return &reloadError{Code: ExitBadConfigSyntax, Err: err}
	}

	r.flushStates()

	runtimes := make([]*monitor.DeviceRuntime, 0, len(entries))
	for _, cfg := range entries {
		dev, err := buildDevice(cfg)
		if err != nil {
			r.log.Log(logging.Crit, fmt.Sprintf("daemon: %s: %v", cfg.Name, err))
			continue
		}
		rt := monitor.NewRuntime(dev, cfg)
		if err := r.engine.InitialScan(rt); err != nil {
			r.log.Log(logging.Info, fmt.Sprintf("daemon: %s: initial scan error: %v", cfg.Name, err))
		}
		runtimes = append(runtimes, rt)
	}
	r.runtimes = runtimes
	return nil
}

// flushStates persists every runtime whose state has changed since the
// last save (spec.md §4.M "flush_states").
func (r *Runner) flushStates(writeAlways ...bool) {
	always := len(writeAlways) > 0 && writeAlways[0]
	for _, rt := range r.runtimes {
		if !rt.MustWrite && !always {
			continue
		}
		if rt.StatePath == "" {
			continue
		}
		if err := state.Save(rt.StatePath, rt.State); err != nil {
			r.log.Log(logging.Crit, fmt.Sprintf("daemon: %s: state save failed: %v", rt.Cfg.Name, err))
			continue
		}
		rt.MustWrite = false
	}
}

// checkAll runs one check cycle across every registered device (spec.md
// §4.M "check_all_devices"), optionally gating self-test launches on the
// allowSelfTests flag (false on the very first pass, spec.md §4.K step 10).
func (r *Runner) checkAll(allowSelfTests bool) (failures int) {
	for _, rt := range r.runtimes {
		if !rt.Dev.IsOpen() {
			if err := rt.Dev.Open(); err != nil {
				r.log.Log(logging.Crit, fmt.Sprintf("daemon: %s: reopen failed: %v", rt.Cfg.Name, err))
				failures++
				continue
			}
		}
		if err := r.engine.CheckOnce(rt, allowSelfTests); err != nil {
			failures++
		}
	}
	return failures
}

// sleepUntilNext implements spec.md §5's sleep suspension point together
// with §4.M's backward-clock-jump clamp: if wall clock has jumped
// backward by more than one interval since wakeup was armed, the next
// wakeup resets to now+interval and a warning is logged, instead of
// sleeping for however long the stale deadline implies. The wait is cut
// short by any signal that installSignalHandlers observes, so USR1's
// "force immediate check" and a pending HUP/exit are acted on right away
// rather than at the end of the current interval.
func (r *Runner) sleepUntilNext(wakeup time.Time) time.Time {
	now := time.Now()
	if wakeup.After(now.Add(r.cfg.Interval)) {
		r.log.Log(logging.Info, "daemon: wall clock jumped backward, resetting wakeup time")
		wakeup = now.Add(r.cfg.Interval)
	}

	next := wakeup.Add(r.cfg.Interval)
	d := wakeup.Sub(now)
	if d < 0 {
		d = 0
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.wake:
	}
	return next
}

// Run executes spec.md §4.M's main loop until a terminating signal arrives
// or, under -q onecheck, after the first cycle completes. It returns the
// ExitCode the process should exit with.
func (r *Runner) Run() ExitCode {
	firstPass := true
	wakeup := time.Now()

	for {
		if sig := r.caughtExit.Load(); sig != 0 {
			r.flushStates(true)
			if syscall.Signal(sig) == syscall.SIGTERM || syscall.Signal(sig) == syscall.SIGQUIT || syscall.Signal(sig) == syscall.SIGINT {
				return ExitOK
			}
			return ExitTerminatedBySignal
		}

		hup := r.caughtHUP.Swap(false)
		if firstPass || hup {
			if err := r.reload(); err != nil && firstPass {
				if re, ok := err.(*reloadError); ok {
					return re.Code
				}
				return ExitBadConfigSyntax
			}
		}

		if len(r.runtimes) == 0 {
			switch r.cfg.Quit {
			case QuitNodevStartup:
				if firstPass {
					return ExitNoMonitoredDevices
				}
			case QuitNodev:
				return ExitNoMonitoredDevices
			}
		}

		r.caughtUSR1.Store(false)
		failures := r.checkAll(!firstPass)
		if failures > 0 && r.cfg.Quit == QuitErrors {
			return ExitMonitoredDeviceFail
		}

		if r.cfg.StateDir != "" {
			r.flushStates(hup)
		}

		if firstPass && r.cfg.Quit == QuitOnecheck {
			r.flushStates(true)
			return ExitOK
		}

		if firstPass {
			r.installSignalHandlers()
		}
		firstPass = false

		wakeup = r.sleepUntilNext(wakeup)
	}
}
