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

// smartd is the daemon entrypoint: a cobra root command wiring spec.md
// §6's CLI flags onto daemon.Runner.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openebs/smart/config"
	"github.com/openebs/smart/daemon"
	"github.com/openebs/smart/ioctl"
	"github.com/openebs/smart/logging"
	"github.com/openebs/smart/notify"
)

const directiveHelp = `Device directives (one line per device in the config file):

  -d TYPE       transport hint: ata, scsi, sat[,12|16], usbcypress[,0xNN]
  -T permissive  tolerate unsupported commands rather than disabling them
  -o on|off      AUTOMATIC OFFLINE enable/disable
  -S on|off      ATTRIBUTE AUTOSAVE enable/disable
  -H             monitor overall health status
  -f / -p        monitor usage / prefail attributes
  -l error|selftest   monitor the named log
  -s REGEX       self-test schedule, POSIX ERE over kind/month/day/weekday/hour
  -W DIFF,INFO,CRIT   temperature thresholds
  -M once|daily|diminishing|test|exec CMD   notification frequency/delivery
  -i ID / -I ID  ignore an attribute's failure / its usage tracking
  -r ID[!] / -R ID[!]   print / track an attribute's raw value (! marks changes critical)
`

var opts struct {
	configPath  string
	debug       bool
	dumpHelp    bool
	interval    int
	pidFile     string
	quitMode    string
	traceSpec   string
	statePrefix string
	noFork      bool
}

func main() {
	root := &cobra.Command{
		Use:   "smartd",
		Short: "SMART disk health monitoring daemon",
		RunE:  run,
	}

	f := root.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "/etc/smartd.conf", "config FILE, or - for stdin")
	f.BoolVarP(&opts.debug, "debug", "d", false, "debug: run in foreground, log to stderr")
	f.BoolVarP(&opts.dumpHelp, "dump-directives", "D", false, "dump directive help and exit")
	f.IntVarP(&opts.interval, "interval", "i", 1800, "check interval in seconds (minimum 10)")
	f.StringVarP(&opts.pidFile, "pidfile", "p", "", "write daemon PID to FILE")
	f.StringVarP(&opts.quitMode, "quit", "q", "never", "exit policy: nodev, nodevstartup, never, onecheck, showtests, errors")
	f.StringVarP(&opts.traceSpec, "report", "r", "", "transport trace: ataioctl[,N] or scsiioctl[,N]")
	f.StringVarP(&opts.statePrefix, "state-prefix", "s", "", "state-file path prefix")
	f.BoolVarP(&opts.noFork, "no-fork", "n", false, "do not fork, run in this process")

	if err := root.Execute(); err != nil {
		if ce, ok := err.(cliError); ok {
			os.Exit(int(ce.code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(daemon.ExitBadCmdline))
	}
}

// cliError carries the exit code a command-line-level failure should
// produce (spec.md §6 exit code table), distinct from the ones daemon.Run
// itself returns once the main loop is underway.
type cliError struct {
	code daemon.ExitCode
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func run(cmd *cobra.Command, args []string) error {
	if opts.dumpHelp {
		fmt.Print(directiveHelp)
		return nil
	}

	if opts.interval < 10 {
		return cliError{code: daemon.ExitBadCmdline, err: fmt.Errorf("smartd: -i interval must be >= 10 seconds")}
	}

	quit, err := daemon.ParseQuitMode(opts.quitMode)
	if err != nil {
		return cliError{code: daemon.ExitBadCmdline, err: err}
	}

	if opts.pidFile != "" {
		if err := writePIDFile(opts.pidFile); err != nil {
			return cliError{code: daemon.ExitPidFileFail, err: err}
		}
		defer os.Remove(opts.pidFile)
	}

	log := logging.NewDefault(opts.debug)

	if ok, reason := ioctl.CapabilitiesCheck(); !ok {
		log.Log(logging.Info, fmt.Sprintf("smartd: running without raw device capabilities, some devices may fail to open: %s", reason))
	}

	notifier := notify.Multi{notify.LogNotifier{Log: log}}

	runner := daemon.NewRunner(daemon.Config{
		ConfigPath: opts.configPath,
		StateDir:   opts.statePrefix,
		Interval:   time.Duration(opts.interval) * time.Second,
		Debug:      opts.debug,
		Quit:       quit,
		ScanFunc:   config.ScanDevices,
	}, log, notifier)

	code := runner.Run()
	if code != daemon.ExitOK {
		return cliError{code: code, err: fmt.Errorf("smartd: exiting with code %d", code)}
	}
	return nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
