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

// Package notify implements the notification dispatch hook (spec.md §4.O):
// a pluggable Notifier interface with a log-only default and an exec-based
// notifier that shells out to a configured command, exactly as the
// `-M exec CMD` directive describes. SMTP mail delivery is explicitly out
// of scope (spec.md §1) and is not implemented here.
package notify

import (
	"fmt"
	"os/exec"

	"github.com/openebs/smart/logging"
)

// Event is the kind of condition being reported (spec.md §3 Event / §4.K).
type Event int

const (
	EventEmailTest Event = iota
	EventOpenFailed
	EventHealthFailed
	EventUsageFailedAttr
	EventAttributeChanged
	EventPendingCurrent
	EventOfflineUncCurrent
	EventTemperatureCritical
	EventTemperatureInfo
	EventTemperatureChanged
	EventSelfTestError
	EventAtaErrorCountIncreased
)

func (e Event) String() string {
	switch e {
	case EventOpenFailed:
		return "OpenFailed"
	case EventHealthFailed:
		return "HealthFailed"
	case EventUsageFailedAttr:
		return "UsageFailedAttr"
	case EventAttributeChanged:
		return "AttributeChanged"
	case EventPendingCurrent:
		return "PendingCurrent"
	case EventOfflineUncCurrent:
		return "OfflineUncCurrent"
	case EventTemperatureCritical:
		return "TemperatureCritical"
	case EventTemperatureInfo:
		return "TemperatureInfo"
	case EventTemperatureChanged:
		return "TemperatureChanged"
	case EventSelfTestError:
		return "SelfTestError"
	case EventAtaErrorCountIncreased:
		return "AtaErrorCountIncreased"
	case EventEmailTest:
		return "EmailTest"
	default:
		return "Unknown"
	}
}

// Critical reports whether an event warrants the CRIT log priority and the
// "critical" mailer severity (spec.md §7 "INFO or CRIT").
func (e Event) Critical() bool {
	switch e {
	case EventOpenFailed, EventHealthFailed, EventUsageFailedAttr,
		EventSelfTestError, EventAtaErrorCountIncreased, EventTemperatureCritical:
		return true
	default:
		return false
	}
}

// Notifier is the external collaborator the engine dispatches events
// through (spec.md §4.O "notifier(event, device, message) -> delivery_result").
type Notifier interface {
	Notify(event Event, dev string, msg string) error
}

// LogNotifier delegates to a logging.Logger, always available with zero
// configuration.
type LogNotifier struct {
	Log logging.Logger
}

func (n LogNotifier) Notify(event Event, dev string, msg string) error {
	priority := logging.Info
	if event.Critical() {
		priority = logging.Crit
	}
	n.Log.Log(priority, fmt.Sprintf("%s %s: %s", dev, event, msg))
	return nil
}

// ExecNotifier runs a configured external command for each event, passing
// the event through the environment the way the original's `-M exec`
// directive invokes its mailer script (spec.md §4.O). It does not attempt
// SMTP delivery itself.
type ExecNotifier struct {
	Command string
	Recipients []string
	// Run executes cmd and returns its error; overridable in tests.
	Run func(cmd *exec.Cmd) error
}

func NewExecNotifier(command string, recipients []string) *ExecNotifier {
	return &ExecNotifier{
		Command:    command,
		Recipients: recipients,
		Run:        func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

func (n *ExecNotifier) Notify(event Event, dev string, msg string) error {
	if n.Command == "" {
		return fmt.Errorf("notify: no exec command configured")
	}
	cmd := exec.Command(n.Command)
	cmd.Env = append(cmd.Env,
		"SMARTD_MAILER="+n.Command,
		"SMARTD_DEVICE="+dev,
		"SMARTD_MESSAGE="+msg,
		"SMARTD_FAILTYPE="+event.String(),
	)
	run := n.Run
	if run == nil {
		run = func(c *exec.Cmd) error { return c.Run() }
	}
	return run(cmd)
}

// Multi fans a single event out to several notifiers, continuing past
// individual failures and returning the first error encountered (if any),
// so a broken exec notifier never masks the log notifier's delivery.
type Multi []Notifier

func (m Multi) Notify(event Event, dev string, msg string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(event, dev, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
