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

// Package config parses the smartd.conf-style device directive grammar
// (spec.md §4.I) into DeviceConfig records, and expands the DEVICESCAN
// sentinel by enumerating block devices. Grounded on the teacher's
// smartinfo.ScanDevices (device enumeration) and original_source's
// smartd.conf grammar (directive set, DEVICESCAN, -a shorthand).
package config

import (
	"fmt"
)

// NMailSlots bounds the persisted mail.<i>.* slots (spec.md §4.J).
const NMailSlots = 13

// AttrSlots bounds the persisted ata-smart-attribute.<j>.* slots.
const AttrSlots = 30

// LogMonitor enumerates which logs -l watches.
type LogMonitor struct {
	Error    bool
	SelfTest bool
}

// MailPolicy is the -M notification policy.
type MailPolicy struct {
	Once        bool
	Daily       bool
	Diminishing bool
	Test        bool
	Exec        string // non-empty selects "exec CMD"
}

// RawTracking selects per-attribute raw-value tracking/printing (-r/-R).
type RawTracking struct {
	Print            bool
	Track            bool
	CriticalOnChange bool
}

// AttributeFlags holds the per-attribute-ID directives (-i/-I/-r/-R/-v),
// indexed by SMART attribute ID (spec.md §3).
type AttributeFlags struct {
	IgnoreFailure bool
	IgnoreTrack   bool
	Raw           RawTracking
	DisplayFormat string // from -v N,FORMAT
}

// SkipPowerPolicy is the -n skip-if-low-power directive.
type SkipPowerPolicy struct {
	Mode          string // "never", "sleep", "standby", "idle"
	PowerSkipMax  int
	Quiet         bool
}

// DeviceConfig is the parsed, per-device directive set (spec.md §3/§4.I).
type DeviceConfig struct {
	Name       string
	DevType    string
	Removable  bool
	Permissive bool

	AutoOffline  *bool
	Autosave     *bool
	HealthCheck  bool
	UsageFailure bool
	Logs         LogMonitor
	TestRegex    string

	MailTo     []string
	Mail       MailPolicy
	Prefail    bool
	Usage      bool

	Attrs [256]AttributeFlags

	PendingID      byte
	PendingSet     bool
	PendingIncOnly bool
	OfflineUncID      byte
	OfflineUncSet     bool
	OfflineUncIncOnly bool

	TempDiff     int
	TempInfo     int
	TempCrit     int
	TempSet      bool

	SkipPower SkipPowerPolicy

	Firmware string // "none", "samsung", "samsung2", "samsung3"
	Preset   string // "use", "ignore", "show", "showall"

	// ReportTransport carries the -d transport hint (e.g. "sat", "usbcypress,0x24")
	// through to device construction (spec.md's domain-stack expansion).
	ReportTransport string
}

// applyA applies the -a shorthand (spec.md §4.I): -H -f -t -l error -l selftest -C 197 -U 198.
func (c *DeviceConfig) applyA() {
	c.HealthCheck = true
	c.UsageFailure = true
	c.Prefail = true
	c.Usage = true
	c.Logs.Error = true
	c.Logs.SelfTest = true
	c.PendingID, c.PendingSet = 197, true
	c.OfflineUncID, c.OfflineUncSet = 198, true
}

// hasMonitoring reports whether any monitoring directive has been set,
// for the implicit-"-a" post-parse check (spec.md §4.I (i)).
func (c *DeviceConfig) hasMonitoring() bool {
	return c.HealthCheck || c.UsageFailure || c.Logs.Error || c.Logs.SelfTest ||
		c.PendingSet || c.OfflineUncSet || c.TestRegex != "" || c.TempSet
}

// sanityCheck applies spec.md §4.I's post-parse rules.
func (c *DeviceConfig) sanityCheck() error {
	if !c.hasMonitoring() {
		c.applyA()
	}
	if (c.Mail.Once || c.Mail.Daily || c.Mail.Diminishing || c.Mail.Test || c.Mail.Exec != "") && len(c.MailTo) == 0 {
		return fmt.Errorf("config: device %s: -M given without -m", c.Name)
	}
	for _, addr := range c.MailTo {
		if addr == "<nomailer>" && c.Mail.Exec == "" {
			return fmt.Errorf("config: device %s: <nomailer> requires -M exec", c.Name)
		}
	}
	return nil
}
