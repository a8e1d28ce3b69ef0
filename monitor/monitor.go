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

// Package monitor implements the monitoring engine (spec.md §4.K): the
// initial per-device scan, the per-cycle check pipeline, diff detection
// against persisted state, and the notification frequency policy.
// Grounded on original_source/sm5/smartd.cpp's CheckDevice/ATACheckDevice/
// SCSICheckDevice call sequence and the teacher's GetDiskInfo "gather
// struct, then branch on fields" shape.
package monitor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openebs/smart/atasmart"
	"github.com/openebs/smart/capdecode"
	"github.com/openebs/smart/config"
	"github.com/openebs/smart/device"
	"github.com/openebs/smart/logging"
	"github.com/openebs/smart/notify"
	"github.com/openebs/smart/schedule"
	"github.com/openebs/smart/scsismart"
	"github.com/openebs/smart/sense"
	"github.com/openebs/smart/state"
	"github.com/openebs/smart/utilities"
)

const tempMinUpdateDelay = 30 * time.Minute

// DeviceRuntime bundles everything the engine tracks for one configured
// device across its lifetime: the transport handle, its configuration, its
// persisted state, and the ephemeral (not persisted) bookkeeping
// spec.md §3.1 supplements onto TempDevState.
type DeviceRuntime struct {
	Dev       *device.SmartDevice
	Cfg       *config.DeviceConfig
	State     *state.PersistentDevState
	StatePath string

	MustWrite bool

	PowerSkipCount      int
	TempFirstObservedAt time.Time
	SchedPattern        *schedule.Pattern
	SchedCaps           schedule.Capabilities

	// Thresholds holds the SMART READ THRESHOLDS value per attribute ID,
	// populated once during the initial scan (spec.md §4.K step 2).
	Thresholds map[byte]byte

	// attrSlotOf maps a SMART attribute ID to its persisted slot index
	// (0..config.AttrSlots), assigned on first sight.
	attrSlotOf map[byte]int
}

// NewRuntime builds a DeviceRuntime ready for InitialScan.
func NewRuntime(dev *device.SmartDevice, cfg *config.DeviceConfig) *DeviceRuntime {
	return &DeviceRuntime{Dev: dev, Cfg: cfg, attrSlotOf: make(map[byte]int), Thresholds: make(map[byte]byte)}
}

func (rt *DeviceRuntime) slotFor(id byte) (int, bool) {
	if idx, ok := rt.attrSlotOf[id]; ok {
		return idx, true
	}
	if len(rt.attrSlotOf) >= config.AttrSlots {
		return 0, false
	}
	idx := len(rt.attrSlotOf)
	rt.attrSlotOf[id] = idx
	return idx, true
}

// Engine runs the initial scan and per-cycle check pipeline for a set of
// configured devices (spec.md §4.K).
type Engine struct {
	Log      logging.Logger
	Notify   notify.Notifier
	Now      func() time.Time
	StateDir string
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// dispatch applies the per-device notification frequency policy (spec.md
// §4.K "Notification dispatch") and forwards to the configured Notifier.
func (e *Engine) dispatch(rt *DeviceRuntime, ev notify.Event, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	idx := int(ev)
	if idx < 0 || idx >= config.NMailSlots {
		idx = 0
	}
	slot := &rt.State.Mail[idx]
	now := uint64(e.now().Unix())

	if ev != notify.EventEmailTest && suppressed(rt.Cfg.Mail, *slot, now) {
		return
	}

	if n := e.notifierFor(rt); n != nil {
		if err := n.Notify(ev, rt.Cfg.Name, msg); err != nil && e.Log != nil {
			e.Log.Log(logging.Crit, fmt.Sprintf("%s: notifier failed: %v", rt.Cfg.Name, err))
		}
	}

	if ev == notify.EventEmailTest {
		return // never persisted (spec.md §4.K)
	}

	if slot.Count == 0 {
		slot.FirstSentTime = now
	}
	slot.LastSentTime = now
	slot.Count++
	rt.State.Mail[idx] = *slot
	rt.MustWrite = true
}

// notifierFor selects the per-device "-M exec CMD" notifier when the
// device's config names one (spec.md §4.I), else falls back to the
// engine-wide default (typically a LogNotifier plus any global exec
// mailer configured on the command line).
func (e *Engine) notifierFor(rt *DeviceRuntime) notify.Notifier {
	if rt.Cfg.Mail.Exec != "" {
		return notify.Multi{notify.LogNotifier{Log: e.Log}, notify.NewExecNotifier(rt.Cfg.Mail.Exec, rt.Cfg.MailTo)}
	}
	return e.Notify
}

// suppressed implements the once/daily/diminishing frequency policy
// (spec.md §4.K, §8 invariant 7).
func suppressed(policy config.MailPolicy, slot state.MailSlot, now uint64) bool {
	if slot.Count == 0 {
		return false
	}
	switch {
	case policy.Once:
		return true
	case policy.Daily:
		return now < slot.LastSentTime+86400
	case policy.Diminishing:
		return now < slot.LastSentTime+(uint64(1)<<(slot.Count-1))*86400
	default:
		return false
	}
}

func normalizeIdentity(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// InitialScan runs the 5-step startup scan (spec.md §4.K) once per device,
// at daemon startup and again after every config reload.
func (e *Engine) InitialScan(rt *DeviceRuntime) error {
	// Step 1: open; on failure queue OpenFailed and continue.
	if err := rt.Dev.Open(); err != nil {
		rt.State = &state.PersistentDevState{}
		e.dispatch(rt, notify.EventOpenFailed, "open failed: %v", err)
		return err
	}

	var model, serial string
	var err error
	if rt.Dev.Kind == device.KindScsi {
		model, serial, err = e.initialScanSCSI(rt)
	} else {
		model, serial, err = e.initialScanATA(rt)
	}
	if err != nil {
		e.dispatch(rt, notify.EventOpenFailed, "initial scan failed: %v", err)
	}

	// Step 4: state-file path from vendor-normalized model+serial.
	rt.StatePath = state.FilePath(e.StateDir, normalizeIdentity(model), normalizeIdentity(serial))
	loaded, badLines, loadErr := loadOrInit(rt.StatePath)
	if loadErr != nil && e.Log != nil {
		e.Log.Log(logging.Info, fmt.Sprintf("%s: no usable state file, starting fresh: %v", rt.Cfg.Name, loadErr))
	}
	if badLines > 0 && e.Log != nil {
		e.Log.Log(logging.Info, fmt.Sprintf("%s: state file had %d malformed lines", rt.Cfg.Name, badLines))
	}
	rt.State = loaded

	// Step 5: arm the scheduler's low-water mark on first sight.
	if rt.Cfg.TestRegex != "" {
		pat, perr := schedule.Compile(rt.Cfg.TestRegex)
		if perr != nil {
			return perr
		}
		rt.SchedPattern = pat
		rt.SchedCaps = schedule.Capabilities{Scsi: rt.Dev.Kind == device.KindScsi}
		if rt.State.ScheduledTestNextCheck == 0 {
			rt.State.ScheduledTestNextCheck = uint64(e.now().Unix())
			rt.MustWrite = true
		}
	}

	return err
}

func loadOrInit(path string) (*state.PersistentDevState, int, error) {
	// A fresh device (or one whose state file vanished) simply starts from
	// a zeroed baseline; state.Load's "no good lines" error is expected on
	// first run and is not itself a scan failure.
	f, openErr := os.Open(path)
	if openErr != nil {
		return &state.PersistentDevState{}, 0, openErr
	}
	defer f.Close()
	st, bad, err := state.Load(f)
	if err != nil {
		return &state.PersistentDevState{}, bad, err
	}
	return st, bad, nil
}

// initialScanATA implements step 2 of spec.md §4.K.
func (e *Engine) initialScanATA(rt *DeviceRuntime) (model, serial string, err error) {
	id, err := atasmart.IdentifyDevice(rt.Dev.Ata, false)
	if err != nil {
		return "", "", err
	}
	model = string(id.GetModelNumber())
	serial = string(id.GetSerialNumber())

	if e.Log != nil {
		logSec, phySec := id.GetSectorSize()
		e.Log.Log(logging.Info, fmt.Sprintf("%s: identified as %s (fw %s, %s, %s, sector size %d/%d, transport %s)",
			rt.Cfg.Name, model, id.GetFirmwareRevision(), id.GetATAMajorVersion(), id.GetATAMinorVersion(), logSec, phySec, id.Transport()))
		if wwn := id.GetWWN(); wwn != "0 000000 000000000" {
			e.Log.Log(logging.Info, fmt.Sprintf("%s: WWN %s", rt.Cfg.Name, wwn))
		}
	}

	if cfgEnablesSmart(rt.Cfg) {
		if err := atasmart.Enable(rt.Dev.Ata); err != nil && e.Log != nil {
			e.Log.Log(logging.Info, fmt.Sprintf("%s: SMART ENABLE failed, continuing passively: %v", rt.Cfg.Name, err))
		}
	}
	if rt.Cfg.Autosave != nil {
		atasmart.Autosave(rt.Dev.Ata, *rt.Cfg.Autosave)
	}
	if rt.Cfg.AutoOffline != nil {
		atasmart.AutoOffline(rt.Dev.Ata, *rt.Cfg.AutoOffline)
	}

	if _, rerr := atasmart.ReadData(rt.Dev.Ata); rerr != nil {
		// READ DATA absence silently disables the -C/-U directives; the
		// other attribute checks return early on each cycle whose READ DATA
		// fails (spec.md §4.K step 2, §7 BadOpcode/BadField recovery).
		rt.Cfg.PendingSet = false
		rt.Cfg.OfflineUncSet = false
		return model, serial, nil
	}
	if thresh, terr := atasmart.ReadThresholds(rt.Dev.Ata); terr == nil {
		for off := 2; off+12 <= len(thresh); off += 12 {
			if thresh[off] == 0 {
				break
			}
			rt.Thresholds[thresh[off]] = thresh[off+1]
		}
	}

	if _, perr := atasmart.CheckPowerMode(rt.Dev.Ata); perr != nil {
		rt.Cfg.SkipPower.Mode = ""
	}

	return model, serial, nil
}

func cfgEnablesSmart(cfg *config.DeviceConfig) bool {
	return cfg.HealthCheck || cfg.UsageFailure || cfg.PendingSet || cfg.OfflineUncSet || cfg.TempSet
}

// initialScanSCSI implements step 3 of spec.md §4.K.
func (e *Engine) initialScanSCSI(rt *DeviceRuntime) (model, serial string, err error) {
	if _, terr := scsismart.TestUnitReady(rt.Dev.Scsi); terr != nil {
		if kind, ok := device.KindOf(terr); ok && kind == device.ErrSenseCheckCondition {
			return "", "", terr
		}
	}

	inq, ierr := scsismart.Inquiry(rt.Dev.Scsi)
	if ierr != nil {
		return "", "", ierr
	}
	model = inq.String()

	if vpd, verr := scsismart.InquiryVPD(rt.Dev.Scsi, 0x80); verr == nil && len(vpd) > 4 {
		serial = strings.TrimSpace(string(vpd[4:]))
	}

	if cap, cerr := scsismart.ReadCapacity(rt.Dev.Scsi, false); cerr == nil && e.Log != nil {
		e.Log.Log(logging.Info, fmt.Sprintf("%s: user capacity %s (%d bytes)",
			rt.Cfg.Name, utilities.ConvertBytes(cap.Bytes), cap.Bytes))
	}

	// FETCH IEC MODE PAGE: absence of informational exceptions just means
	// health monitoring degrades to passive reporting, not a hard failure.
	if _, merr := scsismart.ModeSense6(rt.Dev.Scsi, 0x1c, 0, 0); merr != nil {
		rt.Cfg.HealthCheck = false
	}

	scsismart.LogSense(rt.Dev.Scsi, 0x00, 0, 0)

	return model, serial, nil
}

// CheckOnce runs the 11-step per-cycle pipeline (spec.md §4.K "Per-cycle
// check") for one device. allowSelfTests gates step 10 (spec.md §4.M
// "check_all_devices(allow_selftests = not first_pass or quit_mode == 3)");
// the first pass of a daemon's life never launches a new self-test.
func (e *Engine) CheckOnce(rt *DeviceRuntime, allowSelfTests bool) error {
	// Step 1.
	if rt.Cfg.Mail.Test {
		e.dispatch(rt, notify.EventEmailTest, "test email from %s", rt.Cfg.Name)
	}

	// Step 2.
	if err := rt.Dev.Open(); err != nil {
		e.dispatch(rt, notify.EventOpenFailed, "open failed: %v", err)
		return err
	}

	// Step 3: power-mode skip gate.
	if rt.Cfg.SkipPower.Mode != "" && rt.Cfg.SkipPower.Mode != "never" {
		if e.shouldSkipForPower(rt) {
			return nil
		}
	}

	isATA := rt.Dev.Kind != device.KindScsi

	// Step 4.
	if rt.Cfg.HealthCheck {
		e.checkHealth(rt, isATA)
	}

	// Step 5 + 6.
	if isATA && (rt.Cfg.Prefail || rt.Cfg.Usage || rt.Cfg.PendingSet || rt.Cfg.OfflineUncSet) {
		e.checkAttributes(rt)
	}

	// Step 7.
	if rt.Cfg.TempSet {
		e.checkTemperature(rt)
	}

	// Step 8.
	if isATA && rt.Cfg.Logs.SelfTest {
		e.checkSelfTestLog(rt)
	}

	// Step 9.
	if isATA && rt.Cfg.Logs.Error {
		e.checkAtaErrorLog(rt)
	}

	// Step 10.
	if allowSelfTests && rt.SchedPattern != nil {
		e.maybeLaunchSelfTest(rt, isATA)
	}

	// Step 11: persistence is left to the caller (daemon flush cycle), which
	// checks rt.MustWrite.
	return nil
}

func (e *Engine) shouldSkipForPower(rt *DeviceRuntime) bool {
	first, err := atasmart.CheckPowerMode(rt.Dev.Ata)
	if err != nil {
		return false
	}
	time.Sleep(5 * time.Second)
	second, err := atasmart.CheckPowerMode(rt.Dev.Ata)
	if err != nil {
		second = first
	}
	idle := second == atasmart.PowerStandby || second == atasmart.PowerIdle || second == atasmart.PowerSleep
	if !idle {
		rt.PowerSkipCount = 0
		return false
	}
	rt.PowerSkipCount++
	if rt.PowerSkipCount >= rt.Cfg.SkipPower.PowerSkipMax {
		rt.PowerSkipCount = 0
		return false
	}
	if !rt.Cfg.SkipPower.Quiet && e.Log != nil {
		e.Log.Log(logging.Info, fmt.Sprintf("%s: skipping cycle, device is idle", rt.Cfg.Name))
	}
	return true
}

func (e *Engine) checkHealth(rt *DeviceRuntime, isATA bool) {
	if isATA {
		status, err := atasmart.ReturnStatus(rt.Dev.Ata)
		if err != nil {
			return
		}
		if status == atasmart.StatusFailing {
			e.dispatch(rt, notify.EventHealthFailed, "SMART overall health self-assessment: FAILING")
			rt.MustWrite = true
		}
		return
	}
	ds, err := scsismart.RequestSense(rt.Dev.Scsi)
	if err != nil {
		return
	}
	if sense.SimpleFilter(ds) == sense.MediumOrHardware {
		e.dispatch(rt, notify.EventHealthFailed, "SCSI health check reported a hardware/medium error")
		rt.MustWrite = true
	}
}

func (e *Engine) checkAttributes(rt *DeviceRuntime) {
	buf, err := atasmart.ReadData(rt.Dev.Ata)
	if err != nil {
		return
	}
	for id := byte(1); id != 0; id++ {
		flags := rt.Cfg.Attrs[id]
		entryOff := findAttrEntry(buf, id)
		if entryOff < 0 {
			if id == rt.Cfg.PendingID && rt.Cfg.PendingSet {
				rt.Cfg.PendingSet = false // §8 invariant 6: silently disable
			}
			if id == rt.Cfg.OfflineUncID && rt.Cfg.OfflineUncSet {
				rt.Cfg.OfflineUncSet = false
			}
			continue
		}
		// entry layout (spec.md §4.G): id, flags(2, LE), value, worst, raw(6), reserved.
		entry := buf[entryOff : entryOff+12]

		slotIdx, ok := rt.slotFor(id)
		if !ok {
			continue
		}
		prevSlot := rt.State.Attrs[slotIdx]
		var prevRaw [6]byte
		for i := 0; i < 6; i++ {
			prevRaw[i] = byte(prevSlot.Raw >> (8 * i))
		}
		prevEntry := make([]byte, 9)
		prevEntry[2] = prevSlot.Value
		copy(prevEntry[3:], prevRaw[:])

		newEntry := make([]byte, 9)
		newEntry[1] = entry[1] // flags low byte: bit0 = prefail warranty
		newEntry[2] = entry[3] // normalized value
		copy(newEntry[3:], entry[5:11])

		cmp := capdecode.CompareAttribute(id, prevEntry, newEntry)

		if !flags.IgnoreFailure && cmp.Prefail {
			if threshold, ok := rt.Thresholds[id]; ok && cmp.NormalizedNew <= threshold {
				e.dispatch(rt, notify.EventUsageFailedAttr, "attribute %d failed: %d <= threshold %d", id, cmp.NormalizedNew, threshold)
			}
		}
		if cmp.NormalizedNew != cmp.NormalizedOld && prevSlot.ID != 0 {
			e.dispatch(rt, notify.EventAttributeChanged, "attribute %d changed: %d -> %d", id, cmp.NormalizedOld, cmp.NormalizedNew)
		}
		if flags.Raw.CriticalOnChange && cmp.RawChanged && cmp.NormalizedNew == cmp.NormalizedOld && prevSlot.ID != 0 {
			e.dispatch(rt, notify.EventUsageFailedAttr, "attribute %d raw value changed (critical): %d", id, cmp.RawNew)
		}

		if id == rt.Cfg.PendingID && rt.Cfg.PendingSet {
			raw := cmp.RawNew
			prevRawVal := prevSlot.Raw
			if raw > 0 && (!rt.Cfg.PendingIncOnly || raw > prevRawVal) {
				e.dispatch(rt, notify.EventPendingCurrent, "attribute %d pending-sector count: %d", id, raw)
			}
		}
		if id == rt.Cfg.OfflineUncID && rt.Cfg.OfflineUncSet {
			raw := cmp.RawNew
			prevRawVal := prevSlot.Raw
			if raw > 0 && (!rt.Cfg.OfflineUncIncOnly || raw > prevRawVal) {
				e.dispatch(rt, notify.EventOfflineUncCurrent, "attribute %d offline-uncorrectable count: %d", id, raw)
			}
		}

		rt.State.Attrs[slotIdx] = state.AttrSlot{ID: id, Value: cmp.NormalizedNew, Raw: cmp.RawNew}
		if cmp.NormalizedNew != cmp.NormalizedOld || (flags.Raw.Track && cmp.RawChanged) {
			rt.MustWrite = true
		}
	}
}

// findAttrEntry locates the 12-byte SMART attribute entry for id within a
// 512-byte READ DATA buffer (offset 2 is the first entry; id==0 terminates
// the table early in a well-formed response).
func findAttrEntry(buf []byte, id byte) int {
	for off := 2; off+12 <= len(buf); off += 12 {
		if buf[off] == id {
			return off
		}
		if buf[off] == 0 {
			break
		}
	}
	return -1
}

func (e *Engine) checkTemperature(rt *DeviceRuntime) {
	buf, err := atasmart.ReadData(rt.Dev.Ata)
	if err != nil {
		return
	}
	off := findAttrEntry(buf, 194)
	if off < 0 {
		return
	}
	current := int(buf[off+3])
	now := e.now()

	if rt.TempFirstObservedAt.IsZero() {
		rt.TempFirstObservedAt = now
	}
	withinSpinupWindow := now.Sub(rt.TempFirstObservedAt) < tempMinUpdateDelay

	if !withinSpinupWindow {
		if rt.State.TemperatureMin == 0 || uint64(current) < rt.State.TemperatureMin {
			rt.State.TemperatureMin = uint64(current)
			rt.MustWrite = true
		}
		if uint64(current) > rt.State.TemperatureMax {
			rt.State.TemperatureMax = uint64(current)
			rt.MustWrite = true
		}
	}

	if rt.Cfg.TempCrit > 0 && current >= rt.Cfg.TempCrit {
		e.dispatch(rt, notify.EventTemperatureCritical, "temperature %dC at or above critical threshold %dC", current, rt.Cfg.TempCrit)
	} else if rt.Cfg.TempInfo > 0 && current >= rt.Cfg.TempInfo {
		e.dispatch(rt, notify.EventTemperatureInfo, "temperature %dC at or above info threshold %dC", current, rt.Cfg.TempInfo)
	}
}

func (e *Engine) checkSelfTestLog(rt *DeviceRuntime) {
	buf, err := atasmart.ReadLog(rt.Dev.Ata, 0x06)
	if err != nil {
		return
	}
	count := int(buf[508])
	if count == 0 {
		return
	}
	entry := capdecode.DecodeSelfTestLogEntry(buf[2 : 2+20])
	if uint64(count) > rt.State.SelfTestErrors || uint64(entry.TimestampHours) != rt.State.SelfTestLastErrHour {
		e.dispatch(rt, notify.EventSelfTestError, "self-test log entry: result=%v hour=%d", entry.Result, entry.TimestampHours)
		rt.State.SelfTestErrors = uint64(count)
		rt.State.SelfTestLastErrHour = uint64(entry.TimestampHours)
		rt.MustWrite = true
	}
}

func (e *Engine) checkAtaErrorLog(rt *DeviceRuntime) {
	buf, err := atasmart.ReadLog(rt.Dev.Ata, 0x01)
	if err != nil {
		return
	}
	count := uint64(buf[452])
	if count > rt.State.AtaErrorCount {
		e.dispatch(rt, notify.EventAtaErrorCountIncreased, "ATA error count increased to %d", count)
		rt.State.AtaErrorCount = count
		rt.MustWrite = true
	}
}
