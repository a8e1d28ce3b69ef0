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

package monitor

import (
	"fmt"
	"time"

	"github.com/openebs/smart/atasmart"
	"github.com/openebs/smart/logging"
	"github.com/openebs/smart/schedule"
	"github.com/openebs/smart/scsismart"
	"github.com/openebs/smart/sense"
)

// selfTestSubCommand maps a schedule.TestKind to the EXECUTE OFFLINE
// IMMEDIATE sub-command that launches it (spec.md §4.G/§4.H).
func selfTestSubCommand(kind schedule.TestKind) (byte, bool) {
	switch kind {
	case schedule.KindLong:
		return atasmart.SelfTestExtended, true
	case schedule.KindShort:
		return atasmart.SelfTestShort, true
	case schedule.KindConveyance:
		return atasmart.SelfTestConveyance, true
	case schedule.KindOffline:
		return atasmart.SelfTestFull, true
	case schedule.KindNext, schedule.KindContinue, schedule.KindRedo:
		return atasmart.SelfTestSelective, true
	default:
		return 0, false
	}
}

// selectiveModeFor maps 'n'/'c'/'r' to the selective self-test mode the
// span log is written with before launch (spec.md §4.L).
func selectiveModeFor(kind schedule.TestKind) atasmart.SelectiveMode {
	switch kind {
	case schedule.KindNext:
		return atasmart.SelectiveNext
	case schedule.KindRedo:
		return atasmart.SelectiveRedo
	default:
		return atasmart.SelectiveCont
	}
}

// isSelfTestInProgress implements spec.md §4.L's in-progress gate: ATA's
// top nibble of self_test_exec_status == 0xF, or SCSI REQUEST SENSE with
// asc=0x04/ascq=0x09. The Samsung-3 firmware workaround forces the launch
// through regardless (original_source/sm5/smartd.cpp's known-firmware
// special case).
func isSelfTestInProgress(rt *DeviceRuntime, isATA bool) bool {
	if rt.Cfg.Firmware == "samsung3" {
		return false
	}
	if isATA {
		buf, err := atasmart.ReadLog(rt.Dev.Ata, 0x06)
		if err != nil {
			return false
		}
		statusByte := buf[2+1]
		return statusByte>>4 == 0xF
	}
	ds, err := scsismart.RequestSense(rt.Dev.Scsi)
	if err != nil || ds == nil {
		return false
	}
	return sense.IsSelfTestInProgress(ds)
}

// maybeLaunchSelfTest implements step 10 of spec.md §4.K plus §4.L: call
// the scheduler, and if a test is due and none is already running, write
// the selective span log (when applicable) and launch exactly one test.
func (e *Engine) maybeLaunchSelfTest(rt *DeviceRuntime, isATA bool) {
	if isSelfTestInProgress(rt, isATA) {
		return
	}

	nextCheck := time.Unix(int64(rt.State.ScheduledTestNextCheck), 0)
	kind, newNextCheck := schedule.NextTest(rt.SchedPattern, rt.SchedCaps, e.now(), nextCheck)
	if kind == 0 {
		return
	}

	rt.State.ScheduledTestNextCheck = uint64(newNextCheck.Unix())
	rt.MustWrite = true

	sub, ok := selfTestSubCommand(kind)
	if !ok {
		return
	}

	if !isATA {
		if err := scsismart.SendDiagnostic(rt.Dev.Scsi, sub); err != nil && e.Log != nil {
			e.Log.Log(logging.Info, fmt.Sprintf("%s: self-test launch failed: %v", rt.Cfg.Name, err))
		}
		return
	}

	if kind == schedule.KindNext || kind == schedule.KindContinue || kind == schedule.KindRedo {
		span := atasmart.SelectiveSpan{StartLBA: 0, EndLBA: 0}
		if err := atasmart.WriteSelectiveSpans(rt.Dev.Ata, []atasmart.SelectiveSpan{span}, selectiveModeFor(kind)); err != nil && e.Log != nil {
			e.Log.Log(logging.Info, fmt.Sprintf("%s: selective span log write failed: %v", rt.Cfg.Name, err))
			return
		}
	}

	if err := atasmart.ExecuteOfflineImmediate(rt.Dev.Ata, sub); err != nil {
		if e.Log != nil {
			e.Log.Log(logging.Info, fmt.Sprintf("%s: self-test launch failed: %v", rt.Cfg.Name, err))
		}
		return
	}

	// A successful launch invalidates the cached exec-status so the next
	// cycle re-reads the self-test log rather than trusting stale progress
	// (spec.md §4.L last bullet). This engine never caches exec-status
	// across calls, so there is nothing further to invalidate here.
}
