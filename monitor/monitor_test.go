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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/smart/config"
	"github.com/openebs/smart/device"
	"github.com/openebs/smart/notify"
	"github.com/openebs/smart/state"
)

// fakeAta is a scripted device.AtaDevice, mirroring atasmart's own test
// fake (atasmart/commands_test.go) but addressable from this package.
type fakeAta struct {
	calls  int
	onCall func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error)
}

func (f *fakeAta) Open() error      { return nil }
func (f *fakeAta) Close() error     { return nil }
func (f *fakeAta) LastError() error { return nil }

func (f *fakeAta) AtaPassThrough(in device.AtaCmdIn) (device.AtaCmdOut, error) {
	f.calls++
	return f.onCall(f.calls, in)
}

// fakeScsi is a scripted device.ScsiDevice, mirroring scsismart's own test
// fake (scsismart/sat_test.go).
type fakeScsi struct {
	calls  int
	onCall func(call int, in device.ScsiCmdIn) (device.ScsiCmdOut, error)
}

func (f *fakeScsi) Open() error      { return nil }
func (f *fakeScsi) Close() error     { return nil }
func (f *fakeScsi) LastError() error { return nil }

func (f *fakeScsi) ScsiPassThrough(in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
	f.calls++
	return f.onCall(f.calls, in)
}

// recordingNotifier captures every dispatched event for assertions.
type recordingNotifier struct {
	events []notify.Event
	msgs   []string
}

func (r *recordingNotifier) Notify(event notify.Event, dev string, msg string) error {
	r.events = append(r.events, event)
	r.msgs = append(r.msgs, msg)
	return nil
}

func newRuntime(kind device.Kind) (*DeviceRuntime, *fakeAta, *fakeScsi) {
	ata := &fakeAta{}
	scsi := &fakeScsi{}
	dev := &device.SmartDevice{Kind: kind}
	if kind == device.KindScsi {
		dev.Scsi = scsi
	} else {
		dev.Ata = ata
	}
	rt := NewRuntime(dev, &config.DeviceConfig{Name: "testdev"})
	rt.State = &state.PersistentDevState{}
	return rt, ata, scsi
}

func fixedEngine(notifier notify.Notifier, now time.Time) *Engine {
	return &Engine{Notify: notifier, Now: func() time.Time { return now }}
}

func attrEntryBytes(id, flagsLo, value byte, raw uint64) []byte {
	e := make([]byte, 12)
	e[0] = id
	e[1] = flagsLo
	e[3] = value
	e[4] = value // worst; unused by the engine
	for i := 0; i < 6; i++ {
		e[5+i] = byte(raw >> (8 * i))
	}
	return e
}

func buildReadDataBuf(entries ...[]byte) []byte {
	buf := make([]byte, 512)
	off := 2
	for _, e := range entries {
		copy(buf[off:], e)
		off += 12
	}
	return buf
}

func fixedSense(key, asc, ascq byte) []byte {
	b := make([]byte, 18)
	b[0] = 0x70
	b[2] = key
	b[7] = 10
	b[12] = asc
	b[13] = ascq
	return b
}

func TestSuppressedFrequencyPolicy(t *testing.T) {
	assert.False(t, suppressed(config.MailPolicy{Once: true}, state.MailSlot{}, 1000))

	once := config.MailPolicy{Once: true}
	assert.True(t, suppressed(once, state.MailSlot{Count: 1, LastSentTime: 0}, 1000))

	daily := config.MailPolicy{Daily: true}
	sent := state.MailSlot{Count: 1, LastSentTime: 1000}
	assert.True(t, suppressed(daily, sent, 1000+3600))
	assert.False(t, suppressed(daily, sent, 1000+90000))

	dim := config.MailPolicy{Diminishing: true}
	slot := state.MailSlot{Count: 3, LastSentTime: 1000} // 2^2 days = 4 days
	assert.True(t, suppressed(dim, slot, 1000+3*86400))
	assert.False(t, suppressed(dim, slot, 1000+5*86400))
}

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "WDC_WD10_1_2", normalizeIdentity("WDC WD10!1@2"))
}

func TestDispatchSkipsPersistenceForEmailTest(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(1000, 0))
	rt, _, _ := newRuntime(device.KindAta)

	e.dispatch(rt, notify.EventEmailTest, "hello")
	require.Len(t, rec.events, 1)
	assert.False(t, rt.MustWrite)
	assert.Equal(t, uint64(0), rt.State.Mail[int(notify.EventEmailTest)].Count)
}

func TestDispatchPersistsMailSlot(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(1000, 0))
	rt, _, _ := newRuntime(device.KindAta)

	e.dispatch(rt, notify.EventHealthFailed, "failing")
	require.Len(t, rec.events, 1)
	assert.True(t, rt.MustWrite)
	slot := rt.State.Mail[int(notify.EventHealthFailed)]
	assert.Equal(t, uint64(1), slot.Count)
	assert.Equal(t, uint64(1000), slot.FirstSentTime)
}

func TestCheckHealthATADispatchesOnFailing(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{LbaMid: 0xF4, LbaHigh: 0x2C}, nil
	}

	e.checkHealth(rt, true)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventHealthFailed, rec.events[0])
	assert.True(t, rt.MustWrite)
}

func TestCheckHealthATAHealthyNoDispatch(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{LbaMid: 0x4F, LbaHigh: 0xC2}, nil
	}

	e.checkHealth(rt, true)
	assert.Empty(t, rec.events)
}

func TestCheckHealthSCSIDispatchesOnHardwareError(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, _, scsi := newRuntime(device.KindScsi)
	scsi.onCall = func(call int, in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
		return device.ScsiCmdOut{Sense: fixedSense(0x4, 0, 0)}, nil // KeyHardwareError
	}

	e.checkHealth(rt, false)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventHealthFailed, rec.events[0])
}

func TestCheckAttributesDispatchesUsageFailedOnThresholdCross(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	rt.Thresholds[5] = 10
	buf := buildReadDataBuf(attrEntryBytes(5, 0x01, 3, 0))
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}

	e.checkAttributes(rt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventUsageFailedAttr, rec.events[0])
}

func TestCheckAttributesDispatchesAttributeChanged(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	rt.State.Attrs[0] = state.AttrSlot{ID: 5, Value: 50}
	buf := buildReadDataBuf(attrEntryBytes(5, 0x00, 60, 0))
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}

	e.checkAttributes(rt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventAttributeChanged, rec.events[0])
	assert.Equal(t, uint8(60), rt.State.Attrs[0].Value)
}

func TestCheckAttributesDispatchesCriticalOnRawOnlyChange(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	rt.Cfg.Attrs[5].Raw.Track = true
	rt.Cfg.Attrs[5].Raw.CriticalOnChange = true
	rt.State.Attrs[0] = state.AttrSlot{ID: 5, Value: 50, Raw: 10}
	buf := buildReadDataBuf(attrEntryBytes(5, 0x00, 50, 20))
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}

	e.checkAttributes(rt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventUsageFailedAttr, rec.events[0])
	assert.True(t, rt.MustWrite)
}

func TestCheckAttributesSilentlyDisablesPendingAndOfflineUncOnAbsence(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	rt.Cfg.PendingID, rt.Cfg.PendingSet = 197, true
	rt.Cfg.OfflineUncID, rt.Cfg.OfflineUncSet = 198, true
	empty := make([]byte, 512)
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, empty)
		return device.AtaCmdOut{}, nil
	}

	e.checkAttributes(rt)
	assert.False(t, rt.Cfg.PendingSet)
	assert.False(t, rt.Cfg.OfflineUncSet)
	assert.Empty(t, rec.events)
}

func TestCheckTemperatureDispatchesCriticalAndTracksMinMax(t *testing.T) {
	rec := &recordingNotifier{}
	now := time.Unix(100000, 0)
	e := fixedEngine(rec, now)
	rt, ata, _ := newRuntime(device.KindAta)
	rt.Cfg.TempCrit = 50
	rt.TempFirstObservedAt = now.Add(-time.Hour) // past the spin-up window
	buf := buildReadDataBuf(attrEntryBytes(194, 0, 60, 0))
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}

	e.checkTemperature(rt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventTemperatureCritical, rec.events[0])
	assert.Equal(t, uint64(60), rt.State.TemperatureMax)
	assert.Equal(t, uint64(60), rt.State.TemperatureMin)
}

func TestCheckSelfTestLogDispatchesOnNewError(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	buf := make([]byte, 512)
	buf[3] = 0x00 // completed, nibble 0
	buf[4] = 5    // timestamp-hours low byte
	buf[508] = 1  // one logged entry
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}

	e.checkSelfTestLog(rt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventSelfTestError, rec.events[0])
	assert.Equal(t, uint64(1), rt.State.SelfTestErrors)
	assert.Equal(t, uint64(5), rt.State.SelfTestLastErrHour)
}

func TestCheckAtaErrorLogDispatchesOnIncrease(t *testing.T) {
	rec := &recordingNotifier{}
	e := fixedEngine(rec, time.Unix(0, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	buf := make([]byte, 512)
	buf[452] = 3
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}

	e.checkAtaErrorLog(rt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventAtaErrorCountIncreased, rec.events[0])
	assert.Equal(t, uint64(3), rt.State.AtaErrorCount)
}

func TestInitialScanATAPopulatesThresholdsAndState(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingNotifier{}
	e := &Engine{Notify: rec, StateDir: dir, Now: func() time.Time { return time.Unix(0, 0) }}
	rt, ata, _ := newRuntime(device.KindAta)
	rt.Cfg.HealthCheck = true

	threshBuf := make([]byte, 512)
	threshBuf[2], threshBuf[3] = 5, 10 // attribute 5, threshold 10

	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		switch {
		case in.Regs.Command == 0xEC: // IDENTIFY DEVICE
			return device.AtaCmdOut{}, nil
		case in.Regs.Command == 0xB0 && in.Regs.Features == 0xD1: // READ THRESHOLDS
			copy(in.Buf, threshBuf)
			return device.AtaCmdOut{}, nil
		case in.Regs.Command == 0xE5: // CHECK POWER MODE
			return device.AtaCmdOut{SectorCount: 0xFF}, nil
		default:
			return device.AtaCmdOut{}, nil
		}
	}

	err := e.InitialScan(rt)
	require.NoError(t, err)
	assert.Equal(t, byte(10), rt.Thresholds[5])
	require.NotNil(t, rt.State)
	assert.Equal(t, dir, filepath.Dir(rt.StatePath))
}

func TestInitialScanSCSIDisablesHealthCheckWhenIECAbsent(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingNotifier{}
	e := &Engine{Notify: rec, StateDir: dir, Now: func() time.Time { return time.Unix(0, 0) }}
	rt, _, scsi := newRuntime(device.KindScsi)
	rt.Cfg.HealthCheck = true

	scsi.onCall = func(call int, in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
		op := in.CDB[0]
		switch op {
		case 0x00: // TEST UNIT READY
			return device.ScsiCmdOut{}, nil
		case 0x12: // INQUIRY
			return device.ScsiCmdOut{}, nil
		case 0x1A: // MODE SENSE(6)
			return device.ScsiCmdOut{}, errModeSenseUnsupported
		case 0x4D: // LOG SENSE
			return device.ScsiCmdOut{}, nil
		default:
			return device.ScsiCmdOut{}, nil
		}
	}

	err := e.InitialScan(rt)
	require.NoError(t, err)
	assert.False(t, rt.Cfg.HealthCheck)
}

var errModeSenseUnsupported = errors.New("mode sense not supported")
