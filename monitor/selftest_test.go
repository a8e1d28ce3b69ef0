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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/smart/atasmart"
	"github.com/openebs/smart/device"
	"github.com/openebs/smart/schedule"
	"github.com/openebs/smart/sense"
)

func TestSelfTestSubCommandMapping(t *testing.T) {
	cases := []struct {
		kind schedule.TestKind
		want byte
	}{
		{schedule.KindLong, atasmart.SelfTestExtended},
		{schedule.KindShort, atasmart.SelfTestShort},
		{schedule.KindConveyance, atasmart.SelfTestConveyance},
		{schedule.KindOffline, atasmart.SelfTestFull},
		{schedule.KindNext, atasmart.SelfTestSelective},
		{schedule.KindContinue, atasmart.SelfTestSelective},
		{schedule.KindRedo, atasmart.SelfTestSelective},
	}
	for _, c := range cases {
		got, ok := selfTestSubCommand(c.kind)
		require.True(t, ok)
		assert.Equal(t, c.want, got)
	}
	_, ok := selfTestSubCommand(schedule.TestKind(0))
	assert.False(t, ok)
}

func TestSelectiveModeForMapping(t *testing.T) {
	assert.Equal(t, atasmart.SelectiveNext, selectiveModeFor(schedule.KindNext))
	assert.Equal(t, atasmart.SelectiveRedo, selectiveModeFor(schedule.KindRedo))
	assert.Equal(t, atasmart.SelectiveCont, selectiveModeFor(schedule.KindContinue))
}

func TestIsSelfTestInProgressATA(t *testing.T) {
	rt, ata, _ := newRuntime(device.KindAta)
	buf := make([]byte, 512)
	buf[3] = 0xF0 // top nibble 0xF: in progress
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}
	assert.True(t, isSelfTestInProgress(rt, true))
}

func TestIsSelfTestInProgressATANotRunning(t *testing.T) {
	rt, ata, _ := newRuntime(device.KindAta)
	buf := make([]byte, 512)
	buf[3] = 0x00
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, buf)
		return device.AtaCmdOut{}, nil
	}
	assert.False(t, isSelfTestInProgress(rt, true))
}

func TestIsSelfTestInProgressSCSI(t *testing.T) {
	rt, _, scsi := newRuntime(device.KindScsi)
	scsi.onCall = func(call int, in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
		return device.ScsiCmdOut{Sense: fixedSense(sense.KeyNotReady, sense.AscSelfTestInProgress, sense.AscqSelfTestInProgress)}, nil
	}
	assert.True(t, isSelfTestInProgress(rt, false))
}

func TestIsSelfTestInProgressSamsung3WorkaroundForcesThrough(t *testing.T) {
	rt, _, _ := newRuntime(device.KindAta)
	rt.Cfg.Firmware = "samsung3"
	assert.False(t, isSelfTestInProgress(rt, true))
}

func TestMaybeLaunchSelfTestSkipsWhenAlreadyInProgress(t *testing.T) {
	e := fixedEngine(&recordingNotifier{}, time.Unix(100000, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	pat, err := schedule.Compile("L/.*")
	require.NoError(t, err)
	rt.SchedPattern = pat
	rt.SchedCaps = schedule.Capabilities{}
	rt.State.ScheduledTestNextCheck = uint64(time.Unix(90000, 0).Unix())

	inProgressBuf := make([]byte, 512)
	inProgressBuf[3] = 0xF0
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		copy(in.Buf, inProgressBuf)
		return device.AtaCmdOut{}, nil
	}

	e.maybeLaunchSelfTest(rt, true)
	assert.Equal(t, 1, ata.calls) // only the in-progress probe, no launch
	assert.False(t, rt.MustWrite)
}

func TestMaybeLaunchSelfTestLaunchesLongTest(t *testing.T) {
	e := fixedEngine(&recordingNotifier{}, time.Unix(100000, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	pat, err := schedule.Compile("L/.*")
	require.NoError(t, err)
	rt.SchedPattern = pat
	rt.SchedCaps = schedule.Capabilities{}
	rt.State.ScheduledTestNextCheck = uint64(time.Unix(90000, 0).Unix())

	var launched bool
	notInProgressBuf := make([]byte, 512)
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		switch {
		case in.Regs.Features == 0xD5: // READ LOG (in-progress probe)
			copy(in.Buf, notInProgressBuf)
			return device.AtaCmdOut{}, nil
		case in.Regs.Features == 0xD4: // EXECUTE OFFLINE IMMEDIATE
			launched = true
			assert.Equal(t, byte(atasmart.SelfTestExtended), in.Regs.LbaLow)
			return device.AtaCmdOut{}, nil
		default:
			return device.AtaCmdOut{}, nil
		}
	}

	e.maybeLaunchSelfTest(rt, true)
	assert.True(t, launched)
	assert.True(t, rt.MustWrite)
	assert.NotEqual(t, uint64(90000), rt.State.ScheduledTestNextCheck)
}

func TestMaybeLaunchSelfTestWritesSelectiveSpanBeforeLaunchingSelective(t *testing.T) {
	e := fixedEngine(&recordingNotifier{}, time.Unix(100000, 0))
	rt, ata, _ := newRuntime(device.KindAta)
	pat, err := schedule.Compile("n/.*")
	require.NoError(t, err)
	rt.SchedPattern = pat
	rt.SchedCaps = schedule.Capabilities{}
	rt.State.ScheduledTestNextCheck = uint64(time.Unix(90000, 0).Unix())

	var order []byte
	notInProgressBuf := make([]byte, 512)
	ata.onCall = func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		switch in.Regs.Features {
		case 0xD5: // READ LOG
			copy(in.Buf, notInProgressBuf)
		case 0xD6, 0xD4: // WRITE LOG (selective span), EXECUTE OFFLINE IMMEDIATE
			order = append(order, in.Regs.Features)
		}
		return device.AtaCmdOut{}, nil
	}

	e.maybeLaunchSelfTest(rt, true)
	require.Equal(t, []byte{0xD6, 0xD4}, order)
}
