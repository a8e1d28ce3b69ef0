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

package atasmart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/smart/device"
)

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

func TestSmartRegsCarriesSignature(t *testing.T) {
	r := smartRegs(smartReadData, 0)
	assert.Equal(t, byte(0x4F), r.LbaMid)
	assert.Equal(t, byte(0xC2), r.LbaHigh)
	assert.Equal(t, byte(cmdSmart), r.Command)
}

func TestReturnStatusHealthy(t *testing.T) {
	fake := &fakeAta{onCall: func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{LbaMid: 0x4F, LbaHigh: 0xC2}, nil
	}}
	got, err := ReturnStatus(fake)
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, got)
}

func TestReturnStatusFailing(t *testing.T) {
	fake := &fakeAta{onCall: func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{LbaMid: 0xF4, LbaHigh: 0x2C}, nil
	}}
	got, err := ReturnStatus(fake)
	require.NoError(t, err)
	assert.Equal(t, StatusFailing, got)
}

func TestReturnStatusMalformed(t *testing.T) {
	fake := &fakeAta{onCall: func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{LbaMid: 0x00, LbaHigh: 0x00}, nil
	}}
	got, err := ReturnStatus(fake)
	require.NoError(t, err)
	assert.Equal(t, StatusMalformed, got)
}

func TestCheckPowerModeDecodesStandby(t *testing.T) {
	fake := &fakeAta{onCall: func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{SectorCount: 0x00}, nil
	}}
	got, err := CheckPowerMode(fake)
	require.NoError(t, err)
	assert.Equal(t, PowerStandby, got)
}

func TestCheckPowerModeTreatsAbortAsSleep(t *testing.T) {
	fake := &fakeAta{onCall: func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		return device.AtaCmdOut{}, device.NewError(device.ErrSenseCheckCondition, nil)
	}}
	got, err := CheckPowerMode(fake)
	require.NoError(t, err)
	assert.Equal(t, PowerSleep, got)
}

func TestWriteSelectiveSpansEncodesLittleEndian(t *testing.T) {
	var seenBuf []byte
	fake := &fakeAta{onCall: func(call int, in device.AtaCmdIn) (device.AtaCmdOut, error) {
		seenBuf = append([]byte(nil), in.Buf...)
		return device.AtaCmdOut{}, nil
	}}
	err := WriteSelectiveSpans(fake, []SelectiveSpan{{StartLBA: 100, EndLBA: 200}}, SelectiveRange)
	require.NoError(t, err)
	require.Len(t, seenBuf, 512)
	assert.Equal(t, byte(100), seenBuf[0])
	assert.Equal(t, byte(200), seenBuf[8])
}
