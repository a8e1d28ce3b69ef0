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

package scsismart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/smart/device"
)

func TestUsbCypressRejects48Bit(t *testing.T) {
	uc := NewUsbCypress(&fakeScsi{}, 0x24)
	_, err := uc.AtaPassThrough(device.AtaCmdIn{Is48Bit: true})
	require.Error(t, err)
	kind, ok := device.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, device.ErrUnsupported, kind)
}

func TestUsbCypressIdentifySetsPacketBit(t *testing.T) {
	var seenFirstCdb []byte
	fake := &fakeScsi{onCall: func(call int, in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
		if call == 1 {
			seenFirstCdb = append([]byte(nil), in.CDB...)
		}
		return device.ScsiCmdOut{}, nil
	}}
	uc := NewUsbCypress(fake, 0x24)
	_, _ = uc.AtaPassThrough(device.AtaCmdIn{
		Regs:      device.AtaRegs{Command: 0xEC, SectorCount: 1},
		Direction: device.DataIn,
		Buf:       make([]byte, 512),
	})
	require.NotEmpty(t, seenFirstCdb)
	assert.NotZero(t, seenFirstCdb[2]&0x80)
	assert.Equal(t, byte(0x24), seenFirstCdb[0])
	assert.Equal(t, byte(0x24), seenFirstCdb[1])
}

func TestUsbCypressReadsTaskfileOnOutNeeded(t *testing.T) {
	fake := &fakeScsi{onCall: func(call int, in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
		if call == 2 {
			copy(in.Buf, []byte{0, 0, 0x51, 0, 0x4f, 0xc2, 0, 0x50})
		}
		return device.ScsiCmdOut{}, nil
	}}
	uc := NewUsbCypress(fake, 0x24)
	out, err := uc.AtaPassThrough(device.AtaCmdIn{
		Regs:      device.AtaRegs{Command: 0xB0, Features: 0xDA},
		OutNeeded: device.OutStatus,
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x50), out.Status)
	assert.Equal(t, byte(0x4f), out.LbaMid)
	assert.Equal(t, byte(0xc2), out.LbaHigh)
	assert.Equal(t, 2, fake.calls)
}
