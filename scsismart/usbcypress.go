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

// USB-Cypress vendor bridge variant (spec.md §4.E "USB-Cypress variant"):
// a 16-byte vendor-specific CDB (ATACB) distinct from SAT ATA PASS-THROUGH,
// used by some USB-to-ATA bridges that don't implement SAT. Grounded on
// original_source/sm5/scsiata.cpp usbcypress_device::ata_command_interface.
package scsismart

import (
	"github.com/openebs/smart/device"
	"github.com/openebs/smart/sense"
)

const usbCypressCdbLen = 16

// UsbCypress wraps a device.ScsiDevice and implements device.AtaDevice via
// the Cypress USB bridge's vendor-specific ATACB command.
type UsbCypress struct {
	Inner     device.ScsiDevice
	Signature byte // vendor command byte, typically 0x24
}

// NewUsbCypress constructs a tunnel using the given vendor signature byte.
func NewUsbCypress(inner device.ScsiDevice, signature byte) *UsbCypress {
	return &UsbCypress{Inner: inner, Signature: signature}
}

func (u *UsbCypress) Open() error      { return u.Inner.Open() }
func (u *UsbCypress) Close() error     { return u.Inner.Close() }
func (u *UsbCypress) LastError() error { return u.Inner.LastError() }

// AtaPassThrough implements device.AtaDevice over the Cypress ATACB
// command. It has no 48-bit addressing support (spec.md §8 invariant 2),
// and its taskfile readback ("ck_cond") is a second, separate command
// issued after the first: original_source/sm5/scsiata.cpp documents this
// as racy against any other command reaching the device in between. That
// race is an open question left as-is (spec.md Open Questions) rather
// than designed around, since the bridge gives no atomic alternative.
func (u *UsbCypress) AtaPassThrough(in device.AtaCmdIn) (device.AtaCmdOut, error) {
	if in.Is48Bit {
		return device.AtaCmdOut{}, device.NewDetailedError(device.ErrUnsupported,
			"USB-Cypress ATACB does not support 48-bit ATA commands")
	}

	cdb := make([]byte, usbCypressCdbLen)
	cdb[0] = u.Signature
	cdb[1] = 0x24 // ATACB vendor sub-command

	r := in.Regs
	if r.Command == 0xEC || r.Command == 0xA1 { // IDENTIFY DEVICE / IDENTIFY PACKET DEVICE
		cdb[2] |= 1 << 7
	}
	cdb[3] = 0xff - (1 << 0) - (1 << 6) // features/sector_count/lba_low/lba_mid/lba_high/command valid

	byteBlock := byte(0)
	dxferLen := 0
	dir := device.NoData
	switch in.Direction {
	case device.DataIn:
		byteBlock = 1
		dxferLen = len(in.Buf)
		dir = device.DataIn
	case device.DataOut:
		dxferLen = len(in.Buf)
		dir = device.DataOut
	}
	cdb[4] = byteBlock

	cdb[6] = r.Features
	cdb[7] = r.SectorCount
	cdb[8] = r.LbaLow
	cdb[9] = r.LbaMid
	cdb[10] = r.LbaHigh
	cdb[12] = r.Command

	timeout := in.Timeout
	if timeout == 0 {
		timeout = 60
	}

	var buf []byte
	if dxferLen > 0 {
		buf = in.Buf
	}
	scsiOut, err := u.Inner.ScsiPassThrough(device.ScsiCmdIn{CDB: cdb, Direction: dir, Buf: buf, Timeout: timeout})
	if err != nil {
		sd := sense.Normalize(scsiOut.Sense)
		if sd != nil {
			return device.AtaCmdOut{}, device.NewError(device.ErrSenseCheckCondition, err)
		}
		return device.AtaCmdOut{}, device.NewError(device.ErrTransportIO, err)
	}

	if !in.OutNeeded.Any() {
		return device.AtaCmdOut{}, nil
	}

	// "ask read taskfile": same CDB with the read-taskfile bit set, a
	// second and separate command. This is the race window noted above.
	cdb[2] = 1 << 0
	ardp := make([]byte, 8)
	scsiOut, err = u.Inner.ScsiPassThrough(device.ScsiCmdIn{CDB: cdb, Direction: device.DataIn, Buf: ardp, Timeout: timeout})
	if err != nil {
		sd := sense.Normalize(scsiOut.Sense)
		if sd != nil {
			return device.AtaCmdOut{}, device.NewError(device.ErrRaceInUsbTunnel, err)
		}
		return device.AtaCmdOut{}, device.NewError(device.ErrTransportIO, err)
	}

	return device.AtaCmdOut{
		Error:       ardp[1],
		SectorCount: ardp[2],
		LbaLow:      ardp[3],
		LbaMid:      ardp[4],
		LbaHigh:     ardp[5],
		DeviceReg:   ardp[6],
		Status:      ardp[7],
	}, nil
}
