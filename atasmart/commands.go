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

// ATA command helpers (spec.md §4.G), all built on device.AtaDevice.
package atasmart

import (
	"bytes"
	"encoding/binary"

	"github.com/openebs/smart/device"
	"github.com/openebs/smart/utilities"
)

// ATA command codes used directly (not dispatched through the SMART
// feature register).
const (
	cmdIdentifyDevice       = 0xEC
	cmdIdentifyPacketDevice = 0xA1
	cmdSmart                = 0xB0
	cmdCheckPowerMode       = 0xE5
)

// SMART (0xB0) feature sub-codes (spec.md §4.G).
const (
	smartEnable                = 0xD8
	smartDisable                = 0xD9
	smartReadData               = 0xD0
	smartReadThresholds          = 0xD1
	smartReadLog                = 0xD5
	smartWriteLog                = 0xD6
	smartExecuteOfflineImmediate = 0xD4
	smartReturnStatus            = 0xDA
	smartAutosave                = 0xD2
	smartAutoOffline             = 0xDB
)

// Self-test sub-commands for EXECUTE OFFLINE IMMEDIATE (spec.md §4.G).
const (
	SelfTestFull       = 0x00
	SelfTestShort      = 0x01
	SelfTestExtended   = 0x02
	SelfTestConveyance = 0x03
	SelfTestSelective  = 0x04
)

// smartRegs builds the taskfile register set every SMART sub-command
// shares: the SMART signature in LBA-mid/high (spec.md §4.G), plus the
// caller's feature code and LBA-low.
func smartRegs(feature, lbaLow byte) device.AtaRegs {
	return device.AtaRegs{
		Command:     cmdSmart,
		Features:    feature,
		LbaMid:      0x4F,
		LbaHigh:     0xC2,
		LbaLow:      lbaLow,
	}
}

// IdentifyDevice issues IDENTIFY DEVICE (or IDENTIFY PACKET DEVICE) and
// parses the 512-byte result into an IdentDevData.
func IdentifyDevice(dev device.AtaDevice, packet bool) (*IdentDevData, error) {
	cmd := byte(cmdIdentifyDevice)
	if packet {
		cmd = cmdIdentifyPacketDevice
	}
	buf := make([]byte, 512)
	_, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      device.AtaRegs{Command: cmd, SectorCount: 1},
		Direction: device.DataIn,
		Buf:       buf,
		OutNeeded: device.OutStatus,
	})
	if err != nil {
		return nil, err
	}
	var id IdentDevData
	if err := binary.Read(bytes.NewReader(buf), utilities.NativeEndian, &id); err != nil {
		return nil, device.NewError(device.ErrTransportIO, err)
	}
	return &id, nil
}

// Enable issues SMART ENABLE OPERATIONS.
func Enable(dev device.AtaDevice) error {
	_, err := dev.AtaPassThrough(device.AtaCmdIn{Regs: smartRegs(smartEnable, 1)})
	return err
}

// Disable issues SMART DISABLE OPERATIONS.
func Disable(dev device.AtaDevice) error {
	_, err := dev.AtaPassThrough(device.AtaCmdIn{Regs: smartRegs(smartDisable, 1)})
	return err
}

// Autosave issues SMART ENABLE/DISABLE ATTRIBUTE AUTOSAVE. select follows
// the original semantics: 0xF1 enables, 0x00 disables.
func Autosave(dev device.AtaDevice, enable bool) error {
	sel := byte(0x00)
	if enable {
		sel = 0xF1
	}
	_, err := dev.AtaPassThrough(device.AtaCmdIn{Regs: smartRegs(smartAutosave, sel)})
	return err
}

// AutoOffline issues SMART AUTO OFFLINE (the automatic offline data
// collection timer).
func AutoOffline(dev device.AtaDevice, enable bool) error {
	sel := byte(0x00)
	if enable {
		sel = 0xF8
	}
	_, err := dev.AtaPassThrough(device.AtaCmdIn{Regs: smartRegs(smartAutoOffline, sel)})
	return err
}

// ReadData issues SMART READ DATA: a 512-byte PIO-in sector of attribute
// value/worst/raw entries.
func ReadData(dev device.AtaDevice) ([]byte, error) {
	buf := make([]byte, 512)
	_, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      smartRegs(smartReadData, 0),
		Direction: device.DataIn,
		Buf:       buf,
		OutNeeded: device.OutStatus,
	})
	return buf, err
}

// ReadThresholds issues the obsolete SMART READ THRESHOLDS.
func ReadThresholds(dev device.AtaDevice) ([]byte, error) {
	buf := make([]byte, 512)
	_, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      smartRegs(smartReadThresholds, 1),
		Direction: device.DataIn,
		Buf:       buf,
	})
	return buf, err
}

// ReadLog issues SMART READ LOG for the given log address (one 512-byte
// sector).
func ReadLog(dev device.AtaDevice, logAddr byte) ([]byte, error) {
	buf := make([]byte, 512)
	_, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      smartRegs(smartReadLog, logAddr),
		Direction: device.DataIn,
		Buf:       buf,
	})
	return buf, err
}

// WriteLog issues SMART WRITE LOG for the given log address, writing
// exactly one 512-byte sector of data.
func WriteLog(dev device.AtaDevice, logAddr byte, data []byte) error {
	buf := make([]byte, 512)
	copy(buf, data)
	_, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      smartRegs(smartWriteLog, logAddr),
		Direction: device.DataOut,
		Buf:       buf,
	})
	return err
}

// SelectiveSpan is one entry of the selective self-test span table
// written to SMART log 0x09 (spec.md §4.G).
type SelectiveSpan struct {
	StartLBA uint64
	EndLBA   uint64
}

// SelectiveMode selects how SMART log 0x09's status word is written
// alongside the span table.
type SelectiveMode byte

const (
	SelectiveRange SelectiveMode = iota
	SelectiveNext
	SelectiveRedo
	SelectiveCont
)

const selectiveLogAddr = 0x09

// WriteSelectiveSpans builds and writes the SMART selective self-test log
// (0x09): up to 5 span entries, followed by the selective-test flags word
// carrying mode (spec.md §4.G).
func WriteSelectiveSpans(dev device.AtaDevice, spans []SelectiveSpan, mode SelectiveMode) error {
	buf := make([]byte, 512)
	for i, sp := range spans {
		if i >= 5 {
			break
		}
		off := i * 16
		binary.LittleEndian.PutUint64(buf[off:], sp.StartLBA)
		binary.LittleEndian.PutUint64(buf[off+8:], sp.EndLBA)
	}
	binary.LittleEndian.PutUint16(buf[320:], uint16(mode))
	return WriteLog(dev, selectiveLogAddr, buf)
}

// StatusResult is the outcome of SMART RETURN STATUS (spec.md §4.G).
type StatusResult int

const (
	StatusHealthy StatusResult = iota
	StatusFailing
	StatusMalformed
)

// ReturnStatus issues SMART RETURN STATUS with ck_cond and classifies the
// LBA-mid/high readback.
func ReturnStatus(dev device.AtaDevice) (StatusResult, error) {
	out, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      smartRegs(smartReturnStatus, 0),
		OutNeeded: device.OutLbaMid | device.OutLbaHigh,
	})
	if err != nil {
		return StatusMalformed, err
	}
	switch {
	case out.LbaMid == 0x4F && out.LbaHigh == 0xC2:
		return StatusHealthy, nil
	case out.LbaMid == 0xF4 && out.LbaHigh == 0x2C:
		return StatusFailing, nil
	default:
		return StatusMalformed, nil
	}
}

// PowerMode is the decoded CHECK POWER MODE sector-count return byte
// (spec.md §4.G).
type PowerMode int

const (
	PowerActiveOrIdle PowerMode = iota
	PowerStandby
	PowerIdle
	PowerNVCache
	PowerSleep
	PowerUnknown
)

// CheckPowerMode issues ATA CHECK POWER MODE and decodes the result. A
// command abort (err != nil) is interpreted as SLEEP, matching the
// convention that a sleeping device refuses any command (spec.md §4.G).
func CheckPowerMode(dev device.AtaDevice) (PowerMode, error) {
	out, err := dev.AtaPassThrough(device.AtaCmdIn{
		Regs:      device.AtaRegs{Command: cmdCheckPowerMode},
		OutNeeded: device.OutSectorCount | device.OutStatus,
	})
	if err != nil {
		return PowerSleep, nil
	}
	switch {
	case out.SectorCount == 0x00:
		return PowerStandby, nil
	case out.SectorCount == 0x80:
		return PowerIdle, nil
	case out.SectorCount == 0xFF:
		return PowerActiveOrIdle, nil
	case out.SectorCount == 0x40 || out.SectorCount == 0x41:
		return PowerNVCache, nil
	default:
		return PowerUnknown, nil
	}
}

// ExecuteOfflineImmediate launches a self-test of subCommand (spec.md
// §4.G self-test launch).
func ExecuteOfflineImmediate(dev device.AtaDevice, subCommand byte) error {
	_, err := dev.AtaPassThrough(device.AtaCmdIn{Regs: smartRegs(smartExecuteOfflineImmediate, subCommand)})
	return err
}
