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

// Auto-detection of the ATA-over-SCSI transport variant for a bare SCSI
// device node (spec.md §4.D): try SAT first, then USB-Cypress, else treat
// the device as plain SCSI. Grounded on original_source/sm5/scsiata.cpp
// has_sat_pass_through / has_usbcypress_pass_through and the teacher's
// DetectSCSIType.
package scsismart

import (
	"unicode"

	"github.com/openebs/smart/device"
)

const (
	ataIdentifyDevice       = 0xEC
	ataIdentifyPacketDevice = 0xA1

	defaultUsbCypressSignature = 0x24
)

// isPrintableASCII reports whether every byte in b is a printable ASCII
// character, mirroring original_source's isprint_string used to sanity
// check a readback IDENTIFY buffer before trusting it.
func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			continue
		}
		if !unicode.IsPrint(rune(c)) || c > 0x7e {
			return false
		}
	}
	return true
}

// trySAT issues an IDENTIFY DEVICE through a SAT tunnel at the given CDB
// length and reports whether the device answered with a plausible buffer.
func trySAT(scsi device.ScsiDevice, cdbLen int, packet bool) (device.AtaDevice, bool) {
	sat := NewSAT(scsi, cdbLen)
	cmd := byte(ataIdentifyDevice)
	if packet {
		cmd = ataIdentifyPacketDevice
	}
	buf := make([]byte, 512)
	in := device.AtaCmdIn{
		Regs:      device.AtaRegs{Command: cmd, SectorCount: 1},
		Direction: device.DataIn,
		Buf:       buf,
		OutNeeded: device.OutStatus,
	}
	out, err := sat.AtaPassThrough(in)
	if err != nil {
		return nil, false
	}
	if out.Status&0x01 != 0 { // ERR bit set
		return nil, false
	}
	return sat, true
}

// tryUsbCypress issues an IDENTIFY DEVICE through the Cypress ATACB
// tunnel and sanity-checks the model/serial/firmware strings it reads
// back for printability, the same heuristic original_source uses.
func tryUsbCypress(scsi device.ScsiDevice, signature byte) (device.AtaDevice, bool) {
	uc := NewUsbCypress(scsi, signature)
	buf := make([]byte, 512)
	in := device.AtaCmdIn{
		Regs:      device.AtaRegs{Command: ataIdentifyDevice, SectorCount: 1},
		Direction: device.DataIn,
		Buf:       buf,
		OutNeeded: device.OutStatus,
	}
	_, err := uc.AtaPassThrough(in)
	if err != nil {
		return nil, false
	}
	model := buf[54:94]
	serial := buf[20:40]
	firmware := buf[46:54]
	if !isPrintableASCII(model) || !isPrintableASCII(serial) || !isPrintableASCII(firmware) {
		return nil, false
	}
	return uc, true
}

// Detect probes scsi for the best ATA-over-SCSI transport: SAT 16-byte,
// SAT 12-byte, USB-Cypress, in that order, falling back to kind=KindScsi
// (plain SCSI, no ATA tunnel available) when none answer coherently
// (spec.md §4.D).
func Detect(scsi device.ScsiDevice) (device.AtaDevice, device.Kind) {
	if ata, ok := trySAT(scsi, 16, false); ok {
		return ata, device.KindSatTunnel
	}
	if ata, ok := trySAT(scsi, 12, false); ok {
		return ata, device.KindSatTunnel
	}
	if ata, ok := tryUsbCypress(scsi, defaultUsbCypressSignature); ok {
		return ata, device.KindUsbCypress
	}
	return nil, device.KindScsi
}
