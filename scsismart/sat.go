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

// SAT (SCSI-ATA Translation) tunnel (spec.md §4.E): packages an ATA
// register set into a 12- or 16-byte ATA PASS-THROUGH CDB and recovers the
// ATA output registers from the ATA Return Descriptor in descriptor-format
// sense data. Grounded on the teacher's satdevice.go (AtaIdentify CDB
// shape) and original_source/sm5/scsiata.cpp (sat_device::ata_pass_through).
package scsismart

import (
	"github.com/openebs/smart/device"
	"github.com/openebs/smart/sense"
)

const (
	// ATA PASS-THROUGH protocol field values (spec.md §4.E).
	protoNonData  = 3
	protoPIODataIn = 4
	protoPIODataOut = 5

	ataReturnDescriptorType = 0x09

	maxUARetries = 3
)

// SAT wraps a device.ScsiDevice and implements device.AtaDevice by
// tunnelling ATA commands through SCSI ATA PASS-THROUGH (12) or (16).
type SAT struct {
	Inner  device.ScsiDevice
	CdbLen int // 12 or 16
}

// NewSAT constructs a SAT tunnel over inner using the given CDB length.
func NewSAT(inner device.ScsiDevice, cdbLen int) *SAT {
	if cdbLen != 12 && cdbLen != 16 {
		cdbLen = 16
	}
	return &SAT{Inner: inner, CdbLen: cdbLen}
}

func (s *SAT) Open() error       { return s.Inner.Open() }
func (s *SAT) Close() error      { return s.Inner.Close() }
func (s *SAT) LastError() error  { return s.Inner.LastError() }

// encode16 builds the 16-byte ATA PASS-THROUGH CDB (opcode 0x85).
func encode16(in device.AtaCmdIn) []byte {
	cdb := make([]byte, 16)
	cdb[0] = opSATAtaPassThrough16

	protocol := byte(protoNonData)
	tDir := byte(1)
	tLength := byte(0)

	switch in.Direction {
	case device.DataIn:
		protocol = protoPIODataIn
		tDir = 1
		tLength = 2
	case device.DataOut:
		protocol = protoPIODataOut
		tDir = 0
		tLength = 2
	}

	extend := byte(0)
	if in.Is48Bit {
		extend = 1
	}
	cdb[1] = (protocol << 1) | extend

	ckCond := byte(0)
	if in.OutNeeded.Any() {
		ckCond = 1
	}
	// byte_block is always 1, independent of direction/length (original_source/
	// sm5/scsiata.cpp: "int byte_block = 1;", never conditioned).
	byteBlock := byte(1)
	cdb[2] = (ckCond << 5) | (tDir << 3) | (byteBlock << 2) | tLength

	r := in.Regs
	cdb[3] = r.Prev.Features
	cdb[4] = r.Features
	cdb[5] = r.Prev.SectorCount
	cdb[6] = r.SectorCount
	cdb[7] = r.Prev.LbaLow
	cdb[8] = r.LbaLow
	cdb[9] = r.Prev.LbaMid
	cdb[10] = r.LbaMid
	cdb[11] = r.Prev.LbaHigh
	cdb[12] = r.LbaHigh
	cdb[13] = r.Device
	cdb[14] = r.Command
	cdb[15] = 0
	return cdb
}

// encode12 builds the 12-byte ATA PASS-THROUGH CDB (opcode 0xa1). It has
// no Prev shadow registers, so it cannot carry a 48-bit command; callers
// must reject Is48Bit before calling this (spec.md §8 invariant 2).
func encode12(in device.AtaCmdIn) []byte {
	cdb := make([]byte, 12)
	cdb[0] = opSATAtaPassThrough12

	protocol := byte(protoNonData)
	tDir := byte(1)
	tLength := byte(0)

	switch in.Direction {
	case device.DataIn:
		protocol = protoPIODataIn
		tDir = 1
		tLength = 2
	case device.DataOut:
		protocol = protoPIODataOut
		tDir = 0
		tLength = 2
	}

	cdb[1] = protocol << 1

	ckCond := byte(0)
	if in.OutNeeded.Any() {
		ckCond = 1
	}
	// byte_block is always 1, independent of direction/length (original_source/
	// sm5/scsiata.cpp: "int byte_block = 1;", never conditioned).
	byteBlock := byte(1)
	cdb[2] = (ckCond << 5) | (tDir << 3) | (byteBlock << 2) | tLength

	r := in.Regs
	cdb[3] = r.Features
	cdb[4] = r.SectorCount
	cdb[5] = r.LbaLow
	cdb[6] = r.LbaMid
	cdb[7] = r.LbaHigh
	cdb[8] = r.Device
	cdb[9] = r.Command
	cdb[10] = 0
	cdb[11] = 0
	return cdb
}

// decodeReturnDescriptor parses the 14-byte ATA Return Descriptor (type
// 0x09) into AtaCmdOut (spec.md §4.E).
func decodeReturnDescriptor(ard []byte, is48bit bool) device.AtaCmdOut {
	var out device.AtaCmdOut
	if len(ard) < 14 {
		return out
	}
	out.Error = ard[3]
	out.SectorCount = ard[5]
	out.LbaLow = ard[7]
	out.LbaMid = ard[9]
	out.LbaHigh = ard[11]
	out.DeviceReg = ard[12]
	out.Status = ard[13]
	_ = is48bit // extend only affects whether count_hi/lba_*_hi were valid; we surface the low bytes regardless
	return out
}

// AtaPassThrough implements device.AtaDevice. Per spec.md §8 invariant 2,
// a 48-bit command with a 12-byte CDB is rejected before any I/O; per
// spec.md §4.D/§5, UNIT ATTENTION on the pass-through itself is retried up
// to 3 times (ATA pass-through is never INQUIRY/REPORT LUNS/REQUEST SENSE,
// so the "don't retry those" carve-out never applies here).
func (s *SAT) AtaPassThrough(in device.AtaCmdIn) (device.AtaCmdOut, error) {
	if in.Is48Bit && s.CdbLen == 12 {
		return device.AtaCmdOut{}, device.NewDetailedError(device.ErrUnsupported,
			"48-bit ATA command requires a 16-byte SAT CDB, got cdb_len=12")
	}

	var cdb []byte
	if s.CdbLen == 16 {
		cdb = encode16(in)
	} else {
		cdb = encode12(in)
	}

	var lastErr error
	for attempt := 0; attempt < maxUARetries+1; attempt++ {
		out, sd, err := s.doOnce(cdb, in)
		if err == nil {
			return out, nil
		}
		if sd != nil && sense.SimpleFilter(sd) == sense.TryAgain && attempt < maxUARetries {
			lastErr = err
			continue
		}
		return out, err
	}
	return device.AtaCmdOut{}, lastErr
}

func (s *SAT) doOnce(cdb []byte, in device.AtaCmdIn) (device.AtaCmdOut, *sense.Disect, error) {
	dir := device.NoData
	var buf []byte
	switch in.Direction {
	case device.DataIn:
		dir = device.DataIn
		buf = in.Buf
	case device.DataOut:
		dir = device.DataOut
		buf = in.Buf
	}

	timeout := in.Timeout
	if timeout == 0 {
		timeout = 60
	}

	scsiOut, err := s.Inner.ScsiPassThrough(device.ScsiCmdIn{CDB: cdb, Direction: dir, Buf: buf, Timeout: timeout})

	var sd *sense.Disect
	if len(scsiOut.Sense) > 0 {
		sd = sense.Normalize(scsiOut.Sense)
	}

	ckCond := cdb[2]&0x20 != 0

	if err == nil && !ckCond {
		// No output requested, command completed GOOD: nothing to decode.
		return device.AtaCmdOut{}, sd, nil
	}

	if err != nil && sd == nil {
		return device.AtaCmdOut{}, nil, device.NewError(device.ErrTransportIO, err)
	}

	ard := sense.FindDescriptor(scsiOut.Sense, ataReturnDescriptorType)

	if ckCond {
		if ard != nil {
			return decodeReturnDescriptor(ard, in.Is48Bit), sd, nil
		}
		// ck_cond asked for output but we got something else: classify.
		if sd != nil && sense.SimpleFilter(sd) == sense.TryAgain {
			return device.AtaCmdOut{}, sd, device.NewError(device.ErrSenseCheckCondition, err)
		}
		return device.AtaCmdOut{}, sd, device.NewDetailedError(device.ErrSatNoAtaDescriptor,
			"SAT response to ck_cond request lacked ATA return descriptor")
	}

	// ck_cond was 0 but we got a CHECK CONDITION: success iff this is the
	// "ATA PASS THROUGH INFORMATION AVAILABLE" indication with descriptor
	// 0x09 present (spec.md §4.E classification rule).
	if sd != nil && sd.ResponseCode >= 0x72 &&
		(sd.SenseKey == sense.KeyNoSense || sd.SenseKey == sense.KeyRecoveredError) &&
		sd.ASC == 0 && sd.ASCQ == sense.AscqATAPassThroughInfo && ard != nil {
		return decodeReturnDescriptor(ard, in.Is48Bit), sd, nil
	}

	return device.AtaCmdOut{}, sd, device.NewError(device.ErrSenseCheckCondition, err)
}
