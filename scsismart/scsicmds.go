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

// SCSI command helpers (spec.md §4.F): typed wrappers around the commands
// the monitoring engine needs, built on top of device.ScsiDevice.

package scsismart

import (
	"bytes"
	"encoding/binary"

	"github.com/openebs/smart/device"
	"github.com/openebs/smart/endian"
	"github.com/openebs/smart/sense"
	"github.com/openebs/smart/utilities"
)

func doCDB(d device.ScsiDevice, cdb []byte, dir device.Direction, buf []byte, timeout int) (device.ScsiCmdOut, *sense.Disect, error) {
	out, err := d.ScsiPassThrough(device.ScsiCmdIn{CDB: cdb, Direction: dir, Buf: buf, Timeout: timeout})
	var disect *sense.Disect
	if len(out.Sense) > 0 {
		disect = sense.Normalize(out.Sense)
	}
	return out, disect, err
}

// Inquiry issues a standard SCSI INQUIRY (EVPD=0). It retries once with a
// 64-byte buffer if the device's own declared additional length implies a
// longer response than the 36-byte default fetch captured.
func Inquiry(d device.ScsiDevice) (InquiryResponse, error) {
	var resp InquiryResponse

	buf := make([]byte, inqRespLenMin)
	cdb := CDB6{opInquiry}
	binary.BigEndian.PutUint16(cdb[3:], uint16(len(buf)))

	_, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0)
	if err != nil {
		return resp, classifyErr(ds, err)
	}

	if int(buf[4])+5 > len(buf) {
		buf = make([]byte, inqRespLenMax)
		cdb = CDB6{opInquiry}
		binary.BigEndian.PutUint16(cdb[3:], uint16(len(buf)))
		if _, ds, err = doCDB(d, cdb[:], device.DataIn, buf, 0); err != nil {
			return resp, classifyErr(ds, err)
		}
	}

	binary.Read(bytes.NewReader(buf), utilities.NativeEndian, &resp)
	return resp, nil
}

// InquiryVPD issues a SCSI INQUIRY with EVPD=1 for the given page, using a
// two-phase length discovery: a 4-byte probe to learn the declared page
// length, then a full fetch (spec.md §4.F).
func InquiryVPD(d device.ScsiDevice, page byte) ([]byte, error) {
	probe := make([]byte, 4)
	cdb := CDB6{opInquiry, 0x01, page}
	binary.BigEndian.PutUint16(cdb[3:], uint16(len(probe)))
	if _, ds, err := doCDB(d, cdb[:], device.DataIn, probe, 0); err != nil {
		return nil, classifyErr(ds, err)
	}

	total := int(probe[3]) + 4
	buf := make([]byte, total)
	cdb = CDB6{opInquiry, 0x01, page}
	binary.BigEndian.PutUint16(cdb[3:], uint16(total))
	if _, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0); err != nil {
		return nil, classifyErr(ds, err)
	}
	return buf, nil
}

// TestUnitReady issues SCSI TEST UNIT READY and returns the sense
// classification (spec.md §4.F/§4.K step 3).
func TestUnitReady(d device.ScsiDevice) (sense.SimpleErr, error) {
	cdb := CDB6{opTestUnitReady}
	_, ds, err := doCDB(d, cdb[:], device.NoData, nil, 0)
	if err == nil {
		return sense.Ok, nil
	}
	return sense.SimpleFilter(ds), err
}

// RequestSense issues REQUEST SENSE and returns the normalized sense,
// including the self-test-in-progress progress indicator when present
// (spec.md §4.F last bullet). The returned data is used when it holds valid
// sense; otherwise the sense the transport captured for the command is used.
func RequestSense(d device.ScsiDevice) (*sense.Disect, error) {
	buf := make([]byte, 18)
	cdb := CDB6{opRequestSense}
	cdb[4] = byte(len(buf))
	_, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0)
	if err != nil {
		return nil, device.NewError(device.ErrTransportIO, err)
	}
	if nd := sense.Normalize(buf); nd != nil {
		return nd, nil
	}
	return ds, nil
}

// LogSenseResult is the payload returned by LogSense: the fetched page
// bytes including the 4-byte LOG SENSE header.
type LogSenseResult struct {
	PageCode byte
	Data     []byte
}

// LogSense performs the twin-fetch strategy of spec.md §4.F: a 4-byte probe
// to read the page length, then an exact-length refetch, padded to an even
// length. Page 0x2E (TapeAlerts) must be single-fetched because reading it
// clears latched state; callers pass knownLen > 0 to skip the probe.
func LogSense(d device.ScsiDevice, page, subpage byte, knownLen int) (LogSenseResult, error) {
	fetch := func(n int) ([]byte, error) {
		buf := make([]byte, n)
		cdb := CDB10{opLogSense}
		cdb[2] = 0x40 | (page & 0x3f) // PC=01b (current cumulative values)
		cdb[3] = subpage
		binary.BigEndian.PutUint16(cdb[7:], uint16(n))
		if _, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0); err != nil {
			return nil, classifyErr(ds, err)
		}
		return buf, nil
	}

	if knownLen > 0 {
		if knownLen%2 != 0 {
			knownLen++
		}
		data, err := fetch(knownLen)
		return LogSenseResult{PageCode: page, Data: data}, err
	}

	probe, err := fetch(4)
	if err != nil {
		return LogSenseResult{}, err
	}
	total := int(endian.Get16BE(probe, 2)) + 4
	if total%2 != 0 {
		total++
	}
	data, err := fetch(total)
	return LogSenseResult{PageCode: page, Data: data}, err
}

// ModeSense issues MODE SENSE(6) for pageNo/subPageNo with the given page
// control field (spec.md §4.F).
func ModeSense6(d device.ScsiDevice, pageNo, subPageNo, pageCtrl byte) ([]byte, error) {
	buf := make([]byte, 255)
	cdb := CDB6{opModeSense6}
	cdb[2] = (pageCtrl << 6) | (pageNo & 0x3f)
	cdb[3] = subPageNo
	cdb[4] = byte(len(buf))
	_, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0)
	if err != nil {
		return nil, classifyErr(ds, err)
	}
	n := int(buf[0]) + 1
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n], nil
}

// ModeSense10 issues MODE SENSE(10).
func ModeSense10(d device.ScsiDevice, pageNo, subPageNo, pageCtrl byte) ([]byte, error) {
	buf := make([]byte, 255)
	cdb := CDB10{opModeSense10}
	cdb[2] = (pageCtrl << 6) | (pageNo & 0x3f)
	cdb[3] = subPageNo
	binary.BigEndian.PutUint16(cdb[7:], uint16(len(buf)))
	_, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0)
	if err != nil {
		return nil, classifyErr(ds, err)
	}
	n := int(endian.Get16BE(buf, 0)) + 2
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n], nil
}

// prepareModeSelectBuf reuses a MODE SENSE response for MODE SELECT: masks
// the device-specific parameter bit, zeros the mode data length field, and
// clears the PS bit in the page header (spec.md §4.F).
func prepareModeSelectBuf(senseBuf []byte, headerLen int) []byte {
	buf := make([]byte, len(senseBuf))
	copy(buf, senseBuf)
	if headerLen == 4 {
		buf[0] = 0 // mode data length reserved on SELECT
		buf[2] &^= 0x10
	} else {
		binary.BigEndian.PutUint16(buf[0:], 0)
		buf[3] &^= 0x10
	}
	if len(buf) > headerLen {
		buf[headerLen] &^= 0x80 // clear PS bit in page header
	}
	return buf
}

// ModeSelect6 writes back a page previously obtained via ModeSense6.
func ModeSelect6(d device.ScsiDevice, page []byte) error {
	buf := prepareModeSelectBuf(page, 4)
	cdb := CDB6{opModeSelect6, 0x10} // PF=1
	cdb[4] = byte(len(buf))
	_, ds, err := doCDB(d, cdb[:], device.DataOut, buf, 0)
	if err != nil {
		return classifyErr(ds, err)
	}
	return nil
}

// ModeSelect10 writes back a page previously obtained via ModeSense10.
func ModeSelect10(d device.ScsiDevice, page []byte) error {
	buf := prepareModeSelectBuf(page, 8)
	cdb := CDB10{opModeSelect10, 0x10}
	binary.BigEndian.PutUint16(cdb[7:], uint16(len(buf)))
	_, ds, err := doCDB(d, cdb[:], device.DataOut, buf, 0)
	if err != nil {
		return classifyErr(ds, err)
	}
	return nil
}

// Capacity is the parsed result of READ CAPACITY 10/16.
type Capacity struct {
	Bytes               uint64
	LogicalBlockSize    uint32
	ProtectionType      byte
	LBPerPhysicalExp    byte
	LBPME               bool
	LBPRZ               bool
	UsedReadCapacity16  bool
}

// ReadCapacity tries READ CAPACITY(10) first, escalating to READ
// CAPACITY(16) when the 10-byte form reports the 0xFFFFFFFF "too big"
// sentinel or the caller asks for the extended fields (spec.md §4.F).
func ReadCapacity(d device.ScsiDevice, prefer16 bool) (Capacity, error) {
	var cap Capacity

	buf := make([]byte, 8)
	cdb := CDB10{opReadCapacity10}
	_, ds, err := doCDB(d, cdb[:], device.DataIn, buf, 0)
	if err != nil {
		return cap, classifyErr(ds, err)
	}
	lastLBA := endian.Get32BE(buf, 0)
	lbSize := endian.Get32BE(buf, 4)
	cap.LogicalBlockSize = lbSize
	cap.Bytes = (uint64(lastLBA) + 1) * uint64(lbSize)

	if lastLBA != 0xFFFFFFFF && !prefer16 {
		return cap, nil
	}

	buf16 := make([]byte, 32)
	cdb16 := CDB16{opReadCapacity16, 0x10} // service action 0x10
	binary.BigEndian.PutUint32(cdb16[10:], uint32(len(buf16)))
	_, ds, err = doCDB(d, cdb16[:], device.DataIn, buf16, 0)
	if err != nil {
		// READ CAPACITY(16) is optional on some targets; keep the (10)
		// result rather than failing the whole probe.
		return cap, nil
	}

	last64 := endian.Get64BE(buf16, 0)
	lbSize = endian.Get32BE(buf16, 8)
	cap.Bytes = (last64 + 1) * uint64(lbSize)
	cap.LogicalBlockSize = lbSize
	cap.ProtectionType = buf16[12] & 0x07
	cap.LBPerPhysicalExp = buf16[13] & 0x0f
	cap.LBPME = buf16[14]&0x80 != 0
	cap.LBPRZ = buf16[14]&0x40 != 0
	cap.UsedReadCapacity16 = true
	return cap, nil
}

// SendDiagnostic issues SEND DIAGNOSTIC with the self-test bit set to
// selftestcode (used for the SCSI default self-test, distinct from the
// ATA self-test launch path).
func SendDiagnostic(d device.ScsiDevice, selftestCode byte) error {
	cdb := CDB6{opSendDiagnostic}
	cdb[1] = (selftestCode << 5) | 0x04 // SelfTest bit
	_, ds, err := doCDB(d, cdb[:], device.NoData, nil, 0)
	if err != nil {
		return classifyErr(ds, err)
	}
	return nil
}

// OpcodeSupport is a per-device bitmap of supported opcodes, keyed by
// opcode. Nothing in this package fills it; ReportSupportedOpCode answers
// for one opcode per call.
type OpcodeSupport map[byte]bool

// ReportSupportedOpCode issues REPORT SUPPORTED OPERATION CODES for a
// single opcode (one-command form) and reports whether it is supported,
// used to answer "is LOG SENSE subpage-capable?" (spec.md §4.F).
func ReportSupportedOpCode(d device.ScsiDevice, opcode byte) (supported bool, subpageCapable bool, err error) {
	buf := make([]byte, 20)
	cdb := CDB10{opReportSupportedOpCodes, opReportSupportedOpCodesSA}
	cdb[2] = opcode
	binary.BigEndian.PutUint16(cdb[7:], uint16(len(buf)))
	_, ds, derr := doCDB(d, cdb[:], device.DataIn, buf, 0)
	if derr != nil {
		return false, false, classifyErr(ds, derr)
	}
	support := buf[1] & 0x07
	supported = support == 0x03 || support == 0x05
	cdbLen := int(endian.Get16BE(buf, 2))
	if cdbLen >= 2 {
		subpageCapable = buf[4+1] != 0
	}
	return supported, subpageCapable, nil
}

func classifyErr(ds *sense.Disect, err error) error {
	if ds == nil {
		return device.NewError(device.ErrTransportIO, err)
	}
	se := &device.SmartError{Kind: device.ErrSenseCheckCondition, Simple: sense.SimpleFilter(ds), Err: err}
	return se
}
