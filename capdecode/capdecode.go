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

// Package capdecode decodes the SMART/SCSI capability and health records
// the monitoring engine diffs cycle over cycle (spec.md §4.N): attribute
// compares, self-test log entries, background-scan status, and TapeAlert
// severities. Grounded on spec.md §4.N and the endian package for the
// 48-bit raw value concatenation.
package capdecode

import "github.com/openebs/smart/endian"

// AttrCompare is the result of comparing one SMART attribute slot across
// two cycles (spec.md §4.N).
type AttrCompare struct {
	ID             uint8
	Prefail        bool
	NormalizedNew  uint8
	NormalizedOld  uint8
	RawChanged     bool
	RawNew         uint64
	RawOld         uint64
}

// smartAttrEntry is the 12-byte on-wire layout of one SMART READ DATA
// attribute entry: id, flags(2), value, worst, raw[6], reserved.
const smartAttrEntrySize = 12

// DecodeRaw48 extracts the 48-bit little-endian raw value from a 6-byte
// field (spec.md §4.N: "little-endian concatenation of bytes raw[0..6]").
func DecodeRaw48(raw6 []byte) uint64 {
	return endian.Get48LE(raw6, 0)
}

// CompareAttribute builds an AttrCompare from the raw bytes of the same
// attribute slot read on two consecutive cycles. entry layout: byte 0
// unused, byte 1 = flags (bit0 = prefail warranty), byte 2 = value, bytes
// 3..8 = raw.
func CompareAttribute(id uint8, oldEntry, newEntry []byte) AttrCompare {
	prefail := len(newEntry) > 2 && newEntry[1]&0x01 != 0

	var rawOld, rawNew uint64
	var valOld, valNew uint8
	if len(oldEntry) >= 9 {
		valOld = oldEntry[2]
		rawOld = DecodeRaw48(oldEntry[3:9])
	}
	if len(newEntry) >= 9 {
		valNew = newEntry[2]
		rawNew = DecodeRaw48(newEntry[3:9])
	}

	return AttrCompare{
		ID:            id,
		Prefail:       prefail,
		NormalizedNew: valNew,
		NormalizedOld: valOld,
		RawChanged:    rawNew != rawOld,
		RawNew:        rawNew,
		RawOld:        rawOld,
	}
}

// SelfTestResult is the decoded result nibble of a self-test log entry
// (spec.md §4.N).
type SelfTestResult int

const (
	SelfTestCompleted SelfTestResult = iota
	SelfTestAbortedByHost
	SelfTestInterrupted
	SelfTestFatal
	SelfTestCompletedWithError // 4-7, increasingly specific segment info
	SelfTestInProgress         // F, low nibble of remaining = percent*10
)

// SelfTestLogEntry is one 20-byte ATA self-test log record (spec.md §4.N).
type SelfTestLogEntry struct {
	Result              SelfTestResult
	ErrorSegment         uint8 // meaningful only for CompletedWithError (4-7)
	PercentRemaining     uint8 // meaningful only for InProgress
	TimestampHours       uint16
	AddressOfFirstFailure uint64
	SenseKey, ASC, ASCQ  uint8 // present only when the test failed
}

// DecodeSelfTestLogEntry parses a 20-byte self-test log entry.
func DecodeSelfTestLogEntry(b []byte) SelfTestLogEntry {
	var e SelfTestLogEntry
	if len(b) < 20 {
		return e
	}
	statusByte := b[1]
	nibble := statusByte >> 4
	remaining := statusByte & 0x0f

	switch {
	case nibble == 0x0:
		e.Result = SelfTestCompleted
	case nibble == 0x1:
		e.Result = SelfTestAbortedByHost
	case nibble == 0x2:
		e.Result = SelfTestInterrupted
	case nibble == 0x3:
		e.Result = SelfTestFatal
	case nibble >= 0x4 && nibble <= 0x7:
		e.Result = SelfTestCompletedWithError
		e.ErrorSegment = nibble
	case nibble == 0xF:
		e.Result = SelfTestInProgress
		e.PercentRemaining = remaining * 10
	}

	e.TimestampHours = endian.Get16LE(b, 2)
	e.AddressOfFirstFailure = endian.Get48LE(b, 4) // LBA of first failure, 48-bit
	if e.Result == SelfTestCompletedWithError {
		e.SenseKey = b[15] & 0x0f
		e.ASC = b[16]
		e.ASCQ = b[17]
	}
	return e
}

// BackgroundScanStatus is the status code in SCSI background scan results
// log page 0x15 (spec.md §4.N).
type BackgroundScanStatus int

const (
	BGScanIdle BackgroundScanStatus = iota
	BGScanActive
	BGScanPreScan
	BGScanHaltedFatal
	BGScanHaltedVendor
	BGScanHaltedNoPList
	BGScanHaltedVendor2
	BGScanHaltedTemp
	BGScanTimerWait
)

// DecodeBackgroundScanStatus maps the raw status byte to the enum.
func DecodeBackgroundScanStatus(code byte) BackgroundScanStatus {
	switch code {
	case 0:
		return BGScanIdle
	case 1:
		return BGScanActive
	case 2:
		return BGScanPreScan
	case 3:
		return BGScanHaltedFatal
	case 4:
		return BGScanHaltedVendor
	case 5:
		return BGScanHaltedNoPList
	case 6:
		return BGScanHaltedVendor2
	case 7:
		return BGScanHaltedTemp
	case 8:
		return BGScanTimerWait
	default:
		return BGScanIdle
	}
}

// TapeAlertSeverity is derived from the first character of a TapeAlert's
// text table entry (spec.md §4.N).
type TapeAlertSeverity byte

const (
	SeverityInfo     TapeAlertSeverity = 'I'
	SeverityWarning  TapeAlertSeverity = 'W'
	SeverityCritical TapeAlertSeverity = 'C'
)

// TapeAlertParam is one 5-byte TapeAlert log page 0x2E parameter
// (spec.md §4.N).
type TapeAlertParam struct {
	ParamCode uint16
	Flags     byte
	BoolValue bool
}

// DecodeTapeAlerts parses the concatenated 5-byte TapeAlert parameters out
// of a LOG SENSE page 0x2E payload (starting after the 4-byte LOG SENSE
// header).
func DecodeTapeAlerts(payload []byte) []TapeAlertParam {
	var out []TapeAlertParam
	for off := 0; off+5 <= len(payload); off += 5 {
		length := payload[off+3]
		if length != 1 {
			continue
		}
		out = append(out, TapeAlertParam{
			ParamCode: endian.Get16BE(payload, off),
			Flags:     payload[off+2],
			BoolValue: payload[off+4] != 0,
		})
	}
	return out
}

// SeverityOf maps a TapeAlert parameter code to its severity by the first
// character of its text-table entry, using severityTable.
func SeverityOf(paramCode uint16) TapeAlertSeverity {
	if sev, ok := severityTable[paramCode]; ok {
		return sev
	}
	return SeverityInfo
}

// severityTable is a representative subset of the standard TapeAlert flag
// text table (SSC-3 annex), keyed by parameter code (1-based).
var severityTable = map[uint16]TapeAlertSeverity{
	0x01: SeverityWarning,  // Read warning
	0x02: SeverityWarning,  // Write warning
	0x03: SeverityCritical, // Hard error
	0x04: SeverityWarning,  // Media life
	0x05: SeverityWarning,  // Not data grade
	0x14: SeverityCritical, // Clean now
	0x15: SeverityWarning,  // Clean periodic
	0x20: SeverityInfo,     // Cartridge
}
