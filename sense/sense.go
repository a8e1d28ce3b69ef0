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

// Package sense normalizes fixed- and descriptor-format SCSI sense data
// into a single disected record, and classifies it into the small set of
// conditions the monitoring engine cares about.
package sense

import "github.com/openebs/smart/endian"

// Sense key values (SPC-4 table 43).
const (
	KeyNoSense        = 0x0
	KeyRecoveredError = 0x1
	KeyNotReady       = 0x2
	KeyMediumError    = 0x3
	KeyHardwareError  = 0x4
	KeyIllegalRequest = 0x5
	KeyUnitAttention  = 0x6
	KeyDataProtect    = 0x7
	KeyBlankCheck     = 0x8
	KeyAborted        = 0xB
	KeyMiscompare     = 0xE
	KeyCompleted      = 0xF
)

// Additional sense codes used by SimpleFilter.
const (
	ascNoMedium     = 0x3A
	ascNotReady     = 0x04
	ascqBecomeReady = 0x01
	ascUnknownOp    = 0x20
	ascInvalidField = 0x24
	ascUnknownParam = 0x26

	// AscqATAPassThroughInfo is ASCQ 0x1D for ASC 0x00 ("ATA PASS THROUGH
	// INFORMATION AVAILABLE"), the non-ck_cond success indication used by
	// the SAT tunnel (spec.md §4.E).
	AscqATAPassThroughInfo = 0x1D

	// AscSelfTestInProgress / AscqSelfTestInProgress: "LOGICAL UNIT NOT
	// READY, SELF-TEST IN PROGRESS" (spec.md §4.L).
	AscSelfTestInProgress  = 0x04
	AscqSelfTestInProgress = 0x09
)

// Disect is the normalized sense record (spec.md §3 SenseDisect).
type Disect struct {
	ResponseCode byte
	SenseKey     byte
	ASC          byte
	ASCQ         byte
	Progress     *uint16 // self-test / format progress, if reported
}

// Descriptor format response codes are >= 0x72; fixed format are 0x70/0x71.
func isValidResponseCode(code byte) bool {
	switch code & 0x7f {
	case 0x70, 0x71, 0x72, 0x73:
		return true
	}
	return false
}

// Normalize parses raw sense bytes into a Disect. It returns nil, without
// reading any other field, when byte 0's low 7 bits are not a recognized
// response code (spec.md §8 invariant 3).
func Normalize(b []byte) *Disect {
	if len(b) == 0 || !isValidResponseCode(b[0]) {
		return nil
	}

	resp := b[0] & 0x7f
	d := &Disect{ResponseCode: resp}

	if resp >= 0x72 {
		if len(b) > 3 {
			d.SenseKey = b[1] & 0x0f
			d.ASC = b[2]
			d.ASCQ = b[3]
		}
		d.Progress = descriptorProgress(b)
	} else {
		if len(b) > 2 {
			d.SenseKey = b[2] & 0x0f
		}
		if len(b) > 7 {
			addlLen := int(b[7])
			if addlLen+8 > 13 && len(b) > 13 {
				d.ASC = b[12]
				d.ASCQ = b[13]
			}
		}
		d.Progress = fixedProgress(b)
	}

	return d
}

// fixedProgress extracts the SKSV progress indicator (bytes 15-17) from
// fixed-format sense, when the sense key is NO SENSE or NOT READY.
func fixedProgress(b []byte) *uint16 {
	if len(b) < 3 || len(b) < 18 {
		return nil
	}
	sk := b[2] & 0x0f
	if sk != KeyNoSense && sk != KeyNotReady {
		return nil
	}
	if b[15]&0x80 == 0 {
		return nil
	}
	v := endian.Get16BE(b, 16)
	return &v
}

// descriptorProgress extracts progress from a sense-key-specific (type 2)
// or progress (type 0xa) descriptor in descriptor-format sense.
func descriptorProgress(b []byte) *uint16 {
	if len(b) < 2 {
		return nil
	}
	sk := b[1] & 0x0f
	if sk == KeyNoSense || sk == KeyNotReady {
		if d := FindDescriptor(b, 0x02); d != nil && len(d) >= 7 && d[1] == 0x06 && d[4]&0x80 != 0 {
			v := endian.Get16BE(d, 5)
			return &v
		}
	}
	if d := FindDescriptor(b, 0x0a); d != nil && len(d) >= 8 && d[1] == 0x06 {
		v := endian.Get16BE(d, 6)
		return &v
	}
	return nil
}

// FindDescriptor returns the payload of the first descriptor of descType in
// descriptor-format sense data (starting at offset 8), or nil if the sense
// is not descriptor-format or no such descriptor is present. The ATA Return
// Descriptor has descType 0x09 (spec.md §4.C/§4.E).
func FindDescriptor(b []byte, descType byte) []byte {
	if len(b) < 8 {
		return nil
	}
	resp := b[0] & 0x7f
	if resp < 0x72 || resp > 0x73 {
		return nil
	}
	addlLen := int(b[7])
	if addlLen == 0 {
		return nil
	}
	if addlLen > len(b)-8 {
		addlLen = len(b) - 8
	}

	off := 8
	for k := 0; k < addlLen; {
		if off+1 >= len(b) {
			return nil
		}
		dlen := int(b[off+1])
		total := dlen + 2
		if b[off] == descType {
			end := off + total
			if end > len(b) {
				end = len(b)
			}
			return b[off:end]
		}
		k += total
		off += total
	}
	return nil
}

// SimpleErr classifies a Disect into the coarse categories the engine
// branches on (spec.md §4.C).
type SimpleErr int

const (
	Ok SimpleErr = iota
	NotReady
	NoMedium
	BecomingReady
	BadOpcode
	BadField
	BadParam
	MediumOrHardware
	Aborted
	Protection
	Miscompare
	TryAgain
	Unknown
)

// SimpleFilter classifies sense per spec.md §4.C.
func SimpleFilter(d *Disect) SimpleErr {
	if d == nil {
		return Ok
	}
	switch d.SenseKey {
	case KeyNoSense, KeyRecoveredError, KeyCompleted:
		return Ok
	case KeyNotReady:
		switch {
		case d.ASC == ascNoMedium:
			return NoMedium
		case d.ASC == ascNotReady && d.ASCQ == ascqBecomeReady:
			return BecomingReady
		case d.ASC == ascNotReady:
			return NotReady
		default:
			return NotReady
		}
	case KeyMediumError, KeyHardwareError:
		return MediumOrHardware
	case KeyIllegalRequest:
		switch d.ASC {
		case ascUnknownOp:
			return BadOpcode
		case ascInvalidField:
			return BadField
		case ascUnknownParam:
			return BadParam
		default:
			return BadParam
		}
	case KeyUnitAttention:
		return TryAgain
	case KeyAborted:
		return Aborted
	case KeyDataProtect:
		return Protection
	case KeyMiscompare:
		return Miscompare
	default:
		return Unknown
	}
}

// IsSelfTestInProgress reports whether sense indicates a self-test already
// running on the device (spec.md §4.L).
func IsSelfTestInProgress(d *Disect) bool {
	return d != nil && d.SenseKey == KeyNotReady &&
		d.ASC == AscSelfTestInProgress && d.ASCQ == AscqSelfTestInProgress
}
