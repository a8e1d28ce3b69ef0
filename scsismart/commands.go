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

// SCSI command definitions.

package scsismart

import "fmt"

// SCSI commands being used.
const (
	opInquiry                  = 0x12
	opModeSense6               = 0x1a
	opModeSelect6              = 0x15
	opModeSense10              = 0x5a
	opModeSelect10             = 0x55
	opReadCapacity10           = 0x25
	opReadCapacity16           = 0x9e // SERVICE ACTION IN(16), service action 0x10, issued as 16-byte CDB
	opTestUnitReady            = 0x00
	opRequestSense             = 0x03
	opLogSense                 = 0x4d
	opSendDiagnostic           = 0x1d
	opReportSupportedOpCodes   = 0xa3
	opReportSupportedOpCodesSA = 0x0c

	opSATAtaPassThrough16 = 0x85
	opSATAtaPassThrough12 = 0xa1

	// Minimum length of a standard INQUIRY response.
	inqRespLenMin = 36
	inqRespLenMax = 64

	// SCSI-3 mode pages used by this module.
	pageInformationalExceptions = 0x1c
	pageSupportedPages          = 0x00

	// Mode page control field values.
	modePageControlCurrent = 0
	modePageControlDefault = 2
)

// CDB6/CDB10/CDB16 are fixed-size Command Descriptor Blocks.
type CDB6 [6]byte
type CDB10 [10]byte
type CDB16 [16]byte

// InquiryResponse is the struct for the standard SCSI INQUIRY response.
type InquiryResponse struct {
	Peripheral byte
	_          byte
	Version    byte
	_          [5]byte
	VendorID   [8]byte
	ProductID  [16]byte
	ProductRev [4]byte
}

func (inquiry InquiryResponse) String() string {
	return fmt.Sprintf("%.8s  %.16s  %.4s", inquiry.VendorID, inquiry.ProductID, inquiry.ProductRev)
}

// IsATABridge reports whether the INQUIRY vendor ID is the "ATA     "
// string SAT-layer bridges report (spec.md §4.F).
func (inquiry InquiryResponse) IsATABridge() bool {
	return inquiry.VendorID == [8]byte{'A', 'T', 'A', ' ', ' ', ' ', ' ', ' '}
}
