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

// Package scsismart implements the SCSI command transport, the Linux SG_IO
// backend (SCSIDevice, a device.ScsiDevice), typed SCSI command helpers, and the SAT (SCSI-
// ATA Translation) tunnel that lets the ATA command layer run over a plain
// SCSI device (spec.md §4.D/§4.E/§4.F).
package scsismart

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/openebs/smart/device"
	"github.com/openebs/smart/ioctl"
)

// SCSI generic (sg) data transfer directions.
// See dxfer_direction http://sg.danny.cz/sg/p/sg_v3_ho.html
const (
	sgDxferNone    = -1
	sgDxferToDev   = -2
	sgDxferFromDev = -3

	sgInfoOkMask = 0x1
	sgInfoOk     = 0x0

	// DefaultTimeout is the default pass-through timeout (spec.md §5:
	// "typical timeout 60 s"), expressed in milliseconds for the ioctl.
	DefaultTimeout = 60000
)

// sgIOHeader mirrors Linux's sg_io_hdr_t. See http://sg.danny.cz/sg/p/sg_v3_ho.html
type sgIOHeader struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSBLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

// senseBufLen is the sense buffer size requested of the kernel; large
// enough to hold descriptor-format sense plus the ATA return descriptor.
const senseBufLen = 64

// SCSIDevice is a raw SCSI generic device reached over Linux's SG_IO ioctl.
// It implements device.ScsiDevice.
type SCSIDevice struct {
	Name string
	fd   int
	last error
}

// NewSCSIDevice constructs an unopened handle for name.
func NewSCSIDevice(name string) *SCSIDevice { return &SCSIDevice{Name: name} }

// Open implements device.Opener.
func (d *SCSIDevice) Open() error {
	fd, err := unix.Open(d.Name, unix.O_RDWR, 0)
	if err != nil {
		d.last = err
		return err
	}
	d.fd = fd
	return nil
}

// Close implements device.Opener.
func (d *SCSIDevice) Close() error {
	if d.fd == 0 {
		return nil
	}
	return unix.Close(d.fd)
}

// LastError implements device.Opener.
func (d *SCSIDevice) LastError() error { return d.last }

// sgIOErr reports a non-GOOD SCSI status or host/driver level failure.
type sgIOErr struct {
	scsiStatus   uint8
	hostStatus   uint16
	driverStatus uint16
}

func (e sgIOErr) Error() string {
	return fmt.Sprintf("SCSI status: %#02x, host status: %#02x, driver status: %#02x",
		e.scsiStatus, e.hostStatus, e.driverStatus)
}

// ScsiPassThrough implements device.ScsiDevice by issuing in.CDB via SG_IO.
// It never retries: the UNIT ATTENTION retry policy of spec.md §4.D/§5
// belongs to the ATA-over-SAT layer, which wraps this call, not to the raw
// SCSI transport.
func (d *SCSIDevice) ScsiPassThrough(in device.ScsiCmdIn) (device.ScsiCmdOut, error) {
	sb := make([]byte, senseBufLen)
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout / 1000
	}

	hdr := sgIOHeader{
		interfaceID: 'S',
		cmdLen:      uint8(len(in.CDB)),
		mxSBLen:     uint8(len(sb)),
		timeout:     uint32(timeout * 1000),
		cmdp:        uintptr(unsafe.Pointer(&in.CDB[0])),
		sbp:         uintptr(unsafe.Pointer(&sb[0])),
	}

	switch in.Direction {
	case device.NoData:
		hdr.dxferDirection = sgDxferNone
	case device.DataIn:
		hdr.dxferDirection = sgDxferFromDev
		hdr.dxferLen = uint32(len(in.Buf))
		if len(in.Buf) > 0 {
			hdr.dxferp = uintptr(unsafe.Pointer(&in.Buf[0]))
		}
	case device.DataOut:
		hdr.dxferDirection = sgDxferToDev
		hdr.dxferLen = uint32(len(in.Buf))
		if len(in.Buf) > 0 {
			hdr.dxferp = uintptr(unsafe.Pointer(&in.Buf[0]))
		}
	}

	if err := ioctl.Do(d.fd, uintptr(unsafe.Pointer(&hdr))); err != nil {
		d.last = err
		return device.ScsiCmdOut{}, device.NewError(device.ErrTransportIO, err)
	}

	out := device.ScsiCmdOut{Status: hdr.status, Sense: sb[:hdr.sbLenWr]}

	if hdr.info&sgInfoOkMask != sgInfoOk {
		err := sgIOErr{scsiStatus: hdr.status, hostStatus: hdr.hostStatus, driverStatus: hdr.driverStatus}
		d.last = err
		return out, err
	}

	return out, nil
}
