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

// See Linux man-pages http://man7.org/linux/man-pages/man2/capset.2.html

package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	linuxCapabilityVersion3 = 0x20080522
	capSysRawIO             = 1 << 17
	capSysAdmin             = 1 << 21
)

type userCapHeader struct {
	version uint32
	pid     int
}

type userCapData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

type userCapsV3 struct {
	hdr  userCapHeader
	data [2]userCapData
}

// CapabilitiesCheck invokes the CAPGET syscall to check for the
// capabilities device access requires. Note: if the process runs as root
// it already has every capability set. It returns ok=false and a
// human-readable reason when device access is expected to fail, rather
// than printing directly, so callers can route the message through their
// own logging sink (spec.md's "Core invokes log(priority, message)" hook).
func CapabilitiesCheck() (ok bool, reason string) {
	userCaps := new(userCapsV3)
	userCaps.hdr.version = linuxCapabilityVersion3

	_, _, errno := unix.RawSyscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(&userCaps.hdr)), uintptr(unsafe.Pointer(&userCaps.data)), 0)
	if errno != 0 {
		return false, "SYS_CAPGET() failed: " + errno.Error()
	}

	if (userCaps.data[0].effective&capSysRawIO == 0) && (userCaps.data[0].effective&capSysAdmin == 0) {
		return false, "neither CAP_SYS_RAWIO nor CAP_SYS_ADMIN is in effect; device access will fail"
	}
	return true, ""
}

// SGIO is the Linux SG_IO ioctl request number used by the SCSI generic
// (sg) transport (spec.md §4.D Transport). Centralized here, rather than
// duplicated in scsismart, so any future transport (e.g. a native block
// ioctl path) shares one entry point.
const SGIO = 0x2285

// Do issues the SG_IO ioctl against fd with the given sg_io_hdr_t pointer.
func Do(fd int, hdrPtr uintptr) error {
	return Ioctl(uintptr(fd), SGIO, hdrPtr)
}
