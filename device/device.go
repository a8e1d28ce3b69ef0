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

// Package device defines the polymorphic device abstraction: the transport
// contract every concrete device type is built on, the AtaDevice/ScsiDevice
// command interfaces, and the SmartDevice sum type the monitoring engine
// holds one of per configured device (spec.md §3/§4.D).
package device

import "fmt"

// Direction is the data transfer direction of a pass-through command.
type Direction int

const (
	NoData Direction = iota
	DataIn
	DataOut
)

// Transport is the narrow contract the OS-specific backend must satisfy.
// Everything above this line in the spec's dependency order is
// OS-independent; everything at or below it is supplied by the host
// platform. No type in this module implements it: scsismart's SG_IO
// backend (SCSIDevice) implements ScsiDevice directly.
type Transport interface {
	// PassThrough sends cdb to the device, transferring buf in the given
	// direction, and fills senseOut with whatever sense data the transport
	// captured (may be empty on a GOOD status). timeout is in seconds.
	PassThrough(cdb []byte, dir Direction, buf []byte, timeout int, senseOut *[]byte) error
}

// Opener is implemented by every concrete device handle.
type Opener interface {
	Open() error
	Close() error
	// LastError returns the most recently recorded error, or nil.
	LastError() error
}

// AtaRegs is the 7 ATA taskfile registers plus the 48-bit shadow ("prev")
// register set (spec.md §3 AtaInRegs/AtaOutRegs).
type AtaRegs struct {
	Features    byte
	SectorCount byte
	LbaLow      byte
	LbaMid      byte
	LbaHigh     byte
	Device      byte
	Command     byte

	// Prev holds the high-order byte of each register for 48-bit commands.
	// Only Features, SectorCount, LbaLow, LbaMid, LbaHigh have a Prev
	// counterpart; Device and Command do not repeat.
	Prev struct {
		Features    byte
		SectorCount byte
		LbaLow      byte
		LbaMid      byte
		LbaHigh     byte
	}
}

// OutNeeded is a bitmask of which output registers the caller wants back.
// Requesting any of them forces the SAT tunnel's ck_cond bit.
type OutNeeded uint8

const (
	OutError OutNeeded = 1 << iota
	OutSectorCount
	OutLbaLow
	OutLbaMid
	OutLbaHigh
	OutDevice
	OutStatus
)

func (o OutNeeded) Any() bool { return o != 0 }

// AtaCmdIn is one ATA pass-through request.
type AtaCmdIn struct {
	Regs      AtaRegs
	Is48Bit   bool
	Direction Direction
	Buf       []byte // nil for non-data commands
	OutNeeded OutNeeded
	Timeout   int // seconds; 0 selects the transport default
}

// AtaCmdOut carries back whatever output registers were requested.
type AtaCmdOut struct {
	Error       byte
	SectorCount byte
	LbaLow      byte
	LbaMid      byte
	LbaHigh     byte
	DeviceReg   byte
	Status      byte
}

// AtaDevice is implemented by anything that can tunnel an ATA command,
// whether directly (a hypothetical native ATA transport) or via SCSI-ATA
// Translation (spec.md §4.D/§4.E).
type AtaDevice interface {
	Opener
	AtaPassThrough(in AtaCmdIn) (AtaCmdOut, error)
}

// ScsiCmdIn is one SCSI pass-through request.
type ScsiCmdIn struct {
	CDB       []byte
	Direction Direction
	Buf       []byte
	Timeout   int
}

// ScsiCmdOut carries back the command's sense data (if any) and status.
type ScsiCmdOut struct {
	Status byte
	Sense  []byte
}

// ScsiDevice is implemented by anything that can issue a raw SCSI CDB.
type ScsiDevice interface {
	Opener
	ScsiPassThrough(in ScsiCmdIn) (ScsiCmdOut, error)
}

// Kind tags which concrete variant a SmartDevice wraps.
type Kind int

const (
	KindAta Kind = iota
	KindScsi
	KindSatTunnel
	KindUsbCypress
)

func (k Kind) String() string {
	switch k {
	case KindAta:
		return "ata"
	case KindScsi:
		return "scsi"
	case KindSatTunnel:
		return "sat"
	case KindUsbCypress:
		return "usbcypress"
	default:
		return "unknown"
	}
}

// SmartDevice is the polymorphic handle the monitoring engine holds: a sum
// type over the concrete variants (spec.md §3 SmartDevice). Exactly one of
// Ata/Scsi is non-nil, matching whichever Kind is set.
type SmartDevice struct {
	Name string
	Kind Kind

	Ata  AtaDevice
	Scsi ScsiDevice

	// CdbLen is meaningful only for KindSatTunnel: 12 or 16.
	CdbLen int

	open bool
	last error
}

// Open opens the underlying device exactly once; repeat calls are no-ops.
// Lifecycle: created by a factory, opened lazily or eagerly, may be closed
// and reopened between polling cycles, destroyed on reconfigure or daemon
// exit (spec.md §3).
func (d *SmartDevice) Open() error {
	if d.open {
		return nil
	}
	var err error
	switch d.Kind {
	case KindAta, KindSatTunnel, KindUsbCypress:
		err = d.Ata.Open()
	case KindScsi:
		err = d.Scsi.Open()
	default:
		err = fmt.Errorf("device: unknown kind %v", d.Kind)
	}
	if err != nil {
		d.last = err
		return err
	}
	d.open = true
	return nil
}

// Close releases the underlying handle.
func (d *SmartDevice) Close() error {
	if !d.open {
		return nil
	}
	var err error
	switch d.Kind {
	case KindAta, KindSatTunnel, KindUsbCypress:
		err = d.Ata.Close()
	case KindScsi:
		err = d.Scsi.Close()
	}
	d.open = false
	return err
}

// IsOpen reports whether Open has succeeded and Close has not yet run.
func (d *SmartDevice) IsOpen() bool { return d.open }

// LastError returns the most recently recorded error for this handle.
func (d *SmartDevice) LastError() error { return d.last }

// IsScsi reports whether this handle is a plain SCSI device, with no ATA
// tunnel.
func (d *SmartDevice) IsScsi() bool { return d.Kind == KindScsi }

// Context replaces the source's process-wide verbosity/tracing global
// variable ("con" in the original) with an explicit, passed-by-reference
// struct (spec.md §9).
type Context struct {
	Debug      uint8
	ReportSCSI uint8
	ReportATA  uint8
	Permissive bool
}
