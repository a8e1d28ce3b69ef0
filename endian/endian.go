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

// Package endian reads and writes unaligned 16/24/32/48/64-bit integers at
// arbitrary byte offsets, in either big-endian (SCSI wire format) or
// little-endian (ATA/PCI convention) order.
package endian

import "encoding/binary"

// Get16BE reads a big-endian uint16 at offset off.
func Get16BE(b []byte, off int) uint16 { return binary.BigEndian.Uint16(b[off:]) }

// Get16LE reads a little-endian uint16 at offset off.
func Get16LE(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }

// Get24BE reads a big-endian 24-bit unsigned integer at offset off.
func Get24BE(b []byte, off int) uint32 {
	return uint32(b[off])<<16 | uint32(b[off+1])<<8 | uint32(b[off+2])
}

// Get24LE reads a little-endian 24-bit unsigned integer at offset off.
func Get24LE(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16
}

// Get32BE reads a big-endian uint32 at offset off.
func Get32BE(b []byte, off int) uint32 { return binary.BigEndian.Uint32(b[off:]) }

// Get32LE reads a little-endian uint32 at offset off.
func Get32LE(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

// Get48BE reads a big-endian 48-bit unsigned integer at offset off.
func Get48BE(b []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v = v<<8 | uint64(b[off+i])
	}
	return v
}

// Get48LE reads a little-endian 48-bit unsigned integer at offset off.
// This is the layout used for a SMART attribute's raw value (raw[0..6)).
func Get48LE(b []byte, off int) uint64 {
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(b[off+i])
	}
	return v
}

// Get64BE reads a big-endian uint64 at offset off.
func Get64BE(b []byte, off int) uint64 { return binary.BigEndian.Uint64(b[off:]) }

// Get64LE reads a little-endian uint64 at offset off.
func Get64LE(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

// Put16BE writes a big-endian uint16 at offset off.
func Put16BE(b []byte, off int, v uint16) { binary.BigEndian.PutUint16(b[off:], v) }

// Put16LE writes a little-endian uint16 at offset off.
func Put16LE(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }

// Put24BE writes a big-endian 24-bit unsigned integer at offset off.
func Put24BE(b []byte, off int, v uint32) {
	b[off] = byte(v >> 16)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v)
}

// Put24LE writes a little-endian 24-bit unsigned integer at offset off.
func Put24LE(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
}

// Put32BE writes a big-endian uint32 at offset off.
func Put32BE(b []byte, off int, v uint32) { binary.BigEndian.PutUint32(b[off:], v) }

// Put32LE writes a little-endian uint32 at offset off.
func Put32LE(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

// Put48BE writes a big-endian 48-bit unsigned integer at offset off. The top
// 16 bits of v are ignored.
func Put48BE(b []byte, off int, v uint64) {
	for i := 5; i >= 0; i-- {
		b[off+i] = byte(v)
		v >>= 8
	}
}

// Put48LE writes a little-endian 48-bit unsigned integer at offset off. The
// top 16 bits of v are ignored.
func Put48LE(b []byte, off int, v uint64) {
	for i := 0; i < 6; i++ {
		b[off+i] = byte(v)
		v >>= 8
	}
}

// Put64BE writes a big-endian uint64 at offset off.
func Put64BE(b []byte, off int, v uint64) { binary.BigEndian.PutUint64(b[off:], v) }

// Put64LE writes a little-endian uint64 at offset off.
func Put64LE(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }
