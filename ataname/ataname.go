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

// Package ataname provides a static ATA opcode (and, for a handful of
// opcodes, feature register) to mnemonic lookup for diagnostics. No command
// path in this module consults it. It carries no device state.
package ataname

const reserved = "[RESERVED]"

// commandTable maps the ATA command-register opcode byte to its mnemonic.
// Opcodes absent from this table fall back to reserved. This is not an
// exhaustive transcription of every ATA8-ACS opcode; it covers the opcodes
// this module actually issues or reports on plus the well-known ones an
// operator is likely to see in a trace.
var commandTable = map[byte]string{
	0x00: "NOP",
	0x08: "DEVICE RESET",
	0x20: "READ SECTOR(S)",
	0x24: "READ SECTOR(S) EXT",
	0x25: "READ DMA EXT",
	0x30: "WRITE SECTOR(S)",
	0x34: "WRITE SECTOR(S) EXT",
	0x35: "WRITE DMA EXT",
	0x70: "SEEK",
	0x90: "EXECUTE DEVICE DIAGNOSTIC",
	0x91: "INITIALIZE DEVICE PARAMETERS",
	0x92: "DOWNLOAD MICROCODE",
	0xA0: "PACKET",
	0xA1: "IDENTIFY PACKET DEVICE",
	0xB0: "SMART",
	0xB1: "DEVICE CONFIGURATION",
	0xC4: "READ MULTIPLE",
	0xC6: "SET MULTIPLE MODE",
	0xC8: "READ DMA",
	0xCA: "WRITE DMA",
	0xE0: "STANDBY IMMEDIATE",
	0xE1: "IDLE IMMEDIATE",
	0xE2: "STANDBY",
	0xE3: "IDLE",
	0xE4: "READ BUFFER",
	0xE5: "CHECK POWER MODE",
	0xE6: "SLEEP",
	0xE7: "FLUSH CACHE",
	0xE8: "WRITE BUFFER",
	0xEA: "FLUSH CACHE EXT",
	0xEC: "IDENTIFY DEVICE",
	0xED: "MEDIA EJECT",
	0xEF: "SET FEATURES",
	0xF1: "SECURITY SET PASSWORD",
	0xF2: "SECURITY UNLOCK",
	0xF3: "SECURITY ERASE PREPARE",
	0xF4: "SECURITY ERASE UNIT",
	0xF5: "SECURITY FREEZE LOCK",
	0xF6: "SECURITY DISABLE PASSWORD",
	0xF8: "READ NATIVE MAX ADDRESS",
	0xF9: "SET MAX",
}

// smartSubCommands maps the feature register value to a SMART (0xB0)
// sub-command name. The same feature values appear as the smart* constants
// in package atasmart.
var smartSubCommands = map[byte]string{
	0xD0: "SMART READ DATA",
	0xD1: "SMART READ ATTRIBUTE THRESHOLDS",
	0xD2: "SMART ENABLE/DISABLE ATTRIBUTE AUTOSAVE",
	0xD4: "SMART EXECUTE OFF-LINE IMMEDIATE",
	0xD5: "SMART READ LOG",
	0xD6: "SMART WRITE LOG",
	0xD8: "SMART ENABLE OPERATIONS",
	0xD9: "SMART DISABLE OPERATIONS",
	0xDA: "SMART RETURN STATUS",
	0xDB: "SMART EN/DISABLE AUTO OFFLINE",
}

var deviceConfigSubCommands = map[byte]string{
	0xC0: "DEVICE CONFIGURATION RESTORE",
	0xC1: "DEVICE CONFIGURATION FREEZE LOCK",
	0xC2: "DEVICE CONFIGURATION IDENTIFY",
	0xC3: "DEVICE CONFIGURATION SET",
}

var setFeaturesSubCommands = map[byte]string{
	0x02: "SET FEATURES [Enable write cache]",
	0x05: "SET FEATURES [Enable APM]",
	0x42: "SET FEATURES [Enable AAM]",
	0x55: "SET FEATURES [Disable read look-ahead]",
	0x82: "SET FEATURES [Disable write cache]",
	0x85: "SET FEATURES [Disable APM]",
	0xAA: "SET FEATURES [Enable read look-ahead]",
	0xCC: "SET FEATURES [Enable revert defaults]",
}

var setMaxSubCommands = map[byte]string{
	0x00: "SET MAX ADDRESS",
	0x01: "SET MAX PASSWORD",
	0x02: "SET MAX LOCK",
	0x03: "SET MAX UNLOCK",
	0x04: "SET MAX FREEZE LOCK",
}

var downloadMicrocodeSubCommands = map[byte]string{
	0x01: "DOWNLOAD MICROCODE [Temporary]",
	0x03: "DOWNLOAD MICROCODE [Offsets, temporary]",
	0x07: "DOWNLOAD MICROCODE [Save]",
	0x0E: "DOWNLOAD MICROCODE [Offsets, save]",
}

// Name returns the mnemonic for opcode, consulting the feature register for
// the small set of opcodes that sub-dispatch on it. Unknown opcodes or
// sub-commands report a bracketed placeholder rather than panicking, since
// this is diagnostic-only and must never block a command from being issued.
func Name(opcode, feature byte) string {
	switch opcode {
	case 0x00:
		switch feature {
		case 0x00:
			return "NOP [Abort queued commands]"
		case 0x01:
			return "NOP [Don't abort queued commands]"
		default:
			return "NOP [Reserved subcommand]"
		}
	case 0x92:
		if s, ok := downloadMicrocodeSubCommands[feature]; ok {
			return s
		}
		return "DOWNLOAD MICROCODE [Reserved subcommand]"
	case 0xB0:
		if s, ok := smartSubCommands[feature]; ok {
			return s
		}
		if feature >= 0xE0 {
			return "[Vendor specific SMART command]"
		}
		return "[Reserved SMART command]"
	case 0xB1:
		if s, ok := deviceConfigSubCommands[feature]; ok {
			return s
		}
		return "DEVICE CONFIGURATION [Reserved command]"
	case 0xEF:
		if s, ok := setFeaturesSubCommands[feature]; ok {
			return s
		}
		return "SET FEATURES [Reserved subcommand]"
	case 0xF9:
		if s, ok := setMaxSubCommands[feature]; ok {
			return s
		}
		return "SET MAX [Reserved subcommand]"
	}

	if name, ok := commandTable[opcode]; ok {
		return name
	}
	return reserved
}
