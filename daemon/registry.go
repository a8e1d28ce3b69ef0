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

// Package daemon wires the daemon loop (spec.md §4.M/§5): device
// construction from parsed config, signal-driven reload/exit, and the
// sleep-until-next-check scheduler. Grounded on the teacher's cmd/main.go
// scan-and-probe sequence, generalized from a one-shot print into a
// persistent registry the monitor engine polls every cycle.
package daemon

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openebs/smart/config"
	"github.com/openebs/smart/device"
	"github.com/openebs/smart/scsismart"
)

// buildDevice constructs a device.SmartDevice for cfg, honoring the -d
// transport hint (spec.md §4.D) when present and auto-detecting the SAT /
// USB-Cypress / plain-SCSI tunnel otherwise (scsismart.Detect).
func buildDevice(cfg *config.DeviceConfig) (*device.SmartDevice, error) {
	hint := strings.ToLower(strings.TrimSpace(cfg.ReportTransport))
	parts := strings.Split(hint, ",")
	transport := parts[0]

	scsi := scsismart.NewSCSIDevice(cfg.Name)

	switch transport {
	case "", "test":
		ata, kind := scsismart.Detect(scsi)
		if kind == device.KindScsi {
			return &device.SmartDevice{Name: cfg.Name, Kind: device.KindScsi, Scsi: scsi}, nil
		}
		sat, ok := ata.(*scsismart.SAT)
		cdbLen := 16
		if ok {
			cdbLen = sat.CdbLen
		}
		return &device.SmartDevice{Name: cfg.Name, Kind: kind, Ata: ata, CdbLen: cdbLen}, nil

	case "scsi":
		return &device.SmartDevice{Name: cfg.Name, Kind: device.KindScsi, Scsi: scsi}, nil

	case "sat":
		cdbLen := 16
		if len(parts) > 1 {
			if n, err := strconv.Atoi(parts[1]); err == nil {
				cdbLen = n
			}
		}
		sat := scsismart.NewSAT(scsi, cdbLen)
		return &device.SmartDevice{Name: cfg.Name, Kind: device.KindSatTunnel, Ata: sat, CdbLen: sat.CdbLen}, nil

	case "usbcypress":
		sig := byte(0x24)
		if len(parts) > 1 {
			v := strings.TrimPrefix(parts[1], "0x")
			if n, err := strconv.ParseUint(v, 16, 8); err == nil {
				sig = byte(n)
			}
		}
		uc := scsismart.NewUsbCypress(scsi, sig)
		return &device.SmartDevice{Name: cfg.Name, Kind: device.KindUsbCypress, Ata: uc}, nil

	case "ata":
		ata, kind := scsismart.Detect(scsi)
		if kind == device.KindScsi {
			return nil, fmt.Errorf("daemon: %s: -d ata requested but device did not answer an ATA IDENTIFY", cfg.Name)
		}
		return &device.SmartDevice{Name: cfg.Name, Kind: kind, Ata: ata}, nil

	default:
		return nil, fmt.Errorf("daemon: %s: unrecognized -d transport %q", cfg.Name, cfg.ReportTransport)
	}
}
