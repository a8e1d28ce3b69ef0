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

package config

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// DeviceScanSentinel is the special device-name token that expands to one
// entry per enumerated device (spec.md §4.I).
const DeviceScanSentinel = "DEVICESCAN"

// joinContinuations folds trailing-backslash line continuations into a
// single logical line per spec.md §4.I's `continuation := '\' EOL` rule.
func joinContinuations(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	var cur strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, `\`) {
			cur.WriteString(strings.TrimSuffix(line, `\`))
			cur.WriteByte(' ')
			continue
		}
		cur.WriteString(line)
		lines = append(lines, cur.String())
		cur.Reset()
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines, scanner.Err()
}

// stripComment removes a trailing `#...` comment, respecting none of the
// directive arguments this grammar uses actually contain '#'.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// Parse reads the device-entry grammar of spec.md §4.I from r. scanFunc
// enumerates devices for DEVICESCAN expansion (nil disables expansion,
// useful in tests). It returns one DeviceConfig per concrete device.
func Parse(r io.Reader, scanFunc func() ([]string, error)) ([]*DeviceConfig, error) {
	rawLines, err := joinContinuations(r)
	if err != nil {
		return nil, err
	}

	var entries []*DeviceConfig
	sawDeviceScan := false

	for lineNo, raw := range rawLines {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		name := fields[0]
		args := fields[1:]

		if name == DeviceScanSentinel {
			if len(entries) > 0 {
				return nil, fmt.Errorf("config: line %d: %s must be the only entry", lineNo+1, DeviceScanSentinel)
			}
			sawDeviceScan = true
			tmpl := &DeviceConfig{Name: DeviceScanSentinel}
			if err := applyDirectives(tmpl, args, lineNo+1); err != nil {
				return nil, err
			}
			if err := tmpl.sanityCheck(); err != nil {
				return nil, err
			}

			if scanFunc == nil {
				return []*DeviceConfig{tmpl}, nil
			}
			names, err := scanFunc()
			if err != nil {
				return nil, fmt.Errorf("config: DEVICESCAN: %w", err)
			}
			for _, n := range names {
				cfg := *tmpl
				cfg.Name = n
				entries = append(entries, &cfg)
			}
			return entries, nil
		}

		if sawDeviceScan {
			return nil, fmt.Errorf("config: line %d: %s must be the only entry", lineNo+1, DeviceScanSentinel)
		}

		cfg := &DeviceConfig{Name: name}
		if err := applyDirectives(cfg, args, lineNo+1); err != nil {
			return nil, err
		}
		if err := cfg.sanityCheck(); err != nil {
			return nil, err
		}
		entries = append(entries, cfg)
	}

	return entries, nil
}

func applyDirectives(cfg *DeviceConfig, args []string, lineNo int) error {
	i := 0
	next := func(flag string) (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("config: line %d: %s requires an argument", lineNo, flag)
		}
		v := args[i]
		i++
		return v, nil
	}

	for i < len(args) {
		flag := args[i]
		i++
		if len(flag) < 2 || flag[0] != '-' {
			return fmt.Errorf("config: line %d: malformed directive %q", lineNo, flag)
		}

		switch flag {
		case "-d":
			v, err := next(flag)
			if err != nil {
				return err
			}
			if v == "removable" {
				cfg.Removable = true
			} else {
				cfg.DevType = v
				cfg.ReportTransport = v
			}
		case "-T":
			v, err := next(flag)
			if err != nil {
				return err
			}
			cfg.Permissive = v == "permissive"
		case "-o":
			v, err := next(flag)
			if err != nil {
				return err
			}
			on := v == "on"
			cfg.AutoOffline = &on
		case "-S":
			v, err := next(flag)
			if err != nil {
				return err
			}
			on := v == "on"
			cfg.Autosave = &on
		case "-H":
			cfg.HealthCheck = true
		case "-f":
			cfg.UsageFailure = true
		case "-l":
			v, err := next(flag)
			if err != nil {
				return err
			}
			switch v {
			case "error":
				cfg.Logs.Error = true
			case "selftest":
				cfg.Logs.SelfTest = true
			default:
				return fmt.Errorf("config: line %d: -l %s: unknown log", lineNo, v)
			}
		case "-s":
			v, err := next(flag)
			if err != nil {
				return err
			}
			cfg.TestRegex = v
		case "-m":
			v, err := next(flag)
			if err != nil {
				return err
			}
			cfg.MailTo = append(cfg.MailTo, v)
		case "-M":
			v, err := next(flag)
			if err != nil {
				return err
			}
			switch v {
			case "once":
				cfg.Mail.Once = true
			case "daily":
				cfg.Mail.Daily = true
			case "diminishing":
				cfg.Mail.Diminishing = true
			case "test":
				cfg.Mail.Test = true
			case "exec":
				cmd, err := next(flag)
				if err != nil {
					return err
				}
				cfg.Mail.Exec = cmd
			default:
				return fmt.Errorf("config: line %d: -M %s: unknown policy", lineNo, v)
			}
		case "-p", "-u", "-t":
			switch flag {
			case "-p":
				cfg.Prefail = true
			case "-u":
				cfg.Usage = true
			case "-t":
				cfg.Prefail, cfg.Usage = true, true
			}
		case "-r", "-R":
			v, err := next(flag)
			if err != nil {
				return err
			}
			id, crit, err := parseAttrID(v)
			if err != nil {
				return fmt.Errorf("config: line %d: %w", lineNo, err)
			}
			if flag == "-r" {
				cfg.Attrs[id].Raw.Print = true
			} else {
				cfg.Attrs[id].Raw.Track = true
			}
			cfg.Attrs[id].Raw.CriticalOnChange = crit
		case "-i", "-I":
			v, err := next(flag)
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(v)
			if err != nil || id < 0 || id > 255 {
				return fmt.Errorf("config: line %d: %s %s: invalid attribute ID", lineNo, flag, v)
			}
			if flag == "-i" {
				cfg.Attrs[id].IgnoreFailure = true
			} else {
				cfg.Attrs[id].IgnoreTrack = true
			}
		case "-C", "-U":
			v, err := next(flag)
			if err != nil {
				return err
			}
			id, inc, err := parseAttrID(v)
			if err != nil {
				return fmt.Errorf("config: line %d: %w", lineNo, err)
			}
			if flag == "-C" {
				cfg.PendingID, cfg.PendingSet, cfg.PendingIncOnly = id, true, inc
			} else {
				cfg.OfflineUncID, cfg.OfflineUncSet, cfg.OfflineUncIncOnly = id, true, inc
			}
		case "-W":
			v, err := next(flag)
			if err != nil {
				return err
			}
			parts := strings.Split(v, ",")
			if len(parts) != 3 {
				return fmt.Errorf("config: line %d: -W %s: want D,I,C", lineNo, v)
			}
			d, err1 := strconv.Atoi(parts[0])
			inf, err2 := strconv.Atoi(parts[1])
			crit, err3 := strconv.Atoi(parts[2])
			if err1 != nil || err2 != nil || err3 != nil {
				return fmt.Errorf("config: line %d: -W %s: non-integer field", lineNo, v)
			}
			cfg.TempDiff, cfg.TempInfo, cfg.TempCrit, cfg.TempSet = d, inf, crit, true
		case "-n":
			v, err := next(flag)
			if err != nil {
				return err
			}
			parts := strings.Split(v, ",")
			cfg.SkipPower.Mode = parts[0]
			for _, p := range parts[1:] {
				if p == "q" {
					cfg.SkipPower.Quiet = true
					continue
				}
				if n, err := strconv.Atoi(p); err == nil {
					cfg.SkipPower.PowerSkipMax = n
				}
			}
		case "-F":
			v, err := next(flag)
			if err != nil {
				return err
			}
			cfg.Firmware = v
		case "-v":
			v, err := next(flag)
			if err != nil {
				return err
			}
			parts := strings.SplitN(v, ",", 2)
			id, err := strconv.Atoi(parts[0])
			if err != nil || id < 0 || id > 255 || len(parts) != 2 {
				return fmt.Errorf("config: line %d: -v %s: want N,FORMAT", lineNo, v)
			}
			cfg.Attrs[id].DisplayFormat = parts[1]
		case "-P":
			v, err := next(flag)
			if err != nil {
				return err
			}
			cfg.Preset = v
		case "-a":
			cfg.applyA()
		default:
			return fmt.Errorf("config: line %d: unknown directive %q", lineNo, flag)
		}
	}
	return nil
}

// parseAttrID parses the "ID[!]" / "ID[+]" argument shape shared by
// -r/-R/-C/-U.
func parseAttrID(v string) (id byte, suffix bool, err error) {
	s := v
	if strings.HasSuffix(s, "!") || strings.HasSuffix(s, "+") {
		suffix = true
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, false, fmt.Errorf("invalid attribute ID %q", v)
	}
	return byte(n), suffix, nil
}

// ScanDevices enumerates candidate SCSI/ATA block device nodes for
// DEVICESCAN expansion (spec.md §4.I), adapted from the teacher's
// smartinfo.ScanDevices.
func ScanDevices() ([]string, error) {
	files, err := filepath.Glob("/dev/sd*[^0-9]")
	if err != nil {
		return nil, err
	}
	return files, nil
}
