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

// Package state implements the persistent per-device state codec (spec.md
// §4.J): a line-oriented `key[.index[.field]] = integer` format with an
// atomic rename-based writer. Grounded on spec.md §4.J and the teacher's
// general preference for explicit, allocation-light parsing (ataidentify.go).
package state

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/openebs/smart/config"
)

// MailSlot is one notification-frequency bookkeeping record.
type MailSlot struct {
	Count         uint64
	FirstSentTime uint64
	LastSentTime  uint64
}

// AttrSlot is one persisted SMART attribute snapshot.
type AttrSlot struct {
	ID    uint8
	Value uint8
	Raw   uint64 // 48-bit
}

// PersistentDevState is the serialized subset of per-device state
// (spec.md §3 PersistentDevState).
type PersistentDevState struct {
	TemperatureMin uint64
	TemperatureMax uint64

	SelfTestErrors       uint64
	SelfTestLastErrHour  uint64
	ScheduledTestNextCheck uint64
	AtaErrorCount          uint64

	Mail  [config.NMailSlots]MailSlot
	Attrs [config.AttrSlots]AttrSlot
}

// Load parses a persistent state file from r. It never returns a hard
// error for malformed lines; BadLines reports how many were skipped. It
// returns an error only if zero good lines were found.
func Load(r io.Reader) (*PersistentDevState, int, error) {
	s := &PersistentDevState{}
	scanner := bufio.NewScanner(r)

	goodLines := 0
	badLines := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if applyLine(s, line) {
			goodLines++
		} else {
			badLines++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, badLines, err
	}
	if goodLines == 0 {
		return nil, badLines, fmt.Errorf("state: no valid lines read")
	}
	return s, badLines, nil
}

func applyLine(s *PersistentDevState, line string) bool {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return false
	}
	key := strings.TrimSpace(parts[0])
	valStr := strings.TrimSpace(parts[1])
	val, err := strconv.ParseUint(valStr, 10, 64)
	if err != nil {
		return false
	}

	segs := strings.Split(key, ".")

	switch segs[0] {
	case "temperature-min":
		s.TemperatureMin = val
	case "temperature-max":
		s.TemperatureMax = val
	case "self-test-errors":
		s.SelfTestErrors = val
	case "self-test-last-err-hour":
		s.SelfTestLastErrHour = val
	case "scheduled-test-next-check":
		s.ScheduledTestNextCheck = val
	case "ata-error-count":
		s.AtaErrorCount = val
	case "mail":
		if len(segs) != 3 {
			return false
		}
		idx, err := strconv.Atoi(segs[1])
		if err != nil || idx < 0 || idx >= config.NMailSlots {
			return false
		}
		// mail.0.* is the reserved test-email slot: silently dropped on
		// input (spec.md §4.J).
		if idx == 0 {
			return true
		}
		switch segs[2] {
		case "count":
			s.Mail[idx].Count = val
		case "first-sent-time":
			s.Mail[idx].FirstSentTime = val
		case "last-sent-time":
			s.Mail[idx].LastSentTime = val
		default:
			return false
		}
	case "ata-smart-attribute":
		if len(segs) != 3 {
			return false
		}
		idx, err := strconv.Atoi(segs[1])
		if err != nil || idx < 0 || idx >= config.AttrSlots {
			return false
		}
		switch segs[2] {
		case "id":
			if val > 255 {
				return false
			}
			s.Attrs[idx].ID = uint8(val)
		case "val":
			if val > 255 {
				return false
			}
			s.Attrs[idx].Value = uint8(val)
		case "raw":
			if val >= 1<<48 {
				return false
			}
			s.Attrs[idx].Raw = val
		default:
			return false
		}
	default:
		return false
	}
	return true
}

// Marshal renders s into the key=value line format, skipping the reserved
// mail.0.* slot unconditionally (spec.md §4.J).
func Marshal(s *PersistentDevState) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "temperature-min = %d\n", s.TemperatureMin)
	fmt.Fprintf(&b, "temperature-max = %d\n", s.TemperatureMax)
	fmt.Fprintf(&b, "self-test-errors = %d\n", s.SelfTestErrors)
	fmt.Fprintf(&b, "self-test-last-err-hour = %d\n", s.SelfTestLastErrHour)
	fmt.Fprintf(&b, "scheduled-test-next-check = %d\n", s.ScheduledTestNextCheck)
	fmt.Fprintf(&b, "ata-error-count = %d\n", s.AtaErrorCount)

	for i := 1; i < config.NMailSlots; i++ {
		m := s.Mail[i]
		if m.Count == 0 && m.FirstSentTime == 0 && m.LastSentTime == 0 {
			continue
		}
		fmt.Fprintf(&b, "mail.%d.count = %d\n", i, m.Count)
		fmt.Fprintf(&b, "mail.%d.first-sent-time = %d\n", i, m.FirstSentTime)
		fmt.Fprintf(&b, "mail.%d.last-sent-time = %d\n", i, m.LastSentTime)
	}

	idxs := make([]int, 0, config.AttrSlots)
	for i, a := range s.Attrs {
		if a.ID != 0 {
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		a := s.Attrs[i]
		fmt.Fprintf(&b, "ata-smart-attribute.%d.id = %d\n", i, a.ID)
		fmt.Fprintf(&b, "ata-smart-attribute.%d.val = %d\n", i, a.Value)
		fmt.Fprintf(&b, "ata-smart-attribute.%d.raw = %d\n", i, a.Raw)
	}

	return []byte(b.String())
}

// Save writes s to path atomically: the existing file (if any) is
// renamed to path+"~" before the new content is written and fsynced
// (spec.md §4.J). On write failure the backup remains in place.
func Save(path string, s *PersistentDevState) error {
	backup := path + "~"
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("state: backup rename: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("state: create: %w", err)
	}
	if _, err := f.Write(Marshal(s)); err != nil {
		f.Close()
		return fmt.Errorf("state: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("state: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("state: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("state: rename into place: %w", err)
	}
	return nil
}

// FilePath derives the state-file path from a directory prefix and the
// vendor-normalized model+serial identity (spec.md §4.K step 4):
// non-alphanumeric characters become '_'.
func FilePath(dir, model, serial string) string {
	normalize := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			} else {
				b.WriteByte('_')
			}
		}
		return b.String()
	}
	name := normalize(strings.TrimSpace(model)) + "-" + normalize(strings.TrimSpace(serial))
	return filepath.Join(dir, "smartd."+name+".state")
}
