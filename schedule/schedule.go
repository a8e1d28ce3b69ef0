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

// Package schedule implements the calendar-pattern self-test scheduler
// (spec.md §4.H): a POSIX ERE matched against synthesized "T/MM/DD/wd/HH"
// tokens, and the two-pass priority-floor search that walks the missed
// window one hour at a time. Grounded on original_source/sm5/smartd.cpp
// next_scheduled_test.
package schedule

import (
	"fmt"
	"regexp"
	"time"
)

// TestKind is one self-test type character (spec.md §4.H).
type TestKind byte

const (
	KindLong       TestKind = 'L'
	KindNext       TestKind = 'n'
	KindContinue   TestKind = 'c'
	KindRedo       TestKind = 'r'
	KindShort      TestKind = 'S'
	KindConveyance TestKind = 'C'
	KindOffline    TestKind = 'O'
)

// testTypeOrder is the fixed priority order, most-expensive first,
// matching original_source's test_type_chars.
var testTypeOrder = []TestKind{KindLong, KindNext, KindContinue, KindRedo, KindShort, KindConveyance, KindOffline}

const lookbackLimit = 90 * 24 * time.Hour

// Capabilities reports which self-test types a device cannot run, so the
// scheduler can skip them (spec.md §4.H).
type Capabilities struct {
	Scsi             bool
	NoLong           bool
	NoShort          bool
	NoConveyance     bool
	NoOffline        bool
	NoSelective      bool // gates 'c', 'n', 'r'
}

func (c Capabilities) supports(k TestKind) bool {
	switch k {
	case KindLong:
		return !c.NoLong
	case KindShort:
		return !c.NoShort
	case KindConveyance:
		return !c.Scsi && !c.NoConveyance
	case KindOffline:
		return !c.Scsi && !c.NoOffline
	case KindNext, KindContinue, KindRedo:
		return !c.Scsi && !c.NoSelective
	default:
		return false
	}
}

// Pattern compiles a calendar regex over the test_regex grammar of
// spec.md §4.H.
type Pattern struct {
	re *regexp.Regexp
}

// Compile compiles expr as a POSIX ERE matched in full ("^...$" anchored)
// against a synthesized "T/MM/DD/wd/HH" candidate string.
func Compile(expr string) (*Pattern, error) {
	re, err := regexp.CompilePOSIX("^(" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid calendar pattern %q: %w", expr, err)
	}
	return &Pattern{re: re}, nil
}

func candidateToken(kind TestKind, t time.Time) string {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday is 7, not 0 (spec.md §4.H)
	}
	return fmt.Sprintf("%c/%02d/%02d/%1d/%02d", kind, int(t.Month()), t.Day(), weekday, t.Hour())
}

// NextTest implements the spec.md §4.H two-pass priority-floor search. now
// is the current wall-clock time; nextCheck is state.scheduled_test_next_check
// (the low-water mark of the missed-test window), passed and returned by
// value so callers own the state write-back.
//
// Returns the highest-priority test type found in the window (or 0 if
// none), and the updated nextCheck the caller must persist.
func NextTest(pattern *Pattern, caps Capabilities, now, nextCheck time.Time) (found TestKind, newNextCheck time.Time) {
	if pattern == nil || now.Before(nextCheck) {
		return 0, nextCheck
	}

	if nextCheck.Add(lookbackLimit).Before(now) {
		nextCheck = now.Add(-lookbackLimit)
	}

	maxPriority := len(testTypeOrder) - 1
	var testtype TestKind

	for t := nextCheck; ; {
		for i := 0; i <= maxPriority; i++ {
			kind := testTypeOrder[i]
			if !caps.supports(kind) {
				continue
			}
			token := candidateToken(kind, t)
			if pattern.re.MatchString(token) {
				testtype = kind
				maxPriority = i - 1
				break
			}
		}
		if maxPriority < 0 {
			break
		}
		if !t.Before(now) {
			break
		}
		next := t.Add(time.Hour)
		if next.After(now) {
			next = now
		}
		t = next
	}

	secondsToTopOfHour := time.Hour - time.Duration(now.Minute())*time.Minute - time.Duration(now.Second())*time.Second
	newNextCheck = now.Add(secondsToTopOfHour)

	return testtype, newNextCheck
}
