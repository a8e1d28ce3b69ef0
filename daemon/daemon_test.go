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

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/smart/logging"
	"github.com/openebs/smart/notify"
)

func TestParseQuitMode(t *testing.T) {
	cases := map[string]QuitMode{
		"never":        QuitNever,
		"nodev":        QuitNodev,
		"nodevstartup": QuitNodevStartup,
		"onecheck":     QuitOnecheck,
		"showtests":    QuitShowtests,
		"errors":       QuitErrors,
	}
	for s, want := range cases {
		got, err := ParseQuitMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseQuitMode("bogus")
	assert.Error(t, err)
}

func TestRunExitsConfigMissingWhenFileAbsent(t *testing.T) {
	r := NewRunner(Config{
		ConfigPath: filepath.Join(t.TempDir(), "does-not-exist.conf"),
		Interval:   10 * time.Second,
	}, logging.Discard{}, notify.LogNotifier{Log: logging.Discard{}})

	assert.Equal(t, ExitConfigMissing, r.Run())
}

func TestRunExitsBadConfigSyntaxOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartd.conf")
	require.NoError(t, os.WriteFile(path, []byte("/dev/sda -Z\n"), 0644))

	r := NewRunner(Config{
		ConfigPath: path,
		Interval:   10 * time.Second,
	}, logging.Discard{}, notify.LogNotifier{Log: logging.Discard{}})

	assert.Equal(t, ExitBadConfigSyntax, r.Run())
}

func TestRunExitsNoMonitoredDevicesUnderNodevStartup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartd.conf")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	r := NewRunner(Config{
		ConfigPath: path,
		Interval:   10 * time.Second,
		Quit:       QuitNodevStartup,
	}, logging.Discard{}, notify.LogNotifier{Log: logging.Discard{}})

	assert.Equal(t, ExitNoMonitoredDevices, r.Run())
}

func TestSleepUntilNextClampsOnBackwardClockJump(t *testing.T) {
	r := NewRunner(Config{Interval: 20 * time.Millisecond}, logging.Discard{}, notify.LogNotifier{Log: logging.Discard{}})

	stale := time.Now().Add(time.Hour)
	before := time.Now()
	next := r.sleepUntilNext(stale)
	elapsed := time.Since(before)

	assert.Less(t, elapsed, 500*time.Millisecond, "clamp should have reset the wakeup to now+interval, not slept an hour")
	assert.True(t, next.After(before), "next wakeup should be in the future relative to the clamp")
}
