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

package state

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	s := &PersistentDevState{
		TemperatureMin: 20,
		TemperatureMax: 45,
		AtaErrorCount:  3,
	}
	s.Mail[1] = MailSlot{Count: 2, FirstSentTime: 1000, LastSentTime: 2000}
	s.Attrs[0] = AttrSlot{ID: 5, Value: 100, Raw: 12345}

	blob := Marshal(s)
	got, bad, err := Load(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Equal(t, s.TemperatureMin, got.TemperatureMin)
	assert.Equal(t, s.TemperatureMax, got.TemperatureMax)
	assert.Equal(t, s.AtaErrorCount, got.AtaErrorCount)
	assert.Equal(t, s.Mail[1], got.Mail[1])
	assert.Equal(t, s.Attrs[0], got.Attrs[0])
}

func TestLoadDropsMailZeroSlot(t *testing.T) {
	input := "mail.0.count = 5\ntemperature-min = 10\n"
	got, bad, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Equal(t, uint64(0), got.Mail[0].Count)
	assert.Equal(t, uint64(10), got.TemperatureMin)
}

func TestMarshalNeverEmitsMailZero(t *testing.T) {
	s := &PersistentDevState{}
	s.Mail[0] = MailSlot{Count: 99}
	blob := Marshal(s)
	assert.NotContains(t, string(blob), "mail.0.")
}

func TestLoadCountsBadLinesButSucceeds(t *testing.T) {
	input := "temperature-min = 10\nnot a valid line\nbogus-key = 5\n"
	_, bad, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, bad)
}

func TestLoadFailsWithNoGoodLines(t *testing.T) {
	_, _, err := Load(strings.NewReader("garbage\nmore garbage\n"))
	require.Error(t, err)
}

func TestFilePathNormalizesNonAlphanumeric(t *testing.T) {
	p := FilePath("/var/lib/smartd", "WDC WD10 EADS", "WD-ABC123!")
	assert.Equal(t, filepath.Join("/var/lib/smartd", "smartd.WDC_WD10_EADS-WD_ABC123_.state"), p)
}

func TestSaveWritesAndBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartd.test.state")

	s1 := &PersistentDevState{TemperatureMin: 1}
	require.NoError(t, Save(path, s1))

	s2 := &PersistentDevState{TemperatureMin: 2}
	require.NoError(t, Save(path, s2))

	got, _, err := Load(mustOpen(t, path))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.TemperatureMin)

	backup, _, err := Load(mustOpen(t, path+"~"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), backup.TemperatureMin)
}

func mustOpen(t *testing.T, path string) *bytes.Reader {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
