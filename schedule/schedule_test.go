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

package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateTokenSundayIsSeven(t *testing.T) {
	sun := time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC) // a Sunday
	tok := candidateToken(KindShort, sun)
	assert.Equal(t, "S/08/02/7/03", tok)
}

func TestNextTestReturnsNoneWhenNotDue(t *testing.T) {
	p, err := Compile(`S/.*`)
	require.NoError(t, err)
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	kind, _ := NextTest(p, Capabilities{}, now, future)
	assert.Equal(t, TestKind(0), kind)
}

func TestNextTestPicksHigherPriorityAtLaterHour(t *testing.T) {
	// S/../.././01 runs S at 01:xx, L/../.././03 runs L at 03:xx.
	p, err := Compile(`S/../.././01|L/../.././03`)
	require.NoError(t, err)
	start := time.Date(2026, 7, 30, 0, 30, 0, 0, time.UTC)
	now := time.Date(2026, 7, 30, 3, 30, 0, 0, time.UTC)
	kind, next := NextTest(p, Capabilities{}, now, start)
	assert.Equal(t, KindLong, kind)
	assert.True(t, next.After(now) || next.Equal(now))
}

func TestNextTestSkipsUnsupportedCapability(t *testing.T) {
	p, err := Compile(`L/../.././.*`)
	require.NoError(t, err)
	now := time.Date(2026, 7, 30, 5, 0, 0, 0, time.UTC)
	kind, _ := NextTest(p, Capabilities{NoLong: true}, now, now.Add(-time.Hour))
	assert.Equal(t, TestKind(0), kind)
}

func TestNextTestClampsLookbackTo90Days(t *testing.T) {
	p, err := Compile(`S/../.././.*`)
	require.NoError(t, err)
	now := time.Date(2026, 7, 30, 5, 0, 0, 0, time.UTC)
	veryOld := now.Add(-200 * 24 * time.Hour)
	_, next := NextTest(p, Capabilities{}, now, veryOld)
	assert.True(t, next.After(now))
}
