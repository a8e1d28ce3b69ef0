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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicDirectives(t *testing.T) {
	input := `/dev/sda -H -f -l error -l selftest -m admin@example.com -M daily
`
	cfgs, err := Parse(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	c := cfgs[0]
	assert.Equal(t, "/dev/sda", c.Name)
	assert.True(t, c.HealthCheck)
	assert.True(t, c.UsageFailure)
	assert.True(t, c.Logs.Error)
	assert.True(t, c.Logs.SelfTest)
	assert.True(t, c.Mail.Daily)
	assert.Equal(t, []string{"admin@example.com"}, c.MailTo)
}

func TestParseLineContinuation(t *testing.T) {
	input := "/dev/sda -H \\\n  -f -m admin@example.com\n"
	cfgs, err := Parse(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.True(t, cfgs[0].HealthCheck)
	assert.True(t, cfgs[0].UsageFailure)
}

func TestParseCommentsAndBlankLines(t *testing.T) {
	input := "# a comment\n\n/dev/sda -H -m a@b.com # trailing comment\n"
	cfgs, err := Parse(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.True(t, cfgs[0].HealthCheck)
}

func TestParseImplicitA(t *testing.T) {
	cfgs, err := Parse(strings.NewReader("/dev/sda\n"), nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.True(t, cfgs[0].HealthCheck)
	assert.True(t, cfgs[0].PendingSet)
	assert.Equal(t, byte(197), cfgs[0].PendingID)
}

func TestParseMWithoutMIsError(t *testing.T) {
	_, err := Parse(strings.NewReader("/dev/sda -M daily\n"), nil)
	require.Error(t, err)
}

func TestParseNomailerRequiresExec(t *testing.T) {
	_, err := Parse(strings.NewReader("/dev/sda -m <nomailer> -M daily\n"), nil)
	require.Error(t, err)

	cfgs, err := Parse(strings.NewReader("/dev/sda -m <nomailer> -M exec /bin/true\n"), nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
}

func TestParseDeviceScanExpands(t *testing.T) {
	scan := func() ([]string, error) { return []string{"/dev/sda", "/dev/sdb"}, nil }
	cfgs, err := Parse(strings.NewReader("DEVICESCAN -a\n"), scan)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "/dev/sda", cfgs[0].Name)
	assert.Equal(t, "/dev/sdb", cfgs[1].Name)
	assert.True(t, cfgs[0].HealthCheck)
}

func TestParseAttributeDirectives(t *testing.T) {
	cfgs, err := Parse(strings.NewReader("/dev/sda -C 197+ -U 198 -r 5! -i 9\n"), nil)
	require.NoError(t, err)
	c := cfgs[0]
	assert.True(t, c.PendingSet)
	assert.Equal(t, byte(197), c.PendingID)
	assert.True(t, c.PendingIncOnly)
	assert.True(t, c.OfflineUncSet)
	assert.False(t, c.OfflineUncIncOnly)
	assert.True(t, c.Attrs[5].Raw.Print)
	assert.True(t, c.Attrs[5].Raw.CriticalOnChange)
	assert.True(t, c.Attrs[9].IgnoreFailure)
}
