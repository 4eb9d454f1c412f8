package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	ts, err := parseTimeFlag("from", "", now)
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = parseTimeFlag("from", "2024-03-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *ts)

	ts, err = parseTimeFlag("from", "7d", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), *ts)

	ts, err = parseTimeFlag("from", "36h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-36*time.Hour), *ts)

	for _, bad := range []string{"yesterday", "-3d", "xd", "-1h"} {
		_, err = parseTimeFlag("from", bad, now)
		assert.Error(t, err, bad)
	}
}

func TestIntentFlagsRequireAccount(t *testing.T) {
	var f intentFlags
	_, _, err := f.intent()
	assert.Error(t, err)

	f = intentFlags{account: "0xabc", to: "0xdef", value: "1.5", function: "approve", args: []string{"0xdef", "max"}}
	account, intent, err := f.intent()
	require.NoError(t, err)
	assert.Equal(t, "0xabc", account)
	assert.Equal(t, "0xabc", intent.From)
	assert.Equal(t, "approve", intent.FunctionName)
	assert.Equal(t, []string{"0xdef", "max"}, intent.Args)
}

func TestParseIndex(t *testing.T) {
	index, err := parseIndex("3")
	require.NoError(t, err)
	assert.Equal(t, 3, index)

	_, err = parseIndex("three")
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "analyze", "submit", "pending", "freeze", "guardians", "history", "export", "prune", "notify-test", "migrate", "version"} {
		assert.True(t, names[want], want)
	}
}
