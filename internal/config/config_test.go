package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "vaultguard", cfg.App.Name)
	assert.Equal(t, time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 800*time.Millisecond, cfg.Engine.Latency)
	assert.Equal(t, "0.5", cfg.Engine.AverageTxValue.String())
	assert.Equal(t, "14.52", cfg.Engine.ReferenceBalance.String())
	assert.Equal(t, 2, cfg.Engine.RecentActivity)
	assert.Equal(t, "0.0043 ETH", cfg.Engine.GasEstimate)
	assert.Equal(t, "5", cfg.Policy.DailyLimitEth.String())
	assert.Equal(t, 12, cfg.Policy.TimelockHours)
	assert.Equal(t, 3, cfg.Policy.GuardianCount)
	assert.Equal(t, 50, cfg.Alerting.FeedSize)
	assert.False(t, cfg.Timelock.StrictExecute)
	assert.True(t, cfg.ChannelEnabled("log"))
	assert.False(t, cfg.ChannelEnabled("telegram"))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
policy:
  daily_limit_eth: 2.5
  timelock_hours: 24
engine:
  latency: 0s
  custom_rules:
    - id: big-token
      expression: "intent.token != '' && intent.value > 100.0"
      penalty: 10
      severity: caution
registry:
  scam_addresses:
    - "0xfeedface"
  contracts:
    - address: "0x1111111111111111111111111111111111111111"
      name: "Internal Treasury"
      age_days: 30
      verified: true
      category: "Treasury"
      trust_score: 96
alerting:
  channels: log,redis
  redis:
    enabled: true
    addr: "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("VAULTGUARD_TIMELOCK_STRICT_EXECUTE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2.5", cfg.Policy.DailyLimitEth.String())
	assert.Equal(t, 24, cfg.DefaultSettings().TimelockHours)
	assert.Zero(t, cfg.Engine.Latency)
	assert.True(t, cfg.Timelock.StrictExecute)
	require.Len(t, cfg.Engine.CustomRules, 1)
	assert.Equal(t, "big-token", cfg.EngineOptions().CustomRules[0].ID)
	assert.True(t, cfg.ChannelEnabled("redis"))

	reg := cfg.RegistryOptions()
	assert.Contains(t, reg.ScamAddresses, "0xfeedface")
	assert.Len(t, reg.Contracts, 4)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Policy.TimelockHours = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Alerting.Channels = []string{"pager"}
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Alerting.Telegram.Enabled = true
	assert.Error(t, bad.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	assert.Equal(t, 10, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 3, cfg.ResolveMaxPoints(3))
}
