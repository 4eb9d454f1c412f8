package settings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-guard/internal/risk"
)

func fixedNow() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

func TestDefaultsAreValid(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())

	policy := s.Policy()
	assert.True(t, policy.DailyLimitEth.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, 12, policy.TimelockHours)
	assert.Equal(t, 3, s.GuardianCount)
}

func TestUpdateAppliesPatch(t *testing.T) {
	store := NewStore(Defaults(), fixedNow)

	limit := "7.5"
	hours := 24
	updated, err := store.Update(Patch{DailyLimitEth: &limit, TimelockHours: &hours})
	require.NoError(t, err)

	assert.Equal(t, "7.5", updated.DailyLimitEth.String())
	assert.Equal(t, 24, store.Policy().TimelockHours)
	assert.Equal(t, 3, store.Get().GuardianCount)
}

func TestUpdateRejectsInvalidAndKeepsState(t *testing.T) {
	store := NewStore(Defaults(), fixedNow)

	bad := "lots"
	_, err := store.Update(Patch{DailyLimitEth: &bad})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	zero := 0
	_, err = store.Update(Patch{TimelockHours: &zero})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	negative := "-1"
	_, err = store.Update(Patch{DailyLimitEth: &negative})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	assert.Equal(t, Defaults().TimelockHours, store.Get().TimelockHours)
	assert.True(t, store.Get().DailyLimitEth.Equal(Defaults().DailyLimitEth))
}

func TestUpdateBoundsTimelockAndLimit(t *testing.T) {
	store := NewStore(Defaults(), fixedNow)

	huge := 3_000_000
	_, err := store.Update(Patch{TimelockHours: &huge})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	over := risk.MaxDelayHours + 1
	_, err = store.Update(Patch{TimelockHours: &over})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	year := risk.MaxDelayHours
	_, err = store.Update(Patch{TimelockHours: &year})
	require.NoError(t, err)

	for _, limit := range []string{"1e1000000", "1e-100", "0.0000000000000000001"} {
		_, err = store.Update(Patch{DailyLimitEth: &limit})
		assert.ErrorIs(t, err, ErrInvalidSettings, limit)
	}
	assert.Equal(t, "5", store.Get().DailyLimitEth.String())
}

func TestGuardiansTrackCount(t *testing.T) {
	initial := Defaults()
	initial.GuardianCount = 0
	store := NewStore(initial, fixedNow)

	g, err := store.AddGuardian(Guardian{Name: "Ledger Nano X", Address: "0xhardware", Type: GuardianHardware})
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "pending", g.Status)
	assert.Equal(t, fixedNow(), g.AddedAt)
	assert.Equal(t, 1, store.Get().GuardianCount)

	_, err = store.AddGuardian(Guardian{ID: g.ID, Name: "dup", Address: "0x1"})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	s, err := store.RemoveGuardian(g.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Guardians)
	assert.Equal(t, 0, s.GuardianCount)

	_, err = store.RemoveGuardian(g.ID)
	assert.ErrorIs(t, err, ErrGuardianNotFound)
}

func TestGuardianCountNeverNegative(t *testing.T) {
	initial := Defaults()
	initial.GuardianCount = 0
	initial.Guardians = []Guardian{{ID: "1", Name: "Backup Seed", Address: "0xbackup", Type: GuardianBackup}}
	store := NewStore(initial, fixedNow)

	s, err := store.RemoveGuardian("1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.GuardianCount)
}

func TestAddGuardianValidates(t *testing.T) {
	store := NewStore(Defaults(), fixedNow)

	_, err := store.AddGuardian(Guardian{Address: "0x1"})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = store.AddGuardian(Guardian{Name: "x", Address: "0x1", Type: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, 3, store.Get().GuardianCount)
}

func TestGetReturnsCopy(t *testing.T) {
	initial := Defaults()
	initial.Guardians = []Guardian{{ID: "1", Name: "a", Address: "b"}}
	store := NewStore(initial, fixedNow)

	got := store.Get()
	got.Guardians[0].Name = "changed"
	assert.Equal(t, "a", store.Get().Guardians[0].Name)
}
