package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsScamExactAndFragment(t *testing.T) {
	r := Default()

	assert.True(t, r.IsScam("0xbad72921a4f00b123456789abcdef"))
	assert.True(t, r.IsScam("0xDEAD000000000000000000000000"))
	assert.True(t, r.IsScam("0xNotAScamButSaysScam"))
	assert.True(t, r.IsScam("0x000BAD000"))
	assert.False(t, r.IsScam("0xUNKNOWN"))
	assert.False(t, r.IsScam(""))
}

func TestKnownContractsAreNotFlagged(t *testing.T) {
	r := Default()
	for _, c := range r.Contracts() {
		assert.False(t, r.IsScam(c.Address), "known contract %s flagged as scam", c.Name)
	}
}

func TestLookupIgnoresChecksumCase(t *testing.T) {
	r := Default()

	info, ok := r.Lookup("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	require.True(t, ok)
	assert.Equal(t, "Uniswap V2 Router", info.Name)
	assert.Equal(t, 99, info.TrustScore)

	info, ok = r.Lookup("0x7A250D5630B4CF539739DF2C5DACB4C659F2488D")
	require.True(t, ok)
	assert.Equal(t, "Uniswap V2 Router", info.Name)

	_, ok = r.Lookup("0xUNKNOWN")
	assert.False(t, ok)
}

func TestMatchesPhishing(t *testing.T) {
	r := Default()

	assert.True(t, r.MatchesPhishing("claimAirdrop"))
	assert.True(t, r.MatchesPhishing("CLAIMAIRDROPNOW"))
	assert.True(t, r.MatchesPhishing("doEmergencyWithdraw"))
	assert.False(t, r.MatchesPhishing("transfer"))
	assert.False(t, r.MatchesPhishing(""))
}

func TestMergeAddsAndOverrides(t *testing.T) {
	opts := DefaultOptions().Merge(Options{
		Contracts: []ContractInfo{
			{Address: "0xdef1c0ded9bec7f1a1670819833240f027b25eff", Name: "0x Proxy v2", TrustScore: 90},
			{Address: "0xfeed", Name: "Feed", TrustScore: 50},
		},
		ScamAddresses:      []string{"0xevil"},
		PhishingSignatures: []string{"freeMint"},
	})
	r := New(opts)

	info, ok := r.Lookup("0xDEF1C0DED9BEC7F1A1670819833240F027B25EFF")
	require.True(t, ok)
	assert.Equal(t, "0x Proxy v2", info.Name)

	_, ok = r.Lookup("0xFEED")
	assert.True(t, ok)
	assert.True(t, r.IsScam("0xevil"))
	assert.True(t, r.MatchesPhishing("freemint"))

	// the base options are not mutated
	assert.Len(t, DefaultOptions().Contracts, 3)
}
