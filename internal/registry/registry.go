// Package registry holds the static known-entity tables consulted by the risk
// engine: verified contracts, flagged scam addresses and phishing function
// names. Lookups never fail; absence is a valid "unknown" answer.
package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ContractInfo describes a verified contract.
type ContractInfo struct {
	Address          string `mapstructure:"address" json:"address"`
	Name             string `mapstructure:"name" json:"name"`
	AgeDays          int    `mapstructure:"age_days" json:"ageDays"`
	Verified         bool   `mapstructure:"verified" json:"verified"`
	Category         string `mapstructure:"category" json:"category"`
	TrustScore       int    `mapstructure:"trust_score" json:"trustScore"`
	InteractionCount int    `mapstructure:"interaction_count" json:"interactionCount"`
}

// Options lists registry entries. Used both for the built-in tables and for
// operator supplied extensions.
type Options struct {
	Contracts          []ContractInfo `mapstructure:"contracts"`
	ScamAddresses      []string       `mapstructure:"scam_addresses"`
	ScamFragments      []string       `mapstructure:"scam_fragments"`
	PhishingSignatures []string       `mapstructure:"phishing_signatures"`
}

// DefaultOptions returns the built-in tables.
func DefaultOptions() Options {
	return Options{
		Contracts: []ContractInfo{
			{Address: "0x123abc456def78901234567890abcdef", Name: "Uniswap V3 Router", AgeDays: 1200, Verified: true, Category: "DEX", TrustScore: 98, InteractionCount: 8421},
			{Address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", Name: "Uniswap V2 Router", AgeDays: 1400, Verified: true, Category: "DEX", TrustScore: 99, InteractionCount: 12873},
			{Address: "0xdef1c0ded9bec7f1a1670819833240f027b25eff", Name: "0x Exchange Proxy", AgeDays: 900, Verified: true, Category: "DEX", TrustScore: 97, InteractionCount: 6310},
		},
		ScamAddresses: []string{
			"0xbad72921a4f00b123456789abcdef",
			"0xdead000000000000000000000000",
			"0xscam111111111111111111111111",
		},
		ScamFragments: []string{"bad", "scam"},
		PhishingSignatures: []string{
			"securityUpdate",
			"claimReward",
			"claimAirdrop",
			"emergencyWithdraw",
			"safeTransfer",
		},
	}
}

// Merge appends extra entries to o. Contracts in extra override built-in ones
// with the same address.
func (o Options) Merge(extra Options) Options {
	merged := Options{
		Contracts:          append(append([]ContractInfo{}, o.Contracts...), extra.Contracts...),
		ScamAddresses:      append(append([]string{}, o.ScamAddresses...), extra.ScamAddresses...),
		ScamFragments:      append(append([]string{}, o.ScamFragments...), extra.ScamFragments...),
		PhishingSignatures: append(append([]string{}, o.PhishingSignatures...), extra.PhishingSignatures...),
	}
	return merged
}

// Registry answers known-entity queries. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	contracts map[string]ContractInfo
	scams     map[string]struct{}
	fragments []string
	phishing  []string
}

// New builds a registry from opts.
func New(opts Options) *Registry {
	r := &Registry{
		contracts: make(map[string]ContractInfo, len(opts.Contracts)),
		scams:     make(map[string]struct{}, len(opts.ScamAddresses)),
	}
	for _, c := range opts.Contracts {
		key := NormalizeAddress(c.Address)
		if key == "" {
			continue
		}
		r.contracts[key] = c
	}
	for _, addr := range opts.ScamAddresses {
		if key := NormalizeAddress(addr); key != "" {
			r.scams[key] = struct{}{}
		}
	}
	for _, f := range opts.ScamFragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			r.fragments = append(r.fragments, f)
		}
	}
	for _, sig := range opts.PhishingSignatures {
		if sig = strings.ToLower(strings.TrimSpace(sig)); sig != "" {
			r.phishing = append(r.phishing, sig)
		}
	}
	return r
}

// Default returns a registry holding only the built-in tables.
func Default() *Registry {
	return New(DefaultOptions())
}

// IsScam reports whether address is flagged, either by exact match or by
// containing one of the suspicious fragments.
func (r *Registry) IsScam(address string) bool {
	key := NormalizeAddress(address)
	if key == "" {
		return false
	}
	if _, ok := r.scams[key]; ok {
		return true
	}
	for _, f := range r.fragments {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

// Lookup returns the verified contract registered at address.
func (r *Registry) Lookup(address string) (ContractInfo, bool) {
	info, ok := r.contracts[NormalizeAddress(address)]
	return info, ok
}

// MatchesPhishing reports whether functionName contains a known phishing
// signature, ignoring case.
func (r *Registry) MatchesPhishing(functionName string) bool {
	name := strings.ToLower(strings.TrimSpace(functionName))
	if name == "" {
		return false
	}
	for _, sig := range r.phishing {
		if strings.Contains(name, sig) {
			return true
		}
	}
	return false
}

// Contracts returns a copy of all registered contracts.
func (r *Registry) Contracts() []ContractInfo {
	out := make([]ContractInfo, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	return out
}

// NormalizeAddress lower-cases an address for lookup. Well-formed 20-byte hex
// addresses are canonicalised through go-ethereum so that checksummed and
// plain forms collide; anything else is compared as trimmed lower-case text.
func NormalizeAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return ""
	}
	if common.IsHexAddress(trimmed) {
		return strings.ToLower(common.HexToAddress(trimmed).Hex())
	}
	return strings.ToLower(trimmed)
}
