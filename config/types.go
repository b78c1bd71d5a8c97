package config

import "strings"

// Aggregator holds the deployment-time settings of the yield aggregator.
// Amounts are decimal strings so values above 2^64 survive TOML.
type Aggregator struct {
	Owner          string `toml:"Owner"`
	CustodyAddress string `toml:"CustodyAddress"`
	FeeCollector   string `toml:"FeeCollector"`
	RewardPool     string `toml:"RewardPool"`
	MinDeposit     string `toml:"MinDeposit"`
	MaxSlippageBps uint64 `toml:"MaxSlippageBps"`
	PlatformFeeBps uint64 `toml:"PlatformFeeBps"`
	// AllowOpaqueAddresses disables bech32 validation of registered protocol
	// addresses.
	AllowOpaqueAddresses bool `toml:"AllowOpaqueAddresses"`
}

// Pauses toggles individual native modules off.
type Pauses struct {
	Aggregator bool `toml:"Aggregator" json:"aggregator"`
	Bank       bool `toml:"Bank" json:"bank"`
}

// IsPaused reports whether module is paused. Module names are matched
// case-insensitively.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "aggregator":
		return p.Aggregator
	case "bank":
		return p.Bank
	default:
		return false
	}
}

// Set toggles module and reports whether the name was recognised.
func (p *Pauses) Set(module string, paused bool) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "aggregator":
		p.Aggregator = paused
	case "bank":
		p.Bank = paused
	default:
		return false
	}
	return true
}

// Genesis lists the balances credited when the data directory is first
// initialised.
type Genesis struct {
	Balances []GenesisBalance `toml:"balances"`
}

// GenesisBalance credits Amount base units to Address.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}
