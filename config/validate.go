package config

import (
	"fmt"
	"math/big"
	"strings"

	"yieldrouter/crypto"
)

const maxBps = 10_000

// AggregatorSettings is the parsed, validated form of the [aggregator] table.
type AggregatorSettings struct {
	Owner                crypto.Address
	Custody              crypto.Address
	FeeCollector         crypto.Address
	RewardPool           crypto.Address
	MinDeposit           *big.Int
	MaxSlippageBps       uint64
	PlatformFeeBps       uint64
	AllowOpaqueAddresses bool
}

// Allocation is a parsed genesis balance.
type Allocation struct {
	Address crypto.Address
	Amount  *big.Int
}

// Validate checks the configuration for values the node cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if cfg.BlockIntervalSeconds == 0 {
		return fmt.Errorf("config: BlockIntervalSeconds must be positive")
	}
	if _, err := cfg.AggregatorSettings(); err != nil {
		return err
	}
	if _, err := cfg.GenesisAllocations(); err != nil {
		return err
	}
	return nil
}

// AggregatorSettings parses the [aggregator] table.
func (c *Config) AggregatorSettings() (AggregatorSettings, error) {
	agg := c.Aggregator
	var out AggregatorSettings
	var err error
	if out.Owner, err = requireAddress("aggregator.Owner", agg.Owner); err != nil {
		return out, err
	}
	if out.Custody, err = requireAddress("aggregator.CustodyAddress", agg.CustodyAddress); err != nil {
		return out, err
	}
	if out.Owner == out.Custody {
		return out, fmt.Errorf("config: aggregator.CustodyAddress must differ from aggregator.Owner")
	}
	if out.FeeCollector, err = optionalAddress("aggregator.FeeCollector", agg.FeeCollector); err != nil {
		return out, err
	}
	if out.FeeCollector.IsZero() {
		out.FeeCollector = out.Owner
	}
	if out.RewardPool, err = optionalAddress("aggregator.RewardPool", agg.RewardPool); err != nil {
		return out, err
	}
	if out.MinDeposit, err = parseUintAmount(agg.MinDeposit); err != nil {
		return out, fmt.Errorf("config: invalid aggregator.MinDeposit: %w", err)
	}
	if agg.PlatformFeeBps > maxBps {
		return out, fmt.Errorf("config: aggregator.PlatformFeeBps %d exceeds %d", agg.PlatformFeeBps, maxBps)
	}
	if agg.MaxSlippageBps > maxBps {
		return out, fmt.Errorf("config: aggregator.MaxSlippageBps %d exceeds %d", agg.MaxSlippageBps, maxBps)
	}
	out.MaxSlippageBps = agg.MaxSlippageBps
	out.PlatformFeeBps = agg.PlatformFeeBps
	out.AllowOpaqueAddresses = agg.AllowOpaqueAddresses
	return out, nil
}

// GenesisAllocations parses the [[genesis.balances]] entries.
func (c *Config) GenesisAllocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(c.Genesis.Balances))
	for i, entry := range c.Genesis.Balances {
		addr, err := requireAddress(fmt.Sprintf("genesis.balances[%d].Address", i), entry.Address)
		if err != nil {
			return nil, err
		}
		amount, err := parseUintAmount(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("config: invalid genesis.balances[%d].Amount: %w", i, err)
		}
		out = append(out, Allocation{Address: addr, Amount: amount})
	}
	return out, nil
}

func requireAddress(field, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("config: %s is required", field)
	}
	return optionalAddress(field, value)
}

func optionalAddress(field, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, nil
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", value)
	}
	return amount, nil
}
