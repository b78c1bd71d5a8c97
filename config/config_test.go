package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yieldrouter/crypto"
)

func testAddr(suffix byte) string {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0x42
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(raw).String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != defaultDataDir || cfg.BlockIntervalSeconds != defaultBlockInterval {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Aggregator.PlatformFeeBps != 10 || reloaded.Aggregator.MinDeposit != "1000" {
		t.Fatalf("unexpected reloaded aggregator config: %+v", reloaded.Aggregator)
	}
	if err := Validate(reloaded); err == nil {
		t.Fatalf("default config without owner must not validate")
	}
}

func TestLoadParsesAggregatorSettings(t *testing.T) {
	owner, custody, pool, user := testAddr(1), testAddr(2), testAddr(3), testAddr(4)
	path := writeConfig(t, fmt.Sprintf(`DataDir = "./data"
BlockIntervalSeconds = 2

[aggregator]
Owner = "%s"
CustodyAddress = "%s"
RewardPool = "%s"
MinDeposit = "500"
MaxSlippageBps = 25
PlatformFeeBps = 10

[pauses]
Aggregator = true

[[genesis.balances]]
Address = "%s"
Amount = "1000000000000000000000000"
`, owner, custody, pool, user))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	settings, err := cfg.AggregatorSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.Owner.String() != owner || settings.Custody.String() != custody {
		t.Fatalf("unexpected addresses: %+v", settings)
	}
	if settings.FeeCollector != settings.Owner {
		t.Fatalf("fee collector should default to owner")
	}
	if settings.MinDeposit.String() != "500" || settings.PlatformFeeBps != 10 || settings.MaxSlippageBps != 25 {
		t.Fatalf("unexpected numeric settings: %+v", settings)
	}
	if !cfg.Pauses.IsPaused("AGGREGATOR") || cfg.Pauses.IsPaused("bank") {
		t.Fatalf("unexpected pause state: %+v", cfg.Pauses)
	}
	allocs, err := cfg.GenesisAllocations()
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Amount.String() != "1000000000000000000000000" {
		t.Fatalf("unexpected allocations: %+v", allocs)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "DataDir = \"./data\"\nValidatorKey = \"abc\"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Aggregator.Owner = testAddr(1)
		cfg.Aggregator.CustodyAddress = testAddr(2)
		return cfg
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"fee too high":      func(c *Config) { c.Aggregator.PlatformFeeBps = 10_001 },
		"slippage too high": func(c *Config) { c.Aggregator.MaxSlippageBps = 20_000 },
		"negative minimum":  func(c *Config) { c.Aggregator.MinDeposit = "-1" },
		"custody is owner":  func(c *Config) { c.Aggregator.CustodyAddress = c.Aggregator.Owner },
		"bad collector":     func(c *Config) { c.Aggregator.FeeCollector = "nope" },
		"zero interval":     func(c *Config) { c.BlockIntervalSeconds = 0 },
		"bad genesis amount": func(c *Config) {
			c.Genesis.Balances = []GenesisBalance{{Address: testAddr(9), Amount: "12abc"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/etc/yield/config.toml", "gateway.yaml"); got != "/etc/yield/gateway.yaml" {
		t.Fatalf("unexpected resolved path %q", got)
	}
	if got := ResolvePath("config.toml", "gateway.yaml"); got != "gateway.yaml" {
		t.Fatalf("unexpected resolved path %q", got)
	}
	if got := ResolvePath("/etc/yield/config.toml", "/abs/gw.yaml"); got != "/abs/gw.yaml" {
		t.Fatalf("absolute paths must be kept, got %q", got)
	}
}
