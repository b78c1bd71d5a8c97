package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration for yieldd and yieldctl.
type Config struct {
	DataDir              string     `toml:"DataDir"`
	Environment          string     `toml:"Environment"`
	LogFile              string     `toml:"LogFile"`
	GatewayConfig        string     `toml:"GatewayConfig"`
	BlockIntervalSeconds uint64     `toml:"BlockIntervalSeconds"`
	GenesisTime          int64      `toml:"GenesisTime"`
	Aggregator           Aggregator `toml:"aggregator"`
	Pauses               Pauses     `toml:"pauses"`
	Genesis              Genesis    `toml:"genesis"`
}

const (
	defaultDataDir       = "./yield-data"
	defaultGatewayConfig = "gateway.yaml"
	defaultBlockInterval = 5
)

// Load loads the configuration from the given path. A default file is
// written when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.GatewayConfig) == "" {
		cfg.GatewayConfig = defaultGatewayConfig
	}
	if cfg.BlockIntervalSeconds == 0 {
		cfg.BlockIntervalSeconds = defaultBlockInterval
	}
	if cfg.Genesis.Balances == nil {
		cfg.Genesis.Balances = []GenesisBalance{}
	}
}

// Default returns the configuration written for a fresh node. The owner and
// custody addresses are left empty and must be filled in before Validate
// passes.
func Default() *Config {
	cfg := &Config{
		DataDir:              defaultDataDir,
		GatewayConfig:        defaultGatewayConfig,
		BlockIntervalSeconds: defaultBlockInterval,
		Aggregator: Aggregator{
			MinDeposit:     "1000",
			MaxSlippageBps: 50,
			PlatformFeeBps: 10,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ResolvePath interprets a relative path against the directory holding the
// configuration file.
func ResolvePath(configPath, target string) string {
	target = strings.TrimSpace(target)
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		return target
	}
	return filepath.Join(dir, target)
}
