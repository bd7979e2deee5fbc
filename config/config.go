package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultCancellationFeeBps is the penalty charged against a cancelling
	// party, 10% of the unpaid remainder.
	DefaultCancellationFeeBps = 1_000
	// DefaultArbitrationFeeBps is the fee withheld from disputed amounts for
	// the resolving arbitrator, 5%.
	DefaultArbitrationFeeBps = 500
)

type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	DataDir            string `toml:"DataDir"`
	ServiceName        string `toml:"ServiceName"`
	Environment        string `toml:"Environment"`
	CancellationFeeBps uint32 `toml:"CancellationFeeBps"`
	ArbitrationFeeBps  uint32 `toml:"ArbitrationFeeBps"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects fee parameters outside the basis-point range and fills in
// defaults for blank fields.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}
	if c.RPCAddress == "" {
		c.RPCAddress = "127.0.0.1:8545"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.ServiceName == "" {
		c.ServiceName = "jobmarketd"
	}
	if c.CancellationFeeBps > 10_000 {
		return fmt.Errorf("CancellationFeeBps %d out of range", c.CancellationFeeBps)
	}
	if c.ArbitrationFeeBps > 10_000 {
		return fmt.Errorf("ArbitrationFeeBps %d out of range", c.ArbitrationFeeBps)
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         "127.0.0.1:8545",
		DataDir:            "./data",
		ServiceName:        "jobmarketd",
		CancellationFeeBps: DefaultCancellationFeeBps,
		ArbitrationFeeBps:  DefaultArbitrationFeeBps,
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
