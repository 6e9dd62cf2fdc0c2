// Package config loads the YAML configuration of the stmbank binary.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sushant-115/gojostm/internal/bank"
	"github.com/sushant-115/gojostm/pkg/logger"
	"github.com/sushant-115/gojostm/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	STM       STMConfig        `yaml:"stm"`
	Bank      BankConfig       `yaml:"bank"`
	Load      bank.LoadConfig  `yaml:"load"`
}

// STMConfig tunes the commit runtime.
type STMConfig struct {
	// MaxConflicts bounds consecutive stale attempts of one commit. Zero
	// means unlimited.
	MaxConflicts int `yaml:"max_conflicts"`
}

// BankConfig lists the accounts opened at startup.
type BankConfig struct {
	Accounts []AccountConfig `yaml:"accounts"`
}

type AccountConfig struct {
	Name    string `yaml:"name"`
	Balance int64  `yaml:"balance"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logger: logger.Config{
			Level:       "info",
			Format:      "console",
			OutputFile:  "stderr",
			ServiceName: "stmbank",
		},
		Telemetry: telemetry.Config{
			Enabled:          true,
			ServiceName:      "stmbank",
			MetricsAddr:      ":9464",
			TraceSampleRatio: 0.01,
		},
		Bank: BankConfig{
			Accounts: []AccountConfig{
				{Name: "alice", Balance: 1000},
				{Name: "bob", Balance: 1000},
			},
		},
		Load: bank.LoadConfig{
			Workers:     8,
			Transfers:   10000,
			MaxAmount:   100,
			WaitTimeout: bank.DefaultWaitTimeout,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.STM.MaxConflicts < 0 {
		return errors.Errorf("stm.max_conflicts must not be negative, got %d", c.STM.MaxConflicts)
	}
	if r := c.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		return errors.Errorf("telemetry.trace_sample_ratio must be within [0, 1], got %v", r)
	}
	seen := make(map[string]bool, len(c.Bank.Accounts))
	for i, acc := range c.Bank.Accounts {
		switch {
		case acc.Name == "":
			return errors.Errorf("bank.accounts[%d] has no name", i)
		case seen[acc.Name]:
			return errors.Errorf("bank.accounts[%d]: duplicate account %q", i, acc.Name)
		case acc.Balance < 0:
			return errors.Errorf("bank.accounts[%d]: negative balance %d", i, acc.Balance)
		}
		seen[acc.Name] = true
	}
	if c.Load.Workers < 0 || c.Load.Transfers < 0 || c.Load.Rate < 0 || c.Load.MaxAmount < 0 || c.Load.WaitTimeout < 0 {
		return errors.New("load settings must not be negative")
	}
	return nil
}
