package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the ledger replay command.
type ReplayConfig struct {
	In               string
	Out              string
	Errors           string
	Snapshots        string
	PGDSN            string
	Owner            string
	CollateralFactor uint64
	BatchSize        int
	SnapshotAccounts bool
	MetricsFile      string
	LogLevel         string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(flags)
	if err != nil {
		return ReplayConfig{}, err
	}

	v.SetDefault("out", "./data/ledger_events.jsonl")
	v.SetDefault("errors", "./data/ledger_errors.jsonl")
	v.SetDefault("collateral-factor", uint64(50))
	v.SetDefault("batch-size", 500)
	v.SetDefault("snapshot-accounts", true)

	if err := readConfig(v, cfgFile); err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		In:               v.GetString("in"),
		Out:              v.GetString("out"),
		Errors:           v.GetString("errors"),
		Snapshots:        v.GetString("snapshots"),
		PGDSN:            v.GetString("pg-dsn"),
		Owner:            v.GetString("owner"),
		CollateralFactor: v.GetUint64("collateral-factor"),
		BatchSize:        v.GetInt("batch-size"),
		SnapshotAccounts: v.GetBool("snapshot-accounts"),
		MetricsFile:      v.GetString("metrics-file"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, cfg.validate()
}

func (c ReplayConfig) validate() error {
	if c.In == "" {
		return fmt.Errorf("input path is required")
	}
	if c.Owner == "" {
		return fmt.Errorf("owner address is required")
	}
	if c.Out == "" && c.PGDSN == "" {
		return fmt.Errorf("an output path or pg dsn is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}
