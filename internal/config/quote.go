package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote commands. Reserves are read
// from Pair over RPC unless both ReserveIn and ReserveOut are given.
type QuoteConfig struct {
	RPCURL       string
	Pair         string
	Direction    string
	Amount       string
	ReserveIn    string
	ReserveOut   string
	Human        bool
	DecimalsIn   int
	DecimalsOut  int
	SlippageBps  uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	Out          string
	MetricsFile  string
	LogLevel     string
}

// Offline reports whether the quote uses explicit reserves instead of RPC.
func (c QuoteConfig) Offline() bool {
	return c.ReserveIn != "" && c.ReserveOut != ""
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(flags)
	if err != nil {
		return QuoteConfig{}, err
	}

	v.SetDefault("direction", "zero-for-one")
	v.SetDefault("decimals-in", -1)
	v.SetDefault("decimals-out", -1)
	v.SetDefault("slippage-bps", uint64(50))
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("timeout", 15*time.Second)

	if err := readConfig(v, cfgFile); err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		RPCURL:       v.GetString("rpc"),
		Pair:         v.GetString("pair"),
		Direction:    v.GetString("direction"),
		Amount:       v.GetString("amount"),
		ReserveIn:    v.GetString("reserve-in"),
		ReserveOut:   v.GetString("reserve-out"),
		Human:        v.GetBool("human"),
		DecimalsIn:   v.GetInt("decimals-in"),
		DecimalsOut:  v.GetInt("decimals-out"),
		SlippageBps:  v.GetUint64("slippage-bps"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Timeout:      v.GetDuration("timeout"),
		Out:          v.GetString("out"),
		MetricsFile:  v.GetString("metrics-file"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, cfg.validate()
}

func (c QuoteConfig) validate() error {
	if c.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if (c.ReserveIn == "") != (c.ReserveOut == "") {
		return fmt.Errorf("reserve-in and reserve-out must be set together")
	}
	if !c.Offline() {
		if c.RPCURL == "" {
			return fmt.Errorf("rpc url is required without explicit reserves")
		}
		if c.Pair == "" {
			return fmt.Errorf("pair address is required without explicit reserves")
		}
	}
	if c.SlippageBps > 10_000 {
		return fmt.Errorf("slippage-bps must be within 0..10000")
	}
	if c.DecimalsIn > 77 || c.DecimalsOut > 77 {
		return fmt.Errorf("decimals must be within 0..77")
	}
	return nil
}
