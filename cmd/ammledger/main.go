package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammledger",
		Short:        "Constant-product swap quotes and a collateralized lending ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a V2 pair",
	}

	outCmd := &cobra.Command{
		Use:   "out",
		Short: "Quote the output for an exact input amount",
		RunE:  runQuote(modeExactIn),
	}
	inCmd := &cobra.Command{
		Use:   "in",
		Short: "Quote the input required for an exact output amount",
		RunE:  runQuote(modeExactOut),
	}
	for _, cmd := range []*cobra.Command{outCmd, inCmd} {
		addQuoteFlags(cmd)
		quoteCmd.AddCommand(cmd)
	}
	root.AddCommand(quoteCmd)

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Lending ledger tools",
	}

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL operation stream through a lending ledger",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("out", "./data/ledger_events.jsonl", "output ledger events JSONL")
	replayCmd.Flags().String("errors", "./data/ledger_errors.jsonl", "rejected operations JSONL")
	replayCmd.Flags().String("snapshots", "", "optional account snapshots JSONL")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN for events and account snapshots")
	replayCmd.Flags().String("owner", "", "ledger owner address")
	replayCmd.Flags().Uint64("collateral-factor", 50, "initial collateral factor in percent (1-100)")
	replayCmd.Flags().Int("batch-size", 500, "events per storage batch")
	replayCmd.Flags().Bool("snapshot-accounts", true, "write account snapshots at the end of the run")
	replayCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	ledgerCmd.AddCommand(replayCmd)
	root.AddCommand(ledgerCmd)

	return root
}

func addQuoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("pair", "", "V2 pair address")
	cmd.Flags().String("direction", "zero-for-one", "swap direction (zero-for-one, one-for-zero)")
	cmd.Flags().String("amount", "", "amount in base units, or token units with --human")
	cmd.Flags().String("reserve-in", "", "input reserve in base units (skips RPC)")
	cmd.Flags().String("reserve-out", "", "output reserve in base units (skips RPC)")
	cmd.Flags().Bool("human", false, "amount is in token units")
	cmd.Flags().Int("decimals-in", -1, "input token decimals, -1 reads them from the token")
	cmd.Flags().Int("decimals-out", -1, "output token decimals, -1 reads them from the token")
	cmd.Flags().Uint64("slippage-bps", 50, "slippage tolerance in basis points for the limit amount")
	cmd.Flags().Int("max-retries", 3, "maximum RPC retry attempts")
	cmd.Flags().Duration("retry-backoff", 200*time.Millisecond, "initial RPC retry backoff")
	cmd.Flags().Duration("timeout", 15*time.Second, "overall RPC timeout")
	cmd.Flags().String("out", "", "append the quote to this JSONL file instead of stdout")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
