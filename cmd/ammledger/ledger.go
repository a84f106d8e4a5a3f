package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammledger/internal/config"
	"ammledger/internal/metrics"
	"ammledger/internal/replay"
	"ammledger/internal/storage"
	"ammledger/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owner, err := replay.ParseAddress(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	source := filepath.Base(cfg.In)

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out, cfg.Snapshots))
	}

	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()

		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		if lastSeq, ok, err := pgStore.LoadState(ctx, source); err != nil {
			return fmt.Errorf("load state: %w", err)
		} else if ok {
			logger.Info("source replayed before, stored events are kept", zap.String("source", source), zap.Uint64("last_seq", lastSeq))
		}
		sinks = append(sinks, pgStore)
	}

	var errWriter *storage.JSONLWriter
	if cfg.Errors != "" {
		errWriter, err = storage.NewJSONLWriter(cfg.Errors, false)
		if err != nil {
			return err
		}
		defer func() {
			if err := errWriter.Close(); err != nil {
				logger.Warn("close errors file failed", zap.String("path", cfg.Errors), zap.Error(err))
			}
		}()
	}

	recorder := metrics.NewRecorder()

	var recordWriter replay.RecordWriter
	if errWriter != nil {
		recordWriter = errWriter
	}
	runner, err := replay.NewRunner(replay.RunConfig{
		Source:           source,
		Owner:            owner,
		CollateralFactor: cfg.CollateralFactor,
		BatchSize:        cfg.BatchSize,
		SnapshotAccounts: cfg.SnapshotAccounts,
	}, sinks, recordWriter, recorder, logger)
	if err != nil {
		return err
	}

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("postgres", pgStore != nil),
		zap.String("owner", owner.Hex()),
		zap.Uint64("collateral_factor", cfg.CollateralFactor),
		zap.Int("batch_size", cfg.BatchSize),
	)

	summary, err := runner.Run(ctx, inputFile)
	if err != nil {
		return err
	}

	if pgStore != nil {
		if err := pgStore.SaveState(ctx, source, summary.LastSeq); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	if err := recorder.WriteToTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	logger.Info("replay complete",
		zap.Int("total", summary.Total),
		zap.Int("applied", summary.Applied),
		zap.Int("rejected", summary.Rejected),
		zap.Int("malformed", summary.Malformed),
		zap.Int("events", summary.Events),
		zap.Uint64("last_seq", summary.LastSeq),
		zap.Int("accounts", summary.Accounts),
		zap.Uint64("collateral_factor", runner.Ledger().CollateralFactor()),
	)

	return nil
}
