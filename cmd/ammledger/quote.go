package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammledger/internal/amm"
	"ammledger/internal/chain"
	"ammledger/internal/config"
	"ammledger/internal/metrics"
	"ammledger/internal/model"
	"ammledger/internal/storage"
	"ammledger/internal/u256"
	"ammledger/internal/units"
)

type quoteMode string

const (
	modeExactIn  quoteMode = "exact_in"
	modeExactOut quoteMode = "exact_out"
)

// pairReader is the part of chain.Client the quote command needs. Reserves
// are read at a pinned block so the record names the state it quoted.
type pairReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	ReservesAt(ctx context.Context, pair common.Address, block *big.Int) (amm.Reserves, error)
	FetchPairMeta(ctx context.Context, pair common.Address) (model.PairMeta, error)
}

var _ pairReader = (*chain.Client)(nil)

func runQuote(mode quoteMode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		var reader pairReader
		if !cfg.Offline() {
			chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
				MaxRetries:     cfg.MaxRetries,
				RetryBaseDelay: cfg.RetryBackoff,
				Logger:         logger,
			})
			if err != nil {
				return fmt.Errorf("connect rpc: %w", err)
			}
			defer chainClient.Close()
			reader = chainClient
		}

		logger.Info("quote start",
			zap.String("mode", string(mode)),
			zap.String("pair", cfg.Pair),
			zap.String("direction", cfg.Direction),
			zap.String("amount", cfg.Amount),
			zap.Bool("offline", cfg.Offline()),
		)

		recorder := metrics.NewRecorder()
		record, err := buildQuote(ctx, cfg, mode, reader)
		recorder.ObserveQuote(string(mode), err)
		if werr := recorder.WriteToTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn("write metrics failed", zap.String("path", cfg.MetricsFile), zap.Error(werr))
		}
		if err != nil {
			return err
		}

		logger.Info("quote complete",
			zap.String("amount_in", record.AmountIn),
			zap.String("amount_out", record.AmountOut),
			zap.String("limit", record.Limit),
			zap.Uint64("chain_id", record.ChainID),
			zap.Uint64("block_number", record.BlockNumber),
		)
		return writeQuote(cmd.OutOrStdout(), cfg.Out, record)
	}
}

func buildQuote(ctx context.Context, cfg config.QuoteConfig, mode quoteMode, reader pairReader) (model.QuoteRecord, error) {
	direction, err := amm.ParseDirection(cfg.Direction)
	if err != nil {
		return model.QuoteRecord{}, err
	}

	var (
		reserves          amm.Reserves
		tokenIn, tokenOut model.TokenMeta
		pairHex           string
		chainID, block    uint64
	)
	if cfg.Offline() {
		reserveIn, err := u256.Parse(cfg.ReserveIn)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("reserve-in: %w", err)
		}
		reserveOut, err := u256.Parse(cfg.ReserveOut)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("reserve-out: %w", err)
		}
		// Explicit reserves are already oriented as (in, out).
		reserves = amm.NewReserves(reserveIn, reserveOut, 0)
		direction = amm.ZeroForOne
	} else {
		if reader == nil {
			return model.QuoteRecord{}, fmt.Errorf("reserve reader is nil")
		}
		if !common.IsHexAddress(cfg.Pair) {
			return model.QuoteRecord{}, fmt.Errorf("invalid pair address: %s", cfg.Pair)
		}
		pair := common.HexToAddress(cfg.Pair)
		pairHex = pair.Hex()

		id, err := reader.ChainID(ctx)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("get chain id: %w", err)
		}
		if !id.IsUint64() {
			return model.QuoteRecord{}, fmt.Errorf("chain id does not fit in uint64: %s", id)
		}
		chainID = id.Uint64()
		block, err = reader.LatestBlockNumber(ctx)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("get latest block: %w", err)
		}

		reserves, err = reader.ReservesAt(ctx, pair, new(big.Int).SetUint64(block))
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("fetch reserves: %w", err)
		}
		meta, err := reader.FetchPairMeta(ctx, pair)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("fetch pair meta: %w", err)
		}
		tokenIn, tokenOut = meta.Token0, meta.Token1
		if direction == amm.OneForZero {
			tokenIn, tokenOut = tokenOut, tokenIn
		}
	}

	decimalsIn, knownIn := resolveDecimals(cfg.DecimalsIn, tokenIn, !cfg.Offline())
	decimalsOut, knownOut := resolveDecimals(cfg.DecimalsOut, tokenOut, !cfg.Offline())

	amountDecimals, amountKnown := decimalsIn, knownIn
	if mode == modeExactOut {
		amountDecimals, amountKnown = decimalsOut, knownOut
	}
	amount, err := parseAmount(cfg.Amount, cfg.Human, amountDecimals, amountKnown)
	if err != nil {
		return model.QuoteRecord{}, err
	}

	var (
		quote amm.Quote
		limit *uint256.Int
	)
	switch mode {
	case modeExactIn:
		quote, err = amm.QuoteExactIn(reserves, direction, amount)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("quote output: %w", err)
		}
		limit, err = amm.MinimumOut(quote.AmountOut, cfg.SlippageBps)
	case modeExactOut:
		quote, err = amm.QuoteExactOut(reserves, direction, amount)
		if err != nil {
			return model.QuoteRecord{}, fmt.Errorf("quote input: %w", err)
		}
		limit, err = amm.MaximumIn(quote.AmountIn, cfg.SlippageBps)
	default:
		return model.QuoteRecord{}, fmt.Errorf("unsupported quote mode: %s", mode)
	}
	if err != nil {
		return model.QuoteRecord{}, fmt.Errorf("slippage limit: %w", err)
	}

	record := model.QuoteRecord{
		Mode:               string(mode),
		ChainID:            chainID,
		BlockNumber:        block,
		Pair:               pairHex,
		Direction:          direction.String(),
		TokenIn:            tokenIn,
		TokenOut:           tokenOut,
		ReserveIn:          u256.String(quote.ReserveIn),
		ReserveOut:         u256.String(quote.ReserveOut),
		BlockTimestampLast: reserves.BlockTimestampLast,
		AmountIn:           u256.String(quote.AmountIn),
		AmountOut:          u256.String(quote.AmountOut),
		SlippageBps:        cfg.SlippageBps,
		Limit:              u256.String(limit),
	}
	if knownIn {
		record.AmountInFormatted = units.Format(quote.AmountIn, decimalsIn)
	}
	if knownOut {
		record.AmountOutFormatted = units.Format(quote.AmountOut, decimalsOut)
	}
	return record, nil
}

func resolveDecimals(flagValue int, token model.TokenMeta, fromToken bool) (uint8, bool) {
	if flagValue >= 0 {
		return uint8(flagValue), true
	}
	if fromToken && token.Address != "" {
		return token.Decimals, true
	}
	return 0, false
}

func parseAmount(text string, human bool, decimals uint8, known bool) (*uint256.Int, error) {
	if !human {
		amount, err := u256.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		return amount, nil
	}
	if !known {
		return nil, fmt.Errorf("token decimals are required with --human and explicit reserves")
	}
	amount, err := units.Parse(text, decimals)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return amount, nil
}

func writeQuote(w io.Writer, path string, record model.QuoteRecord) error {
	if path == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	writer, err := storage.NewJSONLWriter(path, true)
	if err != nil {
		return err
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
