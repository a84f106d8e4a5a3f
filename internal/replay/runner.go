package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammledger/internal/lending"
	"ammledger/internal/metrics"
	"ammledger/internal/model"
	"ammledger/internal/storage"
	"ammledger/internal/u256"
)

// KindMalformed marks input lines that could not be turned into an operation.
const KindMalformed = "Malformed"

const defaultBatchSize = 500

var errMalformed = errors.New("malformed operation")

// RecordWriter receives rejected operations.
type RecordWriter interface {
	Write(value interface{}) error
}

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	Source           string
	Owner            common.Address
	CollateralFactor uint64
	BatchSize        int
	SnapshotAccounts bool
}

// Summary counts what a replay did.
type Summary struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Rejected  int `json:"rejected"`
	Malformed int `json:"malformed"`
	Events    int `json:"events"`
	Accounts  int `json:"accounts"`
	// LastSeq is the seq of the last event written to storage, 0 if none.
	LastSeq uint64 `json:"last_seq"`
}

// Runner applies an operation stream to a fresh Ledger and writes the
// resulting events to storage.
type Runner struct {
	cfg     RunConfig
	ledger  *lending.Ledger
	buffer  *lending.MemorySink
	storage storage.Storage
	errors  RecordWriter
	metrics *metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunner builds a Runner with its dependencies. errWriter and recorder may be nil.
func NewRunner(cfg RunConfig, storageSink storage.Storage, errWriter RecordWriter, recorder *metrics.Recorder, logger *zap.Logger) (*Runner, error) {
	if storageSink == nil {
		return nil, fmt.Errorf("storage is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	buffer := &lending.MemorySink{}
	ledger, err := lending.NewLedger(lending.Config{
		Owner:            cfg.Owner,
		CollateralFactor: cfg.CollateralFactor,
		Sink:             lending.MultiSink{buffer, recorder},
		Logger:           logger.Named("ledger"),
	})
	if err != nil {
		return nil, fmt.Errorf("new ledger: %w", err)
	}
	recorder.SetLedgerState(0, cfg.CollateralFactor)

	return &Runner{
		cfg:     cfg,
		ledger:  ledger,
		buffer:  buffer,
		storage: storageSink,
		errors:  errWriter,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Ledger returns the ledger the runner applies operations to.
func (r *Runner) Ledger() *lending.Ledger { return r.ledger }

// Run reads JSON operations from in, one per line. Rejected and malformed
// operations are recorded and skipped; storage failures abort the run.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Summary, error) {
	var summary Summary

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	pending := make([]model.LedgerEvent, 0, r.cfg.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := r.storage.PutEventBatch(ctx, pending); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		r.logger.Debug("events stored", zap.Int("count", len(pending)))
		summary.Events += len(pending)
		summary.LastSeq = pending[len(pending)-1].Seq
		pending = pending[:0]
		return nil
	}

	var lineNo uint64
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		summary.Total++

		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			summary.Malformed++
			if err := r.reject(lineNo, op, KindMalformed, err); err != nil {
				return summary, err
			}
			continue
		}

		if err := r.apply(op); err != nil {
			kind := lending.Kind(err)
			if errors.Is(err, errMalformed) {
				kind = KindMalformed
				summary.Malformed++
			} else {
				summary.Rejected++
			}
			if err := r.reject(lineNo, op, kind, err); err != nil {
				return summary, err
			}
			continue
		}
		summary.Applied++

		recordedAt := r.now()
		for _, ev := range r.buffer.Drain() {
			record, err := buildEventRecord(r.cfg.Source, lineNo, ev, recordedAt)
			if err != nil {
				return summary, err
			}
			pending = append(pending, record)
		}
		if len(pending) >= r.cfg.BatchSize {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}
	if err := flush(); err != nil {
		return summary, err
	}

	accounts := r.ledger.Accounts()
	summary.Accounts = len(accounts)
	r.metrics.SetLedgerState(len(accounts), r.ledger.CollateralFactor())

	if r.cfg.SnapshotAccounts && len(accounts) > 0 {
		updatedAt := r.now()
		snapshots := make([]model.AccountSnapshot, 0, len(accounts))
		for _, state := range accounts {
			snapshots = append(snapshots, buildAccountSnapshot(r.cfg.Source, state, updatedAt))
		}
		if err := r.storage.PutAccountSnapshots(ctx, snapshots); err != nil {
			return summary, fmt.Errorf("store account snapshots: %w", err)
		}
	}

	return summary, nil
}

func (r *Runner) apply(op model.Operation) error {
	name, err := ParseOp(op.Op)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	started := time.Now()
	err = r.dispatch(name, op)
	if !errors.Is(err, errMalformed) {
		r.metrics.ObserveOperation(string(name), err, time.Since(started))
	}
	return err
}

func (r *Runner) dispatch(name Op, op model.Operation) error {
	if name == OpSetFactor {
		caller, err := ParseAddress(op.Caller)
		if err != nil {
			return fmt.Errorf("%w: caller: %v", errMalformed, err)
		}
		return r.ledger.SetCollateralFactor(caller, op.Factor)
	}

	account, err := ParseAddress(op.Account)
	if err != nil {
		return fmt.Errorf("%w: account: %v", errMalformed, err)
	}
	amount, err := u256.Parse(op.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount: %v", errMalformed, err)
	}

	switch name {
	case OpDeposit:
		return r.ledger.DepositCollateral(account, amount)
	case OpWithdraw:
		return r.ledger.WithdrawCollateral(account, amount)
	case OpTakeLoan:
		return r.ledger.TakeLoan(account, amount)
	case OpRepayLoan:
		return r.ledger.RepayLoan(account, amount)
	default:
		return fmt.Errorf("%w: unsupported op %s", errMalformed, name)
	}
}

func (r *Runner) reject(line uint64, op model.Operation, kind string, cause error) error {
	account := op.Account
	if account == "" {
		account = op.Caller
	}
	r.logger.Debug("operation rejected",
		zap.Uint64("line", line),
		zap.String("op", op.Op),
		zap.String("kind", kind),
		zap.Error(cause),
	)
	if r.errors == nil {
		return nil
	}
	record := model.OperationError{
		Source:  r.cfg.Source,
		Line:    line,
		Op:      op.Op,
		Account: account,
		Amount:  op.Amount,
		Kind:    kind,
		Error:   cause.Error(),
	}
	if err := r.errors.Write(record); err != nil {
		return fmt.Errorf("write operation error: %w", err)
	}
	return nil
}
