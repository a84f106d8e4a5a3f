package replay

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"ammledger/internal/lending"
	"ammledger/internal/model"
	"ammledger/internal/u256"
)

func buildEventRecord(source string, line uint64, ev lending.Event, recordedAt time.Time) (model.LedgerEvent, error) {
	log, err := lending.EncodeLog(ev)
	if err != nil {
		return model.LedgerEvent{}, fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	record := model.LedgerEvent{
		Seq:        ev.Seq,
		Event:      string(ev.Type),
		Account:    ev.Account.Hex(),
		Topics:     topics,
		Data:       hexutil.Encode(log.Data),
		Source:     source,
		Line:       line,
		RecordedAt: recordedAt.UTC().Format(time.RFC3339Nano),
	}
	switch ev.Type {
	case lending.EventCollateralFactorUpdated:
		record.OldFactor = ev.OldFactor
		record.NewFactor = ev.NewFactor
	case lending.EventLoanTaken:
		record.Amount = u256.String(&ev.Amount)
		record.LockedCollateral = u256.String(&ev.LockedCollateral)
	default:
		record.Amount = u256.String(&ev.Amount)
	}
	return record, nil
}

func buildAccountSnapshot(source string, state lending.AccountState, updatedAt time.Time) model.AccountSnapshot {
	return model.AccountSnapshot{
		Source:           source,
		Account:          state.Account.Hex(),
		Collateral:       u256.String(&state.Collateral),
		LoanAmount:       u256.String(&state.Loan.Amount),
		LockedCollateral: u256.String(&state.Loan.LockedCollateral),
		LoanActive:       state.Loan.IsActive,
		UpdatedAt:        updatedAt.UTC().Format(time.RFC3339Nano),
	}
}
