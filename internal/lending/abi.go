package lending

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const ledgerEventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "CollateralDeposited",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "CollateralWithdrawn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "collateralLocked", "type": "uint256"}
    ],
    "name": "LoanTaken",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "LoanRepaid",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "oldFactor", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newFactor", "type": "uint256"}
    ],
    "name": "CollateralFactorUpdated",
    "type": "event"
  }
]`

var (
	ledgerABI     abi.ABI
	ledgerABIOnce sync.Once
	ledgerABIErr  error
)

// EventsABI returns the parsed ABI of the ledger events.
func EventsABI() (abi.ABI, error) {
	ledgerABIOnce.Do(func() {
		ledgerABI, ledgerABIErr = abi.JSON(strings.NewReader(ledgerEventsABIJSON))
	})
	return ledgerABI, ledgerABIErr
}

// Log is an event in contract-log form: topic0, the indexed address topic and
// the ABI-packed non-indexed fields.
type Log struct {
	Topics []common.Hash
	Data   []byte
}

// EncodeLog packs ev the way the lending contract would have logged it.
func EncodeLog(ev Event) (Log, error) {
	parsed, err := EventsABI()
	if err != nil {
		return Log{}, fmt.Errorf("parse events abi: %w", err)
	}
	event, ok := parsed.Events[string(ev.Type)]
	if !ok {
		return Log{}, fmt.Errorf("unsupported event type: %s", ev.Type)
	}

	var values []interface{}
	switch ev.Type {
	case EventCollateralDeposited, EventCollateralWithdrawn, EventLoanRepaid:
		values = []interface{}{ev.Amount.ToBig()}
	case EventLoanTaken:
		values = []interface{}{ev.Amount.ToBig(), ev.LockedCollateral.ToBig()}
	case EventCollateralFactorUpdated:
		values = []interface{}{new(big.Int).SetUint64(ev.OldFactor), new(big.Int).SetUint64(ev.NewFactor)}
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return Log{}, fmt.Errorf("pack %s: %w", ev.Type, err)
	}

	return Log{
		Topics: []common.Hash{event.ID, common.BytesToHash(ev.Account.Bytes())},
		Data:   data,
	}, nil
}
