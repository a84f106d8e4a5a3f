package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Op is a ledger operation name as it appears in a replay stream.
type Op string

const (
	OpDeposit   Op = "deposit"
	OpWithdraw  Op = "withdraw"
	OpTakeLoan  Op = "take_loan"
	OpRepayLoan Op = "repay_loan"
	OpSetFactor Op = "set_collateral_factor"
)

var opAliases = map[string]Op{
	"deposit":               OpDeposit,
	"depositcollateral":     OpDeposit,
	"withdraw":              OpWithdraw,
	"withdrawcollateral":    OpWithdraw,
	"take_loan":             OpTakeLoan,
	"takeloan":              OpTakeLoan,
	"borrow":                OpTakeLoan,
	"repay_loan":            OpRepayLoan,
	"repayloan":             OpRepayLoan,
	"repay":                 OpRepayLoan,
	"set_collateral_factor": OpSetFactor,
	"setcollateralfactor":   OpSetFactor,
}

// ParseOp accepts the snake_case names and the contract method names.
func ParseOp(input string) (Op, error) {
	op, ok := opAliases[strings.ToLower(strings.TrimSpace(input))]
	if !ok {
		return "", fmt.Errorf("unknown op: %q", input)
	}
	return op, nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAddresses converts string addresses into common.Address, skipping blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		addr, err := ParseAddress(input)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}
