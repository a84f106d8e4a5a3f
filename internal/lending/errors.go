package lending

import (
	"errors"

	"ammledger/internal/u256"
)

var (
	ErrInvalidAmount          = errors.New("lending: amount must be greater than zero")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	ErrBelowRequiredMinimum   = errors.New("lending: withdrawal leaves collateral below required minimum")
	ErrLoanAlreadyActive      = errors.New("lending: loan already active")
	ErrNoActiveLoan           = errors.New("lending: no active loan")
	ErrExcessiveRepayment     = errors.New("lending: repayment exceeds loan amount")
	ErrUnauthorized           = errors.New("lending: caller is not the owner")
	ErrInvalidFactor          = errors.New("lending: collateral factor must be within 1..100")

	ErrArithmeticOverflow  = u256.ErrArithmeticOverflow
	ErrArithmeticUnderflow = u256.ErrArithmeticUnderflow
	ErrDivisionByZero      = u256.ErrDivisionByZero
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInsufficientCollateral, "InsufficientCollateral"},
	{ErrBelowRequiredMinimum, "BelowRequiredMinimum"},
	{ErrLoanAlreadyActive, "LoanAlreadyActive"},
	{ErrNoActiveLoan, "NoActiveLoan"},
	{ErrExcessiveRepayment, "ExcessiveRepayment"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidFactor, "InvalidFactor"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
	{ErrArithmeticUnderflow, "ArithmeticUnderflow"},
	{ErrDivisionByZero, "DivisionByZero"},
}

// Kind returns the stable code for a ledger or arithmetic error so external
// systems can branch on it. It returns "" for nil and "Unknown" for errors
// outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Unknown"
}
