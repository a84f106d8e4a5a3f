// Package amm reproduces the Uniswap V2 constant-product pricing formulas with
// the fixed 0.3% fee. All arithmetic is checked 256-bit, so a result either
// matches the pair contract exactly or fails with the error the contract
// would revert with.
package amm

import (
	"errors"

	"github.com/holiman/uint256"

	"ammledger/internal/u256"
)

var (
	ErrArithmeticOverflow  = u256.ErrArithmeticOverflow
	ErrArithmeticUnderflow = u256.ErrArithmeticUnderflow
	ErrDivisionByZero      = u256.ErrDivisionByZero

	ErrNilAmount             = errors.New("amm: nil amount or reserve")
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrInvalidSlippage       = errors.New("amm: slippage must be within 0..10000 bps")
)

// fee: 0.3% => multiplier 997/1000
var (
	feeMul = uint256.NewInt(997)
	feeDen = uint256.NewInt(1000)
)

// QuoteOutput returns floor(amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)),
// the amount a pair pays out for an exact input.
func QuoteOutput(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if amountIn.IsZero() {
		return u256.Zero(), nil
	}

	amountInWithFee, err := u256.Mul(amountIn, feeMul)
	if err != nil {
		return nil, err
	}
	numerator, err := u256.Mul(amountInWithFee, reserveOut)
	if err != nil {
		return nil, err
	}
	denominator, err := u256.Mul(reserveIn, feeDen)
	if err != nil {
		return nil, err
	}
	denominator, err = u256.Add(denominator, amountInWithFee)
	if err != nil {
		return nil, err
	}
	return u256.Div(numerator, denominator)
}

// QuoteInput returns floor(reserveIn*amountOut*1000 / ((reserveOut-amountOut)*997)) + 1,
// the input required to receive amountOut. The +1 is applied even when the
// division is exact, as the router contract does.
func QuoteInput(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.IsZero() {
		return u256.Zero(), nil
	}

	numerator, err := u256.Mul(reserveIn, amountOut)
	if err != nil {
		return nil, err
	}
	numerator, err = u256.Mul(numerator, feeDen)
	if err != nil {
		return nil, err
	}
	remaining, err := u256.Sub(reserveOut, amountOut)
	if err != nil {
		return nil, err
	}
	denominator, err := u256.Mul(remaining, feeMul)
	if err != nil {
		return nil, err
	}
	amountIn, err := u256.Div(numerator, denominator)
	if err != nil {
		return nil, err
	}
	return u256.Add(amountIn, uint256.NewInt(1))
}

// Kind returns a stable code for quote errors, "" for nil and "Unknown" for
// anything else.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrArithmeticOverflow):
		return "ArithmeticOverflow"
	case errors.Is(err, ErrArithmeticUnderflow):
		return "ArithmeticUnderflow"
	case errors.Is(err, ErrDivisionByZero):
		return "DivisionByZero"
	case errors.Is(err, ErrNilAmount):
		return "NilAmount"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "InsufficientLiquidity"
	case errors.Is(err, ErrInvalidSlippage):
		return "InvalidSlippage"
	default:
		return "Unknown"
	}
}
