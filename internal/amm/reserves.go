package amm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammledger/internal/u256"
)

// Direction selects which pair token is sold.
type Direction int

const (
	// ZeroForOne sells token0 for token1.
	ZeroForOne Direction = iota
	// OneForZero sells token1 for token0.
	OneForZero
)

func (d Direction) String() string {
	switch d {
	case ZeroForOne:
		return "zero-for-one"
	case OneForZero:
		return "one-for-zero"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "zero-for-one"/"0to1" and "one-for-zero"/"1to0".
func ParseDirection(input string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "zero-for-one", "0to1", "0-1", "":
		return ZeroForOne, nil
	case "one-for-zero", "1to0", "1-0":
		return OneForZero, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s", input)
	}
}

// Reserves is a getReserves() snapshot of a V2 pair.
type Reserves struct {
	Reserve0           uint256.Int
	Reserve1           uint256.Int
	BlockTimestampLast uint32
}

// NewReserves copies r0 and r1 into a snapshot.
func NewReserves(r0, r1 *uint256.Int, blockTimestampLast uint32) Reserves {
	var res Reserves
	res.Reserve0.Set(r0)
	res.Reserve1.Set(r1)
	res.BlockTimestampLast = blockTimestampLast
	return res
}

// Orient returns (reserveIn, reserveOut) for a swap in direction d.
func (r Reserves) Orient(d Direction) (*uint256.Int, *uint256.Int) {
	if d == OneForZero {
		return r.Reserve1.Clone(), r.Reserve0.Clone()
	}
	return r.Reserve0.Clone(), r.Reserve1.Clone()
}

// Empty reports whether either side of the pair has no liquidity.
func (r Reserves) Empty() bool {
	return r.Reserve0.IsZero() || r.Reserve1.IsZero()
}

// ReserveSource supplies reserve snapshots for a pair. The quote functions
// never call it; callers fetch first and quote against the snapshot.
type ReserveSource interface {
	Reserves(ctx context.Context, pair common.Address) (Reserves, error)
}

// Quote is the result of pricing one side of a swap against a snapshot.
type Quote struct {
	Direction  Direction
	AmountIn   *uint256.Int
	AmountOut  *uint256.Int
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
}

// QuoteExactIn prices selling amountIn in direction d.
func QuoteExactIn(reserves Reserves, d Direction, amountIn *uint256.Int) (Quote, error) {
	if reserves.Empty() {
		return Quote{}, ErrInsufficientLiquidity
	}
	reserveIn, reserveOut := reserves.Orient(d)
	amountOut, err := QuoteOutput(amountIn, reserveIn, reserveOut)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Direction:  d,
		AmountIn:   amountIn.Clone(),
		AmountOut:  amountOut,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
	}, nil
}

// QuoteExactOut prices buying amountOut in direction d.
func QuoteExactOut(reserves Reserves, d Direction, amountOut *uint256.Int) (Quote, error) {
	if reserves.Empty() {
		return Quote{}, ErrInsufficientLiquidity
	}
	reserveIn, reserveOut := reserves.Orient(d)
	amountIn, err := QuoteInput(amountOut, reserveIn, reserveOut)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Direction:  d,
		AmountIn:   amountIn,
		AmountOut:  amountOut.Clone(),
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
	}, nil
}

const maxBps = 10_000

var bpsScale = uint256.NewInt(maxBps)

// MinimumOut applies a slippage tolerance to an output quote, rounding down.
func MinimumOut(amountOut *uint256.Int, slippageBps uint64) (*uint256.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if slippageBps > maxBps {
		return nil, ErrInvalidSlippage
	}
	return u256.MulDiv(amountOut, uint256.NewInt(maxBps-slippageBps), bpsScale)
}

// MaximumIn applies a slippage tolerance to an input quote, rounding up.
func MaximumIn(amountIn *uint256.Int, slippageBps uint64) (*uint256.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if slippageBps > maxBps {
		return nil, ErrInvalidSlippage
	}
	scaled, err := u256.Mul(amountIn, uint256.NewInt(maxBps+slippageBps))
	if err != nil {
		return nil, err
	}
	scaled, err = u256.Add(scaled, uint256.NewInt(maxBps-1))
	if err != nil {
		return nil, err
	}
	return u256.Div(scaled, bpsScale)
}
