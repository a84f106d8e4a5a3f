package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammledger/internal/amm"
	"ammledger/internal/model"
)

var _ amm.ReserveSource = (*Client)(nil)

// Reserves reads getReserves() of a V2 pair at the latest block.
func (c *Client) Reserves(ctx context.Context, pair common.Address) (amm.Reserves, error) {
	return c.ReservesAt(ctx, pair, nil)
}

// ReservesAt reads getReserves() of a V2 pair at the given block.
func (c *Client) ReservesAt(ctx context.Context, pair common.Address, block *big.Int) (amm.Reserves, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return amm.Reserves{}, fmt.Errorf("parse pair abi: %w", err)
	}
	values, err := c.callMethod(ctx, pair, pairABI, "getReserves", block)
	if err != nil {
		return amm.Reserves{}, err
	}
	if len(values) != 3 {
		return amm.Reserves{}, fmt.Errorf("getReserves: expected 3 values, got %d", len(values))
	}

	reserve0, err := asUint256(values[0])
	if err != nil {
		return amm.Reserves{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asUint256(values[1])
	if err != nil {
		return amm.Reserves{}, fmt.Errorf("reserve1: %w", err)
	}
	ts, ok := values[2].(uint32)
	if !ok {
		return amm.Reserves{}, fmt.Errorf("blockTimestampLast: unsupported type %T", values[2])
	}

	c.logger.Debug("reserves fetched",
		zap.String("pair", pair.Hex()),
		zap.String("reserve0", reserve0.ToBig().String()),
		zap.String("reserve1", reserve1.ToBig().String()),
		zap.Uint32("block_timestamp_last", ts),
	)
	return amm.NewReserves(reserve0, reserve1, ts), nil
}

// PairTokens returns token0 and token1 of a V2 pair.
func (c *Client) PairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := c.callMethod(ctx, pair, pairABI, "token0", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}

	values, err = c.callMethod(ctx, pair, pairABI, "token1", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}
	return token0, token1, nil
}

// FetchPairMeta loads the pair tokens and their ERC20 metadata. Token metadata
// failures are logged and leave the token with only its address set.
func (c *Client) FetchPairMeta(ctx context.Context, pair common.Address) (model.PairMeta, error) {
	token0, token1, err := c.PairTokens(ctx, pair)
	if err != nil {
		return model.PairMeta{}, err
	}

	meta := model.PairMeta{Pair: pair.Hex()}
	for i, token := range []common.Address{token0, token1} {
		tokenMeta, err := c.TokenMeta(ctx, token)
		if err != nil {
			c.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		}
		if i == 0 {
			meta.Token0 = tokenMeta
		} else {
			meta.Token1 = tokenMeta
		}
	}
	return meta, nil
}

func (c *Client) callMethod(ctx context.Context, target common.Address, parsed abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := c.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asUint256(value interface{}) (*uint256.Int, error) {
	v, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("value does not fit in 256 bits: %s", v.String())
	}
	return out, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}
