package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const defaultRetryBaseDelay = 200 * time.Millisecond

// Options tunes retries and logging of a Client. MaxRetries of zero disables
// retries.
type Options struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	Logger         *zap.Logger
}

// Client wraps go-ethereum RPC and reads V2 pair and ERC20 state.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	maxRetries     int
	retryBaseDelay time.Duration
	logger         *zap.Logger

	tokens *TokenMetaCache
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClientFromRPC(rpcClient, opts), nil
}

// NewClientFromRPC wraps an existing RPC client.
func NewClientFromRPC(rpcClient *rpc.Client, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	return &Client{
		rpcClient:      rpcClient,
		ethClient:      ethclient.NewClient(rpcClient),
		maxRetries:     maxRetries,
		retryBaseDelay: baseDelay,
		logger:         logger,
		tokens:         NewTokenMetaCache(),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.retry(ctx, "eth_chainId", func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	return id, err
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.retry(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		number, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return number, err
}

// CallContract performs an eth_call. A nil blockNumber reads the latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.retry(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) retry(ctx context.Context, method string, fn func(context.Context) error) error {
	attempt := 0
	return withRetry(ctx, c.maxRetries, c.retryBaseDelay, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && retryable(err) && attempt <= c.maxRetries {
			c.logger.Warn("rpc call failed, retrying",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
}
