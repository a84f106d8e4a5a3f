package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"ammledger/internal/amm"
)

type callArgs struct {
	To    *common.Address `json:"to"`
	Input *hexutil.Bytes  `json:"input"`
	Data  *hexutil.Bytes  `json:"data"`
}

type fakeEth struct {
	chainID     uint64
	blockNumber uint64

	mu        sync.Mutex
	calls     int
	lastBlock *gethrpc.BlockNumber
	// responses[contract][selector] = abi-encoded return data
	responses map[common.Address]map[[4]byte][]byte
}

func (f *fakeEth) ChainId(ctx context.Context) (*hexutil.Big, error) {
	return (*hexutil.Big)(new(big.Int).SetUint64(f.chainID)), nil
}

func (f *fakeEth) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	return hexutil.Uint64(f.blockNumber), nil
}

func (f *fakeEth) Call(ctx context.Context, args callArgs, block gethrpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastBlock = block.BlockNumber

	input := args.Input
	if input == nil {
		input = args.Data
	}
	if args.To == nil || input == nil || len(*input) < 4 {
		return nil, errors.New("invalid call")
	}
	var selector [4]byte
	copy(selector[:], (*input)[:4])
	if m, ok := f.responses[*args.To]; ok {
		if out, ok := m[selector]; ok {
			return hexutil.Bytes(out), nil
		}
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeEth) set(t *testing.T, contract common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	if f.responses == nil {
		f.responses = make(map[common.Address]map[[4]byte][]byte)
	}
	if f.responses[contract] == nil {
		f.responses[contract] = make(map[[4]byte][]byte)
	}
	var selector [4]byte
	copy(selector[:], m.ID)
	f.responses[contract][selector] = out
}

func (f *fakeEth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newInprocClient(t *testing.T, fe *fakeEth, opts Options) *Client {
	t.Helper()
	srv := gethrpc.NewServer()
	if err := srv.RegisterName("eth", fe); err != nil {
		t.Fatalf("register rpc service: %v", err)
	}
	t.Cleanup(srv.Stop)
	c := NewClientFromRPC(gethrpc.DialInProc(srv), opts)
	t.Cleanup(c.Close)
	return c
}

var (
	pairAddr   = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	token0Addr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token1Addr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newPairFake(t *testing.T) *fakeEth {
	t.Helper()
	pairABI, err := V2PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	stringABI, _ := erc20ABIStringInstance()
	bytes32ABI, _ := erc20ABIBytes32Instance()

	fe := &fakeEth{chainID: 56}
	fe.set(t, pairAddr, pairABI, "getReserves", big.NewInt(1_000_000), big.NewInt(2_000_000), uint32(1700000000))
	fe.set(t, pairAddr, pairABI, "token0", token0Addr)
	fe.set(t, pairAddr, pairABI, "token1", token1Addr)

	fe.set(t, token0Addr, stringABI, "decimals", uint8(18))
	fe.set(t, token0Addr, stringABI, "symbol", "WETH")
	fe.set(t, token0Addr, stringABI, "name", "Wrapped Ether")

	var symbol, name [32]byte
	copy(symbol[:], "MKR")
	copy(name[:], "Maker")
	fe.set(t, token1Addr, bytes32ABI, "decimals", uint8(6))
	fe.set(t, token1Addr, bytes32ABI, "symbol", symbol)
	fe.set(t, token1Addr, bytes32ABI, "name", name)
	return fe
}

func TestReserves(t *testing.T) {
	c := newInprocClient(t, newPairFake(t), Options{})

	var source amm.ReserveSource = c
	reserves, err := source.Reserves(context.Background(), pairAddr)
	if err != nil {
		t.Fatalf("Reserves: %v", err)
	}
	if reserves.Reserve0.Uint64() != 1_000_000 || reserves.Reserve1.Uint64() != 2_000_000 {
		t.Fatalf("unexpected reserves: %d %d", reserves.Reserve0.Uint64(), reserves.Reserve1.Uint64())
	}
	if reserves.BlockTimestampLast != 1700000000 {
		t.Fatalf("unexpected timestamp %d", reserves.BlockTimestampLast)
	}

	quote, err := amm.QuoteExactIn(reserves, amm.ZeroForOne, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.AmountOut.Uint64() != 1992 {
		t.Fatalf("expected 1992, got %d", quote.AmountOut.Uint64())
	}
}

func TestFetchPairMeta(t *testing.T) {
	fe := newPairFake(t)
	c := newInprocClient(t, fe, Options{})

	meta, err := c.FetchPairMeta(context.Background(), pairAddr)
	if err != nil {
		t.Fatalf("FetchPairMeta: %v", err)
	}
	if meta.Pair != pairAddr.Hex() || meta.Token0.Address != token0Addr.Hex() || meta.Token1.Address != token1Addr.Hex() {
		t.Fatalf("unexpected pair meta: %+v", meta)
	}
	if meta.Token0.Symbol != "WETH" || meta.Token0.Name != "Wrapped Ether" || meta.Token0.Decimals != 18 {
		t.Fatalf("unexpected token0 meta: %+v", meta.Token0)
	}
	if meta.Token1.Symbol != "MKR" || meta.Token1.Name != "Maker" || meta.Token1.Decimals != 6 {
		t.Fatalf("bytes32 fallback failed: %+v", meta.Token1)
	}

	calls := fe.callCount()
	if _, err := c.TokenMeta(context.Background(), token0Addr); err != nil {
		t.Fatalf("TokenMeta: %v", err)
	}
	if fe.callCount() != calls {
		t.Fatalf("expected cached token metadata, saw %d new calls", fe.callCount()-calls)
	}
}

func TestTokenMetaMissingDecimals(t *testing.T) {
	fe := newPairFake(t)
	c := newInprocClient(t, fe, Options{})

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	if _, err := c.TokenMeta(context.Background(), unknown); err == nil {
		t.Fatalf("expected error for token without decimals")
	}
	if _, ok := c.tokens.Get(unknown); ok {
		t.Fatalf("failed fetch must not be cached")
	}
}

func TestRevertIsNotRetried(t *testing.T) {
	fe := newPairFake(t)
	c := newInprocClient(t, fe, Options{MaxRetries: 3, RetryBaseDelay: time.Millisecond})

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	if _, err := c.Reserves(context.Background(), unknown); err == nil {
		t.Fatalf("expected error for unknown pair")
	}
	if got := fe.callCount(); got != 1 {
		t.Fatalf("expected a single eth_call, got %d", got)
	}
}

func TestChainID(t *testing.T) {
	c := newInprocClient(t, newPairFake(t), Options{})
	id, err := c.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if id.Uint64() != 56 {
		t.Fatalf("expected 56, got %s", id)
	}
}

func TestLatestBlockNumber(t *testing.T) {
	fe := newPairFake(t)
	fe.blockNumber = 38_000_000
	c := newInprocClient(t, fe, Options{})

	number, err := c.LatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("LatestBlockNumber: %v", err)
	}
	if number != 38_000_000 {
		t.Fatalf("expected block 38000000, got %d", number)
	}
}

func TestReservesAtPinsBlock(t *testing.T) {
	fe := newPairFake(t)
	c := newInprocClient(t, fe, Options{})

	if _, err := c.ReservesAt(context.Background(), pairAddr, big.NewInt(1234)); err != nil {
		t.Fatalf("ReservesAt: %v", err)
	}
	fe.mu.Lock()
	block := fe.lastBlock
	fe.mu.Unlock()
	if block == nil || block.Int64() != 1234 {
		t.Fatalf("expected call at block 1234, got %v", block)
	}
}
