package lending

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func newTestLedger(t *testing.T, factor uint64) (*Ledger, *MemorySink) {
	t.Helper()
	sink := &MemorySink{}
	ledger, err := NewLedger(Config{Owner: owner, CollateralFactor: factor, Sink: sink})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return ledger, sink
}

func n(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestNewLedgerRejectsFactor(t *testing.T) {
	for _, factor := range []uint64{0, 101, 150} {
		if _, err := NewLedger(Config{Owner: owner, CollateralFactor: factor}); !errors.Is(err, ErrInvalidFactor) {
			t.Fatalf("factor %d: expected ErrInvalidFactor, got %v", factor, err)
		}
	}
}

func TestBorrowThenWithdrawBelowMinimum(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)

	if err := ledger.DepositCollateral(alice, n(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.TakeLoan(alice, n(40)); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	loan := ledger.LoanDetails(alice)
	if !loan.IsActive || loan.Amount.Uint64() != 40 || loan.LockedCollateral.Uint64() != 50 {
		t.Fatalf("unexpected loan: amount=%d locked=%d active=%v", loan.Amount.Uint64(), loan.LockedCollateral.Uint64(), loan.IsActive)
	}

	if err := ledger.WithdrawCollateral(alice, n(100)); !errors.Is(err, ErrBelowRequiredMinimum) {
		t.Fatalf("expected ErrBelowRequiredMinimum, got %v", err)
	}
	if got := ledger.CollateralBalance(alice).Uint64(); got != 100 {
		t.Fatalf("balance changed after failed withdraw: %d", got)
	}

	// 100 - 20 = 80 equals the required minimum exactly.
	if err := ledger.WithdrawCollateral(alice, n(20)); err != nil {
		t.Fatalf("withdraw to minimum: %v", err)
	}
	if err := ledger.WithdrawCollateral(alice, n(1)); !errors.Is(err, ErrBelowRequiredMinimum) {
		t.Fatalf("expected ErrBelowRequiredMinimum, got %v", err)
	}
}

func TestTakeLoanTwice(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(100))

	if err := ledger.TakeLoan(alice, n(10)); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	if err := ledger.TakeLoan(alice, n(10)); !errors.Is(err, ErrLoanAlreadyActive) {
		t.Fatalf("expected ErrLoanAlreadyActive, got %v", err)
	}
	loan := ledger.LoanDetails(alice)
	if got := loan.Amount.Uint64(); got != 10 {
		t.Fatalf("loan amount changed: %d", got)
	}
}

func TestTakeLoanCapacity(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(101))

	// floor(101 * 50 / 100) = 50
	if err := ledger.TakeLoan(alice, n(51)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if err := ledger.TakeLoan(alice, n(50)); err != nil {
		t.Fatalf("take loan at capacity: %v", err)
	}
	if err := ledger.TakeLoan(bob, n(1)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("unknown account: expected ErrInsufficientCollateral, got %v", err)
	}
	if len(ledger.Accounts()) != 1 {
		t.Fatalf("failed loan must not register an account")
	}
}

func TestRepayLoan(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(100))
	_ = ledger.TakeLoan(alice, n(40))

	if err := ledger.RepayLoan(alice, n(41)); !errors.Is(err, ErrExcessiveRepayment) {
		t.Fatalf("expected ErrExcessiveRepayment, got %v", err)
	}
	if err := ledger.RepayLoan(alice, n(15)); err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	loan := ledger.LoanDetails(alice)
	if !loan.IsActive || loan.Amount.Uint64() != 25 || loan.LockedCollateral.Uint64() != 50 {
		t.Fatalf("unexpected loan after partial repay: %+v", loan)
	}
	if err := ledger.RepayLoan(alice, n(25)); err != nil {
		t.Fatalf("final repay: %v", err)
	}
	loan = ledger.LoanDetails(alice)
	if loan.IsActive || !loan.Amount.IsZero() || !loan.LockedCollateral.IsZero() {
		t.Fatalf("loan not cleared: %+v", loan)
	}
	if err := ledger.RepayLoan(alice, n(1)); !errors.Is(err, ErrNoActiveLoan) {
		t.Fatalf("expected ErrNoActiveLoan, got %v", err)
	}
	if err := ledger.RepayLoan(bob, n(1)); !errors.Is(err, ErrNoActiveLoan) {
		t.Fatalf("unknown account: expected ErrNoActiveLoan, got %v", err)
	}

	// Without a loan the whole balance is withdrawable.
	if err := ledger.WithdrawCollateral(alice, n(100)); err != nil {
		t.Fatalf("withdraw after repay: %v", err)
	}
}

func TestRepayFullLoanInOneCall(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(100))
	_ = ledger.TakeLoan(alice, n(40))

	if err := ledger.RepayLoan(alice, n(40)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if ledger.LoanDetails(alice).IsActive {
		t.Fatalf("loan still active")
	}
	if err := ledger.RepayLoan(alice, n(1)); !errors.Is(err, ErrNoActiveLoan) {
		t.Fatalf("expected ErrNoActiveLoan, got %v", err)
	}
}

func TestSetCollateralFactor(t *testing.T) {
	ledger, sink := newTestLedger(t, 50)

	if err := ledger.SetCollateralFactor(owner, 150); !errors.Is(err, ErrInvalidFactor) {
		t.Fatalf("expected ErrInvalidFactor, got %v", err)
	}
	if err := ledger.SetCollateralFactor(owner, 0); !errors.Is(err, ErrInvalidFactor) {
		t.Fatalf("expected ErrInvalidFactor for 0, got %v", err)
	}
	if err := ledger.SetCollateralFactor(alice, 60); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := ledger.CollateralFactor(); got != 50 {
		t.Fatalf("factor changed after failures: %d", got)
	}
	if err := ledger.SetCollateralFactor(owner, 60); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	if got := ledger.CollateralFactor(); got != 60 {
		t.Fatalf("expected factor 60, got %d", got)
	}

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventCollateralFactorUpdated || ev.OldFactor != 50 || ev.NewFactor != 60 || ev.Account != owner {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestFactorChangeDoesNotTouchLoans(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(100))
	_ = ledger.TakeLoan(alice, n(50))

	if err := ledger.SetCollateralFactor(owner, 25); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	loan := ledger.LoanDetails(alice)
	if loan.LockedCollateral.Uint64() != 50 || loan.Amount.Uint64() != 50 {
		t.Fatalf("loan changed by factor update: %+v", loan)
	}
	// Required minimum is now 50*100/25 = 200, above the balance.
	required, err := ledger.RequiredCollateral(alice)
	if err != nil || required.Uint64() != 200 {
		t.Fatalf("required collateral: %v %v", required, err)
	}
	if err := ledger.WithdrawCollateral(alice, n(1)); !errors.Is(err, ErrBelowRequiredMinimum) {
		t.Fatalf("expected ErrBelowRequiredMinimum, got %v", err)
	}
}

func TestZeroAmounts(t *testing.T) {
	ledger, sink := newTestLedger(t, 50)

	if err := ledger.DepositCollateral(alice, n(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("deposit 0: expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.WithdrawCollateral(alice, n(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("withdraw 0: expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.DepositCollateral(alice, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("deposit nil: expected ErrInvalidAmount, got %v", err)
	}
	if len(ledger.Accounts()) != 0 || len(sink.Events()) != 0 {
		t.Fatalf("rejected operations must not change state")
	}

	// A zero loan is accepted and still occupies the loan slot.
	if err := ledger.TakeLoan(alice, n(0)); err != nil {
		t.Fatalf("take zero loan: %v", err)
	}
	if !ledger.LoanDetails(alice).IsActive {
		t.Fatalf("zero loan should be active")
	}
	if err := ledger.RepayLoan(alice, n(0)); err != nil {
		t.Fatalf("repay zero: %v", err)
	}
	if ledger.LoanDetails(alice).IsActive {
		t.Fatalf("zero repayment on zero loan should close it")
	}
}

func TestDepositOverflow(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	maxValue := new(uint256.Int).SetAllOne()

	if err := ledger.DepositCollateral(alice, maxValue); err != nil {
		t.Fatalf("deposit max: %v", err)
	}
	if err := ledger.DepositCollateral(alice, n(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	if !ledger.CollateralBalance(alice).Eq(maxValue) {
		t.Fatalf("balance changed after overflow")
	}
	// balance * factor overflows before the division.
	if err := ledger.TakeLoan(alice, n(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow on take loan, got %v", err)
	}
}

func TestEventsFollowCommits(t *testing.T) {
	ledger, sink := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(100))
	_ = ledger.TakeLoan(alice, n(40))
	_ = ledger.WithdrawCollateral(alice, n(100)) // rejected
	_ = ledger.RepayLoan(alice, n(40))
	_ = ledger.WithdrawCollateral(alice, n(30))

	want := []struct {
		typ    EventType
		amount uint64
	}{
		{EventCollateralDeposited, 100},
		{EventLoanTaken, 40},
		{EventLoanRepaid, 40},
		{EventCollateralWithdrawn, 30},
	}
	events := sink.Events()
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, w := range want {
		ev := events[i]
		if ev.Type != w.typ || ev.Amount.Uint64() != w.amount || ev.Account != alice {
			t.Fatalf("event %d: unexpected %+v", i, ev)
		}
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d: expected seq %d, got %d", i, i+1, ev.Seq)
		}
	}
	if events[1].LockedCollateral.Uint64() != 50 {
		t.Fatalf("LoanTaken locked collateral: %d", events[1].LockedCollateral.Uint64())
	}
}

func TestViewsAreIdempotent(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(100))
	_ = ledger.TakeLoan(alice, n(40))

	first := ledger.Accounts()
	for i := 0; i < 3; i++ {
		_ = ledger.CollateralBalance(alice)
		_ = ledger.LoanDetails(alice)
		_, _ = ledger.MaxBorrow(alice)
		_, _ = ledger.RequiredCollateral(alice)
	}
	second := ledger.Accounts()
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("unexpected accounts: %d %d", len(first), len(second))
	}
	if !first[0].Collateral.Eq(&second[0].Collateral) || first[0].Loan != second[0].Loan {
		t.Fatalf("views mutated state")
	}
	// Mutating the returned balance must not reach the ledger.
	ledger.CollateralBalance(alice).SetUint64(0)
	if ledger.CollateralBalance(alice).Uint64() != 100 {
		t.Fatalf("balance view aliases ledger state")
	}
}

func TestAccountsSorted(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(bob, n(2))
	_ = ledger.DepositCollateral(alice, n(1))

	accounts := ledger.Accounts()
	if len(accounts) != 2 || accounts[0].Account != alice || accounts[1].Account != bob {
		t.Fatalf("unexpected order: %+v", accounts)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	ledger, sink := newTestLedger(t, 50)

	const workers = 16
	const perWorker = 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			addr := alice
			if w%2 == 1 {
				addr = bob
			}
			for i := 0; i < perWorker; i++ {
				if err := ledger.DepositCollateral(addr, n(1)); err != nil {
					t.Errorf("deposit: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	half := uint64(workers / 2 * perWorker)
	if got := ledger.CollateralBalance(alice).Uint64(); got != half {
		t.Fatalf("alice: expected %d, got %d", half, got)
	}
	if got := ledger.CollateralBalance(bob).Uint64(); got != half {
		t.Fatalf("bob: expected %d, got %d", half, got)
	}
	if got := len(sink.Events()); got != workers*perWorker {
		t.Fatalf("expected %d events, got %d", workers*perWorker, got)
	}
}

func TestConcurrentTakeLoanSingleWinner(t *testing.T) {
	ledger, _ := newTestLedger(t, 50)
	_ = ledger.DepositCollateral(alice, n(1000))

	const workers = 32
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.TakeLoan(alice, n(100))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLoanAlreadyActive):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != workers-1 {
		t.Fatalf("expected one winner, got ok=%d already=%d", ok, already)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidAmount, "InvalidAmount"},
		{ErrBelowRequiredMinimum, "BelowRequiredMinimum"},
		{fmt.Errorf("op 3: %w", ErrNoActiveLoan), "NoActiveLoan"},
		{ErrArithmeticOverflow, "ArithmeticOverflow"},
		{ErrDivisionByZero, "DivisionByZero"},
		{errors.New("boom"), "Unknown"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v): expected %q, got %q", tc.err, tc.want, got)
		}
	}
}

func TestMultiSink(t *testing.T) {
	first := &MemorySink{}
	var count int
	sink := MultiSink{first, nil, EventSinkFunc(func(Event) { count++ })}

	ledger, err := NewLedger(Config{Owner: owner, CollateralFactor: 75, Sink: sink})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	_ = ledger.DepositCollateral(alice, n(5))
	if len(first.Events()) != 1 || count != 1 {
		t.Fatalf("fan-out failed: %d %d", len(first.Events()), count)
	}
	if drained := first.Drain(); len(drained) != 1 || len(first.Events()) != 0 {
		t.Fatalf("drain failed")
	}
}
