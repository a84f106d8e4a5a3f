// Package lending keeps a collateral-backed loan ledger: per-account collateral
// balances, at most one active loan per account, and an owner-controlled
// collateral factor.
package lending

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammledger/internal/u256"
)

const (
	MinCollateralFactor uint64 = 1
	MaxCollateralFactor uint64 = 100

	percent = 100
)

const (
	opDeposit   = "deposit"
	opWithdraw  = "withdraw"
	opTakeLoan  = "take_loan"
	opRepayLoan = "repay_loan"
	opSetFactor = "set_collateral_factor"
)

// Loan is the loan record of one account. An inactive loan has zero Amount
// and zero LockedCollateral.
type Loan struct {
	Amount           uint256.Int
	LockedCollateral uint256.Int
	IsActive         bool
}

// Config configures a Ledger. Sink and Logger may be nil.
type Config struct {
	Owner            common.Address
	CollateralFactor uint64
	Sink             EventSink
	Logger           *zap.Logger
}

type account struct {
	mu         sync.Mutex
	collateral uint256.Int
	loan       Loan
}

// Ledger is safe for concurrent use. Operations on one account are
// serialized; operations on different accounts do not block each other.
type Ledger struct {
	owner common.Address

	factorMu sync.RWMutex
	factor   uint64

	mu       sync.RWMutex
	accounts map[common.Address]*account

	seq    atomic.Uint64
	sink   EventSink
	logger *zap.Logger
}

// NewLedger returns an empty ledger. It fails with ErrInvalidFactor when the
// initial factor is outside [MinCollateralFactor, MaxCollateralFactor].
func NewLedger(cfg Config) (*Ledger, error) {
	if !validFactor(cfg.CollateralFactor) {
		return nil, ErrInvalidFactor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		owner:    cfg.Owner,
		factor:   cfg.CollateralFactor,
		accounts: make(map[common.Address]*account),
		sink:     cfg.Sink,
		logger:   logger,
	}, nil
}

func validFactor(factor uint64) bool {
	return factor >= MinCollateralFactor && factor <= MaxCollateralFactor
}

func (l *Ledger) lookup(addr common.Address) *account {
	l.mu.RLock()
	acct := l.accounts[addr]
	l.mu.RUnlock()
	return acct
}

func (l *Ledger) getOrCreate(addr common.Address) *account {
	if acct := l.lookup(addr); acct != nil {
		return acct
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	if !ok {
		acct = &account{}
		l.accounts[addr] = acct
	}
	return acct
}

func (l *Ledger) emit(ev Event) {
	ev.Seq = l.seq.Add(1)
	if l.sink != nil {
		l.sink.Emit(ev)
	}
}

func (l *Ledger) reject(op string, addr common.Address, amount *uint256.Int, err error) error {
	l.logger.Debug("ledger operation rejected",
		zap.String("op", op),
		zap.String("account", addr.Hex()),
		zap.String("amount", u256.String(amount)),
		zap.String("kind", Kind(err)),
	)
	return err
}

// DepositCollateral adds amount to the account's collateral balance.
func (l *Ledger) DepositCollateral(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return l.reject(opDeposit, addr, amount, ErrInvalidAmount)
	}

	acct := l.getOrCreate(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	balance, err := u256.Add(&acct.collateral, amount)
	if err != nil {
		return l.reject(opDeposit, addr, amount, err)
	}
	acct.collateral.Set(balance)

	l.logger.Debug("collateral deposited",
		zap.String("account", addr.Hex()),
		zap.String("amount", u256.String(amount)),
		zap.String("balance", u256.String(balance)),
	)
	l.emit(Event{Type: EventCollateralDeposited, Account: addr, Amount: *amount.Clone()})
	return nil
}

// WithdrawCollateral removes amount from the account's collateral balance. With
// an active loan the remaining balance must cover the required minimum at the
// current factor.
func (l *Ledger) WithdrawCollateral(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return l.reject(opWithdraw, addr, amount, ErrInvalidAmount)
	}

	acct := l.lookup(addr)
	if acct == nil {
		return l.reject(opWithdraw, addr, amount, ErrInsufficientCollateral)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if amount.Gt(&acct.collateral) {
		return l.reject(opWithdraw, addr, amount, ErrInsufficientCollateral)
	}
	remaining, err := u256.Sub(&acct.collateral, amount)
	if err != nil {
		return l.reject(opWithdraw, addr, amount, err)
	}
	if acct.loan.IsActive {
		required, err := requiredCollateral(&acct.loan.Amount, l.CollateralFactor())
		if err != nil {
			return l.reject(opWithdraw, addr, amount, err)
		}
		if remaining.Lt(required) {
			return l.reject(opWithdraw, addr, amount, ErrBelowRequiredMinimum)
		}
	}
	acct.collateral.Set(remaining)

	l.logger.Debug("collateral withdrawn",
		zap.String("account", addr.Hex()),
		zap.String("amount", u256.String(amount)),
		zap.String("balance", u256.String(remaining)),
	)
	l.emit(Event{Type: EventCollateralWithdrawn, Account: addr, Amount: *amount.Clone()})
	return nil
}

// TakeLoan opens a loan of amount against the account's collateral. The
// borrowing capacity at the current factor is recorded as locked collateral.
func (l *Ledger) TakeLoan(addr common.Address, amount *uint256.Int) error {
	if amount == nil {
		return l.reject(opTakeLoan, addr, amount, ErrInvalidAmount)
	}

	acct := l.lookup(addr)
	if acct == nil {
		// Unknown account: zero balance, so only a zero loan can fit.
		if !amount.IsZero() {
			return l.reject(opTakeLoan, addr, amount, ErrInsufficientCollateral)
		}
		acct = l.getOrCreate(addr)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.loan.IsActive {
		return l.reject(opTakeLoan, addr, amount, ErrLoanAlreadyActive)
	}
	capacity, err := maxBorrow(&acct.collateral, l.CollateralFactor())
	if err != nil {
		return l.reject(opTakeLoan, addr, amount, err)
	}
	if amount.Gt(capacity) {
		return l.reject(opTakeLoan, addr, amount, ErrInsufficientCollateral)
	}
	acct.loan = Loan{Amount: *amount.Clone(), LockedCollateral: *capacity, IsActive: true}

	l.logger.Debug("loan taken",
		zap.String("account", addr.Hex()),
		zap.String("amount", u256.String(amount)),
		zap.String("locked_collateral", u256.String(capacity)),
	)
	l.emit(Event{
		Type:             EventLoanTaken,
		Account:          addr,
		Amount:           *amount.Clone(),
		LockedCollateral: *capacity.Clone(),
	})
	return nil
}

// RepayLoan reduces the active loan by amount. Repaying the full outstanding
// amount closes the loan.
func (l *Ledger) RepayLoan(addr common.Address, amount *uint256.Int) error {
	if amount == nil {
		return l.reject(opRepayLoan, addr, amount, ErrInvalidAmount)
	}

	acct := l.lookup(addr)
	if acct == nil {
		return l.reject(opRepayLoan, addr, amount, ErrNoActiveLoan)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if !acct.loan.IsActive {
		return l.reject(opRepayLoan, addr, amount, ErrNoActiveLoan)
	}
	if amount.Gt(&acct.loan.Amount) {
		return l.reject(opRepayLoan, addr, amount, ErrExcessiveRepayment)
	}
	outstanding, err := u256.Sub(&acct.loan.Amount, amount)
	if err != nil {
		return l.reject(opRepayLoan, addr, amount, err)
	}
	if outstanding.IsZero() {
		acct.loan = Loan{}
	} else {
		acct.loan.Amount.Set(outstanding)
	}

	l.logger.Debug("loan repaid",
		zap.String("account", addr.Hex()),
		zap.String("amount", u256.String(amount)),
		zap.String("outstanding", u256.String(outstanding)),
	)
	l.emit(Event{Type: EventLoanRepaid, Account: addr, Amount: *amount.Clone()})
	return nil
}

// SetCollateralFactor replaces the collateral factor. Only the owner may call
// it. Existing loans keep their recorded locked collateral.
func (l *Ledger) SetCollateralFactor(caller common.Address, factor uint64) error {
	if caller != l.owner {
		return l.reject(opSetFactor, caller, uint256.NewInt(factor), ErrUnauthorized)
	}
	if !validFactor(factor) {
		return l.reject(opSetFactor, caller, uint256.NewInt(factor), ErrInvalidFactor)
	}

	l.factorMu.Lock()
	old := l.factor
	l.factor = factor
	l.factorMu.Unlock()

	l.logger.Info("collateral factor updated",
		zap.Uint64("old_factor", old),
		zap.Uint64("new_factor", factor),
	)
	l.emit(Event{Type: EventCollateralFactorUpdated, Account: caller, OldFactor: old, NewFactor: factor})
	return nil
}

// Owner returns the identity allowed to change the collateral factor.
func (l *Ledger) Owner() common.Address { return l.owner }

// CollateralFactor returns the current factor in percent.
func (l *Ledger) CollateralFactor() uint64 {
	l.factorMu.RLock()
	defer l.factorMu.RUnlock()
	return l.factor
}

// CollateralBalance returns the account's collateral, zero for unknown accounts.
func (l *Ledger) CollateralBalance(addr common.Address) *uint256.Int {
	acct := l.lookup(addr)
	if acct == nil {
		return new(uint256.Int)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.collateral.Clone()
}

// LoanDetails returns a copy of the account's loan record.
func (l *Ledger) LoanDetails(addr common.Address) Loan {
	acct := l.lookup(addr)
	if acct == nil {
		return Loan{}
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.loan
}

// MaxBorrow returns balance * factor / 100 at the current factor.
func (l *Ledger) MaxBorrow(addr common.Address) (*uint256.Int, error) {
	return maxBorrow(l.CollateralBalance(addr), l.CollateralFactor())
}

// RequiredCollateral returns the collateral the account must keep while its
// loan is active, zero otherwise.
func (l *Ledger) RequiredCollateral(addr common.Address) (*uint256.Int, error) {
	loan := l.LoanDetails(addr)
	if !loan.IsActive {
		return new(uint256.Int), nil
	}
	return requiredCollateral(&loan.Amount, l.CollateralFactor())
}

// AccountState is a point-in-time view of one account.
type AccountState struct {
	Account    common.Address
	Collateral uint256.Int
	Loan       Loan
}

// Accounts returns a snapshot of every known account sorted by address. Each
// account is read atomically; the snapshot as a whole is not.
func (l *Ledger) Accounts() []AccountState {
	l.mu.RLock()
	addrs := make([]common.Address, 0, len(l.accounts))
	entries := make(map[common.Address]*account, len(l.accounts))
	for addr, acct := range l.accounts {
		addrs = append(addrs, addr)
		entries[addr] = acct
	}
	l.mu.RUnlock()

	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0
	})

	out := make([]AccountState, 0, len(addrs))
	for _, addr := range addrs {
		acct := entries[addr]
		acct.mu.Lock()
		out = append(out, AccountState{Account: addr, Collateral: acct.collateral, Loan: acct.loan})
		acct.mu.Unlock()
	}
	return out
}

func maxBorrow(balance *uint256.Int, factor uint64) (*uint256.Int, error) {
	return u256.MulDiv(balance, uint256.NewInt(factor), uint256.NewInt(percent))
}

func requiredCollateral(loan *uint256.Int, factor uint64) (*uint256.Int, error) {
	return u256.MulDiv(loan, uint256.NewInt(percent), uint256.NewInt(factor))
}
