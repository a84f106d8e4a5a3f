package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ammledger/internal/amm"
	"ammledger/internal/lending"
)

func TestObserveOperation(t *testing.T) {
	r := NewRecorder()
	r.ObserveOperation("deposit", nil, time.Microsecond)
	r.ObserveOperation("deposit", nil, time.Microsecond)
	r.ObserveOperation("withdraw", lending.ErrBelowRequiredMinimum, time.Microsecond)

	if got := testutil.ToFloat64(r.operations.WithLabelValues("deposit", "ok")); got != 2 {
		t.Fatalf("expected 2 deposits, got %v", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("withdraw", "BelowRequiredMinimum")); got != 1 {
		t.Fatalf("expected 1 rejected withdraw, got %v", got)
	}
	if got := testutil.CollectAndCount(r.operationDuration); got != 2 {
		t.Fatalf("expected 2 histogram series, got %d", got)
	}
}

func TestRecorderAsEventSink(t *testing.T) {
	r := NewRecorder()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ledger, err := lending.NewLedger(lending.Config{Owner: owner, CollateralFactor: 50, Sink: r})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	_ = ledger.SetCollateralFactor(owner, 70)

	if got := testutil.ToFloat64(r.events.WithLabelValues("CollateralFactorUpdated")); got != 1 {
		t.Fatalf("expected 1 event, got %v", got)
	}
	if got := testutil.ToFloat64(r.collateralFactor); got != 70 {
		t.Fatalf("expected factor gauge 70, got %v", got)
	}
}

func TestObserveQuote(t *testing.T) {
	r := NewRecorder()
	r.ObserveQuote("exact_in", nil)
	r.ObserveQuote("exact_out", amm.ErrInsufficientLiquidity)

	if got := testutil.ToFloat64(r.quotes.WithLabelValues("exact_in", "ok")); got != 1 {
		t.Fatalf("unexpected exact_in count %v", got)
	}
	if got := testutil.ToFloat64(r.quotes.WithLabelValues("exact_out", "InsufficientLiquidity")); got != 1 {
		t.Fatalf("unexpected exact_out count %v", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveOperation("deposit", errors.New("x"), time.Second)
	r.Emit(lending.Event{})
	r.ObserveQuote("exact_in", nil)
	r.SetLedgerState(1, 50)
	if err := r.WriteToTextfile("/nonexistent/metrics.prom"); err != nil {
		t.Fatalf("nil recorder should not write: %v", err)
	}
}

func TestWriteToTextfile(t *testing.T) {
	r := NewRecorder()
	r.SetLedgerState(3, 50)

	path := filepath.Join(t.TempDir(), "ammledger.prom")
	if err := r.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "ammledger_ledger_accounts 3") {
		t.Fatalf("missing gauge in output:\n%s", data)
	}
}
