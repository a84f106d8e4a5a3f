package replay

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseOp(t *testing.T) {
	cases := map[string]Op{
		"deposit":             OpDeposit,
		"depositCollateral":   OpDeposit,
		" WITHDRAW ":          OpWithdraw,
		"takeLoan":            OpTakeLoan,
		"borrow":              OpTakeLoan,
		"repayLoan":           OpRepayLoan,
		"setCollateralFactor": OpSetFactor,
	}
	for input, want := range cases {
		got, err := ParseOp(input)
		if err != nil || got != want {
			t.Fatalf("ParseOp(%q): expected %s, got %s (%v)", input, want, got, err)
		}
	}
	if _, err := ParseOp("liquidate"); err == nil {
		t.Fatalf("expected error for unknown op")
	}
}

func TestParseAddresses(t *testing.T) {
	addrs, err := ParseAddresses([]string{" 0x0000000000000000000000000000000000000001 ", "", "0x00000000000000000000000000000000000000aa"})
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	want := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}
	if len(addrs) != len(want) || addrs[0] != want[0] || addrs[1] != want[1] {
		t.Fatalf("unexpected addresses: %v", addrs)
	}
	if _, err := ParseAddresses([]string{"0x123"}); err == nil {
		t.Fatalf("expected error for short address")
	}
}
