package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jpark-fi/onbook/pkg/core"
	"github.com/jpark-fi/onbook/pkg/ledger"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	token = common.HexToAddress("0xB000000000000000000000000000000000000001")
)

func TestTransferIntoRequiresBalanceAndAllowance(t *testing.T) {
	led := ledger.NewInMemory()
	led.Mint(token, alice, big.NewInt(100))

	// No allowance yet.
	if err := led.TransferInto(token, alice, big.NewInt(50)); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("pull without allowance: err = %v, want ErrTransferFailed", err)
	}

	led.Approve(token, alice, big.NewInt(60))
	if err := led.TransferInto(token, alice, big.NewInt(50)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := led.BalanceOf(token, alice); got.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("balance = %s, want 50", got)
	}
	if got := led.Allowance(token, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("allowance = %s, want 10", got)
	}
	if got := led.Custody(token); got.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("custody = %s, want 50", got)
	}

	// Allowance left (10) is below balance left (50).
	if err := led.TransferInto(token, alice, big.NewInt(20)); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("pull past allowance: err = %v, want ErrTransferFailed", err)
	}

	// Balance short even though allowance would cover it.
	led.Approve(token, alice, big.NewInt(1000))
	if err := led.TransferInto(token, alice, big.NewInt(60)); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("pull past balance: err = %v, want ErrTransferFailed", err)
	}
}

func TestNativeNeedsNoAllowance(t *testing.T) {
	led := ledger.NewInMemory()
	led.Mint(core.NativeAsset, alice, big.NewInt(100))
	led.Approve(core.NativeAsset, alice, big.NewInt(1)) // ignored

	if err := led.TransferInto(core.NativeAsset, alice, big.NewInt(70)); err != nil {
		t.Fatalf("native pull: %v", err)
	}
	if got := led.Custody(core.NativeAsset); got.Cmp(big.NewInt(70)) != 0 {
		t.Errorf("custody = %s, want 70", got)
	}
	if err := led.TransferInto(core.NativeAsset, alice, big.NewInt(40)); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("native overdraw: err = %v, want ErrTransferFailed", err)
	}
}

func TestTransferOut(t *testing.T) {
	led := ledger.NewInMemory()
	led.Mint(token, alice, big.NewInt(100))
	led.Approve(token, alice, big.NewInt(100))
	if err := led.TransferInto(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("pull: %v", err)
	}

	if err := led.TransferOut(token, bob, big.NewInt(30)); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got := led.BalanceOf(token, bob); got.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("bob balance = %s, want 30", got)
	}
	if got := led.Custody(token); got.Cmp(big.NewInt(70)) != 0 {
		t.Errorf("custody = %s, want 70", got)
	}

	if err := led.TransferOut(token, bob, big.NewInt(71)); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("payout past custody: err = %v, want ErrTransferFailed", err)
	}
}

func TestZeroAmountIsNoop(t *testing.T) {
	led := ledger.NewInMemory()

	if err := led.TransferInto(token, alice, new(big.Int)); err != nil {
		t.Errorf("zero pull: %v", err)
	}
	if err := led.TransferOut(token, alice, new(big.Int)); err != nil {
		t.Errorf("zero payout: %v", err)
	}
	if err := led.TransferInto(token, alice, big.NewInt(-1)); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("negative pull: err = %v, want ErrTransferFailed", err)
	}
}

func TestFailedTransferMovesNothing(t *testing.T) {
	led := ledger.NewInMemory()
	led.Mint(token, alice, big.NewInt(10))
	led.Approve(token, alice, big.NewInt(10))

	if err := led.TransferInto(token, alice, big.NewInt(11)); err == nil {
		t.Fatal("expected failure")
	}
	if got := led.BalanceOf(token, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("balance changed on failed pull: %s", got)
	}
	if got := led.Allowance(token, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("allowance changed on failed pull: %s", got)
	}
	if got := led.Custody(token); got.Sign() != 0 {
		t.Errorf("custody changed on failed pull: %s", got)
	}
}
