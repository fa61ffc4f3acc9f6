// Package engine implements the settlement operations of the exchange:
// opening, cancelling and executing resting orders, with fee accounting and
// fund movement through the asset-transfer collaborator.
//
// Every mutating operation runs under a single process-wide mutual-exclusion
// flag. The flag is set on entry and cleared on every exit path; a second
// mutating call while it is set — from another goroutine or from a ledger
// callback on the same one — fails immediately with core.ErrReentrant.
// Read-only queries are exempt and observe state as of the last completed
// mutation.
package engine

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jpark-fi/onbook/pkg/core"
	"github.com/jpark-fi/onbook/pkg/core/ordertable"
	"github.com/jpark-fi/onbook/pkg/ledger"
)

// Engine is the settlement engine over one order table and one ledger.
// Logger and Sink may be replaced after construction, before first use.
type Engine struct {
	Logger *zap.SugaredLogger
	Sink   Sink

	table  *ordertable.Table
	ledger ledger.Ledger

	entered atomic.Bool // mutual-exclusion flag shared by all mutating ops

	cfgMu        sync.RWMutex
	feeRecipient common.Address // zero address = fees disabled
	feeSetter    common.Address
}

// New creates an engine. feeSetter is the only principal allowed to change
// the fee recipient or reassign itself; the fee recipient starts unset.
func New(table *ordertable.Table, led ledger.Ledger, feeSetter common.Address) *Engine {
	return &Engine{
		Logger:    zap.NewNop().Sugar(),
		table:     table,
		ledger:    led,
		feeSetter: feeSetter,
	}
}

// OpenOrder escrows amount of the pair's base asset from caller and posts a
// resting order at the given 18-decimal fixed-point price. For a native base
// asset the attached payment must equal amount exactly; for any other asset
// attached must be zero and the amount is pulled through the ledger.
// Returns the new order's id.
func (e *Engine) OpenOrder(pair core.Pair, price, amount *big.Int, caller common.Address, attached *big.Int) (uint64, error) {
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", core.ErrInvalidArgument)
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", core.ErrInvalidArgument)
	}
	if err := e.checkAttached(pair.Base, attached, amount); err != nil {
		return 0, err
	}

	if err := e.ledger.TransferInto(pair.Base, caller, amount); err != nil {
		return 0, fmt.Errorf("escrow deposit: %w", err)
	}

	id, err := e.table.Insert(pair, caller, price, amount)
	if err != nil {
		// Unreachable after the validation above; surface it anyway.
		return 0, err
	}

	e.Logger.Infow("open_order", "pair", pair.String(), "order_id", id,
		"maker", caller.Hex(), "price", price, "amount", amount)
	e.emit(OpenOrderEvent{Pair: pair, Price: cloneBig(price), Amount: cloneBig(amount)})
	return id, nil
}

// CancelOrder removes the caller's order and refunds its remaining base
// amount. Only the maker may cancel. The table mutation happens before the
// refund so a callback during the refund observes the order already gone.
func (e *Engine) CancelOrder(pair core.Pair, id uint64, caller common.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	ord, err := e.table.Get(pair, id)
	if err != nil {
		return err
	}
	if caller != ord.Maker {
		return fmt.Errorf("%w: only the maker may cancel order %d", core.ErrUnauthorized, id)
	}

	if err := e.table.Remove(pair, id); err != nil {
		return err
	}
	if err := e.ledger.TransferOut(pair.Base, caller, ord.Remaining); err != nil {
		// Refunds come out of custody the engine itself funded, so this only
		// fires on a broken collaborator. Reinstate the order and report.
		if rerr := e.table.Restore(pair, ord); rerr != nil {
			e.Logger.Errorw("cancel_restore_failed", "pair", pair.String(), "order_id", id, "err", rerr)
		}
		return fmt.Errorf("refund: %w", err)
	}

	e.Logger.Infow("cancel_order", "pair", pair.String(), "order_id", id,
		"maker", caller.Hex(), "refunded", ord.Remaining)
	e.emit(CancelOrderEvent{Pair: pair, OrderID: id})
	return nil
}

// ExecuteOrder settles up to requested base units against a resting order.
// The caller pays proceeds = fill * price / 10^18 in the quote asset
// (truncating; any fractional quote value is forfeit) plus a proceeds/500
// fee when a fee recipient is configured. For a native quote asset the
// attached payment must equal proceeds + fee exactly. The filled base amount
// is paid to the caller from engine custody. Returns the actual fill, which
// is min(requested, remaining).
func (e *Engine) ExecuteOrder(pair core.Pair, id uint64, caller common.Address, requested, attached *big.Int) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if requested == nil || requested.Sign() <= 0 {
		return nil, fmt.Errorf("%w: requested amount must be positive", core.ErrInvalidArgument)
	}
	ord, err := e.table.Get(pair, id)
	if err != nil {
		return nil, err
	}

	fill := new(big.Int).Set(requested)
	if fill.Cmp(ord.Remaining) > 0 {
		fill.Set(ord.Remaining)
	}
	proceeds := new(big.Int).Mul(fill, ord.Price)
	proceeds.Quo(proceeds, core.PricePrecision)

	recipient := e.FeeRecipient()
	fee := new(big.Int)
	if recipient != (common.Address{}) {
		fee.Quo(proceeds, big.NewInt(core.FeeDivisor))
	}

	// Payment settlement: quote legs complete before the order is touched,
	// so a failed pull leaves no trace.
	due := new(big.Int).Add(proceeds, fee)
	if err := e.checkAttached(pair.Quote, attached, due); err != nil {
		return nil, err
	}
	if err := e.ledger.TransferInto(pair.Quote, caller, due); err != nil {
		return nil, fmt.Errorf("quote payment: %w", err)
	}
	if fee.Sign() > 0 {
		if err := e.ledger.TransferOut(pair.Quote, recipient, fee); err != nil {
			return nil, fmt.Errorf("fee payout: %w", err)
		}
	}
	if err := e.ledger.TransferOut(pair.Quote, ord.Maker, proceeds); err != nil {
		return nil, fmt.Errorf("maker payout: %w", err)
	}

	// Order mutation: full fill removes, partial fill decrements in place.
	fullFill := fill.Cmp(ord.Remaining) == 0
	if fullFill {
		if err := e.table.Remove(pair, id); err != nil {
			return nil, err
		}
	} else {
		if err := e.table.DecrementRemaining(pair, id, fill); err != nil {
			return nil, err
		}
	}

	// Base delivery out of custody. Covered by the accounting invariant, so
	// a failure means a broken collaborator: unwind the table mutation and
	// report. The quote legs are already settled and are not clawed back.
	if err := e.ledger.TransferOut(pair.Base, caller, fill); err != nil {
		if fullFill {
			if rerr := e.table.Restore(pair, ord); rerr != nil {
				e.Logger.Errorw("execute_restore_failed", "pair", pair.String(), "order_id", id, "err", rerr)
			}
		} else {
			if rerr := e.undoDecrement(pair, ord); rerr != nil {
				e.Logger.Errorw("execute_restore_failed", "pair", pair.String(), "order_id", id, "err", rerr)
			}
		}
		return nil, fmt.Errorf("base delivery: %w", err)
	}

	e.Logger.Infow("execute_order", "pair", pair.String(), "order_id", id,
		"taker", caller.Hex(), "requested", requested, "filled", fill,
		"proceeds", proceeds, "fee", fee, "full_fill", fullFill)
	// The event carries the requested amount, not the actual fill — see the
	// ExecuteOrderEvent doc comment.
	e.emit(ExecuteOrderEvent{Pair: pair, OrderID: id, Amount: cloneBig(requested)})
	return fill, nil
}

// PairOrders returns the pair's live resting orders. The table's inert
// sentinel slot is filtered out; only matchable orders appear.
func (e *Engine) PairOrders(pair core.Pair) []ordertable.Order {
	all := e.table.ListAll(pair)
	if len(all) == 0 {
		return nil
	}
	out := make([]ordertable.Order, 0, len(all)-1)
	for _, ord := range all {
		if ord.ID == 0 {
			continue
		}
		out = append(out, ord)
	}
	return out
}

// SetFeeRecipient changes where settlement fees go. Only the fee setter may
// call it; the zero address clears the recipient and disables fees.
func (e *Engine) SetFeeRecipient(caller, recipient common.Address) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if caller != e.feeSetter {
		return fmt.Errorf("%w: caller is not the fee setter", core.ErrUnauthorized)
	}
	e.feeRecipient = recipient
	e.Logger.Infow("set_fee_recipient", "recipient", recipient.Hex())
	return nil
}

// SetFeeSetter reassigns fee-setting authority. Only the current fee setter
// may call it.
func (e *Engine) SetFeeSetter(caller, setter common.Address) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if caller != e.feeSetter {
		return fmt.Errorf("%w: caller is not the fee setter", core.ErrUnauthorized)
	}
	e.feeSetter = setter
	e.Logger.Infow("set_fee_setter", "setter", setter.Hex())
	return nil
}

// FeeRecipient returns the configured recipient; zero means fees disabled.
func (e *Engine) FeeRecipient() common.Address {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.feeRecipient
}

// FeeSetter returns the principal allowed to change fee configuration.
func (e *Engine) FeeSetter() common.Address {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.feeSetter
}

func (e *Engine) enter() error {
	if !e.entered.CompareAndSwap(false, true) {
		return core.ErrReentrant
	}
	return nil
}

func (e *Engine) exit() { e.entered.Store(false) }

// checkAttached enforces the native-sentinel payment rule: the attached
// payment must equal required exactly for a native asset and must be absent
// for any other asset.
func (e *Engine) checkAttached(asset core.Asset, attached, required *big.Int) error {
	if asset == core.NativeAsset {
		if attached == nil || attached.Cmp(required) != 0 {
			return fmt.Errorf("%w: attached %s, required %s", core.ErrIncorrectPayment, bigOrZero(attached), required)
		}
		return nil
	}
	if attached != nil && attached.Sign() != 0 {
		return fmt.Errorf("%w: unexpected attached payment for asset %s", core.ErrIncorrectPayment, asset.Hex())
	}
	return nil
}

// undoDecrement reinstates an order's pre-fill state after a failed base
// delivery on the partial-fill path.
func (e *Engine) undoDecrement(pair core.Pair, orig ordertable.Order) error {
	if err := e.table.Remove(pair, orig.ID); err != nil {
		return err
	}
	return e.table.Restore(pair, orig)
}

func (e *Engine) emit(ev Event) {
	if e.Sink != nil {
		e.Sink.Emit(ev)
	}
}

func cloneBig(x *big.Int) *big.Int { return new(big.Int).Set(x) }

func bigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
