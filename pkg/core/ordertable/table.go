// Package ordertable implements the resting-order storage of the exchange:
// a dense, per-pair sequence of orders plus an id -> slot index giving O(1)
// insert, lookup and removal. Removal swaps the victim with the last slot and
// truncates, so the sequence never has holes but iteration order is not
// stable across removals.
package ordertable

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jpark-fi/onbook/pkg/core"
)

// Order is one resting offer to sell a fixed amount of the pair's base asset
// at a fixed unit price in the quote asset.
type Order struct {
	ID    uint64         `json:"id"`
	Maker common.Address `json:"maker"`
	// Price is the unit price of base in quote, 18-decimal fixed point.
	Price *big.Int `json:"price"`
	// Remaining is the base-asset quantity still available to be bought.
	// Positive for every live order; the sentinel slot keeps it at zero.
	Remaining *big.Int `json:"remaining"`
}

func (o Order) clone() Order {
	return Order{
		ID:        o.ID,
		Maker:     o.Maker,
		Price:     new(big.Int).Set(o.Price),
		Remaining: new(big.Int).Set(o.Remaining),
	}
}

// book holds one pair's dense order sequence. Slot 0 is an inert sentinel
// created on first insert so that swap-with-last removal never has to
// special-case a pair that emptied and regrew. The sentinel is not in the
// index and is never a live order.
type book struct {
	orders []Order
	index  map[uint64]int // order id -> slot
}

// Table stores resting orders for every trading pair. It has no collaborator
// dependencies and no behavior beyond storage; the settlement engine layers
// validation, fund movement and the reentrancy guard on top. The internal
// RWMutex makes concurrent reads safe while the engine serializes writes.
type Table struct {
	mu     sync.RWMutex
	nextID uint64 // last assigned order id; ids are global and never reused
	pairs  map[core.Pair]*book
}

func NewTable() *Table {
	return &Table{pairs: make(map[core.Pair]*book)}
}

// Insert appends a new order and returns its id. Requires price > 0 and
// amount > 0; beyond that it cannot fail.
func (t *Table) Insert(pair core.Pair, maker common.Address, price, amount *big.Int) (uint64, error) {
	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", core.ErrInvalidArgument)
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", core.ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.pairs[pair]
	if !ok {
		b = &book{
			orders: []Order{{Price: new(big.Int), Remaining: new(big.Int)}},
			index:  make(map[uint64]int),
		}
		t.pairs[pair] = b
	}

	t.nextID++
	ord := Order{
		ID:        t.nextID,
		Maker:     maker,
		Price:     new(big.Int).Set(price),
		Remaining: new(big.Int).Set(amount),
	}
	b.index[ord.ID] = len(b.orders)
	b.orders = append(b.orders, ord)
	return ord.ID, nil
}

// Get returns a copy of the order with the given id.
func (t *Table) Get(pair core.Pair, id uint64) (Order, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.pairs[pair]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d on pair %s", core.ErrNotFound, id, pair)
	}
	slot, ok := b.index[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d on pair %s", core.ErrNotFound, id, pair)
	}
	return b.orders[slot].clone(), nil
}

// DecrementRemaining subtracts amount from the order's remaining quantity in
// place. The order is kept even if the result is zero: removal is a separate
// decision made by the caller on the full-fill path.
func (t *Table) DecrementRemaining(pair core.Pair, id uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: decrement must be positive", core.ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, slot, err := t.locate(pair, id)
	if err != nil {
		return err
	}
	rem := b.orders[slot].Remaining
	if amount.Cmp(rem) > 0 {
		return fmt.Errorf("%w: decrement %s exceeds remaining %s", core.ErrInvalidArgument, amount, rem)
	}
	rem.Sub(rem, amount)
	return nil
}

// Remove deletes the order in O(1): the last slot is copied over the victim's
// slot, the sequence is truncated by one, and the index entries are fixed up.
func (t *Table) Remove(pair core.Pair, id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, slot, err := t.locate(pair, id)
	if err != nil {
		return err
	}
	last := len(b.orders) - 1
	if slot != last {
		moved := b.orders[last]
		b.orders[slot] = moved
		b.index[moved.ID] = slot
	}
	b.orders[last] = Order{} // release big.Int backing
	b.orders = b.orders[:last]
	delete(b.index, id)
	return nil
}

// Restore reinstates a previously removed order at a fresh slot. The
// settlement engine uses it to unwind a removal when a payout that follows
// the table mutation fails; it is not part of the normal order lifecycle.
func (t *Table) Restore(pair core.Pair, ord Order) error {
	if ord.ID == 0 || ord.Price == nil || ord.Remaining == nil {
		return fmt.Errorf("%w: restore of zero order", core.ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.pairs[pair]
	if !ok {
		return fmt.Errorf("%w: pair %s", core.ErrNotFound, pair)
	}
	if _, exists := b.index[ord.ID]; exists {
		return fmt.Errorf("%w: order %d already present", core.ErrInvalidArgument, ord.ID)
	}
	b.index[ord.ID] = len(b.orders)
	b.orders = append(b.orders, ord.clone())
	return nil
}

// ListAll returns a copy of the pair's current dense sequence verbatim,
// including the inert sentinel at slot 0. Callers that want only live orders
// must skip it (its id and remaining amount are both zero).
func (t *Table) ListAll(pair core.Pair) []Order {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.pairs[pair]
	if !ok {
		return nil
	}
	out := make([]Order, len(b.orders))
	for i, ord := range b.orders {
		out[i] = ord.clone()
	}
	return out
}

// Len returns the number of live orders on the pair (sentinel excluded).
func (t *Table) Len(pair core.Pair) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.pairs[pair]
	if !ok {
		return 0
	}
	return len(b.index)
}

// locate resolves an order id to its book and slot. Caller holds the lock.
func (t *Table) locate(pair core.Pair, id uint64) (*book, int, error) {
	b, ok := t.pairs[pair]
	if !ok {
		return nil, 0, fmt.Errorf("%w: order %d on pair %s", core.ErrNotFound, id, pair)
	}
	slot, ok := b.index[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: order %d on pair %s", core.ErrNotFound, id, pair)
	}
	return b, slot, nil
}
