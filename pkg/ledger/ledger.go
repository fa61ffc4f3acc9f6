// Package ledger defines the asset-transfer collaborator the settlement
// engine moves funds through, plus an in-memory implementation used by the
// daemon and the test suite.
package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jpark-fi/onbook/pkg/core"
)

// Ledger moves quantities of fungible assets between accounts and engine
// custody. Both methods are fail-fast: they either complete in full or
// return an error wrapping core.ErrTransferFailed with nothing moved.
//
// For core.NativeAsset the implementation must not require a prior
// allowance: the engine has already checked the exact attached payment, and
// TransferInto/TransferOut model the attached debit and the direct credit.
type Ledger interface {
	// TransferInto moves amount of asset from from's available balance into
	// engine custody.
	TransferInto(asset core.Asset, from common.Address, amount *big.Int) error
	// TransferOut moves amount of asset from engine custody to to.
	TransferOut(asset core.Asset, to common.Address, amount *big.Int) error
}

// InMemory is a process-local Ledger with ERC-20-style balances and
// allowances per asset and a custody tally per asset. It exists so the
// engine can run without a chain behind it; Mint and Approve stand in for
// token issuance and the caller's pre-authorization.
type InMemory struct {
	mu         sync.RWMutex
	balances   map[core.Asset]map[common.Address]*big.Int
	allowances map[core.Asset]map[common.Address]*big.Int // owner -> amount approved to the engine
	custody    map[core.Asset]*big.Int
}

func NewInMemory() *InMemory {
	return &InMemory{
		balances:   make(map[core.Asset]map[common.Address]*big.Int),
		allowances: make(map[core.Asset]map[common.Address]*big.Int),
		custody:    make(map[core.Asset]*big.Int),
	}
}

// Mint credits amount of asset to an account.
func (l *InMemory) Mint(asset core.Asset, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(asset, to)
	bal.Add(bal, amount)
}

// Approve sets (not adds) the amount of asset the engine may pull from
// owner. The native asset needs no approval and Approve ignores it.
func (l *InMemory) Approve(asset core.Asset, owner common.Address, amount *big.Int) {
	if asset == core.NativeAsset {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.allowances[asset]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.allowances[asset] = m
	}
	m[owner] = new(big.Int).Set(amount)
}

func (l *InMemory) TransferInto(asset core.Asset, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", core.ErrTransferFailed)
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balance(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s short of %s", core.ErrTransferFailed, bal, amount)
	}
	if asset != core.NativeAsset {
		allow := l.allowances[asset][from]
		if allow == nil || allow.Cmp(amount) < 0 {
			return fmt.Errorf("%w: allowance short of %s", core.ErrTransferFailed, amount)
		}
		allow.Sub(allow, amount)
	}
	bal.Sub(bal, amount)
	cust := l.custodyOf(asset)
	cust.Add(cust, amount)
	return nil
}

func (l *InMemory) TransferOut(asset core.Asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", core.ErrTransferFailed)
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cust := l.custodyOf(asset)
	if cust.Cmp(amount) < 0 {
		return fmt.Errorf("%w: custody %s short of %s", core.ErrTransferFailed, cust, amount)
	}
	cust.Sub(cust, amount)
	bal := l.balance(asset, to)
	bal.Add(bal, amount)
	return nil
}

// BalanceOf returns the account's available balance of asset.
func (l *InMemory) BalanceOf(asset core.Asset, who common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if m, ok := l.balances[asset]; ok {
		if b, ok := m[who]; ok {
			return new(big.Int).Set(b)
		}
	}
	return new(big.Int)
}

// Allowance returns what the engine may still pull from owner.
func (l *InMemory) Allowance(asset core.Asset, owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if m, ok := l.allowances[asset]; ok {
		if a, ok := m[owner]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Custody returns the engine-held balance of asset.
func (l *InMemory) Custody(asset core.Asset) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if c, ok := l.custody[asset]; ok {
		return new(big.Int).Set(c)
	}
	return new(big.Int)
}

// balance returns the mutable balance cell for (asset, who), creating it
// lazily. Caller holds the write lock.
func (l *InMemory) balance(asset core.Asset, who common.Address) *big.Int {
	m, ok := l.balances[asset]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.balances[asset] = m
	}
	b, ok := m[who]
	if !ok {
		b = new(big.Int)
		m[who] = b
	}
	return b
}

func (l *InMemory) custodyOf(asset core.Asset) *big.Int {
	c, ok := l.custody[asset]
	if !ok {
		c = new(big.Int)
		l.custody[asset] = c
	}
	return c
}

var _ Ledger = (*InMemory)(nil)
