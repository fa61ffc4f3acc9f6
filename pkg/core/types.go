// Package core holds the shared domain types of the settlement engine:
// assets, trading pairs, and the fixed-point constants every component
// agrees on.
package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies a fungible asset by its on-ledger contract address.
type Asset = common.Address

// NativeAsset is the sentinel asset value for the chain's native currency.
// Payments in the native asset are carried alongside the call itself
// (attached payment) instead of being pulled through an allowance.
var NativeAsset = Asset{}

// Pair is an ordered (base, quote) trading pair. Base is the asset being
// sold by the maker; quote is the asset the executor pays with.
type Pair struct {
	Base  Asset `json:"base"`
	Quote Asset `json:"quote"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Base.Hex(), p.Quote.Hex())
}

// PricePrecision is the fixed-point scale of order prices: a price of
// 2 * PricePrecision means 2 units of quote per unit of base.
var PricePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FeeDivisor sets the settlement fee at 1/500 of proceeds (20 bps),
// truncating toward zero.
const FeeDivisor = 500
