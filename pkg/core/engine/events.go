package engine

import (
	"math/big"

	"go.uber.org/zap"

	"github.com/jpark-fi/onbook/pkg/core"
)

// Event is a domain event emitted after a successful mutating operation.
// Events are the engine's only externally observable history; there is no
// other audit trail.
type Event interface {
	Name() string
}

// OpenOrderEvent records a newly opened order.
type OpenOrderEvent struct {
	Pair   core.Pair `json:"pair"`
	Price  *big.Int  `json:"price"`
	Amount *big.Int  `json:"amount"`
}

func (OpenOrderEvent) Name() string { return "OpenOrder" }

// CancelOrderEvent records a maker cancellation.
type CancelOrderEvent struct {
	Pair    core.Pair `json:"pair"`
	OrderID uint64    `json:"orderId"`
}

func (CancelOrderEvent) Name() string { return "CancelOrder" }

// ExecuteOrderEvent records a settlement against a resting order.
//
// Amount is the caller-requested amount, which exceeds the actual fill when
// the request was larger than the order's remaining quantity. Existing
// consumers depend on this, so it stays; anyone needing the actual fill must
// compare remaining quantities across events.
type ExecuteOrderEvent struct {
	Pair    core.Pair `json:"pair"`
	OrderID uint64    `json:"orderId"`
	Amount  *big.Int  `json:"amount"`
}

func (ExecuteOrderEvent) Name() string { return "ExecuteOrder" }

// Sink receives emitted events. Implementations must not call back into the
// engine's mutating operations; the reentrancy guard is still held while the
// sink runs and such calls fail with core.ErrReentrant.
type Sink interface {
	Emit(ev Event)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (s MultiSink) Emit(ev Event) {
	for _, sink := range s {
		sink.Emit(ev)
	}
}

// LogSink writes events to a structured log.
type LogSink struct {
	Log *zap.SugaredLogger
}

func (s LogSink) Emit(ev Event) {
	switch e := ev.(type) {
	case OpenOrderEvent:
		s.Log.Infow("event_open_order", "pair", e.Pair.String(), "price", e.Price, "amount", e.Amount)
	case CancelOrderEvent:
		s.Log.Infow("event_cancel_order", "pair", e.Pair.String(), "order_id", e.OrderID)
	case ExecuteOrderEvent:
		s.Log.Infow("event_execute_order", "pair", e.Pair.String(), "order_id", e.OrderID, "amount", e.Amount)
	default:
		s.Log.Infow("event", "name", ev.Name())
	}
}
