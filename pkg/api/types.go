package api

// Request and response types for the REST endpoints and WebSocket messages.
// Addresses travel as 0x-prefixed hex; amounts and prices as base-10 strings
// so 18-decimal fixed-point values survive JSON intact.

// ==============================
// REST Request Types
// ==============================

// OpenOrderRequest posts a new resting order. Caller is the authenticated
// principal escrowing the base asset; Attached carries the native payment
// when the base asset is the native sentinel.
type OpenOrderRequest struct {
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Price    string `json:"price"`
	Amount   string `json:"amount"`
	Caller   string `json:"caller"`
	Attached string `json:"attached,omitempty"`
}

// CancelOrderRequest cancels a resting order; only its maker may.
type CancelOrderRequest struct {
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	OrderID uint64 `json:"orderId"`
	Caller  string `json:"caller"`
}

// ExecuteOrderRequest settles up to Amount base units against an order.
type ExecuteOrderRequest struct {
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	OrderID  uint64 `json:"orderId"`
	Amount   string `json:"amount"`
	Caller   string `json:"caller"`
	Attached string `json:"attached,omitempty"`
}

// FeeRecipientRequest sets or clears (zero address) the fee recipient.
type FeeRecipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

// FeeSetterRequest hands fee-setting authority to a new principal.
type FeeSetterRequest struct {
	Caller string `json:"caller"`
	Setter string `json:"setter"`
}

// ==============================
// REST Response Types
// ==============================

// OrderInfo is one live resting order.
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Maker     string `json:"maker"`
	Price     string `json:"price"`
	Remaining string `json:"remaining"`
}

type OpenOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

type ExecuteOrderResponse struct {
	OrderID uint64 `json:"orderId"`
	Filled  string `json:"filled"`
}

type FeeConfigResponse struct {
	Recipient string `json:"recipient"`
	Setter    string `json:"setter"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage wraps every message pushed to WebSocket clients.
type WSMessage struct {
	Type string      `json:"type"` // event name: "OpenOrder", "CancelOrder", "ExecuteOrder"
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is the only inbound client message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
