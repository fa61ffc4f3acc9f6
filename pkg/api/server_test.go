package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jpark-fi/onbook/pkg/core"
	"github.com/jpark-fi/onbook/pkg/core/engine"
	"github.com/jpark-fi/onbook/pkg/core/ordertable"
	"github.com/jpark-fi/onbook/pkg/ledger"
)

var (
	alice     = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob       = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	feeSetter = common.HexToAddress("0xFE00000000000000000000000000000000000001")

	baseHex  = "0xB000000000000000000000000000000000000001"
	quoteHex = "0xC000000000000000000000000000000000000002"
)

func newTestServer(t *testing.T) (*Server, *ledger.InMemory) {
	t.Helper()
	led := ledger.NewInMemory()
	eng := engine.New(ordertable.NewTable(), led, feeSetter)
	return NewServer(eng), led
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func fundBase(led *ledger.InMemory, who common.Address, amount int64) {
	led.Mint(common.HexToAddress(baseHex), who, big.NewInt(amount))
	led.Approve(common.HexToAddress(baseHex), who, big.NewInt(amount))
}

func price(n int64) string {
	return new(big.Int).Mul(big.NewInt(n), core.PricePrecision).String()
}

func TestOpenThenListOrders(t *testing.T) {
	s, led := newTestServer(t)
	fundBase(led, alice, 1000)

	rr := do(t, s, "POST", "/api/v1/orders", OpenOrderRequest{
		Base: baseHex, Quote: quoteHex,
		Price: price(2), Amount: "100",
		Caller: alice.Hex(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open status = %d, body %s", rr.Code, rr.Body)
	}
	var opened OpenOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &opened); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if opened.OrderID == 0 {
		t.Fatal("order id = 0")
	}

	rr = do(t, s, "GET", "/api/v1/pairs/"+baseHex+"/"+quoteHex+"/orders", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var orders []OrderInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != opened.OrderID || orders[0].Remaining != "100" {
		t.Errorf("orders = %+v", orders)
	}
}

func TestOpenOrderRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		req  OpenOrderRequest
	}{
		{"bad base address", OpenOrderRequest{Base: "nope", Quote: quoteHex, Price: "1", Amount: "1", Caller: alice.Hex()}},
		{"bad amount", OpenOrderRequest{Base: baseHex, Quote: quoteHex, Price: "1", Amount: "ten", Caller: alice.Hex()}},
		{"bad caller", OpenOrderRequest{Base: baseHex, Quote: quoteHex, Price: "1", Amount: "1", Caller: "0x123"}},
		{"zero price", OpenOrderRequest{Base: baseHex, Quote: quoteHex, Price: "0", Amount: "1", Caller: alice.Hex()}},
	}
	for _, tc := range cases {
		if rr := do(t, s, "POST", "/api/v1/orders", tc.req); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rr.Code)
		}
	}
}

func TestEngineErrorMapping(t *testing.T) {
	s, led := newTestServer(t)
	fundBase(led, alice, 1000)

	rr := do(t, s, "POST", "/api/v1/orders", OpenOrderRequest{
		Base: baseHex, Quote: quoteHex,
		Price: price(1), Amount: "100",
		Caller: alice.Hex(),
	})
	var opened OpenOrderResponse
	json.Unmarshal(rr.Body.Bytes(), &opened)

	// Unknown order: 404.
	rr = do(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Base: baseHex, Quote: quoteHex, OrderID: opened.OrderID + 9, Caller: alice.Hex(),
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown order: status = %d, want 404", rr.Code)
	}

	// Non-maker cancel: 403.
	rr = do(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Base: baseHex, Quote: quoteHex, OrderID: opened.OrderID, Caller: bob.Hex(),
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-maker cancel: status = %d, want 403", rr.Code)
	}

	// Unfunded taker: 422.
	rr = do(t, s, "POST", "/api/v1/orders/execute", ExecuteOrderRequest{
		Base: baseHex, Quote: quoteHex, OrderID: opened.OrderID, Amount: "10", Caller: bob.Hex(),
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unfunded execute: status = %d, want 422", rr.Code)
	}

	// Maker cancel: 204.
	rr = do(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Base: baseHex, Quote: quoteHex, OrderID: opened.OrderID, Caller: alice.Hex(),
	})
	if rr.Code != http.StatusNoContent {
		t.Errorf("cancel: status = %d, want 204", rr.Code)
	}
}

func TestFeeEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	recipient := common.HexToAddress("0xFE00000000000000000000000000000000000002")

	rr := do(t, s, "POST", "/api/v1/fees/recipient", FeeRecipientRequest{
		Caller: bob.Hex(), Recipient: recipient.Hex(),
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("unauthorized set: status = %d, want 403", rr.Code)
	}

	rr = do(t, s, "POST", "/api/v1/fees/recipient", FeeRecipientRequest{
		Caller: feeSetter.Hex(), Recipient: recipient.Hex(),
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("set recipient: status = %d, body %s", rr.Code, rr.Body)
	}

	rr = do(t, s, "GET", "/api/v1/fees", nil)
	var fees FeeConfigResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &fees); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fees.Recipient != recipient.Hex() || fees.Setter != feeSetter.Hex() {
		t.Errorf("fees = %+v", fees)
	}
}

func TestExecuteReturnsFilled(t *testing.T) {
	s, led := newTestServer(t)
	base := common.HexToAddress(baseHex)
	quote := common.HexToAddress(quoteHex)
	led.Mint(base, alice, big.NewInt(100))
	led.Approve(base, alice, big.NewInt(100))
	led.Mint(quote, bob, big.NewInt(1000))
	led.Approve(quote, bob, big.NewInt(1000))

	rr := do(t, s, "POST", "/api/v1/orders", OpenOrderRequest{
		Base: baseHex, Quote: quoteHex,
		Price: price(2), Amount: "100",
		Caller: alice.Hex(),
	})
	var opened OpenOrderResponse
	json.Unmarshal(rr.Body.Bytes(), &opened)

	// Requesting 300 against 100 remaining fills 100.
	rr = do(t, s, "POST", "/api/v1/orders/execute", ExecuteOrderRequest{
		Base: baseHex, Quote: quoteHex,
		OrderID: opened.OrderID, Amount: "300",
		Caller: bob.Hex(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("execute status = %d, body %s", rr.Code, rr.Body)
	}
	var exec ExecuteOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &exec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if exec.Filled != "100" {
		t.Errorf("filled = %s, want 100", exec.Filled)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	if rr := do(t, s, "GET", "/health", nil); rr.Code != http.StatusOK {
		t.Errorf("health status = %d", rr.Code)
	}
}
