// Package api exposes the settlement engine over REST plus a WebSocket
// event feed. Authentication is out of scope for the engine: the caller
// field of each request is trusted as an already-authenticated principal.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/jpark-fi/onbook/pkg/core"
	"github.com/jpark-fi/onbook/pkg/core/engine"
)

// Server handles REST requests and WebSocket connections.
type Server struct {
	engine *engine.Engine
	router *mux.Router
	hub    *Hub
}

// NewServer creates an API server over the given engine.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleOpenOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/execute", s.handleExecuteOrder).Methods("POST")
	api.HandleFunc("/pairs/{base}/{quote}/orders", s.handlePairOrders).Methods("GET")
	api.HandleFunc("/fees", s.handleGetFees).Methods("GET")
	api.HandleFunc("/fees/recipient", s.handleSetFeeRecipient).Methods("POST")
	api.HandleFunc("/fees/setter", s.handleSetFeeSetter).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// EventSink returns a sink that pushes every emitted engine event to
// WebSocket clients subscribed to the "events" channel.
func (s *Server) EventSink() engine.Sink { return wsSink{hub: s.hub} }

// Start runs the WebSocket hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleOpenOrder(w http.ResponseWriter, r *http.Request) {
	var req OpenOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	pair, err := parsePair(req.Base, req.Quote)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	attached, err := parseOptionalAmount("attached", req.Attached)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.engine.OpenOrder(pair, price, amount, caller, attached)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OpenOrderResponse{OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	pair, err := parsePair(req.Base, req.Quote)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.CancelOrder(pair, req.OrderID, caller); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	var req ExecuteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	pair, err := parsePair(req.Base, req.Quote)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	attached, err := parseOptionalAmount("attached", req.Attached)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filled, err := s.engine.ExecuteOrder(pair, req.OrderID, caller, amount, attached)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExecuteOrderResponse{OrderID: req.OrderID, Filled: filled.String()})
}

func (s *Server) handlePairOrders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pair, err := parsePair(vars["base"], vars["quote"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	orders := s.engine.PairOrders(pair)
	out := make([]OrderInfo, len(orders))
	for i, ord := range orders {
		out[i] = OrderInfo{
			ID:        ord.ID,
			Maker:     ord.Maker.Hex(),
			Price:     ord.Price.String(),
			Remaining: ord.Remaining.String(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FeeConfigResponse{
		Recipient: s.engine.FeeRecipient().Hex(),
		Setter:    s.engine.FeeSetter().Hex(),
	})
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req FeeRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := parseAddr("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetFeeRecipient(caller, recipient); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFeeSetter(w http.ResponseWriter, r *http.Request) {
	var req FeeSetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	setter, err := parseAddr("setter", req.Setter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetFeeSetter(caller, setter); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func parsePair(base, quote string) (core.Pair, error) {
	b, err := parseAddr("base", base)
	if err != nil {
		return core.Pair{}, err
	}
	q, err := parseAddr("quote", quote)
	if err != nil {
		return core.Pair{}, err
	}
	return core.Pair{Base: b, Quote: q}, nil
}

func parseAddr(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: not a hex address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: not a base-10 integer: %q", field, s)
	}
	return v, nil
}

// parseOptionalAmount treats an empty string as no attached payment.
func parseOptionalAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return parseAmount(field, s)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, core.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, core.ErrInvalidArgument), errors.Is(err, core.ErrIncorrectPayment):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, core.ErrTransferFailed):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, core.ErrReentrant):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}
