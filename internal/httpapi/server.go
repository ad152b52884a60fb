// Package httpapi is the thin HTTP transport over the exchange core: request
// decoding, auth, validation and response shaping. It is deliberately kept
// separate from ledger/orderstore/tradelog/orderbook/engine, which never
// import it and know nothing about HTTP or API keys — only uuid.UUID user
// identities.
package httpapi

import (
	"database/sql"
	"net/http"

	"exchange-core/internal/engine"
	"exchange-core/internal/instrumentstore"
	"exchange-core/internal/ledger"
	"exchange-core/internal/userstore"

	"github.com/rs/zerolog"
)

// Server wires the core engine and supporting stores to HTTP handlers,
// mirroring the way cmd/server's original Server struct held db+engine.
type Server struct {
	db          *sql.DB
	engine      *engine.Engine
	users       *userstore.Store
	instruments *instrumentstore.Store
	ledger      *ledger.Ledger
	log         zerolog.Logger
}

func New(database *sql.DB, eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{
		db:          database,
		engine:      eng,
		users:       userstore.New(),
		instruments: instrumentstore.New(),
		ledger:      ledger.New(),
		log:         logger,
	}
}

// Routes builds the full HTTP surface of the exchange under the /api/v1
// prefix.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/public/register", s.handleRegister)
	mux.HandleFunc("GET /api/v1/public/instrument", s.handleListInstruments)
	mux.HandleFunc("GET /api/v1/public/orderbook/{ticker}", s.handleOrderBook)
	mux.HandleFunc("GET /api/v1/public/transactions/{ticker}", s.handleTransactions)

	mux.Handle("GET /api/v1/balance", s.requireAuth(http.HandlerFunc(s.handleGetBalance)))

	mux.Handle("POST /api/v1/order", s.requireAuth(http.HandlerFunc(s.handleCreateOrder)))
	mux.Handle("GET /api/v1/order", s.requireAuth(http.HandlerFunc(s.handleListOrders)))
	mux.Handle("GET /api/v1/order/{id}", s.requireAuth(http.HandlerFunc(s.handleGetOrder)))
	mux.Handle("DELETE /api/v1/order/{id}", s.requireAuth(http.HandlerFunc(s.handleCancelOrder)))

	mux.Handle("DELETE /api/v1/admin/user/{id}", s.requireAdmin(http.HandlerFunc(s.handleDeleteUser)))
	mux.Handle("POST /api/v1/admin/instrument", s.requireAdmin(http.HandlerFunc(s.handleAddInstrument)))
	mux.Handle("DELETE /api/v1/admin/instrument/{ticker}", s.requireAdmin(http.HandlerFunc(s.handleDeleteInstrument)))
	mux.Handle("POST /api/v1/admin/balance/deposit", s.requireAdmin(http.HandlerFunc(s.handleDeposit)))
	mux.Handle("POST /api/v1/admin/balance/withdraw", s.requireAdmin(http.HandlerFunc(s.handleWithdraw)))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "database connection failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
