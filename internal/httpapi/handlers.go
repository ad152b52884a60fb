package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"
	"exchange-core/internal/validation"

	"github.com/google/uuid"
)

type userResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	APIKey string    `json:"api_key"`
}

func userToResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Role: string(u.Role), APIKey: u.APIKey}
}

type registerRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON body"))
		return
	}
	if err := validation.UserName(req.Name); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.users.Create(r.Context(), s.db, req.Name)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to register user")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(user))
}

type instrumentResponse struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.instruments.List(r.Context(), s.db)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list instruments")
		writeError(w, err)
		return
	}
	out := make([]instrumentResponse, len(instruments))
	for i, inst := range instruments {
		out[i] = instrumentResponse{Ticker: inst.Ticker, Name: inst.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

type levelResponse struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

type orderBookResponse struct {
	BidLevels []levelResponse `json:"bid_levels"`
	AskLevels []levelResponse `json:"ask_levels"`
	BidOrders int             `json:"bid_orders"`
	AskOrders int             `json:"ask_orders"`
}

func levelsToResponse(levels []models.Level) []levelResponse {
	out := make([]levelResponse, len(levels))
	for i, l := range levels {
		out[i] = levelResponse{Price: l.Price, Qty: l.Qty}
	}
	return out
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	limit := queryInt(r, "limit", 10, 1, 25)

	book := s.engine.GetOrderBook(ticker, limit)
	writeJSON(w, http.StatusOK, orderBookResponse{
		BidLevels: levelsToResponse(book.BidLevels),
		AskLevels: levelsToResponse(book.AskLevels),
		BidOrders: book.BidOrders,
		AskOrders: book.AskOrders,
	})
}

type transactionResponse struct {
	Ticker    string `json:"ticker"`
	Amount    int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	limit := queryInt(r, "limit", 10, 1, 100)

	trades, err := s.engine.GetTrades(r.Context(), ticker, limit)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("failed to fetch transactions")
		writeError(w, err)
		return
	}
	out := make([]transactionResponse, len(trades))
	for i, t := range trades {
		out[i] = transactionResponse{Ticker: t.Ticker, Amount: t.Amount, Price: t.Price, Timestamp: t.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00")}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	snap, err := s.ledger.Snapshot(r.Context(), s.db, user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch balance")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type orderBody struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

type orderResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp string    `json:"timestamp"`
	Body      orderBody `json:"body"`
	Filled    int64     `json:"filled"`
}

func orderToResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Status:    string(o.Status),
		UserID:    o.UserID,
		Timestamp: o.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		Body: orderBody{
			Direction: string(o.Side),
			Ticker:    o.Ticker,
			Qty:       o.Qty,
			Price:     o.Price,
		},
		Filled: o.Filled,
	}
}

type createOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var body orderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validation("invalid JSON body"))
		return
	}

	side := models.Side(body.Direction)
	if err := validation.Side(side); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.Ticker(body.Ticker); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.PositiveAmount(body.Qty); err != nil {
		writeError(w, err)
		return
	}
	if body.Price != nil {
		if err := validation.PositiveAmount(*body.Price); err != nil {
			writeError(w, err)
			return
		}
	}

	if _, err := s.instruments.Get(r.Context(), s.db, body.Ticker); err != nil {
		writeError(w, err)
		return
	}

	order, _, err := s.engine.PlaceOrder(r.Context(), user.ID, body.Ticker, side, body.Qty, body.Price)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", body.Ticker).Msg("failed to place order")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createOrderResponse{Success: true, OrderID: order.ID})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	orders, err := s.engine.GetUserOrders(r.Context(), user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list orders")
		writeError(w, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = orderToResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, apperr.NotFound("order not found"))
		return
	}

	order, err := s.engine.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if order.UserID != user.ID {
		writeError(w, apperr.NotFound("order not found"))
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, apperr.NotFound("order not found"))
		return
	}

	order, err := s.engine.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if order.UserID != user.ID {
		writeError(w, apperr.NotFound("order not found"))
		return
	}

	if _, err := s.engine.CancelOrder(r.Context(), orderID); err != nil {
		s.log.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to cancel order")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, apperr.NotFound("user not found"))
		return
	}

	target, err := s.users.GetByID(r.Context(), s.db, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.DeleteUser(r.Context(), userID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to cancel live orders for deletion")
		writeError(w, err)
		return
	}
	if err := s.users.Delete(r.Context(), s.db, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(target))
}

type addInstrumentRequest struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

func (s *Server) handleAddInstrument(w http.ResponseWriter, r *http.Request) {
	var req addInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON body"))
		return
	}
	if err := validation.Ticker(req.Ticker); err != nil {
		writeError(w, err)
		return
	}

	if err := s.instruments.Add(r.Context(), s.db, req.Ticker, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")

	if err := s.engine.DeleteInstrument(r.Context(), ticker); err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("failed to cancel live orders for deletion")
		writeError(w, err)
		return
	}
	if err := s.instruments.Delete(r.Context(), s.db, ticker); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type balanceMutationRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req balanceMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON body"))
		return
	}
	if err := validation.PositiveAmount(req.Amount); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.users.GetByID(r.Context(), s.db, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.instruments.EnsureInstrument(r.Context(), s.db, req.Ticker); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ledger.Credit(r.Context(), s.db, req.UserID, req.Ticker, req.Amount); err != nil {
		s.log.Error().Err(err).Msg("failed to deposit")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req balanceMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON body"))
		return
	}
	if err := validation.PositiveAmount(req.Amount); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.users.GetByID(r.Context(), s.db, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ledger.Debit(r.Context(), s.db, req.UserID, req.Ticker, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return def
	}
	if v > max {
		return max
	}
	return v
}
