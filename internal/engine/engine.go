package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"exchange-core/internal/apperr"
	"exchange-core/internal/ledger"
	"exchange-core/internal/models"
	"exchange-core/internal/orderbook"
	"exchange-core/internal/orderstore"
	"exchange-core/internal/tradelog"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine composes the ledger, order store, trade log and per-instrument
// order books into the order lifecycle API. A per-symbol mutex serializes
// placement and cancellation for a given ticker while letting unrelated
// tickers proceed concurrently, instead of a single global lock.
type Engine struct {
	db      *sql.DB
	ledger  *ledger.Ledger
	orders  *orderstore.Store
	trades  *tradelog.Log
	matcher *Matcher
	log     zerolog.Logger

	booksMu sync.RWMutex
	books   map[string]*orderbook.Book

	symMu   sync.RWMutex
	symLock map[string]*sync.Mutex
}

func New(database *sql.DB, logger zerolog.Logger) *Engine {
	ldg := ledger.New()
	ord := orderstore.New()
	trd := tradelog.New()
	return &Engine{
		db:      database,
		ledger:  ldg,
		orders:  ord,
		trades:  trd,
		matcher: NewMatcher(ord, trd, ldg),
		log:     logger,
		books:   make(map[string]*orderbook.Book),
		symLock: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding ticker, creating it on first use.
func (e *Engine) lockFor(ticker string) *sync.Mutex {
	e.symMu.RLock()
	mtx, ok := e.symLock[ticker]
	e.symMu.RUnlock()
	if ok {
		return mtx
	}

	e.symMu.Lock()
	defer e.symMu.Unlock()
	if mtx, ok = e.symLock[ticker]; ok {
		return mtx
	}
	mtx = &sync.Mutex{}
	e.symLock[ticker] = mtx
	return mtx
}

// bookFor returns the in-memory book for ticker, creating it on first use.
func (e *Engine) bookFor(ticker string) *orderbook.Book {
	e.booksMu.RLock()
	book, ok := e.books[ticker]
	e.booksMu.RUnlock()
	if ok {
		return book
	}

	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if book, ok = e.books[ticker]; ok {
		return book
	}
	book = orderbook.New(ticker)
	e.books[ticker] = book
	return book
}

// PlaceOrder reserves the order's cost against the ledger (nothing for a
// market BUY, see models.Order.Reservation),
// inserts it, runs it through the matcher and settles any resulting trades,
// all inside one transaction, so a crash mid-match can never leave a
// reservation debited without the matching insert or fills committed.
func (e *Engine) PlaceOrder(ctx context.Context, userID uuid.UUID, ticker string, side models.Side, qty int64, price *int64) (*models.Order, []*models.Trade, error) {
	if qty <= 0 {
		return nil, nil, apperr.Validation("quantity must be positive")
	}
	if price != nil && *price <= 0 {
		return nil, nil, apperr.Validation("price must be positive")
	}

	mtx := e.lockFor(ticker)
	mtx.Lock()
	defer mtx.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	draft := &models.Order{Side: side, Ticker: ticker, Qty: qty, Price: price, Status: models.StatusNew}
	reserveTicker, reserveAmount := draft.Reservation()
	if reserveAmount > 0 {
		if err := e.ledger.Debit(ctx, tx, userID, reserveTicker, reserveAmount); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}

	order, err := e.orders.Insert(ctx, tx, userID, ticker, side, qty, price)
	if err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("engine: failed to insert order: %w", err)
	}

	book := e.bookFor(ticker)
	trades, err := e.matcher.Match(ctx, tx, book, order)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := e.orders.UpdateFill(ctx, tx, order.ID, order.Filled, order.Status); err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("engine: failed to persist final order state: %w", err)
	}

	if order.IsLimit() && order.Status.IsLive() {
		book.AddOrder(order)
	} else if refundTicker, refundAmount := order.Reservation(); refundAmount > 0 {
		// Order will never rest on the book: whatever reservation it still
		// holds (a market order cancelled or partially filled with no
		// further chance to match) must come back to the user.
		if err := e.ledger.Credit(ctx, tx, userID, refundTicker, refundAmount); err != nil {
			tx.Rollback()
			return nil, nil, fmt.Errorf("engine: failed to refund unused reservation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("engine: failed to commit transaction: %w", err)
	}

	e.log.Info().
		Str("order_id", order.ID.String()).
		Str("ticker", ticker).
		Str("side", string(side)).
		Str("status", string(order.Status)).
		Int("trades", len(trades)).
		Msg("order placed")

	return order, trades, nil
}

// CancelOrder transitions a live order to CANCELLED and refunds its
// outstanding reservation, re-checking status inside the transaction to
// close the race against a concurrent fill.
func (e *Engine) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := e.orders.Get(ctx, e.db, orderID)
	if err != nil {
		return nil, err
	}

	mtx := e.lockFor(order.Ticker)
	mtx.Lock()
	defer mtx.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	current, err := e.orders.Get(ctx, tx, orderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !current.Status.IsLive() {
		tx.Rollback()
		return nil, apperr.Validation(fmt.Sprintf("order cannot be cancelled, current status: %s", current.Status))
	}

	// A market order still live after placement already had its unused
	// reservation refunded by PlaceOrder, so only limit orders refund here.
	var refundTicker string
	var refundAmount int64
	if current.IsLimit() {
		e.bookFor(current.Ticker).RemoveOrder(current.ID, current.Side, current.Price)
		refundTicker, refundAmount = current.Reservation()
	}

	current.Status = models.StatusCancelled
	if refundAmount > 0 {
		if err := e.ledger.Credit(ctx, tx, current.UserID, refundTicker, refundAmount); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("engine: failed to refund reservation: %w", err)
		}
	}
	if err := e.orders.SetStatus(ctx, tx, orderID, models.StatusCancelled); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("engine: failed to set cancelled status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine: failed to commit transaction: %w", err)
	}

	e.log.Info().Str("order_id", orderID.String()).Msg("order cancelled")
	return current, nil
}

// GetOrder fetches an order by id.
func (e *Engine) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return e.orders.Get(ctx, e.db, orderID)
}

// GetUserOrders returns every order placed by userID, newest first.
func (e *Engine) GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return e.orders.ListByUser(ctx, e.db, userID)
}

// GetTrades returns the most recent trades for ticker.
func (e *Engine) GetTrades(ctx context.Context, ticker string, limit int) ([]*models.Trade, error) {
	return e.trades.Recent(ctx, e.db, ticker, limit)
}

// GetOrderBook returns the aggregated, depth-limited L2 view for ticker.
func (e *Engine) GetOrderBook(ticker string, depth int) models.L2OrderBook {
	book := e.bookFor(ticker)
	bids, asks := book.TopLevels(depth)
	bidOrders, askOrders := book.OrderCount()
	return models.L2OrderBook{BidLevels: bids, AskLevels: asks, BidOrders: bidOrders, AskOrders: askOrders}
}

// LoadOpenOrders rebuilds every in-memory book from persisted live orders.
// Call once at startup before serving traffic.
func (e *Engine) LoadOpenOrders(ctx context.Context) error {
	live, err := e.orders.ListAllLive(ctx, e.db)
	if err != nil {
		return fmt.Errorf("engine: failed to load open orders: %w", err)
	}

	loaded := 0
	for _, order := range live {
		if !order.IsLimit() {
			continue
		}
		e.bookFor(order.Ticker).AddOrder(order)
		loaded++
	}
	e.log.Info().Int("orders", loaded).Msg("recovered resting orders into order books")
	return nil
}

// DeleteUser cancels every live order owned by userID (refunding their
// reservations through the normal cancel path) and then removes the user's
// balances.
func (e *Engine) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	live, err := e.orders.ListLiveByUser(ctx, e.db, userID)
	if err != nil {
		return fmt.Errorf("engine: failed to list live orders for deletion: %w", err)
	}
	for _, order := range live {
		if _, err := e.CancelOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("engine: failed to cancel order %s during user deletion: %w", order.ID, err)
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("engine: failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err := e.ledger.Remove(ctx, tx, userID); err != nil {
		tx.Rollback()
		return fmt.Errorf("engine: failed to remove balances: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("engine: failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteInstrument cancels every live order on ticker, refunding
// reservations, before the instrument row itself can be removed.
func (e *Engine) DeleteInstrument(ctx context.Context, ticker string) error {
	live, err := e.orders.ListLiveByTicker(ctx, e.db, ticker)
	if err != nil {
		return fmt.Errorf("engine: failed to list live orders for deletion: %w", err)
	}
	for _, order := range live {
		if _, err := e.CancelOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("engine: failed to cancel order %s during instrument deletion: %w", order.ID, err)
		}
	}
	return nil
}
