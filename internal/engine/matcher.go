package engine

import (
	"context"
	"database/sql"
	"fmt"

	"exchange-core/internal/ledger"
	"exchange-core/internal/models"
	"exchange-core/internal/orderbook"
	"exchange-core/internal/orderstore"
	"exchange-core/internal/tradelog"

	"github.com/google/uuid"
)

// Matcher implements the price-time priority fill loop. It mutates
// incoming and every resting counter-order it touches in place, and
// persists counter-order fills, trade-log entries and ledger settlement as
// it goes — all inside the caller's transaction, so reservation, order
// insert, matching and settlement commit atomically together.
type Matcher struct {
	orders *orderstore.Store
	trades *tradelog.Log
	ledger *ledger.Ledger
}

func NewMatcher(orders *orderstore.Store, trades *tradelog.Log, ldg *ledger.Ledger) *Matcher {
	return &Matcher{orders: orders, trades: trades, ledger: ldg}
}

// Match walks the opposing side of ob in priority order, generating fills
// until incoming is fully filled or no eligible counter-order remains, then
// sets incoming's terminal Status per finalizeIncoming.
func (m *Matcher) Match(ctx context.Context, tx *sql.Tx, ob *orderbook.Book, incoming *models.Order) ([]*models.Trade, error) {
	var trades []*models.Trade

	for incoming.Remaining() > 0 {
		var resting *models.Order
		if incoming.Side == models.Buy {
			resting = ob.GetBestAsk()
		} else {
			resting = ob.GetBestBid()
		}
		if resting == nil || !eligible(incoming, resting) {
			break
		}

		matchQty := min64(incoming.Remaining(), resting.Remaining())
		tradePrice := *resting.Price // execution always happens at the resting order's price

		resting.Filled += matchQty
		if resting.Filled == resting.Qty {
			resting.Status = models.StatusExecuted
		} else {
			resting.Status = models.StatusPartiallyExecuted
		}
		if err := m.orders.UpdateFill(ctx, tx, resting.ID, resting.Filled, resting.Status); err != nil {
			return nil, fmt.Errorf("matcher: failed to update counter-order %s: %w", resting.ID, err)
		}
		if resting.Status == models.StatusExecuted {
			ob.RemoveOrder(resting.ID, resting.Side, resting.Price)
		}

		buyerID, sellerID := counterparties(incoming, resting)
		if err := m.ledger.Credit(ctx, tx, buyerID, incoming.Ticker, matchQty); err != nil {
			return nil, fmt.Errorf("matcher: failed to credit buyer: %w", err)
		}
		if err := m.ledger.Credit(ctx, tx, sellerID, "USD", matchQty*tradePrice); err != nil {
			return nil, fmt.Errorf("matcher: failed to credit seller: %w", err)
		}

		trade, err := m.trades.Append(ctx, tx, incoming.Ticker, matchQty, tradePrice)
		if err != nil {
			return nil, fmt.Errorf("matcher: failed to append trade: %w", err)
		}
		trades = append(trades, trade)

		incoming.Filled += matchQty
	}

	finalizeIncoming(incoming)
	return trades, nil
}

// eligible reports whether resting can be matched against incoming. Side and
// ticker compatibility are already guaranteed by which book side was
// queried; what remains is the limit price test (a market incoming order
// matches any live resting order).
func eligible(incoming, resting *models.Order) bool {
	if !resting.Status.IsLive() {
		return false
	}
	if incoming.Price == nil {
		return true
	}
	if incoming.Side == models.Buy {
		return *incoming.Price >= *resting.Price
	}
	return *incoming.Price <= *resting.Price
}

func counterparties(incoming, resting *models.Order) (buyerID, sellerID uuid.UUID) {
	if incoming.Side == models.Buy {
		return incoming.UserID, resting.UserID
	}
	return resting.UserID, incoming.UserID
}

// finalizeIncoming sets the terminal Status of the incoming order once the
// fill loop stops. Limit orders with no fills stay NEW and go on to rest on
// the book; market orders that matched nothing become CANCELLED — the
// caller is responsible for refunding that reservation.
func finalizeIncoming(incoming *models.Order) {
	switch {
	case incoming.Remaining() == 0:
		incoming.Status = models.StatusExecuted
	case incoming.IsLimit():
		if incoming.Filled > 0 {
			incoming.Status = models.StatusPartiallyExecuted
		}
	case incoming.Filled == 0:
		incoming.Status = models.StatusCancelled
	default:
		incoming.Status = models.StatusPartiallyExecuted
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
