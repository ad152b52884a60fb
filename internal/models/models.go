// Package models holds the data types shared across the exchange core:
// users, instruments, balances, orders and trades.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes administrative callers from ordinary users.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNew               Status = "NEW"
	StatusPartiallyExecuted Status = "PARTIALLY_EXECUTED"
	StatusExecuted          Status = "EXECUTED"
	StatusCancelled         Status = "CANCELLED"
)

// IsLive reports whether an order in this status can still rest on the book
// or accept further fills.
func (s Status) IsLive() bool {
	return s == StatusNew || s == StatusPartiallyExecuted
}

// User is an exchange account.
type User struct {
	ID     uuid.UUID
	Name   string
	Role   Role
	APIKey string
}

// Instrument is a tradable ticker. USD is the distinguished quote currency.
type Instrument struct {
	Ticker string
	Name   string
}

// Balance is the free (unreserved) amount of a ticker held by a user.
type Balance struct {
	UserID uuid.UUID
	Ticker string
	Amount int64
}

// Order is the tagged envelope for both limit and market orders. Price
// being nil is the discriminator for a market order rather than a separate
// OrderType field.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Ticker    string
	Side      Side
	Qty       int64
	Price     *int64
	Status    Status
	Filled    int64
	Timestamp time.Time

	// Sequence is a monotonically increasing tiebreak assigned at insert
	// time, used to enforce deterministic time priority among orders
	// resting at the same price.
	Sequence uint64
}

// IsLimit reports whether the order carries a limit price.
func (o *Order) IsLimit() bool { return o.Price != nil }

// Remaining is the unfilled quantity.
func (o *Order) Remaining() int64 { return o.Qty - o.Filled }

// Reservation computes the outstanding reservation this order still holds
// against the ledger, as a pure function of (side, price, qty, filled).
// Market BUY orders never reserve, since their true cost is unknown until
// they match, so this returns zero for them. Callers compute this once, at
// the point they are about to act on it (initial reserve, or refund on
// cancel/no-fill) — it does not consult Status, so it must not be called
// again after the corresponding ledger entry has already been posted.
func (o *Order) Reservation() (ticker string, amount int64) {
	remaining := o.Remaining()
	if o.Side == Buy {
		if o.Price == nil {
			return "USD", 0
		}
		return "USD", remaining * (*o.Price)
	}
	return o.Ticker, remaining
}

// Trade is an append-only record of a single execution.
type Trade struct {
	ID        uuid.UUID
	Ticker    string
	Amount    int64
	Price     int64
	Timestamp time.Time
}

// Level is one aggregated price point in an L2 order book view.
type Level struct {
	Price int64
	Qty   int64
}

// L2OrderBook is the read-only aggregated bid/ask view of a book, plus the
// raw resting-order counts on each side (independent of depth truncation).
type L2OrderBook struct {
	BidLevels []Level
	AskLevels []Level
	BidOrders int
	AskOrders int
}
