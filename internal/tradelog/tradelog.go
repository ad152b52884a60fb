// Package tradelog is the append-only record of executed trades: rows are
// inserted once and never mutated.
package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"exchange-core/internal/models"

	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Log operates the transactions table.
type Log struct{}

func New() *Log { return &Log{} }

// Append records a trade with a server-assigned timestamp.
func (l *Log) Append(ctx context.Context, q Querier, ticker string, qty, price int64) (*models.Trade, error) {
	trade := &models.Trade{
		ID:        uuid.New(),
		Ticker:    ticker,
		Amount:    qty,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, ticker, amount, price, timestamp) VALUES (?, ?, ?, ?, ?)
	`, trade.ID.String(), trade.Ticker, trade.Amount, trade.Price, trade.Timestamp); err != nil {
		return nil, fmt.Errorf("tradelog: append failed: %w", err)
	}
	return trade, nil
}

// Recent returns the last `limit` trades for ticker, newest first.
func (l *Log) Recent(ctx context.Context, q Querier, ticker string, limit int) ([]*models.Trade, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, ticker, amount, price, timestamp FROM transactions
		WHERE ticker = ? ORDER BY timestamp DESC, id DESC LIMIT ?
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("tradelog: recent query failed: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		var id string
		if err := rows.Scan(&id, &t.Ticker, &t.Amount, &t.Price, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("tradelog: scan failed: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("tradelog: invalid trade id %q: %w", id, err)
		}
		t.ID = parsed
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tradelog: row iteration failed: %w", err)
	}
	return out, nil
}
