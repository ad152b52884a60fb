// Package ledger implements the per-(user,ticker) integer balance store:
// credit, debit and snapshot over free balances. Reservation is modelled by
// debiting free balance at order entry; there is no separate "reserved"
// column.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"

	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB and *sql.Tx, letting callers compose
// ledger operations inside a transaction they own so reservation, order
// insert, matching and settlement commit atomically together.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Ledger operates the balances table.
type Ledger struct{}

func New() *Ledger { return &Ledger{} }

// Credit increases the user's balance for ticker, creating the row if
// absent. It has no balance check; it fails only for a non-positive amount
// or a database error.
func (l *Ledger) Credit(ctx context.Context, q Querier, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: credit amount must be positive, got %d", amount)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO balances (user_id, ticker, amount) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE amount = amount + VALUES(amount)
	`, userID.String(), ticker, amount)
	if err != nil {
		return fmt.Errorf("ledger: credit failed: %w", err)
	}
	return nil
}

// Debit decreases the user's balance for ticker. Used for both withdrawals
// and order-entry reservations. Fails with apperr.KindInsufficientFunds
// when the balance is absent or smaller than amount.
func (l *Ledger) Debit(ctx context.Context, q Querier, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: debit amount must be positive, got %d", amount)
	}

	var current int64
	err := q.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE user_id = ? AND ticker = ? FOR UPDATE
	`, userID.String(), ticker).Scan(&current)
	if err == sql.ErrNoRows {
		return apperr.InsufficientFunds(fmt.Sprintf("no %s balance for user", ticker))
	}
	if err != nil {
		return fmt.Errorf("ledger: debit lookup failed: %w", err)
	}
	if current < amount {
		return apperr.InsufficientFunds(fmt.Sprintf("insufficient %s balance: have %d, need %d", ticker, current, amount))
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE balances SET amount = amount - ? WHERE user_id = ? AND ticker = ?
	`, amount, userID.String(), ticker); err != nil {
		return fmt.Errorf("ledger: debit failed: %w", err)
	}
	return nil
}

// Snapshot returns the full set of balances held by user.
func (l *Ledger) Snapshot(ctx context.Context, q Querier, userID uuid.UUID) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT ticker, amount FROM balances WHERE user_id = ?`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("ledger: snapshot query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.Ticker, &b.Amount); err != nil {
			return nil, fmt.Errorf("ledger: snapshot scan failed: %w", err)
		}
		out[b.Ticker] = b.Amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: snapshot iteration failed: %w", err)
	}
	return out, nil
}

// Remove deletes all balance rows for a user, used by cascading user
// deletion once every active order has already been cancelled (and thus
// refunded) through the normal path.
func (l *Ledger) Remove(ctx context.Context, q Querier, userID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM balances WHERE user_id = ?`, userID.String()); err != nil {
		return fmt.Errorf("ledger: remove failed: %w", err)
	}
	return nil
}
