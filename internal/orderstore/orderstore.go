// Package orderstore persists order records with status and fill progress,
// queryable by instrument, user or status.
package orderstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"

	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Store operates the orders table.
type Store struct{}

func New() *Store { return &Store{} }

// Insert assigns a uuid, timestamp and status=NEW, filled=0, persists the
// row, and returns the fully populated order (including the DB-assigned
// Sequence used for deterministic time priority).
func (s *Store) Insert(ctx context.Context, q Querier, userID uuid.UUID, ticker string, side models.Side, qty int64, price *int64) (*models.Order, error) {
	order := &models.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Side:      side,
		Qty:       qty,
		Price:     price,
		Status:    models.StatusNew,
		Filled:    0,
		Timestamp: time.Now().UTC(),
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, ticker, direction, qty, price, status, filled, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID.String(), order.UserID.String(), order.Ticker, string(order.Side),
		order.Qty, order.Price, string(order.Status), order.Filled, order.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("orderstore: insert failed: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("orderstore: failed to read assigned sequence: %w", err)
	}
	order.Sequence = uint64(seq)
	return order, nil
}

const selectColumns = `id, sequence, user_id, ticker, direction, qty, price, status, filled, timestamp`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var o models.Order
	var id, userID string
	var side, status string
	var price sql.NullInt64

	if err := row.Scan(&id, &o.Sequence, &userID, &o.Ticker, &side, &o.Qty, &price, &status, &o.Filled, &o.Timestamp); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("orderstore: invalid order id %q: %w", id, err)
	}
	parsedUser, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("orderstore: invalid user id %q: %w", userID, err)
	}

	o.ID = parsedID
	o.UserID = parsedUser
	o.Side = models.Side(side)
	o.Status = models.Status(status)
	if price.Valid {
		v := price.Int64
		o.Price = &v
	}
	return &o, nil
}

// Get fetches an order by id, or apperr.KindNotFound if absent.
func (s *Store) Get(ctx context.Context, q Querier, id uuid.UUID) (*models.Order, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM orders WHERE id = ?`, id.String())
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("orderstore: get failed: %w", err)
	}
	return order, nil
}

// ListByUser returns every order (of any status) owned by user, newest first.
func (s *Store) ListByUser(ctx context.Context, q Querier, userID uuid.UUID) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM orders WHERE user_id = ? ORDER BY timestamp DESC, sequence DESC
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("orderstore: list_by_user failed: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListResting returns live limit orders for ticker (price present, status
// in {NEW, PARTIALLY_EXECUTED}), ordered by arrival order; callers group
// these by price themselves to rebuild priority within a level.
func (s *Store) ListResting(ctx context.Context, q Querier, ticker string) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM orders
		WHERE ticker = ? AND price IS NOT NULL AND status IN (?, ?)
		ORDER BY sequence ASC
	`, ticker, string(models.StatusNew), string(models.StatusPartiallyExecuted))
	if err != nil {
		return nil, fmt.Errorf("orderstore: list_resting failed: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListLiveByUser returns a user's orders that are still live (NEW or
// PARTIALLY_EXECUTED), used by cascading user/instrument deletion.
func (s *Store) ListLiveByUser(ctx context.Context, q Querier, userID uuid.UUID) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM orders
		WHERE user_id = ? AND status IN (?, ?)
		ORDER BY sequence ASC
	`, userID.String(), string(models.StatusNew), string(models.StatusPartiallyExecuted))
	if err != nil {
		return nil, fmt.Errorf("orderstore: list_live_by_user failed: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListLiveByTicker returns every live order for ticker regardless of side or
// price, used by cascading instrument deletion.
func (s *Store) ListLiveByTicker(ctx context.Context, q Querier, ticker string) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM orders
		WHERE ticker = ? AND status IN (?, ?)
		ORDER BY sequence ASC
	`, ticker, string(models.StatusNew), string(models.StatusPartiallyExecuted))
	if err != nil {
		return nil, fmt.Errorf("orderstore: list_live_by_ticker failed: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListAllLive returns every live order across all tickers, ordered by
// sequence so callers can rebuild FIFO priority within each price level.
// Used by startup recovery.
func (s *Store) ListAllLive(ctx context.Context, q Querier) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM orders
		WHERE status IN (?, ?)
		ORDER BY sequence ASC
	`, string(models.StatusNew), string(models.StatusPartiallyExecuted))
	if err != nil {
		return nil, fmt.Errorf("orderstore: list_all_live failed: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]*models.Order, error) {
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("orderstore: scan failed: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orderstore: row iteration failed: %w", err)
	}
	return out, nil
}

// UpdateFill persists a new filled quantity and status for an order.
func (s *Store) UpdateFill(ctx context.Context, q Querier, id uuid.UUID, newFilled int64, newStatus models.Status) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE orders SET filled = ?, status = ? WHERE id = ?
	`, newFilled, string(newStatus), id.String()); err != nil {
		return fmt.Errorf("orderstore: update_fill failed: %w", err)
	}
	return nil
}

// SetStatus updates only the status column, used by cancel.
func (s *Store) SetStatus(ctx context.Context, q Querier, id uuid.UUID, status models.Status) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE orders SET status = ? WHERE id = ?
	`, string(status), id.String()); err != nil {
		return fmt.Errorf("orderstore: set_status failed: %w", err)
	}
	return nil
}
