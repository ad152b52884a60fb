// Package instrumentstore manages the tradable instrument catalogue.
package instrumentstore

import (
	"context"
	"database/sql"
	"fmt"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// currencies is the fixed set of fiat tickers EnsureInstrument will
// auto-create on first deposit.
var currencies = map[string]bool{"USD": true, "EUR": true, "RUB": true}

// Store operates the instruments table.
type Store struct{}

func New() *Store { return &Store{} }

// List returns every registered instrument.
func (s *Store) List(ctx context.Context, q Querier) ([]*models.Instrument, error) {
	rows, err := q.QueryContext(ctx, `SELECT ticker, name FROM instruments ORDER BY ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("instrumentstore: list failed: %w", err)
	}
	defer rows.Close()

	var out []*models.Instrument
	for rows.Next() {
		var inst models.Instrument
		if err := rows.Scan(&inst.Ticker, &inst.Name); err != nil {
			return nil, fmt.Errorf("instrumentstore: scan failed: %w", err)
		}
		out = append(out, &inst)
	}
	return out, rows.Err()
}

// Get fetches a single instrument, or apperr.KindUnknownInstrument.
func (s *Store) Get(ctx context.Context, q Querier, ticker string) (*models.Instrument, error) {
	var inst models.Instrument
	err := q.QueryRowContext(ctx, `SELECT ticker, name FROM instruments WHERE ticker = ?`, ticker).Scan(&inst.Ticker, &inst.Name)
	if err == sql.ErrNoRows {
		return nil, apperr.UnknownInstrument(ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("instrumentstore: get failed: %w", err)
	}
	return &inst, nil
}

// Add registers a new instrument, failing with apperr.KindDuplicateInstrument
// if the ticker is already taken.
func (s *Store) Add(ctx context.Context, q Querier, ticker, name string) error {
	if _, err := q.QueryRowContext(ctx, `SELECT ticker FROM instruments WHERE ticker = ?`, ticker).Scan(new(string)); err == nil {
		return apperr.DuplicateInstrument(ticker)
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("instrumentstore: add lookup failed: %w", err)
	}

	if _, err := q.ExecContext(ctx, `INSERT INTO instruments (ticker, name) VALUES (?, ?)`, ticker, name); err != nil {
		return fmt.Errorf("instrumentstore: add failed: %w", err)
	}
	return nil
}

// EnsureInstrument fetches ticker, auto-creating it if it names one of the
// exchange's built-in fiat currencies so a first deposit never fails just
// because nobody has registered the currency yet.
func (s *Store) EnsureInstrument(ctx context.Context, q Querier, ticker string) (*models.Instrument, error) {
	inst, err := s.Get(ctx, q, ticker)
	if err == nil {
		return inst, nil
	}
	if apperr.Classify(err) != apperr.KindUnknownInstrument {
		return nil, err
	}
	if !currencies[ticker] {
		return nil, apperr.UnknownInstrument(ticker)
	}
	if err := s.Add(ctx, q, ticker, ticker+" Currency"); err != nil {
		return nil, err
	}
	return &models.Instrument{Ticker: ticker, Name: ticker + " Currency"}, nil
}

// Delete removes an instrument. Callers must cancel and refund every live
// order on it first (engine.DeleteInstrument), since deleting the row
// cascades balance deletion without any refund of its own. Orders and
// trades reference the ticker without a cascade, so the database rejects
// the delete while any order or trade for the ticker exists.
func (s *Store) Delete(ctx context.Context, q Querier, ticker string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM instruments WHERE ticker = ?`, ticker)
	if err != nil {
		return fmt.Errorf("instrumentstore: delete failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("instrumentstore: delete rows_affected failed: %w", err)
	}
	if n == 0 {
		return apperr.UnknownInstrument(ticker)
	}
	return nil
}
