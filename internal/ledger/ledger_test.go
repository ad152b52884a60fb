package ledger

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"exchange-core/internal/apperr"
	"exchange-core/internal/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL environment variable not set, skipping integration test")
	}
	database, err := db.Connect()
	require.NoError(t, err)
	require.NoError(t, db.Bootstrap(database))
	return database
}

func seedUser(ctx context.Context, database *sql.DB, userID uuid.UUID) error {
	_, err := database.ExecContext(ctx, `
		INSERT IGNORE INTO users (id, name, role, api_key) VALUES (?, 'test user', 'USER', ?)
	`, userID.String(), "key-"+userID.String())
	return err
}

func seedInstrument(ctx context.Context, database *sql.DB, ticker string) error {
	_, err := database.ExecContext(ctx, `
		INSERT IGNORE INTO instruments (ticker, name) VALUES (?, ?)
	`, ticker, ticker)
	return err
}

func TestLedger_CreditThenDebit(t *testing.T) {
	database := testDB(t)
	defer database.Close()

	ctx := context.Background()
	l := New()
	userID := uuid.New()
	defer database.ExecContext(ctx, "DELETE FROM balances WHERE user_id = ?", userID.String())
	defer database.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID.String())

	require.NoError(t, seedInstrument(ctx, database, "USD"))
	require.NoError(t, seedUser(ctx, database, userID))

	require.NoError(t, l.Credit(ctx, database, userID, "USD", 1000))
	require.NoError(t, l.Debit(ctx, database, userID, "USD", 400))

	snap, err := l.Snapshot(ctx, database, userID)
	require.NoError(t, err)
	require.Equal(t, int64(600), snap["USD"])
}

func TestLedger_DebitInsufficientFunds(t *testing.T) {
	database := testDB(t)
	defer database.Close()

	ctx := context.Background()
	l := New()
	userID := uuid.New()
	defer database.ExecContext(ctx, "DELETE FROM balances WHERE user_id = ?", userID.String())
	defer database.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID.String())

	require.NoError(t, seedInstrument(ctx, database, "USD"))
	require.NoError(t, seedUser(ctx, database, userID))

	err := l.Debit(ctx, database, userID, "USD", 50)
	require.Error(t, err)
	require.Equal(t, apperr.KindInsufficientFunds, apperr.Classify(err))

	require.NoError(t, l.Credit(ctx, database, userID, "USD", 100))
	err = l.Debit(ctx, database, userID, "USD", 500)
	require.Error(t, err)
	require.Equal(t, apperr.KindInsufficientFunds, apperr.Classify(err))
}

func TestLedger_CreditCreatesRow(t *testing.T) {
	database := testDB(t)
	defer database.Close()

	ctx := context.Background()
	l := New()
	userID := uuid.New()
	defer database.ExecContext(ctx, "DELETE FROM balances WHERE user_id = ?", userID.String())
	defer database.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID.String())

	require.NoError(t, seedInstrument(ctx, database, "AAPL"))
	require.NoError(t, seedUser(ctx, database, userID))

	snap, err := l.Snapshot(ctx, database, userID)
	require.NoError(t, err)
	require.Empty(t, snap)

	require.NoError(t, l.Credit(ctx, database, userID, "AAPL", 5))
	snap, err = l.Snapshot(ctx, database, userID)
	require.NoError(t, err)
	require.Equal(t, int64(5), snap["AAPL"])
}
