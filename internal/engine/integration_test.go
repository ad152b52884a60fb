package engine

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"exchange-core/internal/db"
	"exchange-core/internal/ledger"
	"exchange-core/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *sql.DB {
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
	_, err := database.ExecContext(ctx, `INSERT IGNORE INTO instruments (ticker, name) VALUES (?, ?)`, ticker, ticker)
	return err
}

func fund(ctx context.Context, database *sql.DB, userID uuid.UUID, ticker string, amount int64) error {
	l := ledger.New()
	return l.Credit(ctx, database, userID, ticker, amount)
}

func cleanupTestData(t *testing.T, database *sql.DB, tickers ...string) {
	t.Helper()
	for _, ticker := range tickers {
		database.Exec("DELETE FROM transactions WHERE ticker = ?", ticker)
		database.Exec("DELETE FROM orders WHERE ticker = ?", ticker)
		database.Exec("DELETE FROM balances WHERE ticker = ?", ticker)
		database.Exec("DELETE FROM instruments WHERE ticker = ?", ticker)
	}
}

// TestStartupRecovery verifies that live orders are restored into the
// in-memory order books on engine startup.
func TestStartupRecovery(t *testing.T) {
	database := testDatabase(t)
	defer database.Close()
	ctx := context.Background()

	cleanupTestData(t, database, "BTCUSD", "ETHUSDT", "USD")
	defer cleanupTestData(t, database, "BTCUSD", "ETHUSDT", "USD")

	require.NoError(t, seedInstrument(ctx, database, "BTCUSD"))
	require.NoError(t, seedInstrument(ctx, database, "ETHUSDT"))
	require.NoError(t, seedInstrument(ctx, database, "USD"))

	buyer1, buyer2, seller, ethBuyer, ethSeller := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{buyer1, buyer2, seller, ethBuyer, ethSeller} {
		require.NoError(t, seedUser(ctx, database, u))
		defer database.ExecContext(ctx, "DELETE FROM users WHERE id = ?", u.String())
	}
	require.NoError(t, fund(ctx, database, buyer1, "USD", 1_000_000))
	require.NoError(t, fund(ctx, database, buyer2, "USD", 1_000_000))
	require.NoError(t, fund(ctx, database, seller, "BTCUSD", 10))
	require.NoError(t, fund(ctx, database, ethBuyer, "USD", 1_000_000))
	require.NoError(t, fund(ctx, database, ethSeller, "ETHUSDT", 10))

	eng := New(database, zerolog.Nop())

	price49000 := int64(49000)
	price51000 := int64(51000)
	price3000 := int64(3000)
	price3100 := int64(3100)

	order1, _, err := eng.PlaceOrder(ctx, buyer1, "BTCUSD", models.Buy, 3, &price49000)
	require.NoError(t, err)
	order2, _, err := eng.PlaceOrder(ctx, buyer2, "BTCUSD", models.Buy, 1, &price49000)
	require.NoError(t, err)
	_, _, err = eng.PlaceOrder(ctx, seller, "BTCUSD", models.Sell, 2, &price51000)
	require.NoError(t, err)
	_, _, err = eng.PlaceOrder(ctx, ethBuyer, "ETHUSDT", models.Buy, 3, &price3000)
	require.NoError(t, err)
	_, _, err = eng.PlaceOrder(ctx, ethSeller, "ETHUSDT", models.Sell, 2, &price3100)
	require.NoError(t, err)

	// A second engine instance simulates a process restart: it must rebuild
	// its books purely from persisted state.
	fresh := New(database, zerolog.Nop())
	require.NoError(t, fresh.LoadOpenOrders(ctx))

	bestBid := fresh.bookFor("BTCUSD").GetBestBid()
	require.NotNil(t, bestBid)
	assert.Equal(t, int64(49000), *bestBid.Price)
	assert.Equal(t, order1.ID, bestBid.ID)

	bestAsk := fresh.bookFor("BTCUSD").GetBestAsk()
	require.NotNil(t, bestAsk)
	assert.Equal(t, int64(51000), *bestAsk.Price)

	bids, _ := fresh.bookFor("BTCUSD").TopLevels(5)
	require.Len(t, bids, 1)
	assert.Equal(t, int64(4), bids[0].Qty) // order1 (3) + order2 (1), FIFO preserved by sequence

	_ = order2
	ethBestBid := fresh.bookFor("ETHUSDT").GetBestBid()
	require.NotNil(t, ethBestBid)
	assert.Equal(t, int64(3000), *ethBestBid.Price)
}

// TestConcurrentOrderPlacement ensures concurrent placements for the same
// ticker succeed and persisted state stays consistent.
func TestConcurrentOrderPlacement(t *testing.T) {
	database := testDatabase(t)
	defer database.Close()
	ctx := context.Background()

	cleanupTestData(t, database, "BTCUSD", "USD")
	defer cleanupTestData(t, database, "BTCUSD", "USD")

	require.NoError(t, seedInstrument(ctx, database, "BTCUSD"))
	require.NoError(t, seedInstrument(ctx, database, "USD"))

	eng := New(database, zerolog.Nop())

	const numGoroutines = 10
	const ordersPerGoroutine = 5

	results := make(chan error, numGoroutines*ordersPerGoroutine)
	for g := 0; g < numGoroutines; g++ {
		go func(goroutineID int) {
			userID := uuid.New()
			if err := seedUser(ctx, database, userID); err != nil {
				results <- err
				return
			}
			if err := fund(ctx, database, userID, "USD", 10_000_000); err != nil {
				results <- err
				return
			}
			if err := fund(ctx, database, userID, "BTCUSD", 1000); err != nil {
				results <- err
				return
			}
			for i := 0; i < ordersPerGoroutine; i++ {
				var side models.Side
				var price int64
				if (goroutineID+i)%2 == 0 {
					side = models.Buy
					price = 49000 + int64(i*10)
				} else {
					side = models.Sell
					price = 51000 + int64(i*10)
				}
				_, _, err := eng.PlaceOrder(ctx, userID, "BTCUSD", side, 1, &price)
				results <- err
			}
		}(g)
	}

	for i := 0; i < numGoroutines*ordersPerGoroutine; i++ {
		assert.NoError(t, <-results)
	}

	var orderCount int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM orders WHERE ticker = 'BTCUSD'").Scan(&orderCount))
	assert.Equal(t, numGoroutines*ordersPerGoroutine, orderCount)

	rows, err := database.Query("SELECT status FROM orders WHERE ticker = 'BTCUSD'")
	require.NoError(t, err)
	defer rows.Close()

	validStatuses := map[string]bool{
		string(models.StatusNew):               true,
		string(models.StatusPartiallyExecuted): true,
		string(models.StatusExecuted):          true,
	}
	var checked int
	for rows.Next() {
		var status string
		require.NoError(t, rows.Scan(&status))
		assert.True(t, validStatuses[status], "unexpected status %q", status)
		checked++
	}
	assert.Equal(t, orderCount, checked)
}

// TestPlaceOrder_MatchAndSettle exercises a crossing trade end to end and
// checks that both sides' balances reflect the fill.
func TestPlaceOrder_MatchAndSettle(t *testing.T) {
	database := testDatabase(t)
	defer database.Close()
	ctx := context.Background()

	cleanupTestData(t, database, "AAPL", "USD")
	defer cleanupTestData(t, database, "AAPL", "USD")

	require.NoError(t, seedInstrument(ctx, database, "AAPL"))
	require.NoError(t, seedInstrument(ctx, database, "USD"))

	buyer, sellerID := uuid.New(), uuid.New()
	require.NoError(t, seedUser(ctx, database, buyer))
	require.NoError(t, seedUser(ctx, database, sellerID))
	defer database.ExecContext(ctx, "DELETE FROM users WHERE id IN (?, ?)", buyer.String(), sellerID.String())

	require.NoError(t, fund(ctx, database, buyer, "USD", 10_000))
	require.NoError(t, fund(ctx, database, sellerID, "AAPL", 100))

	eng := New(database, zerolog.Nop())

	price := int64(50)
	sellOrder, _, err := eng.PlaceOrder(ctx, sellerID, "AAPL", models.Sell, 10, &price)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, sellOrder.Status)

	buyOrder, trades, err := eng.PlaceOrder(ctx, buyer, "AAPL", models.Buy, 10, &price)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(10), trades[0].Amount)
	assert.Equal(t, int64(50), trades[0].Price)
	assert.Equal(t, models.StatusExecuted, buyOrder.Status)

	l := ledger.New()
	buyerSnap, err := l.Snapshot(ctx, database, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000-500), buyerSnap["USD"])
	assert.Equal(t, int64(10), buyerSnap["AAPL"])

	sellerSnap, err := l.Snapshot(ctx, database, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), sellerSnap["USD"])
	assert.Equal(t, int64(90), sellerSnap["AAPL"])
}
