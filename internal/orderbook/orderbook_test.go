package orderbook

import (
	"testing"

	"exchange-core/internal/models"

	"github.com/google/uuid"
)

func restingOrder(side models.Side, price, qty, filled int64) *models.Order {
	p := price
	return &models.Order{
		ID:     uuid.New(),
		Ticker: "BTCUSD",
		Side:   side,
		Price:  &p,
		Qty:    qty,
		Filled: filled,
		Status: models.StatusNew,
	}
}

func TestBook_TopLevels_DepthTruncation(t *testing.T) {
	b := New("BTCUSD")
	b.AddOrder(restingOrder(models.Buy, 100, 1, 0))
	b.AddOrder(restingOrder(models.Buy, 99, 1, 0))
	b.AddOrder(restingOrder(models.Buy, 98, 1, 0))

	bids, _ := b.TopLevels(2)
	if len(bids) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(bids))
	}
	if bids[0].Price != 100 || bids[1].Price != 99 {
		t.Errorf("expected descending bid prices [100 99], got [%d %d]", bids[0].Price, bids[1].Price)
	}
}

func TestBook_TopLevels_ZeroDepthMeansUnbounded(t *testing.T) {
	b := New("BTCUSD")
	b.AddOrder(restingOrder(models.Sell, 100, 1, 0))
	b.AddOrder(restingOrder(models.Sell, 101, 1, 0))
	b.AddOrder(restingOrder(models.Sell, 102, 1, 0))

	_, asks := b.TopLevels(0)
	if len(asks) != 3 {
		t.Fatalf("expected all 3 levels with depth 0, got %d", len(asks))
	}
}

func TestBook_TopLevels_ExcludesFullyFilledLevel(t *testing.T) {
	b := New("BTCUSD")
	fullyFilled := restingOrder(models.Buy, 100, 5, 5)
	b.AddOrder(fullyFilled)
	b.AddOrder(restingOrder(models.Buy, 99, 2, 0))

	bids, _ := b.TopLevels(10)
	if len(bids) != 1 {
		t.Fatalf("expected the zero-remaining level excluded, got %d levels", len(bids))
	}
	if bids[0].Price != 99 {
		t.Errorf("expected remaining level at 99, got %d", bids[0].Price)
	}
}

func TestBook_AddOrder_AggregatesSamePriceLevel(t *testing.T) {
	b := New("BTCUSD")
	b.AddOrder(restingOrder(models.Sell, 100, 2, 0))
	b.AddOrder(restingOrder(models.Sell, 100, 3, 0))

	_, asks := b.TopLevels(10)
	if len(asks) != 1 {
		t.Fatalf("expected one aggregated level, got %d", len(asks))
	}
	if asks[0].Qty != 5 {
		t.Errorf("expected aggregated qty 5, got %d", asks[0].Qty)
	}
}

func TestBook_RemoveOrder_PartialLevelRemoval(t *testing.T) {
	b := New("BTCUSD")
	first := restingOrder(models.Buy, 100, 1, 0)
	second := restingOrder(models.Buy, 100, 1, 0)
	b.AddOrder(first)
	b.AddOrder(second)

	if !b.RemoveOrder(first.ID, models.Buy, first.Price) {
		t.Fatal("expected RemoveOrder to report the order was found")
	}

	best := b.GetBestBid()
	if best == nil || best.ID != second.ID {
		t.Fatal("expected the remaining order to still rest at the price level")
	}

	bids, _ := b.TopLevels(10)
	if len(bids) != 1 || bids[0].Qty != 1 {
		t.Fatalf("expected one level with qty 1 remaining, got %+v", bids)
	}
}

func TestBook_RemoveOrder_LastOrderDropsLevel(t *testing.T) {
	b := New("BTCUSD")
	only := restingOrder(models.Sell, 100, 1, 0)
	b.AddOrder(only)

	if !b.RemoveOrder(only.ID, models.Sell, only.Price) {
		t.Fatal("expected RemoveOrder to report the order was found")
	}
	if b.GetBestAsk() != nil {
		t.Error("expected no best ask once the only level's only order is removed")
	}
	_, asks := b.TopLevels(10)
	if len(asks) != 0 {
		t.Errorf("expected no ask levels left, got %d", len(asks))
	}
}

func TestBook_RemoveOrder_UnknownIDReturnsFalse(t *testing.T) {
	b := New("BTCUSD")
	b.AddOrder(restingOrder(models.Buy, 100, 1, 0))

	price := int64(100)
	if b.RemoveOrder(uuid.New(), models.Buy, &price) {
		t.Error("expected RemoveOrder to return false for an id that was never added")
	}
}

func TestBook_GetBestBidAsk_EmptyBookReturnsNil(t *testing.T) {
	b := New("BTCUSD")
	if b.GetBestBid() != nil {
		t.Error("expected nil best bid on an empty book")
	}
	if b.GetBestAsk() != nil {
		t.Error("expected nil best ask on an empty book")
	}
}

func TestBook_OrderCount(t *testing.T) {
	b := New("BTCUSD")
	b.AddOrder(restingOrder(models.Buy, 100, 1, 0))
	b.AddOrder(restingOrder(models.Buy, 99, 1, 0))
	b.AddOrder(restingOrder(models.Sell, 101, 1, 0))

	bidCount, askCount := b.OrderCount()
	if bidCount != 2 {
		t.Errorf("expected 2 resting bids, got %d", bidCount)
	}
	if askCount != 1 {
		t.Errorf("expected 1 resting ask, got %d", askCount)
	}
}

func TestBook_AddOrder_MarketOrderNeverRests(t *testing.T) {
	b := New("BTCUSD")
	market := &models.Order{ID: uuid.New(), Ticker: "BTCUSD", Side: models.Buy, Qty: 1, Status: models.StatusNew}
	b.AddOrder(market)

	if b.GetBestBid() != nil {
		t.Error("expected a market order (nil price) to never be stored in the book")
	}
}
