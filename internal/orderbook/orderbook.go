// Package orderbook maintains the in-memory, per-instrument limit order
// book used by the matching engine for fast best-bid/best-ask lookups and
// for the aggregated L2 view. Price levels are kept in a red-black tree
// (github.com/emirpasic/gods) rather than a map with a manually re-sorted
// cache, so lookups of the best price stay O(log n) as the book churns.
package orderbook

import (
	"sync"

	"exchange-core/internal/models"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/google/uuid"
)

// priceLevel is a FIFO queue of live orders resting at one price. FIFO
// order is arrival order, which under the engine's per-symbol mutex always
// matches ascending models.Order.Sequence.
type priceLevel struct {
	price  int64
	orders []*models.Order
}

func (pl *priceLevel) remove(id uuid.UUID) bool {
	for i, o := range pl.orders {
		if o.ID == id {
			pl.orders = append(pl.orders[:i], pl.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (pl *priceLevel) totalRemaining() int64 {
	var total int64
	for _, o := range pl.orders {
		total += o.Remaining()
	}
	return total
}

// Book is the in-memory book for a single ticker. Safe for concurrent use.
type Book struct {
	Ticker string

	mu   sync.RWMutex
	bids *redblacktree.Tree // price desc (best bid = highest price)
	asks *redblacktree.Tree // price asc  (best ask = lowest price)
}

func New(ticker string) *Book {
	return &Book{
		Ticker: ticker,
		bids: redblacktree.NewWith(func(a, b interface{}) int {
			return utils.Int64Comparator(b, a) // reversed: descending
		}),
		asks: redblacktree.NewWith(utils.Int64Comparator),
	}
}

func (b *Book) treeFor(side models.Side) *redblacktree.Tree {
	if side == models.Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder inserts a live limit order into the book. Market orders (nil
// Price) are never stored; the engine never rests them.
func (b *Book) AddOrder(order *models.Order) {
	if order.Price == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := b.treeFor(order.Side)
	price := *order.Price
	if v, found := tree.Get(price); found {
		lvl := v.(*priceLevel)
		lvl.orders = append(lvl.orders, order)
		return
	}
	tree.Put(price, &priceLevel{price: price, orders: []*models.Order{order}})
}

// RemoveOrder deletes a resting order by id, side and price. Returns true
// if it was found and removed.
func (b *Book) RemoveOrder(id uuid.UUID, side models.Side, price *int64) bool {
	if price == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := b.treeFor(side)
	v, found := tree.Get(*price)
	if !found {
		return false
	}
	lvl := v.(*priceLevel)
	if !lvl.remove(id) {
		return false
	}
	if len(lvl.orders) == 0 {
		tree.Remove(*price)
	}
	return true
}

// GetBestBid returns the oldest order at the highest bid price, or nil.
func (b *Book) GetBestBid() *models.Order { return b.best(b.bids) }

// GetBestAsk returns the oldest order at the lowest ask price, or nil.
func (b *Book) GetBestAsk() *models.Order { return b.best(b.asks) }

func (b *Book) best(tree *redblacktree.Tree) *models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	node := tree.Left()
	if node == nil {
		return nil
	}
	lvl := node.Value.(*priceLevel)
	if len(lvl.orders) == 0 {
		return nil
	}
	return lvl.orders[0]
}

// TopLevels returns up to depth aggregated price levels per side: bids
// price-descending, asks price-ascending, zero-remaining levels excluded.
func (b *Book) TopLevels(depth int) (bids, asks []models.Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = collect(b.bids, depth)
	asks = collect(b.asks, depth)
	return bids, asks
}

func collect(tree *redblacktree.Tree, depth int) []models.Level {
	levels := make([]models.Level, 0, depth)
	it := tree.Iterator()
	it.Begin()
	for it.Next() {
		if depth > 0 && len(levels) >= depth {
			break
		}
		lvl := it.Value().(*priceLevel)
		qty := lvl.totalRemaining()
		if qty <= 0 {
			continue
		}
		levels = append(levels, models.Level{Price: lvl.price, Qty: qty})
	}
	return levels
}

// OrderCount reports the number of resting orders on each side, used for
// diagnostics.
func (b *Book) OrderCount() (bidCount, askCount int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	countTree := func(tree *redblacktree.Tree) int {
		n := 0
		it := tree.Iterator()
		it.Begin()
		for it.Next() {
			n += len(it.Value().(*priceLevel).orders)
		}
		return n
	}
	return countTree(b.bids), countTree(b.asks)
}
