package orderbook

import (
	"container/list"

	"github.com/google/btree"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// btreeDegree is the branching factor for the price-level trees.
const btreeDegree = 16

// orderEntry maps an order to its queue element for O(1) cancel.
type orderEntry struct {
	order   *domain.Order
	element *list.Element
	level   *bookLevel
	book    *Book
}

// bookLevel is a single price level on one side of the book. Orders
// queue in arrival order (head = earliest live arrival); totalVolume is
// maintained by every mutation, never recomputed on read.
type bookLevel struct {
	price       float64
	totalVolume uint64
	orders      *list.List // of *domain.Order
}

func newBookLevel(price float64) *bookLevel {
	return &bookLevel{price: price, orders: list.New()}
}

// append pushes an order to the tail of the queue.
func (l *bookLevel) append(order *domain.Order) *list.Element {
	l.totalVolume += order.RemainingQuantity
	return l.orders.PushBack(order)
}

// remove unlinks a queue element and subtracts its order's remaining
// quantity from totalVolume.
func (l *bookLevel) remove(elem *list.Element) {
	order := elem.Value.(*domain.Order)
	l.totalVolume -= order.RemainingQuantity
	l.orders.Remove(elem)
}

// head returns the earliest live order at this price.
func (l *bookLevel) head() *domain.Order {
	return l.orders.Front().Value.(*domain.Order)
}

// popHead drops the head order. The caller has already accounted for
// its quantity in totalVolume.
func (l *bookLevel) popHead() {
	l.orders.Remove(l.orders.Front())
}

func (l *bookLevel) empty() bool {
	return l.orders.Len() == 0
}

// Book is one side (buy or sell) of an order book. Levels live in a
// B-tree keyed by price; best is a cached pointer to the extremum,
// refreshed only when a boundary level is inserted or erased.
type Book struct {
	side   domain.Side
	levels *btree.BTreeG[*bookLevel]
	best   *bookLevel
}

// NewBook creates an empty book side.
func NewBook(side domain.Side) *Book {
	return &Book{
		side: side,
		levels: btree.NewG(btreeDegree, func(a, b *bookLevel) bool {
			return a.price < b.price
		}),
	}
}

// better reports whether price p has priority over q on this side.
func (b *Book) better(p, q float64) bool {
	if b.side == domain.SideBuy {
		return p > q
	}
	return p < q
}

// HasOrders returns whether this side has any resting liquidity.
func (b *Book) HasOrders() bool {
	return b.best != nil
}

// BestPrice returns the best price on this side.
func (b *Book) BestPrice() (float64, bool) {
	if b.best == nil {
		return 0, false
	}
	return b.best.price, true
}

func (b *Book) bestLevel() *bookLevel {
	return b.best
}

func (b *Book) levelAt(price float64) *bookLevel {
	level, ok := b.levels.Get(&bookLevel{price: price})
	if !ok {
		return nil
	}
	return level
}

// getOrCreateLevel returns the level at price, creating it lazily.
func (b *Book) getOrCreateLevel(price float64) *bookLevel {
	if level := b.levelAt(price); level != nil {
		return level
	}
	level := newBookLevel(price)
	b.levels.ReplaceOrInsert(level)
	if b.best == nil || b.better(price, b.best.price) {
		b.best = level
	}
	return level
}

// eraseLevel removes an empty level and refreshes the cached best.
func (b *Book) eraseLevel(level *bookLevel) {
	b.levels.Delete(level)
	if b.best != level {
		return
	}
	var ok bool
	if b.side == domain.SideBuy {
		b.best, ok = b.levels.Max()
	} else {
		b.best, ok = b.levels.Min()
	}
	if !ok {
		b.best = nil
	}
}

// addOrder appends an order to the tail of its price level's queue.
func (b *Book) addOrder(order *domain.Order) (*bookLevel, *list.Element) {
	level := b.getOrCreateLevel(order.Price)
	return level, level.append(order)
}

// removeOrder unlinks an order from its level, pruning the level if it
// becomes empty.
func (b *Book) removeOrder(entry *orderEntry) {
	entry.level.remove(entry.element)
	if entry.level.empty() {
		b.eraseLevel(entry.level)
	}
}

// VolumeAt returns the aggregate volume resting at a price, or 0.
func (b *Book) VolumeAt(price float64) uint64 {
	level := b.levelAt(price)
	if level == nil {
		return 0
	}
	return level.totalVolume
}

// TotalVolume sums the aggregate volume across all levels.
func (b *Book) TotalVolume() uint64 {
	var total uint64
	b.levels.Ascend(func(level *bookLevel) bool {
		total += level.totalVolume
		return true
	})
	return total
}

// Levels returns up to depth (price, volume) pairs in priority order,
// best first. depth <= 0 returns every level.
func (b *Book) Levels(depth int) []domain.PriceLevel {
	n := b.levels.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	result := make([]domain.PriceLevel, 0, n)
	collect := func(level *bookLevel) bool {
		if depth > 0 && len(result) >= depth {
			return false
		}
		result = append(result, domain.PriceLevel{
			Price:  level.price,
			Volume: level.totalVolume,
		})
		return true
	}
	if b.side == domain.SideBuy {
		b.levels.Descend(collect)
	} else {
		b.levels.Ascend(collect)
	}
	return result
}

// Fill is one match produced by the matching loop: the resting order
// that was hit and the quantity traded against it.
type Fill struct {
	Maker    *domain.Order
	Quantity uint64
}

// OrderBook holds the two-sided book and order index for one symbol.
type OrderBook struct {
	Symbol   string
	BuyBook  *Book
	SellBook *Book
	orders   map[uint64]*orderEntry
}

// NewOrderBook creates an empty order book for a symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol:   symbol,
		BuyBook:  NewBook(domain.SideBuy),
		SellBook: NewBook(domain.SideSell),
		orders:   make(map[uint64]*orderEntry),
	}
}

func (ob *OrderBook) sideBook(side domain.Side) *Book {
	if side == domain.SideBuy {
		return ob.BuyBook
	}
	return ob.SellBook
}

// Contains reports whether an order ID is currently live.
func (ob *OrderBook) Contains(orderID uint64) bool {
	_, exists := ob.orders[orderID]
	return exists
}

// Get returns a live order by ID, or nil.
func (ob *OrderBook) Get(orderID uint64) *domain.Order {
	entry, exists := ob.orders[orderID]
	if !exists {
		return nil
	}
	return entry.order
}

// OrderCount returns the number of live orders across both sides.
func (ob *OrderBook) OrderCount() int {
	return len(ob.orders)
}

// AddOrder rests an order on its side of the book and indexes it.
func (ob *OrderBook) AddOrder(order *domain.Order) {
	book := ob.sideBook(order.Side)
	level, elem := book.addOrder(order)
	ob.orders[order.OrderID] = &orderEntry{
		order:   order,
		element: elem,
		level:   level,
		book:    book,
	}
}

// RemoveOrder takes an order off the book by ID. Returns the order if
// it was live, nil otherwise.
func (ob *OrderBook) RemoveOrder(orderID uint64) *domain.Order {
	entry, exists := ob.orders[orderID]
	if !exists {
		return nil
	}
	entry.book.removeOrder(entry)
	delete(ob.orders, orderID)
	return entry.order
}

// ReduceOrder shrinks a live order's remaining quantity in place,
// keeping its queue position. newQuantity must be positive and smaller
// than the current remaining quantity.
func (ob *OrderBook) ReduceOrder(orderID uint64, newQuantity uint64) bool {
	entry, exists := ob.orders[orderID]
	if !exists {
		return false
	}
	delta := entry.order.RemainingQuantity - newQuantity
	entry.order.RemainingQuantity = newQuantity
	entry.level.totalVolume -= delta
	return true
}

// Match runs the price-time priority matching loop for an incoming
// order against the opposite side. Fills are returned in execution
// order; fully consumed makers are removed from the book and index.
// The taker's RemainingQuantity is decremented as it fills.
func (ob *OrderBook) Match(taker *domain.Order) []Fill {
	opposite := ob.SellBook
	if taker.Side == domain.SideSell {
		opposite = ob.BuyBook
	}

	var fills []Fill
	for taker.RemainingQuantity > 0 && opposite.HasOrders() {
		level := opposite.bestLevel()

		// Price-cross test applies to limit orders only; market
		// orders take any price.
		if taker.Type == domain.OrderTypeLimit {
			if taker.Side == domain.SideBuy && taker.Price < level.price {
				break
			}
			if taker.Side == domain.SideSell && taker.Price > level.price {
				break
			}
		}

		maker := level.head()
		traded := min(taker.RemainingQuantity, maker.RemainingQuantity)

		taker.RemainingQuantity -= traded
		maker.RemainingQuantity -= traded
		level.totalVolume -= traded

		fills = append(fills, Fill{Maker: maker, Quantity: traded})

		if maker.RemainingQuantity == 0 {
			delete(ob.orders, maker.OrderID)
			level.popHead()
			if level.empty() {
				opposite.eraseLevel(level)
			}
		}
	}
	return fills
}

// L2Snapshot returns an aggregated depth snapshot of both sides.
func (ob *OrderBook) L2Snapshot(depth int) domain.L2OrderBook {
	return domain.L2OrderBook{
		Symbol: ob.Symbol,
		Bids:   ob.BuyBook.Levels(depth),
		Asks:   ob.SellBook.Levels(depth),
	}
}
