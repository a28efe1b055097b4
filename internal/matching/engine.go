package matching

import (
	"math"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/orderbook"
)

// Engine is a single-instrument matching engine with price-time
// priority. It owns the order book, the order index, the trade history,
// and the arrival-sequence counter.
//
// The engine is not internally synchronized: callers must serialize
// all mutations and queries against one instance. See the sequencer
// package for the single-writer loop that does this in the service.
type Engine struct {
	symbol  string
	book    *orderbook.OrderBook
	nextSeq uint64
	trades  []domain.Trade
}

// NewEngine creates a matching engine for a symbol. The symbol is
// opaque to the engine and only surfaces in diagnostics and snapshots.
func NewEngine(symbol string) *Engine {
	return &Engine{
		symbol: symbol,
		book:   orderbook.NewOrderBook(symbol),
	}
}

// nextSequence stamps the next value of the shared event counter.
// Arrivals and trades draw from the same counter, so sequence values
// define a total order over all externally visible events.
func (e *Engine) nextSequence() uint64 {
	seq := e.nextSeq
	e.nextSeq++
	return seq
}

func validSide(side domain.Side) bool {
	return side == domain.SideBuy || side == domain.SideSell
}

// AddLimitOrder submits a limit order. It matches against the opposite
// side first; any residual rests on the book. Returns false (with no
// state change and no trades) for a live duplicate ID, zero quantity,
// or a non-positive or non-finite price.
func (e *Engine) AddLimitOrder(orderID uint64, side domain.Side, price float64, quantity uint64) bool {
	if e.book.Contains(orderID) {
		return false
	}
	if !validSide(side) || quantity == 0 {
		return false
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}

	order := &domain.Order{
		OrderID:           orderID,
		Side:              side,
		Price:             price,
		RemainingQuantity: quantity,
		ArrivalSequence:   e.nextSequence(),
		Type:              domain.OrderTypeLimit,
	}

	e.match(order)

	// Residual rests at its own price. A fully filled order is never
	// indexed.
	if order.RemainingQuantity > 0 {
		e.book.AddOrder(order)
	}
	return true
}

// AddMarketOrder submits a market order. It matches with no price
// constraint; any residual after the opposite side is exhausted is
// discarded. Market orders never rest on the book.
func (e *Engine) AddMarketOrder(orderID uint64, side domain.Side, quantity uint64) bool {
	if e.book.Contains(orderID) {
		return false
	}
	if !validSide(side) || quantity == 0 {
		return false
	}

	order := &domain.Order{
		OrderID:           orderID,
		Side:              side,
		RemainingQuantity: quantity,
		ArrivalSequence:   e.nextSequence(),
		Type:              domain.OrderTypeMarket,
	}

	e.match(order)
	return true
}

// CancelOrder removes a live order from the book. Returns false if the
// ID is not live.
func (e *Engine) CancelOrder(orderID uint64) bool {
	return e.book.RemoveOrder(orderID) != nil
}

// ModifyOrder changes a live order's quantity.
//
// A decrease mutates the order in place and keeps its time priority.
// An increase cancels the order and re-enters it as a fresh limit
// order with the same ID, side, and price but a new arrival sequence,
// losing time priority; the re-entry runs the full matching loop.
// new_quantity == 0 is a cancel; equality is a no-op success.
func (e *Engine) ModifyOrder(orderID uint64, newQuantity uint64) bool {
	order := e.book.Get(orderID)
	if order == nil {
		return false
	}
	if newQuantity == 0 {
		return e.CancelOrder(orderID)
	}
	switch {
	case newQuantity < order.RemainingQuantity:
		return e.book.ReduceOrder(orderID, newQuantity)
	case newQuantity > order.RemainingQuantity:
		side, price := order.Side, order.Price
		e.book.RemoveOrder(orderID)
		return e.AddLimitOrder(orderID, side, price, newQuantity)
	default:
		return true
	}
}

// match drives the matching loop and records the resulting trades.
// The trade prints at the passive order's price: whichever of the two
// matched orders arrived first. For a freshly entered taker this is
// always the resting maker, but the rule is applied generally so a
// modify-induced re-entry attributes correctly.
func (e *Engine) match(taker *domain.Order) {
	fills := e.book.Match(taker)
	for _, f := range fills {
		passive := f.Maker
		if taker.ArrivalSequence < f.Maker.ArrivalSequence {
			passive = taker
		}

		buyID, sellID := taker.OrderID, f.Maker.OrderID
		if taker.Side == domain.SideSell {
			buyID, sellID = f.Maker.OrderID, taker.OrderID
		}

		e.trades = append(e.trades, domain.Trade{
			BuyOrderID:  buyID,
			SellOrderID: sellID,
			Price:       passive.Price,
			Quantity:    f.Quantity,
			Sequence:    e.nextSequence(),
		})
	}
}

// BestBid returns the highest resting buy price.
func (e *Engine) BestBid() (float64, bool) {
	return e.book.BuyBook.BestPrice()
}

// BestAsk returns the lowest resting sell price.
func (e *Engine) BestAsk() (float64, bool) {
	return e.book.SellBook.BestPrice()
}

// MidPrice returns the arithmetic mean of best bid and best ask.
func (e *Engine) MidPrice() (float64, bool) {
	bid, okBid := e.BestBid()
	ask, okAsk := e.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Spread returns best ask minus best bid.
func (e *Engine) Spread() (float64, bool) {
	bid, okBid := e.BestBid()
	ask, okAsk := e.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// BidVolumeAt returns the aggregate buy volume resting at a price.
func (e *Engine) BidVolumeAt(price float64) uint64 {
	return e.book.BuyBook.VolumeAt(price)
}

// AskVolumeAt returns the aggregate sell volume resting at a price.
func (e *Engine) AskVolumeAt(price float64) uint64 {
	return e.book.SellBook.VolumeAt(price)
}

// TotalBidVolume sums resting buy volume across all levels.
func (e *Engine) TotalBidVolume() uint64 {
	return e.book.BuyBook.TotalVolume()
}

// TotalAskVolume sums resting sell volume across all levels.
func (e *Engine) TotalAskVolume() uint64 {
	return e.book.SellBook.TotalVolume()
}

// TopBids returns up to depth bid levels, best first.
func (e *Engine) TopBids(depth int) []domain.PriceLevel {
	return e.book.BuyBook.Levels(depth)
}

// TopAsks returns up to depth ask levels, best first.
func (e *Engine) TopAsks(depth int) []domain.PriceLevel {
	return e.book.SellBook.Levels(depth)
}

// L2Snapshot returns an aggregated depth snapshot of both sides.
func (e *Engine) L2Snapshot(depth int) domain.L2OrderBook {
	return e.book.L2Snapshot(depth)
}

// Trades returns the full trade history in execution order. The
// returned slice is owned by the engine; callers must not mutate it.
func (e *Engine) Trades() []domain.Trade {
	return e.trades
}

// TradesSince returns the trades appended after the first n. Used by
// the sequencer to attribute trades to the command that produced them.
func (e *Engine) TradesSince(n int) []domain.Trade {
	if n >= len(e.trades) {
		return nil
	}
	return e.trades[n:]
}

// OrderCount returns the number of live resting orders.
func (e *Engine) OrderCount() int {
	return e.book.OrderCount()
}

// TradeCount returns the number of trades executed so far.
func (e *Engine) TradeCount() int {
	return len(e.trades)
}

// Symbol returns the instrument symbol this engine serves.
func (e *Engine) Symbol() string {
	return e.symbol
}
