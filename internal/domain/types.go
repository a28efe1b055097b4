package domain

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus represents the lifecycle state of an order as seen by
// the order manager's read model. The engine itself does not track
// status; it only knows live orders.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
)

// OrderType represents the execution style of an order.
type OrderType string

const (
	// OrderTypeLimit orders rest on the book after matching.
	OrderTypeLimit OrderType = "limit"
	// OrderTypeMarket orders consume liquidity and never rest.
	OrderTypeMarket OrderType = "market"
)

// Order is a live order inside the matching engine. Everything except
// RemainingQuantity is fixed at acceptance. ArrivalSequence is the
// engine-stamped monotonic counter used for time priority; it is never
// reused and only changes when a quantity-increase modify re-enters the
// order.
type Order struct {
	OrderID           uint64    `json:"order_id"`
	Side              Side      `json:"side"`
	Price             float64   `json:"price"`
	RemainingQuantity uint64    `json:"remaining_quantity"`
	ArrivalSequence   uint64    `json:"arrival_sequence"`
	Type              OrderType `json:"type"`
}

// Trade is an execution between a buy and a sell order. Price is the
// passive (resting) order's price. Sequence is drawn from the same
// counter as order arrivals, so arrivals and trades share one total
// order of events.
type Trade struct {
	BuyOrderID  uint64  `json:"buy_order_id"`
	SellOrderID uint64  `json:"sell_order_id"`
	Price       float64 `json:"price"`
	Quantity    uint64  `json:"quantity"`
	Sequence    uint64  `json:"sequence"`
}

// PriceLevel is an aggregated (price, volume) pair in a depth view.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume uint64  `json:"volume"`
}

// L2OrderBook is an aggregated depth snapshot. Bids are ordered best
// (highest) first, asks best (lowest) first.
type L2OrderBook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// CommandKind is the action type sent through the sequencer.
type CommandKind string

const (
	CommandAddLimit  CommandKind = "add_limit"
	CommandAddMarket CommandKind = "add_market"
	CommandCancel    CommandKind = "cancel"
	CommandModify    CommandKind = "modify"
)

// Command is one mutation request for the engine. Unused fields are
// zero for kinds that do not need them (e.g. Price for cancel).
type Command struct {
	Kind     CommandKind `json:"kind"`
	OrderID  uint64      `json:"order_id"`
	Side     Side        `json:"side,omitempty"`
	Price    float64     `json:"price,omitempty"`
	Quantity uint64      `json:"quantity,omitempty"`
}

// EngineEvent is emitted by the sequencer after each accepted mutating
// command, for downstream consumers (order state tracking, market data push).
type EngineEvent struct {
	Command  Command
	Accepted bool
	// Trades produced by this command, in execution order.
	Trades []Trade
	// Book is a shallow depth snapshot taken after the command applied.
	Book L2OrderBook
}
