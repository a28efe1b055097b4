package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/middleware"
	"github.com/nathanyu/matching-engine/internal/ordermanager"
	"github.com/nathanyu/matching-engine/internal/sequencer"
)

// Handler holds the HTTP handler dependencies.
type Handler struct {
	seq       *sequencer.Sequencer
	manager   *ordermanager.Manager
	publisher *marketdata.Publisher
}

// NewHandler creates a new Handler.
func NewHandler(seq *sequencer.Sequencer, manager *ordermanager.Manager, publisher *marketdata.Publisher) *Handler {
	return &Handler{
		seq:       seq,
		manager:   manager,
		publisher: publisher,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders/limit", h.PlaceLimitOrder)
		v1.POST("/orders/market", h.PlaceMarketOrder)
		v1.DELETE("/orders/:id", h.CancelOrder)
		v1.PATCH("/orders/:id", h.ModifyOrder)
		v1.GET("/orders/:id", h.GetOrder)
		v1.GET("/orders", h.ListOrders)

		v1.GET("/marketdata/orderBook/L2", h.GetL2OrderBook)
		v1.GET("/marketdata/quote", h.GetQuote)
		v1.GET("/marketdata/volume", h.GetVolume)
		v1.GET("/marketdata/trades", h.GetTrades)
		v1.GET("/marketdata/stats", h.GetStats)
	}

	r.GET("/ws/trades", gin.WrapF(h.publisher.ServeTrades))
	r.GET("/ws/book", gin.WrapF(h.publisher.ServeBook))
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "matching-engine",
	})
}

func countCommand(kind domain.CommandKind, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	middleware.CommandsTotal.WithLabelValues(string(kind), result).Inc()
}

// PlaceLimitOrderRequest is the request body for a limit order.
type PlaceLimitOrderRequest struct {
	OrderID  uint64      `json:"order_id" binding:"required"`
	Side     domain.Side `json:"side" binding:"required"`
	Price    float64     `json:"price" binding:"required"`
	Quantity uint64      `json:"quantity" binding:"required"`
}

// PlaceLimitOrder handles POST /v1/orders/limit.
func (h *Handler) PlaceLimitOrder(c *gin.Context) {
	var req PlaceLimitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}

	accepted := h.seq.AddLimitOrder(req.OrderID, req.Side, req.Price, req.Quantity)
	countCommand(domain.CommandAddLimit, accepted)
	if !accepted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order rejected: duplicate id or invalid price/quantity"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order_id": req.OrderID, "accepted": true})
}

// PlaceMarketOrderRequest is the request body for a market order.
type PlaceMarketOrderRequest struct {
	OrderID  uint64      `json:"order_id" binding:"required"`
	Side     domain.Side `json:"side" binding:"required"`
	Quantity uint64      `json:"quantity" binding:"required"`
}

// PlaceMarketOrder handles POST /v1/orders/market.
func (h *Handler) PlaceMarketOrder(c *gin.Context) {
	var req PlaceMarketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}

	accepted := h.seq.AddMarketOrder(req.OrderID, req.Side, req.Quantity)
	countCommand(domain.CommandAddMarket, accepted)
	if !accepted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order rejected: duplicate id or invalid quantity"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order_id": req.OrderID, "accepted": true})
}

func parseOrderID(c *gin.Context) (uint64, bool) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id must be an unsigned integer"})
		return 0, false
	}
	return orderID, true
}

// CancelOrder handles DELETE /v1/orders/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	cancelled := h.seq.CancelOrder(orderID)
	countCommand(domain.CommandCancel, cancelled)
	if !cancelled {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "cancelled": true})
}

// ModifyOrderRequest is the request body for a quantity modify.
type ModifyOrderRequest struct {
	Quantity uint64 `json:"quantity"`
}

// ModifyOrder handles PATCH /v1/orders/:id. Quantity 0 cancels.
func (h *Handler) ModifyOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modified := h.seq.ModifyOrder(orderID, req.Quantity)
	countCommand(domain.CommandModify, modified)
	if !modified {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "modified": true})
}

// GetOrder handles GET /v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	state := h.manager.GetOrder(orderID)
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// ListOrders handles GET /v1/orders.
func (h *Handler) ListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Orders())
}

// GetL2OrderBook handles GET /v1/marketdata/orderBook/L2.
func (h *Handler) GetL2OrderBook(c *gin.Context) {
	depthStr := c.DefaultQuery("depth", "10")
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = 10
	}

	var snapshot domain.L2OrderBook
	h.seq.Inspect(func(e *matching.Engine) {
		snapshot = e.L2Snapshot(depth)
	})
	if snapshot.Bids == nil {
		snapshot.Bids = []domain.PriceLevel{}
	}
	if snapshot.Asks == nil {
		snapshot.Asks = []domain.PriceLevel{}
	}

	c.JSON(http.StatusOK, snapshot)
}

// QuoteResponse is the top-of-book view. Absent sides are null.
type QuoteResponse struct {
	Symbol   string   `json:"symbol"`
	BestBid  *float64 `json:"best_bid"`
	BestAsk  *float64 `json:"best_ask"`
	MidPrice *float64 `json:"mid_price"`
	Spread   *float64 `json:"spread"`
}

// GetQuote handles GET /v1/marketdata/quote.
func (h *Handler) GetQuote(c *gin.Context) {
	var quote QuoteResponse
	h.seq.Inspect(func(e *matching.Engine) {
		quote.Symbol = e.Symbol()
		if bid, ok := e.BestBid(); ok {
			quote.BestBid = &bid
		}
		if ask, ok := e.BestAsk(); ok {
			quote.BestAsk = &ask
		}
		if mid, ok := e.MidPrice(); ok {
			quote.MidPrice = &mid
		}
		if spread, ok := e.Spread(); ok {
			quote.Spread = &spread
		}
	})

	c.JSON(http.StatusOK, quote)
}

// GetVolume handles GET /v1/marketdata/volume. With a price parameter
// it returns the volume at that level; without, the side total.
func (h *Handler) GetVolume(c *gin.Context) {
	side := domain.Side(c.Query("side"))
	if side != domain.SideBuy && side != domain.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}

	priceStr := c.Query("price")
	var (
		volume   uint64
		price    float64
		hasPrice bool
	)
	if priceStr != "" {
		parsed, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a number"})
			return
		}
		price, hasPrice = parsed, true
	}

	h.seq.Inspect(func(e *matching.Engine) {
		switch {
		case hasPrice && side == domain.SideBuy:
			volume = e.BidVolumeAt(price)
		case hasPrice:
			volume = e.AskVolumeAt(price)
		case side == domain.SideBuy:
			volume = e.TotalBidVolume()
		default:
			volume = e.TotalAskVolume()
		}
	})

	resp := gin.H{"side": side, "volume": volume}
	if hasPrice {
		resp["price"] = price
	}
	c.JSON(http.StatusOK, resp)
}

// GetTrades handles GET /v1/marketdata/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		count = 100
	}

	trades := []domain.Trade{}
	h.seq.Inspect(func(e *matching.Engine) {
		all := e.Trades()
		if len(all) > count {
			all = all[len(all)-count:]
		}
		trades = append(trades, all...)
	})

	c.JSON(http.StatusOK, trades)
}

// GetStats handles GET /v1/marketdata/stats.
func (h *Handler) GetStats(c *gin.Context) {
	var stats gin.H
	h.seq.Inspect(func(e *matching.Engine) {
		stats = gin.H{
			"symbol":           e.Symbol(),
			"order_count":      e.OrderCount(),
			"trade_count":      e.TradeCount(),
			"total_bid_volume": e.TotalBidVolume(),
			"total_ask_volume": e.TotalAskVolume(),
		}
	})

	c.JSON(http.StatusOK, stats)
}
