package ordermanager

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// OrderState is the manager's view of one order's lifecycle. The
// matching engine forgets an order the moment it dies; the manager
// keeps the terminal record so callers can still query what happened.
type OrderState struct {
	OrderID           uint64             `json:"order_id"`
	Side              domain.Side        `json:"side"`
	Type              domain.OrderType   `json:"type"`
	Price             float64            `json:"price,omitempty"`
	Quantity          uint64             `json:"quantity"`
	FilledQuantity    uint64             `json:"filled_quantity"`
	RemainingQuantity uint64             `json:"remaining_quantity"`
	Status            domain.OrderStatus `json:"status"`
	SubmittedAt       time.Time          `json:"submitted_at"`
}

// Manager maintains order lifecycle state from the sequencer's event
// stream. It is a read model: it never talks to the engine, it only
// folds accepted commands and their trades into per-order records.
type Manager struct {
	mu     sync.RWMutex
	orders map[uint64]*OrderState

	logger *zap.Logger

	// EventsIn receives engine events from the sequencer fan-out.
	EventsIn chan domain.EngineEvent

	done chan struct{}
}

// NewManager creates an order manager.
func NewManager(logger *zap.Logger, bufferSize int) *Manager {
	return &Manager{
		orders:   make(map[uint64]*OrderState),
		logger:   logger,
		EventsIn: make(chan domain.EngineEvent, bufferSize),
		done:     make(chan struct{}),
	}
}

// Start begins the event listener goroutine.
func (m *Manager) Start() {
	go m.listen()
}

// Stop shuts down the listener.
func (m *Manager) Stop() {
	close(m.done)
}

func (m *Manager) listen() {
	m.logger.Info("order manager started")
	for {
		select {
		case event := <-m.EventsIn:
			m.Apply(event)
		case <-m.done:
			m.logger.Info("order manager stopped")
			return
		}
	}
}

// Apply folds one engine event into the order state map.
func (m *Manager) Apply(event domain.EngineEvent) {
	if !event.Accepted {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := event.Command
	switch cmd.Kind {
	case domain.CommandAddLimit:
		m.orders[cmd.OrderID] = &OrderState{
			OrderID:           cmd.OrderID,
			Side:              cmd.Side,
			Type:              domain.OrderTypeLimit,
			Price:             cmd.Price,
			Quantity:          cmd.Quantity,
			RemainingQuantity: cmd.Quantity,
			Status:            domain.OrderStatusNew,
			SubmittedAt:       time.Now(),
		}
		m.applyTrades(event.Trades)

	case domain.CommandAddMarket:
		state := &OrderState{
			OrderID:           cmd.OrderID,
			Side:              cmd.Side,
			Type:              domain.OrderTypeMarket,
			Quantity:          cmd.Quantity,
			RemainingQuantity: cmd.Quantity,
			Status:            domain.OrderStatusNew,
			SubmittedAt:       time.Now(),
		}
		m.orders[cmd.OrderID] = state
		m.applyTrades(event.Trades)
		// Market residual is discarded by the engine, never rested.
		if state.RemainingQuantity > 0 {
			state.Status = domain.OrderStatusCanceled
		}

	case domain.CommandCancel:
		if state, exists := m.orders[cmd.OrderID]; exists {
			state.Status = domain.OrderStatusCanceled
			state.RemainingQuantity = 0
		}

	case domain.CommandModify:
		state, exists := m.orders[cmd.OrderID]
		if !exists {
			m.logger.Warn("modify event for unknown order", zap.Uint64("order_id", cmd.OrderID))
			return
		}
		if cmd.Quantity == 0 {
			state.Status = domain.OrderStatusCanceled
			state.RemainingQuantity = 0
			return
		}
		state.Quantity = cmd.Quantity
		state.RemainingQuantity = cmd.Quantity
		m.applyTrades(event.Trades)
		if state.RemainingQuantity > 0 && state.FilledQuantity > 0 {
			state.Status = domain.OrderStatusPartiallyFilled
		}
	}
}

// applyTrades updates both legs of each trade. Terminal orders are
// left untouched; a dead ID being reused belongs to the new record.
func (m *Manager) applyTrades(trades []domain.Trade) {
	for _, trade := range trades {
		m.fill(trade.BuyOrderID, trade.Quantity)
		m.fill(trade.SellOrderID, trade.Quantity)
	}
}

func (m *Manager) fill(orderID uint64, quantity uint64) {
	state, exists := m.orders[orderID]
	if !exists {
		return
	}
	if state.Status == domain.OrderStatusFilled || state.Status == domain.OrderStatusCanceled {
		return
	}

	state.FilledQuantity += quantity
	if quantity >= state.RemainingQuantity {
		state.RemainingQuantity = 0
		state.Status = domain.OrderStatusFilled
	} else {
		state.RemainingQuantity -= quantity
		state.Status = domain.OrderStatusPartiallyFilled
	}
}

// GetOrder returns a copy of an order's state, or nil if unknown.
func (m *Manager) GetOrder(orderID uint64) *OrderState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.orders[orderID]
	if !exists {
		return nil
	}
	copied := *state
	return &copied
}

// Orders returns a copy of every tracked order state.
func (m *Manager) Orders() []OrderState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]OrderState, 0, len(m.orders))
	for _, state := range m.orders {
		result = append(result, *state)
	}
	return result
}
