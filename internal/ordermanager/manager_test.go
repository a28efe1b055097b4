package ordermanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/domain"
)

func newTestManager() *Manager {
	return NewManager(zap.NewNop(), 16)
}

func addLimitEvent(id uint64, side domain.Side, price float64, qty uint64, trades ...domain.Trade) domain.EngineEvent {
	return domain.EngineEvent{
		Command: domain.Command{
			Kind:     domain.CommandAddLimit,
			OrderID:  id,
			Side:     side,
			Price:    price,
			Quantity: qty,
		},
		Accepted: true,
		Trades:   trades,
	}
}

func TestNewOrderTracked(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideBuy, 100.0, 50))

	state := m.GetOrder(1)
	require.NotNil(t, state)
	assert.Equal(t, domain.OrderStatusNew, state.Status)
	assert.Equal(t, uint64(50), state.RemainingQuantity)
	assert.Equal(t, uint64(0), state.FilledQuantity)
	assert.Equal(t, domain.OrderTypeLimit, state.Type)
	assert.False(t, state.SubmittedAt.IsZero())
}

func TestUnknownOrder(t *testing.T) {
	m := newTestManager()
	assert.Nil(t, m.GetOrder(42))
	assert.Empty(t, m.Orders())
}

func TestRejectedEventIgnored(t *testing.T) {
	m := newTestManager()

	event := addLimitEvent(1, domain.SideBuy, 100.0, 50)
	event.Accepted = false
	m.Apply(event)

	assert.Nil(t, m.GetOrder(1))
}

func TestFillsUpdateBothLegs(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideSell, 100.0, 50))
	m.Apply(addLimitEvent(2, domain.SideBuy, 100.0, 20,
		domain.Trade{BuyOrderID: 2, SellOrderID: 1, Price: 100.0, Quantity: 20, Sequence: 2}))

	maker := m.GetOrder(1)
	require.NotNil(t, maker)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, maker.Status)
	assert.Equal(t, uint64(30), maker.RemainingQuantity)
	assert.Equal(t, uint64(20), maker.FilledQuantity)

	taker := m.GetOrder(2)
	require.NotNil(t, taker)
	assert.Equal(t, domain.OrderStatusFilled, taker.Status)
	assert.Equal(t, uint64(0), taker.RemainingQuantity)
}

func TestMarketOrderResidualCanceled(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideSell, 100.0, 10))
	m.Apply(domain.EngineEvent{
		Command: domain.Command{
			Kind:     domain.CommandAddMarket,
			OrderID:  2,
			Side:     domain.SideBuy,
			Quantity: 25,
		},
		Accepted: true,
		Trades: []domain.Trade{
			{BuyOrderID: 2, SellOrderID: 1, Price: 100.0, Quantity: 10, Sequence: 2},
		},
	})

	state := m.GetOrder(2)
	require.NotNil(t, state)
	// 10 filled, the other 15 were discarded by the engine.
	assert.Equal(t, domain.OrderStatusCanceled, state.Status)
	assert.Equal(t, uint64(10), state.FilledQuantity)
	assert.Equal(t, domain.OrderTypeMarket, state.Type)
}

func TestCancelMarksCanceled(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideBuy, 100.0, 50))
	m.Apply(domain.EngineEvent{
		Command:  domain.Command{Kind: domain.CommandCancel, OrderID: 1},
		Accepted: true,
	})

	state := m.GetOrder(1)
	require.NotNil(t, state)
	assert.Equal(t, domain.OrderStatusCanceled, state.Status)
	assert.Equal(t, uint64(0), state.RemainingQuantity)
}

func TestModifyAdjustsQuantity(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideBuy, 100.0, 50))
	m.Apply(domain.EngineEvent{
		Command:  domain.Command{Kind: domain.CommandModify, OrderID: 1, Quantity: 30},
		Accepted: true,
	})

	state := m.GetOrder(1)
	require.NotNil(t, state)
	assert.Equal(t, uint64(30), state.Quantity)
	assert.Equal(t, uint64(30), state.RemainingQuantity)

	// Modify to zero is a cancel.
	m.Apply(domain.EngineEvent{
		Command:  domain.Command{Kind: domain.CommandModify, OrderID: 1, Quantity: 0},
		Accepted: true,
	})
	assert.Equal(t, domain.OrderStatusCanceled, m.GetOrder(1).Status)
}

func TestTerminalRecordSurvivesEngineForgetting(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideSell, 100.0, 20))
	m.Apply(addLimitEvent(2, domain.SideBuy, 100.0, 20,
		domain.Trade{BuyOrderID: 2, SellOrderID: 1, Price: 100.0, Quantity: 20, Sequence: 2}))

	// Both orders are dead in the engine; the manager still answers.
	assert.Equal(t, domain.OrderStatusFilled, m.GetOrder(1).Status)
	assert.Equal(t, domain.OrderStatusFilled, m.GetOrder(2).Status)
	assert.Len(t, m.Orders(), 2)
}

func TestReusedIDReplacesTerminalRecord(t *testing.T) {
	m := newTestManager()

	m.Apply(addLimitEvent(1, domain.SideBuy, 100.0, 10))
	m.Apply(domain.EngineEvent{
		Command:  domain.Command{Kind: domain.CommandCancel, OrderID: 1},
		Accepted: true,
	})
	m.Apply(addLimitEvent(1, domain.SideSell, 105.0, 7))

	state := m.GetOrder(1)
	require.NotNil(t, state)
	assert.Equal(t, domain.SideSell, state.Side)
	assert.Equal(t, domain.OrderStatusNew, state.Status)
	assert.Equal(t, uint64(7), state.RemainingQuantity)
}
