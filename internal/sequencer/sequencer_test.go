package sequencer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/matching"
)

func newTestSequencer(t *testing.T) *Sequencer {
	t.Helper()
	s := NewSequencer(matching.NewEngine("AAPL"), zap.NewNop(), 16)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func receiveEvent(t *testing.T, s *Sequencer) domain.EngineEvent {
	t.Helper()
	select {
	case event := <-s.Events:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for engine event")
		return domain.EngineEvent{}
	}
}

func TestSubmitCommands(t *testing.T) {
	s := newTestSequencer(t)

	assert.True(t, s.AddLimitOrder(1, domain.SideSell, 100.0, 50))
	assert.True(t, s.AddLimitOrder(2, domain.SideBuy, 100.0, 20))
	assert.True(t, s.ModifyOrder(1, 10))
	assert.True(t, s.CancelOrder(1))
	assert.True(t, s.AddMarketOrder(3, domain.SideBuy, 5))

	var tradeCount int
	s.Inspect(func(e *matching.Engine) {
		tradeCount = e.TradeCount()
	})
	assert.Equal(t, 1, tradeCount)
}

func TestRejectedCommandEmitsNoEvent(t *testing.T) {
	s := newTestSequencer(t)

	assert.False(t, s.AddLimitOrder(1, domain.SideBuy, -1.0, 10))
	assert.False(t, s.CancelOrder(42))
	assert.True(t, s.AddLimitOrder(1, domain.SideBuy, 100.0, 10))

	// Only the accepted command produced an event.
	event := receiveEvent(t, s)
	assert.Equal(t, domain.CommandAddLimit, event.Command.Kind)
	assert.Equal(t, uint64(1), event.Command.OrderID)
	assert.True(t, event.Accepted)
	assert.Empty(t, event.Trades)

	select {
	case extra := <-s.Events:
		t.Fatalf("unexpected event: %+v", extra)
	default:
	}
}

func TestEventCarriesTradesAndBook(t *testing.T) {
	s := newTestSequencer(t)

	require.True(t, s.AddLimitOrder(1, domain.SideSell, 100.0, 50))
	receiveEvent(t, s)

	require.True(t, s.AddLimitOrder(2, domain.SideBuy, 101.0, 20))
	event := receiveEvent(t, s)

	require.Len(t, event.Trades, 1)
	assert.Equal(t, 100.0, event.Trades[0].Price)
	assert.Equal(t, uint64(20), event.Trades[0].Quantity)

	// Depth snapshot reflects post-command state: 30 left on the ask.
	require.Len(t, event.Book.Asks, 1)
	assert.Equal(t, uint64(30), event.Book.Asks[0].Volume)
	assert.Empty(t, event.Book.Bids)
}

func TestConcurrentSubmitters(t *testing.T) {
	s := newTestSequencer(t)

	// Many goroutines race commands at the sequencer; the single
	// writer loop keeps the engine consistent.
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			s.AddLimitOrder(id, domain.SideBuy, 100.0, 10)
		}(uint64(i + 1))
	}
	wg.Wait()

	var orderCount int
	var total uint64
	s.Inspect(func(e *matching.Engine) {
		orderCount = e.OrderCount()
		total = e.TotalBidVolume()
	})
	assert.Equal(t, n, orderCount)
	assert.Equal(t, uint64(n*10), total)
}

func TestSubmitAfterStop(t *testing.T) {
	s := NewSequencer(matching.NewEngine("AAPL"), zap.NewNop(), 16)
	s.Start()
	s.Stop()

	// Give the loop a moment to drain out.
	time.Sleep(50 * time.Millisecond)

	assert.False(t, s.AddLimitOrder(1, domain.SideBuy, 100.0, 10))
}
