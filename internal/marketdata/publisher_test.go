package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/domain"
)

func trade(seq uint64) domain.Trade {
	return domain.Trade{
		BuyOrderID:  seq,
		SellOrderID: seq + 1,
		Price:       100.0,
		Quantity:    10,
		Sequence:    seq,
	}
}

func TestRingBuffer_PushAndGetRecent(t *testing.T) {
	var rb RingBuffer

	assert.Nil(t, rb.GetRecent(5))

	rb.Push(trade(1))
	rb.Push(trade(2))
	rb.Push(trade(3))

	recent := rb.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].Sequence)
	assert.Equal(t, uint64(3), recent[1].Sequence)

	// Asking for more than stored returns everything.
	assert.Len(t, rb.GetRecent(10), 3)
	assert.Nil(t, rb.GetRecent(0))
}

func TestRingBuffer_Wraparound(t *testing.T) {
	var rb RingBuffer

	for seq := uint64(1); seq <= ringBufferCapacity+10; seq++ {
		rb.Push(trade(seq))
	}

	recent := rb.GetRecent(ringBufferCapacity)
	require.Len(t, recent, ringBufferCapacity)
	// Oldest surviving trade is 11, newest is capacity+10.
	assert.Equal(t, uint64(11), recent[0].Sequence)
	assert.Equal(t, uint64(ringBufferCapacity+10), recent[len(recent)-1].Sequence)
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	h := NewHub[int]()

	a := h.Subscribe(4)
	b := h.Subscribe(4)
	assert.Equal(t, 2, h.Len())

	h.Broadcast(42)
	assert.Equal(t, 42, <-a.C)
	assert.Equal(t, 42, <-b.C)

	h.Unsubscribe(a)
	assert.Equal(t, 1, h.Len())
	_, open := <-a.C
	assert.False(t, open)

	h.Broadcast(7)
	assert.Equal(t, 7, <-b.C)
}

func TestHub_SlowSubscriberDropsValues(t *testing.T) {
	h := NewHub[int]()

	sub := h.Subscribe(1)
	h.Broadcast(1)
	h.Broadcast(2) // dropped, buffer full

	assert.Equal(t, 1, <-sub.C)
	select {
	case v := <-sub.C:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestPublisher_ProcessBroadcastsTrades(t *testing.T) {
	p := NewPublisher(zap.NewNop(), 16)

	sub := p.tradeHub.Subscribe(4)
	defer p.tradeHub.Unsubscribe(sub)
	bookSub := p.bookHub.Subscribe(4)
	defer p.bookHub.Unsubscribe(bookSub)

	event := domain.EngineEvent{
		Command:  domain.Command{Kind: domain.CommandAddLimit, OrderID: 2},
		Accepted: true,
		Trades:   []domain.Trade{trade(1), trade(2)},
		Book: domain.L2OrderBook{
			Symbol: "AAPL",
			Asks:   []domain.PriceLevel{{Price: 100.0, Volume: 30}},
		},
	}
	p.Process(event)

	assert.Equal(t, uint64(1), (<-sub.C).Sequence)
	assert.Equal(t, uint64(2), (<-sub.C).Sequence)

	book := <-bookSub.C
	assert.Equal(t, "AAPL", book.Symbol)
	require.Len(t, book.Asks, 1)

	recent := p.RecentTrades(10)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(1), recent[0].Sequence)
}

func TestPublisher_RunConsumesEvents(t *testing.T) {
	p := NewPublisher(zap.NewNop(), 16)
	p.Start()
	defer p.Stop()

	sub := p.tradeHub.Subscribe(4)
	defer p.tradeHub.Unsubscribe(sub)

	p.EventsIn <- domain.EngineEvent{
		Accepted: true,
		Trades:   []domain.Trade{trade(9)},
	}

	select {
	case got := <-sub.C:
		assert.Equal(t, uint64(9), got.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}
