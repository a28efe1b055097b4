package marketdata

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/domain"
)

const (
	ringBufferCapacity = 100
	subscriptionBuffer = 32
)

// RingBuffer is a fixed-size circular buffer of recent trades.
type RingBuffer struct {
	data  [ringBufferCapacity]domain.Trade
	head  int // next write position
	count int
}

// Push adds a trade to the ring buffer.
func (rb *RingBuffer) Push(t domain.Trade) {
	rb.data[rb.head] = t
	rb.head = (rb.head + 1) % ringBufferCapacity
	if rb.count < ringBufferCapacity {
		rb.count++
	}
}

// GetRecent returns the n most recent trades in chronological order.
func (rb *RingBuffer) GetRecent(n int) []domain.Trade {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]domain.Trade, n)
	start := (rb.head - n + ringBufferCapacity) % ringBufferCapacity
	for i := 0; i < n; i++ {
		idx := (start + i) % ringBufferCapacity
		result[i] = rb.data[idx]
	}
	return result
}

// outboundMessage is the envelope pushed over a WebSocket stream.
type outboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publisher turns the sequencer's event stream into push feeds: every
// trade and every post-command depth snapshot is broadcast to WebSocket
// subscribers. It also keeps a ring buffer of recent trades so a new
// trade subscriber starts with context.
type Publisher struct {
	logger   *zap.Logger
	tradeHub *Hub[domain.Trade]
	bookHub  *Hub[domain.L2OrderBook]
	upgrader websocket.Upgrader

	// EventsIn receives engine events from the sequencer fan-out.
	EventsIn chan domain.EngineEvent

	recentMu sync.RWMutex
	recent   RingBuffer

	done chan struct{}
}

// NewPublisher creates a market data publisher.
func NewPublisher(logger *zap.Logger, bufferSize int) *Publisher {
	return &Publisher{
		logger:   logger,
		tradeHub: NewHub[domain.Trade](),
		bookHub:  NewHub[domain.L2OrderBook](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		EventsIn: make(chan domain.EngineEvent, bufferSize),
		done:     make(chan struct{}),
	}
}

// Start begins the publisher's application loop.
func (p *Publisher) Start() {
	go p.run()
}

// Stop shuts down the publisher.
func (p *Publisher) Stop() {
	close(p.done)
}

func (p *Publisher) run() {
	p.logger.Info("market data publisher started")
	for {
		select {
		case event := <-p.EventsIn:
			p.Process(event)
		case <-p.done:
			p.logger.Info("market data publisher stopped")
			return
		}
	}
}

// Process broadcasts one engine event to the push feeds.
func (p *Publisher) Process(event domain.EngineEvent) {
	for _, trade := range event.Trades {
		p.recentMu.Lock()
		p.recent.Push(trade)
		p.recentMu.Unlock()
		p.tradeHub.Broadcast(trade)
	}
	p.bookHub.Broadcast(event.Book)
}

// RecentTrades returns up to n most recent trades, oldest first.
func (p *Publisher) RecentTrades(n int) []domain.Trade {
	p.recentMu.RLock()
	defer p.recentMu.RUnlock()
	return p.recent.GetRecent(n)
}

// ServeTrades upgrades the connection and streams trades until the
// client goes away. The recent ring buffer is replayed first.
func (p *Publisher) ServeTrades(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := p.tradeHub.Subscribe(subscriptionBuffer)
	defer p.tradeHub.Unsubscribe(sub)

	for _, trade := range p.RecentTrades(ringBufferCapacity) {
		if err := conn.WriteJSON(outboundMessage{Type: "trade", Data: trade}); err != nil {
			return
		}
	}

	for trade := range sub.C {
		if err := conn.WriteJSON(outboundMessage{Type: "trade", Data: trade}); err != nil {
			return
		}
	}
}

// ServeBook upgrades the connection and streams depth snapshots.
func (p *Publisher) ServeBook(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := p.bookHub.Subscribe(subscriptionBuffer)
	defer p.bookHub.Unsubscribe(sub)

	for book := range sub.C {
		if err := conn.WriteJSON(outboundMessage{Type: "book", Data: book}); err != nil {
			return
		}
	}
}
