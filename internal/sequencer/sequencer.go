package sequencer

import (
	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/matching"
)

// snapshotDepth bounds the depth snapshot attached to engine events.
const snapshotDepth = 10

type result struct {
	accepted bool
	trades   []domain.Trade
}

type request struct {
	cmd   domain.Command
	reply chan result
}

// Sequencer is the single-writer loop in front of the matching engine.
// The engine is not internally synchronized, so every mutation and
// query must run on one goroutine; the sequencer is that goroutine.
// Commands are submitted synchronously (the caller blocks until the
// engine applied the command and gets the boolean verdict back), and
// each accepted mutation is published as an EngineEvent for downstream
// consumers.
type Sequencer struct {
	engine *matching.Engine
	logger *zap.Logger

	requests chan request
	queries  chan func(*matching.Engine)

	// Events carries one EngineEvent per accepted mutating command.
	Events chan domain.EngineEvent

	done chan struct{}
}

// NewSequencer creates a sequencer wired to the given engine.
func NewSequencer(engine *matching.Engine, logger *zap.Logger, bufferSize int) *Sequencer {
	return &Sequencer{
		engine:   engine,
		logger:   logger,
		requests: make(chan request),
		queries:  make(chan func(*matching.Engine)),
		Events:   make(chan domain.EngineEvent, bufferSize),
		done:     make(chan struct{}),
	}
}

// Start begins the application loop in a goroutine.
func (s *Sequencer) Start() {
	go s.run()
}

// Stop signals the loop to shut down.
func (s *Sequencer) Stop() {
	close(s.done)
}

// run is the application loop. All engine access happens here.
func (s *Sequencer) run() {
	s.logger.Info("sequencer started", zap.String("symbol", s.engine.Symbol()))
	for {
		select {
		case req := <-s.requests:
			req.reply <- s.apply(req.cmd)
		case query := <-s.queries:
			query(s.engine)
		case <-s.done:
			s.logger.Info("sequencer stopped")
			return
		}
	}
}

// apply dispatches one command to the engine and collects the trades
// it produced.
func (s *Sequencer) apply(cmd domain.Command) result {
	before := s.engine.TradeCount()

	var accepted bool
	switch cmd.Kind {
	case domain.CommandAddLimit:
		accepted = s.engine.AddLimitOrder(cmd.OrderID, cmd.Side, cmd.Price, cmd.Quantity)
	case domain.CommandAddMarket:
		accepted = s.engine.AddMarketOrder(cmd.OrderID, cmd.Side, cmd.Quantity)
	case domain.CommandCancel:
		accepted = s.engine.CancelOrder(cmd.OrderID)
	case domain.CommandModify:
		accepted = s.engine.ModifyOrder(cmd.OrderID, cmd.Quantity)
	default:
		s.logger.Warn("unknown command kind", zap.String("kind", string(cmd.Kind)))
		return result{}
	}

	res := result{accepted: accepted, trades: s.engine.TradesSince(before)}
	if accepted {
		s.publish(cmd, res)
	}
	return res
}

// publish sends the event downstream without blocking the command
// path. A full channel drops the event.
func (s *Sequencer) publish(cmd domain.Command, res result) {
	event := domain.EngineEvent{
		Command:  cmd,
		Accepted: res.accepted,
		Trades:   res.trades,
		Book:     s.engine.L2Snapshot(snapshotDepth),
	}
	select {
	case s.Events <- event:
	default:
		s.logger.Warn("event channel full, dropping event",
			zap.String("kind", string(cmd.Kind)),
			zap.Uint64("order_id", cmd.OrderID))
	}
}

// submit routes a command to the loop and waits for the verdict.
func (s *Sequencer) submit(cmd domain.Command) result {
	req := request{cmd: cmd, reply: make(chan result, 1)}
	select {
	case s.requests <- req:
		return <-req.reply
	case <-s.done:
		return result{}
	}
}

// AddLimitOrder submits a limit order through the loop.
func (s *Sequencer) AddLimitOrder(orderID uint64, side domain.Side, price float64, quantity uint64) bool {
	return s.submit(domain.Command{
		Kind:     domain.CommandAddLimit,
		OrderID:  orderID,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	}).accepted
}

// AddMarketOrder submits a market order through the loop.
func (s *Sequencer) AddMarketOrder(orderID uint64, side domain.Side, quantity uint64) bool {
	return s.submit(domain.Command{
		Kind:     domain.CommandAddMarket,
		OrderID:  orderID,
		Side:     side,
		Quantity: quantity,
	}).accepted
}

// CancelOrder submits a cancel through the loop.
func (s *Sequencer) CancelOrder(orderID uint64) bool {
	return s.submit(domain.Command{
		Kind:    domain.CommandCancel,
		OrderID: orderID,
	}).accepted
}

// ModifyOrder submits a quantity modify through the loop.
func (s *Sequencer) ModifyOrder(orderID uint64, newQuantity uint64) bool {
	return s.submit(domain.Command{
		Kind:     domain.CommandModify,
		OrderID:  orderID,
		Quantity: newQuantity,
	}).accepted
}

// Inspect runs a read-only function against the engine on the loop
// goroutine, serialized with all mutations. It blocks until the
// function returns; the function must not retain the engine. After
// Stop, Inspect returns without running the function.
func (s *Sequencer) Inspect(fn func(*matching.Engine)) {
	wait := make(chan struct{})
	wrapped := func(e *matching.Engine) {
		fn(e)
		close(wait)
	}
	select {
	case s.queries <- wrapped:
		<-wait
	case <-s.done:
	}
}
