package execution

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// PaperExecutor mirrors the machine's logical trades into a simulated
// order book. It subscribes to the event bus and fills at the prices
// the machine reports, so a backtest and a paper-traded live session
// produce the same book.
type PaperExecutor struct {
	bus    *events.EventBus
	logger zerolog.Logger

	mu        sync.RWMutex
	positions map[string]*Position
	running   bool
	stopCh    chan struct{}

	fills     int64
	stopMoves int64
}

// NewPaperExecutor creates a paper execution provider.
func NewPaperExecutor(bus *events.EventBus, logger zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		bus:       bus,
		logger:    logger.With().Str("component", "paper_executor").Logger(),
		positions: make(map[string]*Position),
		stopCh:    make(chan struct{}),
	}
}

// Mode reports mock execution.
func (e *PaperExecutor) Mode() types.ExecutionMode {
	return types.ExecutionMock
}

// Start subscribes to trade events and processes them until Stop or
// context cancellation.
func (e *PaperExecutor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	openedCh := e.bus.Subscribe(events.EventTypeTradeOpened)
	movedCh := e.bus.Subscribe(events.EventTypeStopMoved)
	closedCh := e.bus.Subscribe(events.EventTypeTradeClosed)

	go e.processEvents(ctx, openedCh, movedCh, closedCh)

	e.logger.Info().Msg("Paper executor started")
	return nil
}

// Stop halts event processing.
func (e *PaperExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.logger.Info().Int("open_positions", len(e.openLocked())).Msg("Paper executor stopped")
	return nil
}

func (e *PaperExecutor) processEvents(ctx context.Context, openedCh, movedCh, closedCh <-chan events.Event) {
	for {
		select {
		case ev, ok := <-openedCh:
			if !ok {
				return
			}
			if te, ok := ev.(*events.TradeOpenedEvent); ok {
				e.openBracket(te.Trade)
			}

		case ev, ok := <-movedCh:
			if !ok {
				return
			}
			if sm, ok := ev.(*events.StopMovedEvent); ok {
				e.moveStop(sm)
			}

		case ev, ok := <-closedCh:
			if !ok {
				return
			}
			if te, ok := ev.(*events.TradeClosedEvent); ok {
				e.flatten(te.Trade.ID, te.Outcome.ExitPrice)
			}

		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// openBracket books the entry with its protective stop and final
// target.
func (e *PaperExecutor) openBracket(trade types.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.positions[trade.ID] = &Position{
		TradeID:   trade.ID,
		Symbol:    trade.Symbol,
		Direction: trade.Direction,
		Entry:     trade.EntryPrice,
		Stop:      trade.CurrentStop,
		Target:    trade.Target3R,
		OpenedAt:  trade.EntryTimestamp,
	}
	e.fills++

	e.logger.Info().
		Str("trade_id", trade.ID).
		Str("direction", string(trade.Direction)).
		Int64("entry", trade.EntryPrice).
		Int64("stop", trade.CurrentStop).
		Msg("Bracket opened")
}

func (e *PaperExecutor) moveStop(sm *events.StopMovedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[sm.TradeID]
	if !ok || pos.Closed {
		e.logger.Warn().Str("trade_id", sm.TradeID).Msg("Stop move for unknown position")
		return
	}
	pos.Stop = sm.NewStop
	e.stopMoves++

	e.logger.Info().
		Str("trade_id", sm.TradeID).
		Int64("stop", sm.NewStop).
		Msg("Stop amended")
}

func (e *PaperExecutor) flatten(tradeID string, exitPrice int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[tradeID]
	if !ok {
		e.logger.Warn().Str("trade_id", tradeID).Msg("Flatten for unknown position")
		return
	}
	pos.Closed = true
	pos.ExitPrice = exitPrice
	e.fills++

	e.logger.Info().
		Str("trade_id", tradeID).
		Int64("exit", exitPrice).
		Msg("Position flattened")
}

// OpenPositions returns the working (unflattened) brackets.
func (e *PaperExecutor) OpenPositions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.openLocked()
}

func (e *PaperExecutor) openLocked() []Position {
	var out []Position
	for _, pos := range e.positions {
		if !pos.Closed {
			out = append(out, *pos)
		}
	}
	return out
}

// Position looks up a booked position by trade id.
func (e *PaperExecutor) Position(tradeID string) (Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[tradeID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}
