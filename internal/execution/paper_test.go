package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

func testTrade() types.Trade {
	return types.Trade{
		ID:             "2024-06-17_SPY_long_1",
		Symbol:         "SPY",
		Direction:      types.DirectionLong,
		EntryPrice:     50350,
		InitialStop:    49900,
		CurrentStop:    49900,
		RValue:         450,
		Target1R:       50800,
		Target2R:       51250,
		Target3R:       51700,
		EntryTimestamp: 1718634600000,
		Status:         types.TradeOpen,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestPaperExecutorBracketLifecycle(t *testing.T) {
	bus := events.NewEventBus(16, zerolog.Nop())
	exec := NewPaperExecutor(bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, exec.Start(ctx))

	trade := testTrade()
	bus.Publish(events.NewTradeOpenedEvent(trade))
	waitFor(t, func() bool { return len(exec.OpenPositions()) == 1 })

	pos, ok := exec.Position(trade.ID)
	require.True(t, ok)
	assert.Equal(t, int64(49900), pos.Stop)
	assert.Equal(t, int64(51700), pos.Target)

	bus.Publish(events.NewStopMovedEvent(trade.ID, 49900, 50350, trade.EntryTimestamp+300_000))
	waitFor(t, func() bool {
		p, _ := exec.Position(trade.ID)
		return p.Stop == 50350
	})

	outcome := types.TradeOutcome{TradeID: trade.ID, Result: types.ResultWin3R, ExitPrice: 51700}
	bus.Publish(events.NewTradeClosedEvent(trade, outcome))
	waitFor(t, func() bool { return len(exec.OpenPositions()) == 0 })

	pos, ok = exec.Position(trade.ID)
	require.True(t, ok)
	assert.True(t, pos.Closed)
	assert.Equal(t, int64(51700), pos.ExitPrice)

	assert.Equal(t, types.ExecutionMock, exec.Mode())
	require.NoError(t, exec.Stop(ctx))
}

func TestPaperExecutorIgnoresUnknownTrade(t *testing.T) {
	bus := events.NewEventBus(16, zerolog.Nop())
	exec := NewPaperExecutor(bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, exec.Start(ctx))

	bus.Publish(events.NewStopMovedEvent("nope", 1, 2, 3))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, exec.OpenPositions())
}
