package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/core/clock"
	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/internal/core/session"
	"github.com/bikeshrana/breakout-trader-go/internal/marketdata"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

const (
	testDate   = "2024-06-17"
	futureDate = "2099-06-17"
	testSymbol = "SPY"
)

func et(t *testing.T, clockStr string) int64 {
	t.Helper()
	ts, err := session.ETToUTC(testDate, clockStr)
	require.NoError(t, err)
	return ts
}

func bar(ts, open, high, low, close int64) types.Bar {
	return types.Bar{
		Symbol:         testSymbol,
		Timestamp:      ts,
		Open:           open,
		High:           high,
		Low:            low,
		Close:          close,
		Volume:         10_000,
		Completed:      true,
		BarSizeMinutes: 5,
	}
}

// threeRDay is the full scenario-A day: zone 50200/49900, long entry,
// three targets in sequence.
func threeRDay(t *testing.T) []types.Bar {
	t.Helper()
	return []types.Bar{
		bar(et(t, "09:30"), 50000, 50200, 49900, 50100),
		bar(et(t, "09:35"), 50100, 50150, 49950, 50050),
		bar(et(t, "09:40"), 50050, 50150, 49950, 50060),
		bar(et(t, "09:45"), 50060, 50150, 49950, 50070),
		bar(et(t, "09:50"), 50070, 50150, 49950, 50080),
		bar(et(t, "09:55"), 50080, 50150, 49950, 50090),
		bar(et(t, "10:00"), 50090, 50200, 50000, 50200),
		bar(et(t, "10:05"), 50150, 50300, 50100, 50150),
		bar(et(t, "10:10"), 50200, 50360, 50180, 50350),
		bar(et(t, "10:15"), 50400, 50820, 50400, 50800),
		bar(et(t, "10:20"), 50800, 51260, 50700, 51250),
		bar(et(t, "10:25"), 51250, 51710, 51200, 51700),
	}
}

func newBacktestRunner(t *testing.T, clk *clock.SimulatedClock) *session.Runner {
	t.Helper()
	r, err := session.NewRunner(clk, nil, config.DefaultStrategy(), true, types.ExecutionMock, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestRunSessionBacktestThreeR(t *testing.T) {
	clk := clock.NewSimulatedClock(et(t, "09:00"))
	runner := newBacktestRunner(t, clk)
	source := marketdata.NewReplaySource(threeRDay(t), clk, et(t, "12:00"))

	sc, err := runner.RunSession(context.Background(), testDate, testSymbol, source)
	require.NoError(t, err)

	assert.Equal(t, types.SessionComplete, sc.Status)
	assert.True(t, sc.IsBacktest)
	assert.Equal(t, types.ExecutionMock, sc.ExecutionMode)
	require.Len(t, sc.Trades, 1)
	require.Len(t, sc.Outcomes, 1)
	assert.Equal(t, types.ResultWin3R, sc.Outcomes[0].Result)
	assert.Len(t, sc.AllBars, 12)

	// The replay drags the simulated clock to the cut-off.
	assert.GreaterOrEqual(t, clk.Now(), et(t, "12:00"))
	assert.GreaterOrEqual(t, sc.CompletedAt, sc.StartedAt)
}

func TestRunSessionFiltersOutOfWindowBars(t *testing.T) {
	clk := clock.NewSimulatedClock(et(t, "09:00"))
	runner := newBacktestRunner(t, clk)

	bars := append([]types.Bar{
		bar(et(t, "09:00"), 49000, 49100, 48900, 49050), // premarket, dropped
	}, threeRDay(t)...)
	bars = append(bars,
		bar(et(t, "12:00"), 51700, 51750, 51650, 51720), // at cut-off, dropped
		bar(et(t, "13:00"), 51720, 51800, 51700, 51790), // afternoon, dropped
	)
	source := marketdata.NewReplaySource(bars, clk, et(t, "16:00"))

	sc, err := runner.RunSession(context.Background(), testDate, testSymbol, source)
	require.NoError(t, err)
	assert.Len(t, sc.AllBars, 12, "only in-window bars reach the machine")
}

func TestRunSessionNoTradeChoppy(t *testing.T) {
	clk := clock.NewSimulatedClock(et(t, "09:00"))
	runner := newBacktestRunner(t, clk)
	source := marketdata.NewReplaySource([]types.Bar{
		bar(et(t, "09:30"), 50000, 50200, 49900, 50100),
		bar(et(t, "10:00"), 50050, 50150, 49950, 50000),
	}, clk, et(t, "12:00"))

	sc, err := runner.RunSession(context.Background(), testDate, testSymbol, source)
	require.NoError(t, err)
	assert.Equal(t, types.SessionNoTrade, sc.Status)
	assert.Empty(t, sc.Trades)
}

func TestRunSessionSourceErrorBecomesErrorStatus(t *testing.T) {
	clk := clock.NewSimulatedClock(et(t, "09:00"))
	runner := newBacktestRunner(t, clk)

	source := &failingSource{
		bars: []types.Bar{bar(et(t, "09:30"), 50000, 50200, 49900, 50100)},
		err:  errors.New("feed dropped"),
	}

	sc, err := runner.RunSession(context.Background(), testDate, testSymbol, source)
	require.NoError(t, err, "session errors never escape RunSession")
	assert.Equal(t, types.SessionError, sc.Status)
	assert.Equal(t, "feed dropped", sc.Error)
	assert.Len(t, sc.AllBars, 1, "bars before the failure are preserved")
}

func TestRunSessionStopYieldsInterrupted(t *testing.T) {
	clk := clock.NewSystemClock()
	runner, err := session.NewRunner(clk, nil, config.DefaultStrategy(), false, types.ExecutionLive, zerolog.Nop())
	require.NoError(t, err)

	// A live source that never produces: RunSession parks in Next. The
	// date sits far in the future so the cut-off watcher stays asleep.
	blocked := marketdata.NewLiveSource(make(chan types.Bar))

	type result struct {
		sc  *types.SessionContext
		err error
	}
	done := make(chan result, 1)
	go func() {
		sc, err := runner.RunSession(context.Background(), futureDate, testSymbol, blocked)
		done <- result{sc, err}
	}()

	time.Sleep(50 * time.Millisecond)
	runner.Stop()
	runner.Stop() // idempotent

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, types.SessionInterrupted, res.sc.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the session")
	}
}

func TestRunSessionRefusesConcurrentUse(t *testing.T) {
	clk := clock.NewSystemClock()
	runner, err := session.NewRunner(clk, nil, config.DefaultStrategy(), false, types.ExecutionLive, zerolog.Nop())
	require.NoError(t, err)

	blocked := marketdata.NewLiveSource(make(chan types.Bar))
	go func() {
		_, _ = runner.RunSession(context.Background(), futureDate, testSymbol, blocked)
	}()
	time.Sleep(50 * time.Millisecond)
	defer runner.Stop()

	_, err = runner.RunSession(context.Background(), futureDate, testSymbol, blocked)
	assert.Error(t, err)
}

func TestRunSessionRefusesBadDate(t *testing.T) {
	clk := clock.NewSimulatedClock(0)
	runner := newBacktestRunner(t, clk)
	_, err := runner.RunSession(context.Background(), "June 17", testSymbol,
		marketdata.NewReplaySource(nil, clk, 0))
	assert.Error(t, err)
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	opts := config.DefaultStrategy()
	opts.MaxBreakAttempts = 0
	_, err := session.NewRunner(clock.NewSystemClock(), nil, opts, true, types.ExecutionMock, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunSessionPublishesCompletionOnBus(t *testing.T) {
	clk := clock.NewSimulatedClock(et(t, "09:00"))
	bus := events.NewEventBus(64, zerolog.Nop())
	completed := bus.Subscribe(events.EventTypeSessionCompleted)
	opened := bus.Subscribe(events.EventTypeTradeOpened)

	runner, err := session.NewRunner(clk, bus, config.DefaultStrategy(), true, types.ExecutionMock, zerolog.Nop())
	require.NoError(t, err)

	source := marketdata.NewReplaySource(threeRDay(t), clk, et(t, "12:00"))
	_, err = runner.RunSession(context.Background(), testDate, testSymbol, source)
	require.NoError(t, err)

	select {
	case ev := <-opened:
		assert.Equal(t, events.EventTypeTradeOpened, ev.Type())
	default:
		t.Fatal("expected a trade-opened event on the bus")
	}
	select {
	case ev := <-completed:
		sce, ok := ev.(*events.SessionCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, types.SessionComplete, sce.Session.Status)
	default:
		t.Fatal("expected a session-completed event on the bus")
	}
}

// failingSource yields its bars then errors.
type failingSource struct {
	bars []types.Bar
	pos  int
	err  error
}

func (s *failingSource) Next(ctx context.Context) (types.Bar, bool, error) {
	if s.pos < len(s.bars) {
		b := s.bars[s.pos]
		s.pos++
		return b, true, nil
	}
	return types.Bar{}, false, s.err
}

func (s *failingSource) Close() error { return nil }
