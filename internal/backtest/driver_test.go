package backtest

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikeshrana/breakout-trader-go/internal/calendar"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/core/session"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

type memStorage struct {
	mu       sync.Mutex
	existing map[string]bool
	saved    []*types.SessionContext
}

func (s *memStorage) HasCompletedSession(_ context.Context, date, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[date+"_"+symbol], nil
}

func (s *memStorage) SaveSession(_ context.Context, sc *types.SessionContext, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, sc)
	return nil
}

type memBars struct {
	bars map[string][]types.Bar
}

func (b *memBars) GetBars(_ context.Context, symbol string, _, _ int64) ([]types.Bar, error) {
	return b.bars[symbol], nil
}

func choppyDay(t *testing.T, date string) []types.Bar {
	t.Helper()
	mk := func(clock string, open, high, low, close int64) types.Bar {
		ts, err := session.ETToUTC(date, clock)
		require.NoError(t, err)
		return types.Bar{
			Symbol: "SPY", Timestamp: ts,
			Open: open, High: high, Low: low, Close: close,
			Volume: 100, Completed: true, BarSizeMinutes: 5,
		}
	}
	return []types.Bar{
		mk("09:30", 50000, 50200, 49900, 50100),
		mk("10:00", 50050, 50150, 49950, 50000),
	}
}

func newDriver(storage *memStorage, bars *memBars, cal calendar.Calendar, force bool) *Driver {
	return NewDriver(storage, bars, cal, config.DefaultStrategy(), nil,
		config.BacktestConfig{Workers: 2, Force: force}, zerolog.Nop())
}

func TestDriverRunsAndSaves(t *testing.T) {
	storage := &memStorage{existing: map[string]bool{}}
	bars := &memBars{bars: map[string][]types.Bar{"SPY": choppyDay(t, "2024-06-17")}}
	d := newDriver(storage, bars, calendar.NewUSEquities(), false)

	results := d.Run(context.Background(), []Job{{Date: "2024-06-17", Symbol: "SPY"}})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, types.SessionNoTrade, results[0].Status)
	assert.Len(t, storage.saved, 1)
}

func TestDriverSkipsWeekend(t *testing.T) {
	storage := &memStorage{existing: map[string]bool{}}
	bars := &memBars{bars: map[string][]types.Bar{}}
	d := newDriver(storage, bars, calendar.NewUSEquities(), false)

	results := d.Run(context.Background(), []Job{{Date: "2024-06-16", Symbol: "SPY"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, "not a trading day", results[0].Reason)
	assert.Empty(t, storage.saved)
}

func TestDriverSkipsStoredSessionUnlessForced(t *testing.T) {
	storage := &memStorage{existing: map[string]bool{"2024-06-17_SPY": true}}
	bars := &memBars{bars: map[string][]types.Bar{"SPY": choppyDay(t, "2024-06-17")}}

	d := newDriver(storage, bars, calendar.NewUSEquities(), false)
	results := d.Run(context.Background(), []Job{{Date: "2024-06-17", Symbol: "SPY"}})
	assert.True(t, results[0].Skipped)
	assert.Empty(t, storage.saved)

	forced := newDriver(storage, bars, calendar.NewUSEquities(), true)
	results = forced.Run(context.Background(), []Job{{Date: "2024-06-17", Symbol: "SPY"}})
	assert.False(t, results[0].Skipped)
	assert.Len(t, storage.saved, 1)
}

func TestDriverSkipsEmptyDays(t *testing.T) {
	storage := &memStorage{existing: map[string]bool{}}
	bars := &memBars{bars: map[string][]types.Bar{}}
	d := newDriver(storage, bars, calendar.NewUSEquities(), false)

	results := d.Run(context.Background(), []Job{{Date: "2024-06-17", Symbol: "SPY"}})
	assert.True(t, results[0].Skipped)
	assert.Equal(t, "no bars", results[0].Reason)
}

func TestDriverManyJobsAcrossWorkers(t *testing.T) {
	storage := &memStorage{existing: map[string]bool{}}
	bars := &memBars{bars: map[string][]types.Bar{
		"SPY": choppyDay(t, "2024-06-17"),
		"QQQ": choppyDay(t, "2024-06-17"),
	}}
	d := newDriver(storage, bars, calendar.NewUSEquities(), false)

	jobs := []Job{
		{Date: "2024-06-17", Symbol: "SPY"},
		{Date: "2024-06-17", Symbol: "QQQ"},
		{Date: "2024-06-16", Symbol: "SPY"}, // weekend
	}
	results := d.Run(context.Background(), jobs)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.True(t, results[2].Skipped)
	assert.Len(t, storage.saved, 2)
}
