package marketdata

import (
	"context"
	"testing"

	"github.com/bikeshrana/breakout-trader-go/internal/core/clock"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

func mkBar(ts, close int64) types.Bar {
	return types.Bar{
		Symbol:         "SPY",
		Timestamp:      ts,
		Open:           close,
		High:           close + 10,
		Low:            close - 10,
		Close:          close,
		Volume:         100,
		Completed:      true,
		BarSizeMinutes: 5,
	}
}

func TestNormalizeSortsAlignsAndDedupes(t *testing.T) {
	grid := types.BarSizeMillis
	bars := []types.Bar{
		mkBar(2*grid, 101),
		mkBar(1*grid+7, 102), // off grid, aligns down to 1*grid
		mkBar(1*grid, 103),   // duplicate after alignment; later delivery
		mkBar(3*grid, 104),
	}

	out := Normalize(bars)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Timestamp >= out[i].Timestamp {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}
	if out[0].Timestamp != 1*grid {
		t.Fatalf("first ts = %d, want %d", out[0].Timestamp, grid)
	}
	if out[0].Close != 103 {
		t.Fatalf("dedupe kept close %d, want the later delivery 103", out[0].Close)
	}
}

func TestNormalizeFillsBarSize(t *testing.T) {
	b := mkBar(0, 100)
	b.BarSizeMinutes = 0
	out := Normalize([]types.Bar{b})
	if out[0].BarSizeMinutes != types.BarSizeMinutes {
		t.Fatalf("BarSizeMinutes = %d, want %d", out[0].BarSizeMinutes, types.BarSizeMinutes)
	}
}

func TestReplaySourceAdvancesClockPerBar(t *testing.T) {
	grid := types.BarSizeMillis
	clk := clock.NewSimulatedClock(0)
	src := NewReplaySource([]types.Bar{mkBar(grid, 100), mkBar(2*grid, 101)}, clk, 10*grid)

	bar, ok, err := src.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next = %v %v", ok, err)
	}
	if clk.Now() != bar.Timestamp {
		t.Fatalf("clock %d, want %d (advanced before delivery)", clk.Now(), bar.Timestamp)
	}

	if _, ok, _ = src.Next(context.Background()); !ok {
		t.Fatal("second bar missing")
	}

	// Exhaustion jumps the clock to the end of session.
	if _, ok, _ = src.Next(context.Background()); ok {
		t.Fatal("expected exhaustion")
	}
	if clk.Now() != 10*grid {
		t.Fatalf("clock %d, want end-of-session %d", clk.Now(), 10*grid)
	}
}

func TestReplaySourceRestart(t *testing.T) {
	grid := types.BarSizeMillis
	clk := clock.NewSimulatedClock(0)
	src := NewReplaySource([]types.Bar{mkBar(grid, 100)}, clk, 2*grid)

	if _, ok, _ := src.Next(context.Background()); !ok {
		t.Fatal("first pass missing bar")
	}
	src.Restart()
	if _, ok, _ := src.Next(context.Background()); !ok {
		t.Fatal("restart did not rewind")
	}
}

func TestReplaySourceHonorsCancel(t *testing.T) {
	clk := clock.NewSimulatedClock(0)
	src := NewReplaySource([]types.Bar{mkBar(0, 100)}, clk, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := src.Next(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLiveSourceDeliversAndCloses(t *testing.T) {
	in := make(chan types.Bar, 2)
	src := NewLiveSource(in)

	in <- mkBar(types.BarSizeMillis, 100)
	close(in)

	bar, ok, err := src.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next = %v %v", ok, err)
	}
	if bar.Close != 100 {
		t.Fatalf("close = %d", bar.Close)
	}

	if _, ok, err = src.Next(context.Background()); ok || err != nil {
		t.Fatalf("closed stream should end cleanly, got ok=%v err=%v", ok, err)
	}
}

func TestLiveSourceDropsStaleBars(t *testing.T) {
	grid := types.BarSizeMillis
	in := make(chan types.Bar, 3)
	src := NewLiveSource(in)

	in <- mkBar(2*grid, 100)
	in <- mkBar(1*grid, 90) // stale regression
	in <- mkBar(3*grid, 110)
	close(in)

	first, _, _ := src.Next(context.Background())
	second, ok, _ := src.Next(context.Background())
	if !ok {
		t.Fatal("expected a second bar")
	}
	if first.Timestamp != 2*grid || second.Timestamp != 3*grid {
		t.Fatalf("stale bar not dropped: %d then %d", first.Timestamp, second.Timestamp)
	}
}

func TestLiveSourceUnblocksOnCancel(t *testing.T) {
	src := NewLiveSource(make(chan types.Bar))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := src.Next(ctx)
		done <- err
	}()
	cancel()

	if err := <-done; err == nil {
		t.Fatal("expected context error")
	}
}
