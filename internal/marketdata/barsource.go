package marketdata

import (
	"context"

	"github.com/bikeshrana/breakout-trader-go/internal/core/clock"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// ReplaySource replays a fixed bar set through a simulated clock. The
// clock is advanced to each bar's timestamp before the consumer sees
// the bar, and to endOfSession once the bars run out, so the session
// cut-off is reached without wall time passing.
type ReplaySource struct {
	bars         []types.Bar
	pos          int
	clk          *clock.SimulatedClock
	endOfSession int64
}

// NewReplaySource builds a restartable source over the given bars.
// Bars are normalized (grid-aligned, sorted, deduplicated) up front.
func NewReplaySource(bars []types.Bar, clk *clock.SimulatedClock, endOfSession int64) *ReplaySource {
	return &ReplaySource{
		bars:         Normalize(bars),
		clk:          clk,
		endOfSession: endOfSession,
	}
}

// Next yields the next bar, driving the simulated clock forward.
func (s *ReplaySource) Next(ctx context.Context) (types.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Bar{}, false, err
	}

	if s.pos >= len(s.bars) {
		s.clk.Advance(s.endOfSession)
		return types.Bar{}, false, nil
	}

	bar := s.bars[s.pos]
	s.pos++
	s.clk.Advance(bar.Timestamp)
	return bar, true, nil
}

// Restart rewinds the replay to the first bar.
func (s *ReplaySource) Restart() {
	s.pos = 0
}

// Close is a no-op for replays.
func (s *ReplaySource) Close() error {
	return nil
}

// LiveSource adapts a push bar stream into the pull BarSource
// contract. Bars arrive asynchronously on a bounded channel; Next
// blocks until one is available, the stream closes, or the context is
// canceled. Out-of-grid timestamps are aligned and a bar repeating the
// previous timestamp replaces it (the later delivery wins).
type LiveSource struct {
	in     <-chan types.Bar
	lastTS int64
}

// NewLiveSource wraps a subscription channel.
func NewLiveSource(in <-chan types.Bar) *LiveSource {
	return &LiveSource{in: in, lastTS: -1}
}

// Next blocks for the next bar from the feed.
func (s *LiveSource) Next(ctx context.Context) (types.Bar, bool, error) {
	for {
		select {
		case bar, open := <-s.in:
			if !open {
				return types.Bar{}, false, nil
			}
			bar.Timestamp = types.AlignToGrid(bar.Timestamp)
			if bar.BarSizeMinutes == 0 {
				bar.BarSizeMinutes = types.BarSizeMinutes
			}
			if bar.Timestamp < s.lastTS {
				// Stale delivery; the engine already consumed a later
				// bar. Drop it.
				continue
			}
			s.lastTS = bar.Timestamp
			return bar, true, nil
		case <-ctx.Done():
			return types.Bar{}, false, ctx.Err()
		}
	}
}

// Close is a no-op; the owning provider closes the channel.
func (s *LiveSource) Close() error {
	return nil
}
