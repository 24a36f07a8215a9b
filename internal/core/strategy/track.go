package strategy

import (
	"math"

	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// trackPhase is the sub-state of one direction track while monitoring.
type trackPhase string

const (
	phaseWatching       trackPhase = "watching"
	phaseBreakDetected  trackPhase = "break_detected"
	phaseRetestDetected trackPhase = "retest_detected"
	phasePositionOpen   trackPhase = "position_open"
	phaseResolved       trackPhase = "resolved"
	phaseSuperseded     trackPhase = "superseded"
	phaseExhausted      trackPhase = "max_attempts_exhausted"
)

// track holds the independent state of one direction. The long and
// short tracks run over the same bar stream and only interact through
// the machine's activeDirection.
type track struct {
	dir           types.Direction
	phase         trackPhase
	breakAttempts int

	// Open-position state, reset on each entry.
	tradeIdx       int
	reached1R      bool
	reached2R      bool
	reached3R      bool
	ts1R           int64
	ts2R           int64
	ts3R           int64
	firstThreshold int
	maxFavorableR  float64
	maxAdverseR    float64
	barsHeld       int
}

func newTrack(dir types.Direction) *track {
	return &track{dir: dir, phase: phaseWatching, tradeIdx: -1}
}

func (t *track) terminal() bool {
	switch t.phase {
	case phaseResolved, phaseSuperseded, phaseExhausted:
		return true
	}
	return false
}

// onMonitorBar delivers one bar to both tracks in a fixed order: the
// accumulator region already recorded it, then long, then short.
func (m *Machine) onMonitorBar(bar types.Bar) {
	m.stepTrack(m.long, bar)
	m.stepTrack(m.short, bar)
}

// stepTrack advances one track by one bar. Guards are evaluated in the
// documented priority order; the first match wins.
func (m *Machine) stepTrack(t *track, bar types.Bar) {
	if t.terminal() {
		return
	}

	// Supersession is a state-based condition checked before any bar
	// guard: once the other side holds the trade, this track gives up.
	if m.activeDirection != "" && m.activeDirection != t.dir {
		t.phase = phaseSuperseded
		m.logger.Debug().Str("track", string(t.dir)).Msg("Track superseded")
		return
	}

	switch t.phase {
	case phaseWatching:
		if m.breakBeyond(t.dir, bar) {
			// A confirmation failure returns here without touching the
			// attempts counter, so the cap must hold at the next break
			// too.
			if t.breakAttempts >= m.opts.MaxBreakAttempts {
				t.phase = phaseExhausted
				m.logger.Info().
					Str("track", string(t.dir)).
					Int("attempts", t.breakAttempts).
					Msg("Break attempts exhausted")
				return
			}
			m.emitSignal(t.dir, types.SignalBreak, m.breakPrice(t.dir, bar), bar, t.breakAttempts+1)
			t.breakAttempts++
			t.phase = phaseBreakDetected
		}

	case phaseBreakDetected:
		switch {
		case m.touchesEdge(t.dir, bar) && m.closesBeyond(t.dir, bar):
			// Retest and confirmation inside a single bar.
			m.emitSignal(t.dir, types.SignalRetest, m.retestPrice(t.dir, bar), bar, t.breakAttempts)
			sig := m.emitSignal(t.dir, types.SignalConfirmation, bar.Close, bar, t.breakAttempts)
			m.openPosition(t, bar, sig)

		case !m.closesBeyond(t.dir, bar) && t.breakAttempts >= m.opts.MaxBreakAttempts:
			m.emitSignal(t.dir, types.SignalBreakFailure, bar.Close, bar, t.breakAttempts)
			t.phase = phaseExhausted
			m.logger.Info().
				Str("track", string(t.dir)).
				Int("attempts", t.breakAttempts).
				Msg("Break attempts exhausted")

		case !m.closesBeyond(t.dir, bar):
			m.emitSignal(t.dir, types.SignalBreakFailure, bar.Close, bar, t.breakAttempts)
			t.phase = phaseWatching

		case m.touchesEdge(t.dir, bar):
			m.emitSignal(t.dir, types.SignalRetest, m.retestPrice(t.dir, bar), bar, t.breakAttempts)
			t.phase = phaseRetestDetected
		}

	case phaseRetestDetected:
		if m.closesBeyond(t.dir, bar) {
			sig := m.emitSignal(t.dir, types.SignalConfirmation, bar.Close, bar, t.breakAttempts)
			m.openPosition(t, bar, sig)
		} else {
			// The earlier break keeps its attempt number.
			m.emitSignal(t.dir, types.SignalBreakFailure, bar.Close, bar, t.breakAttempts)
			t.phase = phaseWatching
		}

	case phasePositionOpen:
		m.managePosition(t, bar)
	}
}

// Two-tier price filter: breaks read the bar extremes, every other
// condition reads the close.

func (m *Machine) breakBeyond(dir types.Direction, bar types.Bar) bool {
	if dir == types.DirectionLong {
		return bar.High > m.zone.Resistance
	}
	return bar.Low < m.zone.Support
}

func (m *Machine) touchesEdge(dir types.Direction, bar types.Bar) bool {
	if dir == types.DirectionLong {
		return bar.Low <= m.zone.Resistance
	}
	return bar.High >= m.zone.Support
}

func (m *Machine) closesBeyond(dir types.Direction, bar types.Bar) bool {
	if dir == types.DirectionLong {
		return bar.Close > m.zone.Resistance
	}
	return bar.Close < m.zone.Support
}

func (m *Machine) breakPrice(dir types.Direction, bar types.Bar) int64 {
	if dir == types.DirectionLong {
		return bar.High
	}
	return bar.Low
}

func (m *Machine) retestPrice(dir types.Direction, bar types.Bar) int64 {
	if dir == types.DirectionLong {
		return bar.Low
	}
	return bar.High
}

func (m *Machine) emitSignal(dir types.Direction, typ types.SignalType, price int64, bar types.Bar, attempt int) types.Signal {
	sig := types.Signal{
		Direction:     dir,
		Type:          typ,
		Timestamp:     bar.Timestamp,
		Price:         price,
		TriggerBar:    bar,
		AttemptNumber: attempt,
	}
	m.signals = append(m.signals, sig)
	m.emit(events.NewSignalEvent(m.date, m.symbol, sig))

	m.logger.Info().
		Str("direction", string(dir)).
		Str("signal", string(typ)).
		Int64("price", price).
		Int("attempt", attempt).
		Msg("Signal emitted")

	return sig
}

// openPosition performs the atomic trade-entry updates: claim the
// active direction, construct the trade off the confirmation close,
// and reset the R-milestone flags.
func (m *Machine) openPosition(t *track, bar types.Bar, entrySignal types.Signal) {
	entry := bar.Close

	var stop int64
	if t.dir == types.DirectionLong {
		stop = m.zone.Support
	} else {
		stop = m.zone.Resistance
	}

	r := entry - stop
	if r < 0 {
		r = -r
	}
	if r == 0 {
		m.fail("zero r-value at entry")
		return
	}

	trade := types.Trade{
		ID:             types.TradeID(m.date, m.symbol, t.dir, t.breakAttempts),
		Symbol:         m.symbol,
		Direction:      t.dir,
		EntryPrice:     entry,
		InitialStop:    stop,
		CurrentStop:    stop,
		RValue:         r,
		Target1R:       m.targetPrice(t.dir, entry, r, m.opts.Targets.Target1RMultiple),
		Target2R:       m.targetPrice(t.dir, entry, r, m.opts.Targets.Target2RMultiple),
		Target3R:       m.targetPrice(t.dir, entry, r, m.opts.Targets.Target3RMultiple),
		EntryTimestamp: bar.Timestamp,
		Status:         types.TradeOpen,
		EntrySignal:    entrySignal,
	}

	m.activeDirection = t.dir
	m.trades = append(m.trades, trade)

	t.tradeIdx = len(m.trades) - 1
	t.reached1R, t.reached2R, t.reached3R = false, false, false
	t.ts1R, t.ts2R, t.ts3R = 0, 0, 0
	t.firstThreshold = 0
	t.maxFavorableR, t.maxAdverseR = 0, 0
	t.barsHeld = 0
	t.phase = phasePositionOpen

	m.emit(events.NewTradeOpenedEvent(trade))

	m.logger.Info().
		Str("trade_id", trade.ID).
		Int64("entry", entry).
		Int64("stop", stop).
		Int64("r_value", r).
		Msg("Position opened")
}

func (m *Machine) targetPrice(dir types.Direction, entry, r int64, multiple float64) int64 {
	offset := int64(math.Round(multiple * float64(r)))
	if dir == types.DirectionLong {
		return entry + offset
	}
	return entry - offset
}
