package strategy

import (
	"math"

	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// managePosition evaluates the in-flight trade against one bar. Guards
// run highest target first; a single bar satisfying several thresholds
// records only the highest unmet one.
func (m *Machine) managePosition(t *track, bar types.Bar) {
	trade := &m.trades[t.tradeIdx]

	t.barsHeld++
	t.updateExcursions(trade, bar)

	switch {
	case m.closeAtOrBeyond(t.dir, bar.Close, trade.Target3R) && !t.reached3R:
		t.reached3R = true
		t.ts3R = bar.Timestamp
		t.markThreshold(3)
		m.closePosition(t, trade, types.ResultWin3R, trade.Target3R, bar.Timestamp, 0, types.TradeTargetHit)

	case m.closeAtOrBeyond(t.dir, bar.Close, trade.Target2R) && !t.reached2R:
		t.reached2R = true
		t.ts2R = bar.Timestamp
		t.markThreshold(2)
		m.logger.Info().Str("trade_id", trade.ID).Msg("2R milestone reached")

	case m.closeAtOrBeyond(t.dir, bar.Close, trade.Target1R) && !t.reached1R:
		t.reached1R = true
		t.ts1R = bar.Timestamp
		t.markThreshold(1)
		if m.opts.TrailingStopAt1R && trade.CurrentStop != trade.EntryPrice {
			old := trade.CurrentStop
			trade.CurrentStop = trade.EntryPrice
			m.emit(events.NewStopMovedEvent(trade.ID, old, trade.CurrentStop, bar.Timestamp))
			m.logger.Info().
				Str("trade_id", trade.ID).
				Int64("stop", trade.CurrentStop).
				Msg("1R reached, stop trailed to entry")
		}

	case m.stopHit(t.dir, bar.Close, trade.CurrentStop):
		result := types.ResultLoss
		switch {
		case t.reached2R:
			result = types.ResultWin2R
		case trade.CurrentStop == trade.EntryPrice:
			result = types.ResultBreakevenStop
		}
		m.closePosition(t, trade, result, bar.Close, bar.Timestamp, bar.Timestamp, types.TradeStoppedOut)
	}
}

// closeOpenPositionAtSessionEnd resolves a still-open trade when the
// session reaches its execution cut-off.
func (m *Machine) closeOpenPositionAtSessionEnd() {
	for _, t := range []*track{m.long, m.short} {
		if t.phase != phasePositionOpen {
			continue
		}
		trade := &m.trades[t.tradeIdx]
		last := m.allBars[len(m.allBars)-1]
		m.closePosition(t, trade, types.ResultSessionTimeout, last.Close, last.Timestamp, 0, types.TradeSessionExpired)
	}
}

// closePosition records the outcome, finalizes the trade, and parks the
// track in its resolved sub-state.
func (m *Machine) closePosition(t *track, trade *types.Trade, result types.OutcomeResult, exitPrice, exitTs, tsStop int64, status types.TradeStatus) {
	trade.Status = status

	outcome := types.TradeOutcome{
		TradeID:               trade.ID,
		Result:                result,
		MaxFavorableR:         round2(t.maxFavorableR),
		MaxAdverseR:           round2(t.maxAdverseR),
		ExitPrice:             exitPrice,
		ExitTimestamp:         exitTs,
		RealizedR:             round2(signedR(trade, exitPrice)),
		FirstThresholdReached: t.firstThreshold,
		Timestamp1R:           t.ts1R,
		Timestamp2R:           t.ts2R,
		Timestamp3R:           t.ts3R,
		TimestampStop:         tsStop,
		BarsHeld:              t.barsHeld,
	}

	m.outcomes = append(m.outcomes, outcome)
	t.phase = phaseResolved

	m.emit(events.NewTradeClosedEvent(*trade, outcome))

	m.logger.Info().
		Str("trade_id", trade.ID).
		Str("result", string(result)).
		Float64("realized_r", outcome.RealizedR).
		Int("bars_held", outcome.BarsHeld).
		Msg("Position closed")
}

// updateExcursions tracks running max-favorable and max-adverse R off
// the bar extremes, not the close.
func (t *track) updateExcursions(trade *types.Trade, bar types.Bar) {
	var favorable, adverse float64
	if t.dir == types.DirectionLong {
		favorable = float64(bar.High-trade.EntryPrice) / float64(trade.RValue)
		adverse = float64(trade.EntryPrice-bar.Low) / float64(trade.RValue)
	} else {
		favorable = float64(trade.EntryPrice-bar.Low) / float64(trade.RValue)
		adverse = float64(bar.High-trade.EntryPrice) / float64(trade.RValue)
	}
	if favorable > t.maxFavorableR {
		t.maxFavorableR = favorable
	}
	if adverse > t.maxAdverseR {
		t.maxAdverseR = adverse
	}
}

func (t *track) markThreshold(level int) {
	if t.firstThreshold == 0 {
		t.firstThreshold = level
	}
}

func (m *Machine) closeAtOrBeyond(dir types.Direction, close, target int64) bool {
	if dir == types.DirectionLong {
		return close >= target
	}
	return close <= target
}

func (m *Machine) stopHit(dir types.Direction, close, stop int64) bool {
	if dir == types.DirectionLong {
		return close <= stop
	}
	return close >= stop
}

// signedR converts an exit price into an R-multiple, positive in the
// profit direction.
func signedR(trade *types.Trade, price int64) float64 {
	if trade.Direction == types.DirectionLong {
		return float64(price-trade.EntryPrice) / float64(trade.RValue)
	}
	return float64(trade.EntryPrice-price) / float64(trade.RValue)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
