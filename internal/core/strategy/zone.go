package strategy

import (
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// onZoneBar handles a bar while the zone is being built. Bars before
// the zone_end boundary accumulate; the first bar at or past the
// boundary freezes the zone and is itself the choppiness probe.
func (m *Machine) onZoneBar(bar types.Bar) {
	if bar.Timestamp < m.zoneEndUTC {
		m.zoneBars = append(m.zoneBars, bar)
		return
	}

	if len(m.zoneBars) == 0 {
		m.fail("zone window closed without any bars")
		return
	}

	// The zone derives from the opening bar only; the later zone-window
	// bars are kept as source material for the record.
	first := m.zoneBars[0]
	m.zone = &types.DecisionZone{
		Resistance: first.High,
		Support:    first.Low,
		Spread:     first.High - first.Low,
		Status:     types.ZoneDefined,
		DefinedAt:  bar.Timestamp,
		SourceBars: append([]types.Bar(nil), m.zoneBars...),
	}

	m.logger.Info().
		Int64("resistance", m.zone.Resistance).
		Int64("support", m.zone.Support).
		Int64("spread", m.zone.Spread).
		Msg("Decision zone defined")

	m.state = StateEvaluatingZone
	m.evaluateZone(bar)
}

// evaluateZone runs the transient EVALUATING_ZONE checks against the
// boundary bar. Choppy wins over degenerate when both hold.
func (m *Machine) evaluateZone(boundary types.Bar) {
	zone := m.zone

	if boundary.Close > zone.Support && boundary.Close < zone.Resistance {
		zone.Status = types.ZoneNoTradeChoppy
		m.state = StateNoTrade
		m.logger.Info().
			Int64("close", boundary.Close).
			Msg("Zone choppy, no trade today")
		return
	}

	if m.zoneDegenerate() {
		zone.Status = types.ZoneNoTradeDegenerate
		m.state = StateNoTrade
		m.logger.Info().
			Int64("spread", zone.Spread).
			Msg("Zone degenerate, no trade today")
		return
	}

	m.state = StateMonitoring
	m.logger.Info().Msg("Zone accepted, monitoring for breakouts")
}

func (m *Machine) zoneDegenerate() bool {
	zone := m.zone
	if zone.Spread < m.opts.MinZoneSpreadCents {
		return true
	}
	mid := zone.Midpoint()
	if mid == 0 {
		return true
	}
	return float64(zone.Spread)/float64(mid) > m.opts.MaxZoneSpreadPercent/100
}
