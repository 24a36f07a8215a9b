package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// State is the top-level machine state.
type State string

const (
	StateIdle           State = "idle"
	StateBuildingZone   State = "building_zone"
	StateEvaluatingZone State = "evaluating_zone"
	StateMonitoring     State = "monitoring"
	StateNoTrade        State = "no_trade"
	StateComplete       State = "complete"
	StateError          State = "error"
)

// Machine is the two-track breakout state machine. It is purely
// sequential: one event at a time, no I/O, no internal goroutines.
// Apply mutates the machine and returns the events it emitted so the
// caller can fan them out.
type Machine struct {
	logger zerolog.Logger
	opts   config.StrategyConfig

	date   string
	symbol string

	// zoneEndUTC is the UTC-ms boundary at which the zone is computed
	// (the zone_end_time session window, converted by the runner).
	zoneEndUTC int64

	state State

	zone     *types.DecisionZone
	zoneBars []types.Bar
	allBars  []types.Bar
	signals  []types.Signal
	trades   []types.Trade
	outcomes []types.TradeOutcome
	errMsg   string

	// activeDirection is set when either track opens a trade; the
	// opposite track supersedes itself at its next guard check.
	activeDirection types.Direction

	long  *track
	short *track

	// emitted collects events produced while handling the current
	// input; Apply drains it.
	emitted []events.Event
}

// NewMachine creates a machine for one (date, symbol) session. Options
// must already be validated; zoneEndUTC is the zone_end_time window
// boundary in UTC milliseconds.
func NewMachine(date, symbol string, opts config.StrategyConfig, zoneEndUTC int64, logger zerolog.Logger) *Machine {
	return &Machine{
		logger:     logger.With().Str("date", date).Str("symbol", symbol).Logger(),
		opts:       opts,
		date:       date,
		symbol:     symbol,
		zoneEndUTC: zoneEndUTC,
		state:      StateIdle,
		long:       newTrack(types.DirectionLong),
		short:      newTrack(types.DirectionShort),
	}
}

// State returns the current top-level state.
func (m *Machine) State() State {
	return m.state
}

// IsTerminal reports whether the machine accepts no further input.
func (m *Machine) IsTerminal() bool {
	switch m.state {
	case StateNoTrade, StateComplete, StateError:
		return true
	}
	return false
}

// ErrorMessage returns the stashed error when the machine is in
// StateError.
func (m *Machine) ErrorMessage() string {
	return m.errMsg
}

// Apply feeds one event into the machine and returns the events it
// emitted in response. Events sent to a terminal machine are ignored.
func (m *Machine) Apply(ev events.Event) []events.Event {
	m.emitted = nil

	switch e := ev.(type) {
	case *events.SessionStartEvent:
		m.onSessionStart(e)
	case *events.NewBarEvent:
		m.onNewBar(e.Bar)
	case *events.SessionEndEvent:
		m.onSessionEnd()
	case *events.ErrorEvent:
		m.fail(e.Message)
	default:
		m.logger.Warn().Str("event_type", string(ev.Type())).Msg("Unhandled event type")
	}

	out := m.emitted
	m.emitted = nil
	return out
}

func (m *Machine) onSessionStart(e *events.SessionStartEvent) {
	if m.state != StateIdle {
		m.logger.Warn().Str("state", string(m.state)).Msg("SessionStart ignored outside idle")
		return
	}

	m.state = StateBuildingZone
	m.zone = &types.DecisionZone{Status: types.ZonePending}

	m.logger.Info().Msg("Session started, building zone")
}

func (m *Machine) onNewBar(bar types.Bar) {
	if m.IsTerminal() {
		return
	}

	if !bar.Completed {
		// Incomplete bars are ticks; the machine only trades closes.
		return
	}

	if err := bar.Validate(); err != nil {
		m.fail(err.Error())
		return
	}

	if ok := m.recordBar(bar); !ok {
		return
	}

	switch m.state {
	case StateBuildingZone:
		m.onZoneBar(bar)
	case StateMonitoring:
		m.onMonitorBar(bar)
	default:
		m.logger.Warn().Str("state", string(m.state)).Msg("Bar ignored in current state")
	}
}

// recordBar appends the bar to the accumulator region, enforcing
// monotone ordering. A bar sharing the previous timestamp is a
// duplicate delivery: the stored bar is overwritten and the guards are
// not re-run. Returns false when the bar should not be processed
// further.
func (m *Machine) recordBar(bar types.Bar) bool {
	if n := len(m.allBars); n > 0 {
		last := m.allBars[n-1].Timestamp
		if bar.Timestamp < last {
			m.fail(fmt.Sprintf("bar ordering violation: %d after %d", bar.Timestamp, last))
			return false
		}
		if bar.Timestamp == last {
			m.allBars[n-1] = bar
			return false
		}
	}
	m.allBars = append(m.allBars, bar)
	return true
}

func (m *Machine) onSessionEnd() {
	switch m.state {
	case StateBuildingZone:
		// Session ended before the zone window closed.
		if m.zone != nil && m.zone.Status == types.ZonePending {
			m.zone.Status = types.ZoneExpired
		}
		m.state = StateComplete
		m.logger.Info().Msg("Session ended before zone definition")

	case StateMonitoring:
		m.closeOpenPositionAtSessionEnd()
		m.state = StateComplete
		m.logger.Info().
			Int("trades", len(m.trades)).
			Int("signals", len(m.signals)).
			Msg("Session complete")

	case StateIdle:
		m.state = StateComplete

	default:
		// Terminal already.
	}
}

func (m *Machine) fail(message string) {
	if m.IsTerminal() {
		return
	}
	m.errMsg = message
	m.state = StateError
	m.logger.Error().Str("reason", message).Msg("Machine entered error state")
}

func (m *Machine) emit(ev events.Event) {
	m.emitted = append(m.emitted, ev)
}

// SessionStatus maps the machine state onto the session status enum.
func (m *Machine) SessionStatus() types.SessionStatus {
	switch m.state {
	case StateIdle:
		return types.SessionWaiting
	case StateBuildingZone, StateEvaluatingZone:
		return types.SessionBuildingZone
	case StateMonitoring:
		return types.SessionMonitoring
	case StateNoTrade:
		return types.SessionNoTrade
	case StateComplete:
		return types.SessionComplete
	case StateError:
		return types.SessionError
	}
	return types.SessionWaiting
}

// Harvest deep-copies the machine's accumulated state into the given
// session context. Purely mechanical; no computation.
func (m *Machine) Harvest(sc *types.SessionContext) {
	if m.zone != nil {
		zone := *m.zone
		zone.SourceBars = append([]types.Bar(nil), m.zone.SourceBars...)
		sc.Zone = &zone
	}
	sc.Signals = append([]types.Signal(nil), m.signals...)
	sc.Trades = append([]types.Trade(nil), m.trades...)
	sc.Outcomes = append([]types.TradeOutcome(nil), m.outcomes...)
	sc.AllBars = append([]types.Bar(nil), m.allBars...)
	sc.Error = m.errMsg
}
