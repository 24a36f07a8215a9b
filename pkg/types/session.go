package types

import "fmt"

// Direction is the side of a breakout track or trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// SignalType classifies a strategy signal.
type SignalType string

const (
	SignalBreak        SignalType = "break"
	SignalRetest       SignalType = "retest"
	SignalConfirmation SignalType = "confirmation"
	SignalBreakFailure SignalType = "break_failure"
)

// ZoneStatus is the lifecycle state of a decision zone.
type ZoneStatus string

const (
	ZonePending           ZoneStatus = "pending"
	ZoneDefined           ZoneStatus = "defined"
	ZoneNoTradeChoppy     ZoneStatus = "no_trade_choppy"
	ZoneNoTradeDegenerate ZoneStatus = "no_trade_degenerate"
	ZoneExpired           ZoneStatus = "expired"
)

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen           TradeStatus = "open"
	TradeStoppedOut     TradeStatus = "stopped_out"
	TradeTargetHit      TradeStatus = "target_hit"
	TradeSessionExpired TradeStatus = "session_expired"
)

// OutcomeResult classifies how a closed trade resolved.
type OutcomeResult string

const (
	ResultLoss           OutcomeResult = "loss"
	ResultBreakevenStop  OutcomeResult = "breakeven_stop"
	ResultWin2R          OutcomeResult = "win_2r"
	ResultWin3R          OutcomeResult = "win_3r"
	ResultSessionTimeout OutcomeResult = "session_timeout"
)

// SessionStatus is the terminal (or in-flight) state of a session.
type SessionStatus string

const (
	SessionWaiting      SessionStatus = "waiting"
	SessionBuildingZone SessionStatus = "building_zone"
	SessionMonitoring   SessionStatus = "monitoring"
	SessionNoTrade      SessionStatus = "no_trade"
	SessionComplete     SessionStatus = "complete"
	SessionInterrupted  SessionStatus = "interrupted"
	SessionError        SessionStatus = "error"
)

// ExecutionMode says whether fills are routed to a real executor or mocked.
type ExecutionMode string

const (
	ExecutionLive ExecutionMode = "live"
	ExecutionMock ExecutionMode = "mock"
)

// DecisionZone is the price band derived from the opening bar.
// Resistance and support are cents; Spread = Resistance - Support.
type DecisionZone struct {
	Resistance int64      `json:"resistance"`
	Support    int64      `json:"support"`
	Spread     int64      `json:"spread"`
	Status     ZoneStatus `json:"status"`
	DefinedAt  int64      `json:"defined_at"`
	SourceBars []Bar      `json:"source_bars"`
}

// Midpoint returns the integer midpoint of the zone in cents.
func (z DecisionZone) Midpoint() int64 {
	return (z.Resistance + z.Support) / 2
}

// Signal is an append-only record of a strategy observation.
type Signal struct {
	Direction     Direction  `json:"direction"`
	Type          SignalType `json:"type"`
	Timestamp     int64      `json:"timestamp"`
	Price         int64      `json:"price"`
	TriggerBar    Bar        `json:"trigger_bar"`
	AttemptNumber int        `json:"attempt_number"`
}

// Trade is a logical position taken by the machine.
type Trade struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Direction      Direction   `json:"direction"`
	EntryPrice     int64       `json:"entry_price"`
	InitialStop    int64       `json:"initial_stop"`
	CurrentStop    int64       `json:"current_stop"`
	RValue         int64       `json:"r_value"`
	Target1R       int64       `json:"target_1r"`
	Target2R       int64       `json:"target_2r"`
	Target3R       int64       `json:"target_3r"`
	EntryTimestamp int64       `json:"entry_timestamp"`
	Status         TradeStatus `json:"status"`
	EntrySignal    Signal      `json:"entry_signal"`
}

// TradeID builds the stable identifier {date}_{symbol}_{direction}_{attempt}.
func TradeID(date, symbol string, dir Direction, attempt int) string {
	return fmt.Sprintf("%s_%s_%s_%d", date, symbol, dir, attempt)
}

// TradeOutcome records how a trade resolved.
type TradeOutcome struct {
	TradeID               string        `json:"trade_id"`
	Result                OutcomeResult `json:"result"`
	MaxFavorableR         float64       `json:"max_favorable_r"`
	MaxAdverseR           float64       `json:"max_adverse_r"`
	ExitPrice             int64         `json:"exit_price"`
	ExitTimestamp         int64         `json:"exit_timestamp"`
	RealizedR             float64       `json:"realized_r"`
	FirstThresholdReached int           `json:"first_threshold_reached"`
	Timestamp1R           int64         `json:"timestamp_1r"`
	Timestamp2R           int64         `json:"timestamp_2r"`
	Timestamp3R           int64         `json:"timestamp_3r"`
	TimestampStop         int64         `json:"timestamp_stop"`
	BarsHeld              int           `json:"bars_held"`
}

// SessionContext is the self-contained output record of one session.
// It exclusively owns its signals, trades, outcomes and bars.
type SessionContext struct {
	Date          string         `json:"date"`
	Symbol        string         `json:"symbol"`
	Zone          *DecisionZone  `json:"zone,omitempty"`
	Signals       []Signal       `json:"signals"`
	Trades        []Trade        `json:"trades"`
	Outcomes      []TradeOutcome `json:"outcomes"`
	AllBars       []Bar          `json:"all_bars"`
	Status        SessionStatus  `json:"status"`
	IsBacktest    bool           `json:"is_backtest"`
	ExecutionMode ExecutionMode  `json:"execution_mode"`
	StartedAt     int64          `json:"started_at"`
	CompletedAt   int64          `json:"completed_at"`
	Error         string         `json:"error,omitempty"`
}

// OpenTrade returns the currently open trade, if any.
func (sc *SessionContext) OpenTrade() *Trade {
	for i := range sc.Trades {
		if sc.Trades[i].Status == TradeOpen {
			return &sc.Trades[i]
		}
	}
	return nil
}
