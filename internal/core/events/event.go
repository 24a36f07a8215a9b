package events

import (
	"time"

	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	// Inputs driving the strategy machine.

	// EventTypeSessionStart opens a trading session
	EventTypeSessionStart EventType = "session_start"

	// EventTypeNewBar carries one completed 5-minute bar
	EventTypeNewBar EventType = "new_bar"

	// EventTypeSessionEnd closes the session at the execution cut-off
	EventTypeSessionEnd EventType = "session_end"

	// EventTypeError surfaces a fatal upstream failure
	EventTypeError EventType = "error"

	// Outputs emitted by the machine for downstream consumers
	// (execution, audit, metrics, dashboard).

	// EventTypeSignal represents a break/retest/confirmation observation
	EventTypeSignal EventType = "signal"

	// EventTypeTradeOpened represents a logical position entry
	EventTypeTradeOpened EventType = "trade_opened"

	// EventTypeStopMoved represents a trailing-stop adjustment
	EventTypeStopMoved EventType = "stop_moved"

	// EventTypeTradeClosed represents a resolved trade with its outcome
	EventTypeTradeClosed EventType = "trade_closed"

	// EventTypeSessionCompleted represents a finished session record
	EventTypeSessionCompleted EventType = "session_completed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType {
	return e.EventType
}

func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SessionStartEvent opens a session for one (date, symbol).
type SessionStartEvent struct {
	BaseEvent
	Date   string
	Symbol string
}

func NewSessionStartEvent(date, symbol string) *SessionStartEvent {
	return &SessionStartEvent{
		BaseEvent: BaseEvent{EventType: EventTypeSessionStart, EventTime: time.Now()},
		Date:      date,
		Symbol:    symbol,
	}
}

// NewBarEvent carries one bar into the machine.
type NewBarEvent struct {
	BaseEvent
	Bar types.Bar
}

func NewNewBarEvent(bar types.Bar) *NewBarEvent {
	return &NewBarEvent{
		BaseEvent: BaseEvent{EventType: EventTypeNewBar, EventTime: time.Now()},
		Bar:       bar,
	}
}

// SessionEndEvent ends the session.
type SessionEndEvent struct {
	BaseEvent
}

func NewSessionEndEvent() *SessionEndEvent {
	return &SessionEndEvent{
		BaseEvent: BaseEvent{EventType: EventTypeSessionEnd, EventTime: time.Now()},
	}
}

// ErrorEvent carries a fatal error into the machine.
type ErrorEvent struct {
	BaseEvent
	Message string
}

func NewErrorEvent(message string) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: BaseEvent{EventType: EventTypeError, EventTime: time.Now()},
		Message:   message,
	}
}

// SignalEvent publishes a strategy signal to bus subscribers.
type SignalEvent struct {
	BaseEvent
	Date   string
	Symbol string
	Signal types.Signal
}

func NewSignalEvent(date, symbol string, signal types.Signal) *SignalEvent {
	return &SignalEvent{
		BaseEvent: BaseEvent{EventType: EventTypeSignal, EventTime: time.Now()},
		Date:      date,
		Symbol:    symbol,
		Signal:    signal,
	}
}

// TradeOpenedEvent publishes a position entry.
type TradeOpenedEvent struct {
	BaseEvent
	Trade types.Trade
}

func NewTradeOpenedEvent(trade types.Trade) *TradeOpenedEvent {
	return &TradeOpenedEvent{
		BaseEvent: BaseEvent{EventType: EventTypeTradeOpened, EventTime: time.Now()},
		Trade:     trade,
	}
}

// StopMovedEvent publishes a trailing-stop move.
type StopMovedEvent struct {
	BaseEvent
	TradeID string
	OldStop int64
	NewStop int64
	MovedAt int64
}

func NewStopMovedEvent(tradeID string, oldStop, newStop, movedAt int64) *StopMovedEvent {
	return &StopMovedEvent{
		BaseEvent: BaseEvent{EventType: EventTypeStopMoved, EventTime: time.Now()},
		TradeID:   tradeID,
		OldStop:   oldStop,
		NewStop:   newStop,
		MovedAt:   movedAt,
	}
}

// TradeClosedEvent publishes a resolved trade together with its outcome.
type TradeClosedEvent struct {
	BaseEvent
	Trade   types.Trade
	Outcome types.TradeOutcome
}

func NewTradeClosedEvent(trade types.Trade, outcome types.TradeOutcome) *TradeClosedEvent {
	return &TradeClosedEvent{
		BaseEvent: BaseEvent{EventType: EventTypeTradeClosed, EventTime: time.Now()},
		Trade:     trade,
		Outcome:   outcome,
	}
}

// SessionCompletedEvent publishes a finished session record.
type SessionCompletedEvent struct {
	BaseEvent
	Session *types.SessionContext
}

func NewSessionCompletedEvent(session *types.SessionContext) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		BaseEvent: BaseEvent{EventType: EventTypeSessionCompleted, EventTime: time.Now()},
		Session:   session,
	}
}
