package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeSessionStarted EventType = "session_started"
	EventTypeSignalEmitted  EventType = "signal_emitted"
	EventTypeTradeOpened    EventType = "trade_opened"
	EventTypeStopMoved      EventType = "stop_moved"
	EventTypeTradeClosed    EventType = "trade_closed"
	EventTypeSessionSaved   EventType = "session_saved"
	EventTypeSessionError   EventType = "session_error"
	EventTypeSystemStart    EventType = "system_start"
	EventTypeSystemStop     EventType = "system_stop"
)

// AuditEvent is one immutable audit trail entry.
type AuditEvent struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Date      string                 `json:"date,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Resource  string                 `json:"resource,omitempty"` // e.g. "trade:2024-06-17_SPY_long_1"
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger writes the audit trail to the database. Writes are
// best-effort: an audit failure is logged but never fails the session.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(pool *pgxpool.Pool, logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{
		pool:   pool,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// InitSchema initializes the audit trail table
func (a *AuditLogger) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			session_date TEXT,
			symbol TEXT,
			resource TEXT,
			details JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events (timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_events (event_type);
		CREATE INDEX IF NOT EXISTS idx_audit_symbol ON audit_events (symbol);
	`
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init audit schema: %w", err)
	}
	return nil
}

// Log writes one audit event. Errors are swallowed after logging.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to marshal audit details")
			details = nil
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO audit_events (id, event_type, timestamp, session_date, symbol, resource, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, string(event.EventType), event.Timestamp,
		event.Date, event.Symbol, event.Resource, details)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("event_type", string(event.EventType)).
			Msg("Failed to write audit event")
	}
}

// Consume subscribes to the event bus and mirrors the session
// lifecycle into the audit trail. Runs until ctx is canceled.
func (a *AuditLogger) Consume(ctx context.Context, bus *events.EventBus) {
	signalCh := bus.Subscribe(events.EventTypeSignal)
	openedCh := bus.Subscribe(events.EventTypeTradeOpened)
	movedCh := bus.Subscribe(events.EventTypeStopMoved)
	closedCh := bus.Subscribe(events.EventTypeTradeClosed)
	sessionCh := bus.Subscribe(events.EventTypeSessionCompleted)

	go func() {
		for {
			select {
			case ev, ok := <-signalCh:
				if !ok {
					return
				}
				if se, ok := ev.(*events.SignalEvent); ok {
					a.Log(ctx, AuditEvent{
						EventType: EventTypeSignalEmitted,
						Date:      se.Date,
						Symbol:    se.Symbol,
						Details: map[string]interface{}{
							"direction": se.Signal.Direction,
							"type":      se.Signal.Type,
							"price":     se.Signal.Price,
							"attempt":   se.Signal.AttemptNumber,
						},
					})
				}

			case ev, ok := <-openedCh:
				if !ok {
					return
				}
				if te, ok := ev.(*events.TradeOpenedEvent); ok {
					a.Log(ctx, AuditEvent{
						EventType: EventTypeTradeOpened,
						Symbol:    te.Trade.Symbol,
						Resource:  "trade:" + te.Trade.ID,
						Details: map[string]interface{}{
							"entry_price":  te.Trade.EntryPrice,
							"initial_stop": te.Trade.InitialStop,
							"r_value":      te.Trade.RValue,
						},
					})
				}

			case ev, ok := <-movedCh:
				if !ok {
					return
				}
				if sm, ok := ev.(*events.StopMovedEvent); ok {
					a.Log(ctx, AuditEvent{
						EventType: EventTypeStopMoved,
						Resource:  "trade:" + sm.TradeID,
						Details: map[string]interface{}{
							"old_stop": sm.OldStop,
							"new_stop": sm.NewStop,
						},
					})
				}

			case ev, ok := <-closedCh:
				if !ok {
					return
				}
				if te, ok := ev.(*events.TradeClosedEvent); ok {
					a.Log(ctx, AuditEvent{
						EventType: EventTypeTradeClosed,
						Symbol:    te.Trade.Symbol,
						Resource:  "trade:" + te.Trade.ID,
						Details: map[string]interface{}{
							"result":     te.Outcome.Result,
							"exit_price": te.Outcome.ExitPrice,
							"realized_r": te.Outcome.RealizedR,
						},
					})
				}

			case ev, ok := <-sessionCh:
				if !ok {
					return
				}
				if se, ok := ev.(*events.SessionCompletedEvent); ok {
					eventType := EventTypeSessionSaved
					if se.Session.Status == types.SessionError {
						eventType = EventTypeSessionError
					}
					a.Log(ctx, AuditEvent{
						EventType: eventType,
						Date:      se.Session.Date,
						Symbol:    se.Session.Symbol,
						Details: map[string]interface{}{
							"status":   se.Session.Status,
							"trades":   len(se.Session.Trades),
							"signals":  len(se.Session.Signals),
							"bars":     len(se.Session.AllBars),
							"error":    se.Session.Error,
							"backtest": se.Session.IsBacktest,
						},
					})
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}
