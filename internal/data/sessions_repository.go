package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/circuitbreaker"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// SessionsRepository persists the full session graph: the flattened
// context row plus its signals, trades, outcomes and bars. Writes run
// through the database circuit breaker when one is configured.
type SessionsRepository struct {
	db      *pgxpool.Pool
	breaker *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewSessionsRepository creates a new sessions repository
func NewSessionsRepository(db *pgxpool.Pool, breaker *circuitbreaker.CircuitBreaker, logger zerolog.Logger) *SessionsRepository {
	return &SessionsRepository{
		db:      db,
		breaker: breaker,
		logger:  logger,
	}
}

// SessionSummary is the list-view projection of a stored session.
type SessionSummary struct {
	ID        string              `json:"id"`
	Date      string              `json:"date"`
	Symbol    string              `json:"symbol"`
	Status    types.SessionStatus `json:"status"`
	Trades    int                 `json:"trades"`
	Signals   int                 `json:"signals"`
	StartedAt int64               `json:"started_at"`
}

// InitSchema initializes the session tables
func (r *SessionsRepository) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(40) PRIMARY KEY,
			session_date VARCHAR(10) NOT NULL,
			symbol VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL,
			is_backtest BOOLEAN NOT NULL,
			execution_mode VARCHAR(10) NOT NULL,
			zone_resistance BIGINT,
			zone_support BIGINT,
			zone_spread BIGINT,
			zone_status VARCHAR(30),
			zone_defined_at BIGINT,
			started_at BIGINT NOT NULL,
			completed_at BIGINT NOT NULL,
			error_msg TEXT,
			UNIQUE (session_date, symbol)
		);

		CREATE TABLE IF NOT EXISTS session_signals (
			session_id VARCHAR(40) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			direction VARCHAR(5) NOT NULL,
			signal_type VARCHAR(15) NOT NULL,
			ts BIGINT NOT NULL,
			price BIGINT NOT NULL,
			attempt_number INT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);

		CREATE TABLE IF NOT EXISTS session_trades (
			id VARCHAR(60) PRIMARY KEY,
			session_id VARCHAR(40) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			symbol VARCHAR(10) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			entry_price BIGINT NOT NULL,
			initial_stop BIGINT NOT NULL,
			current_stop BIGINT NOT NULL,
			r_value BIGINT NOT NULL,
			target_1r BIGINT NOT NULL,
			target_2r BIGINT NOT NULL,
			target_3r BIGINT NOT NULL,
			entry_ts BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trade_outcomes (
			trade_id VARCHAR(60) PRIMARY KEY REFERENCES session_trades(id) ON DELETE CASCADE,
			session_id VARCHAR(40) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			result VARCHAR(20) NOT NULL,
			max_favorable_r DOUBLE PRECISION NOT NULL,
			max_adverse_r DOUBLE PRECISION NOT NULL,
			exit_price BIGINT NOT NULL,
			exit_ts BIGINT NOT NULL,
			realized_r DOUBLE PRECISION NOT NULL,
			first_threshold INT NOT NULL,
			ts_1r BIGINT NOT NULL,
			ts_2r BIGINT NOT NULL,
			ts_3r BIGINT NOT NULL,
			ts_stop BIGINT NOT NULL,
			bars_held INT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_bars (
			session_id VARCHAR(40) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			ts BIGINT NOT NULL,
			open BIGINT NOT NULL,
			high BIGINT NOT NULL,
			low BIGINT NOT NULL,
			close BIGINT NOT NULL,
			volume BIGINT NOT NULL,
			PRIMARY KEY (session_id, ts)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(session_date);
		CREATE INDEX IF NOT EXISTS idx_sessions_symbol ON sessions(symbol);
	`

	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init sessions schema: %w", err)
	}
	return nil
}

// SessionID builds the stable {date}_{symbol} primary key.
func SessionID(date, symbol string) string {
	return fmt.Sprintf("%s_%s", date, symbol)
}

// HasCompletedSession reports whether a session for (date, symbol) is
// already stored. Used as the duplicate-run check.
func (r *SessionsRepository) HasCompletedSession(ctx context.Context, date, symbol string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE session_date = $1 AND symbol = $2)`,
		date, symbol).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return exists, nil
}

// SaveSession stores the full session graph in one transaction. With
// force, an existing (date, symbol) record is replaced; without it the
// unique constraint rejects the duplicate.
func (r *SessionsRepository) SaveSession(ctx context.Context, sc *types.SessionContext, force bool) error {
	if r.breaker == nil {
		return r.saveSession(ctx, sc, force)
	}
	return r.breaker.Execute(func() error { return r.saveSession(ctx, sc, force) })
}

func (r *SessionsRepository) saveSession(ctx context.Context, sc *types.SessionContext, force bool) error {
	id := SessionID(sc.Date, sc.Symbol)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if force {
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete prior session: %w", err)
		}
	}

	var zoneRes, zoneSup, zoneSpread, zoneDefinedAt *int64
	var zoneStatus *string
	if sc.Zone != nil {
		zoneRes = &sc.Zone.Resistance
		zoneSup = &sc.Zone.Support
		zoneSpread = &sc.Zone.Spread
		zoneDefinedAt = &sc.Zone.DefinedAt
		status := string(sc.Zone.Status)
		zoneStatus = &status
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, session_date, symbol, status, is_backtest, execution_mode,
			zone_resistance, zone_support, zone_spread, zone_status, zone_defined_at,
			started_at, completed_at, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, sc.Date, sc.Symbol, string(sc.Status), sc.IsBacktest, string(sc.ExecutionMode),
		zoneRes, zoneSup, zoneSpread, zoneStatus, zoneDefinedAt,
		sc.StartedAt, sc.CompletedAt, nullableString(sc.Error))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for seq, sig := range sc.Signals {
		_, err = tx.Exec(ctx, `
			INSERT INTO session_signals (session_id, seq, direction, signal_type, ts, price, attempt_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, seq, string(sig.Direction), string(sig.Type), sig.Timestamp, sig.Price, sig.AttemptNumber)
		if err != nil {
			return fmt.Errorf("failed to insert signal %d: %w", seq, err)
		}
	}

	for _, trade := range sc.Trades {
		_, err = tx.Exec(ctx, `
			INSERT INTO session_trades (id, session_id, symbol, direction, entry_price,
				initial_stop, current_stop, r_value, target_1r, target_2r, target_3r,
				entry_ts, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			trade.ID, id, trade.Symbol, string(trade.Direction), trade.EntryPrice,
			trade.InitialStop, trade.CurrentStop, trade.RValue,
			trade.Target1R, trade.Target2R, trade.Target3R,
			trade.EntryTimestamp, string(trade.Status))
		if err != nil {
			return fmt.Errorf("failed to insert trade %s: %w", trade.ID, err)
		}
	}

	for _, out := range sc.Outcomes {
		_, err = tx.Exec(ctx, `
			INSERT INTO trade_outcomes (trade_id, session_id, result, max_favorable_r,
				max_adverse_r, exit_price, exit_ts, realized_r, first_threshold,
				ts_1r, ts_2r, ts_3r, ts_stop, bars_held)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			out.TradeID, id, string(out.Result), out.MaxFavorableR, out.MaxAdverseR,
			out.ExitPrice, out.ExitTimestamp, out.RealizedR, out.FirstThresholdReached,
			out.Timestamp1R, out.Timestamp2R, out.Timestamp3R, out.TimestampStop, out.BarsHeld)
		if err != nil {
			return fmt.Errorf("failed to insert outcome %s: %w", out.TradeID, err)
		}
	}

	for _, bar := range sc.AllBars {
		_, err = tx.Exec(ctx, `
			INSERT INTO session_bars (session_id, ts, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar %d: %w", bar.Timestamp, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	r.logger.Info().
		Str("session_id", id).
		Str("status", string(sc.Status)).
		Int("trades", len(sc.Trades)).
		Int("bars", len(sc.AllBars)).
		Msg("Session saved")

	return nil
}

// ListSessions returns stored session summaries, optionally filtered
// by date and/or symbol, newest first.
func (r *SessionsRepository) ListSessions(ctx context.Context, date, symbol string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT s.id, s.session_date, s.symbol, s.status, s.started_at,
			(SELECT COUNT(*) FROM session_trades t WHERE t.session_id = s.id),
			(SELECT COUNT(*) FROM session_signals g WHERE g.session_id = s.id)
		FROM sessions s
		WHERE ($1 = '' OR s.session_date = $1)
		  AND ($2 = '' OR s.symbol = $2)
		ORDER BY s.session_date DESC, s.symbol
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, date, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var status string
		if err := rows.Scan(&s.ID, &s.Date, &s.Symbol, &status, &s.StartedAt, &s.Trades, &s.Signals); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		s.Status = types.SessionStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession loads one full session graph by id.
func (r *SessionsRepository) GetSession(ctx context.Context, id string) (*types.SessionContext, error) {
	sc := &types.SessionContext{}
	var status, execMode string
	var zoneRes, zoneSup, zoneSpread, zoneDefinedAt *int64
	var zoneStatus, errMsg *string

	err := r.db.QueryRow(ctx, `
		SELECT session_date, symbol, status, is_backtest, execution_mode,
			zone_resistance, zone_support, zone_spread, zone_status, zone_defined_at,
			started_at, completed_at, error_msg
		FROM sessions WHERE id = $1`, id).
		Scan(&sc.Date, &sc.Symbol, &status, &sc.IsBacktest, &execMode,
			&zoneRes, &zoneSup, &zoneSpread, &zoneStatus, &zoneDefinedAt,
			&sc.StartedAt, &sc.CompletedAt, &errMsg)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	sc.Status = types.SessionStatus(status)
	sc.ExecutionMode = types.ExecutionMode(execMode)
	if errMsg != nil {
		sc.Error = *errMsg
	}
	if zoneStatus != nil {
		sc.Zone = &types.DecisionZone{
			Resistance: deref(zoneRes),
			Support:    deref(zoneSup),
			Spread:     deref(zoneSpread),
			Status:     types.ZoneStatus(*zoneStatus),
			DefinedAt:  deref(zoneDefinedAt),
		}
	}

	if err := r.loadChildren(ctx, id, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (r *SessionsRepository) loadChildren(ctx context.Context, id string, sc *types.SessionContext) error {
	sigRows, err := r.db.Query(ctx, `
		SELECT direction, signal_type, ts, price, attempt_number
		FROM session_signals WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return fmt.Errorf("failed to load signals: %w", err)
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var sig types.Signal
		var dir, typ string
		if err := sigRows.Scan(&dir, &typ, &sig.Timestamp, &sig.Price, &sig.AttemptNumber); err != nil {
			return fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Direction = types.Direction(dir)
		sig.Type = types.SignalType(typ)
		sc.Signals = append(sc.Signals, sig)
	}
	if err := sigRows.Err(); err != nil {
		return err
	}

	tradeRows, err := r.db.Query(ctx, `
		SELECT id, symbol, direction, entry_price, initial_stop, current_stop, r_value,
			target_1r, target_2r, target_3r, entry_ts, status
		FROM session_trades WHERE session_id = $1 ORDER BY entry_ts`, id)
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}
	defer tradeRows.Close()
	for tradeRows.Next() {
		var trade types.Trade
		var dir, status string
		err := tradeRows.Scan(&trade.ID, &trade.Symbol, &dir, &trade.EntryPrice,
			&trade.InitialStop, &trade.CurrentStop, &trade.RValue,
			&trade.Target1R, &trade.Target2R, &trade.Target3R,
			&trade.EntryTimestamp, &status)
		if err != nil {
			return fmt.Errorf("failed to scan trade: %w", err)
		}
		trade.Direction = types.Direction(dir)
		trade.Status = types.TradeStatus(status)
		sc.Trades = append(sc.Trades, trade)
	}
	if err := tradeRows.Err(); err != nil {
		return err
	}

	outRows, err := r.db.Query(ctx, `
		SELECT trade_id, result, max_favorable_r, max_adverse_r, exit_price, exit_ts,
			realized_r, first_threshold, ts_1r, ts_2r, ts_3r, ts_stop, bars_held
		FROM trade_outcomes WHERE session_id = $1 ORDER BY exit_ts`, id)
	if err != nil {
		return fmt.Errorf("failed to load outcomes: %w", err)
	}
	defer outRows.Close()
	for outRows.Next() {
		var out types.TradeOutcome
		var result string
		err := outRows.Scan(&out.TradeID, &result, &out.MaxFavorableR, &out.MaxAdverseR,
			&out.ExitPrice, &out.ExitTimestamp, &out.RealizedR, &out.FirstThresholdReached,
			&out.Timestamp1R, &out.Timestamp2R, &out.Timestamp3R, &out.TimestampStop, &out.BarsHeld)
		if err != nil {
			return fmt.Errorf("failed to scan outcome: %w", err)
		}
		out.Result = types.OutcomeResult(result)
		sc.Outcomes = append(sc.Outcomes, out)
	}
	if err := outRows.Err(); err != nil {
		return err
	}

	barRows, err := r.db.Query(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM session_bars WHERE session_id = $1 ORDER BY ts`, id)
	if err != nil {
		return fmt.Errorf("failed to load bars: %w", err)
	}
	defer barRows.Close()
	for barRows.Next() {
		bar := types.Bar{Symbol: sc.Symbol, Completed: true, BarSizeMinutes: types.BarSizeMinutes}
		if err := barRows.Scan(&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return fmt.Errorf("failed to scan bar: %w", err)
		}
		sc.AllBars = append(sc.AllBars, bar)
	}
	return barRows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
