package timescale

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/circuitbreaker"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// Client wraps a PostgreSQL/TimescaleDB connection pool. Bar reads and
// writes run through the database circuit breaker so a flapping
// database fails fast instead of hammering the pool.
type Client struct {
	pool    *pgxpool.Pool
	breaker *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewClient creates a new TimescaleDB client with connection pooling.
// The breaker may be nil (tests); queries then run unguarded.
func NewClient(ctx context.Context, cfg *config.DatabaseConfig, breaker *circuitbreaker.CircuitBreaker, logger zerolog.Logger) (*Client, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLife

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_conns", cfg.MaxConns).
		Msg("Connecting to TimescaleDB")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{
		pool:    pool,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// guard runs fn through the database breaker when one is configured.
func (c *Client) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// Pool exposes the underlying pool for repositories.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close closes the database connection pool
func (c *Client) Close() {
	c.logger.Info().Msg("Closing database connection pool")
	c.pool.Close()
}

// Health checks if the database connection is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// InitSchema creates the bar history table. Prices are integer
// cents, timestamps UTC milliseconds.
func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS market_data (
			symbol VARCHAR(10) NOT NULL,
			ts BIGINT NOT NULL,
			open BIGINT NOT NULL,
			high BIGINT NOT NULL,
			low BIGINT NOT NULL,
			close BIGINT NOT NULL,
			volume BIGINT NOT NULL DEFAULT 0,
			bar_size_minutes INT NOT NULL DEFAULT 5,
			PRIMARY KEY (symbol, ts)
		);
	`
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init market_data schema: %w", err)
	}
	return nil
}

// InsertBars upserts completed bars; a duplicate delivery wins.
func (c *Client) InsertBars(ctx context.Context, bars []types.Bar) error {
	return c.guard(func() error { return c.insertBars(ctx, bars) })
}

func (c *Client) insertBars(ctx context.Context, bars []types.Bar) error {
	query := `
		INSERT INTO market_data (symbol, ts, open, high, low, close, volume, bar_size_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, ts) DO UPDATE
		SET open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	for _, bar := range bars {
		if !bar.Completed {
			continue
		}
		_, err := c.pool.Exec(ctx, query,
			bar.Symbol, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close,
			bar.Volume, bar.BarSizeMinutes)
		if err != nil {
			return fmt.Errorf("failed to insert bar %s@%d: %w", bar.Symbol, bar.Timestamp, err)
		}
	}

	c.logger.Debug().Int("bars", len(bars)).Msg("Inserted bars")
	return nil
}

// GetBars retrieves bars for a symbol within [startUTC, endUTC),
// ascending. Used to bootstrap backtest replays.
func (c *Client) GetBars(ctx context.Context, symbol string, startUTC, endUTC int64) ([]types.Bar, error) {
	var bars []types.Bar
	err := c.guard(func() error {
		var err error
		bars, err = c.getBars(ctx, symbol, startUTC, endUTC)
		return err
	})
	return bars, err
}

func (c *Client) getBars(ctx context.Context, symbol string, startUTC, endUTC int64) ([]types.Bar, error) {
	query := `
		SELECT symbol, ts, open, high, low, close, volume, bar_size_minutes
		FROM market_data
		WHERE symbol = $1
		  AND ts >= $2
		  AND ts < $3
		ORDER BY ts ASC
	`

	rows, err := c.pool.Query(ctx, query, symbol, startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var bar types.Bar
		err := rows.Scan(&bar.Symbol, &bar.Timestamp, &bar.Open, &bar.High,
			&bar.Low, &bar.Close, &bar.Volume, &bar.BarSizeMinutes)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.Completed = true
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bar rows failed: %w", err)
	}

	return bars, nil
}
