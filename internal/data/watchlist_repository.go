package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// WatchlistRepository stores the tracked symbols served by the
// watchlist API endpoints.
type WatchlistRepository struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(db *pgxpool.Pool, logger zerolog.Logger) *WatchlistRepository {
	return &WatchlistRepository{
		db:     db,
		logger: logger,
	}
}

// WatchlistEntry is one tracked symbol.
type WatchlistEntry struct {
	Symbol  string    `json:"symbol"`
	Note    string    `json:"note,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// InitSchema initializes the watchlist table
func (r *WatchlistRepository) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS watchlist (
			symbol VARCHAR(10) PRIMARY KEY,
			note TEXT,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init watchlist schema: %w", err)
	}
	return nil
}

// Add upserts a symbol into the watchlist.
func (r *WatchlistRepository) Add(ctx context.Context, symbol, note string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO watchlist (symbol, note)
		VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET note = EXCLUDED.note`,
		symbol, note)
	if err != nil {
		return fmt.Errorf("failed to add %s to watchlist: %w", symbol, err)
	}

	r.logger.Info().Str("symbol", symbol).Msg("Watchlist entry added")
	return nil
}

// Remove deletes a symbol from the watchlist.
func (r *WatchlistRepository) Remove(ctx context.Context, symbol string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM watchlist WHERE symbol = $1`,
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("failed to remove %s from watchlist: %w", symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("symbol %s not in watchlist", symbol)
	}
	return nil
}

// List returns all tracked symbols, alphabetical.
func (r *WatchlistRepository) List(ctx context.Context) ([]WatchlistEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT symbol, COALESCE(note, ''), added_at FROM watchlist ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		if err := rows.Scan(&e.Symbol, &e.Note, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
