package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bikeshrana/breakout-trader-go/internal/api"
	"github.com/bikeshrana/breakout-trader-go/internal/audit"
	"github.com/bikeshrana/breakout-trader-go/internal/auth"
	"github.com/bikeshrana/breakout-trader-go/internal/backtest"
	"github.com/bikeshrana/breakout-trader-go/internal/calendar"
	"github.com/bikeshrana/breakout-trader-go/internal/circuitbreaker"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/core/clock"
	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/internal/core/session"
	"github.com/bikeshrana/breakout-trader-go/internal/data"
	"github.com/bikeshrana/breakout-trader-go/internal/data/timescale"
	"github.com/bikeshrana/breakout-trader-go/internal/execution"
	"github.com/bikeshrana/breakout-trader-go/internal/logging"
	"github.com/bikeshrana/breakout-trader-go/internal/marketdata"
	"github.com/bikeshrana/breakout-trader-go/internal/metrics"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "breakout-trader",
		Short:         "Morning-breakout intraday trading engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(newRunCmd(), newBacktestCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles the shared wiring for all commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	db       *timescale.Client
	sessions *data.SessionsRepository
	bus      *events.EventBus
	metrics  *metrics.TradingMetrics
	auditLog *audit.AuditLogger
	breakers *circuitbreaker.Manager
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Logging)

	breakers := circuitbreaker.NewManager(logger)
	dbBreaker := breakers.GetOrCreate("db", circuitbreaker.DefaultDatabaseConfig())

	db, err := timescale.NewClient(ctx, &cfg.Database, dbBreaker, logger)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		return nil, err
	}

	sessions := data.NewSessionsRepository(db.Pool(), dbBreaker, logger)
	if err := sessions.InitSchema(ctx); err != nil {
		return nil, err
	}

	auditLog := audit.NewAuditLogger(db.Pool(), logger)
	if err := auditLog.InitSchema(ctx); err != nil {
		return nil, err
	}

	bus := events.NewEventBus(256, logger)
	tm := metrics.New(prometheus.DefaultRegisterer)
	tm.Consume(ctx, bus, logger)
	auditLog.Consume(ctx, bus)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		sessions: sessions,
		bus:      bus,
		metrics:  tm,
		auditLog: auditLog,
		breakers: breakers,
	}, nil
}

func (a *app) close() {
	a.bus.Close()
	a.db.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var symbol, date string
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one live trading session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if date == "" {
				date = todayET()
			}

			cal := calendar.NewUSEquities()
			open, err := cal.IsTradingDay(date)
			if err != nil {
				return err
			}
			if !open {
				return fmt.Errorf("%s is not a trading day", date)
			}

			if !force {
				exists, err := a.sessions.HasCompletedSession(ctx, date, symbol)
				if err != nil {
					return err
				}
				if exists {
					a.logger.Info().Str("date", date).Str("symbol", symbol).
						Msg("Session already stored; use --force to rerun")
					return nil
				}
			}

			history := marketdata.NewHistoryClient(a.cfg.Feed, a.logger)
			feed := marketdata.NewWebsocketFeed(a.cfg.Feed, history,
				a.breakers.GetOrCreate("feed", circuitbreaker.DefaultFeedConfig()), a.logger)
			if err := feed.Connect(ctx); err != nil {
				return err
			}
			defer feed.Disconnect()

			barCh, err := feed.SubscribeBars(ctx, symbol)
			if err != nil {
				return err
			}

			executor := execution.NewPaperExecutor(a.bus, a.logger)
			if err := executor.Start(ctx); err != nil {
				return err
			}
			defer executor.Stop(context.Background())

			runner, err := session.NewRunner(clock.NewSystemClock(), a.bus, a.cfg.Strategy,
				false, executor.Mode(), a.logger)
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				runner.Stop()
			}()

			sc, err := runner.RunSession(ctx, date, symbol, marketdata.NewLiveSource(barCh))
			if err != nil {
				return err
			}

			if err := a.sessions.SaveSession(context.Background(), sc, force); err != nil {
				return err
			}

			a.logger.Info().
				Str("status", string(sc.Status)).
				Int("trades", len(sc.Trades)).
				Msg("Live session stored")
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol to trade")
	cmd.Flags().StringVarP(&date, "date", "d", "", "session date (YYYY-MM-DD, default today ET)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing session record")
	cmd.MarkFlagRequired("symbol")

	return cmd
}

func newBacktestCmd() *cobra.Command {
	var symbols []string
	var from, to string
	var force bool

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored history over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			dates, err := dateRange(from, to)
			if err != nil {
				return err
			}

			var jobs []backtest.Job
			for _, date := range dates {
				for _, symbol := range symbols {
					jobs = append(jobs, backtest.Job{Date: date, Symbol: symbol})
				}
			}

			btCfg := a.cfg.Backtest
			if force {
				btCfg.Force = true
			}

			driver := backtest.NewDriver(a.sessions, a.db, calendar.NewUSEquities(),
				a.cfg.Strategy, a.bus, btCfg, a.logger)

			results := driver.Run(ctx, jobs)
			var failed int
			for _, res := range results {
				if res.Err != nil {
					failed++
					a.logger.Error().Err(res.Err).
						Str("date", res.Job.Date).
						Str("symbol", res.Job.Symbol).
						Msg("Backtest job failed")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "symbols to replay")
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD, default --from)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing session records")
	cmd.MarkFlagRequired("symbols")
	cmd.MarkFlagRequired("from")

	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			watchlist := data.NewWatchlistRepository(a.db.Pool(), a.logger)
			if err := watchlist.InitSchema(ctx); err != nil {
				return err
			}

			server := api.NewServer(a.cfg.Server, api.Deps{
				DB:        a.db,
				Sessions:  a.sessions,
				Watchlist: watchlist,
				JWT:       auth.NewJWTService(a.cfg.Auth.JWTSecret, a.logger),
				Auth:      a.cfg.Auth,
				Metrics:   a.metrics,
			}, a.logger)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// todayET returns the current date in the market's timezone.
func todayET() string {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Now().UTC().Format("2006-01-02")
	}
	return time.Now().In(loc).Format("2006-01-02")
}

// dateRange expands [from, to] into daily date strings.
func dateRange(from, to string) ([]string, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, fmt.Errorf("invalid --from date %q: %w", from, err)
	}
	end := start
	if to != "" {
		end, err = time.Parse("2006-01-02", to)
		if err != nil {
			return nil, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
	}
	if end.Before(start) {
		return nil, fmt.Errorf("--to is before --from")
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, nil
}
