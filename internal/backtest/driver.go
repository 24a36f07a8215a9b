package backtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/calendar"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/core/clock"
	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/internal/core/session"
	"github.com/bikeshrana/breakout-trader-go/internal/marketdata"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// Storage is the persistence surface the driver needs.
type Storage interface {
	HasCompletedSession(ctx context.Context, date, symbol string) (bool, error)
	SaveSession(ctx context.Context, sc *types.SessionContext, force bool) error
}

// BarLoader supplies historical bars for one replay. Both the database
// client and the vendor history client satisfy it.
type BarLoader interface {
	GetBars(ctx context.Context, symbol string, startUTC, endUTC int64) ([]types.Bar, error)
}

// Job is one (symbol, date) pair to replay.
type Job struct {
	Date   string
	Symbol string
}

// Result reports how one job ended.
type Result struct {
	Job     Job
	Status  types.SessionStatus
	Skipped bool
	Reason  string
	Err     error
}

// Driver replays sessions over a job list with a bounded worker pool.
type Driver struct {
	storage Storage
	bars    BarLoader
	cal     calendar.Calendar
	opts    config.StrategyConfig
	bus     *events.EventBus
	workers int
	force   bool
	logger  zerolog.Logger
}

// NewDriver creates a backtest driver.
func NewDriver(storage Storage, bars BarLoader, cal calendar.Calendar, opts config.StrategyConfig, bus *events.EventBus, cfg config.BacktestConfig, logger zerolog.Logger) *Driver {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Driver{
		storage: storage,
		bars:    bars,
		cal:     cal,
		opts:    opts,
		bus:     bus,
		workers: workers,
		force:   cfg.Force,
		logger:  logger.With().Str("component", "backtest_driver").Logger(),
	}
}

// Run works through the jobs and returns one result per job, in job
// order. Cancellation stops dispatch; in-flight sessions finish.
func (d *Driver) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	type indexed struct {
		idx int
		job Job
	}
	work := make(chan indexed)

	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				results[item.idx] = d.runJob(ctx, item.job)
			}
		}()
	}

dispatch:
	for i, job := range jobs {
		select {
		case work <- indexed{i, job}:
		case <-ctx.Done():
			for j := i; j < len(jobs); j++ {
				results[j] = Result{Job: jobs[j], Skipped: true, Reason: "canceled"}
			}
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	var ran, skipped, failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
		case res.Skipped:
			skipped++
		default:
			ran++
		}
	}
	d.logger.Info().
		Int("ran", ran).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Backtest batch finished")

	return results
}

func (d *Driver) runJob(ctx context.Context, job Job) Result {
	logger := d.logger.With().Str("date", job.Date).Str("symbol", job.Symbol).Logger()

	open, err := d.cal.IsTradingDay(job.Date)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("calendar check failed: %w", err)}
	}
	if !open {
		logger.Debug().Msg("Not a trading day, skipping")
		return Result{Job: job, Skipped: true, Reason: "not a trading day"}
	}

	if !d.force {
		exists, err := d.storage.HasCompletedSession(ctx, job.Date, job.Symbol)
		if err != nil {
			return Result{Job: job, Err: fmt.Errorf("duplicate check failed: %w", err)}
		}
		if exists {
			logger.Debug().Msg("Session already stored, skipping")
			return Result{Job: job, Skipped: true, Reason: "already stored"}
		}
	}

	win, err := session.ComputeWindows(job.Date, d.opts.SessionWindows)
	if err != nil {
		return Result{Job: job, Err: err}
	}

	bars, err := d.bars.GetBars(ctx, job.Symbol, win.ZoneStartUTC, win.ExecutionEndUTC)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("failed to load bars: %w", err)}
	}
	if len(bars) == 0 {
		logger.Warn().Msg("No bars for date, skipping")
		return Result{Job: job, Skipped: true, Reason: "no bars"}
	}

	clk := clock.NewSimulatedClock(win.ZoneStartUTC)
	source := marketdata.NewReplaySource(bars, clk, win.ExecutionEndUTC)

	runner, err := session.NewRunner(clk, d.bus, d.opts, true, types.ExecutionMock, logger)
	if err != nil {
		return Result{Job: job, Err: err}
	}

	sc, err := runner.RunSession(ctx, job.Date, job.Symbol, source)
	if err != nil {
		return Result{Job: job, Err: err}
	}

	if err := d.storage.SaveSession(ctx, sc, d.force); err != nil {
		return Result{Job: job, Status: sc.Status, Err: fmt.Errorf("failed to save session: %w", err)}
	}

	return Result{Job: job, Status: sc.Status}
}
