package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/core/clock"
	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
	"github.com/bikeshrana/breakout-trader-go/internal/core/strategy"
	"github.com/bikeshrana/breakout-trader-go/internal/marketdata"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// Runner orchestrates a single session: it computes the session
// windows, drives the machine with bars from the source, enforces the
// execution cut-off, and harvests the SessionContext. A Runner
// instance runs at most one session at a time.
type Runner struct {
	clk        clock.Clock
	bus        *events.EventBus
	opts       config.StrategyConfig
	isBacktest bool
	execMode   types.ExecutionMode
	logger     zerolog.Logger

	mu        sync.Mutex
	running   bool
	stopped   bool
	cancelRun context.CancelFunc
}

// NewRunner creates a session runner. Strategy options are validated
// here so a misconfigured session refuses to run.
func NewRunner(clk clock.Clock, bus *events.EventBus, opts config.StrategyConfig, isBacktest bool, execMode types.ExecutionMode, logger zerolog.Logger) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	return &Runner{
		clk:        clk,
		bus:        bus,
		opts:       opts,
		isBacktest: isBacktest,
		execMode:   execMode,
		logger:     logger.With().Str("component", "session_runner").Logger(),
	}, nil
}

// Stop requests cancellation of the in-flight session. It is
// idempotent; the session returns with status Interrupted and no
// SessionEnd is sent to the machine.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.cancelRun != nil {
		r.cancelRun()
	}
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// RunSession runs one session to completion and returns its record.
// Errors never escape a started session: upstream failures land in the
// SessionContext as status Error. The returned error is non-nil only
// when the runner refuses to start (busy, or an invalid date).
func (r *Runner) RunSession(ctx context.Context, date, symbol string, source marketdata.BarSource) (*types.SessionContext, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner already has a session in flight")
	}
	r.running = true
	r.stopped = false
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancelRun = nil
		r.mu.Unlock()
	}()

	win, err := ComputeWindows(date, r.opts.SessionWindows)
	if err != nil {
		return nil, fmt.Errorf("cannot compute session windows: %w", err)
	}

	logger := r.logger.With().Str("date", date).Str("symbol", symbol).Logger()

	sc := &types.SessionContext{
		Date:          date,
		Symbol:        symbol,
		Status:        types.SessionWaiting,
		IsBacktest:    r.isBacktest,
		ExecutionMode: r.execMode,
		StartedAt:     r.clk.Now(),
	}

	machine := strategy.NewMachine(date, symbol, r.opts, win.ZoneEndUTC, r.logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancelRun = cancel
	if r.stopped {
		// Stop raced ahead of the session start.
		cancel()
	}
	r.mu.Unlock()

	r.dispatch(machine, events.NewSessionStartEvent(date, symbol))

	// In live mode a watcher cancels the bar loop when wall time
	// reaches the execution cut-off. A backtest never blocks on bars,
	// so the replay drains first and the post-loop wait jumps the
	// simulated clock to the cut-off.
	if !r.isBacktest {
		go func() {
			if r.clk.WaitUntil(runCtx, win.ExecutionEndUTC) == nil {
				cancel()
			}
		}()
	}

	var sourceErr error
	for {
		bar, ok, err := source.Next(runCtx)
		if err != nil {
			if runCtx.Err() == nil {
				sourceErr = err
			}
			break
		}
		if !ok {
			break
		}
		if !bar.Completed {
			continue
		}
		if bar.Timestamp < win.ZoneStartUTC || bar.Timestamp >= win.ExecutionEndUTC {
			continue
		}
		if machine.IsTerminal() {
			break
		}
		r.dispatch(machine, events.NewNewBarEvent(bar))
	}

	if sourceErr != nil && !machine.IsTerminal() {
		logger.Error().Err(sourceErr).Msg("Bar source failed")
		r.dispatch(machine, events.NewErrorEvent(sourceErr.Error()))
	}

	if !machine.IsTerminal() && !r.isStopped() {
		// Hold the session open until the execution cut-off, the
		// machine resolving, or an external stop.
		_ = r.clk.WaitUntil(runCtx, win.ExecutionEndUTC)
		if !r.isStopped() {
			r.dispatch(machine, events.NewSessionEndEvent())
		}
	}

	machine.Harvest(sc)
	sc.Status = machine.SessionStatus()
	if r.isStopped() {
		sc.Status = types.SessionInterrupted
	}
	sc.CompletedAt = r.clk.Now()

	if r.bus != nil {
		r.bus.Publish(events.NewSessionCompletedEvent(sc))
	}

	logger.Info().
		Str("status", string(sc.Status)).
		Int("bars", len(sc.AllBars)).
		Int("trades", len(sc.Trades)).
		Msg("Session finished")

	return sc, nil
}

// dispatch feeds one event to the machine and fans its emissions out
// on the bus.
func (r *Runner) dispatch(machine *strategy.Machine, ev events.Event) {
	for _, emitted := range machine.Apply(ev) {
		if r.bus != nil {
			r.bus.Publish(emitted)
		}
	}
}
