package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/core/events"
)

// TradingMetrics bundles the Prometheus collectors for the session
// engine and the API server.
type TradingMetrics struct {
	SessionsRun         *prometheus.CounterVec
	TradesOpened        *prometheus.CounterVec
	TradeOutcomes       *prometheus.CounterVec
	SignalsEmitted      *prometheus.CounterVec
	BarsProcessed       prometheus.Counter
	SessionDuration     prometheus.Histogram
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors against the given registerer.
func New(reg prometheus.Registerer) *TradingMetrics {
	factory := promauto.With(reg)

	return &TradingMetrics{
		SessionsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_sessions_run_total",
			Help: "Sessions finished, by terminal status",
		}, []string{"status"}),
		TradesOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_trades_opened_total",
			Help: "Logical positions opened, by direction",
		}, []string{"direction"}),
		TradeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_trade_outcomes_total",
			Help: "Closed trades, by outcome result",
		}, []string{"result"}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_signals_total",
			Help: "Strategy signals, by direction and type",
		}, []string{"direction", "type"}),
		BarsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "breakout_bars_processed_total",
			Help: "Completed bars fed to the strategy machine",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "breakout_session_duration_seconds",
			Help:    "Wall time per session",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_http_requests_total",
			Help: "API requests, by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breakout_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Consume subscribes to the event bus and keeps the trading counters
// current. Runs until the context is canceled.
func (m *TradingMetrics) Consume(ctx context.Context, bus *events.EventBus, logger zerolog.Logger) {
	signalCh := bus.Subscribe(events.EventTypeSignal)
	openedCh := bus.Subscribe(events.EventTypeTradeOpened)
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
					m.SignalsEmitted.WithLabelValues(string(se.Signal.Direction), string(se.Signal.Type)).Inc()
				}

			case ev, ok := <-openedCh:
				if !ok {
					return
				}
				if te, ok := ev.(*events.TradeOpenedEvent); ok {
					m.TradesOpened.WithLabelValues(string(te.Trade.Direction)).Inc()
				}

			case ev, ok := <-closedCh:
				if !ok {
					return
				}
				if te, ok := ev.(*events.TradeClosedEvent); ok {
					m.TradeOutcomes.WithLabelValues(string(te.Outcome.Result)).Inc()
				}

			case ev, ok := <-sessionCh:
				if !ok {
					return
				}
				if se, ok := ev.(*events.SessionCompletedEvent); ok {
					m.SessionsRun.WithLabelValues(string(se.Session.Status)).Inc()
					m.BarsProcessed.Add(float64(len(se.Session.AllBars)))
					elapsed := float64(se.Session.CompletedAt-se.Session.StartedAt) / 1000
					if elapsed >= 0 {
						m.SessionDuration.Observe(elapsed)
					}
				}

			case <-ctx.Done():
				logger.Debug().Msg("Metrics consumer stopped")
				return
			}
		}
	}()
}
