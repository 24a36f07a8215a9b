package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/circuitbreaker"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// subscribeMessage is the frame sent to the feed to start a bar stream.
type subscribeMessage struct {
	Action  string `json:"action"`
	Symbol  string `json:"symbol"`
	BarSize int    `json:"bar_size_minutes"`
	APIKey  string `json:"api_key,omitempty"`
}

// barFrame is one bar as delivered on the wire.
type barFrame struct {
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"timestamp"`
	Open      int64  `json:"open"`
	High      int64  `json:"high"`
	Low       int64  `json:"low"`
	Close     int64  `json:"close"`
	Volume    int64  `json:"volume"`
	Completed bool   `json:"completed"`
}

// WebsocketFeed is a Provider that reads 5-minute bars off a websocket
// push stream and answers historical queries through a REST client.
type WebsocketFeed struct {
	cfg     config.FeedConfig
	history *HistoryClient
	breaker *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[string]chan types.Bar
	done      chan struct{}
}

// NewWebsocketFeed creates a feed provider. The circuit breaker guards
// connect attempts against a flapping upstream.
func NewWebsocketFeed(cfg config.FeedConfig, history *HistoryClient, breaker *circuitbreaker.CircuitBreaker, logger zerolog.Logger) *WebsocketFeed {
	return &WebsocketFeed{
		cfg:     cfg,
		history: history,
		breaker: breaker,
		logger:  logger.With().Str("component", "feed").Logger(),
		subs:    make(map[string]chan types.Bar),
	}
}

// Connect dials the feed websocket and starts the read loop.
func (f *WebsocketFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		return nil
	}

	err := f.breaker.Execute(func() error {
		dialCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
		defer cancel()

		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.WebsocketURL, nil)
		if err != nil {
			return fmt.Errorf("failed to dial feed %s: %w", f.cfg.WebsocketURL, err)
		}
		f.conn = conn
		return nil
	})
	if err != nil {
		return err
	}

	f.connected = true
	f.done = make(chan struct{})

	go f.readLoop()
	go f.pingLoop()

	f.logger.Info().Str("url", f.cfg.WebsocketURL).Msg("Feed connected")
	return nil
}

// Disconnect closes the transport and every subscription channel.
func (f *WebsocketFeed) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return nil
	}
	f.connected = false
	close(f.done)

	err := f.conn.Close()
	for symbol, ch := range f.subs {
		close(ch)
		delete(f.subs, symbol)
	}

	f.logger.Info().Msg("Feed disconnected")
	return err
}

// IsConnected reports whether bars can be subscribed.
func (f *WebsocketFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SubscribeBars requests a bar stream for the symbol and returns its
// bounded delivery channel.
func (f *WebsocketFeed) SubscribeBars(ctx context.Context, symbol string) (<-chan types.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return nil, fmt.Errorf("feed not connected")
	}
	if ch, ok := f.subs[symbol]; ok {
		return ch, nil
	}

	msg := subscribeMessage{
		Action:  "subscribe",
		Symbol:  symbol,
		BarSize: types.BarSizeMinutes,
		APIKey:  f.cfg.APIKey,
	}
	if err := f.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", symbol, err)
	}

	ch := make(chan types.Bar, f.cfg.BufferSize)
	f.subs[symbol] = ch

	f.logger.Info().Str("symbol", symbol).Msg("Subscribed to bars")
	return ch, nil
}

// GetHistoricalBars delegates to the REST history client.
func (f *WebsocketFeed) GetHistoricalBars(ctx context.Context, symbol string, startUTC, endUTC int64) ([]types.Bar, error) {
	return f.history.GetBars(ctx, symbol, startUTC, endUTC)
}

// readLoop pumps wire frames into subscription channels. A full
// channel drops the frame for that subscriber; a transport error ends
// the loop and tears the feed down.
func (f *WebsocketFeed) readLoop() {
	for {
		_, payload, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Error().Err(err).Msg("Feed read failed, disconnecting")
			_ = f.Disconnect()
			return
		}

		var frame barFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			f.logger.Warn().Err(err).Msg("Dropping malformed bar frame")
			continue
		}

		bar := types.Bar{
			Symbol:         frame.Symbol,
			Timestamp:      frame.Timestamp,
			Open:           frame.Open,
			High:           frame.High,
			Low:            frame.Low,
			Close:          frame.Close,
			Volume:         frame.Volume,
			Completed:      frame.Completed,
			BarSizeMinutes: types.BarSizeMinutes,
		}

		f.mu.Lock()
		ch, ok := f.subs[frame.Symbol]
		f.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case ch <- bar:
		default:
			f.logger.Warn().Str("symbol", frame.Symbol).Msg("Subscriber slow, bar dropped")
		}
	}
}

// pingLoop keeps the connection alive.
func (f *WebsocketFeed) pingLoop() {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.mu.Lock()
			if f.connected {
				_ = f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			f.mu.Unlock()
		case <-f.done:
			return
		}
	}
}
