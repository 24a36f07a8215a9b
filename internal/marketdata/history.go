package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// HistoryClient fetches historical 5-minute bars from the vendor's
// REST endpoint. Transient failures are retried with backoff.
type HistoryClient struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	logger  zerolog.Logger
}

// NewHistoryClient builds a history client for the configured vendor.
func NewHistoryClient(cfg config.FeedConfig, logger zerolog.Logger) *HistoryClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.Logger = nil

	return &HistoryClient{
		baseURL: cfg.HistoryURL,
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger.With().Str("component", "history").Logger(),
	}
}

// GetBars fetches completed bars for [startUTC, endUTC), normalized
// and ascending.
func (h *HistoryClient) GetBars(ctx context.Context, symbol string, startUTC, endUTC int64) ([]types.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("start", strconv.FormatInt(startUTC, 10))
	q.Set("end", strconv.FormatInt(endUTC, 10))
	q.Set("bar_size_minutes", strconv.Itoa(types.BarSizeMinutes))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/bars?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request returned %d", resp.StatusCode)
	}

	var payload struct {
		Bars []barFrame `json:"bars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}

	bars := make([]types.Bar, 0, len(payload.Bars))
	for _, frame := range payload.Bars {
		if !frame.Completed {
			continue
		}
		bars = append(bars, types.Bar{
			Symbol:         frame.Symbol,
			Timestamp:      frame.Timestamp,
			Open:           frame.Open,
			High:           frame.High,
			Low:            frame.Low,
			Close:          frame.Close,
			Volume:         frame.Volume,
			Completed:      true,
			BarSizeMinutes: types.BarSizeMinutes,
		})
	}

	h.logger.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Msg("Fetched historical bars")

	return Normalize(bars), nil
}
