package marketdata

import (
	"context"

	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// Provider is the capability set the engine needs from a market data
// vendor. Transport details (reconnects, contract lookup) live behind
// this interface.
type Provider interface {
	// Connect establishes the transport.
	Connect(ctx context.Context) error

	// Disconnect tears the transport down.
	Disconnect() error

	// IsConnected reports whether bars can be subscribed.
	IsConnected() bool

	// SubscribeBars starts a push stream of completed 5-minute bars
	// for the symbol. The channel closes when the provider disconnects.
	SubscribeBars(ctx context.Context, symbol string) (<-chan types.Bar, error)

	// GetHistoricalBars fetches completed bars in [startUTC, endUTC),
	// ascending, for backtest bootstrap.
	GetHistoricalBars(ctx context.Context, symbol string, startUTC, endUTC int64) ([]types.Bar, error)
}

// BarSource is a lazy, finite, chronologically ordered sequence of
// bars for one (symbol, date). Next returns ok=false once the sequence
// is exhausted; err is reserved for transport failures.
type BarSource interface {
	Next(ctx context.Context) (bar types.Bar, ok bool, err error)
	Close() error
}

// Normalize aligns bars to the 5-minute grid, sorts them ascending and
// drops duplicate timestamps keeping the latest delivery.
func Normalize(bars []types.Bar) []types.Bar {
	aligned := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		b.Timestamp = types.AlignToGrid(b.Timestamp)
		if b.BarSizeMinutes == 0 {
			b.BarSizeMinutes = types.BarSizeMinutes
		}
		aligned = append(aligned, b)
	}

	// Stable insertion sort: feeds deliver almost-sorted data and the
	// later duplicate must win.
	for i := 1; i < len(aligned); i++ {
		for j := i; j > 0 && aligned[j-1].Timestamp > aligned[j].Timestamp; j-- {
			aligned[j-1], aligned[j] = aligned[j], aligned[j-1]
		}
	}

	out := aligned[:0]
	for _, b := range aligned {
		if n := len(out); n > 0 && out[n-1].Timestamp == b.Timestamp {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
