package execution

import (
	"context"

	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

// Provider consumes the machine's logical decisions and turns them
// into orders. The engine never blocks on it: fills are reconciled
// outside the session core.
type Provider interface {
	// Start begins consuming trade events; runs until ctx is canceled.
	Start(ctx context.Context) error

	// Stop stops consuming trade events; open positions are not flattened.
	Stop(ctx context.Context) error

	// Mode reports whether fills are real or mocked.
	Mode() types.ExecutionMode
}

// Position is a broker-side view of one working bracket.
type Position struct {
	TradeID   string          `json:"trade_id"`
	Symbol    string          `json:"symbol"`
	Direction types.Direction `json:"direction"`
	Entry     int64           `json:"entry"`
	Stop      int64           `json:"stop"`
	Target    int64           `json:"target"`
	OpenedAt  int64           `json:"opened_at"`
	Closed    bool            `json:"closed"`
	ExitPrice int64           `json:"exit_price,omitempty"`
}
