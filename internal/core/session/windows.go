package session

import (
	"fmt"
	"time"

	"github.com/bikeshrana/breakout-trader-go/internal/config"
)

// marketTimezone is the exchange's local zone; all session windows are
// defined in it and DST falls out of the location math.
const marketTimezone = "America/New_York"

// Windows holds one session's boundaries in UTC milliseconds.
type Windows struct {
	ZoneStartUTC    int64
	ZoneEndUTC      int64
	ExecutionEndUTC int64
}

// ComputeWindows converts the configured ET session times for the
// given date into UTC milliseconds.
func ComputeWindows(date string, w config.SessionWindows) (Windows, error) {
	zoneStart, err := ETToUTC(date, w.ZoneStartTime)
	if err != nil {
		return Windows{}, err
	}
	zoneEnd, err := ETToUTC(date, w.ZoneEndTime)
	if err != nil {
		return Windows{}, err
	}
	execEnd, err := ETToUTC(date, w.ExecutionEndTime)
	if err != nil {
		return Windows{}, err
	}
	return Windows{
		ZoneStartUTC:    zoneStart,
		ZoneEndUTC:      zoneEnd,
		ExecutionEndUTC: execEnd,
	}, nil
}

// ETToUTC converts a YYYY-MM-DD date plus an HH:MM Eastern wall time
// into UTC milliseconds.
func ETToUTC(date, clock string) (int64, error) {
	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", marketTimezone, err)
	}

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}

	mins, err := config.ParseClock(clock)
	if err != nil {
		return 0, err
	}

	t := time.Date(day.Year(), day.Month(), day.Day(), mins/60, mins%60, 0, 0, loc)
	return t.UTC().UnixMilli(), nil
}
