package calendar

import (
	"fmt"
	"time"
)

// Calendar answers whether the market is open on a given date.
type Calendar interface {
	IsTradingDay(date string) (bool, error)
}

// USEquities is the NYSE/Nasdaq calendar: weekends plus the exchange
// holiday list.
type USEquities struct {
	holidays map[string]bool
}

// nyseHolidays covers full-day closes. Early-close half days still
// count as trading days; the session engine's cut-off is midday anyway.
var nyseHolidays = []string{
	// 2024
	"2024-01-01", "2024-01-15", "2024-02-19", "2024-03-29",
	"2024-05-27", "2024-06-19", "2024-07-04", "2024-09-02",
	"2024-11-28", "2024-12-25",
	// 2025
	"2025-01-01", "2025-01-09", "2025-01-20", "2025-02-17",
	"2025-04-18", "2025-05-26", "2025-06-19", "2025-07-04",
	"2025-09-01", "2025-11-27", "2025-12-25",
	// 2026
	"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03",
	"2026-05-25", "2026-06-19", "2026-07-03", "2026-09-07",
	"2026-11-26", "2026-12-25",
}

// NewUSEquities builds the calendar with the built-in holiday table.
func NewUSEquities() *USEquities {
	holidays := make(map[string]bool, len(nyseHolidays))
	for _, d := range nyseHolidays {
		holidays[d] = true
	}
	return &USEquities{holidays: holidays}
}

// IsTradingDay reports whether the exchange is open on the date.
func (c *USEquities) IsTradingDay(date string) (bool, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false, fmt.Errorf("invalid date %q: %w", date, err)
	}
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}
	return !c.holidays[date], nil
}

// Static is a fixed-answer calendar for tests.
type Static bool

// IsTradingDay returns the fixed answer.
func (s Static) IsTradingDay(string) (bool, error) {
	return bool(s), nil
}
