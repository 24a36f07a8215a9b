package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStrategyIsValid(t *testing.T) {
	require.NoError(t, DefaultStrategy().Validate())
}

func TestStrategyValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"zero break attempts", func(c *StrategyConfig) { c.MaxBreakAttempts = 0 }},
		{"negative zone spread", func(c *StrategyConfig) { c.MinZoneSpreadCents = -1 }},
		{"zero spread percent", func(c *StrategyConfig) { c.MaxZoneSpreadPercent = 0 }},
		{"wrong bar size", func(c *StrategyConfig) { c.BarSizeMinutes = 1 }},
		{"bad clock string", func(c *StrategyConfig) { c.SessionWindows.ZoneStartTime = "9am" }},
		{"empty zone window", func(c *StrategyConfig) { c.SessionWindows.ZoneEndTime = "09:30" }},
		{"zone past cut-off", func(c *StrategyConfig) { c.SessionWindows.ExecutionEndTime = "09:45" }},
		{"non-increasing targets", func(c *StrategyConfig) { c.Targets.Target2RMultiple = 0.5 }},
		{"zero target multiple", func(c *StrategyConfig) { c.Targets.Target3RMultiple = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultStrategy()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseClock(t *testing.T) {
	mins, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*60+30, mins)

	mins, err = ParseClock("16:00")
	require.NoError(t, err)
	assert.Equal(t, 16*60, mins)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("noon")
	assert.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Strategy.MaxBreakAttempts)
	assert.Equal(t, int64(10), cfg.Strategy.MinZoneSpreadCents)
	assert.Equal(t, "09:30", cfg.Strategy.SessionWindows.ZoneStartTime)
	assert.Equal(t, "12:00", cfg.Strategy.SessionWindows.ExecutionEndTime)
	assert.True(t, cfg.Strategy.TrailingStopAt1R)
	assert.Equal(t, 3.0, cfg.Strategy.Targets.Target3RMultiple)
	assert.Equal(t, 8080, cfg.Server.Port)
}
