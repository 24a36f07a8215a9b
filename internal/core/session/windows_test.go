package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikeshrana/breakout-trader-go/internal/config"
)

func utcMillis(y int, mo time.Month, d, hh, mm int) int64 {
	return time.Date(y, mo, d, hh, mm, 0, 0, time.UTC).UnixMilli()
}

func TestETToUTCSummer(t *testing.T) {
	// June: EDT, UTC-4.
	ts, err := ETToUTC("2024-06-17", "09:30")
	require.NoError(t, err)
	assert.Equal(t, utcMillis(2024, time.June, 17, 13, 30), ts)
}

func TestETToUTCWinter(t *testing.T) {
	// January: EST, UTC-5.
	ts, err := ETToUTC("2024-01-17", "09:30")
	require.NoError(t, err)
	assert.Equal(t, utcMillis(2024, time.January, 17, 14, 30), ts)
}

func TestETToUTCRejectsGarbage(t *testing.T) {
	_, err := ETToUTC("17/06/2024", "09:30")
	assert.Error(t, err)
	_, err = ETToUTC("2024-06-17", "morning")
	assert.Error(t, err)
}

func TestComputeWindowsOrdering(t *testing.T) {
	win, err := ComputeWindows("2024-06-17", config.DefaultStrategy().SessionWindows)
	require.NoError(t, err)

	assert.Equal(t, utcMillis(2024, time.June, 17, 13, 30), win.ZoneStartUTC)
	assert.Equal(t, utcMillis(2024, time.June, 17, 14, 0), win.ZoneEndUTC)
	assert.Equal(t, utcMillis(2024, time.June, 17, 16, 0), win.ExecutionEndUTC)
	assert.True(t, win.ZoneStartUTC < win.ZoneEndUTC)
	assert.True(t, win.ZoneEndUTC < win.ExecutionEndUTC)
}
