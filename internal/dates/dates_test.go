package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewResolverRejectsUnknownTimezone(t *testing.T) {
	_, err := NewResolver("Not/AZone", nil)
	require.Error(t, err)
}

func TestResolveMonth(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	now := time.Date(2026, time.August, 15, 10, 30, 0, 0, loc)
	r, err := NewResolver("America/Mexico_City", fixedClock(now))
	require.NoError(t, err)

	w, err := r.Resolve(FilterMonth)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, loc), w.Begin)
	require.Equal(t, now, w.End)
	require.Equal(t, 86400, w.Period)
	require.Equal(t, 24, w.Hours)
	require.Equal(t, 15, w.Days)
	require.Equal(t, "01082026000000", w.BeginParam())
	require.Equal(t, "15082026103000", w.EndParam())
}

func TestResolveDayAverage(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	now := time.Date(2026, time.August, 15, 10, 30, 0, 0, loc)
	r, err := NewResolver("America/Mexico_City", fixedClock(now))
	require.NoError(t, err)

	w, err := r.Resolve(FilterDayAverage)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.August, 14, 0, 0, 0, 0, loc), w.Begin)
	require.Equal(t, time.Date(2026, time.August, 15, 0, 0, 0, 0, loc), w.End)
	require.Equal(t, 86400, w.Period)
	require.Equal(t, 24, w.Hours)
	require.Equal(t, 1, w.Days)
}

func TestResolveMonthAverage(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	now := time.Date(2026, time.August, 15, 10, 30, 0, 0, loc)
	r, err := NewResolver("America/Mexico_City", fixedClock(now))
	require.NoError(t, err)

	w, err := r.Resolve(FilterMonthAverage)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, loc), w.Begin)
	require.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, loc), w.End)
	require.Equal(t, 31, w.Days)
	require.Equal(t, 31*86400, w.Period)
	require.Equal(t, 24, w.Hours)
}

func TestResolveMonthAverageShortMonth(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	// February 2026 has 28 days
	now := time.Date(2026, time.March, 1, 0, 5, 0, 0, loc)
	r, err := NewResolver("America/Mexico_City", fixedClock(now))
	require.NoError(t, err)

	w, err := r.Resolve(FilterMonthAverage)
	require.NoError(t, err)
	require.Equal(t, 28, w.Days)
	require.Equal(t, 28*86400, w.Period)
}

func TestResolveUnknownFilter(t *testing.T) {
	r, err := NewResolver("America/Mexico_City", nil)
	require.NoError(t, err)

	_, err = r.Resolve(Filter("yearly"))
	require.Error(t, err)
}
