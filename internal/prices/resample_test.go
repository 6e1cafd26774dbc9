package prices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dividendlab/screener-cli/internal/model"
)

func TestWeekEnd(t *testing.T) {
	// A Sunday closes its own week.
	sunday := time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC)
	require.Equal(t, sunday, weekEnd(sunday))

	monday := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	require.Equal(t, sunday, weekEnd(monday))

	friday := time.Date(2026, 8, 7, 15, 30, 0, 0, time.UTC)
	require.Equal(t, sunday, weekEnd(friday))
}

func TestMonthEnd(t *testing.T) {
	require.Equal(t,
		time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		monthEnd(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)))
	require.Equal(t,
		time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
		monthEnd(time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t,
		time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		monthEnd(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestResampleEmptyAndDaily(t *testing.T) {
	require.Empty(t, Resample(nil, model.TimeframeWeekly, time.Now()))

	daily := tradingDays(time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), 3, 100)
	require.Equal(t, daily, Resample(daily, model.TimeframeDaily, time.Now()))
}

func TestResampleKeepsElapsedTrailingBucket(t *testing.T) {
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	daily := tradingDays(start, 5, 100) // one full week, Mon to Fri

	// The week ends Sunday the 9th; by Monday the 10th it has elapsed.
	weekly := Resample(daily, model.TimeframeWeekly, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))
	require.Len(t, weekly, 1)

	// On Sunday itself the bucket is still open.
	weekly = Resample(daily, model.TimeframeWeekly, time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC))
	require.Empty(t, weekly)
}
