package prices

import (
	"time"

	"github.com/dividendlab/screener-cli/internal/model"
)

// Resample aggregates daily bars into weekly or monthly ones. Weekly
// buckets end on Sunday, monthly buckets on the last calendar day of the
// month. Aggregation is first-open, max-high, min-low, last-close,
// summed volume. A trailing bucket whose period has not fully elapsed by
// asOf is dropped, so callers never see a half-built aggregate.
func Resample(daily []model.PriceBar, tf model.Timeframe, asOf time.Time) []model.PriceBar {
	if len(daily) == 0 || tf == model.TimeframeDaily {
		return daily
	}

	bucketEnd := weekEnd
	if tf == model.TimeframeMonthly {
		bucketEnd = monthEnd
	}

	var out []model.PriceBar
	for _, b := range daily {
		end := bucketEnd(b.Date)
		if len(out) > 0 && out[len(out)-1].Date.Equal(end) {
			agg := &out[len(out)-1]
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume += b.Volume
			continue
		}
		out = append(out, model.PriceBar{
			Ticker:    b.Ticker,
			Date:      end,
			Timeframe: tf,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	// The last bucket is still accumulating if its end date has not
	// passed yet.
	if len(out) > 0 && !out[len(out)-1].Date.Before(dateOnly(asOf)) {
		out = out[:len(out)-1]
	}
	return out
}

// weekEnd returns the Sunday that closes the calendar week containing d.
func weekEnd(d time.Time) time.Time {
	days := (7 - int(d.Weekday())) % 7
	return dateOnly(d).AddDate(0, 0, days)
}

// monthEnd returns the last calendar day of d's month.
func monthEnd(d time.Time) time.Time {
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
