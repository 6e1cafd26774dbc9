package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Timeframe is the bar aggregation granularity. Only daily bars are stored;
// weekly and monthly bars are derived on read by resampling.
type Timeframe string

const (
	TimeframeDaily   Timeframe = "1D"
	TimeframeWeekly  Timeframe = "1W"
	TimeframeMonthly Timeframe = "1M"
)

// PriceBar is one OHLCV bar for a ticker. Uniqueness is
// (ticker, date, timeframe); re-storing an existing date overwrites.
type PriceBar struct {
	Ticker    string    `json:"ticker"`
	Date      time.Time `json:"date"`
	Timeframe Timeframe `json:"timeframe"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Validate checks the OHLC sanity invariants: all prices positive, high is
// the maximum and low the minimum of the bar. Bars failing this are rejected
// before storage.
func (b PriceBar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return eris.Errorf("bar %s %s: non-positive price", b.Ticker, b.Date.Format("2006-01-02"))
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return eris.Errorf("bar %s %s: high below open/close/low", b.Ticker, b.Date.Format("2006-01-02"))
	}
	if b.Low > b.Open || b.Low > b.Close {
		return eris.Errorf("bar %s %s: low above open/close", b.Ticker, b.Date.Format("2006-01-02"))
	}
	return nil
}
