// Package indicator holds pure technical-indicator math over OHLC series.
package indicator

import "github.com/dividendlab/screener-cli/internal/model"

// Params configures the stochastic oscillator windows. Two conventions are
// in use: the stored-history path smooths slowly (36/12/12) while the legacy
// direct-fetch path ran faster windows (14/3/3). Histories computed under
// either convention exist, so both stay available as named configurations
// instead of constants.
type Params struct {
	KPeriod   int `yaml:"k_period" mapstructure:"k_period"`
	DPeriod   int `yaml:"d_period" mapstructure:"d_period"`
	Smoothing int `yaml:"smoothing" mapstructure:"smoothing"`
}

// StoredHistoryParams is the parameter set used for oscillators computed
// from stored daily history resampled to weekly/monthly bars.
var StoredHistoryParams = Params{KPeriod: 36, DPeriod: 12, Smoothing: 12}

// LegacyDirectParams is the faster parameter set the direct-from-feed
// analyzer historically used.
var LegacyDirectParams = Params{KPeriod: 14, DPeriod: 3, Smoothing: 3}

// MinBars returns the minimum series length that produces any output.
func (p Params) MinBars() int {
	return p.KPeriod + p.Smoothing + p.DPeriod
}

func (p Params) valid() bool {
	return p.KPeriod > 0 && p.DPeriod > 0 && p.Smoothing > 0
}

// Point is one oscillator sample. Valid is false where the value is
// undefined: inside the warm-up window, or wherever a flat high/low range
// made the %K denominator zero.
type Point struct {
	Value float64
	Valid bool
}

// Series is an oscillator series aligned index-for-index with its input
// bars.
type Series []Point

// Last returns the final point's value. ok is false for an empty series or
// when the final point is undefined; an undefined oscillator is reported as
// absent, never as zero.
func (s Series) Last() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	p := s[len(s)-1]
	return p.Value, p.Valid
}

// ValidCount returns the number of defined points.
func (s Series) ValidCount() int {
	n := 0
	for _, p := range s {
		if p.Valid {
			n++
		}
	}
	return n
}

// Stochastic computes the smoothed stochastic oscillator over an OHLC
// series:
//
//	raw %K[t] = 100 * (close[t] - min(low, k)) / (max(high, k) - min(low, k))
//	%K        = SMA(raw %K, smoothing)
//	%D        = SMA(%K, d)
//
// %D is the reported oscillator value. A zero denominator (flat range)
// leaves that point undefined and the gap propagates through both rolling
// means. Fewer than KPeriod+Smoothing+DPeriod bars produce no output at all
// rather than a partially-windowed approximation.
func Stochastic(bars []model.PriceBar, p Params) (k, d Series) {
	if !p.valid() || len(bars) < p.MinBars() {
		return nil, nil
	}

	raw := make(Series, len(bars))
	for t := p.KPeriod - 1; t < len(bars); t++ {
		hh, ll := bars[t].High, bars[t].Low
		for i := t - p.KPeriod + 1; i <= t; i++ {
			if bars[i].High > hh {
				hh = bars[i].High
			}
			if bars[i].Low < ll {
				ll = bars[i].Low
			}
		}
		if hh == ll {
			continue // flat range, point stays undefined
		}
		raw[t] = Point{Value: 100 * (bars[t].Close - ll) / (hh - ll), Valid: true}
	}

	k = rollingMean(raw, p.Smoothing)
	d = rollingMean(k, p.DPeriod)

	// The reported oscillator only counts once a full KPeriod+Smoothing+
	// DPeriod warm-up has elapsed, so a series of exactly MinBars length
	// yields a single point.
	for t := 0; t < p.MinBars()-1 && t < len(d); t++ {
		d[t] = Point{}
	}
	return k, d
}

// rollingMean computes a simple moving average; a window containing any
// undefined point yields an undefined point.
func rollingMean(s Series, window int) Series {
	out := make(Series, len(s))
	for t := window - 1; t < len(s); t++ {
		sum := 0.0
		ok := true
		for i := t - window + 1; i <= t; i++ {
			if !s[i].Valid {
				ok = false
				break
			}
			sum += s[i].Value
		}
		if ok {
			out[t] = Point{Value: sum / float64(window), Valid: true}
		}
	}
	return out
}
