// Package series holds the immutable OHLCV data the chart engine draws.
//
// Input is validated once, at construction: a Series that exists is non-empty, strictly
// increasing in time and every candle satisfies low <= min(open,close) <= max(open,close) <= high.
// Rendering and hit-testing code never re-checks these properties.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrEmptySeries  = errors.New("series is empty")
	ErrNonMonotonic = errors.New("timestamps not strictly increasing")
	ErrInvalidOHLC  = errors.New("invalid OHLC values")
	ErrInvalidMover = errors.New("invalid mover")
)

var validate = validator.New()

// Candle is one OHLCV record for a fixed time bucket.
type Candle struct {
	Timestamp     time.Time `json:"timestamp" validate:"required"`
	Open          float64   `json:"open" validate:"gte=0"`
	High          float64   `json:"high" validate:"gte=0"`
	Low           float64   `json:"low" validate:"gte=0"`
	Close         float64   `json:"close" validate:"gte=0"`
	Volume        float64   `json:"volume" validate:"gte=0"`
	HasHighImpact bool      `json:"has_high_impact"`
}

// BodyHigh is the upper edge of the body (max of open and close).
func (c Candle) BodyHigh() float64 { return math.Max(c.Open, c.Close) }

// BodyLow is the lower edge of the body (min of open and close).
func (c Candle) BodyLow() float64 { return math.Min(c.Open, c.Close) }

// Bullish reports close >= open.
func (c Candle) Bullish() bool { return c.Close >= c.Open }

// Validate checks field constraints and the OHLC ordering invariant.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidOHLC)
		}
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidOHLC)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOHLC, err)
	}
	if c.Low > c.BodyLow() || c.BodyHigh() > c.High {
		return fmt.Errorf("%w: low=%g open=%g close=%g high=%g", ErrInvalidOHLC, c.Low, c.Open, c.Close, c.High)
	}
	return nil
}

// Series is an immutable, index-addressable, strictly time-ordered sequence of candles
// plus an optional per-timestamp impact breakdown.
type Series struct {
	candles []Candle
	impacts map[int64]MoverSet
}

// NewSeries validates and copies candles into a Series.
func NewSeries(candles []Candle) (*Series, error) {
	if len(candles) == 0 {
		return nil, ErrEmptySeries
	}
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return nil, fmt.Errorf("candle %d (%s): %w", i, c.Timestamp.Format(time.RFC3339), ErrNonMonotonic)
		}
	}
	cp := make([]Candle, len(candles))
	copy(cp, candles)
	return &Series{candles: cp}, nil
}

// WithImpacts returns a new Series sharing the candles with the given impact breakdowns attached.
// Sets whose timestamp does not match a candle are dropped.
func (s *Series) WithImpacts(sets []MoverSet) *Series {
	out := &Series{candles: s.candles, impacts: make(map[int64]MoverSet, len(s.impacts)+len(sets))}
	for k, v := range s.impacts {
		out.impacts[k] = v
	}
	for _, ms := range sets {
		if _, ok := s.IndexOf(ms.Timestamp); !ok {
			continue
		}
		out.impacts[ms.Timestamp.UnixNano()] = ms
	}
	return out
}

// Len returns the number of candles.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.candles)
}

// At returns the candle at index i. It panics when i is out of range, like a slice.
func (s *Series) At(i int) Candle { return s.candles[i] }

// Last returns the most recent candle.
func (s *Series) Last() Candle { return s.candles[len(s.candles)-1] }

// Slice returns candles [start,end) clamped to the series bounds. The result must not be modified.
func (s *Series) Slice(start, end int) []Candle {
	if start < 0 {
		start = 0
	}
	if end > len(s.candles) {
		end = len(s.candles)
	}
	if start >= end {
		return nil
	}
	return s.candles[start:end:end]
}

// IndexOf finds the candle with exactly the given timestamp.
func (s *Series) IndexOf(ts time.Time) (int, bool) {
	i := sort.Search(len(s.candles), func(i int) bool { return !s.candles[i].Timestamp.Before(ts) })
	if i < len(s.candles) && s.candles[i].Timestamp.Equal(ts) {
		return i, true
	}
	return -1, false
}

// MoversAt returns the impact breakdown recorded for a timestamp.
func (s *Series) MoversAt(ts time.Time) (MoverSet, bool) {
	if s == nil || s.impacts == nil {
		return MoverSet{}, false
	}
	ms, ok := s.impacts[ts.UnixNano()]
	return ms, ok
}

// Impacts returns every impact breakdown in candle order.
func (s *Series) Impacts() []MoverSet {
	if s == nil || len(s.impacts) == 0 {
		return nil
	}
	out := make([]MoverSet, 0, len(s.impacts))
	for _, c := range s.candles {
		if ms, ok := s.impacts[c.Timestamp.UnixNano()]; ok {
			out = append(out, ms)
		}
	}
	return out
}

// ImpactCount returns how many candles carry an impact breakdown.
func (s *Series) ImpactCount() int {
	if s == nil {
		return 0
	}
	return len(s.impacts)
}

// PriceExtent returns the lowest low and highest high over [start,end).
func (s *Series) PriceExtent(start, end int) (lo, hi float64) {
	cs := s.Slice(start, end)
	if len(cs) == 0 {
		return 0, 0
	}
	lo, hi = cs[0].Low, cs[0].High
	for _, c := range cs[1:] {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	return lo, hi
}

// Interval estimates the bucket size from the smallest gap between consecutive candles.
func (s *Series) Interval() time.Duration {
	if s.Len() < 2 {
		return 0
	}
	best := time.Duration(math.MaxInt64)
	for i := 1; i < len(s.candles); i++ {
		if d := s.candles[i].Timestamp.Sub(s.candles[i-1].Timestamp); d < best {
			best = d
		}
	}
	return best
}
