package series

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Synthetic builds a deterministic random-walk series of n candles starting at start, plus an
// impact breakdown on every impactEvery-th candle (0 disables breakdowns). The viewer's demo
// and screenshot modes and the tests use it.
func Synthetic(n int, start time.Time, interval time.Duration, seed int64, impactEvery int) (*Series, error) {
	if n <= 0 {
		return nil, ErrEmptySeries
	}
	rng := rand.New(rand.NewSource(seed))
	candles := make([]Candle, n)
	sets := []MoverSet{}
	price := 100.0
	classes := []ActorClass{ActorWhale, ActorMarketMaker, ActorBot, ActorUnknown}
	for i := range candles {
		open := price
		drift := rng.NormFloat64() * 0.8
		closeP := math.Max(1, open+drift)
		high := math.Max(open, closeP) + rng.Float64()*0.6
		low := math.Max(0.5, math.Min(open, closeP)-rng.Float64()*0.6)
		if i%37 == 5 {
			// doji
			closeP = open
			high = open + 0.3
			low = open - 0.3
		}
		ts := start.Add(time.Duration(i) * interval)
		candles[i] = Candle{
			Timestamp:     ts,
			Open:          round2(open),
			High:          round2(high),
			Low:           round2(low),
			Close:         round2(closeP),
			Volume:        round2(5 + rng.Float64()*50),
			HasHighImpact: impactEvery > 0 && i%impactEvery == 0,
		}
		// keep the OHLC order after rounding
		c := &candles[i]
		c.High = math.Max(c.High, math.Max(c.Open, c.Close))
		c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
		price = closeP

		if impactEvery > 0 && i%impactEvery == 0 {
			k := 1 + rng.Intn(4)
			left := 0.95
			movers := make([]Mover, 0, k)
			for j := 0; j < k; j++ {
				f := round2(left * (0.3 + rng.Float64()*0.4))
				left -= f
				movers = append(movers, Mover{
					ActorID:        fmt.Sprintf("0x%04x%02d", rng.Intn(0xffff), j),
					ActorClass:     classes[rng.Intn(len(classes))],
					ImpactFraction: f,
					TotalVolume:    round2(rng.Float64() * 20),
					TradeCount:     1 + rng.Intn(200),
				})
			}
			ms, err := NewMoverSet(ts, movers)
			if err != nil {
				return nil, err
			}
			sets = append(sets, ms)
		}
	}
	s, err := NewSeries(candles)
	if err != nil {
		return nil, err
	}
	return s.WithImpacts(sets), nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
