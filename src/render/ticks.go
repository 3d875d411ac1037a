package render

import (
	"math"
	"strconv"
	"time"
)

// PriceTicks returns about n evenly spaced, rounded price levels inside [lo, hi] and their step.
// Steps follow the 1, 2, 2.5, 5 x 10^k pattern.
func PriceTicks(lo, hi float64, n int) ([]float64, float64) {
	if n < 2 || math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, 0
	}
	if hi <= lo {
		return []float64{lo}, 0
	}
	span := hi - lo
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	step := mag
	best := math.MaxFloat64
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		s := c * mag
		count := math.Floor(span/s) + 1
		if d := math.Abs(count - float64(n)); d < best {
			best, step = d, s
		}
	}
	var out []float64
	for v := math.Ceil(lo/step) * step; v <= hi+step*1e-9; v += step {
		out = append(out, roundTo(v, step))
	}
	return out, step
}

func roundTo(v, step float64) float64 {
	d := PriceDecimals(step) + 2
	p := math.Pow(10, float64(d))
	return math.Round(v*p) / p
}

// PriceDecimals is how many fraction digits distinguish labels spaced step apart.
func PriceDecimals(step float64) int {
	if step <= 0 || math.IsNaN(step) {
		return 2
	}
	d := int(math.Ceil(-math.Log10(step) - 1e-9))
	if frac := step / math.Pow(10, math.Floor(math.Log10(step))); math.Abs(frac-2.5) < 1e-9 {
		d++
	}
	if d < 0 {
		d = 0
	}
	if d > 10 {
		d = 10
	}
	return d
}

// FormatPrice formats v with the precision a tick step needs.
func FormatPrice(v, step float64) string {
	return strconv.FormatFloat(v, 'f', PriceDecimals(step), 64)
}

// FormatQuote gives a compact label for a single price without a step context.
func FormatQuote(v float64) string {
	av := math.Abs(v)
	switch {
	case av >= 1000:
		return strconv.FormatFloat(v, 'f', 1, 64)
	case av >= 1:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case av >= 0.01:
		return strconv.FormatFloat(v, 'f', 4, 64)
	case av == 0:
		return "0"
	default:
		return strconv.FormatFloat(v, 'g', 4, 64)
	}
}

// TimeLabelStride is ceil(visible / floor(chartWidth/minSpacing)), at least 1.
func TimeLabelStride(visible int, chartWidth, minSpacing float64) int {
	if minSpacing <= 0 {
		minSpacing = 1
	}
	slots := int(math.Floor(chartWidth / minSpacing))
	if slots < 1 {
		slots = 1
	}
	step := int(math.Ceil(float64(visible) / float64(slots)))
	if step < 1 {
		step = 1
	}
	return step
}

// TimeLabelIndices lists label positions start, start+step, ... in [start, end) and always
// ends with end-1. A regular label closer than step to end-1 is replaced by it.
func TimeLabelIndices(start, end, step int) []int {
	if end <= start {
		return nil
	}
	if step < 1 {
		step = 1
	}
	var out []int
	for i := start; i < end; i += step {
		out = append(out, i)
	}
	last := end - 1
	if n := len(out); out[n-1] != last {
		if last-out[n-1] < step {
			out = out[:n-1]
		}
		out = append(out, last)
	}
	return out
}

// TimeLabelFormat chooses a time layout for labels spanning span at the given candle interval.
func TimeLabelFormat(span, interval time.Duration) string {
	switch {
	case interval > 0 && interval < time.Minute:
		return "15:04:05"
	case span <= 24*time.Hour:
		return "15:04"
	case span <= 3*24*time.Hour:
		return "Jan 2 15:04"
	case span <= 400*24*time.Hour:
		return "Jan 2"
	default:
		return "Jan 2006"
	}
}
