// Package viewport maps chart data space (fractional candle index, price) to screen space
// (logical pixels) and owns the zoom/pan state the interaction layer writes and the animator
// advances.
package viewport

import "math"

const (
	// BaseCandlePx is the candle slot width at zoomX == 1.
	BaseCandlePx = 12.0
	// MinVisibleCandles floors the visible window so extreme zoom-in never divides by ~0.
	MinVisibleCandles = 10
)

// Margins reserve space around the plot area. Right holds the price scale, Bottom the time scale.
type Margins struct {
	Top    float64 `mapstructure:"top"`
	Right  float64 `mapstructure:"right"`
	Bottom float64 `mapstructure:"bottom"`
	Left   float64 `mapstructure:"left"`
}

// DefaultMargins leave room for price labels on the right and time labels underneath.
func DefaultMargins() Margins { return Margins{Top: 12, Right: 64, Bottom: 28, Left: 8} }

// PriceRange is a closed price interval.
type PriceRange struct {
	Min, Max float64
}

// Span returns Max-Min.
func (r PriceRange) Span() float64 { return r.Max - r.Min }

// Mid returns the centre of the range.
func (r PriceRange) Mid() float64 { return (r.Min + r.Max) / 2 }

// BaseRange pads [lo,hi] by padding*span on both sides. A flat range gets a span of 1% of the
// price (or 1 for a zero price) so the vertical mapping stays invertible.
func BaseRange(lo, hi, padding float64) PriceRange {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo
	if span <= 0 {
		span = math.Abs(hi) * 0.01
		if span == 0 {
			span = 1
		}
		lo -= span / 2
		hi += span / 2
	}
	pad := span * padding
	return PriceRange{Min: lo - pad, Max: hi + pad}
}

// Region is a screen area with its own wheel semantics.
type Region int

const (
	RegionOutside Region = iota
	RegionChart
	RegionPriceScale
	RegionTimeScale
)

func (r Region) String() string {
	switch r {
	case RegionChart:
		return "chart"
	case RegionPriceScale:
		return "price-scale"
	case RegionTimeScale:
		return "time-scale"
	default:
		return "outside"
	}
}

// Transform is a frame snapshot of the mapping. All methods are pure.
type Transform struct {
	Width, Height float64
	PixelRatio    float64
	Margins       Margins
	Base          PriceRange
	SeriesLen     int
	ZoomX, ZoomY  float64
	PanOffset     float64
}

// ChartWidth is the plot area width in logical pixels.
func (t Transform) ChartWidth() float64 { return math.Max(0, t.Width-t.Margins.Left-t.Margins.Right) }

// ChartHeight is the plot area height in logical pixels.
func (t Transform) ChartHeight() float64 { return math.Max(0, t.Height-t.Margins.Top-t.Margins.Bottom) }

// VisibleCountFor returns the visible candle count for a zoom level at this transform's width.
func (t Transform) VisibleCountFor(zoomX float64) int {
	return visibleCount(t.ChartWidth(), zoomX)
}

func visibleCount(chartW, zoomX float64) int {
	if zoomX <= 0 {
		zoomX = 1
	}
	n := int(math.Floor(chartW / (BaseCandlePx * zoomX)))
	if n < MinVisibleCandles {
		n = MinVisibleCandles
	}
	return n
}

// VisibleCount is max(10, floor(chartWidth / (12*zoomX))).
func (t Transform) VisibleCount() int { return t.VisibleCountFor(t.ZoomX) }

// CandleWidth is the slot width of one candle in logical pixels.
func (t Transform) CandleWidth() float64 { return t.ChartWidth() / float64(t.VisibleCount()) }

// MaxStart is the largest start index that still fills the window.
func (t Transform) MaxStart() int {
	return maxStart(t.SeriesLen, t.VisibleCount())
}

func maxStart(seriesLen, visible int) int {
	if m := seriesLen - visible; m > 0 {
		return m
	}
	return 0
}

// StartIndex is clamp(floor(panOffset), 0, seriesLen-visibleCount).
func (t Transform) StartIndex() int {
	s := int(math.Floor(t.PanOffset))
	if s < 0 {
		s = 0
	}
	if m := t.MaxStart(); s > m {
		s = m
	}
	return s
}

// EndIndex is one past the last visible candle, bounded by the series length.
func (t Transform) EndIndex() int {
	e := t.StartIndex() + t.VisibleCount()
	if e > t.SeriesLen {
		e = t.SeriesLen
	}
	return e
}

// ActiveRange is the base range shrunk by 1/zoomY around its midpoint.
func (t Transform) ActiveRange() PriceRange {
	z := t.ZoomY
	if z <= 0 {
		z = 1
	}
	half := t.Base.Span() / 2 / z
	mid := t.Base.Mid()
	return PriceRange{Min: mid - half, Max: mid + half}
}

// IndexToX maps a fractional index to x. Candle i spans [IndexToX(i), IndexToX(i+1)).
func (t Transform) IndexToX(index float64) float64 {
	return t.Margins.Left + (index-float64(t.StartIndex()))*t.CandleWidth()
}

// XToIndex is the inverse of IndexToX.
func (t Transform) XToIndex(x float64) float64 {
	cw := t.CandleWidth()
	if cw <= 0 {
		return float64(t.StartIndex())
	}
	return float64(t.StartIndex()) + (x-t.Margins.Left)/cw
}

// PriceToY maps a price into the plot area; higher prices have smaller y.
func (t Transform) PriceToY(price float64) float64 {
	r := t.ActiveRange()
	span := r.Span()
	if span <= 0 {
		return t.Margins.Top + t.ChartHeight()/2
	}
	return t.Margins.Top + (r.Max-price)/span*t.ChartHeight()
}

// YToPrice is the inverse of PriceToY.
func (t Transform) YToPrice(y float64) float64 {
	r := t.ActiveRange()
	h := t.ChartHeight()
	if h <= 0 {
		return r.Mid()
	}
	return r.Max - (y-t.Margins.Top)/h*r.Span()
}

// DataToScreen maps (index, price) to (x, y).
func (t Transform) DataToScreen(index, price float64) (x, y float64) {
	return t.IndexToX(index), t.PriceToY(price)
}

// ScreenToData maps (x, y) to (index, price).
func (t Transform) ScreenToData(x, y float64) (index, price float64) {
	return t.XToIndex(x), t.YToPrice(y)
}

// CandleAt resolves x to the integer candle index under it. ok is false outside the series.
func (t Transform) CandleAt(x float64) (int, bool) {
	i := int(math.Floor(t.XToIndex(x)))
	if i < t.StartIndex() || i >= t.EndIndex() {
		return i, false
	}
	return i, true
}

// CandleCenterX returns the centre x of candle i.
func (t Transform) CandleCenterX(i int) float64 { return t.IndexToX(float64(i) + 0.5) }

// RegionAt classifies a screen point.
func (t Transform) RegionAt(x, y float64) Region {
	if x < 0 || y < 0 || x > t.Width || y > t.Height {
		return RegionOutside
	}
	plotRight := t.Width - t.Margins.Right
	plotBottom := t.Height - t.Margins.Bottom
	switch {
	case y >= plotBottom:
		return RegionTimeScale
	case x >= plotRight:
		return RegionPriceScale
	case x >= t.Margins.Left && y >= t.Margins.Top:
		return RegionChart
	}
	return RegionOutside
}

// InChart reports whether the point lies in the plot area.
func (t Transform) InChart(x, y float64) bool { return t.RegionAt(x, y) == RegionChart }

// CenterIndex is the fractional index at the horizontal centre of the plot area.
func (t Transform) CenterIndex() float64 {
	return t.XToIndex(t.Margins.Left + t.ChartWidth()/2)
}
