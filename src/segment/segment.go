// Package segment partitions a candle body into stacked, coloured bands, one per top-ranked
// mover plus a residual "other" band. The renderer draws these bands and the hit-tester walks
// them, so both always agree on where a band is.
package segment

import (
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

const (
	DefaultTopK      = 3
	DefaultMinBandPx = 2.0
	// MinBodyPx is the floor height of a drawn candle body.
	MinBodyPx = 1.0
)

// Band is one stacked slice of a candle body in screen pixels. Mover is nil for the residual band.
type Band struct {
	Top, Bottom float64
	Color       drawing.Color
	Mover       *series.Mover
	Fraction    float64
	Rank        int // 1-based; 0 for the residual band
}

// Height returns Bottom-Top.
func (b Band) Height() float64 { return b.Bottom - b.Top }

// Interactive reports whether clicking the band activates a mover.
func (b Band) Interactive() bool { return b.Mover != nil }

// Segmentation is the band stack of one candle.
type Segmentation struct {
	Index      int
	Timestamp  time.Time
	BodyTop    float64
	BodyBottom float64
	Bands      []Band
	Residual   float64
	// Overflow is set when the top-K fractions sum past 1; bands then extend below the body.
	Overflow bool
}

// BandAt walks the bands top to bottom, accumulating heights from BodyTop, and returns the
// band whose [y0, y0+height) contains y.
func (s *Segmentation) BandAt(y float64) (Band, bool) {
	if s == nil {
		return Band{}, false
	}
	cur := s.BodyTop
	for _, b := range s.Bands {
		h := b.Height()
		if y >= cur && y < cur+h {
			return b, true
		}
		cur += h
	}
	return Band{}, false
}

// MoverAt returns the mover of the interactive band under y.
func (s *Segmentation) MoverAt(y float64) (*series.Mover, bool) {
	b, ok := s.BandAt(y)
	if !ok || !b.Interactive() {
		return nil, false
	}
	return b.Mover, true
}

// Extent returns the total stacked height of all bands.
func (s *Segmentation) Extent() float64 {
	var sum float64
	for _, b := range s.Bands {
		sum += b.Height()
	}
	return sum
}

// Model holds the segmentation parameters.
type Model struct {
	TopK      int
	MinBandPx float64
	Palette   Palette
}

// DefaultModel uses top-3, a 2px band floor and the built-in palette.
func DefaultModel() Model {
	return Model{TopK: DefaultTopK, MinBandPx: DefaultMinBandPx, Palette: DefaultPalette()}
}

func (m Model) topK() int {
	if m.TopK <= 0 {
		return DefaultTopK
	}
	return m.TopK
}

// BodyBox returns the screen extent of a candle body, floored to MinBodyPx around its centre.
func BodyBox(tr viewport.Transform, c series.Candle) (top, bottom float64) {
	top = tr.PriceToY(c.BodyHigh())
	bottom = tr.PriceToY(c.BodyLow())
	if bottom-top < MinBodyPx {
		mid := (top + bottom) / 2
		top, bottom = mid-MinBodyPx/2, mid+MinBodyPx/2
	}
	return top, bottom
}

// Segment computes the band stack of candle at index i using the frame's transform.
func (m Model) Segment(i int, c series.Candle, set series.MoverSet, tr viewport.Transform) Segmentation {
	top, bottom := BodyBox(tr, c)
	s := m.SegmentBody(top, bottom, set)
	s.Index = i
	s.Timestamp = c.Timestamp
	return s
}

// SegmentBody stacks bands from top downward over a body spanning [top, bottom]. Band height is
// bodyHeight*fraction, floored to MinBandPx. When the floors push the total past the body height
// and the fractions sum to at most 1, the excess is taken back from bands above the floor so the
// stack still fits the body.
func (m Model) SegmentBody(top, bottom float64, set series.MoverSet) Segmentation {
	if top > bottom {
		top, bottom = bottom, top
	}
	k := m.topK()
	movers := set.Top(k)
	residual := set.Residual(k)
	overflow := set.Overflow(k)
	bodyH := bottom - top

	fractions := make([]float64, 0, len(movers)+1)
	for _, mv := range movers {
		fractions = append(fractions, mv.ImpactFraction)
	}
	if residual > 0 {
		fractions = append(fractions, residual)
	}
	heights := fitHeights(fractions, bodyH, m.MinBandPx, !overflow)

	seg := Segmentation{
		Timestamp:  set.Timestamp,
		BodyTop:    top,
		BodyBottom: bottom,
		Residual:   residual,
		Overflow:   overflow,
		Bands:      make([]Band, 0, len(heights)),
	}
	cur := top
	for i, h := range heights {
		b := Band{Top: cur, Bottom: cur + h, Fraction: fractions[i]}
		if i < len(movers) {
			mv := movers[i]
			b.Mover = &mv
			b.Rank = i + 1
			b.Color = m.Palette.ColorFor(mv, i)
		} else {
			b.Color = m.Palette.Other
		}
		seg.Bands = append(seg.Bands, b)
		cur += h
	}
	return seg
}

func fitHeights(fractions []float64, total, minPx float64, fit bool) []float64 {
	heights := make([]float64, len(fractions))
	var sum float64
	for i, f := range fractions {
		heights[i] = math.Max(total*f, minPx)
		sum += heights[i]
	}
	excess := sum - total
	if !fit || excess <= 1e-9 {
		return heights
	}
	var slack float64
	for _, h := range heights {
		slack += h - minPx
	}
	if slack < excess {
		// body too short for every floor
		return heights
	}
	for i, h := range heights {
		heights[i] = h - excess*(h-minPx)/slack
	}
	return heights
}
