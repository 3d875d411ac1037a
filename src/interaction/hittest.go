package interaction

import (
	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/segment"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

// HitKind classifies what lies under a screen point.
type HitKind int

const (
	HitNone HitKind = iota
	HitCandle
	HitMover
)

func (k HitKind) String() string {
	switch k {
	case HitCandle:
		return "candle"
	case HitMover:
		return "mover"
	default:
		return "none"
	}
}

// Hit is the result of HitTest. Band is set whenever the point lies in a band of a
// segmented candle, including the residual band; Mover only for interactive bands.
type Hit struct {
	Kind   HitKind
	Region viewport.Region
	Index  int
	Band   *segment.Band
	Mover  *series.Mover
	InBand bool
}

// HitTest resolves (x, y) against the geometry of the last drawn frame. It walks the same band
// stack the renderer drew, so hover and click targets match the pixels on screen.
func HitTest(l *render.Layout, x, y float64) Hit {
	if l == nil {
		return Hit{Index: -1}
	}
	h := Hit{Region: l.Transform.RegionAt(x, y), Index: -1}
	if l.Empty || h.Region != viewport.RegionChart {
		return h
	}
	i, ok := l.Transform.CandleAt(x)
	if !ok {
		return h
	}
	box, ok := l.Box(i)
	if !ok {
		return h
	}
	h.Kind, h.Index = HitCandle, i
	if box.Segmentation == nil {
		return h
	}
	if b, ok := box.Segmentation.BandAt(y); ok {
		h.Band, h.InBand = &b, true
		if b.Interactive() {
			h.Kind, h.Mover = HitMover, b.Mover
		}
	}
	return h
}

// BandRank is the rank of the interactive band hit, 0 otherwise.
func (h Hit) BandRank() int {
	if h.Kind != HitMover || h.Band == nil {
		return 0
	}
	return h.Band.Rank
}
