package segment

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

var ts = time.Date(2025, 8, 18, 13, 26, 0, 0, time.UTC)

func mustSet(t *testing.T, movers ...series.Mover) series.MoverSet {
	t.Helper()
	ms, err := series.NewMoverSet(ts, movers)
	if err != nil {
		t.Fatalf("NewMoverSet: %v", err)
	}
	return ms
}

func TestSegmentScenarioProportionalBands(t *testing.T) {
	c := series.Candle{Timestamp: ts, Open: 100, Close: 110, High: 112, Low: 98}
	tr := viewport.Transform{Width: 672, Height: 440, Margins: viewport.DefaultMargins(),
		Base: viewport.BaseRange(98, 112, 0.1), SeriesLen: 1, ZoomX: 1, ZoomY: 1}
	set := mustSet(t,
		series.Mover{ActorID: "w", ActorClass: series.ActorWhale, ImpactFraction: 0.5},
		series.Mover{ActorID: "m", ActorClass: series.ActorMarketMaker, ImpactFraction: 0.3},
	)
	seg := DefaultModel().Segment(0, c, set, tr)

	bodyTop, bodyBottom := tr.PriceToY(110), tr.PriceToY(100)
	bodyH := bodyBottom - bodyTop
	if math.Abs(seg.BodyTop-bodyTop) > 1e-9 || math.Abs(seg.BodyBottom-bodyBottom) > 1e-9 {
		t.Fatalf("body %v..%v want %v..%v", seg.BodyTop, seg.BodyBottom, bodyTop, bodyBottom)
	}
	want := []float64{0.5, 0.3, 0.2}
	if len(seg.Bands) != len(want) {
		t.Fatalf("bands=%d want %d", len(seg.Bands), len(want))
	}
	for i, w := range want {
		got := seg.Bands[i].Height() / bodyH
		if math.Abs(got-w) > 1e-9 {
			t.Fatalf("band %d share %v want %v", i, got, w)
		}
	}
	if seg.Bands[2].Interactive() || seg.Bands[2].Rank != 0 {
		t.Fatalf("residual band must not be interactive: %+v", seg.Bands[2])
	}
	if seg.Bands[0].Mover.ActorID != "w" || seg.Bands[0].Rank != 1 {
		t.Fatalf("first band should be the largest mover: %+v", seg.Bands[0])
	}
	if seg.Bands[0].Top != bodyTop {
		t.Fatalf("stack must start at the body top")
	}
}

func TestSegmentSumsAndFloors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := DefaultModel()
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(5)
		remaining := 1.0
		movers := make([]series.Mover, n)
		for i := range movers {
			f := rng.Float64() * remaining
			if rng.Intn(6) == 0 {
				f = 0
			}
			remaining -= f
			movers[i] = series.Mover{ActorID: string(rune('a' + i)), ImpactFraction: f}
		}
		set := mustSet(t, movers...)
		top := 50 + rng.Float64()*100
		bottom := top + 20 + rng.Float64()*300
		seg := m.SegmentBody(top, bottom, set)
		if math.Abs(seg.Extent()-(bottom-top)) > 1e-6 {
			t.Fatalf("iter %d: bands sum %v want body %v", iter, seg.Extent(), bottom-top)
		}
		for i, b := range seg.Bands {
			if b.Height() < m.MinBandPx-1e-9 {
				t.Fatalf("iter %d: band %d height %v below floor", iter, i, b.Height())
			}
		}
	}
}

func TestSegmentOverflowClampsResidual(t *testing.T) {
	set := mustSet(t,
		series.Mover{ActorID: "a", ImpactFraction: 0.8},
		series.Mover{ActorID: "b", ImpactFraction: 0.6},
	)
	seg := DefaultModel().SegmentBody(100, 200, set)
	if !seg.Overflow || seg.Residual != 0 {
		t.Fatalf("expected overflow with zero residual: %+v", seg)
	}
	if len(seg.Bands) != 2 {
		t.Fatalf("no residual band expected, got %d bands", len(seg.Bands))
	}
	if math.Abs(seg.Bands[1].Bottom-240) > 1e-9 {
		t.Fatalf("overflowing stack should extend to 240, got %v", seg.Bands[1].Bottom)
	}
}

func TestSegmentTopKLimitsBands(t *testing.T) {
	set := mustSet(t,
		series.Mover{ActorID: "a", ImpactFraction: 0.2},
		series.Mover{ActorID: "b", ImpactFraction: 0.2},
		series.Mover{ActorID: "c", ImpactFraction: 0.2},
		series.Mover{ActorID: "d", ImpactFraction: 0.2},
	)
	seg := Model{TopK: 2, MinBandPx: 2, Palette: DefaultPalette()}.SegmentBody(0, 100, set)
	if len(seg.Bands) != 3 {
		t.Fatalf("want 2 mover bands plus residual, got %d", len(seg.Bands))
	}
	if math.Abs(seg.Residual-0.6) > 1e-9 {
		t.Fatalf("residual %v want 0.6", seg.Residual)
	}
}

func TestBandAtWalksStack(t *testing.T) {
	set := mustSet(t,
		series.Mover{ActorID: "a", ImpactFraction: 0.5},
		series.Mover{ActorID: "b", ImpactFraction: 0.25},
	)
	seg := DefaultModel().SegmentBody(100, 200, set)
	cases := []struct {
		y      float64
		id     string
		ok     bool
		active bool
	}{
		{100, "a", true, true},
		{149.9, "a", true, true},
		{150, "b", true, true},
		{174.9, "b", true, true},
		{180, "", true, false},
		{200, "", false, false},
		{99, "", false, false},
	}
	for _, c := range cases {
		b, ok := seg.BandAt(c.y)
		if ok != c.ok {
			t.Fatalf("y=%v ok=%v want %v", c.y, ok, c.ok)
		}
		if !ok {
			continue
		}
		if b.Interactive() != c.active {
			t.Fatalf("y=%v interactive=%v want %v", c.y, b.Interactive(), c.active)
		}
		if c.active && b.Mover.ActorID != c.id {
			t.Fatalf("y=%v mover=%s want %s", c.y, b.Mover.ActorID, c.id)
		}
		if _, ok := seg.MoverAt(c.y); ok != c.active {
			t.Fatalf("y=%v MoverAt ok=%v want %v", c.y, ok, c.active)
		}
	}
}

func TestPaletteFallbackOrder(t *testing.T) {
	p := DefaultPalette()
	whale := series.Mover{ActorClass: series.ActorWhale}
	odd := series.Mover{ActorClass: series.ActorClass("arbitrageur")}
	if p.ColorFor(whale, 2) != p.ByClass[series.ActorWhale] {
		t.Fatalf("class colour expected")
	}
	if got := p.ColorFor(odd, 1); got != p.Cycle[1] {
		t.Fatalf("cycle colour expected, got %v", got)
	}
	if got := p.ColorFor(odd, len(p.Cycle)+1); got != p.Cycle[1] {
		t.Fatalf("cycle should wrap, got %v", got)
	}
	p.Cycle = nil
	if got := p.ColorFor(odd, 1); got != p.Default {
		t.Fatalf("default colour expected, got %v", got)
	}
}

func TestPaletteFromHex(t *testing.T) {
	p, err := PaletteFromHex(map[string]string{"marketMaker": "#112233"}, []string{"#fff"}, "#000000", "")
	if err != nil {
		t.Fatalf("PaletteFromHex: %v", err)
	}
	if p.ByClass[series.ActorMarketMaker] != (drawing.Color{R: 0x11, G: 0x22, B: 0x33, A: 255}) {
		t.Fatalf("by-class colour %v", p.ByClass[series.ActorMarketMaker])
	}
	if _, ok := p.ByClass[series.ActorWhale]; ok {
		t.Fatalf("configured map replaces the built-in one")
	}
	if p.Cycle[0] != drawing.ColorWhite || p.Other != DefaultPalette().Other {
		t.Fatalf("cycle/other not applied: %+v", p)
	}
	for _, bad := range []string{"112233", "#12", "#abcd", "red"} {
		if _, err := PaletteFromHex(nil, nil, bad, ""); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
