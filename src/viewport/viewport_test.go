package viewport

import (
	"math"
	"testing"
)

// width 672 with default margins leaves a 600px plot: 50 candles at zoom 1.
func newTestViewport(seriesLen int) *Viewport {
	vp := New(DefaultConfig())
	vp.Resize(672, 400, 1)
	vp.SetData(seriesLen, BaseRange(90, 110, 0.1))
	return vp
}

func TestVisibleCountFloor(t *testing.T) {
	cases := []struct {
		chartW, zoom float64
		want         int
	}{
		{600, 1, 50},
		{611, 1, 50},
		{612, 1, 51},
		{600, 8, 10},
		{60, 1, 10},
		{0, 1, 10},
		{600, 0.5, 100},
	}
	for _, c := range cases {
		if got := visibleCount(c.chartW, c.zoom); got != c.want {
			t.Fatalf("visibleCount(%v,%v)=%d want %d", c.chartW, c.zoom, got, c.want)
		}
	}
}

func TestPanClampsToSeriesEnd(t *testing.T) {
	vp := newTestViewport(100)
	if got := vp.Transform().VisibleCount(); got != 50 {
		t.Fatalf("visible=%d want 50", got)
	}
	if clamped := vp.SetTargetPan(200); !clamped {
		t.Fatalf("expected clamp report")
	}
	if got := vp.State().TargetPanOffset; got != 50 {
		t.Fatalf("targetPan=%v want 50", got)
	}
	vp.SetTargetPan(-5)
	if got := vp.State().TargetPanOffset; got != 0 {
		t.Fatalf("targetPan=%v want 0", got)
	}
	tr := Transform{Width: 672, Height: 400, Margins: DefaultMargins(), SeriesLen: 100, ZoomX: 1, ZoomY: 1, PanOffset: 200}
	if tr.StartIndex() != 50 || tr.EndIndex() != 100 {
		t.Fatalf("start/end=%d/%d want 50/100", tr.StartIndex(), tr.EndIndex())
	}
}

func TestShortSeriesStartsAtZero(t *testing.T) {
	vp := newTestViewport(20)
	vp.SetTargetPan(7)
	if got := vp.State().TargetPanOffset; got != 0 {
		t.Fatalf("targetPan=%v want 0 for a series shorter than the window", got)
	}
	tr := vp.TargetTransform()
	if tr.EndIndex() != 20 {
		t.Fatalf("end=%d want 20", tr.EndIndex())
	}
}

func TestRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	for _, zx := range []float64{cfg.ZoomX.Min, 0.7, 1, 2.5, cfg.ZoomX.Max} {
		for _, zy := range []float64{cfg.ZoomY.Min, 1, 3, cfg.ZoomY.Max} {
			for _, pan := range []float64{0, 13.4, 250, 10000} {
				tr := Transform{Width: 900, Height: 500, PixelRatio: 2, Margins: DefaultMargins(),
					Base: BaseRange(95, 130, 0.1), SeriesLen: 500, ZoomX: zx, ZoomY: zy, PanOffset: pan}
				for x := tr.Margins.Left; x < tr.Width-tr.Margins.Right; x += 37.3 {
					for y := tr.Margins.Top; y < tr.Height-tr.Margins.Bottom; y += 29.1 {
						i, p := tr.ScreenToData(x, y)
						gx, gy := tr.DataToScreen(i, p)
						if math.Abs(gx-x) > 1e-6 || math.Abs(gy-y) > 1e-6 {
							t.Fatalf("zx=%v zy=%v pan=%v: (%v,%v) -> (%v,%v) -> (%v,%v)", zx, zy, pan, x, y, i, p, gx, gy)
						}
					}
				}
			}
		}
	}
}

func TestHigherPriceIsHigherOnScreen(t *testing.T) {
	vp := newTestViewport(100)
	tr := vp.Transform()
	if !(tr.PriceToY(105) < tr.PriceToY(100)) {
		t.Fatalf("price axis not inverted")
	}
	mid := tr.Base.Mid()
	y := tr.PriceToY(mid)
	if want := tr.Margins.Top + tr.ChartHeight()/2; math.Abs(y-want) > 1e-9 {
		t.Fatalf("mid price y=%v want %v", y, want)
	}
	tr.ZoomY = 2
	r := tr.ActiveRange()
	if math.Abs(r.Span()-tr.Base.Span()/2) > 1e-9 || math.Abs(r.Mid()-mid) > 1e-9 {
		t.Fatalf("active range %+v not base/2 around %v", r, mid)
	}
}

func TestCenterPreservingZoom(t *testing.T) {
	factors := []float64{1.25, 0.8, 2, 0.5, 3, 0.3}
	vp := newTestViewport(1000)
	vp.SetTargetPan(400)
	for _, f := range factors {
		before := vp.TargetTransform().CenterIndex()
		vp.ZoomXBy(f)
		after := vp.TargetTransform().CenterIndex()
		if math.Abs(after-before) >= 1 {
			t.Fatalf("factor %v: centre moved from %v to %v", f, before, after)
		}
	}
}

func TestZoomClampsToBounds(t *testing.T) {
	vp := newTestViewport(1000)
	vp.ZoomBy(1000)
	st := vp.State()
	cfg := vp.Config()
	if st.TargetZoomX != cfg.ZoomX.Max || st.TargetZoomY != cfg.ZoomY.Max {
		t.Fatalf("zoom not clamped to max: %+v", st)
	}
	vp.ZoomBy(1e-6)
	st = vp.State()
	if st.TargetZoomX != cfg.ZoomX.Min || st.TargetZoomY != cfg.ZoomY.Min {
		t.Fatalf("zoom not clamped to min: %+v", st)
	}
}

func TestAnimatorConvergesAndStops(t *testing.T) {
	vp := newTestViewport(1000)
	sched := &ManualScheduler{}
	frames := 0
	anim := NewAnimator(vp, sched, func() { frames++ })

	anim.Kick()
	if sched.Pending() != 0 {
		t.Fatalf("converged viewport must not schedule a frame")
	}

	vp.SetTargetPan(300)
	vp.ZoomXBy(2)
	vp.ZoomYBy(1.5)
	anim.Kick()
	anim.Kick()
	if sched.Pending() != 1 {
		t.Fatalf("expected exactly one pending frame, got %d", sched.Pending())
	}
	ticks := sched.RunUntilIdle(10000)
	if ticks == 0 || ticks >= 10000 {
		t.Fatalf("animation did not settle: ticks=%d", ticks)
	}
	if !vp.Converged() || anim.Running() {
		t.Fatalf("expected converged and idle: %+v", vp.State())
	}
	st := vp.State()
	if st.ZoomX != st.TargetZoomX || st.PanOffset != st.TargetPanOffset {
		t.Fatalf("values did not snap to targets: %+v", st)
	}
	if frames != ticks {
		t.Fatalf("onFrame ran %d times for %d ticks", frames, ticks)
	}
}

func TestMomentumDecayIsFiniteAndDeterministic(t *testing.T) {
	for _, v0 := range []float64{0.02, -0.5, 3, 40} {
		for _, fr := range []float64{0.5, 0.92, 0.99} {
			n1 := MomentumSteps(v0, fr, 0.01)
			n2 := MomentumSteps(v0, fr, 0.01)
			if n1 != n2 || n1 <= 0 {
				t.Fatalf("v0=%v friction=%v steps %d/%d", v0, fr, n1, n2)
			}
			want := int(math.Ceil(math.Log(0.01/math.Abs(v0)) / math.Log(fr)))
			if n1 < want-1 || n1 > want+1 {
				t.Fatalf("v0=%v friction=%v steps %d, analytic %d", v0, fr, n1, want)
			}
		}
	}
	if MomentumSteps(0.001, 0.92, 0.01) != 0 {
		t.Fatalf("velocity below threshold should need no steps")
	}
}

func TestMomentumMovesPanAndStopsAtEdge(t *testing.T) {
	vp := newTestViewport(1000)
	vp.SetTargetPan(100)
	vp.JumpToTargets()
	sched := &ManualScheduler{}
	anim := NewAnimator(vp, sched, nil)
	anim.Release(2)
	sched.RunUntilIdle(10000)
	got := vp.State().PanOffset
	// geometric series 2/(1-0.92) = 25 candles, minus the tail cut off below the stop threshold
	if got < 120 || got > 125.5 {
		t.Fatalf("momentum pan ended at %v", got)
	}

	vp.SetTargetPan(945)
	vp.JumpToTargets()
	anim.Release(20)
	sched.RunUntilIdle(10000)
	if st := vp.State(); st.PanOffset != 950 || st.Velocity != 0 {
		t.Fatalf("momentum should stop at the end: %+v", st)
	}
}

func TestRegionAt(t *testing.T) {
	tr := Transform{Width: 672, Height: 400, Margins: DefaultMargins(), SeriesLen: 100, ZoomX: 1, ZoomY: 1}
	cases := []struct {
		x, y float64
		want Region
	}{
		{300, 200, RegionChart},
		{650, 200, RegionPriceScale},
		{300, 390, RegionTimeScale},
		{650, 390, RegionTimeScale},
		{2, 200, RegionOutside},
		{-1, 200, RegionOutside},
		{300, 500, RegionOutside},
	}
	for _, c := range cases {
		if got := tr.RegionAt(c.x, c.y); got != c.want {
			t.Fatalf("RegionAt(%v,%v)=%v want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestCandleAt(t *testing.T) {
	tr := Transform{Width: 672, Height: 400, Margins: DefaultMargins(), SeriesLen: 100, ZoomX: 1, ZoomY: 1, PanOffset: 20}
	i, ok := tr.CandleAt(tr.CandleCenterX(33))
	if !ok || i != 33 {
		t.Fatalf("CandleAt centre of 33 => %d,%v", i, ok)
	}
	if _, ok := tr.CandleAt(tr.Margins.Left - 1); ok {
		t.Fatalf("left of the plot must not resolve")
	}
}

func TestBaseRangeFlat(t *testing.T) {
	r := BaseRange(100, 100, 0.1)
	if !(r.Span() > 0) || math.Abs(r.Mid()-100) > 1e-9 {
		t.Fatalf("flat range %+v", r)
	}
	if r := BaseRange(0, 0, 0); r.Span() != 1 {
		t.Fatalf("zero range span=%v want 1", r.Span())
	}
}
