package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/max10788/candlescope/src/segment"
	"github.com/max10788/candlescope/src/selection"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

var t0 = time.Date(2025, 8, 18, 13, 0, 0, 0, time.UTC)

func testSeries(t *testing.T, n int) *series.Series {
	t.Helper()
	cs := make([]series.Candle, n)
	for i := range cs {
		base := 100 + float64(i%7)
		cs[i] = series.Candle{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: base, Close: base + 4, High: base + 5, Low: base - 1, Volume: 1}
	}
	s, err := series.NewSeries(cs)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func testFrame(s *series.Series, ratio float64) Frame {
	lo, hi := s.PriceExtent(0, s.Len())
	return Frame{Transform: viewport.Transform{Width: 672, Height: 400, PixelRatio: ratio, Margins: viewport.DefaultMargins(),
		Base: viewport.BaseRange(lo, hi, 0.1), SeriesLen: s.Len(), ZoomX: 1, ZoomY: 1, PanOffset: 200}, Series: s}
}

func TestResolvePriority(t *testing.T) {
	cases := []struct {
		f    Flags
		want VisualState
	}{
		{Flags{}, StateNormal},
		{Flags{Hovered: true}, StateHovered},
		{Flags{Hovered: true, Pending: true}, StatePending},
		{Flags{Pending: true, Current: true}, StateCurrent},
		{Flags{Current: true, MultiAnalyzed: true}, StateMultiAnalyzed},
		{Flags{MultiAnalyzed: true, SingleAnalyzed: true, Current: true, Pending: true, Hovered: true}, StateSingleAnalyzed},
	}
	for _, c := range cases {
		if got := Resolve(c.f); got != c.want {
			t.Fatalf("Resolve(%+v)=%v want %v", c.f, got, c.want)
		}
	}
	if !StateSingleAnalyzed.Segmented() || !StateMultiAnalyzed.Segmented() || StateCurrent.Segmented() {
		t.Fatalf("Segmented() mismatch")
	}
}

func TestRenderLayoutMatchesTransform(t *testing.T) {
	s := testSeries(t, 100)
	f := testFrame(s, 1)
	rec := &Recorder{}
	lay := NewRenderer(segment.DefaultModel()).Render(rec, f)
	if lay.Empty {
		t.Fatalf("unexpected empty layout: %s", lay.Message)
	}
	if lay.Start != 50 || lay.End != 100 || len(lay.Boxes) != 50 {
		t.Fatalf("layout start=%d end=%d boxes=%d", lay.Start, lay.End, len(lay.Boxes))
	}
	tr := f.Transform
	for _, i := range []int{50, 73, 99} {
		b, ok := lay.Box(i)
		if !ok {
			t.Fatalf("box %d missing", i)
		}
		if math.Abs(b.SlotX-tr.IndexToX(float64(i))) > 1e-9 || math.Abs(b.SlotW-tr.CandleWidth()) > 1e-9 {
			t.Fatalf("box %d slot %v/%v disagrees with transform", i, b.SlotX, b.SlotW)
		}
		c := s.At(i)
		if math.Abs(b.BodyTop-tr.PriceToY(c.Close)) > 1e-9 || math.Abs(b.HighY-tr.PriceToY(c.High)) > 1e-9 {
			t.Fatalf("box %d vertical geometry disagrees with transform", i)
		}
	}
	if _, ok := lay.Box(49); ok {
		t.Fatalf("candle before the window must not have a box")
	}
	if rec.Resizes != 1 {
		t.Fatalf("resizes=%d want 1", rec.Resizes)
	}
}

func TestRenderTimeLabelsIncludeLastCandle(t *testing.T) {
	s := testSeries(t, 100)
	f := testFrame(s, 1)
	rec := &Recorder{}
	NewRenderer(segment.DefaultModel()).Render(rec, f)
	want := s.At(99).Timestamp.Local().Format("15:04")
	found := false
	for _, txt := range rec.Texts() {
		if txt == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("last candle label %q not drawn: %v", want, rec.Texts())
	}
}

func TestRenderFlatCandleIsATick(t *testing.T) {
	cs := []series.Candle{
		{Timestamp: t0, Open: 100, Close: 100, High: 101, Low: 99},
		{Timestamp: t0.Add(time.Minute), Open: 100, Close: 100, High: 100, Low: 100},
	}
	s, err := series.NewSeries(cs)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	f := testFrame(s, 1)
	rec := &Recorder{}
	r := NewRenderer(segment.DefaultModel())
	lay := r.Render(rec, f)
	for _, b := range lay.Boxes {
		if b.BodyBottom-b.BodyTop < segment.MinBodyPx-1e-9 {
			t.Fatalf("box %d body below floor", b.Index)
		}
		for _, op := range rec.Filter(OpFillRect) {
			if op.X == b.BodyX && op.W == b.BodyW && (op.Color == r.Theme.Up || op.Color == r.Theme.Down) {
				t.Fatalf("flat candle %d drawn as a filled rect", b.Index)
			}
		}
	}
}

func TestRenderSegmentedCandle(t *testing.T) {
	s := testSeries(t, 100)
	target := s.At(80)
	set, err := series.NewMoverSet(target.Timestamp, []series.Mover{
		{ActorID: "w", ActorClass: series.ActorWhale, ImpactFraction: 0.5},
		{ActorID: "b", ActorClass: series.ActorBot, ImpactFraction: 0.3},
	})
	if err != nil {
		t.Fatalf("NewMoverSet: %v", err)
	}
	f := testFrame(s, 1)
	f.Analysis = func(c series.Candle) AnalysisKind {
		if c.Timestamp.Equal(target.Timestamp) {
			return AnalyzedSingle
		}
		return NotAnalyzed
	}
	f.Movers = func(c series.Candle) (series.MoverSet, bool) {
		if c.Timestamp.Equal(target.Timestamp) {
			return set, true
		}
		return series.MoverSet{}, false
	}
	f.HasCurrent, f.Current = true, 80
	f.Hover = Hover{Active: true, Index: 80, Band: 2}

	rec := &Recorder{}
	r := NewRenderer(segment.DefaultModel())
	lay := r.Render(rec, f)
	b, ok := lay.Box(80)
	if !ok || b.Segmentation == nil {
		t.Fatalf("segmented box expected")
	}
	if b.State != StateSingleAnalyzed {
		t.Fatalf("state=%v want single-analyzed", b.State)
	}
	if len(b.Segmentation.Bands) != 3 {
		t.Fatalf("bands=%d want 3", len(b.Segmentation.Bands))
	}
	fills := 0
	for _, op := range rec.Filter(OpFillRect) {
		for _, band := range b.Segmentation.Bands {
			if op.Y == band.Top && op.H == band.Height() && op.Color == band.Color {
				fills++
			}
		}
	}
	if fills != 3 {
		t.Fatalf("drawn band fills=%d want 3", fills)
	}
	highlighted := false
	for _, op := range rec.Filter(OpStrokeRect) {
		if op.Color == r.Theme.BandHighlight && op.Y == b.Segmentation.Bands[1].Top {
			highlighted = true
		}
	}
	if !highlighted {
		t.Fatalf("hovered band not highlighted")
	}
	if other, _ := lay.Box(81); other.Segmentation != nil {
		t.Fatalf("unanalyzed candle must not be segmented")
	}
}

func TestRenderInvalidAndEmpty(t *testing.T) {
	r := NewRenderer(segment.DefaultModel())
	f := Frame{Transform: viewport.Transform{Width: 400, Height: 300, Margins: viewport.DefaultMargins()}}
	rec := &Recorder{}
	if lay := r.Render(rec, f); !lay.Empty || lay.Message != "no data" {
		t.Fatalf("empty series layout %+v", lay)
	}
	f.Err = errors.New("timestamps not strictly increasing")
	lay := r.Render(rec, f)
	if !lay.Empty || len(rec.Filter(OpFillRect)) != 0 || len(rec.Filter(OpLine)) != 0 {
		t.Fatalf("invalid data must draw no geometry: %+v", rec.Ops)
	}
	if txt := rec.Texts(); len(txt) != 1 || txt[0] != "Cannot render: timestamps not strictly increasing" {
		t.Fatalf("message %v", txt)
	}
	f.Err = nil
	f.Loading = true
	if lay := r.Render(rec, f); lay.Message != "Loading…" {
		t.Fatalf("loading message %q", lay.Message)
	}
}

func TestRenderSelectionRectangles(t *testing.T) {
	s := testSeries(t, 100)
	f := testFrame(s, 1)
	r := NewRenderer(segment.DefaultModel())

	f.Selection = selection.StartDrag(selection.Point{X: 100, Y: 50}).DragTo(selection.Point{X: 200, Y: 150})
	rec := &Recorder{}
	r.Render(rec, f)
	found := false
	for _, op := range rec.Filter(OpStrokeRect) {
		if op.X == 100 && op.Y == 50 && op.W == 100 && op.H == 100 && op.Color == r.Theme.Selection {
			found = true
		}
	}
	if !found {
		t.Fatalf("drag rectangle not drawn")
	}

	f.Selection = f.Selection.Finish(f.Transform, selection.Validator{Min: 50, Max: 100}, selection.Options{})
	if f.Selection.Kind != selection.Rejected {
		t.Fatalf("expected rejection, got %v", f.Selection.Kind)
	}
	r.Render(rec, f)
	found = false
	for _, txt := range rec.Texts() {
		if txt == f.Selection.Reason() {
			found = true
		}
	}
	if !found {
		t.Fatalf("rejection reason not drawn")
	}
}

func TestRasterSurfaceDevicePixels(t *testing.T) {
	s := testSeries(t, 100)
	f := testFrame(s, 2)
	surf := NewRasterSurface()
	r := NewRenderer(segment.DefaultModel())
	lay := r.Render(surf, f)
	if err := surf.Err(); err != nil {
		t.Fatalf("surface error: %v", err)
	}
	b := surf.Image().Bounds()
	if b.Dx() != 1344 || b.Dy() != 800 {
		t.Fatalf("image %dx%d want 1344x800", b.Dx(), b.Dy())
	}
	box, _ := lay.Box(70)
	px := int((box.BodyX + box.BodyW/4) * 2)
	py := int((box.BodyTop + box.BodyBottom) / 2 * 2)
	got := surf.Image().RGBAAt(px, py)
	want := r.Theme.Up
	if got.R != want.R || got.G != want.G || got.B != want.B {
		t.Fatalf("body pixel %v want %v", got, want)
	}

	// dimension change reallocates
	f.Transform.PixelRatio = 1
	r.Render(surf, f)
	if surf.Image().Bounds().Dx() != 672 {
		t.Fatalf("surface not resized for ratio 1")
	}
	var buf bytes.Buffer
	if err := surf.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestDrawHintPaints(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 80))
	DrawHint(img, "drag: pan  wheel: zoom")
	painted := 0
	for y := 0; y < 80; y++ {
		for x := 0; x < 300; x++ {
			if img.RGBAAt(x, y).A != 0 {
				painted++
			}
		}
	}
	if painted == 0 {
		t.Fatalf("hint drew nothing")
	}
	before := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DrawHint(before, "   ")
	if before.RGBAAt(5, 5) != (color.RGBA{}) {
		t.Fatalf("blank hint must not draw")
	}
}

func TestTimeLabelStrideAndIndices(t *testing.T) {
	if got := TimeLabelStride(50, 600, 80); got != 8 {
		t.Fatalf("stride=%d want ceil(50/7)=8", got)
	}
	if got := TimeLabelStride(5, 600, 80); got != 1 {
		t.Fatalf("stride=%d want 1", got)
	}
	if got := TimeLabelStride(50, 10, 80); got != 50 {
		t.Fatalf("stride=%d want 50 on a tiny chart", got)
	}
	cases := []struct {
		start, end, step int
		want             []int
	}{
		{0, 10, 3, []int{0, 3, 6, 9}},
		{0, 11, 3, []int{0, 3, 6, 10}},
		{50, 100, 8, []int{50, 58, 66, 74, 82, 90, 99}},
		{5, 6, 4, []int{5}},
	}
	for _, c := range cases {
		got := TimeLabelIndices(c.start, c.end, c.step)
		if len(got) != len(c.want) {
			t.Fatalf("TimeLabelIndices(%d,%d,%d)=%v want %v", c.start, c.end, c.step, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("TimeLabelIndices(%d,%d,%d)=%v want %v", c.start, c.end, c.step, got, c.want)
			}
		}
	}
}

func TestPriceTicks(t *testing.T) {
	ticks, step := PriceTicks(97.3, 113.8, 6)
	if len(ticks) < 4 || len(ticks) > 8 {
		t.Fatalf("tick count %d: %v", len(ticks), ticks)
	}
	for i, v := range ticks {
		if v < 97.3 || v > 113.8 {
			t.Fatalf("tick %v outside range", v)
		}
		if i > 0 && math.Abs(v-ticks[i-1]-step) > 1e-6 {
			t.Fatalf("uneven ticks %v step %v", ticks, step)
		}
	}
	cases := []struct {
		step float64
		want int
	}{
		{5, 0}, {1, 0}, {0.5, 1}, {2.5, 1}, {0.25, 2}, {0.001, 3}, {100, 0},
	}
	for _, c := range cases {
		if got := PriceDecimals(c.step); got != c.want {
			t.Fatalf("PriceDecimals(%v)=%d want %d", c.step, got, c.want)
		}
	}
	if FormatPrice(0.000123, 0.00001) != "0.00012" {
		t.Fatalf("FormatPrice small: %s", FormatPrice(0.000123, 0.00001))
	}
}
