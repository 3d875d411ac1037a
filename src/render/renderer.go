// Package render draws one chart frame onto a Surface and returns the Layout it drew, so
// hit-testing can reuse the exact geometry instead of recomputing it.
package render

import (
	"errors"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/max10788/candlescope/src/segment"
	"github.com/max10788/candlescope/src/selection"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

// AnalysisKind says whether a candle has been analyzed and how.
type AnalysisKind int

const (
	NotAnalyzed AnalysisKind = iota
	AnalyzedSingle
	AnalyzedMulti
)

// Hover is the pointer position and what it resolved to on the previous layout.
type Hover struct {
	Active bool
	X, Y   float64
	Index  int // -1 when no candle is under the pointer
	Band   int // rank of the hovered mover band, 0 for none
}

// Frame is everything one repaint needs.
type Frame struct {
	Transform viewport.Transform
	Series    *series.Series
	Loading   bool
	// Err is a data-shape error; the frame shows it instead of geometry.
	Err        error
	Hover      Hover
	Selection  selection.State
	Current    int
	HasCurrent bool
	// Analysis and Movers are consulted for visible candles only.
	Analysis func(c series.Candle) AnalysisKind
	Movers   func(c series.Candle) (series.MoverSet, bool)
}

// CandleBox is the drawn geometry of one visible candle.
type CandleBox struct {
	Index        int
	SlotX, SlotW float64
	BodyX, BodyW float64
	CenterX      float64
	BodyTop      float64
	BodyBottom   float64
	HighY, LowY  float64
	State        VisualState
	Segmentation *segment.Segmentation
}

// Layout is the geometry of a rendered frame.
type Layout struct {
	Transform viewport.Transform
	Start     int
	End       int
	Boxes     []CandleBox
	Empty     bool
	Message   string
}

// Box returns the box of candle i when it was drawn.
func (l Layout) Box(i int) (*CandleBox, bool) {
	if l.Empty || i < l.Start || i >= l.End || i-l.Start >= len(l.Boxes) {
		return nil, false
	}
	return &l.Boxes[i-l.Start], true
}

// Theme holds the frame colours.
type Theme struct {
	Background    drawing.Color
	Grid          drawing.Color
	Axis          drawing.Color
	Text          drawing.Color
	Up            drawing.Color
	Down          drawing.Color
	Hover         drawing.Color
	Crosshair     drawing.Color
	Pending       drawing.Color
	Current       drawing.Color
	Single        drawing.Color
	Multi         drawing.Color
	Selection     drawing.Color
	Rejected      drawing.Color
	BandHighlight drawing.Color
	LastPrice     drawing.Color
}

// DarkTheme matches the viewer's dark chart background.
func DarkTheme() Theme {
	return Theme{
		Background:    drawing.Color{R: 18, G: 18, B: 18, A: 255},
		Grid:          drawing.Color{R: 48, G: 48, B: 52, A: 255},
		Axis:          drawing.Color{R: 90, G: 90, B: 96, A: 255},
		Text:          drawing.Color{R: 200, G: 200, B: 205, A: 255},
		Up:            drawing.ColorFromHex("22c55e"),
		Down:          drawing.ColorFromHex("ef4444"),
		Hover:         drawing.Color{R: 255, G: 255, B: 255, A: 28},
		Crosshair:     drawing.Color{R: 160, G: 160, B: 170, A: 160},
		Pending:       drawing.ColorFromHex("facc15"),
		Current:       drawing.ColorFromHex("38bdf8"),
		Single:        drawing.ColorFromHex("f97316"),
		Multi:         drawing.ColorFromHex("a855f7"),
		Selection:     drawing.ColorFromHex("60a5fa"),
		Rejected:      drawing.ColorFromHex("f87171"),
		BandHighlight: drawing.ColorWhite,
		LastPrice:     drawing.ColorFromHex("3b82f6"),
	}
}

// Renderer draws frames. It holds no per-frame state.
type Renderer struct {
	Model           segment.Model
	Theme           Theme
	GridLines       int
	MinLabelSpacing float64
	FontSize        float64
	BodyRatio       float64
}

// NewRenderer returns a renderer with the dark theme.
func NewRenderer(model segment.Model) *Renderer {
	return &Renderer{
		Model:           model,
		Theme:           DarkTheme(),
		GridLines:       6,
		MinLabelSpacing: 80,
		FontSize:        10,
		BodyRatio:       0.7,
	}
}

var errNoData = errors.New("no data")

// Render draws f onto s. Candles, segmentation bands and their boxes in the returned Layout
// come from the same computation.
func (r *Renderer) Render(s Surface, f Frame) Layout {
	tr := f.Transform
	s.Resize(tr.Width, tr.Height, tr.PixelRatio)
	s.Clear(r.Theme.Background)

	switch {
	case f.Err != nil:
		return r.drawMessage(s, tr, "Cannot render: "+f.Err.Error())
	case f.Loading && f.Series.Len() == 0:
		return r.drawMessage(s, tr, "Loading…")
	case f.Series.Len() == 0:
		return r.drawMessage(s, tr, errNoData.Error())
	case tr.ChartWidth() <= 0 || tr.ChartHeight() <= 0:
		return Layout{Transform: tr, Empty: true, Message: "too small"}
	}

	lay := Layout{Transform: tr, Start: tr.StartIndex(), End: tr.EndIndex()}
	r.drawGrid(s, tr)
	r.drawTimeAxis(s, tr, f.Series, lay.Start, lay.End)
	lay.Boxes = r.drawCandles(s, f, lay.Start, lay.End)
	r.drawCrosshair(s, tr, f.Hover)
	r.drawLastPrice(s, tr, f.Series)
	r.drawSelection(s, tr, f.Selection)
	r.drawAxes(s, tr)
	return lay
}

func (r *Renderer) drawMessage(s Surface, tr viewport.Transform, msg string) Layout {
	w, h := s.MeasureText(msg, r.FontSize+2)
	s.Text(msg, (tr.Width-w)/2, (tr.Height+h)/2, r.FontSize+2, r.Theme.Text)
	return Layout{Transform: tr, Empty: true, Message: msg}
}

// crisp aligns a line coordinate so a line of the given width covers whole device pixels.
func crisp(v, width, ratio float64) float64 {
	if ratio <= 0 {
		ratio = 1
	}
	dev := math.Max(1, math.Round(width*ratio))
	if int(dev)%2 == 1 {
		return (math.Floor(v*ratio) + 0.5) / ratio
	}
	return math.Round(v*ratio) / ratio
}

func (r *Renderer) drawGrid(s Surface, tr viewport.Transform) {
	m := tr.Margins
	right := tr.Width - m.Right
	top, bottom := m.Top, tr.Height-m.Bottom
	active := tr.ActiveRange()
	ticks, step := PriceTicks(active.Min, active.Max, r.GridLines)
	for _, v := range ticks {
		y := tr.PriceToY(v)
		if y < top || y > bottom {
			continue
		}
		cy := crisp(y, 1, tr.PixelRatio)
		s.Line(m.Left, cy, right, cy, 1, r.Theme.Grid)
		s.Text(FormatPrice(v, step), right+6, y+r.FontSize*0.35, r.FontSize, r.Theme.Text)
	}
}

func (r *Renderer) drawTimeAxis(s Surface, tr viewport.Transform, ser *series.Series, start, end int) {
	if end <= start {
		return
	}
	m := tr.Margins
	bottom := tr.Height - m.Bottom
	step := TimeLabelStride(tr.VisibleCount(), tr.ChartWidth(), r.MinLabelSpacing)
	layout := TimeLabelFormat(ser.At(end-1).Timestamp.Sub(ser.At(start).Timestamp), ser.Interval())
	minX, maxX := m.Left, tr.Width-m.Right
	for _, i := range TimeLabelIndices(start, end, step) {
		cx := crisp(tr.CandleCenterX(i), 1, tr.PixelRatio)
		s.Line(cx, bottom, cx, bottom+4, 1, r.Theme.Axis)
		label := ser.At(i).Timestamp.Local().Format(layout)
		w, _ := s.MeasureText(label, r.FontSize)
		x := math.Min(math.Max(cx-w/2, minX), maxX-w)
		s.Text(label, x, bottom+6+r.FontSize, r.FontSize, r.Theme.Text)
	}
}

func (r *Renderer) flags(f Frame, i int, c series.Candle) Flags {
	var kind AnalysisKind
	if f.Analysis != nil {
		kind = f.Analysis(c)
	}
	return Flags{
		SingleAnalyzed: kind == AnalyzedSingle,
		MultiAnalyzed:  kind == AnalyzedMulti,
		Current:        f.HasCurrent && f.Current == i,
		Pending:        f.Selection.Marks(i),
		Hovered:        f.Hover.Active && f.Hover.Index == i,
	}
}

func (r *Renderer) drawCandles(s Surface, f Frame, start, end int) []CandleBox {
	tr := f.Transform
	slot := tr.CandleWidth()
	ratio := r.BodyRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.7
	}
	bodyW := math.Max(1, slot*ratio)
	boxes := make([]CandleBox, 0, end-start)
	for i := start; i < end; i++ {
		c := f.Series.At(i)
		st := Resolve(r.flags(f, i, c))
		slotX := tr.IndexToX(float64(i))
		top, bottom := segment.BodyBox(tr, c)
		box := CandleBox{
			Index:      i,
			SlotX:      slotX,
			SlotW:      slot,
			BodyX:      slotX + (slot-bodyW)/2,
			BodyW:      bodyW,
			CenterX:    slotX + slot/2,
			BodyTop:    top,
			BodyBottom: bottom,
			HighY:      tr.PriceToY(c.High),
			LowY:       tr.PriceToY(c.Low),
			State:      st,
		}
		if st.Segmented() && f.Movers != nil {
			if set, ok := f.Movers(c); ok {
				seg := r.Model.SegmentBody(top, bottom, set)
				seg.Index, seg.Timestamp = i, c.Timestamp
				box.Segmentation = &seg
			}
		}
		r.drawCandle(s, tr, c, box, f.Hover)
		boxes = append(boxes, box)
	}
	return boxes
}

func (r *Renderer) drawCandle(s Surface, tr viewport.Transform, c series.Candle, b CandleBox, hover Hover) {
	th := r.Theme
	col := th.Down
	if c.Bullish() {
		col = th.Up
	}
	if b.State == StateHovered {
		s.FillRect(b.SlotX, tr.Margins.Top, b.SlotW, tr.ChartHeight(), th.Hover)
	}

	cx := crisp(b.CenterX, 1, tr.PixelRatio)
	s.Line(cx, b.HighY, cx, b.LowY, 1, col)

	rawH := tr.PriceToY(c.BodyLow()) - tr.PriceToY(c.BodyHigh())
	switch {
	case b.Segmentation != nil:
		for _, band := range b.Segmentation.Bands {
			s.FillRect(b.BodyX, band.Top, b.BodyW, band.Height(), band.Color)
			if hover.Active && hover.Index == b.Index && band.Interactive() && hover.Band == band.Rank {
				s.StrokeRect(b.BodyX, band.Top, b.BodyW, band.Height(), 1.5, th.BandHighlight)
			}
		}
	case rawH < segment.MinBodyPx:
		y := crisp((b.BodyTop+b.BodyBottom)/2, 1, tr.PixelRatio)
		s.Line(b.BodyX, y, b.BodyX+b.BodyW, y, 1, col)
	default:
		s.FillRect(b.BodyX, b.BodyTop, b.BodyW, b.BodyBottom-b.BodyTop, col)
	}

	var outline drawing.Color
	switch b.State {
	case StateSingleAnalyzed:
		outline = th.Single
	case StateMultiAnalyzed:
		outline = th.Multi
	case StateCurrent:
		outline = th.Current
	case StatePending:
		outline = th.Pending
	default:
		return
	}
	bottom := b.BodyBottom
	if b.Segmentation != nil {
		bottom = math.Max(bottom, b.Segmentation.BodyTop+b.Segmentation.Extent())
	}
	s.StrokeRect(b.BodyX-1, b.BodyTop-1, b.BodyW+2, bottom-b.BodyTop+2, 1, outline)
}

func (r *Renderer) drawCrosshair(s Surface, tr viewport.Transform, h Hover) {
	if !h.Active || !tr.InChart(h.X, h.Y) {
		return
	}
	m := tr.Margins
	right := tr.Width - m.Right
	x := crisp(h.X, 1, tr.PixelRatio)
	y := crisp(h.Y, 1, tr.PixelRatio)
	s.Line(x, m.Top, x, tr.Height-m.Bottom, 1, r.Theme.Crosshair)
	s.Line(m.Left, y, right, y, 1, r.Theme.Crosshair)
	label := FormatQuote(tr.YToPrice(h.Y))
	s.FillRect(right, h.Y-r.FontSize*0.8, m.Right, r.FontSize*1.6, r.Theme.Axis)
	s.Text(label, right+6, h.Y+r.FontSize*0.35, r.FontSize, drawing.ColorWhite)
}

func (r *Renderer) drawLastPrice(s Surface, tr viewport.Transform, ser *series.Series) {
	last := ser.Last().Close
	y := tr.PriceToY(last)
	if y < tr.Margins.Top || y > tr.Height-tr.Margins.Bottom {
		return
	}
	right := tr.Width - tr.Margins.Right
	s.FillRect(right, y-r.FontSize*0.8, tr.Margins.Right, r.FontSize*1.6, r.Theme.LastPrice)
	s.Text(FormatQuote(last), right+6, y+r.FontSize*0.35, r.FontSize, drawing.ColorWhite)
}

func (r *Renderer) drawSelection(s Surface, tr viewport.Transform, sel selection.State) {
	th := r.Theme
	x0, y0, x1, y1 := sel.Rect.Bounds()
	w, h := x1-x0, y1-y0
	switch sel.Kind {
	case selection.DraggingRectangle:
		s.FillRect(x0, y0, w, h, th.Selection.WithAlpha(40))
		s.StrokeRect(x0, y0, w, h, 1, th.Selection)
	case selection.PendingConfirmation:
		if !sel.Single {
			s.StrokeRect(x0, y0, w, h, 1, th.Pending)
		}
	case selection.Rejected:
		s.FillRect(x0, y0, w, h, th.Rejected.WithAlpha(30))
		s.StrokeRect(x0, y0, w, h, 1, th.Rejected)
		if reason := sel.Reason(); reason != "" {
			ty := math.Max(y0-4, tr.Margins.Top+r.FontSize)
			s.Text(reason, x0, ty, r.FontSize, th.Rejected)
		}
	}
}

func (r *Renderer) drawAxes(s Surface, tr viewport.Transform) {
	m := tr.Margins
	right := crisp(tr.Width-m.Right, 1, tr.PixelRatio)
	bottom := crisp(tr.Height-m.Bottom, 1, tr.PixelRatio)
	s.Line(right, m.Top, right, bottom, 1, r.Theme.Axis)
	s.Line(m.Left, bottom, right, bottom, 1, r.Theme.Axis)
}
