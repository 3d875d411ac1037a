// Package engine wires one chart instance: viewport state, animator, renderer, input
// controller and drawing surface. All methods must be called from the UI goroutine.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/max10788/candlescope/src/interaction"
	"github.com/max10788/candlescope/src/logging"
	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/segment"
	"github.com/max10788/candlescope/src/selection"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

var (
	// ErrNoData is reported when a series is set to nil or empty.
	ErrNoData = errors.New("engine: no data")
	// ErrInvalidData wraps a data-shape error of the series ingestion.
	ErrInvalidData = errors.New("engine: invalid data")
	// ErrStaleRequest is returned by Confirm and Cancel for a request that is no longer pending.
	ErrStaleRequest = errors.New("engine: selection request is not pending")
)

// Events are the callbacks a host subscribes to. Nil callbacks are skipped.
type Events struct {
	// OnCandleActivated fires when a single clicked candle is confirmed for analysis.
	OnCandleActivated func(c series.Candle)
	// OnMultiCandleActivated fires when a rectangle selection is confirmed.
	OnMultiCandleActivated func(candles []series.Candle, opts selection.Options, preview selection.Preview)
	// OnMoverActivated fires when an interactive segmentation band is clicked.
	OnMoverActivated func(c series.Candle, m series.Mover)
	// OnSelectionChanged fires on every selection state transition, including rejections.
	OnSelectionChanged func(st selection.State)
	// OnInvalidData fires when a series is refused; the chart then paints a "cannot render" frame.
	OnInvalidData func(err error)
	// OnRepaint fires after every drawn frame so the host can refresh its canvas.
	OnRepaint func(l render.Layout)
}

// Options configure a chart.
type Options struct {
	Viewport  viewport.Config
	Input     interaction.Config
	Model     segment.Model
	Validator selection.Validator
	Selection selection.Options
	Theme     *render.Theme
	// GridLines and MinLabelSpacing override the renderer defaults when positive.
	GridLines       int
	MinLabelSpacing float64
}

// DefaultOptions returns the default chart options.
func DefaultOptions() Options {
	return Options{
		Viewport:  viewport.DefaultConfig(),
		Input:     interaction.DefaultConfig(),
		Model:     segment.DefaultModel(),
		Validator: selection.DefaultValidator(),
	}
}

// Chart is one chart instance. It owns its viewport state exclusively.
type Chart struct {
	opts     Options
	vp       *viewport.Viewport
	anim     *viewport.Animator
	renderer *render.Renderer
	ctrl     *interaction.Controller
	surface  render.Surface
	sched    viewport.Scheduler
	events   Events
	log      zerolog.Logger

	symbol     string
	ser        *series.Series
	loading    bool
	err        error
	current    int
	hasCurrent bool
	analyzed   map[int64]render.AnalysisKind

	layout      render.Layout
	dirty       bool
	repaintWait bool
	frames      int
}

// New builds a chart drawing onto surface and animating through sched.
func New(opts Options, surface render.Surface, sched viewport.Scheduler, events Events) *Chart {
	c := &Chart{
		opts:     opts,
		vp:       viewport.New(opts.Viewport),
		renderer: render.NewRenderer(opts.Model),
		surface:  surface,
		sched:    sched,
		events:   events,
		log:      logging.Component("engine"),
		analyzed: map[int64]render.AnalysisKind{},
		loading:  true,
	}
	if opts.Theme != nil {
		c.renderer.Theme = *opts.Theme
	}
	if opts.GridLines > 0 {
		c.renderer.GridLines = opts.GridLines
	}
	if opts.MinLabelSpacing > 0 {
		c.renderer.MinLabelSpacing = opts.MinLabelSpacing
	}
	c.anim = viewport.NewAnimator(c.vp, sched, c.Draw)
	c.ctrl = interaction.New(opts.Input, c.vp, c.anim, opts.Validator, chartSink{c})
	c.ctrl.SetOptions(opts.Selection)
	return c
}

// Input returns the controller hosts forward pointer, wheel and key events to.
func (c *Chart) Input() *interaction.Controller { return c.ctrl }

// Viewport returns the chart's viewport.
func (c *Chart) Viewport() *viewport.Viewport { return c.vp }

// Series returns the current series, nil before the first SetSeries.
func (c *Chart) Series() *series.Series { return c.ser }

// Symbol returns the symbol of the current series.
func (c *Chart) Symbol() string { return c.symbol }

// Layout returns the geometry of the last drawn frame.
func (c *Chart) Layout() render.Layout { return c.layout }

// Err returns the data error that blocks rendering, if any.
func (c *Chart) Err() error { return c.err }

// Frames returns how many frames have been drawn.
func (c *Chart) Frames() int { return c.frames }

// SetLoading toggles the loading state. While loading without data nothing but a message is drawn.
func (c *Chart) SetLoading(loading bool) {
	if c.loading == loading {
		return
	}
	c.loading = loading
	c.requestRepaint()
}

// SetCandles validates raw candles and installs them as the series for symbol.
func (c *Chart) SetCandles(symbol string, candles []series.Candle, impacts []series.MoverSet) error {
	s, err := series.NewSeries(candles)
	if err != nil {
		return c.refuse(symbol, err)
	}
	return c.SetSeries(symbol, s.WithImpacts(impacts))
}

// SetSeries replaces the series wholesale. A different symbol resets the view and all marks and
// scrolls to the newest candle; the same symbol keeps zoom and pan, and a pending selection
// keeps its candles by timestamp or is dropped when they are gone.
func (c *Chart) SetSeries(symbol string, s *series.Series) error {
	if s.Len() == 0 {
		return c.refuse(symbol, ErrNoData)
	}
	first := c.ser == nil || c.err != nil
	changed := symbol != c.symbol
	if changed {
		c.vp.Reset()
		c.analyzed = map[int64]render.AnalysisKind{}
		c.hasCurrent = false
		c.ctrl.ClearSelection()
	} else if s.ImpactCount() == 0 && c.ser.ImpactCount() > 0 {
		// live updates carry no breakdowns; keep the ones already fetched
		s = s.WithImpacts(c.ser.Impacts())
	}
	c.symbol, c.ser, c.err, c.loading = symbol, s, nil, false
	c.ctrl.SetSeries(s)

	lo, hi := s.PriceExtent(0, s.Len())
	c.vp.SetData(s.Len(), viewport.BaseRange(lo, hi, c.vp.Config().PricePadding))
	if first || changed {
		c.vp.ScrollToEnd()
		c.vp.JumpToTargets()
	}
	c.log.Debug().Str("symbol", symbol).Int("candles", s.Len()).Int("impacts", s.ImpactCount()).Msg("series set")
	c.requestRepaint()
	return nil
}

// Fail puts the chart into its error state, e.g. when a source could not be read.
func (c *Chart) Fail(symbol string, err error) error {
	if err == nil {
		err = ErrNoData
	}
	return c.refuse(symbol, err)
}

func (c *Chart) refuse(symbol string, err error) error {
	if !errors.Is(err, ErrNoData) {
		err = fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	c.symbol, c.ser, c.err, c.loading = symbol, nil, err, false
	c.vp.SetData(0, viewport.PriceRange{})
	c.ctrl.ClearSelection()
	c.ctrl.SetSeries(nil)
	logging.Warnf("chart %s: %v", symbol, err)
	if c.events.OnInvalidData != nil {
		c.events.OnInvalidData(err)
	}
	c.requestRepaint()
	return err
}

// SetImpact attaches an impact breakdown to its candle and marks the candle analyzed with kind.
func (c *Chart) SetImpact(set series.MoverSet, kind render.AnalysisKind) error {
	if c.ser == nil {
		return ErrNoData
	}
	i, ok := c.ser.IndexOf(set.Timestamp)
	if !ok {
		return fmt.Errorf("engine: no candle at %s", set.Timestamp.Format(time.RFC3339))
	}
	if k := c.opts.Model.TopK; set.Overflow(k) {
		c.log.Debug().Int("index", i).Float64("top_sum", set.TopSum(k)).Msg("impact fractions exceed 1, residual clamped")
	}
	c.ser = c.ser.WithImpacts([]series.MoverSet{set})
	c.markAnalyzed(set.Timestamp, kind)
	c.requestRepaint()
	return nil
}

// MarkAnalyzed records the analysis kind of candles; NotAnalyzed clears the mark.
func (c *Chart) MarkAnalyzed(kind render.AnalysisKind, candles ...series.Candle) {
	for _, cd := range candles {
		c.markAnalyzed(cd.Timestamp, kind)
	}
	c.requestRepaint()
}

func (c *Chart) markAnalyzed(ts time.Time, kind render.AnalysisKind) {
	if kind == render.NotAnalyzed {
		delete(c.analyzed, ts.UnixNano())
		return
	}
	c.analyzed[ts.UnixNano()] = kind
}

// ClearAnalyzed drops every analysis mark.
func (c *Chart) ClearAnalyzed() {
	c.analyzed = map[int64]render.AnalysisKind{}
	c.requestRepaint()
}

// SetCurrent flags candle i as the externally tracked current candle; a negative i clears it.
func (c *Chart) SetCurrent(i int) {
	has := i >= 0 && i < c.ser.Len()
	if has == c.hasCurrent && (!has || i == c.current) {
		return
	}
	c.current, c.hasCurrent = i, has
	c.requestRepaint()
}

// SetSelectionOptions updates lookback options used for previews and multi-candle events.
func (c *Chart) SetSelectionOptions(o selection.Options) {
	c.opts.Selection = o
	c.ctrl.SetOptions(o)
}

// SetValidator replaces the selection cardinality bounds.
func (c *Chart) SetValidator(v selection.Validator) {
	c.opts.Validator = v
	c.ctrl.SetValidator(v)
}

// Confirm answers a pending selection request positively and raises the activation event.
func (c *Chart) Confirm(id uuid.UUID) error {
	st := c.ctrl.Selection()
	if st.Kind != selection.PendingConfirmation || st.RequestID != id {
		return ErrStaleRequest
	}
	c.ctrl.ClearSelection()
	if c.ser == nil {
		return ErrNoData
	}
	candles := st.Candidates(c.ser)
	if len(candles) == 0 {
		return ErrStaleRequest
	}
	if st.Single {
		if len(candles) == 1 && c.events.OnCandleActivated != nil {
			c.events.OnCandleActivated(candles[0])
		}
		return nil
	}
	if c.events.OnMultiCandleActivated != nil {
		c.events.OnMultiCandleActivated(candles, c.opts.Selection, st.Preview)
	}
	return nil
}

// Cancel drops a pending or rejected selection request.
func (c *Chart) Cancel(id uuid.UUID) error {
	st := c.ctrl.Selection()
	if st.Kind == selection.Rejected || (st.Kind == selection.PendingConfirmation && st.RequestID == id) {
		c.ctrl.ClearSelection()
		return nil
	}
	return ErrStaleRequest
}

// Resize records the surface size and draws at once.
func (c *Chart) Resize(width, height, pixelRatio float64) {
	if c.vp.Resize(width, height, pixelRatio) {
		c.log.Debug().Float64("width", width).Float64("height", height).Float64("ratio", pixelRatio).Msg("resize")
	}
	c.Draw()
}

func (c *Chart) requestRepaint() {
	c.dirty = true
	if c.repaintWait || c.sched == nil {
		return
	}
	c.repaintWait = true
	c.sched.RequestFrame(func(viewport.FrameTime) {
		c.repaintWait = false
		if c.dirty {
			c.Draw()
		}
	})
}

// Draw renders the current state onto the surface and stores the layout used for hit-testing.
func (c *Chart) Draw() {
	c.layout = c.renderer.Render(c.surface, c.frame())
	c.ctrl.SetLayout(&c.layout)
	c.dirty = false
	c.frames++
	if c.events.OnRepaint != nil {
		c.events.OnRepaint(c.layout)
	}
}

func (c *Chart) frame() render.Frame {
	f := render.Frame{
		Transform:  c.vp.Transform(),
		Series:     c.ser,
		Loading:    c.loading,
		Err:        c.err,
		Hover:      c.ctrl.Hover(),
		Selection:  c.ctrl.Selection(),
		Current:    c.current,
		HasCurrent: c.hasCurrent,
	}
	if len(c.analyzed) > 0 {
		f.Analysis = func(cd series.Candle) render.AnalysisKind { return c.analyzed[cd.Timestamp.UnixNano()] }
	}
	f.Movers = func(cd series.Candle) (series.MoverSet, bool) { return c.ser.MoversAt(cd.Timestamp) }
	return f
}

// HoverText describes the candle, and the mover band if any, under the pointer.
func (c *Chart) HoverText() string {
	h := c.ctrl.Hover()
	if !h.Active || h.Index < 0 || h.Index >= c.ser.Len() {
		return ""
	}
	cd := c.ser.At(h.Index)
	var b strings.Builder
	fmt.Fprintf(&b, "%s  O %s  H %s  L %s  C %s  V %s",
		cd.Timestamp.UTC().Format("2006-01-02 15:04"),
		render.FormatQuote(cd.Open), render.FormatQuote(cd.High), render.FormatQuote(cd.Low),
		render.FormatQuote(cd.Close), render.FormatQuote(cd.Volume))
	if h.Band > 0 {
		if box, ok := c.layout.Box(h.Index); ok && box.Segmentation != nil {
			for _, band := range box.Segmentation.Bands {
				if band.Rank == h.Band && band.Mover != nil {
					m := band.Mover
					fmt.Fprintf(&b, "\n#%d %s (%s) %.1f%%  vol %s  trades %d",
						band.Rank, m.ActorID, m.ActorClass, m.ImpactFraction*100, render.FormatQuote(m.TotalVolume), m.TradeCount)
				}
			}
		}
	}
	return b.String()
}

// chartSink keeps the controller callbacks off the Chart's exported surface.
type chartSink struct{ c *Chart }

func (s chartSink) Repaint() { s.c.requestRepaint() }

func (s chartSink) SelectionChanged(st selection.State) {
	if st.Kind == selection.Rejected {
		s.c.log.Debug().Str("reason", st.Reason()).Msg("selection rejected")
	}
	if s.c.events.OnSelectionChanged != nil {
		s.c.events.OnSelectionChanged(st)
	}
}

func (s chartSink) SelectionConfirmed(st selection.State) {
	if err := s.c.Confirm(st.RequestID); err != nil {
		s.c.log.Debug().Err(err).Msg("confirm")
	}
}

func (s chartSink) MoverActivated(index int, m series.Mover) {
	if s.c.events.OnMoverActivated != nil && index >= 0 && index < s.c.ser.Len() {
		s.c.events.OnMoverActivated(s.c.ser.At(index), m)
	}
}
