// Package interaction turns raw pointer, wheel and key input into viewport targets and
// selection state. It never draws; it asks its Sink for a repaint instead.
package interaction

import (
	"math"
	"time"

	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/selection"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

// Button is a pointer button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
)

// Modifiers is a bit set of held modifier keys.
type Modifiers uint8

const (
	// ModShift zooms both axes together.
	ModShift Modifiers = 1 << iota
	// ModAlt zooms the price axis only.
	ModAlt
	ModCtrl
)

// Key is a named key the controller binds.
type Key string

const (
	KeyPlus     Key = "+"
	KeyEqual    Key = "="
	KeyMinus    Key = "-"
	KeyZero     Key = "0"
	KeyPageUp   Key = "PageUp"
	KeyPageDown Key = "PageDown"
	KeyHome     Key = "Home"
	KeyEnd      Key = "End"
	KeyEscape   Key = "Escape"
	KeyEnter    Key = "Return"
)

// Mode is the pointer gesture in progress.
type Mode int

const (
	ModeIdle Mode = iota
	ModePanning
	ModeSelecting
)

func (m Mode) String() string {
	switch m {
	case ModePanning:
		return "panning"
	case ModeSelecting:
		return "selecting"
	default:
		return "idle"
	}
}

// Sink receives the controller's outward effects.
type Sink interface {
	Repaint()
	SelectionChanged(st selection.State)
	SelectionConfirmed(st selection.State)
	MoverActivated(index int, m series.Mover)
}

// Config tunes input handling.
type Config struct {
	WheelStep       float64       // zoom factor per wheel notch
	KeyZoom         float64       // zoom factor per +/- press
	DoubleClickZoom float64       // zoom factor for a double click in the plot
	DragThreshold   float64       // pixels a press may move and still count as a click
	FrameInterval   time.Duration // converts pointer velocity into candles per frame
	ReleaseIdle     time.Duration // a pause this long before release drops momentum
	VelocitySmooth  float64       // weight of the newest sample in the velocity average
}

// DefaultConfig returns the default input tuning.
func DefaultConfig() Config {
	return Config{
		WheelStep:       1.1,
		KeyZoom:         1.25,
		DoubleClickZoom: 2,
		DragThreshold:   3,
		FrameInterval:   16 * time.Millisecond,
		ReleaseIdle:     100 * time.Millisecond,
		VelocitySmooth:  0.8,
	}
}

// Controller is the input state machine of one chart.
type Controller struct {
	cfg       Config
	vp        *viewport.Viewport
	anim      *viewport.Animator
	sink      Sink
	validator selection.Validator
	options   selection.Options

	layout *render.Layout
	series *series.Series
	mode   Mode
	sel    selection.State
	hover  render.Hover

	pressX, pressY float64
	moved          bool
	startPan       float64
	lastX          float64
	lastT          time.Time
	velocity       float64
}

// New wires a controller to a viewport, its animator and a sink.
func New(cfg Config, vp *viewport.Viewport, anim *viewport.Animator, v selection.Validator, sink Sink) *Controller {
	d := DefaultConfig()
	if cfg.WheelStep <= 1 {
		cfg.WheelStep = d.WheelStep
	}
	if cfg.KeyZoom <= 1 {
		cfg.KeyZoom = d.KeyZoom
	}
	if cfg.DoubleClickZoom <= 1 {
		cfg.DoubleClickZoom = d.DoubleClickZoom
	}
	if cfg.DragThreshold <= 0 {
		cfg.DragThreshold = d.DragThreshold
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = d.FrameInterval
	}
	if cfg.ReleaseIdle <= 0 {
		cfg.ReleaseIdle = d.ReleaseIdle
	}
	if cfg.VelocitySmooth <= 0 || cfg.VelocitySmooth > 1 {
		cfg.VelocitySmooth = d.VelocitySmooth
	}
	return &Controller{cfg: cfg, vp: vp, anim: anim, sink: sink, validator: v, hover: render.Hover{Index: -1}}
}

// SetLayout stores the geometry of the frame just drawn; hit-testing uses it until the next frame.
func (c *Controller) SetLayout(l *render.Layout) { c.layout = l }

// SetValidator replaces the selection bounds.
func (c *Controller) SetValidator(v selection.Validator) { c.validator = v }

// SetOptions sets the analysis options used for selection previews.
func (c *Controller) SetOptions(o selection.Options) { c.options = o }

// Mode returns the gesture in progress.
func (c *Controller) Mode() Mode { return c.mode }

// Animating reports whether the animator has a frame scheduled.
func (c *Controller) Animating() bool { return c.anim != nil && c.anim.Running() }

// Selection returns the current selection state.
func (c *Controller) Selection() selection.State { return c.sel }

// Hover returns the last hover resolution.
func (c *Controller) Hover() render.Hover { return c.hover }

// HitTest resolves a point against the last drawn frame.
func (c *Controller) HitTest(x, y float64) Hit { return HitTest(c.layout, x, y) }

// SetSeries installs a replacement series. A pending or rejected selection follows its
// candles to their new indices, or returns to Idle when they are gone; hover follows its
// candle the same way.
func (c *Controller) SetSeries(ser *series.Series) {
	old := c.series
	c.series = ser
	if c.hover.Index >= 0 {
		idx := -1
		if c.hover.Index < old.Len() && ser != nil {
			if i, ok := ser.IndexOf(old.At(c.hover.Index).Timestamp); ok {
				idx = i
			}
		}
		if idx != c.hover.Index {
			c.hover.Index, c.hover.Band = idx, 0
			c.sink.Repaint()
		}
	}
	if c.sel.Kind != selection.PendingConfirmation && c.sel.Kind != selection.Rejected {
		return
	}
	moved, ok := c.sel.Rebase(ser, c.options)
	if !ok {
		c.setSelection(selection.IdleState())
		return
	}
	if moved.Range != c.sel.Range {
		c.sel = moved
		c.sink.Repaint()
	}
}

func (c *Controller) setSelection(st selection.State) {
	if c.series != nil {
		st = st.Anchor(c.series)
	}
	c.sel = st
	c.sink.SelectionChanged(st)
	c.sink.Repaint()
}

// ClearSelection returns to Idle, for example after the host answered a confirmation.
func (c *Controller) ClearSelection() {
	if c.sel.Kind == selection.Idle {
		return
	}
	c.setSelection(selection.IdleState())
}

func (c *Controller) kick() {
	if c.anim != nil {
		c.anim.Kick()
	}
	c.sink.Repaint()
}

func (c *Controller) candleWidth() float64 {
	if c.layout != nil && !c.layout.Empty {
		return c.layout.Transform.CandleWidth()
	}
	return c.vp.Transform().CandleWidth()
}

// PointerDown starts a pan (primary) or a rectangle selection (secondary) inside the plot.
func (c *Controller) PointerDown(x, y float64, b Button, now time.Time) {
	region := c.vp.Transform().RegionAt(x, y)
	if region != viewport.RegionChart && !(b == ButtonPrimary && region == viewport.RegionTimeScale) {
		return
	}
	c.pressX, c.pressY, c.moved = x, y, false
	switch b {
	case ButtonPrimary:
		c.mode = ModePanning
		c.vp.StopMomentum()
		c.startPan = c.vp.State().TargetPanOffset
		c.lastX, c.lastT, c.velocity = x, now, 0
	case ButtonSecondary:
		if region != viewport.RegionChart {
			return
		}
		c.mode = ModeSelecting
		c.setSelection(selection.StartDrag(selection.Point{X: x, Y: y}))
	}
}

// PointerMove updates the gesture in progress or, when idle, the hover state.
func (c *Controller) PointerMove(x, y float64, now time.Time) {
	if math.Hypot(x-c.pressX, y-c.pressY) > c.cfg.DragThreshold {
		c.moved = true
	}
	switch c.mode {
	case ModePanning:
		cw := c.candleWidth()
		if cw <= 0 {
			return
		}
		c.vp.SetTargetPan(c.startPan - (x-c.pressX)/cw)
		if dt := now.Sub(c.lastT); dt > 0 {
			frames := float64(dt) / float64(c.cfg.FrameInterval)
			inst := -(x - c.lastX) / cw / frames
			c.velocity = c.cfg.VelocitySmooth*inst + (1-c.cfg.VelocitySmooth)*c.velocity
		}
		c.lastX, c.lastT = x, now
		c.kick()
	case ModeSelecting:
		c.sel = c.sel.DragTo(selection.Point{X: x, Y: y})
		c.sink.Repaint()
	default:
		c.updateHover(x, y)
	}
}

func (c *Controller) updateHover(x, y float64) {
	h := c.HitTest(x, y)
	next := render.Hover{Active: h.Region == viewport.RegionChart, X: x, Y: y, Index: h.Index, Band: h.BandRank()}
	if next == c.hover {
		return
	}
	c.hover = next
	c.sink.Repaint()
}

// PointerLeave clears hover.
func (c *Controller) PointerLeave() {
	if !c.hover.Active {
		return
	}
	c.hover = render.Hover{Index: -1}
	c.sink.Repaint()
}

// PointerUp ends the gesture: a pan hands its velocity to the animator, a press without
// movement is a click, a rectangle is validated.
func (c *Controller) PointerUp(x, y float64, b Button, now time.Time) {
	mode := c.mode
	c.mode = ModeIdle
	switch mode {
	case ModePanning:
		if !c.moved {
			c.click(x, y)
			return
		}
		v := c.velocity
		if now.Sub(c.lastT) > c.cfg.ReleaseIdle {
			v = 0
		}
		if c.anim != nil {
			c.anim.Release(v)
		}
		c.sink.Repaint()
	case ModeSelecting:
		if !c.moved {
			c.setSelection(selection.IdleState())
			return
		}
		st := c.sel.DragTo(selection.Point{X: x, Y: y})
		c.setSelection(st.Finish(c.vp.Transform(), c.validator, c.options))
	}
}

func (c *Controller) click(x, y float64) {
	h := c.HitTest(x, y)
	switch h.Kind {
	case HitMover:
		c.sink.MoverActivated(h.Index, *h.Mover)
	case HitCandle:
		c.setSelection(selection.PendingSingle(h.Index))
	}
}

// Wheel zooms depending on the region under the pointer. notches > 0 zooms in.
func (c *Controller) Wheel(x, y, notches float64, mods Modifiers) {
	if notches == 0 {
		return
	}
	f := math.Pow(c.cfg.WheelStep, notches)
	switch c.vp.Transform().RegionAt(x, y) {
	case viewport.RegionTimeScale:
		c.vp.ZoomXBy(f)
	case viewport.RegionPriceScale:
		c.vp.ZoomYBy(f)
	case viewport.RegionChart:
		switch {
		case mods&ModShift != 0:
			c.vp.ZoomBy(f)
		case mods&ModAlt != 0:
			c.vp.ZoomYBy(f)
		default:
			c.vp.ZoomXBy(f)
		}
	default:
		return
	}
	c.kick()
}

// DoubleClick zooms in on the plot and resets the axis of a gutter.
func (c *Controller) DoubleClick(x, y float64) {
	switch c.vp.Transform().RegionAt(x, y) {
	case viewport.RegionChart:
		c.vp.ZoomXBy(c.cfg.DoubleClickZoom)
	case viewport.RegionPriceScale:
		c.vp.ResetZoomY()
	case viewport.RegionTimeScale:
		c.vp.ResetZoomX()
	default:
		return
	}
	c.kick()
}

// Key handles a key press and reports whether it was bound.
func (c *Controller) Key(k Key) bool {
	switch k {
	case KeyPlus, KeyEqual:
		c.vp.ZoomXBy(c.cfg.KeyZoom)
	case KeyMinus:
		c.vp.ZoomXBy(1 / c.cfg.KeyZoom)
	case KeyZero:
		c.vp.ResetZoomX()
		c.vp.ResetZoomY()
	case KeyPageUp:
		c.vp.StopMomentum()
		c.vp.PageBy(-1)
	case KeyPageDown:
		c.vp.StopMomentum()
		c.vp.PageBy(1)
	case KeyHome:
		c.vp.ScrollToStart()
	case KeyEnd:
		c.vp.ScrollToEnd()
	case KeyEscape:
		c.mode = ModeIdle
		c.ClearSelection()
		return true
	case KeyEnter:
		if c.sel.Kind == selection.PendingConfirmation {
			c.sink.SelectionConfirmed(c.sel)
		}
		return true
	default:
		return false
	}
	c.kick()
	return true
}
