// Package fynechart hosts an engine.Chart inside a fyne window: it paints the chart's raster
// surface as a canvas image and forwards pointer, wheel and key events to its controller.
package fynechart

import (
	"context"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"github.com/max10788/candlescope/src/engine"
	"github.com/max10788/candlescope/src/interaction"
	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/viewport"
)

var (
	_ desktop.Hoverable   = (*Chart)(nil)
	_ desktop.Mouseable   = (*Chart)(nil)
	_ fyne.Draggable      = (*Chart)(nil)
	_ fyne.Scrollable     = (*Chart)(nil)
	_ fyne.DoubleTappable = (*Chart)(nil)
	_ fyne.Focusable      = (*Chart)(nil)
)

// Chart is a fyne widget wrapping one engine.Chart.
type Chart struct {
	widget.BaseWidget

	engine  *engine.Chart
	surface *render.RasterSurface
	img     *canvas.Image

	// Hint is painted in the top-left corner of every frame when non-empty.
	Hint string
	// OnHover receives the hover description after every repaint.
	OnHover func(text string)

	ptr     pointerState
	pending fyne.Size
	applied fyne.Size
	now     func() time.Time
}

// pointerState carries the pointer and modifier state between fyne callbacks.
type pointerState struct {
	held    interaction.Modifiers
	pressed bool
	button  desktop.MouseButton
	last    fyne.Position
}

// New builds the widget and its chart. events.OnRepaint still fires after the widget has
// refreshed its image.
func New(opts engine.Options, sched viewport.Scheduler, events engine.Events) *Chart {
	w := &Chart{surface: render.NewRasterSurface(), now: time.Now}
	forward := events.OnRepaint
	events.OnRepaint = func(l render.Layout) {
		w.repainted()
		if forward != nil {
			forward(l)
		}
	}
	w.engine = engine.New(opts, w.surface, sched, events)
	w.img = &canvas.Image{FillMode: canvas.ImageFillStretch, ScaleMode: canvas.ImageScaleFastest}
	w.ExtendBaseWidget(w)
	return w
}

// Engine returns the wrapped chart.
func (w *Chart) Engine() *engine.Chart { return w.engine }

// Surface returns the raster the chart draws on.
func (w *Chart) Surface() *render.RasterSurface { return w.surface }

func (w *Chart) repainted() {
	img := w.surface.Image()
	if img == nil {
		return
	}
	render.DrawHint(img, w.Hint)
	w.img.Image = img
	w.img.Refresh()
	if w.OnHover != nil {
		w.OnHover(w.engine.HoverText())
	}
}

// CreateRenderer implements fyne.Widget.
func (w *Chart) CreateRenderer() fyne.WidgetRenderer {
	return &chartRenderer{w: w}
}

type chartRenderer struct{ w *Chart }

func (r *chartRenderer) Layout(size fyne.Size) {
	r.w.img.Move(fyne.NewPos(0, 0))
	r.w.img.Resize(size)
	r.w.pending = size
	if r.w.applied == (fyne.Size{}) {
		// first layout paints at once; later sizes wait for the debounce tick
		r.w.ApplySize()
	}
}

func (r *chartRenderer) MinSize() fyne.Size           { return fyne.NewSize(240, 160) }
func (r *chartRenderer) Refresh()                     { canvas.Refresh(r.w.img) }
func (r *chartRenderer) Objects() []fyne.CanvasObject { return []fyne.CanvasObject{r.w.img} }
func (r *chartRenderer) Destroy()                     {}

// ApplySize resizes the chart to the last laid-out size if it changed. Must run on the UI goroutine.
func (w *Chart) ApplySize() {
	if w.pending == w.applied || w.pending.Width <= 0 || w.pending.Height <= 0 {
		return
	}
	w.applied = w.pending
	w.engine.Resize(float64(w.applied.Width), float64(w.applied.Height), w.scale())
}

// WatchResize applies pending sizes every interval until ctx is done, so a window drag
// re-rasterizes a few times instead of on every layout pass.
func (w *Chart) WatchResize(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fyne.Do(w.ApplySize)
			}
		}
	}()
}

func (w *Chart) scale() float64 {
	app := fyne.CurrentApp()
	if app == nil {
		return 1
	}
	if c := app.Driver().CanvasForObject(w); c != nil && c.Scale() > 0 {
		return float64(c.Scale())
	}
	return 1
}

// Attach wires modifier tracking and unfocused key handling to the window canvas.
func (w *Chart) Attach(c fyne.Canvas) {
	if dc, ok := c.(desktop.Canvas); ok {
		dc.SetOnKeyDown(func(ev *fyne.KeyEvent) { w.ptr.held |= modifierKey(ev.Name) })
		dc.SetOnKeyUp(func(ev *fyne.KeyEvent) { w.ptr.held &^= modifierKey(ev.Name) })
	}
	c.SetOnTypedKey(w.TypedKey)
	c.SetOnTypedRune(w.TypedRune)
}

func (w *Chart) track(m fyne.KeyModifier) { w.ptr.held = Modifiers(m) }

func (w *Chart) move(pos fyne.Position) {
	if w.ptr.pressed && pos == w.ptr.last {
		return
	}
	w.ptr.last = pos
	w.engine.Input().PointerMove(float64(pos.X), float64(pos.Y), w.now())
}

// MouseIn implements desktop.Hoverable.
func (w *Chart) MouseIn(ev *desktop.MouseEvent) {
	w.track(ev.Modifier)
	w.move(ev.Position)
}

// MouseMoved implements desktop.Hoverable. Secondary-button drags arrive here.
func (w *Chart) MouseMoved(ev *desktop.MouseEvent) {
	w.track(ev.Modifier)
	w.move(ev.Position)
}

// MouseOut implements desktop.Hoverable.
func (w *Chart) MouseOut() {
	if !w.ptr.pressed {
		w.engine.Input().PointerLeave()
	}
}

// MouseDown implements desktop.Mouseable.
func (w *Chart) MouseDown(ev *desktop.MouseEvent) {
	w.track(ev.Modifier)
	w.ptr.pressed, w.ptr.button, w.ptr.last = true, ev.Button, ev.Position
	w.engine.Input().PointerDown(float64(ev.Position.X), float64(ev.Position.Y), Button(ev.Button), w.now())
	if app := fyne.CurrentApp(); app != nil {
		if c := app.Driver().CanvasForObject(w); c != nil {
			c.Focus(w)
		}
	}
}

// MouseUp implements desktop.Mouseable.
func (w *Chart) MouseUp(ev *desktop.MouseEvent) {
	w.release(ev.Position)
}

// Dragged implements fyne.Draggable.
func (w *Chart) Dragged(ev *fyne.DragEvent) { w.move(ev.Position) }

// DragEnd implements fyne.Draggable.
func (w *Chart) DragEnd() { w.release(w.ptr.last) }

func (w *Chart) release(pos fyne.Position) {
	if !w.ptr.pressed {
		return
	}
	w.ptr.pressed = false
	w.engine.Input().PointerUp(float64(pos.X), float64(pos.Y), Button(w.ptr.button), w.now())
}

// Scrolled implements fyne.Scrollable.
func (w *Chart) Scrolled(ev *fyne.ScrollEvent) {
	w.engine.Input().Wheel(float64(ev.Position.X), float64(ev.Position.Y), Notches(ev.Scrolled.DY), w.ptr.held)
}

// DoubleTapped implements fyne.DoubleTappable.
func (w *Chart) DoubleTapped(ev *fyne.PointEvent) {
	w.engine.Input().DoubleClick(float64(ev.Position.X), float64(ev.Position.Y))
}

// FocusGained implements fyne.Focusable.
func (w *Chart) FocusGained() {}

// FocusLost implements fyne.Focusable.
func (w *Chart) FocusLost() { w.ptr.held = 0 }

// TypedRune implements fyne.Focusable.
func (w *Chart) TypedRune(r rune) {
	if k, ok := KeyForRune(r); ok {
		w.engine.Input().Key(k)
	}
}

// TypedKey implements fyne.Focusable.
func (w *Chart) TypedKey(ev *fyne.KeyEvent) {
	if k, ok := KeyFor(ev.Name); ok {
		w.engine.Input().Key(k)
	}
}
