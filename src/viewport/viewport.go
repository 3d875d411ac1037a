package viewport

import "math"

// Bounds is a closed [Min, Max] interval used for zoom limits.
type Bounds struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// Clamp limits v to the bounds. A zero-value Bounds clamps nothing.
func (b Bounds) Clamp(v float64) float64 {
	if b.Max > 0 && v > b.Max {
		v = b.Max
	}
	if v < b.Min {
		v = b.Min
	}
	return v
}

// Config holds the tunables of the viewport and its animator.
type Config struct {
	ZoomX        Bounds
	ZoomY        Bounds
	Margins      Margins
	PricePadding float64 // fraction of the data span added above and below
	Easing       float64 // per-frame approach factor in (0,1)
	Friction     float64 // per-frame velocity decay in (0,1)
	VelocityStop float64 // |velocity| below which momentum ends (candles per frame)
	Epsilon      float64 // snap distance for eased values
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ZoomX:        Bounds{Min: 0.2, Max: 8},
		ZoomY:        Bounds{Min: 0.5, Max: 10},
		Margins:      DefaultMargins(),
		PricePadding: 0.1,
		Easing:       0.18,
		Friction:     0.92,
		VelocityStop: 0.01,
		Epsilon:      1e-3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ZoomX.Max <= 0 {
		c.ZoomX = d.ZoomX
	}
	if c.ZoomY.Max <= 0 {
		c.ZoomY = d.ZoomY
	}
	if c.Margins == (Margins{}) {
		c.Margins = d.Margins
	}
	if c.PricePadding < 0 {
		c.PricePadding = d.PricePadding
	}
	if c.Easing <= 0 || c.Easing >= 1 {
		c.Easing = d.Easing
	}
	if c.Friction <= 0 || c.Friction >= 1 {
		c.Friction = d.Friction
	}
	if c.VelocityStop <= 0 {
		c.VelocityStop = d.VelocityStop
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	return c
}

// State is the animated zoom/pan state of one chart.
// PanOffset is a fractional candle index.
type State struct {
	ZoomX, TargetZoomX         float64
	ZoomY, TargetZoomY         float64
	PanOffset, TargetPanOffset float64
	Velocity                   float64
}

// InitialState is unit zoom at the start of the series.
func InitialState() State {
	return State{ZoomX: 1, TargetZoomX: 1, ZoomY: 1, TargetZoomY: 1}
}

// Viewport owns one chart's State. The interaction layer writes targets through its
// methods, the Animator advances current values; nothing else mutates it.
type Viewport struct {
	cfg       Config
	st        State
	width     float64
	height    float64
	ratio     float64
	seriesLen int
	base      PriceRange
}

// New returns a viewport in its initial state.
func New(cfg Config) *Viewport {
	return &Viewport{cfg: cfg.withDefaults(), st: InitialState(), ratio: 1}
}

// Config returns the effective configuration.
func (v *Viewport) Config() Config { return v.cfg }

// State returns a copy of the current state.
func (v *Viewport) State() State { return v.st }

// Resize sets the logical pixel size and device pixel ratio. It reports whether anything changed.
func (v *Viewport) Resize(width, height, pixelRatio float64) bool {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	if width == v.width && height == v.height && pixelRatio == v.ratio {
		return false
	}
	v.width, v.height, v.ratio = width, height, pixelRatio
	v.clampPan()
	return true
}

// Size returns the logical size and pixel ratio.
func (v *Viewport) Size() (width, height, pixelRatio float64) { return v.width, v.height, v.ratio }

// SetData records the series length and base price range. Zoom is kept; pan is re-clamped.
func (v *Viewport) SetData(seriesLen int, base PriceRange) {
	v.seriesLen = seriesLen
	v.base = base
	v.clampPan()
}

// Base returns the base price range.
func (v *Viewport) Base() PriceRange { return v.base }

// SeriesLen returns the length recorded by SetData.
func (v *Viewport) SeriesLen() int { return v.seriesLen }

// Reset returns to the initial state (symbol or timeframe change).
func (v *Viewport) Reset() {
	v.st = InitialState()
}

// Transform snapshots the current (animated) values.
func (v *Viewport) Transform() Transform {
	return v.transform(v.st.ZoomX, v.st.ZoomY, v.st.PanOffset)
}

// TargetTransform snapshots the values the animation is heading to.
func (v *Viewport) TargetTransform() Transform {
	return v.transform(v.st.TargetZoomX, v.st.TargetZoomY, v.st.TargetPanOffset)
}

func (v *Viewport) transform(zx, zy, pan float64) Transform {
	return Transform{
		Width:      v.width,
		Height:     v.height,
		PixelRatio: v.ratio,
		Margins:    v.cfg.Margins,
		Base:       v.base,
		SeriesLen:  v.seriesLen,
		ZoomX:      zx,
		ZoomY:      zy,
		PanOffset:  pan,
	}
}

func (v *Viewport) chartWidth() float64 {
	return math.Max(0, v.width-v.cfg.Margins.Left-v.cfg.Margins.Right)
}

// MaxPanFor is the largest pan offset for a zoom level.
func (v *Viewport) MaxPanFor(zoomX float64) float64 {
	return float64(maxStart(v.seriesLen, visibleCount(v.chartWidth(), zoomX)))
}

func (v *Viewport) clampPanValue(p, zoomX float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	if m := v.MaxPanFor(zoomX); p > m {
		return m
	}
	return p
}

func (v *Viewport) clampPan() {
	v.st.TargetPanOffset = v.clampPanValue(v.st.TargetPanOffset, v.st.TargetZoomX)
	v.st.PanOffset = v.clampPanValue(v.st.PanOffset, v.st.ZoomX)
}

// SetTargetPan sets the pan target clamped to [0, seriesLen-visibleCount]. It reports whether
// the value had to be clamped.
func (v *Viewport) SetTargetPan(p float64) (clamped bool) {
	c := v.clampPanValue(p, v.st.TargetZoomX)
	v.st.TargetPanOffset = c
	return c != p
}

// PanBy moves the pan target by delta candles.
func (v *Viewport) PanBy(delta float64) bool { return v.SetTargetPan(v.st.TargetPanOffset + delta) }

// PageBy pans by whole visible windows.
func (v *Viewport) PageBy(pages float64) {
	v.PanBy(pages * float64(visibleCount(v.chartWidth(), v.st.TargetZoomX)))
}

// ScrollToStart targets the first candle.
func (v *Viewport) ScrollToStart() { v.st.Velocity = 0; v.SetTargetPan(0) }

// ScrollToEnd targets the last full window.
func (v *Viewport) ScrollToEnd() { v.st.Velocity = 0; v.SetTargetPan(v.MaxPanFor(v.st.TargetZoomX)) }

// JumpToTargets copies targets into current values (no animation).
func (v *Viewport) JumpToTargets() {
	v.st.ZoomX, v.st.ZoomY, v.st.PanOffset = v.st.TargetZoomX, v.st.TargetZoomY, v.st.TargetPanOffset
	v.st.Velocity = 0
}

// SetTargetZoomX sets the horizontal zoom target, clamped to bounds, and moves the pan target
// so the candle at the centre of the view stays centred.
func (v *Viewport) SetTargetZoomX(z float64) {
	z = v.cfg.ZoomX.Clamp(z)
	cw := v.chartWidth()
	prevVisible := float64(visibleCount(cw, v.st.TargetZoomX))
	nextVisible := float64(visibleCount(cw, z))
	center := v.st.TargetPanOffset + prevVisible/2
	v.st.TargetZoomX = z
	v.SetTargetPan(center - nextVisible/2)
}

// SetTargetZoomY sets the vertical zoom target, clamped to bounds.
func (v *Viewport) SetTargetZoomY(z float64) {
	v.st.TargetZoomY = v.cfg.ZoomY.Clamp(z)
}

// ZoomXBy multiplies the horizontal zoom target.
func (v *Viewport) ZoomXBy(factor float64) { v.SetTargetZoomX(v.st.TargetZoomX * factor) }

// ZoomYBy multiplies the vertical zoom target.
func (v *Viewport) ZoomYBy(factor float64) { v.SetTargetZoomY(v.st.TargetZoomY * factor) }

// ZoomBy multiplies both zoom targets.
func (v *Viewport) ZoomBy(factor float64) {
	v.ZoomXBy(factor)
	v.ZoomYBy(factor)
}

// ResetZoomX returns the horizontal zoom target to 1, centre-preserving.
func (v *Viewport) ResetZoomX() { v.SetTargetZoomX(1) }

// ResetZoomY returns the vertical zoom target to 1.
func (v *Viewport) ResetZoomY() { v.SetTargetZoomY(1) }

// SetVelocity seeds pan momentum in candles per frame.
func (v *Viewport) SetVelocity(vel float64) {
	if math.IsNaN(vel) || math.IsInf(vel, 0) {
		vel = 0
	}
	v.st.Velocity = vel
}

// StopMomentum drops any remaining velocity.
func (v *Viewport) StopMomentum() { v.st.Velocity = 0 }

// Converged reports whether every animated value sits on its target and momentum has ended.
func (v *Viewport) Converged() bool {
	eps := v.cfg.Epsilon
	return math.Abs(v.st.TargetZoomX-v.st.ZoomX) < eps &&
		math.Abs(v.st.TargetZoomY-v.st.ZoomY) < eps &&
		math.Abs(v.st.TargetPanOffset-v.st.PanOffset) < eps &&
		math.Abs(v.st.Velocity) < v.cfg.VelocityStop
}
