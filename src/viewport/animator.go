package viewport

import "math"

// Animator advances a Viewport's current values toward its targets, one frame per Step.
// It asks its Scheduler for a frame only while something is still moving.
type Animator struct {
	vp      *Viewport
	sched   Scheduler
	onFrame func()
	pending bool
	frames  int
}

// NewAnimator wires an animator to a viewport. onFrame runs after every step and normally
// requests a repaint.
func NewAnimator(vp *Viewport, sched Scheduler, onFrame func()) *Animator {
	return &Animator{vp: vp, sched: sched, onFrame: onFrame}
}

// Step advances one frame: momentum feeds the pan target, then zoom and pan ease toward
// their targets. Values within epsilon snap onto the target.
func (a *Animator) Step() {
	cfg := a.vp.cfg
	st := &a.vp.st

	if math.Abs(st.Velocity) >= cfg.VelocityStop {
		if a.vp.PanBy(st.Velocity) {
			// hit an edge
			st.Velocity = 0
		} else {
			st.Velocity *= cfg.Friction
		}
	} else {
		st.Velocity = 0
	}

	st.ZoomX = ease(st.ZoomX, st.TargetZoomX, cfg.Easing, cfg.Epsilon)
	st.ZoomY = ease(st.ZoomY, st.TargetZoomY, cfg.Easing, cfg.Epsilon)
	st.PanOffset = ease(st.PanOffset, st.TargetPanOffset, cfg.Easing, cfg.Epsilon)
}

func ease(cur, target, factor, eps float64) float64 {
	next := cur + (target-cur)*factor
	if math.Abs(target-next) < eps {
		return target
	}
	return next
}

// Kick schedules a frame unless one is already pending or everything has converged.
// Call it after any target change.
func (a *Animator) Kick() {
	if a.pending || a.vp.Converged() {
		return
	}
	a.pending = true
	a.sched.RequestFrame(a.frame)
}

// Release hands a drag velocity (candles per frame) to momentum and starts the loop.
func (a *Animator) Release(velocity float64) {
	a.vp.SetVelocity(velocity)
	a.Kick()
}

// Running reports whether a frame is scheduled.
func (a *Animator) Running() bool { return a.pending }

// Frames returns how many frames have been stepped.
func (a *Animator) Frames() int { return a.frames }

func (a *Animator) frame(FrameTime) {
	a.pending = false
	a.Step()
	a.frames++
	if a.onFrame != nil {
		a.onFrame()
	}
	a.Kick()
}

// MomentumSteps returns how many frames |v0| takes to decay below stop under friction.
// It is zero when |v0| is already below stop.
func MomentumSteps(v0, friction, stop float64) int {
	if friction <= 0 || friction >= 1 || stop <= 0 {
		return 0
	}
	v := math.Abs(v0)
	n := 0
	for v >= stop {
		v *= friction
		n++
	}
	return n
}
