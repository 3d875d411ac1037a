package viewport

import (
	"context"
	"sync"
	"time"
)

// FrameTime is the timestamp handed to frame callbacks.
type FrameTime = time.Time

// FrameFunc is a per-frame callback.
type FrameFunc func(now FrameTime)

// Scheduler runs a callback on the next display frame. Callbacks requested while a frame is
// running go to the following frame.
type Scheduler interface {
	RequestFrame(fn FrameFunc)
}

// ManualScheduler queues callbacks until Tick is called. Tests and headless rendering use it.
type ManualScheduler struct {
	Now      time.Time
	Interval time.Duration
	queue    []FrameFunc
}

// RequestFrame queues fn for the next Tick.
func (m *ManualScheduler) RequestFrame(fn FrameFunc) { m.queue = append(m.queue, fn) }

// Pending returns the number of queued callbacks.
func (m *ManualScheduler) Pending() int { return len(m.queue) }

// Tick runs the callbacks queued before the call and advances Now. It returns how many ran.
func (m *ManualScheduler) Tick() int {
	if m.Interval == 0 {
		m.Interval = 16 * time.Millisecond
	}
	m.Now = m.Now.Add(m.Interval)
	q := m.queue
	m.queue = nil
	for _, fn := range q {
		fn(m.Now)
	}
	return len(q)
}

// RunUntilIdle ticks until the queue is empty or max ticks have run. It returns the tick count.
func (m *ManualScheduler) RunUntilIdle(max int) int {
	n := 0
	for len(m.queue) > 0 && n < max {
		m.Tick()
		n++
	}
	return n
}

// TickerScheduler drives frames from a time.Ticker that only runs while callbacks are queued.
// dispatch moves execution onto the UI goroutine (fyne.Do in the viewer).
type TickerScheduler struct {
	interval time.Duration
	dispatch func(func())

	mu    sync.Mutex
	queue []FrameFunc
	wake  chan struct{}
}

// NewTickerScheduler starts the frame goroutine; it stops when ctx is done.
func NewTickerScheduler(ctx context.Context, interval time.Duration, dispatch func(func())) *TickerScheduler {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	s := &TickerScheduler{interval: interval, dispatch: dispatch, wake: make(chan struct{}, 1)}
	go s.loop(ctx)
	return s
}

// RequestFrame queues fn for the next tick. Safe from any goroutine.
func (s *TickerScheduler) RequestFrame(fn FrameFunc) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *TickerScheduler) take() []FrameFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *TickerScheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		t := time.NewTicker(s.interval)
		for running := true; running; {
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case now := <-t.C:
				q := s.take()
				if len(q) == 0 {
					running = false
					break
				}
				s.dispatch(func() {
					for _, fn := range q {
						fn(now)
					}
				})
			}
		}
		t.Stop()
	}
}
