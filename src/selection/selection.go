// Package selection validates candle selections and carries the transient selection state
// between a drag gesture and the host's confirmation dialog.
package selection

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

var (
	ErrTooFew  = errors.New("too few candles selected")
	ErrTooMany = errors.New("too many candles selected")
	ErrEmpty   = errors.New("selection does not cover any candle")
)

const (
	DefaultMin = 2
	DefaultMax = 100
)

// Validator bounds the size of a multi-candle selection. A Min or Max <= 0 means unset and
// falls back to DefaultMin or DefaultMax; config validation rejects such values before they
// reach a chart.
type Validator struct {
	Min, Max int
}

// DefaultValidator accepts 2..100 candles.
func DefaultValidator() Validator { return Validator{Min: DefaultMin, Max: DefaultMax} }

func (v Validator) bounds() (int, int) {
	lo, hi := v.Min, v.Max
	if lo <= 0 {
		lo = DefaultMin
	}
	if hi <= 0 {
		hi = DefaultMax
	}
	return lo, hi
}

// Result is the outcome of Validate. Err wraps ErrTooFew or ErrTooMany when OK is false.
type Result struct {
	OK    bool
	Count int
	Err   error
}

// Reason is the user-facing rejection message, empty when OK.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Validate accepts count iff Min <= count <= Max.
func (v Validator) Validate(count int) Result {
	lo, hi := v.bounds()
	switch {
	case count < lo:
		return Result{Count: count, Err: fmt.Errorf("%w: %d selected, at least %d required", ErrTooFew, count, lo)}
	case count > hi:
		return Result{Count: count, Err: fmt.Errorf("%w: %d selected, at most %d allowed", ErrTooMany, count, hi)}
	}
	return Result{OK: true, Count: count}
}

// ValidateSet validates a candidate slice.
func (v Validator) ValidateSet(candidates []series.Candle) Result { return v.Validate(len(candidates)) }

// Range is an inclusive candle index range.
type Range struct {
	First, Last int
}

// Count returns the number of candles in the range.
func (r Range) Count() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Contains reports whether i lies in the range.
func (r Range) Contains(i int) bool { return i >= r.First && i <= r.Last }

// IndexRange resolves the candles a horizontal screen span [x0,x1] touches, limited to the
// visible window. ok is false when the span misses every visible candle.
func IndexRange(tr viewport.Transform, x0, x1 float64) (Range, bool) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	first := int(math.Floor(tr.XToIndex(x0)))
	last := int(math.Floor(tr.XToIndex(x1)))
	lo, hi := tr.StartIndex(), tr.EndIndex()-1
	if hi < lo || last < lo || first > hi {
		return Range{}, false
	}
	if first < lo {
		first = lo
	}
	if last > hi {
		last = hi
	}
	return Range{First: first, Last: last}, true
}

// Options are the analysis options shown in the confirmation dialog.
type Options struct {
	IncludeLookback bool
	LookbackCount   int
}

// Preview is the derived statistics shown before confirmation.
type Preview struct {
	Count          int
	Lookback       int
	TotalToAnalyze int
}

// PreviewFor computes the preview for r. Lookback candles are taken before r.First and so
// never exceed r.First; the total never exceeds the series length.
func PreviewFor(r Range, seriesLen int, opts Options) Preview {
	p := Preview{Count: r.Count()}
	if opts.IncludeLookback && opts.LookbackCount > 0 {
		p.Lookback = opts.LookbackCount
		if r.First < p.Lookback {
			p.Lookback = max(r.First, 0)
		}
	}
	p.TotalToAnalyze = p.Count + p.Lookback
	if p.TotalToAnalyze > seriesLen {
		p.TotalToAnalyze = seriesLen
	}
	return p
}

// Kind enumerates selection states.
type Kind int

const (
	Idle Kind = iota
	DraggingRectangle
	PendingConfirmation
	Rejected
)

func (k Kind) String() string {
	switch k {
	case DraggingRectangle:
		return "dragging"
	case PendingConfirmation:
		return "pending"
	case Rejected:
		return "rejected"
	default:
		return "idle"
	}
}

// Point is a screen point in logical pixels.
type Point struct{ X, Y float64 }

// Rect is a drag rectangle between two opposite corners.
type Rect struct {
	Start, Current Point
}

// Bounds returns the normalized corners.
func (r Rect) Bounds() (x0, y0, x1, y1 float64) {
	return math.Min(r.Start.X, r.Current.X), math.Min(r.Start.Y, r.Current.Y),
		math.Max(r.Start.X, r.Current.X), math.Max(r.Start.Y, r.Current.Y)
}

// State is the selection state of one chart. Rect is kept in Rejected so the drawn
// rectangle stays on screen while the user is re-prompted. From and To are the timestamps of
// Range.First and Range.Last once anchored; Range is only valid for the series they came from.
type State struct {
	Kind      Kind
	Rect      Rect
	Range     Range
	From, To  time.Time
	Single    bool
	RequestID uuid.UUID
	Err       error
	Preview   Preview
}

// IdleState is the zero selection.
func IdleState() State { return State{} }

// StartDrag begins a rectangle at p.
func StartDrag(p Point) State {
	return State{Kind: DraggingRectangle, Rect: Rect{Start: p, Current: p}}
}

// DragTo moves the free corner.
func (s State) DragTo(p Point) State {
	s.Rect.Current = p
	return s
}

// PendingSingle is a single clicked candle awaiting confirmation.
func PendingSingle(index int) State {
	return State{Kind: PendingConfirmation, Range: Range{First: index, Last: index}, Single: true,
		RequestID: uuid.New(), Preview: Preview{Count: 1, TotalToAnalyze: 1}}
}

// Finish closes a drag: the range is validated and the state becomes PendingConfirmation or Rejected.
func (s State) Finish(tr viewport.Transform, v Validator, opts Options) State {
	x0, _, x1, _ := s.Rect.Bounds()
	r, ok := IndexRange(tr, x0, x1)
	if !ok {
		return State{Kind: Rejected, Rect: s.Rect, Err: ErrEmpty}
	}
	res := v.Validate(r.Count())
	if !res.OK {
		return State{Kind: Rejected, Rect: s.Rect, Range: r, Err: res.Err, Preview: Preview{Count: r.Count()}}
	}
	return State{Kind: PendingConfirmation, Rect: s.Rect, Range: r, RequestID: uuid.New(),
		Preview: PreviewFor(r, tr.SeriesLen, opts)}
}

// Active reports whether the state draws anything.
func (s State) Active() bool { return s.Kind != Idle }

// Reason is the rejection message, empty unless Rejected.
func (s State) Reason() string {
	if s.Kind != Rejected || s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Marks reports whether candle i is part of a pending selection.
func (s State) Marks(i int) bool {
	return s.Kind == PendingConfirmation && s.Range.Contains(i)
}

// Anchor records the timestamps of the range ends in ser.
func (s State) Anchor(ser *series.Series) State {
	s.From, s.To = time.Time{}, time.Time{}
	if s.Kind != PendingConfirmation && s.Kind != Rejected {
		return s
	}
	if s.Range.Count() == 0 || s.Range.First < 0 || s.Range.Last >= ser.Len() {
		return s
	}
	s.From, s.To = ser.At(s.Range.First).Timestamp, ser.At(s.Range.Last).Timestamp
	return s
}

// Rebase moves an anchored range onto ser, a replacement of the series it was anchored in.
// ok is false when the anchored candles are no longer one run of the same length in ser.
// Unanchored states are returned unchanged.
func (s State) Rebase(ser *series.Series, opts Options) (State, bool) {
	if s.From.IsZero() || (s.Kind != PendingConfirmation && s.Kind != Rejected) {
		return s, true
	}
	if ser.Len() == 0 {
		return s, false
	}
	first, okFirst := ser.IndexOf(s.From)
	last, okLast := ser.IndexOf(s.To)
	if !okFirst || !okLast || last-first != s.Range.Last-s.Range.First {
		return s, false
	}
	s.Range = Range{First: first, Last: last}
	if s.Kind == PendingConfirmation && !s.Single {
		s.Preview = PreviewFor(s.Range, ser.Len(), opts)
	}
	return s, true
}

// Candidates returns the candles of a pending selection, or nil when an anchored range no
// longer matches ser.
func (s State) Candidates(ser *series.Series) []series.Candle {
	if s.Kind != PendingConfirmation {
		return nil
	}
	out := ser.Slice(s.Range.First, s.Range.Last+1)
	if !s.From.IsZero() && (len(out) == 0 || !out[0].Timestamp.Equal(s.From) || !out[len(out)-1].Timestamp.Equal(s.To)) {
		return nil
	}
	return out
}
