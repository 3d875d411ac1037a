package render

// VisualState is the one look a candle takes in a frame.
type VisualState int

// Ordered from lowest to highest priority.
const (
	StateNormal VisualState = iota
	StateHovered
	StatePending
	StateCurrent
	StateMultiAnalyzed
	StateSingleAnalyzed
)

func (v VisualState) String() string {
	switch v {
	case StateHovered:
		return "hovered"
	case StatePending:
		return "pending"
	case StateCurrent:
		return "current"
	case StateMultiAnalyzed:
		return "multi-analyzed"
	case StateSingleAnalyzed:
		return "single-analyzed"
	default:
		return "normal"
	}
}

// Segmented reports whether the state draws segmentation bands.
func (v VisualState) Segmented() bool {
	return v == StateSingleAnalyzed || v == StateMultiAnalyzed
}

// Flags are the independent conditions that may hold for a candle at once.
type Flags struct {
	SingleAnalyzed bool
	MultiAnalyzed  bool
	Current        bool
	Pending        bool
	Hovered        bool
}

// Resolve picks the highest-priority state among the flags that are set.
func Resolve(f Flags) VisualState {
	switch {
	case f.SingleAnalyzed:
		return StateSingleAnalyzed
	case f.MultiAnalyzed:
		return StateMultiAnalyzed
	case f.Current:
		return StateCurrent
	case f.Pending:
		return StatePending
	case f.Hovered:
		return StateHovered
	}
	return StateNormal
}
