package render

import "github.com/wcharczuk/go-chart/v2/drawing"

// OpKind names a recorded draw call.
type OpKind string

const (
	OpClear      OpKind = "clear"
	OpLine       OpKind = "line"
	OpFillRect   OpKind = "fill"
	OpStrokeRect OpKind = "stroke"
	OpText       OpKind = "text"
)

// Op is one recorded draw call. Lines store their end point in W/H as X1/Y1.
type Op struct {
	Kind       OpKind
	X, Y, W, H float64
	Width      float64
	Color      drawing.Color
	Text       string
}

// Recorder is a Surface that records draw calls instead of rasterizing them.
type Recorder struct {
	Width, Height, PixelRatio float64
	Resizes                   int
	Ops                       []Op
}

func (r *Recorder) Resize(width, height, pixelRatio float64) {
	if width != r.Width || height != r.Height || pixelRatio != r.PixelRatio {
		r.Resizes++
	}
	r.Width, r.Height, r.PixelRatio = width, height, pixelRatio
	r.Ops = r.Ops[:0]
}

func (r *Recorder) Clear(c drawing.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpClear, W: r.Width, H: r.Height, Color: c})
}

func (r *Recorder) Line(x0, y0, x1, y1, width float64, c drawing.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpLine, X: x0, Y: y0, W: x1, H: y1, Width: width, Color: c})
}

func (r *Recorder) FillRect(x, y, w, h float64, c drawing.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpFillRect, X: x, Y: y, W: w, H: h, Color: c})
}

func (r *Recorder) StrokeRect(x, y, w, h, width float64, c drawing.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpStrokeRect, X: x, Y: y, W: w, H: h, Width: width, Color: c})
}

func (r *Recorder) Text(s string, x, y, size float64, c drawing.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpText, X: x, Y: y, H: size, Color: c, Text: s})
}

func (r *Recorder) MeasureText(s string, size float64) (float64, float64) { return approxText(s, size) }

// Filter returns the recorded ops of one kind.
func (r *Recorder) Filter(kind OpKind) []Op {
	var out []Op
	for _, op := range r.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Texts returns the strings drawn in order.
func (r *Recorder) Texts() []string {
	var out []string
	for _, op := range r.Ops {
		if op.Kind == OpText {
			out = append(out, op.Text)
		}
	}
	return out
}
