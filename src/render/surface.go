package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Surface is a drawing target in logical pixels. Implementations handle device pixel scaling.
type Surface interface {
	// Resize sets the logical size and pixel density. It must be called before drawing a frame.
	Resize(width, height, pixelRatio float64)
	Clear(c drawing.Color)
	Line(x0, y0, x1, y1, width float64, c drawing.Color)
	FillRect(x, y, w, h float64, c drawing.Color)
	StrokeRect(x, y, w, h, width float64, c drawing.Color)
	// Text draws s with its baseline starting at (x, y).
	Text(s string, x, y, size float64, c drawing.Color)
	MeasureText(s string, size float64) (w, h float64)
}

// textDPI makes one font point one logical pixel.
const textDPI = 72

// RasterSurface draws into an RGBA image through go-chart's raster graphic context. The image
// holds width*pixelRatio x height*pixelRatio device pixels and the context is scaled so callers
// keep working in logical pixels.
type RasterSurface struct {
	img    *image.RGBA
	gc     *drawing.RasterGraphicContext
	width  float64
	height float64
	ratio  float64
	err    error
}

// NewRasterSurface returns an empty surface; call Resize before drawing.
func NewRasterSurface() *RasterSurface { return &RasterSurface{} }

// Resize reallocates the backing image and rebuilds the scaled context when any dimension changed.
func (s *RasterSurface) Resize(width, height, pixelRatio float64) {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	if s.gc != nil && width == s.width && height == s.height && pixelRatio == s.ratio {
		return
	}
	s.width, s.height, s.ratio = width, height, pixelRatio
	pw := int(math.Ceil(math.Max(width, 1) * pixelRatio))
	ph := int(math.Ceil(math.Max(height, 1) * pixelRatio))
	s.img = image.NewRGBA(image.Rect(0, 0, pw, ph))
	gc, err := drawing.NewRasterGraphicContext(s.img)
	if err != nil {
		s.err = err
		return
	}
	gc.SetDPI(textDPI)
	gc.Scale(pixelRatio, pixelRatio)
	font, err := chart.GetDefaultFont()
	if err != nil {
		s.err = fmt.Errorf("load font: %w", err)
	} else {
		gc.SetFont(font)
	}
	s.gc = gc
}

// Image returns the backing image in device pixels.
func (s *RasterSurface) Image() *image.RGBA { return s.img }

// PixelRatio returns the current device pixel ratio.
func (s *RasterSurface) PixelRatio() float64 { return s.ratio }

// Err returns the first error hit while drawing (missing font, bad image).
func (s *RasterSurface) Err() error { return s.err }

// WritePNG encodes the current image.
func (s *RasterSurface) WritePNG(w io.Writer) error {
	if s.img == nil {
		return fmt.Errorf("surface has not been sized")
	}
	return png.Encode(w, s.img)
}

func (s *RasterSurface) Clear(c drawing.Color) {
	s.FillRect(0, 0, s.width, s.height, c)
}

func (s *RasterSurface) Line(x0, y0, x1, y1, width float64, c drawing.Color) {
	if s.gc == nil {
		return
	}
	s.gc.SetStrokeColor(c)
	s.gc.SetLineWidth(width)
	s.gc.MoveTo(x0, y0)
	s.gc.LineTo(x1, y1)
	s.gc.Stroke()
}

func (s *RasterSurface) rect(x, y, w, h float64) {
	s.gc.MoveTo(x, y)
	s.gc.LineTo(x+w, y)
	s.gc.LineTo(x+w, y+h)
	s.gc.LineTo(x, y+h)
	s.gc.Close()
}

func (s *RasterSurface) FillRect(x, y, w, h float64, c drawing.Color) {
	if s.gc == nil || w <= 0 || h <= 0 {
		return
	}
	s.gc.SetFillColor(c)
	s.rect(x, y, w, h)
	s.gc.Fill()
}

func (s *RasterSurface) StrokeRect(x, y, w, h, width float64, c drawing.Color) {
	if s.gc == nil {
		return
	}
	s.gc.SetStrokeColor(c)
	s.gc.SetLineWidth(width)
	s.rect(x, y, w, h)
	s.gc.Stroke()
}

func (s *RasterSurface) Text(str string, x, y, size float64, c drawing.Color) {
	if s.gc == nil || s.gc.GetFont() == nil || str == "" {
		return
	}
	s.gc.SetFontSize(size)
	s.gc.SetFillColor(c)
	if _, err := s.gc.CreateStringPath(str, x, y); err != nil {
		if s.err == nil {
			s.err = err
		}
		return
	}
	s.gc.Fill()
}

func (s *RasterSurface) MeasureText(str string, size float64) (float64, float64) {
	if s.gc == nil || s.gc.GetFont() == nil {
		return approxText(str, size)
	}
	s.gc.SetFontSize(size)
	l, t, r, b, err := s.gc.GetStringBounds(str)
	if err != nil {
		return approxText(str, size)
	}
	return r - l, b - t
}

func approxText(s string, size float64) (float64, float64) {
	return float64(len([]rune(s))) * size * 0.6, size
}
