package render

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawHint paints a short help line in the top-left corner of img on a dark translucent box.
// It draws in device pixels with a fixed bitmap face, so it is independent of the surface scale.
func DrawHint(img *image.RGBA, text string) {
	if img == nil || strings.TrimSpace(text) == "" {
		return
	}
	b := img.Bounds()
	face := basicfont.Face7x13
	pad := 6
	dr := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}), Face: face}
	tw := dr.MeasureString(text).Ceil()
	x := b.Min.X + 14
	y := b.Min.Y + 14 + face.Metrics().Ascent.Ceil()
	rect := image.Rect(x-pad, y-face.Metrics().Ascent.Ceil()-pad, x+tw+pad, y+pad/2)
	draw.Draw(img, rect, image.NewUniform(color.RGBA{A: 200}), image.Point{}, draw.Over)
	shadow := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{A: 180}), Face: face,
		Dot: fixed.Point26_6{X: fixed.I(x + 1), Y: fixed.I(y + 1)}}
	shadow.DrawString(text)
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
}
