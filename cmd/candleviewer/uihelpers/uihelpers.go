package uihelpers

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Hint is the interaction overlay text drawn in the chart corner.
const Hint = "drag: pan   wheel: zoom time (shift: both, alt: price)   right-drag: select   dbl-click: zoom / reset axis   +/-/0 PgUp/PgDn Home/End"

// ComputeChartDimensions clamps a requested chart size. A non-positive height derives one from
// the width: half of it, kept between 240 and 900.
func ComputeChartDimensions(rawW, rawH int) (int, int) {
	w := rawW
	if w < 400 {
		w = 400
	}
	h := rawH
	if h <= 0 {
		h = w / 2
		if h > 900 {
			h = 900
		}
	}
	if h < 240 {
		h = 240
	}
	return w, h
}

// TruncatePath shortens p to about n characters, always keeping the file name.
func TruncatePath(p string, n int) string {
	if len(p) <= n {
		return p
	}
	base := filepath.Base(p)
	if len(base)+4 >= n {
		return "..." + base
	}
	dir := filepath.Dir(p)
	left := n - len(base) - 4
	if len(dir) > left {
		dir = dir[:left]
	}
	return dir + "/..." + base
}

// ConfirmMessage is the body of the analysis confirmation dialog.
func ConfirmMessage(single bool, count, lookback, total int, first, last string) string {
	if single {
		return fmt.Sprintf("Analyze the candle at %s?", first)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %d candles\nfrom %s\nto   %s", count, first, last)
	if lookback > 0 {
		fmt.Fprintf(&b, "\n\n+ %d lookback candles", lookback)
	}
	fmt.Fprintf(&b, "\nTotal to analyze: %d", total)
	return b.String()
}

// RejectMessage explains why a rectangle selection was refused.
func RejectMessage(reason string, min, max int) string {
	if reason == "" {
		reason = "selection rejected"
	}
	return fmt.Sprintf("%s\n\nSelect between %d and %d candles.", capitalize(reason), min, max)
}

// StatusText summarizes what the chart is showing.
func StatusText(symbol, interval string, candles int, live bool, source string) string {
	parts := []string{symbol}
	if interval != "" {
		parts = append(parts, interval)
	}
	parts = append(parts, fmt.Sprintf("%d candles", candles))
	if live {
		parts = append(parts, "live")
	}
	if source != "" {
		parts = append(parts, source)
	}
	return strings.Join(parts, " · ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
