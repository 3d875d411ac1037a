package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/max10788/candlescope/cmd/candleviewer/uihelpers"
	"github.com/max10788/candlescope/src/config"
	"github.com/max10788/candlescope/src/engine"
	"github.com/max10788/candlescope/src/interaction"
	"github.com/max10788/candlescope/src/logging"
	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

// screenshot is one preset view written by RunScreenshotsMode.
type screenshot struct {
	name    string
	prepare func(c *engine.Chart)
}

var screenshots = []screenshot{
	{"overview.png", nil},
	{"zoomed.png", func(c *engine.Chart) {
		c.Viewport().ZoomXBy(3)
		c.Viewport().ScrollToEnd()
	}},
	{"price_zoom.png", func(c *engine.Chart) { c.Viewport().ZoomYBy(2) }},
	{"segmented.png", func(c *engine.Chart) {
		for _, ms := range c.Series().Impacts() {
			_ = c.SetImpact(ms, render.AnalyzedSingle)
		}
		c.Viewport().ZoomXBy(4)
		c.Viewport().ScrollToEnd()
	}},
	{"selection.png", func(c *engine.Chart) {
		tr := c.Viewport().Transform()
		first := tr.StartIndex() + 3
		x0, x1 := tr.CandleCenterX(first), tr.CandleCenterX(first+9)
		y := tr.Margins.Top + tr.ChartHeight()/2
		now := time.Now()
		in := c.Input()
		in.PointerDown(x0, y-40, interaction.ButtonSecondary, now)
		in.PointerMove(x1, y+40, now)
		in.PointerUp(x1, y+40, interaction.ButtonSecondary, now)
	}},
	{"hover.png", func(c *engine.Chart) {
		tr := c.Viewport().Transform()
		i := min(tr.StartIndex()+tr.VisibleCount()/2, c.Series().Len()-1)
		c.Input().PointerMove(tr.CandleCenterX(i), tr.PriceToY(c.Series().At(i).Close), time.Now())
	}},
}

// RunScreenshotsMode renders the preset views of the configured data and writes them as PNGs
// under outDir. It runs headlessly without creating a UI window.
func RunScreenshotsMode(ctx context.Context, cfg *config.Config, outDir string) error {
	defer logging.TimeTrack(time.Now(), "screenshots")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}
	ser, err := loadSeries(cfg.Data.File)
	if err != nil {
		return err
	}
	opts, err := cfg.ChartOptions()
	if err != nil {
		return err
	}
	w, h := uihelpers.ComputeChartDimensions(cfg.Viewer.Width, cfg.Viewer.Height)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, shot := range screenshots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(outDir, shot.name)
			if err := renderScreenshot(path, cfg, opts, ser, shot, float64(w), float64(h)); err != nil {
				return fmt.Errorf("%s: %w", shot.name, err)
			}
			logging.Debugf("wrote %s", path)
			return nil
		})
	}
	return g.Wait()
}

func renderScreenshot(path string, cfg *config.Config, opts engine.Options, ser *series.Series, shot screenshot, w, h float64) error {
	surface := render.NewRasterSurface()
	c := engine.New(opts, surface, &viewport.ManualScheduler{}, engine.Events{})
	c.Resize(w, h, cfg.Viewer.PixelRatio)
	if err := c.SetSeries(cfg.Data.Symbol, ser); err != nil {
		return err
	}
	// hit-testing in prepare needs a layout of the loaded series
	c.Draw()
	if shot.prepare != nil {
		shot.prepare(c)
	}
	c.Viewport().JumpToTargets()
	c.Draw()
	if cfg.Viewer.Hints {
		render.DrawHint(surface.Image(), uihelpers.Hint)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := surface.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// loadSeries reads a JSONL candle file, or builds the demo series when path is empty.
func loadSeries(path string) (*series.Series, error) {
	if path == "" {
		return demoSeries()
	}
	return series.LoadFile(path)
}

func demoSeries() (*series.Series, error) {
	start := time.Now().UTC().Truncate(time.Minute).Add(-400 * time.Minute)
	return series.Synthetic(400, start, time.Minute, 42, 9)
}
