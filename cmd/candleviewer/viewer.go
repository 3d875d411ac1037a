package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	fyne "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/max10788/candlescope/cmd/candleviewer/uihelpers"
	"github.com/max10788/candlescope/src/config"
	"github.com/max10788/candlescope/src/engine"
	"github.com/max10788/candlescope/src/feed"
	"github.com/max10788/candlescope/src/fynechart"
	"github.com/max10788/candlescope/src/interaction"
	"github.com/max10788/candlescope/src/logging"
	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/selection"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

const timeLayout = "2006-01-02 15:04"

type viewer struct {
	cfg    *config.Config
	app    fyne.App
	window fyne.Window
	log    zerolog.Logger

	chart  *fynechart.Chart
	status *widget.Label
	hover  *widget.Label

	filePath string
	source   string
	live     bool
	pending  *dialog.ConfirmDialog
}

func runViewer(a fyne.App, cfg *config.Config) error {
	opts, err := cfg.ChartOptions()
	if err != nil {
		return err
	}
	w := a.NewWindow("Candlescope")
	w.Resize(fyne.NewSize(float32(cfg.Viewer.Width), float32(cfg.Viewer.Height)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := &viewer{cfg: cfg, app: a, window: w, filePath: cfg.Data.File, log: logging.Component("viewer")}
	sched := viewport.NewTickerScheduler(ctx, cfg.Viewer.FrameInterval, fyne.Do)
	v.chart = fynechart.New(opts, sched, v.events())
	if cfg.Viewer.Hints {
		v.chart.Hint = uihelpers.Hint
	}
	v.status = widget.NewLabel("loading…")
	v.hover = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Monospace: true})
	// one line so the chart keeps its height while hovering
	v.chart.OnHover = func(s string) { v.hover.SetText(strings.ReplaceAll(s, "\n", "   ")) }

	w.SetContent(container.NewBorder(v.status, v.hover, nil, nil, v.chart))
	v.chart.Attach(w.Canvas())
	debounce := cfg.Viewer.ResizeDebounce
	if debounce <= 0 {
		debounce = cfg.Viewer.FrameInterval
	}
	v.chart.WatchResize(ctx, debounce)
	v.buildMenus()
	w.SetOnClosed(cancel)

	v.start(ctx)
	w.ShowAndRun()
	return nil
}

func (v *viewer) events() engine.Events {
	return engine.Events{
		OnSelectionChanged:     v.selectionChanged,
		OnCandleActivated:      v.candleActivated,
		OnMultiCandleActivated: v.multiActivated,
		OnMoverActivated:       v.moverActivated,
		OnInvalidData: func(err error) {
			if v.status != nil {
				v.status.SetText("cannot render: " + err.Error())
			}
		},
	}
}

// start loads the file (or the demo series) and, in live mode, runs the exchange feed.
func (v *viewer) start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if v.filePath != "" || !v.cfg.Data.Live {
		g.Go(func() error {
			v.load(v.filePath)
			return nil
		})
	}
	if v.cfg.Data.Live {
		g.Go(func() error { return v.runFeed(gctx) })
	}
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			v.log.Error().Err(err).Msg("data source stopped")
			fyne.Do(func() { dialog.ShowError(err, v.window) })
		}
	}()
}

// load reads path off the UI goroutine and installs the result on it.
func (v *viewer) load(path string) {
	fyne.Do(func() { v.chart.Engine().SetLoading(true) })
	ser, err := loadSeries(path)
	fyne.Do(func() {
		eng := v.chart.Engine()
		if err != nil {
			_ = eng.Fail(v.cfg.Data.Symbol, err)
			dialog.ShowError(err, v.window)
			return
		}
		if err := eng.SetSeries(v.cfg.Data.Symbol, ser); err != nil {
			return
		}
		v.source = "demo data"
		if path != "" {
			v.source = uihelpers.TruncatePath(path, 60)
		}
		v.refreshStatus()
	})
}

func (v *viewer) runFeed(ctx context.Context) error {
	d := v.cfg.Data
	b, err := feed.New(feed.Config{
		RESTURL:     d.RESTURL,
		WSURL:       d.WSURL,
		Symbol:      d.Symbol,
		Interval:    d.Interval,
		Limit:       d.HistoryLimit,
		ReadTimeout: d.ReadTimeout,
		MaxBackoff:  d.MaxBackoff,
	})
	if err != nil {
		return err
	}
	return b.Run(ctx, func(u feed.Update) {
		fyne.Do(func() {
			eng := v.chart.Engine()
			if err := eng.SetSeries(u.Symbol, u.Series); err != nil {
				return
			}
			eng.SetCurrent(u.Live)
			v.live = true
			v.refreshStatus()
		})
	})
}

func (v *viewer) refreshStatus() {
	eng := v.chart.Engine()
	interval := ""
	if v.live {
		interval = v.cfg.Data.Interval
	}
	v.status.SetText(uihelpers.StatusText(eng.Symbol(), interval, eng.Series().Len(), v.live, v.source))
	v.window.SetTitle("Candlescope: " + eng.Symbol())
}

func (v *viewer) selectionChanged(st selection.State) {
	switch st.Kind {
	case selection.PendingConfirmation:
		v.askConfirm(st)
	case selection.Rejected:
		msg := uihelpers.RejectMessage(st.Reason(), v.cfg.Chart.MinSelectable, v.cfg.Chart.MaxSelectable)
		d := dialog.NewInformation("Selection rejected", msg, v.window)
		d.SetOnClosed(func() { _ = v.chart.Engine().Cancel(st.RequestID) })
		d.Show()
	case selection.Idle:
		v.dismissPending()
	}
}

func (v *viewer) dismissPending() {
	if v.pending == nil {
		return
	}
	d := v.pending
	v.pending = nil
	d.Hide()
}

func (v *viewer) askConfirm(st selection.State) {
	v.dismissPending()
	ser := v.chart.Engine().Series()
	if ser.Len() == 0 {
		return
	}
	first := ser.At(st.Range.First).Timestamp.UTC().Format(timeLayout)
	last := ser.At(st.Range.Last).Timestamp.UTC().Format(timeLayout)
	p := st.Preview
	msg := uihelpers.ConfirmMessage(st.Single, p.Count, p.Lookback, p.TotalToAnalyze, first, last)

	var d *dialog.ConfirmDialog
	d = dialog.NewConfirm("Confirm analysis", msg, func(ok bool) {
		if v.pending == d {
			v.pending = nil
		}
		eng := v.chart.Engine()
		var err error
		if ok {
			err = eng.Confirm(st.RequestID)
		} else {
			err = eng.Cancel(st.RequestID)
		}
		if err != nil {
			v.log.Debug().Err(err).Stringer("request", st.RequestID).Msg("selection answer ignored")
		}
	}, v.window)
	d.SetConfirmText("Analyze")
	v.pending = d
	d.Show()
}

func (v *viewer) candleActivated(c series.Candle) {
	eng := v.chart.Engine()
	if ms, ok := eng.Series().MoversAt(c.Timestamp); ok {
		if err := eng.SetImpact(ms, render.AnalyzedSingle); err != nil {
			v.log.Warn().Err(err).Msg("attach impact")
		}
	} else {
		eng.MarkAnalyzed(render.AnalyzedSingle, c)
	}
	v.log.Info().Time("candle", c.Timestamp).Msg("candle analyzed")
}

func (v *viewer) multiActivated(candles []series.Candle, opts selection.Options, p selection.Preview) {
	v.chart.Engine().MarkAnalyzed(render.AnalyzedMulti, candles...)
	v.log.Info().Int("count", p.Count).Int("lookback", p.Lookback).Int("total", p.TotalToAnalyze).
		Bool("include_lookback", opts.IncludeLookback).Msg("range analyzed")
	v.status.SetText(fmt.Sprintf("analyzed %d candles (%d with lookback)", p.Count, p.TotalToAnalyze))
}

func (v *viewer) moverActivated(c series.Candle, m series.Mover) {
	body := fmt.Sprintf("Candle: %s\nClass: %s\nImpact: %.1f%%\nVolume: %s\nTrades: %d",
		c.Timestamp.UTC().Format(timeLayout), m.ActorClass, m.ImpactFraction*100,
		render.FormatQuote(m.TotalVolume), m.TradeCount)
	dialog.ShowInformation(m.ActorID, body, v.window)
}

// menus and dialogs
func (v *viewer) buildMenus() {
	eng := v.chart.Engine()
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open…", v.openFileDialog),
		fyne.NewMenuItem("Reload", v.reload),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export PNG…", v.exportPNG),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { v.window.Close() }),
	)
	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Reset Zoom", func() { eng.Input().Key(interaction.KeyZero) }),
		fyne.NewMenuItem("Go to Latest", func() { eng.Input().Key(interaction.KeyEnd) }),
		fyne.NewMenuItem("Go to Start", func() { eng.Input().Key(interaction.KeyHome) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Clear Analysis Marks", eng.ClearAnalyzed),
	)
	v.window.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu))

	canv := v.window.Canvas()
	if canv == nil {
		return
	}
	for _, mod := range []fyne.KeyModifier{fyne.KeyModifierSuper, fyne.KeyModifierControl} {
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: mod}, func(fyne.Shortcut) { v.openFileDialog() })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: mod}, func(fyne.Shortcut) { v.reload() })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: mod}, func(fyne.Shortcut) { v.exportPNG() })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: mod}, func(fyne.Shortcut) { v.window.Close() })
	}
}

func (v *viewer) openFileDialog() {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		path := rc.URI().Path()
		_ = rc.Close()
		v.filePath = path
		go v.load(path)
	}, v.window)
	d.Show()
}

func (v *viewer) reload() {
	if v.live && v.filePath == "" {
		return
	}
	go v.load(v.filePath)
}

func (v *viewer) exportPNG() {
	d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer wc.Close()
		if err := v.chart.Surface().WritePNG(wc); err != nil {
			dialog.ShowError(err, v.window)
		}
	}, v.window)
	d.SetFileName(strings.ToLower(v.chart.Engine().Symbol()) + "_chart.png")
	d.Show()
}
