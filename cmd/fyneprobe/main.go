package main

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/pflag"

	"github.com/max10788/candlescope/src/engine"
	"github.com/max10788/candlescope/src/fynechart"
	"github.com/max10788/candlescope/src/series"
	"github.com/max10788/candlescope/src/viewport"
)

func main() {
	seconds := pflag.Int("seconds", 5, "close the window after this many seconds")
	pflag.Parse()

	fmt.Println("[fyneprobe] starting chart widget probe")
	a := app.New()
	w := a.NewWindow("Fyne Probe")
	w.Resize(fyne.NewSize(800, 450))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched := viewport.NewTickerScheduler(ctx, 16*time.Millisecond, fyne.Do)
	chart := fynechart.New(engine.DefaultOptions(), sched, engine.Events{})
	w.SetContent(chart)
	chart.Attach(w.Canvas())
	chart.WatchResize(ctx, 120*time.Millisecond)

	go func() {
		ser, err := series.Synthetic(240, time.Now().UTC().Add(-240*time.Minute), time.Minute, 1, 6)
		fyne.Do(func() {
			if err != nil {
				_ = chart.Engine().Fail("PROBE", err)
				return
			}
			_ = chart.Engine().SetSeries("PROBE", ser)
		})
		time.Sleep(time.Duration(*seconds) * time.Second)
		fmt.Println("[fyneprobe] closing window via fyne.Do")
		fyne.Do(func() {
			fmt.Printf("[fyneprobe] frames drawn: %d\n", chart.Engine().Frames())
			w.Close()
		})
	}()
	w.ShowAndRun()
	fmt.Println("[fyneprobe] exited cleanly")
}
