package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/max10788/candlescope/src/config"
	"github.com/max10788/candlescope/src/logging"
	"github.com/max10788/candlescope/src/render"
	"github.com/max10788/candlescope/src/segment"
	"github.com/max10788/candlescope/src/series"
)

func main() {
	fs := pflag.NewFlagSet("candlereader", pflag.ExitOnError)
	config.RegisterFlags(fs)
	at := fs.String("at", "", "print the segmentation of the candle at this RFC3339 timestamp")
	bodyPx := fs.Float64("body-px", 120, "body height in pixels used for --at")
	dump := fs.String("dump", "", "write the loaded (or demo) series as JSONL to this path")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Pretty)

	ser, err := load(cfg.Data.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *dump != "" {
		if err := writeFile(*dump, ser); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	printSummary(os.Stdout, cfg.Data.Symbol, ser)

	if *at != "" {
		ts, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: --at: %v\n", err)
			os.Exit(2)
		}
		opts, err := cfg.ChartOptions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		if err := printSegmentation(os.Stdout, ser, opts.Model, ts, *bodyPx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

func load(path string) (*series.Series, error) {
	if path == "" {
		return series.Synthetic(400, time.Now().UTC().Truncate(time.Minute).Add(-400*time.Minute), time.Minute, 42, 9)
	}
	return series.LoadFile(path)
}

func writeFile(path string, s *series.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := series.Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, symbol string, s *series.Series) {
	first, last := s.At(0), s.Last()
	lo, hi := s.PriceExtent(0, s.Len())
	var up, down, doji int
	classes := map[series.ActorClass]int{}
	for i := 0; i < s.Len(); i++ {
		c := s.At(i)
		switch {
		case c.Open == c.Close:
			doji++
		case c.Bullish():
			up++
		default:
			down++
		}
		if ms, ok := s.MoversAt(c.Timestamp); ok {
			for _, m := range ms.Movers {
				classes[m.ActorClass]++
			}
		}
	}
	fmt.Fprintf(w, "Symbol: %s\n", symbol)
	fmt.Fprintf(w, "Candles: %d (%s .. %s, interval %s)\n", s.Len(),
		first.Timestamp.UTC().Format(time.RFC3339), last.Timestamp.UTC().Format(time.RFC3339), s.Interval())
	fmt.Fprintf(w, "Price: %s .. %s, last close %s\n", render.FormatQuote(lo), render.FormatQuote(hi), render.FormatQuote(last.Close))
	fmt.Fprintf(w, "Bullish: %d  Bearish: %d  Doji: %d\n", up, down, doji)
	fmt.Fprintf(w, "Impact breakdowns: %d\n", s.ImpactCount())
	keys := make([]string, 0, len(classes))
	for k := range classes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, classes[series.ActorClass(k)])
	}
}

func printSegmentation(w io.Writer, s *series.Series, m segment.Model, ts time.Time, bodyPx float64) error {
	ms, ok := s.MoversAt(ts)
	if !ok {
		return fmt.Errorf("no impact breakdown at %s", ts.Format(time.RFC3339))
	}
	seg := m.SegmentBody(0, bodyPx, ms)
	fmt.Fprintf(w, "Segmentation at %s (body %.0fpx, residual %.1f%%, overflow %t)\n",
		ts.UTC().Format(time.RFC3339), bodyPx, seg.Residual*100, seg.Overflow)
	for _, b := range seg.Bands {
		name := "other"
		if b.Mover != nil {
			name = fmt.Sprintf("#%d %s (%s)", b.Rank, b.Mover.ActorID, b.Mover.ActorClass)
		}
		fmt.Fprintf(w, "  %-32s %5.1f%%  y %6.1f..%6.1f  #%02x%02x%02x\n",
			name, b.Fraction*100, b.Top, b.Bottom, b.Color.R, b.Color.G, b.Color.B)
	}
	return nil
}
