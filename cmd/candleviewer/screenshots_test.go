package main

import (
	"context"
	"image"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/max10788/candlescope/src/config"
	"github.com/max10788/candlescope/src/series"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Viewer.Width, cfg.Viewer.Height = 640, 360
	return cfg
}

func decodeSize(t *testing.T, path string) image.Point {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return image.Pt(cfg.Width, cfg.Height)
}

// TestScreenshotsDemoData renders every preset from the demo series at the configured size.
func TestScreenshotsDemoData(t *testing.T) {
	cfg := testConfig(t)
	out := t.TempDir()
	if err := RunScreenshotsMode(context.Background(), cfg, out); err != nil {
		t.Fatalf("screenshots: %v", err)
	}
	for _, s := range screenshots {
		if got := decodeSize(t, filepath.Join(out, s.name)); got != image.Pt(640, 360) {
			t.Fatalf("%s: size %v", s.name, got)
		}
	}
}

// TestScreenshotsFromFile reads candles from a JSONL file and honours the pixel ratio.
func TestScreenshotsFromFile(t *testing.T) {
	ser, err := series.Synthetic(80, time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), time.Hour, 3, 5)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "candles.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := series.Write(f, ser); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg := testConfig(t)
	cfg.Data.File = path
	cfg.Viewer.PixelRatio = 2
	cfg.Viewer.Hints = false
	out := filepath.Join(dir, "shots")
	if err := RunScreenshotsMode(context.Background(), cfg, out); err != nil {
		t.Fatalf("screenshots: %v", err)
	}
	if got := decodeSize(t, filepath.Join(out, "segmented.png")); got != image.Pt(1280, 720) {
		t.Fatalf("segmented.png size %v", got)
	}
}

func TestScreenshotsMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.File = filepath.Join(t.TempDir(), "missing.jsonl")
	if err := RunScreenshotsMode(context.Background(), cfg, t.TempDir()); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
