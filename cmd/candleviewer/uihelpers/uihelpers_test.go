package uihelpers

import (
	"strings"
	"testing"
)

func TestComputeChartDimensions(t *testing.T) {
	cases := []struct {
		w, h         int
		wantW, wantH int
	}{
		{100, 0, 400, 240},
		{1000, 0, 1000, 500},
		{2400, 0, 2400, 900},
		{800, 100, 800, 240},
		{800, 600, 800, 600},
	}
	for _, c := range cases {
		w, h := ComputeChartDimensions(c.w, c.h)
		if w != c.wantW || h != c.wantH {
			t.Fatalf("ComputeChartDimensions(%d,%d) = %d,%d want %d,%d", c.w, c.h, w, h, c.wantW, c.wantH)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	if got := TruncatePath("/a/b.jsonl", 60); got != "/a/b.jsonl" {
		t.Fatalf("short path changed: %q", got)
	}
	long := "/very/long/directory/structure/that/goes/on/candles.jsonl"
	got := TruncatePath(long, 30)
	if !strings.HasSuffix(got, "/...candles.jsonl") || len(got) > 30 {
		t.Fatalf("truncated: %q", got)
	}
	if got := TruncatePath(long, 10); got != "...candles.jsonl" {
		t.Fatalf("base only: %q", got)
	}
}

func TestConfirmMessage(t *testing.T) {
	if got := ConfirmMessage(true, 1, 0, 1, "2025-08-18 13:00", ""); got != "Analyze the candle at 2025-08-18 13:00?" {
		t.Fatalf("single: %q", got)
	}
	got := ConfirmMessage(false, 5, 3, 8, "a", "b")
	for _, want := range []string{"Analyze 5 candles", "+ 3 lookback candles", "Total to analyze: 8"} {
		if !strings.Contains(got, want) {
			t.Fatalf("multi message %q missing %q", got, want)
		}
	}
	if strings.Contains(ConfirmMessage(false, 5, 0, 5, "a", "b"), "lookback") {
		t.Fatalf("no lookback line expected")
	}
}

func TestRejectAndStatus(t *testing.T) {
	if got := RejectMessage("too few candles", 2, 50); !strings.HasPrefix(got, "Too few candles") || !strings.Contains(got, "between 2 and 50") {
		t.Fatalf("reject: %q", got)
	}
	if got := RejectMessage("", 2, 50); !strings.HasPrefix(got, "Selection rejected") {
		t.Fatalf("empty reason: %q", got)
	}
	if got := StatusText("BTCUSDT", "1m", 500, true, ""); got != "BTCUSDT · 1m · 500 candles · live" {
		t.Fatalf("status: %q", got)
	}
}
