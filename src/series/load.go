package series

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// record is one JSONL line. "type" selects between a candle and an impact breakdown.
//
//	{"type":"candle","timestamp":"2025-08-18T13:26:00Z","open":100,"high":112,"low":98,"close":110,"volume":12.5}
//	{"type":"movers","timestamp":"2025-08-18T13:26:00Z","movers":[{"actor_id":"0xab..","actor_class":"whale","impact":0.5}]}
type record struct {
	Type string `json:"type"`
	Candle
	Movers []Mover `json:"movers,omitempty"`
}

// Load reads a JSONL stream of candles and mover breakdowns. Blank lines and full-line
// '//' comments are skipped. Candles must already be in time order.
func Load(r io.Reader) (*Series, error) {
	var candles []Candle
	var sets []MoverSet
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "//") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		switch strings.ToLower(rec.Type) {
		case "", "candle":
			candles = append(candles, rec.Candle)
		case "movers", "impact":
			ms, err := NewMoverSet(rec.Timestamp, rec.Movers)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			sets = append(sets, ms)
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", line, rec.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	s, err := NewSeries(candles)
	if err != nil {
		return nil, err
	}
	if len(sets) > 0 {
		s = s.WithImpacts(sets)
	}
	return s, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Write encodes candles and impact breakdowns as JSONL, the inverse of Load.
func Write(w io.Writer, s *Series) error {
	enc := json.NewEncoder(w)
	for i := 0; i < s.Len(); i++ {
		c := s.At(i)
		if err := enc.Encode(record{Type: "candle", Candle: c}); err != nil {
			return err
		}
		if ms, ok := s.MoversAt(c.Timestamp); ok {
			if err := enc.Encode(struct {
				Type      string    `json:"type"`
				Timestamp time.Time `json:"timestamp"`
				Movers    []Mover   `json:"movers"`
			}{"movers", ms.Timestamp, ms.Movers}); err != nil {
				return err
			}
		}
	}
	return nil
}
