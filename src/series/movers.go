package series

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ActorClass classifies a trading actor.
type ActorClass string

const (
	ActorWhale       ActorClass = "whale"
	ActorMarketMaker ActorClass = "market_maker"
	ActorBot         ActorClass = "bot"
	ActorUnknown     ActorClass = "unknown"
)

// KnownClasses lists the classes with a fixed palette entry.
var KnownClasses = []ActorClass{ActorWhale, ActorMarketMaker, ActorBot, ActorUnknown}

// ParseActorClass normalizes spelling variants ("marketMaker", "market-maker") of the known
// classes. Anything else is kept verbatim so callers can still tell classes apart.
func ParseActorClass(s string) ActorClass {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("-", "", "_", "", " ", "").Replace(k)
	switch k {
	case "":
		return ActorUnknown
	case "whale":
		return ActorWhale
	case "marketmaker", "mm":
		return ActorMarketMaker
	case "bot":
		return ActorBot
	case "unknown":
		return ActorUnknown
	}
	return ActorClass(strings.TrimSpace(s))
}

// Known reports whether the class is one of KnownClasses.
func (a ActorClass) Known() bool {
	for _, k := range KnownClasses {
		if a == k {
			return true
		}
	}
	return false
}

// Mover is an identified trading actor contributing to a candle's price movement.
type Mover struct {
	ActorID        string     `json:"actor_id" validate:"required"`
	ActorClass     ActorClass `json:"actor_class"`
	ImpactFraction float64    `json:"impact" validate:"gte=0,lte=1"`
	TotalVolume    float64    `json:"total_volume" validate:"gte=0"`
	TradeCount     int        `json:"trade_count" validate:"gte=0"`
}

// MoverSet is the ranked list of movers for one candle. Rank 1 is Movers[0].
type MoverSet struct {
	Timestamp time.Time
	Movers    []Mover
}

// NewMoverSet validates movers and orders them by impact fraction, largest first.
// Ties keep their input order.
func NewMoverSet(ts time.Time, movers []Mover) (MoverSet, error) {
	cp := make([]Mover, len(movers))
	for i, m := range movers {
		if math.IsNaN(m.ImpactFraction) || math.IsInf(m.ImpactFraction, 0) {
			return MoverSet{}, fmt.Errorf("mover %d: %w: non-finite impact", i, ErrInvalidMover)
		}
		if err := validate.Struct(m); err != nil {
			return MoverSet{}, fmt.Errorf("mover %d (%s): %w: %v", i, m.ActorID, ErrInvalidMover, err)
		}
		m.ActorClass = ParseActorClass(string(m.ActorClass))
		cp[i] = m
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].ImpactFraction > cp[j].ImpactFraction })
	return MoverSet{Timestamp: ts, Movers: cp}, nil
}

// Top returns at most k highest-ranked movers.
func (m MoverSet) Top(k int) []Mover {
	if k < 0 {
		k = 0
	}
	if k > len(m.Movers) {
		k = len(m.Movers)
	}
	return m.Movers[:k:k]
}

// TopSum is the summed impact fraction of the top k movers.
func (m MoverSet) TopSum(k int) float64 {
	var sum float64
	for _, mv := range m.Top(k) {
		sum += mv.ImpactFraction
	}
	return sum
}

// Residual is the share not attributed to the top k movers, clamped at 0.
func (m MoverSet) Residual(k int) float64 { return math.Max(0, 1-m.TopSum(k)) }

// Overflow reports whether the top k fractions already exceed 1.
func (m MoverSet) Overflow(k int) bool { return m.TopSum(k) > 1+1e-9 }
