package segment

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/max10788/candlescope/src/series"
)

var validate = validator.New()

// Palette assigns band colours. Lookup order is fixed: ByClass, then Cycle indexed by the
// band's position, then Default. Other colours the residual band.
type Palette struct {
	ByClass map[series.ActorClass]drawing.Color
	Cycle   []drawing.Color
	Default drawing.Color
	Other   drawing.Color
}

// DefaultPalette returns the built-in colours.
func DefaultPalette() Palette {
	return Palette{
		ByClass: map[series.ActorClass]drawing.Color{
			series.ActorWhale:       drawing.ColorFromHex("7c3aed"),
			series.ActorMarketMaker: drawing.ColorFromHex("0ea5e9"),
			series.ActorBot:         drawing.ColorFromHex("f59e0b"),
			series.ActorUnknown:     drawing.ColorFromHex("64748b"),
		},
		Cycle: []drawing.Color{
			drawing.ColorFromHex("ef4444"),
			drawing.ColorFromHex("10b981"),
			drawing.ColorFromHex("ec4899"),
			drawing.ColorFromHex("84cc16"),
			drawing.ColorFromHex("14b8a6"),
		},
		Default: drawing.ColorFromHex("9ca3af"),
		Other:   drawing.ColorFromHex("d1d5db"),
	}
}

// ColorFor resolves the colour of the band at position index (0-based) holding m.
func (p Palette) ColorFor(m series.Mover, index int) drawing.Color {
	if c, ok := p.ByClass[m.ActorClass]; ok {
		return c
	}
	if len(p.Cycle) > 0 && index >= 0 {
		return p.Cycle[index%len(p.Cycle)]
	}
	return p.Default
}

func parseColor(field, hex string) (drawing.Color, error) {
	// ColorFromHex only understands rgb and rrggbb
	if err := validate.Var(hex, "required,hexcolor"); err != nil || (len(hex) != 4 && len(hex) != 7) {
		return drawing.Color{}, fmt.Errorf("palette %s: %q is not a hex colour", field, hex)
	}
	return drawing.ColorFromHex(hex), nil
}

// PaletteFromHex builds a palette from "#rrggbb"/"#rgb" strings. Empty maps and slices and
// empty default/other strings keep the built-in values.
func PaletteFromHex(byClass map[string]string, cycle []string, def, other string) (Palette, error) {
	p := DefaultPalette()
	if len(byClass) > 0 {
		p.ByClass = make(map[series.ActorClass]drawing.Color, len(byClass))
		for k, v := range byClass {
			c, err := parseColor("by_class."+k, v)
			if err != nil {
				return Palette{}, err
			}
			p.ByClass[series.ParseActorClass(k)] = c
		}
	}
	if len(cycle) > 0 {
		p.Cycle = make([]drawing.Color, 0, len(cycle))
		for i, v := range cycle {
			c, err := parseColor(fmt.Sprintf("cycle[%d]", i), v)
			if err != nil {
				return Palette{}, err
			}
			p.Cycle = append(p.Cycle, c)
		}
	}
	if def != "" {
		c, err := parseColor("default", def)
		if err != nil {
			return Palette{}, err
		}
		p.Default = c
	}
	if other != "" {
		c, err := parseColor("other", other)
		if err != nil {
			return Palette{}, err
		}
		p.Other = c
	}
	return p, nil
}
