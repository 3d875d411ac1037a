// Package config loads the candlescope configuration: defaults, CANDLESCOPE_* environment,
// an optional YAML file and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/max10788/candlescope/src/engine"
	"github.com/max10788/candlescope/src/interaction"
	"github.com/max10788/candlescope/src/segment"
	"github.com/max10788/candlescope/src/selection"
	"github.com/max10788/candlescope/src/viewport"
)

// EnvPrefix prefixes every environment override, e.g. CANDLESCOPE_DATA_SYMBOL.
const EnvPrefix = "CANDLESCOPE"

// Config is the whole configuration.
type Config struct {
	Chart   Chart   `mapstructure:"chart" yaml:"chart"`
	Palette Palette `mapstructure:"palette" yaml:"palette"`
	Data    Data    `mapstructure:"data" yaml:"data"`
	Viewer  Viewer  `mapstructure:"viewer" yaml:"viewer"`
	Logging Logging `mapstructure:"logging" yaml:"logging"`
}

// Bounds is a zoom interval.
type Bounds struct {
	Min float64 `mapstructure:"min" yaml:"min" validate:"gt=0"`
	Max float64 `mapstructure:"max" yaml:"max" validate:"gtfield=Min"`
}

// Margins are the plot margins in logical pixels.
type Margins struct {
	Top    float64 `mapstructure:"top" yaml:"top" validate:"gte=0"`
	Right  float64 `mapstructure:"right" yaml:"right" validate:"gte=0"`
	Bottom float64 `mapstructure:"bottom" yaml:"bottom" validate:"gte=0"`
	Left   float64 `mapstructure:"left" yaml:"left" validate:"gte=0"`
}

// Chart holds engine tunables.
type Chart struct {
	TopK            int     `mapstructure:"top_k" yaml:"top_k" validate:"gte=1,lte=10"`
	MinBandPx       float64 `mapstructure:"min_band_px" yaml:"min_band_px" validate:"gte=0,lte=20"`
	MinSelectable   int     `mapstructure:"min_selectable" yaml:"min_selectable" validate:"gte=1"`
	MaxSelectable   int     `mapstructure:"max_selectable" yaml:"max_selectable" validate:"gtefield=MinSelectable"`
	IncludeLookback bool    `mapstructure:"include_lookback" yaml:"include_lookback"`
	Lookback        int     `mapstructure:"lookback" yaml:"lookback" validate:"gte=0"`
	ZoomX           Bounds  `mapstructure:"zoom_x" yaml:"zoom_x"`
	ZoomY           Bounds  `mapstructure:"zoom_y" yaml:"zoom_y"`
	Margins         Margins `mapstructure:"margins" yaml:"margins"`
	Easing          float64 `mapstructure:"easing" yaml:"easing" validate:"gt=0,lt=1"`
	Friction        float64 `mapstructure:"friction" yaml:"friction" validate:"gt=0,lt=1"`
	VelocityStop    float64 `mapstructure:"velocity_stop" yaml:"velocity_stop" validate:"gt=0"`
	PricePadding    float64 `mapstructure:"price_padding" yaml:"price_padding" validate:"gte=0,lte=0.5"`
	GridLines       int     `mapstructure:"grid_lines" yaml:"grid_lines" validate:"gte=1,lte=40"`
	MinLabelSpacing float64 `mapstructure:"min_label_spacing" yaml:"min_label_spacing" validate:"gt=0"`
	WheelStep       float64 `mapstructure:"wheel_step" yaml:"wheel_step" validate:"gt=1"`
}

// Palette overrides segmentation colours as hex strings. Empty values keep the built-in palette.
type Palette struct {
	ByClass map[string]string `mapstructure:"by_class" yaml:"by_class"`
	Cycle   []string          `mapstructure:"cycle" yaml:"cycle"`
	Default string            `mapstructure:"default" yaml:"default"`
	Other   string            `mapstructure:"other" yaml:"other"`
}

// Data selects the candle source.
type Data struct {
	File         string        `mapstructure:"file" yaml:"file"`
	Symbol       string        `mapstructure:"symbol" yaml:"symbol" validate:"required,uppercase"`
	Interval     string        `mapstructure:"interval" yaml:"interval" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w"`
	Live         bool          `mapstructure:"live" yaml:"live"`
	RESTURL      string        `mapstructure:"rest_url" yaml:"rest_url" validate:"required,url"`
	WSURL        string        `mapstructure:"ws_url" yaml:"ws_url" validate:"required,url"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit" validate:"gte=1,lte=1000"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" validate:"gt=0"`
}

// Viewer configures the desktop viewer.
type Viewer struct {
	Width          int           `mapstructure:"width" yaml:"width" validate:"gte=200"`
	Height         int           `mapstructure:"height" yaml:"height" validate:"gte=150"`
	ResizeDebounce time.Duration `mapstructure:"resize_debounce" yaml:"resize_debounce" validate:"gte=0"`
	FrameInterval  time.Duration `mapstructure:"frame_interval" yaml:"frame_interval" validate:"gt=0"`
	Screenshots    string        `mapstructure:"screenshots" yaml:"screenshots"`
	PixelRatio     float64       `mapstructure:"pixel_ratio" yaml:"pixel_ratio" validate:"gt=0,lte=4"`
	Hints          bool          `mapstructure:"hints" yaml:"hints"`
}

// Logging configures the log backend.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	d := viewport.DefaultConfig()
	m := d.Margins

	v.SetDefault("chart.top_k", segment.DefaultTopK)
	v.SetDefault("chart.min_band_px", segment.DefaultMinBandPx)
	v.SetDefault("chart.min_selectable", selection.DefaultMin)
	v.SetDefault("chart.max_selectable", selection.DefaultMax)
	v.SetDefault("chart.include_lookback", false)
	v.SetDefault("chart.lookback", 20)
	v.SetDefault("chart.zoom_x.min", d.ZoomX.Min)
	v.SetDefault("chart.zoom_x.max", d.ZoomX.Max)
	v.SetDefault("chart.zoom_y.min", d.ZoomY.Min)
	v.SetDefault("chart.zoom_y.max", d.ZoomY.Max)
	v.SetDefault("chart.margins.top", m.Top)
	v.SetDefault("chart.margins.right", m.Right)
	v.SetDefault("chart.margins.bottom", m.Bottom)
	v.SetDefault("chart.margins.left", m.Left)
	v.SetDefault("chart.easing", d.Easing)
	v.SetDefault("chart.friction", d.Friction)
	v.SetDefault("chart.velocity_stop", d.VelocityStop)
	v.SetDefault("chart.price_padding", d.PricePadding)
	v.SetDefault("chart.grid_lines", 6)
	v.SetDefault("chart.min_label_spacing", 80.0)
	v.SetDefault("chart.wheel_step", interaction.DefaultConfig().WheelStep)

	v.SetDefault("palette.by_class", map[string]string{})
	v.SetDefault("palette.cycle", []string{})
	v.SetDefault("palette.default", "")
	v.SetDefault("palette.other", "")

	v.SetDefault("data.file", "")
	v.SetDefault("data.symbol", "BTCUSDT")
	v.SetDefault("data.interval", "1m")
	v.SetDefault("data.live", false)
	v.SetDefault("data.rest_url", "https://api.binance.com")
	v.SetDefault("data.ws_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("data.history_limit", 500)
	v.SetDefault("data.read_timeout", "30s")
	v.SetDefault("data.max_backoff", "30s")

	v.SetDefault("viewer.width", 1100)
	v.SetDefault("viewer.height", 650)
	v.SetDefault("viewer.resize_debounce", "120ms")
	v.SetDefault("viewer.frame_interval", "16ms")
	v.SetDefault("viewer.screenshots", "")
	v.SetDefault("viewer.pixel_ratio", 1.0)
	v.SetDefault("viewer.hints", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", true)
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"file":        "data.file",
	"symbol":      "data.symbol",
	"interval":    "data.interval",
	"live":        "data.live",
	"limit":       "data.history_limit",
	"top-k":       "chart.top_k",
	"width":       "viewer.width",
	"height":      "viewer.height",
	"screenshots": "viewer.screenshots",
	"pixel-ratio": "viewer.pixel_ratio",
	"hints":       "viewer.hints",
	"log-level":   "logging.level",
}

// RegisterFlags adds the configuration flags to fs. Only flags the user actually sets override
// the other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("file", "", "JSONL candle file (candle and movers records)")
	fs.String("symbol", "", "market symbol, e.g. BTCUSDT")
	fs.String("interval", "", "kline interval, e.g. 1m, 1h")
	fs.Bool("live", false, "stream live klines from the exchange")
	fs.Int("limit", 0, "number of historical candles to fetch")
	fs.Int("top-k", 0, "movers drawn per segmented candle")
	fs.Int("width", 0, "window width")
	fs.Int("height", 0, "window height")
	fs.String("screenshots", "", "render preset views as PNGs into this directory and exit")
	fs.Float64("pixel-ratio", 0, "device pixel ratio for screenshots")
	fs.Bool("hints", true, "draw the interaction hint overlay")
	fs.String("log-level", "", "log level: debug|info|warn|error")
}

// Load reads the configuration. fs may be nil; when given, its "config" flag names the file
// unless path is set.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" && fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				v.Set(key, f.Value.String())
			}
		})
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Data.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Data.Symbol))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and the palette colours.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.SegmentPalette(); err != nil {
		return fmt.Errorf("palette: %w", err)
	}
	return nil
}

// SegmentPalette builds the segmentation palette.
func (c *Config) SegmentPalette() (segment.Palette, error) {
	p := c.Palette
	return segment.PaletteFromHex(p.ByClass, p.Cycle, p.Default, p.Other)
}

// ChartOptions converts the chart and palette sections into engine options.
func (c *Config) ChartOptions() (engine.Options, error) {
	pal, err := c.SegmentPalette()
	if err != nil {
		return engine.Options{}, err
	}
	ch := c.Chart
	o := engine.DefaultOptions()
	o.Viewport = viewport.Config{
		ZoomX:        viewport.Bounds{Min: ch.ZoomX.Min, Max: ch.ZoomX.Max},
		ZoomY:        viewport.Bounds{Min: ch.ZoomY.Min, Max: ch.ZoomY.Max},
		Margins:      viewport.Margins{Top: ch.Margins.Top, Right: ch.Margins.Right, Bottom: ch.Margins.Bottom, Left: ch.Margins.Left},
		PricePadding: ch.PricePadding,
		Easing:       ch.Easing,
		Friction:     ch.Friction,
		VelocityStop: ch.VelocityStop,
		Epsilon:      o.Viewport.Epsilon,
	}
	o.Input.WheelStep = ch.WheelStep
	o.Model = segment.Model{TopK: ch.TopK, MinBandPx: ch.MinBandPx, Palette: pal}
	o.Validator = selection.Validator{Min: ch.MinSelectable, Max: ch.MaxSelectable}
	o.Selection = selection.Options{IncludeLookback: ch.IncludeLookback, LookbackCount: ch.Lookback}
	o.GridLines = ch.GridLines
	o.MinLabelSpacing = ch.MinLabelSpacing
	return o, nil
}

// Print writes the effective configuration as YAML.
func (c *Config) Print(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
