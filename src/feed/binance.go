// Package feed supplies candle series from Binance: REST history followed by the websocket
// kline stream. Every update publishes a whole new series; nothing is patched in place.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/max10788/candlescope/src/logging"
	"github.com/max10788/candlescope/src/series"
)

var (
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("feed: invalid configuration")
	// ErrBadKline marks a wire record that could not be turned into a candle.
	ErrBadKline = errors.New("feed: bad kline")
)

const (
	defaultReadTimeout      = 30 * time.Second
	defaultMaxBackoff       = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	readLimit               = 1 << 20
)

// Config selects the market and endpoints.
type Config struct {
	RESTURL     string        `validate:"required,url"`
	WSURL       string        `validate:"required,url"`
	Symbol      string        `validate:"required,alphanum"`
	Interval    string        `validate:"required"`
	Limit       int           `validate:"gte=1,lte=1000"`
	ReadTimeout time.Duration `validate:"gte=0"`
	MaxBackoff  time.Duration `validate:"gte=0"`
	HTTPClient  *http.Client  `validate:"-"`
}

// Update is one published state of the market.
type Update struct {
	Symbol string
	Series *series.Series
	// Live is the index of the still-open candle, -1 when the newest candle is final.
	Live int
}

// Binance streams klines for one symbol.
type Binance struct {
	cfg      Config
	validate *validator.Validate
	log      zerolog.Logger
	candles  []series.Candle
	live     bool
}

// New validates cfg and returns a feed.
func New(cfg Config) (*Binance, error) {
	v := validator.New()
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Binance{
		cfg:      cfg,
		validate: v,
		log:      logging.Component("feed").With().Str("symbol", cfg.Symbol).Str("interval", cfg.Interval).Logger(),
	}, nil
}

// History fetches the most recent Limit klines.
func (b *Binance) History(ctx context.Context) ([]series.Candle, []bool, error) {
	q := url.Values{}
	q.Set("symbol", b.cfg.Symbol)
	q.Set("interval", b.cfg.Interval)
	q.Set("limit", fmt.Sprint(b.cfg.Limit))
	u := strings.TrimRight(b.cfg.RESTURL, "/") + "/api/v3/klines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := b.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("klines: %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, nil, backoff.Permanent(err)
		}
		return nil, nil, err
	}
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, nil, fmt.Errorf("klines: decode: %w", err)
	}
	now := time.Now()
	candles := make([]series.Candle, 0, len(rows))
	final := make([]bool, 0, len(rows))
	for i, row := range rows {
		c, closeTime, err := parseRow(row)
		if err != nil {
			return nil, nil, fmt.Errorf("klines row %d: %w", i, err)
		}
		candles = append(candles, c)
		final = append(final, closeTime.Before(now))
	}
	return candles, final, nil
}

// parseRow decodes a REST kline array: [openTime, open, high, low, close, volume, closeTime, ...].
func parseRow(row []json.RawMessage) (series.Candle, time.Time, error) {
	if len(row) < 7 {
		return series.Candle{}, time.Time{}, fmt.Errorf("%w: %d fields", ErrBadKline, len(row))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return series.Candle{}, time.Time{}, fmt.Errorf("%w: open time: %v", ErrBadKline, err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return series.Candle{}, time.Time{}, fmt.Errorf("%w: close time: %v", ErrBadKline, err)
	}
	var vals [5]string
	for i := range vals {
		if err := json.Unmarshal(row[i+1], &vals[i]); err != nil {
			return series.Candle{}, time.Time{}, fmt.Errorf("%w: field %d: %v", ErrBadKline, i+1, err)
		}
	}
	c, err := candleFrom(openMs, vals[0], vals[1], vals[2], vals[3], vals[4])
	return c, time.UnixMilli(closeMs), err
}

func candleFrom(openMs int64, o, h, l, c, v string) (series.Candle, error) {
	var f [5]float64
	for i, s := range []string{o, h, l, c, v} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return series.Candle{}, fmt.Errorf("%w: %q: %v", ErrBadKline, s, err)
		}
		f[i] = d.InexactFloat64()
	}
	cd := series.Candle{Timestamp: time.UnixMilli(openMs).UTC(), Open: f[0], High: f[1], Low: f[2], Close: f[3], Volume: f[4]}
	if err := cd.Validate(); err != nil {
		return series.Candle{}, err
	}
	return cd, nil
}

// streamEvent is a websocket kline event.
//
//	{"e":"kline","E":1700000000000,"s":"BTCUSDT","k":{"t":..,"T":..,"s":"BTCUSDT","i":"1m","f":..,"L":..,
//	 "o":"..","c":"..","h":"..","l":"..","v":"..","n":..,"x":false,"q":"..","V":"..","Q":"..","B":"0"}}
//
// Binance keys differ only in case ("e"/"E", "l"/"L", "v"/"V", "q"/"Q"), so both events are
// decoded by exact key instead of the case-insensitive struct field matching.
type streamEvent struct {
	Type      string `json:"e" validate:"eq=kline"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s" validate:"required"`
	Kline     kline  `json:"k"`
}

type kline struct {
	OpenTime     int64  `json:"t" validate:"gt=0"`
	CloseTime    int64  `json:"T" validate:"gtfield=OpenTime"`
	Symbol       string `json:"s"`
	Interval     string `json:"i" validate:"required"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"L"`
	Open         string `json:"o" validate:"required,numeric"`
	Close        string `json:"c" validate:"required,numeric"`
	High         string `json:"h" validate:"required,numeric"`
	Low          string `json:"l" validate:"required,numeric"`
	Volume       string `json:"v" validate:"required,numeric"`
	Trades       int64  `json:"n"`
	Final        bool   `json:"x"`
	QuoteVolume  string `json:"q"`
	TakerBase    string `json:"V"`
	TakerQuote   string `json:"Q"`
	Ignore       string `json:"B"`
}

// exactFields decodes a JSON object and stores the listed keys, matched case-sensitively,
// into their targets. Absent keys leave the target untouched.
func exactFields(raw []byte, targets map[string]any) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	for key, dst := range targets {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *streamEvent) UnmarshalJSON(raw []byte) error {
	return exactFields(raw, map[string]any{
		"e": &e.Type, "E": &e.EventTime, "s": &e.Symbol, "k": &e.Kline,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *kline) UnmarshalJSON(raw []byte) error {
	return exactFields(raw, map[string]any{
		"t": &k.OpenTime, "T": &k.CloseTime, "s": &k.Symbol, "i": &k.Interval,
		"f": &k.FirstTradeID, "L": &k.LastTradeID,
		"o": &k.Open, "c": &k.Close, "h": &k.High, "l": &k.Low, "v": &k.Volume,
		"n": &k.Trades, "x": &k.Final, "q": &k.QuoteVolume, "V": &k.TakerBase, "Q": &k.TakerQuote, "B": &k.Ignore,
	})
}

// decodeEvent turns one websocket message into a candle and its finality.
func (b *Binance) decodeEvent(raw []byte) (series.Candle, bool, error) {
	var ev streamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return series.Candle{}, false, fmt.Errorf("%w: %v", ErrBadKline, err)
	}
	if err := b.validate.Struct(&ev); err != nil {
		return series.Candle{}, false, fmt.Errorf("%w: %v", ErrBadKline, err)
	}
	if !strings.EqualFold(ev.Symbol, b.cfg.Symbol) {
		return series.Candle{}, false, fmt.Errorf("%w: symbol %s", ErrBadKline, ev.Symbol)
	}
	k := ev.Kline
	c, err := candleFrom(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	return c, k.Final, err
}

// apply merges a streamed candle: same open time replaces the newest candle, a later one is
// appended and the window trimmed to Limit. Older candles are ignored.
func (b *Binance) apply(c series.Candle, final bool) bool {
	n := len(b.candles)
	switch {
	case n == 0 || c.Timestamp.After(b.candles[n-1].Timestamp):
		b.candles = append(b.candles, c)
		if over := len(b.candles) - b.cfg.Limit; over > 0 {
			b.candles = append(b.candles[:0:0], b.candles[over:]...)
		}
	case c.Timestamp.Equal(b.candles[n-1].Timestamp):
		b.candles[n-1] = c
	default:
		return false
	}
	b.live = !final
	return true
}

func (b *Binance) snapshot() (Update, error) {
	s, err := series.NewSeries(b.candles)
	if err != nil {
		return Update{}, err
	}
	live := -1
	if b.live {
		live = s.Len() - 1
	}
	return Update{Symbol: b.cfg.Symbol, Series: s, Live: live}, nil
}

func (b *Binance) streamURL() string {
	return fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(b.cfg.WSURL, "/"), strings.ToLower(b.cfg.Symbol), b.cfg.Interval)
}

func (b *Binance) newBackoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = b.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	return backoff.WithContext(bo, ctx)
}

// LoadHistory fetches history with retries and publishes it once.
func (b *Binance) LoadHistory(ctx context.Context, publish func(Update)) error {
	defer logging.TimeTrack(time.Now(), "feed history "+b.cfg.Symbol)
	op := func() error {
		candles, final, err := b.History(ctx)
		if err != nil {
			return err
		}
		b.candles = candles
		b.live = len(final) > 0 && !final[len(final)-1]
		return nil
	}
	notify := func(err error, d time.Duration) {
		b.log.Warn().Err(err).Dur("retry_in", d).Msg("history fetch failed")
	}
	if err := backoff.RetryNotify(op, b.newBackoff(ctx), notify); err != nil {
		return fmt.Errorf("history %s: %w", b.cfg.Symbol, err)
	}
	up, err := b.snapshot()
	if err != nil {
		return fmt.Errorf("history %s: %w", b.cfg.Symbol, err)
	}
	b.log.Info().Int("candles", up.Series.Len()).Msg("history loaded")
	publish(up)
	return nil
}

// Run loads history and then follows the kline stream until ctx is done, reconnecting with
// exponential backoff. publish is called from the feed goroutine.
func (b *Binance) Run(ctx context.Context, publish func(Update)) error {
	if err := b.LoadHistory(ctx, publish); err != nil {
		return err
	}
	bo := b.newBackoff(ctx)
	for {
		err := b.stream(ctx, publish, bo.Reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d := bo.NextBackOff()
		if d == backoff.Stop {
			return err
		}
		b.log.Warn().Err(err).Dur("retry_in", d).Msg("stream disconnected")
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// stream runs one websocket session. connected is called once the handshake succeeded.
func (b *Binance) stream(ctx context.Context, publish func(Update), connected func()) error {
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, b.streamURL(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	connected()
	b.log.Info().Str("url", b.streamURL()).Msg("stream connected")

	conn.SetReadLimit(readLimit)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c, final, err := b.decodeEvent(data)
		if err != nil {
			b.log.Debug().Err(err).Int("bytes", len(data)).Msg("skipping message")
			continue
		}
		if !b.apply(c, final) {
			continue
		}
		up, err := b.snapshot()
		if err != nil {
			b.log.Warn().Err(err).Msg("dropping update")
			continue
		}
		publish(up)
	}
}
