package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max10788/candlescope/src/series"
)

var base = time.Date(2025, 8, 18, 13, 0, 0, 0, time.UTC)

func restRows(n int, lastOpen bool) string {
	rows := make([]string, n)
	for i := range rows {
		open := base.Add(time.Duration(i) * time.Minute)
		closeT := open.Add(time.Minute - time.Millisecond)
		if lastOpen && i == n-1 {
			closeT = time.Now().Add(time.Hour)
		}
		p := 100 + i
		rows[i] = fmt.Sprintf(`[%d,"%d.00","%d.50","%d.50","%d.25","12.5",%d,"0",10,"0","0","0"]`,
			open.UnixMilli(), p, p+1, p-1, p, closeT.UnixMilli())
	}
	return "[" + strings.Join(rows, ",") + "]"
}

// klineMsg is a complete Binance kline stream payload, including the keys that differ from
// the decoded ones only by case.
func klineMsg(symbol string, open time.Time, closePrice string, final bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"%s","k":{"t":%d,"T":%d,"s":"%s","i":"1m","f":100,"L":200,`+
		`"o":"100","c":"%s","h":"200","l":"50","v":"3.5","n":101,"x":%t,"q":"350.0","V":"1.5","Q":"150.0","B":"0"}}`,
		open.Add(2*time.Second).UnixMilli(), symbol, open.UnixMilli(), open.Add(time.Minute).UnixMilli()-1, symbol, closePrice, final)
}

type fakeExchange struct {
	rest     *httptest.Server
	ws       *httptest.Server
	messages []string
	status   atomic.Int32
}

func newFakeExchange(t *testing.T, n int, messages ...string) *fakeExchange {
	t.Helper()
	fx := &fakeExchange{messages: messages}
	fx.status.Store(http.StatusOK)
	fx.rest = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		if st := int(fx.status.Load()); st != http.StatusOK {
			w.WriteHeader(st)
			return
		}
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(restRows(n, true)))
	}))
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fx.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/btcusdt@kline_1m", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range fx.messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		fx.rest.Close()
		fx.ws.Close()
	})
	return fx
}

func (fx *fakeExchange) config() Config {
	return Config{
		RESTURL:     fx.rest.URL,
		WSURL:       "ws" + strings.TrimPrefix(fx.ws.URL, "http"),
		Symbol:      "btcusdt",
		Interval:    "1m",
		Limit:       5,
		ReadTimeout: 5 * time.Second,
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{RESTURL: "nope", WSURL: "ws://x", Symbol: "BTCUSDT", Interval: "1m", Limit: 5})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{RESTURL: "http://x", WSURL: "ws://x", Symbol: "BTC-USDT", Interval: "1m", Limit: 5})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHistory(t *testing.T) {
	fx := newFakeExchange(t, 5)
	b, err := New(fx.config())
	require.NoError(t, err)

	candles, final, err := b.History(context.Background())
	require.NoError(t, err)
	require.Len(t, candles, 5)
	assert.Equal(t, base, candles[0].Timestamp)
	assert.Equal(t, 101.5, candles[0].High)
	assert.Equal(t, 12.5, candles[4].Volume)
	assert.Equal(t, []bool{true, true, true, true, false}, final)
}

func TestHistoryClientErrorIsPermanent(t *testing.T) {
	fx := newFakeExchange(t, 5)
	fx.status.Store(http.StatusBadRequest)
	b, err := New(fx.config())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = b.LoadHistory(ctx, func(Update) { t.Fatal("nothing should be published") })
	require.Error(t, err)
	assert.NoError(t, ctx.Err(), "a 400 must not be retried until the deadline")
}

func TestRunPublishesWholeSeries(t *testing.T) {
	fx := newFakeExchange(t, 5,
		klineMsg("BTCUSDT", base.Add(4*time.Minute), "150", true),
		`{"e":"trade"}`,
		klineMsg("ETHUSDT", base.Add(5*time.Minute), "150", false),
		klineMsg("BTCUSDT", base.Add(5*time.Minute), "120", false),
	)
	b, err := New(fx.config())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan Update, 16)
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, func(u Update) { updates <- u }) }()

	next := func() Update {
		select {
		case u := <-updates:
			return u
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for an update")
			return Update{}
		}
	}

	hist := next()
	assert.Equal(t, "BTCUSDT", hist.Symbol)
	assert.Equal(t, 5, hist.Series.Len())
	assert.Equal(t, 4, hist.Live)

	closed := next()
	assert.Equal(t, 5, closed.Series.Len())
	assert.Equal(t, 150.0, closed.Series.Last().Close)
	assert.Equal(t, -1, closed.Live)
	assert.Equal(t, 104.0, hist.Series.Last().Open, "published series are never patched")

	appended := next()
	require.Equal(t, 5, appended.Series.Len(), "window is trimmed to the limit")
	assert.Equal(t, base.Add(5*time.Minute), appended.Series.Last().Timestamp)
	assert.Equal(t, base.Add(time.Minute), appended.Series.At(0).Timestamp)
	assert.Equal(t, 4, appended.Live)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestDecodeEvent(t *testing.T) {
	b, err := New(Config{RESTURL: "http://x", WSURL: "ws://x", Symbol: "BTCUSDT", Interval: "1m", Limit: 5})
	require.NoError(t, err)

	c, final, err := b.decodeEvent([]byte(klineMsg("BTCUSDT", base, "101.5", true)))
	require.NoError(t, err)
	assert.True(t, final)
	assert.Equal(t, 101.5, c.Close)
	assert.Equal(t, 50.0, c.Low)
	assert.Equal(t, 3.5, c.Volume)

	var ev streamEvent
	require.NoError(t, json.Unmarshal([]byte(klineMsg("BTCUSDT", base, "101.5", false)), &ev))
	assert.Equal(t, "kline", ev.Type)
	assert.Equal(t, base.Add(2*time.Second).UnixMilli(), ev.EventTime)
	assert.Equal(t, "50", ev.Kline.Low)
	assert.Equal(t, int64(200), ev.Kline.LastTradeID)
	assert.Equal(t, "3.5", ev.Kline.Volume)
	assert.Equal(t, "1.5", ev.Kline.TakerBase)
	assert.Equal(t, "350.0", ev.Kline.QuoteVolume)
	assert.Equal(t, "150.0", ev.Kline.TakerQuote)
	assert.Equal(t, int64(101), ev.Kline.Trades)
	assert.False(t, ev.Kline.Final)

	bad := []string{
		`not json`,
		klineMsg("ETHUSDT", base, "101", true),
		klineMsg("BTCUSDT", base, "abc", true),
		klineMsg("BTCUSDT", base, "300", true),
	}
	for _, m := range bad {
		_, _, err := b.decodeEvent([]byte(m))
		assert.Error(t, err, m)
	}
	_, _, err = b.decodeEvent([]byte(klineMsg("BTCUSDT", base, "300", true)))
	assert.ErrorIs(t, err, series.ErrInvalidOHLC)
}

func TestApplyIgnoresOlderCandles(t *testing.T) {
	b := &Binance{cfg: Config{Limit: 3}}
	mk := func(i int) series.Candle {
		return series.Candle{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: 1, High: 2, Low: 1, Close: 2}
	}
	for i := 0; i < 4; i++ {
		require.True(t, b.apply(mk(i), true))
	}
	require.Len(t, b.candles, 3)
	assert.False(t, b.apply(mk(0), false))
	assert.True(t, b.apply(mk(3), false))
	assert.True(t, b.live)
}
