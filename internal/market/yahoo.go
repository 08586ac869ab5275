package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markcheno/go-talib"

	logx "signalbot/pkg/logx"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Yahoo derives a snapshot from hourly candles: indicators are computed
// locally and pivots come from the window's high, low and last close.
type Yahoo struct {
	client *http.Client
	base   string
	log    logx.Logger
}

func NewYahoo(timeout time.Duration, log logx.Logger, opts ...Option) *Yahoo {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := buildOptions(yahooChartURL, timeout, opts)
	return &Yahoo{client: o.client, base: strings.TrimRight(o.endpoint, "/") + "/", log: log.With(logx.String("source", "yahoo"))}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

// Candles is a cleaned OHLC series with null bars removed.
type Candles struct {
	High  []float64
	Low   []float64
	Close []float64
}

func (y *Yahoo) candles(ctx context.Context, pair string) (Candles, error) {
	params := url.Values{}
	params.Set("interval", "1h")
	params.Set("range", "1mo")
	reqURL := y.base + url.PathEscape(pair+"=X") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Candles{}, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return Candles{}, fmt.Errorf("yahoo %s: %w", pair, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Candles{}, fmt.Errorf("yahoo %s: status %d: %s", pair, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Candles{}, fmt.Errorf("yahoo %s: decode: %w", pair, err)
	}
	if out.Chart.Error != nil {
		return Candles{}, fmt.Errorf("yahoo %s: api error: %v", pair, out.Chart.Error)
	}
	if len(out.Chart.Result) == 0 || len(out.Chart.Result[0].Indicators.Quote) == 0 {
		return Candles{}, nil
	}

	q := out.Chart.Result[0].Indicators.Quote[0]
	var c Candles
	for i := range q.Close {
		if i >= len(q.High) || i >= len(q.Low) || q.Close[i] == nil || q.High[i] == nil || q.Low[i] == nil {
			continue
		}
		c.High = append(c.High, *q.High[i])
		c.Low = append(c.Low, *q.Low[i])
		c.Close = append(c.Close, *q.Close[i])
	}
	return c, nil
}

func (y *Yahoo) Snapshot(ctx context.Context, pair string) (*Snapshot, error) {
	pair, ok := Normalize(pair)
	if !ok {
		return nil, nil
	}
	c, err := y.candles(ctx, pair)
	if err != nil {
		return nil, err
	}
	snap := FromCandles(c)
	if snap.Empty() {
		y.log.Warn("yahoo returned no usable candles", logx.String("pair", pair))
		return nil, nil
	}
	return snap, nil
}

// FromCandles computes RSI(14), MACD(12,26,9), Bollinger(20,2) and
// Momentum(10) on closes, plus classic pivot S1/R1.
func FromCandles(c Candles) *Snapshot {
	n := len(c.Close)
	if n == 0 {
		return &Snapshot{}
	}
	closes := c.Close
	snap := &Snapshot{Close: Float(closes[n-1])}

	hi, lo := c.High[0], c.Low[0]
	for i := range c.High {
		hi = math.Max(hi, c.High[i])
		lo = math.Min(lo, c.Low[i])
	}
	pivot := (hi + lo + closes[n-1]) / 3
	snap.Support = Float(2*pivot - hi)
	snap.Resistance = Float(2*pivot - lo)

	if n > 14 {
		snap.RSI = last(talib.Rsi(closes, 14))
	}
	if n >= 35 {
		macd, signal, _ := talib.Macd(closes, 12, 26, 9)
		snap.MACD = last(macd)
		snap.MACDSignal = last(signal)
	}
	if n >= 20 {
		upper, _, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		snap.BBUpper = last(upper)
		snap.BBLower = last(lower)
	}
	if n > 10 {
		snap.Momentum = last(talib.Mom(closes, 10))
	}
	return snap
}

func last(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
