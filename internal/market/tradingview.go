package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logx "signalbot/pkg/logx"
)

const (
	tradingViewURL = "https://scanner.tradingview.com/forex/scan"
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

var scanColumns = []string{
	"close",
	"Pivot.M.Classic.S1",
	"Pivot.M.Classic.R1",
	"RSI",
	"MACD.macd",
	"MACD.signal",
	"BB.upper",
	"BB.lower",
	"Mom",
}

// TradingView queries the public forex scanner.
type TradingView struct {
	client   *http.Client
	endpoint string
	log      logx.Logger
}

type Option func(*httpOptions)

type httpOptions struct {
	endpoint string
	client   *http.Client
}

// WithEndpoint overrides the request URL (or URL prefix for Yahoo).
func WithEndpoint(u string) Option { return func(o *httpOptions) { o.endpoint = u } }

func WithHTTPClient(c *http.Client) Option { return func(o *httpOptions) { o.client = c } }

func buildOptions(def string, timeout time.Duration, opts []Option) httpOptions {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	o := httpOptions{endpoint: def}
	for _, fn := range opts {
		fn(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: timeout}
	}
	return o
}

func NewTradingView(timeout time.Duration, log logx.Logger, opts ...Option) *TradingView {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := buildOptions(tradingViewURL, timeout, opts)
	return &TradingView{client: o.client, endpoint: o.endpoint, log: log.With(logx.String("source", "tradingview"))}
}

type scanRequest struct {
	Symbols scanSymbols `json:"symbols"`
	Columns []string    `json:"columns"`
}

type scanSymbols struct {
	Tickers []string  `json:"tickers"`
	Query   scanQuery `json:"query"`
}

type scanQuery struct {
	Types []string `json:"types"`
}

type scanResponse struct {
	Data []struct {
		S string `json:"s"`
		D []any  `json:"d"`
	} `json:"data"`
}

func (t *TradingView) Snapshot(ctx context.Context, pair string) (*Snapshot, error) {
	pair, ok := Normalize(pair)
	if !ok {
		return nil, nil
	}
	body, err := json.Marshal(scanRequest{
		Symbols: scanSymbols{Tickers: []string{"FX:" + pair}, Query: scanQuery{Types: []string{}}},
		Columns: scanColumns,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tradingview request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tradingview %s: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tradingview %s: status %d: %s", pair, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tradingview %s: decode: %w", pair, err)
	}
	if len(out.Data) == 0 || len(out.Data[0].D) == 0 {
		t.log.Warn("tradingview returned no data", logx.String("pair", pair))
		return nil, nil
	}

	snap := decodeColumns(out.Data[0].D)
	if snap.Empty() {
		t.log.Warn("tradingview returned only empty columns", logx.String("pair", pair))
		return nil, nil
	}
	return snap, nil
}

func decodeColumns(vals []any) *Snapshot {
	at := func(i int) *float64 {
		if i >= len(vals) {
			return nil
		}
		return toFloat(vals[i])
	}
	return &Snapshot{
		Close:      at(0),
		Support:    at(1),
		Resistance: at(2),
		RSI:        at(3),
		MACD:       at(4),
		MACDSignal: at(5),
		BBUpper:    at(6),
		BBLower:    at(7),
		Momentum:   at(8),
	}
}

func toFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return &f
	case bool:
		if x {
			return Float(1)
		}
		return Float(0)
	default:
		return nil
	}
}
