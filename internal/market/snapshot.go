// Package market fetches best-effort price levels and indicator readings
// for the supported currency pairs.
package market

import (
	"context"
	"strings"
)

// Snapshot holds optional price levels and indicator values for one pair.
type Snapshot struct {
	Close      *float64 `json:"close,omitempty" msgpack:"close,omitempty"`
	Support    *float64 `json:"support,omitempty" msgpack:"support,omitempty"`
	Resistance *float64 `json:"resistance,omitempty" msgpack:"resistance,omitempty"`
	RSI        *float64 `json:"rsi,omitempty" msgpack:"rsi,omitempty"`
	MACD       *float64 `json:"macd,omitempty" msgpack:"macd,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty" msgpack:"macd_signal,omitempty"`
	BBUpper    *float64 `json:"bb_upper,omitempty" msgpack:"bb_upper,omitempty"`
	BBLower    *float64 `json:"bb_lower,omitempty" msgpack:"bb_lower,omitempty"`
	Momentum   *float64 `json:"momentum,omitempty" msgpack:"momentum,omitempty"`
}

// Empty reports whether no field carries a value.
func (s *Snapshot) Empty() bool {
	if s == nil {
		return true
	}
	for _, v := range []*float64{s.Close, s.Support, s.Resistance, s.RSI, s.MACD, s.MACDSignal, s.BBUpper, s.BBLower, s.Momentum} {
		if v != nil {
			return false
		}
	}
	return true
}

// Source returns a snapshot for a pair. A nil snapshot with a nil error
// means no data is available.
type Source interface {
	Snapshot(ctx context.Context, pair string) (*Snapshot, error)
}

// Pairs is the fixed set of supported currency pairs.
var Pairs = []string{
	"GBPJPY", "USDCHF", "CADJPY", "CHFJPY", "EURJPY", "EURCHF", "EURUSD",
	"AUDCAD", "CADCHF", "EURGBP", "USDJPY", "GBPUSD", "EURCAD", "AUDJPY",
	"USDCAD", "AUDUSD", "EURAUD", "GBPAUD", "GBPCHF", "GBPCAD", "AUDCHF",
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(Pairs))
	for _, p := range Pairs {
		m[p] = true
	}
	return m
}()

// Normalize upper-cases pair and reports whether it is supported.
func Normalize(pair string) (string, bool) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	return p, known[p]
}

func Float(v float64) *float64 { return &v }
