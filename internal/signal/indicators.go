package signal

import (
	"math"

	"signalbot/internal/market"
)

type category struct {
	label    string
	status   func(*market.Snapshot) string
	fallback []string
}

var categories = []category{
	{"RSI(14)", rsiStatus, []string{"overbought", "oversold", "divergence", "neutral"}},
	{"MACD", macdStatus, []string{"bull cross", "bear cross", "momentum fades", "trend builds"}},
	{"Bollinger Bands", bollingerStatus, []string{"upper band", "lower band", "bands tighten", "to middle"}},
	{"Pattern", patternStatus, []string{"Head & Shoulders", "Inverse H&S", "Bull flag", "Falling wedge", "Double bottom"}},
	{"Momentum", momentumStatus, []string{"momentum up", "momentum down", "momentum flat", "volatility up"}},
}

// Each status func returns "" when the snapshot lacks its inputs.

func rsiStatus(s *market.Snapshot) string {
	if s.RSI == nil {
		return ""
	}
	switch v := *s.RSI; {
	case v <= 30:
		return "oversold"
	case v >= 70:
		return "overbought"
	case v >= 55:
		return "bull bias"
	case v <= 45:
		return "bear bias"
	}
	return "neutral"
}

func macdStatus(s *market.Snapshot) string {
	if s.MACD == nil || s.MACDSignal == nil {
		return ""
	}
	m, sig := *s.MACD, *s.MACDSignal
	h := m - sig
	thr := math.Max(math.Max(math.Abs(m), math.Abs(sig)), 0.0005) * 0.05
	switch {
	case h >= thr:
		return "bull cross"
	case h <= -thr:
		return "bear cross"
	case h > 0:
		return "trend builds"
	case h < 0:
		return "momentum fades"
	}
	return ""
}

func bollingerStatus(s *market.Snapshot) string {
	if s.Close == nil || s.BBUpper == nil || s.BBLower == nil {
		return ""
	}
	price, upper, lower := *s.Close, *s.BBUpper, *s.BBLower
	if upper <= lower {
		return ""
	}
	switch {
	case price >= upper*0.995:
		return "upper band"
	case price <= lower*1.005:
		return "lower band"
	case price != 0 && (upper-lower)/math.Abs(price) <= 0.005:
		return "bands tighten"
	}
	return "to middle"
}

func momentumStatus(s *market.Snapshot) string {
	if s.Momentum == nil {
		return ""
	}
	v := *s.Momentum
	baseline := 1.0
	if s.Close != nil && math.Abs(*s.Close) >= 1e-9 {
		baseline = math.Abs(*s.Close)
	}
	switch {
	case math.Abs(v)/baseline >= 0.01:
		return "volatility up"
	case v >= 0.0001:
		return "momentum up"
	case v <= -0.0001:
		return "momentum down"
	}
	return "momentum flat"
}

func patternStatus(s *market.Snapshot) string {
	if s.Close == nil || s.Support == nil || s.Resistance == nil {
		return ""
	}
	span := *s.Resistance - *s.Support
	if span <= 0 {
		return ""
	}
	pos := (*s.Close - *s.Support) / span
	mom := 0.0
	if s.Momentum != nil {
		mom = *s.Momentum
	}
	switch {
	case pos <= 0.2:
		if mom > 0 {
			return "Double bottom"
		}
		return "Falling wedge"
	case pos >= 0.8:
		if mom >= 0 {
			return "Bull flag"
		}
		return "Head & Shoulders"
	case mom >= 0.0001:
		return "Inverse H&S"
	case mom <= -0.0001:
		return "Falling wedge"
	}
	return "Breakout watch"
}
