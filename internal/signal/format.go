package signal

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signalbot/internal/market"
)

var (
	volatilityOptions = []string{"Low", "Moderate", "High"}
	sentimentOptions  = []string{"Bullish", "Bearish", "Neutral"}
)

// Render builds the signal text. The fallback notice is added when any
// price level is missing; missing levels render as a dash.
func Render(p *Payload, r Rand) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line("📢 " + p.Pair + " (" + p.Direction.Label() + ")")
	line("⏱️ Expiration: " + formatMinutes(p.Expiration) + " min")
	line("")
	if p.levelsMissing() {
		line(FallbackNotice)
		line("")
	}
	line(separator)
	line("💵 Price Levels")
	line("   💵 Current value: " + formatPrice(p.Current))
	line("   🔽 Support (S1): " + formatPrice(p.Support))
	line("   🔼 Resistance (R1): " + formatPrice(p.Resistance))
	line(separator)
	line("🔧 Technical Snapshot")
	for _, c := range shuffled(r) {
		line("   📊 " + c.label + ": " + indicatorText(c, p.Snapshot, r))
	}
	line(separator)
	line("🌍 Market Overview")
	line("   📈 Volatility: " + pick(r, volatilityOptions))
	line("   😊 Sentiment: " + pick(r, sentimentOptions))
	b.WriteString("   📊 Volume: " + strconv.Itoa(between(r, 2500, 7500)))
	return b.String()
}

func shuffled(r Rand) []category {
	out := append([]category(nil), categories...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func indicatorText(c category, s *market.Snapshot, r Rand) string {
	if s != nil {
		if st := c.status(s); st != "" {
			return st
		}
	}
	return pick(r, c.fallback)
}

func formatPrice(v *float64) string {
	if v == nil {
		return dash
	}
	return decimal.NewFromFloat(*v).StringFixed(5)
}

// formatMinutes renders 1.50 as "1.5" and 2.00 as "2".
func formatMinutes(m float64) string {
	s := decimal.NewFromFloat(m).StringFixed(2)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
