package signal

import (
	"math"
	"strings"

	"signalbot/internal/market"
)

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// ParseDirection accepts buy/sell and up/down in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "up":
		return Buy, true
	case "sell", "down":
		return Sell, true
	}
	return "", false
}

func (d Direction) Label() string {
	if d == Sell {
		return "Sell"
	}
	return "Buy"
}

// Trend renders the direction for admin reports.
func (d Direction) Trend() string {
	if d == Sell {
		return "Down (Sell)"
	}
	return "Up (Buy)"
}

// Payload is one signal before rendering.
type Payload struct {
	Pair       string
	Direction  Direction
	Expiration float64 // minutes
	Current    *float64
	Support    *float64
	Resistance *float64
	Snapshot   *market.Snapshot
}

// generatePayload draws a random pair and direction with synthetic price
// levels.
func generatePayload(r Rand) *Payload {
	p := &Payload{
		Pair:       pick(r, market.Pairs),
		Direction:  pick(r, []Direction{Buy, Sell}),
		Expiration: DefaultExpiration,
	}
	base, spread := uniform(r, 0.85, 1.75), uniform(r, 0.003, 0.018)
	if strings.HasSuffix(p.Pair, "JPY") {
		base, spread = uniform(r, 118, 165), uniform(r, 0.05, 0.35)
	}
	p.Current = market.Float(base)
	p.Support = market.Float(math.Max(base-spread, 0.0001))
	p.Resistance = market.Float(base + spread)
	return p
}

// apply overwrites price levels with the snapshot's non-nil values.
func (p *Payload) apply(s *market.Snapshot) {
	p.Snapshot = s
	if s == nil {
		return
	}
	if s.Close != nil {
		p.Current = s.Close
	}
	if s.Support != nil {
		p.Support = s.Support
	}
	if s.Resistance != nil {
		p.Resistance = s.Resistance
	}
}

func (p *Payload) levelsMissing() bool {
	return p.Current == nil || p.Support == nil || p.Resistance == nil
}
