package signal

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot/internal/market"
)

func TestRenderLayout(t *testing.T) {
	t.Parallel()
	p := &Payload{
		Pair:       "GBPJPY",
		Direction:  Buy,
		Expiration: 1,
		Current:    market.Float(150.123456),
		Support:    market.Float(149.9),
		Resistance: market.Float(150.4),
	}
	lines := strings.Split(Render(p, NewRand(1)), "\n")
	require.Len(t, lines, 20)
	assert.Equal(t, "📢 GBPJPY (Buy)", lines[0])
	assert.Equal(t, "⏱️ Expiration: 1 min", lines[1])
	assert.Equal(t, "", lines[2])
	assert.Equal(t, separator, lines[3])
	assert.Equal(t, "💵 Price Levels", lines[4])
	assert.Equal(t, "   💵 Current value: 150.12346", lines[5])
	assert.Equal(t, "   🔽 Support (S1): 149.90000", lines[6])
	assert.Equal(t, "   🔼 Resistance (R1): 150.40000", lines[7])
	assert.Equal(t, separator, lines[8])
	assert.Equal(t, "🔧 Technical Snapshot", lines[9])

	labels := map[string]bool{}
	for _, l := range lines[10:15] {
		require.True(t, strings.HasPrefix(l, "   📊 "), l)
		labels[strings.SplitN(strings.TrimPrefix(l, "   📊 "), ":", 2)[0]] = true
	}
	assert.Len(t, labels, 5)
	assert.Equal(t, separator, lines[15])
	assert.Equal(t, "🌍 Market Overview", lines[16])
	assert.Contains(t, lines[17], "📈 Volatility: ")
	assert.Contains(t, lines[18], "😊 Sentiment: ")
	assert.Contains(t, lines[19], "📊 Volume: ")
}

func TestRenderMissingLevels(t *testing.T) {
	t.Parallel()
	p := &Payload{Pair: "EURUSD", Direction: Sell, Expiration: 1.5, Current: market.Float(1.1)}
	text := Render(p, NewRand(1))
	lines := strings.Split(text, "\n")
	assert.Equal(t, "⏱️ Expiration: 1.5 min", lines[1])
	assert.Equal(t, FallbackNotice, lines[3])
	assert.Equal(t, "", lines[4])
	assert.Contains(t, text, "   🔽 Support (S1): —")
	assert.Contains(t, text, "   🔼 Resistance (R1): —")
	assert.Contains(t, text, "   💵 Current value: 1.10000")
}

func TestFormatMinutes(t *testing.T) {
	t.Parallel()
	for in, want := range map[float64]string{1: "1", 1.5: "1.5", 2.25: "2.25", 0.1: "0.1", 3.999: "4"} {
		assert.Equal(t, want, formatMinutes(in), in)
	}
}

func TestIndicatorStatuses(t *testing.T) {
	t.Parallel()
	f := market.Float
	tests := []struct {
		name string
		fn   func(*market.Snapshot) string
		snap market.Snapshot
		want string
	}{
		{"rsi oversold", rsiStatus, market.Snapshot{RSI: f(25)}, "oversold"},
		{"rsi overbought", rsiStatus, market.Snapshot{RSI: f(75)}, "overbought"},
		{"rsi bull", rsiStatus, market.Snapshot{RSI: f(60)}, "bull bias"},
		{"rsi bear", rsiStatus, market.Snapshot{RSI: f(40)}, "bear bias"},
		{"rsi neutral", rsiStatus, market.Snapshot{RSI: f(50)}, "neutral"},
		{"rsi missing", rsiStatus, market.Snapshot{}, ""},
		{"macd bull", macdStatus, market.Snapshot{MACD: f(0.01), MACDSignal: f(0.005)}, "bull cross"},
		{"macd bear", macdStatus, market.Snapshot{MACD: f(0.005), MACDSignal: f(0.01)}, "bear cross"},
		{"macd builds", macdStatus, market.Snapshot{MACD: f(0.0101), MACDSignal: f(0.01)}, "trend builds"},
		{"macd fades", macdStatus, market.Snapshot{MACD: f(0.01), MACDSignal: f(0.0101)}, "momentum fades"},
		{"macd flat", macdStatus, market.Snapshot{MACD: f(0.01), MACDSignal: f(0.01)}, ""},
		{"bb upper", bollingerStatus, market.Snapshot{Close: f(1.2), BBUpper: f(1.2), BBLower: f(1.0)}, "upper band"},
		{"bb lower", bollingerStatus, market.Snapshot{Close: f(1.0), BBUpper: f(1.2), BBLower: f(1.0)}, "lower band"},
		{"bb middle", bollingerStatus, market.Snapshot{Close: f(1.1), BBUpper: f(1.2), BBLower: f(1.0)}, "to middle"},
		{"bb inverted", bollingerStatus, market.Snapshot{Close: f(1.1), BBUpper: f(1.0), BBLower: f(1.2)}, ""},
		{"mom volatile", momentumStatus, market.Snapshot{Close: f(1), Momentum: f(0.02)}, "volatility up"},
		{"mom up", momentumStatus, market.Snapshot{Close: f(1), Momentum: f(0.001)}, "momentum up"},
		{"mom down", momentumStatus, market.Snapshot{Close: f(1), Momentum: f(-0.001)}, "momentum down"},
		{"mom flat", momentumStatus, market.Snapshot{Momentum: f(0.00001)}, "momentum flat"},
		{"pattern bottom", patternStatus, market.Snapshot{Close: f(1.01), Support: f(1), Resistance: f(1.1), Momentum: f(0.001)}, "Double bottom"},
		{"pattern wedge", patternStatus, market.Snapshot{Close: f(1.01), Support: f(1), Resistance: f(1.1)}, "Falling wedge"},
		{"pattern flag", patternStatus, market.Snapshot{Close: f(1.09), Support: f(1), Resistance: f(1.1)}, "Bull flag"},
		{"pattern hs", patternStatus, market.Snapshot{Close: f(1.09), Support: f(1), Resistance: f(1.1), Momentum: f(-0.001)}, "Head & Shoulders"},
		{"pattern inverse", patternStatus, market.Snapshot{Close: f(1.05), Support: f(1), Resistance: f(1.1), Momentum: f(0.001)}, "Inverse H&S"},
		{"pattern breakout", patternStatus, market.Snapshot{Close: f(1.05), Support: f(1), Resistance: f(1.1)}, "Breakout watch"},
	}
	for _, tt := range tests {
		snap := tt.snap
		assert.Equal(t, tt.want, tt.fn(&snap), tt.name)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		limit int
		want  string
		cut   bool
	}{
		{"short", 10, "short", false},
		{"exactly10!", 10, "exactly10!", false},
		{"abcdefghijkl", 10, "abcdefghi…", true},
		{"abcd     efgh", 10, "abcd…", true},
		{"          tail", 5, "…", true},
		{"📢📢📢📢📢📢", 4, "📢📢📢…", true},
	}
	for _, tt := range tests {
		got, cut := Truncate(tt.in, tt.limit)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.cut, cut, tt.in)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.limit)
	}
}

func TestGeneratePayloadLevels(t *testing.T) {
	t.Parallel()
	r := NewRand(3)
	for i := 0; i < 200; i++ {
		p := generatePayload(r)
		_, ok := market.Normalize(p.Pair)
		require.True(t, ok, p.Pair)
		require.NotNil(t, p.Current)
		assert.Equal(t, DefaultExpiration, p.Expiration)
		assert.Less(t, *p.Support, *p.Current)
		assert.Greater(t, *p.Resistance, *p.Current)
		assert.GreaterOrEqual(t, *p.Support, 0.0001)
		if strings.HasSuffix(p.Pair, "JPY") {
			assert.GreaterOrEqual(t, *p.Current, 118.0)
			assert.Less(t, *p.Current, 165.0)
		} else {
			assert.GreaterOrEqual(t, *p.Current, 0.85)
			assert.Less(t, *p.Current, 1.75)
		}
	}
}

func TestParseDirectionAndMinutes(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Direction{"buy": Buy, "UP": Buy, " sell ": Sell, "Down": Sell} {
		d, ok := ParseDirection(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, d, in)
	}
	_, ok := ParseDirection("hold")
	assert.False(t, ok)

	v, err := ParseMinutes("1,5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
	_, err = ParseMinutes("0")
	assert.ErrorIs(t, err, ErrInvalidMinutes)
	_, err = ParseMinutes("soon")
	assert.ErrorIs(t, err, ErrInvalidMinutes)
}
