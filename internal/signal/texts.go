package signal

import "time"

const (
	// Zone is the reference time zone for days and working hours.
	Zone = "Europe/Kyiv"

	// Lead is the gap between the warning and the delivery.
	Lead = 10 * time.Second

	// CaptionLimit is Telegram's photo caption limit in characters.
	CaptionLimit = 1024

	// RefreshSpec rebuilds the plan at 00:05 reference time.
	RefreshSpec = "5 0 * * *"

	DefaultExpiration = 1.0
)

const (
	WarningText      = "⚡️ Final call: a fresh trading signal lands in 10 seconds. Stay sharp!"
	FallbackNotice   = "⚠️ TradingView data is temporarily unavailable; sending the signal without levels."
	TruncationNotice = "⚠️ Signal text was shortened to fit Telegram limits."
	ImageMissingText = "Image for the chosen pair and direction is missing. Sending text only."
	UnexpectedText   = "An unexpected error occurred while sending the signal. Please try again."

	separator = "━━━━━━━━━━━━━━━━━━"
	dash      = "—"
)
