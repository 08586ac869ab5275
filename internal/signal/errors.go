package signal

import (
	"errors"
	"strings"

	"signalbot/internal/market"
)

var (
	ErrInactive        = errors.New("signal: automatic scheduling inactive")
	ErrQuotaMet        = errors.New("signal: daily quota met")
	ErrNoRecipients    = errors.New("signal: no recipients")
	ErrSignalsDisabled = errors.New("signal: global signals disabled")

	ErrInvalidHours     = errors.New("signal: working hours must look like HH:MM-HH:MM")
	ErrInvalidRange     = errors.New("signal: range must look like A-B")
	ErrUnknownPair      = errors.New("signal: unknown currency pair")
	ErrInvalidDirection = errors.New("signal: direction must be buy or sell")
	ErrInvalidMinutes   = errors.New("signal: expiration must be a positive number of minutes")
)

// Reply maps an engine error to the text shown to an administrator.
func Reply(err error) string {
	switch {
	case errors.Is(err, ErrInactive):
		return "Automatic signal scheduling is currently inactive."
	case errors.Is(err, ErrQuotaMet):
		return "The auto-signal quota for today is already met."
	case errors.Is(err, ErrNoRecipients):
		return "There are no users with signals enabled."
	case errors.Is(err, ErrSignalsDisabled):
		return "Global signals are disabled. Enable them before broadcasting."
	case errors.Is(err, ErrInvalidHours), errors.Is(err, ErrInvalidRange):
		return "Invalid format. Please try again."
	case errors.Is(err, ErrUnknownPair):
		return "Unknown pair. Supported: " + strings.Join(market.Pairs, ", ") + "."
	case errors.Is(err, ErrInvalidDirection):
		return "Direction must be buy or sell."
	case errors.Is(err, ErrInvalidMinutes):
		return "Unable to parse the time. Please provide a number greater than zero."
	default:
		return UnexpectedText
	}
}
