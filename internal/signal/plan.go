package signal

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Window is a daily working-hour interval in the reference zone.
type Window struct {
	StartHour, StartMinute int
	EndHour, EndMinute     int
}

// ParseWindow parses "H:M-H:M". Both sides are trimmed; hours must be in
// 0..23 and minutes in 0..59.
func ParseWindow(s string) (Window, bool) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, false
	}
	sh, sm, ok := parseClock(start)
	if !ok {
		return Window{}, false
	}
	eh, em, ok := parseClock(end)
	if !ok {
		return Window{}, false
	}
	return Window{StartHour: sh, StartMinute: sm, EndHour: eh, EndMinute: em}, true
}

func parseClock(s string) (int, int, bool) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(ms))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// Bounds returns the window's start and end on the calendar day of day.
func (w Window) Bounds(day time.Time) (time.Time, time.Time) {
	y, mo, d := day.Date()
	loc := day.Location()
	return time.Date(y, mo, d, w.StartHour, w.StartMinute, 0, 0, loc),
		time.Date(y, mo, d, w.EndHour, w.EndMinute, 0, 0, loc)
}

// ParseRange parses "A-B" with 0 <= A <= B.
func ParseRange(s string) (lower, upper int, ok bool) {
	a, b, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, false
	}
	if lo < 0 || hi < 0 || hi < lo {
		return 0, 0, false
	}
	return lo, hi, true
}

// DaySchedule is the in-memory plan for one reference-zone day.
type DaySchedule struct {
	Date   string // YYYY-MM-DD
	Target int
	Sent   int
}

func (d DaySchedule) Remaining() int {
	if r := d.Target - d.Sent; r > 0 {
		return r
	}
	return 0
}

func dateKey(t time.Time) string { return t.Format(time.DateOnly) }

// drawInstants picks n instants uniformly in [earliest, latest). Instants
// at or past latest are pulled back to latest-1s. The result is sorted.
func drawInstants(rng Rand, n int, earliest, latest time.Time) []time.Time {
	span := latest.Sub(earliest)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		at := earliest.Add(time.Duration(rng.Float64() * float64(span)))
		if !at.Before(latest) {
			at = latest.Add(-time.Second)
		}
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
