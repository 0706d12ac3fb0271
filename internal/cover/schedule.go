package cover

import (
	"fmt"
	"strings"
	"time"
)

// Clock supplies the current time. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "HH:MM", "HH:MM:SS" and RFC 3339 timestamps, of
// which only the clock part is kept.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// nextOccurrence returns the first instant strictly after now at which the
// local clock in loc reads t.
func nextOccurrence(t TimeOfDay, now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, t.Second, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, t.Hour, t.Minute, t.Second, 0, loc)
	}
	return candidate
}

// withinWindow reports whether the local clock of now lies in [open, close).
// A window whose open time is after its close time spans midnight. Equal
// bounds describe an empty window.
func withinWindow(now time.Time, loc *time.Location, open, close TimeOfDay) bool {
	local := now.In(loc)
	t := local.Hour()*3600 + local.Minute()*60 + local.Second()
	o, c := open.seconds(), close.seconds()
	switch {
	case o == c:
		return false
	case o < c:
		return t >= o && t < c
	default:
		return t >= o || t < c
	}
}

// isDue reports whether a scheduled instant has been reached.
func isDue(at *time.Time, now time.Time) bool {
	return at != nil && !now.Before(*at)
}

func earliest(times []time.Time) *time.Time {
	var best *time.Time
	for i := range times {
		if best == nil || times[i].Before(*best) {
			t := times[i]
			best = &t
		}
	}
	return best
}
