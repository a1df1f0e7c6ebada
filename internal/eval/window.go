// Package eval answers the two policy questions the engine asks about a
// profile: is access permitted at a given time, and is a given activity
// allowed. Everything here is a pure function of its arguments.
package eval

import (
	"sort"
	"strings"
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/profile"
)

const (
	ReasonOutsideWindow = "outside permitted window"
	ReasonNoWindows     = "no permitted windows today"
)

// lookahead bounds the search for the next window and for windows that
// continue past midnight.
const lookahead = 7

// WindowDecision is the result of a window lookup.
type WindowDecision struct {
	DayType profile.DayType
	Allowed bool
	// Window is the unioned window containing the evaluation time.
	Window *profile.TimeWindow
	// End is when access stops being permitted, following windows that
	// continue into the next day.
	End time.Time
	// Next is the start of the next permitted window when Allowed is false.
	// Zero if nothing opens within a week.
	Next   time.Time
	Reason string
}

// Union merges overlapping or touching windows into their union, sorted by
// start. Day types of merged windows are combined and labels joined.
func Union(windows []profile.TimeWindow) []profile.TimeWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]profile.TimeWindow, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []profile.TimeWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &out[len(out)-1]
		if w.Start > last.End {
			out = append(out, w)
			continue
		}
		if w.End > last.End {
			last.End = w.End
		}
		if w.Label != "" && !strings.Contains(last.Label, w.Label) {
			if last.Label == "" {
				last.Label = w.Label
			} else {
				last.Label += ", " + w.Label
			}
		}
	}
	return out
}

func windowsOn(p profile.Profile, day time.Time) []profile.TimeWindow {
	return Union(p.WindowsFor(p.DayTypeOf(day)))
}

// LookupWindow decides whether p permits access at local time t. Windows
// match the local time of day, so they keep their clock times across DST
// changes. An empty window list for the day type denies access.
func LookupWindow(p profile.Profile, t time.Time) WindowDecision {
	midnight := profile.Midnight(t)
	offset := profile.OffsetOf(t)
	dayType := p.DayTypeOf(t)
	windows := windowsOn(p, t)

	d := WindowDecision{DayType: dayType}
	for i := range windows {
		if windows[i].Contains(offset) {
			w := windows[i]
			d.Allowed = true
			d.Window = &w
			d.End = effectiveEnd(p, midnight, w)
			return d
		}
	}

	if len(windows) == 0 {
		d.Reason = ReasonNoWindows
	} else {
		d.Reason = ReasonOutsideWindow
	}
	d.Next = nextStart(p, midnight, offset, windows)
	return d
}

// effectiveEnd returns the absolute end of w, extended while the following
// day has a window starting at midnight.
func effectiveEnd(p profile.Profile, midnight time.Time, w profile.TimeWindow) time.Time {
	end := profile.At(midnight, w.End)
	for i := 1; i <= lookahead && w.End == 24*time.Hour; i++ {
		day := midnight.AddDate(0, 0, i)
		next := windowsOn(p, day)
		if len(next) == 0 || next[0].Start != 0 {
			break
		}
		w = next[0]
		end = profile.At(day, w.End)
	}
	return end
}

func nextStart(p profile.Profile, midnight time.Time, offset time.Duration, today []profile.TimeWindow) time.Time {
	for _, w := range today {
		if w.Start > offset {
			return profile.At(midnight, w.Start)
		}
	}
	for i := 1; i <= lookahead; i++ {
		day := midnight.AddDate(0, 0, i)
		if windows := windowsOn(p, day); len(windows) > 0 {
			return profile.At(day, windows[0].Start)
		}
	}
	return time.Time{}
}

// DenialMessage renders a human readable explanation of a denied lookup
// made at t.
func DenialMessage(p profile.Profile, d WindowDecision, t time.Time) string {
	if d.Allowed {
		return ""
	}
	windows := Union(p.WindowsFor(d.DayType))
	if len(windows) == 0 {
		return "No time windows configured for today"
	}
	if len(windows) == 1 && profile.OffsetOf(t) < windows[0].Start {
		return "Computer access starts at " + profile.FormatOffset(windows[0].Start)
	}
	ranges := make([]string, len(windows))
	for i, w := range windows {
		ranges[i] = w.Range()
	}
	return "Computer access is restricted to: " + strings.Join(ranges, ", ")
}
