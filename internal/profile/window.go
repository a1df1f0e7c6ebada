package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidWindow = errors.New("invalid time window")

// DayType classifies a calendar day for window selection.
type DayType int

const (
	Weekday DayType = iota
	Weekend
	Holiday
)

func (d DayType) String() string {
	switch d {
	case Weekday:
		return "weekday"
	case Weekend:
		return "weekend"
	case Holiday:
		return "holiday"
	}
	return fmt.Sprintf("DayType(%d)", int(d))
}

func ParseDayType(s string) (DayType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekday", "weekdays":
		return Weekday, nil
	case "weekend", "weekends":
		return Weekend, nil
	case "holiday", "holidays":
		return Holiday, nil
	}
	return 0, fmt.Errorf("unknown day type %q", s)
}

// TimeWindow is a local time-of-day range during which access is permitted
// on the listed day types. Start and End are offsets from local midnight and
// Start < End always holds; a range across midnight is two windows.
type TimeWindow struct {
	Start time.Duration
	End   time.Duration
	Days  []DayType
	Label string
}

// AppliesTo reports whether the window is configured for day type d.
func (w TimeWindow) AppliesTo(d DayType) bool {
	for _, day := range w.Days {
		if day == d {
			return true
		}
	}
	return false
}

// Contains reports whether the offset lies in [Start, End).
func (w TimeWindow) Contains(offset time.Duration) bool {
	return w.Start <= offset && offset < w.End
}

func (w TimeWindow) Validate() error {
	if w.Start < 0 || w.End > 24*time.Hour {
		return fmt.Errorf("%w: %s outside of a single day", ErrInvalidWindow, w.Range())
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, FormatOffset(w.Start), FormatOffset(w.End))
	}
	if len(w.Days) == 0 {
		return fmt.Errorf("%w: %s has no day types", ErrInvalidWindow, w.Range())
	}
	return nil
}

// Range formats the window as "HH:MM-HH:MM".
func (w TimeWindow) Range() string {
	return FormatOffset(w.Start) + "-" + FormatOffset(w.End)
}

// UnmarshalText parses "weekday,holiday 06:00-08:00 [label]".
func (w *TimeWindow) UnmarshalText(text []byte) error {
	fields := strings.Fields(string(text))
	if len(fields) < 2 {
		return fmt.Errorf("%w: expected '<days> HH:MM-HH:MM [label]', got %q", ErrInvalidWindow, string(text))
	}

	var days []DayType
	for _, part := range strings.Split(fields[0], ",") {
		d, err := ParseDayType(part)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		days = append(days, d)
	}

	startText, endText, ok := strings.Cut(fields[1], "-")
	if !ok {
		return fmt.Errorf("%w: invalid time range format: expected 'HH:MM-HH:MM'", ErrInvalidWindow)
	}
	start, err := ParseOffset(startText)
	if err != nil {
		return err
	}
	end, err := ParseOffset(endText)
	if err != nil {
		return err
	}

	parsed := TimeWindow{
		Start: start,
		End:   end,
		Days:  days,
		Label: strings.Join(fields[2:], " "),
	}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*w = parsed
	return nil
}

func (w TimeWindow) MarshalText() ([]byte, error) {
	days := make([]string, len(w.Days))
	for i, d := range w.Days {
		days[i] = d.String()
	}
	s := strings.Join(days, ",") + " " + w.Range()
	if w.Label != "" {
		s += " " + w.Label
	}
	return []byte(s), nil
}

// ParseOffset parses "HH:MM" into an offset from midnight. "24:00" is
// accepted as the end of the day.
func ParseOffset(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: invalid time value %q", ErrInvalidWindow, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: invalid time value %q", ErrInvalidWindow, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func FormatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// OffsetOf returns the local time of day of t as an offset from midnight.
func OffsetOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// At returns the instant on t's calendar day whose local time of day is
// offset. On days with a DST change this differs from Midnight(t).Add.
// An offset of 24h is midnight of the following day.
func At(t time.Time, offset time.Duration) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, int(offset), t.Location())
}

// Midnight returns local midnight of the day containing t.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
