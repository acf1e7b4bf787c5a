package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
)

// Trigger decides when a job fires. Interval and Calendar are the only
// implementations.
type Trigger interface {
	// next returns the first fire time strictly after `after`. anchor is the
	// registration time of the job.
	next(anchor, after time.Time) time.Time
	validate() error
	String() string
}

// Interval fires on a fixed grid anchored at registration time.
type Interval struct {
	Every time.Duration
}

func (t Interval) next(anchor, after time.Time) time.Time {
	if after.Before(anchor) {
		return anchor.Add(t.Every)
	}
	n := after.Sub(anchor)/t.Every + 1
	return anchor.Add(n * t.Every)
}

func (t Interval) validate() error {
	if t.Every <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", apperrors.ErrInvalidTrigger, t.Every)
	}
	return nil
}

func (t Interval) String() string {
	return "every " + t.Every.String()
}

// Calendar fires at a wall-clock time, optionally only on some weekdays.
type Calendar struct {
	Hour   int
	Minute int
	// Weekdays restricts firing; empty means every day.
	Weekdays []time.Weekday
	// Location defaults to UTC.
	Location *time.Location
}

func (t Calendar) next(_, after time.Time) time.Time {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	local := after.In(loc)

	// A week plus one day covers every weekday filter.
	for i := 0; i <= 7; i++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day()+i, t.Hour, t.Minute, 0, 0, loc)
		if !candidate.After(after) {
			continue
		}
		if t.allows(candidate.Weekday()) {
			return candidate
		}
	}
	// Unreachable for a validated trigger.
	return after.Add(24 * time.Hour)
}

func (t Calendar) allows(day time.Weekday) bool {
	if len(t.Weekdays) == 0 {
		return true
	}
	for _, d := range t.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

func (t Calendar) validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", apperrors.ErrInvalidTrigger, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", apperrors.ErrInvalidTrigger, t.Minute)
	}
	for _, d := range t.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", apperrors.ErrInvalidTrigger, d)
		}
	}
	return nil
}

func (t Calendar) String() string {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	s := fmt.Sprintf("at %02d:%02d %s", t.Hour, t.Minute, loc)
	if len(t.Weekdays) == 0 {
		return s
	}
	days := make([]string, len(t.Weekdays))
	for i, d := range t.Weekdays {
		days[i] = strings.ToLower(d.String()[:3])
	}
	return strings.Join(days, ",") + " " + s
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseCalendar parses "HH:MM" or "mon,fri HH:MM" into a Calendar trigger.
func ParseCalendar(spec string, loc *time.Location) (Calendar, error) {
	fields := strings.Fields(spec)
	if len(fields) == 0 || len(fields) > 2 {
		return Calendar{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidTrigger, spec)
	}

	cal := Calendar{Location: loc}

	clock := fields[len(fields)-1]
	if len(fields) == 2 {
		for _, name := range strings.Split(fields[0], ",") {
			day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return Calendar{}, fmt.Errorf("%w: unknown weekday %q", apperrors.ErrInvalidTrigger, name)
			}
			cal.Weekdays = append(cal.Weekdays, day)
		}
	}

	hh, mm, ok := strings.Cut(clock, ":")
	if !ok {
		return Calendar{}, fmt.Errorf("%w: time %q must be HH:MM", apperrors.ErrInvalidTrigger, clock)
	}
	var err error
	if cal.Hour, err = strconv.Atoi(hh); err != nil {
		return Calendar{}, fmt.Errorf("%w: hour %q", apperrors.ErrInvalidTrigger, hh)
	}
	if cal.Minute, err = strconv.Atoi(mm); err != nil {
		return Calendar{}, fmt.Errorf("%w: minute %q", apperrors.ErrInvalidTrigger, mm)
	}

	if err := cal.validate(); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}
