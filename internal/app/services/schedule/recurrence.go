package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/cadence/internal/domain/models"
)

// Frequency is the period of a recurrence rule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Pattern is the JSON recurrence descriptor stored on a recurring
// assignment.
//
//	{"frequency":"weekly","interval":2,"weekdays":["mon","thu"],"until":"2025-06-30"}
//
// Interval defaults to 1. Weekdays applies to weekly rules only and defaults
// to the template's own weekday. Until (inclusive) and Count both bound the
// series; Count counts from the template date.
type Pattern struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval,omitempty"`
	Weekdays  []string  `json:"weekdays,omitempty"`
	Until     string    `json:"until,omitempty"`
	Count     int       `json:"count,omitempty"`

	days  []time.Weekday
	until time.Time
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ParsePattern decodes and validates a recurrence descriptor.
func ParsePattern(raw string) (Pattern, error) {
	var p Pattern
	if strings.TrimSpace(raw) == "" {
		return p, errors.New("recurrence pattern is required for recurring assignments")
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pattern{}, fmt.Errorf("recurrence pattern is not valid JSON: %w", err)
	}

	p.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(p.Frequency))))
	switch p.Frequency {
	case Daily, Weekly, Monthly:
	default:
		return Pattern{}, fmt.Errorf("recurrence frequency must be daily, weekly or monthly, got %q", p.Frequency)
	}

	switch {
	case p.Interval < 0:
		return Pattern{}, errors.New("recurrence interval must be positive")
	case p.Interval == 0:
		p.Interval = 1
	}
	if p.Count < 0 {
		return Pattern{}, errors.New("recurrence count must not be negative")
	}

	if len(p.Weekdays) > 0 {
		if p.Frequency != Weekly {
			return Pattern{}, errors.New("weekdays only apply to weekly recurrence")
		}
		seen := make(map[time.Weekday]bool, len(p.Weekdays))
		for _, name := range p.Weekdays {
			d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return Pattern{}, fmt.Errorf("unknown weekday %q (use mon..sun)", name)
			}
			if !seen[d] {
				seen[d] = true
				p.days = append(p.days, d)
			}
		}
		sort.Slice(p.days, func(i, j int) bool {
			return mondayIndex(p.days[i]) < mondayIndex(p.days[j])
		})
	}

	if p.Until != "" {
		u, err := time.Parse(models.DateLayout, p.Until)
		if err != nil {
			return Pattern{}, fmt.Errorf("recurrence until must be YYYY-MM-DD: %w", err)
		}
		p.until = u
	}
	return p, nil
}

// Occurrence is one concrete dated instance of an assignment.
type Occurrence struct {
	AssignmentID string    `json:"assignment_id"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// maxPeriods caps how many periods an expansion walks, whatever the rule.
const maxPeriods = 10000

// Expand lists the occurrences of a whose start lies in [from, to), at most
// limit of them, in chronological order. A zero from means the template
// date; a zero to means no upper bound. Wall-clock values are read in loc.
// A non-recurring assignment yields its single occurrence when it falls in
// the window.
func Expand(a models.Assignment, from, to time.Time, limit int, loc *time.Location) ([]Occurrence, error) {
	if limit <= 0 {
		return []Occurrence{}, nil
	}
	anchor, err := time.Parse(models.DateLayout, a.AssignmentDate)
	if err != nil {
		return nil, fmt.Errorf("assignment date: %w", err)
	}
	startClock, err := time.Parse(models.TimeLayout, a.StartTime)
	if err != nil {
		return nil, fmt.Errorf("assignment start time: %w", err)
	}
	endClock, err := time.Parse(models.TimeLayout, a.EndTime)
	if err != nil {
		return nil, fmt.Errorf("assignment end time: %w", err)
	}

	out := []Occurrence{}
	emit := func(day time.Time) bool {
		occ := occurrence(a, day, startClock, endClock, loc)
		if !from.IsZero() && occ.StartsAt.Before(from) {
			return true
		}
		if !to.IsZero() && !occ.StartsAt.Before(to) {
			return false
		}
		out = append(out, occ)
		return len(out) < limit
	}

	if !a.IsRecurring {
		emit(anchor)
		return out, nil
	}

	p, err := ParsePattern(a.RecurrencePattern)
	if err != nil {
		return nil, err
	}

	produced := 0
	within := func(day time.Time) bool {
		if !p.until.IsZero() && day.After(p.until) {
			return false
		}
		if p.Count > 0 && produced >= p.Count {
			return false
		}
		// Nothing on or after a day starting at or past to can start before it.
		if !to.IsZero() && !dayStart(day, loc).Before(to) {
			return false
		}
		return true
	}

	start := 0
	if p.Count == 0 && !from.IsZero() {
		start = skipPeriods(p, anchor, from.In(loc))
	}

	for k := start; k < start+maxPeriods; k++ {
		days := periodDays(p, anchor, k)
		if days == nil {
			// Month without the anchor's day of month.
			continue
		}
		for _, day := range days {
			if day.Before(anchor) {
				continue
			}
			if !within(day) {
				return out, nil
			}
			produced++
			if !emit(day) {
				return out, nil
			}
		}
	}
	return out, nil
}

// periodDays returns the candidate dates of period k, in order. Dates are
// midnight UTC values used only for calendar arithmetic.
func periodDays(p Pattern, anchor time.Time, k int) []time.Time {
	step := k * p.Interval
	switch p.Frequency {
	case Daily:
		return []time.Time{anchor.AddDate(0, 0, step)}
	case Weekly:
		if len(p.days) == 0 {
			return []time.Time{anchor.AddDate(0, 0, 7*step)}
		}
		weekStart := anchor.AddDate(0, 0, -mondayIndex(anchor.Weekday())+7*step)
		out := make([]time.Time, len(p.days))
		for i, d := range p.days {
			out[i] = weekStart.AddDate(0, 0, mondayIndex(d))
		}
		return out
	case Monthly:
		first := time.Date(anchor.Year(), anchor.Month()+time.Month(step), 1, 0, 0, 0, 0, time.UTC)
		if anchor.Day() > daysIn(first) {
			return nil
		}
		return []time.Time{first.AddDate(0, 0, anchor.Day()-1)}
	}
	return nil
}

// skipPeriods returns how many leading periods end before from. It
// undercounts by one so the boundary period is always walked.
func skipPeriods(p Pattern, anchor, from time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	if !fromDay.After(anchor) {
		return 0
	}
	var periods int
	switch p.Frequency {
	case Daily:
		periods = int(fromDay.Sub(anchor).Hours()/24) / p.Interval
	case Weekly:
		periods = int(fromDay.Sub(anchor).Hours()/24) / (7 * p.Interval)
	case Monthly:
		months := (fromDay.Year()-anchor.Year())*12 + int(fromDay.Month()-anchor.Month())
		periods = months / p.Interval
	}
	if periods > 0 {
		periods--
	}
	return periods
}

func occurrence(a models.Assignment, day, startClock, endClock time.Time, loc *time.Location) Occurrence {
	y, m, d := day.Date()
	starts := time.Date(y, m, d, startClock.Hour(), startClock.Minute(), 0, 0, loc)
	ends := time.Date(y, m, d, endClock.Hour(), endClock.Minute(), 0, 0, loc)
	return Occurrence{
		AssignmentID: a.ID.Hex(),
		Date:         day.Format(models.DateLayout),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		StartsAt:     starts,
		EndsAt:       ends,
	}
}

func dayStart(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func daysIn(first time.Time) int {
	return first.AddDate(0, 1, -1).Day()
}
