package event

import (
	"fmt"
	"sort"
	"time"

	"github.com/rickar/cal/v2"
)

// Turkish fixed-date public holidays.
// TODO: add Ramazan and Kurban Bayramı from a lunar date table.
var (
	NewYear = &cal.Holiday{
		Name:  "New Year's Day",
		Type:  cal.ObservancePublic,
		Month: time.January,
		Day:   1,
		Func:  cal.CalcDayOfMonth,
	}
	SovereigntyDay = &cal.Holiday{
		Name:  "National Sovereignty and Children's Day",
		Type:  cal.ObservancePublic,
		Month: time.April,
		Day:   23,
		Func:  cal.CalcDayOfMonth,
	}
	LabourDay = &cal.Holiday{
		Name:  "Labour and Solidarity Day",
		Type:  cal.ObservancePublic,
		Month: time.May,
		Day:   1,
		Func:  cal.CalcDayOfMonth,
	}
	YouthDay = &cal.Holiday{
		Name:  "Commemoration of Atatürk, Youth and Sports Day",
		Type:  cal.ObservancePublic,
		Month: time.May,
		Day:   19,
		Func:  cal.CalcDayOfMonth,
	}
	DemocracyDay = &cal.Holiday{
		Name:      "Democracy and National Unity Day",
		Type:      cal.ObservancePublic,
		Month:     time.July,
		Day:       15,
		StartYear: 2017,
		Func:      cal.CalcDayOfMonth,
	}
	VictoryDay = &cal.Holiday{
		Name:  "Victory Day",
		Type:  cal.ObservancePublic,
		Month: time.August,
		Day:   30,
		Func:  cal.CalcDayOfMonth,
	}
	RepublicDay = &cal.Holiday{
		Name:  "Republic Day",
		Type:  cal.ObservancePublic,
		Month: time.October,
		Day:   29,
		Func:  cal.CalcDayOfMonth,
	}

	TurkeyHolidays = []*cal.Holiday{
		NewYear,
		SovereigntyDay,
		LabourDay,
		YouthDay,
		DemocracyDay,
		VictoryDay,
		RepublicDay,
	}
)

// Calendar counts holidays and work days per calendar month. Extra closures such as campus
// shutdowns can be registered on top of the public holidays.
type Calendar struct {
	holidays []*cal.Holiday
	extra    []Event
}

// NewCalendar creates a calendar for the given holidays. With no holidays the Turkish public
// holiday set is used.
func NewCalendar(holidays ...*cal.Holiday) *Calendar {
	if len(holidays) == 0 {
		holidays = TurkeyHolidays
	}
	return &Calendar{holidays: holidays}
}

// AddEvent registers an extra closure span.
func (c *Calendar) AddEvent(e Event) error {
	if err := e.Valid(); err != nil {
		return fmt.Errorf("invalid event %q, %w", e.Name, err)
	}
	c.extra = append(c.extra, e)
	return nil
}

// Events returns every holiday and closure that starts in [start, end) ordered by start.
func (c *Calendar) Events(start, end time.Time) []Event {
	var events []Event
	for _, hol := range c.holidays {
		for _, e := range Holiday(hol, start, end) {
			if e.Start.Before(end) {
				events = append(events, e)
			}
		}
	}
	for _, e := range c.extra {
		if e.End.After(start) && e.Start.Before(end) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events
}

func monthRange(period time.Time) (time.Time, time.Time) {
	p := period.UTC()
	start := time.Date(p.Year(), p.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// HolidayCount returns the number of holiday or closure days in the month containing period.
func (c *Calendar) HolidayCount(period time.Time) int {
	start, end := monthRange(period)
	closed := c.closedDays(start, end)
	return len(closed)
}

// WorkDays returns the number of weekdays in the month containing period that are not holidays
// or closures.
func (c *Calendar) WorkDays(period time.Time) int {
	start, end := monthRange(period)
	closed := c.closedDays(start, end)

	var n int
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if _, ok := closed[d]; ok {
			continue
		}
		n++
	}
	return n
}

func (c *Calendar) closedDays(start, end time.Time) map[time.Time]struct{} {
	closed := make(map[time.Time]struct{})
	for _, e := range c.Events(start, end) {
		for d := e.Start; d.Before(e.End); d = d.AddDate(0, 0, 1) {
			day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			if day.Before(start) || !day.Before(end) {
				continue
			}
			closed[day] = struct{}{}
		}
	}
	return closed
}
