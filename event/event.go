// Package event provides the public holiday calendar used to derive per-month holiday and
// work-day counts.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
)

var (
	ErrStartAfterEnd = errors.New("event start time is after end time")
	ErrUnsetTime     = errors.New("unset event start or end time")
	ErrNoEventName   = errors.New("no event name")
)

// Event represents a closure span such as a public holiday or a campus shutdown
type Event struct {
	Name  string
	Start time.Time
	End   time.Time
}

func NewEvent(name string, start, end time.Time) Event {
	return Event{
		Name:  name,
		Start: start,
		End:   end,
	}
}

func (e *Event) Valid() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return ErrUnsetTime
	}
	if e.Start.After(e.End) {
		return ErrStartAfterEnd
	}
	if e.Name == "" {
		return ErrNoEventName
	}
	return nil
}

// Holiday returns one single day event per year for the observed date of hol between start and
// end inclusive. Observed dates are taken as calendar days in the location of start.
func Holiday(hol *cal.Holiday, start, end time.Time) []Event {
	var events []Event
	for year := start.Year(); year <= end.Year(); year++ {
		_, observed := hol.Calc(year)
		if observed.IsZero() {
			continue
		}
		day := time.Date(observed.Year(), observed.Month(), observed.Day(), 0, 0, 0, 0, start.Location())
		if day.Before(start) || day.After(end) {
			continue
		}
		events = append(events, NewEvent(strings.ReplaceAll(fmt.Sprintf("%s_%d", hol.Name, year), " ", "_"), day, day.AddDate(0, 0, 1)))
	}
	return events
}
