package timedataset

import "time"

type TimeSlice []time.Time

func (t TimeSlice) StartTime() time.Time {
	var startTime time.Time
	if len(t) < 1 {
		return startTime
	}
	return t[0]
}

func (t TimeSlice) EndTime() time.Time {
	var lastTime time.Time
	if len(t) < 1 {
		return lastTime
	}

	lastTime = t[len(t)-1]
	return lastTime
}

// MissingMonths counts calendar months between the first and last period that have no
// observation.
func (t TimeSlice) MissingMonths() int {
	if len(t) < 2 {
		return 0
	}
	span := MonthsBetween(t.StartTime(), t.EndTime()) + 1
	return span - len(t)
}

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a month start by k months handling year rollover.
func AddMonths(t time.Time, k int) time.Time {
	return MonthStart(t).AddDate(0, k, 0)
}

// MonthsBetween returns the number of whole months from a to b.
func MonthsBetween(a, b time.Time) int {
	a, b = MonthStart(a), MonthStart(b)
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// NextPeriods returns the h consecutive month starts following last.
func NextPeriods(last time.Time, h int) []time.Time {
	if h <= 0 {
		return nil
	}
	periods := make([]time.Time, h)
	for i := 0; i < h; i++ {
		periods[i] = AddMonths(last, i+1)
	}
	return periods
}
