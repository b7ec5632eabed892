package timedataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeSlice(t *testing.T) {
	testData := map[string]struct {
		t       TimeSlice
		start   time.Time
		end     time.Time
		missing int
	}{
		"empty": {},
		"single": {
			t:     TimeSlice{month(2020, 1)},
			start: month(2020, 1),
			end:   month(2020, 1),
		},
		"contiguous": {
			t:     TimeSlice(GenerateMonths(month(2020, 11), 4)),
			start: month(2020, 11),
			end:   month(2021, 2),
		},
		"gaps": {
			t:       TimeSlice{month(2020, 1), month(2020, 4), month(2020, 5)},
			start:   month(2020, 1),
			end:     month(2020, 5),
			missing: 2,
		},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.start, td.t.StartTime())
			assert.Equal(t, td.end, td.t.EndTime())
			assert.Equal(t, td.missing, td.t.MissingMonths())
		})
	}
}

func TestMonthArithmetic(t *testing.T) {
	assert.Equal(t, month(2021, 1), AddMonths(month(2020, 12), 1))
	assert.Equal(t, month(2019, 12), AddMonths(month(2020, 1), -1))
	assert.Equal(t, 13, MonthsBetween(month(2020, 1), month(2021, 2)))
	assert.Equal(t, month(2020, 3), MonthStart(time.Date(2020, 3, 31, 23, 0, 0, 0, time.UTC)))

	next := NextPeriods(month(2020, 11), 3)
	assert.Equal(t, []time.Time{month(2020, 12), month(2021, 1), month(2021, 2)}, next)
	assert.Nil(t, NextPeriods(month(2020, 11), 0))
}
