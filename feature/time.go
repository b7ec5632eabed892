package feature

// Calendar features derived only from the period.
const (
	TimeYear         = "Year"
	TimeMonth        = "Month"
	TimeQuarter      = "Quarter"
	TimeSeason       = "Season"
	TimeHolidayCount = "HolidayCount"
	TimeWorkDays     = "WorkDays"
)

type Time struct {
	Name string `json:"name"`
}

func NewTime(name string) *Time {
	return &Time{name}
}

func (t Time) String() string {
	return t.Name
}

func (t Time) Type() FeatureType {
	return FeatureTypeTime
}

func (t Time) Default() float64 {
	return 0
}

// Quarter returns 1-4 for a month 1-12.
func Quarter(month int) int {
	return (month-1)/3 + 1
}

// Season returns 0 for Dec-Feb, 1 for Mar-May, 2 for Jun-Aug and 3 for Sep-Nov.
func Season(month int) int {
	return (month % 12) / 3
}
