package feature

// Indicator is a 0/1 flag set when the period's calendar month belongs to a fixed month set.
type Indicator struct {
	Name string `json:"name"`
}

// NewIndicator creates a new indicator instance given a name
func NewIndicator(name string) *Indicator {
	return &Indicator{name}
}

// String returns the string representation of the indicator feature
func (i Indicator) String() string {
	return i.Name
}

// Type returns the type of this feature
func (i Indicator) Type() FeatureType {
	return FeatureTypeIndicator
}

func (i Indicator) Default() float64 {
	return 0
}

// MonthSet is a named set of calendar months.
type MonthSet struct {
	Name   string
	Months []int
}

// Contains reports whether month is part of the set.
func (m MonthSet) Contains(month int) bool {
	for _, v := range m.Months {
		if v == month {
			return true
		}
	}
	return false
}

const (
	IndicatorHeatingMonth    = "HeatingMonth"
	IndicatorCoolingMonth    = "CoolingMonth"
	IndicatorHolidayMonth    = "HolidayMonth"
	IndicatorSummerMonth     = "SummerMonth"
	IndicatorNonHeatingMonth = "NonHeatingMonth"
	IndicatorTransitionMonth = "TransitionMonth"
	IndicatorAcademicMonth   = "AcademicMonth"
	IndicatorExamMonth       = "ExamMonth"
)

var knownIndicators = map[string]struct{}{
	IndicatorHeatingMonth:    {},
	IndicatorCoolingMonth:    {},
	IndicatorHolidayMonth:    {},
	IndicatorSummerMonth:     {},
	IndicatorNonHeatingMonth: {},
	IndicatorTransitionMonth: {},
	IndicatorAcademicMonth:   {},
	IndicatorExamMonth:       {},
}

// DefaultIndicators returns the month sets flagged for each resource kind.
func DefaultIndicators() map[Resource][]MonthSet {
	return map[Resource][]MonthSet{
		Electricity: {
			{IndicatorHeatingMonth, []int{11, 12, 1, 2, 3}},
			{IndicatorCoolingMonth, []int{6, 7, 8, 9}},
			{IndicatorHolidayMonth, []int{7, 8}},
		},
		Water: {
			{IndicatorHolidayMonth, []int{7, 8}},
			{IndicatorSummerMonth, []int{6, 7, 8}},
		},
		NaturalGas: {
			{IndicatorHeatingMonth, []int{11, 12, 1, 2, 3}},
			{IndicatorNonHeatingMonth, []int{6, 7, 8, 9}},
			{IndicatorTransitionMonth, []int{4, 5, 10}},
		},
		Paper: {
			{IndicatorAcademicMonth, []int{3, 4, 5, 10, 11, 12}},
			{IndicatorExamMonth, []int{1, 6}},
			{IndicatorHolidayMonth, []int{7, 8}},
		},
	}
}
