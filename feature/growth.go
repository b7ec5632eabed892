package feature

// Long-run drift features. YearTrend and MonthIndex are measured from the trend base, the first
// period of the series a model was trained on.
const (
	GrowthYearTrend   = "YearTrend"
	GrowthYearTrendSq = "YearTrendSq"
	GrowthMonthIndex  = "MonthIndex"
)

type Growth struct {
	Name string `json:"name"`
}

func NewGrowth(name string) *Growth {
	return &Growth{name}
}

// String returns the string representation of the growth feature
func (g Growth) String() string {
	return g.Name
}

// Type returns the type of this feature
func (g Growth) Type() FeatureType {
	return FeatureTypeGrowth
}

func (g Growth) Default() float64 {
	return 0
}
