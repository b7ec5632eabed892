package feature

import "fmt"

const (
	lagPrefix     = "UsageLag"
	rollingPrefix = "Rolling"
	changePrefix  = "PctChange"
)

// Lag is the usage value observed Periods rows earlier.
type Lag struct {
	Periods int `json:"periods"`
}

func NewLag(periods int) *Lag {
	return &Lag{periods}
}

func (l Lag) String() string {
	return fmt.Sprintf("%s%d", lagPrefix, l.Periods)
}

func (l Lag) Type() FeatureType {
	return FeatureTypeLag
}

func (l Lag) Default() float64 {
	return 0
}

type RollingStat string

const (
	RollingMean RollingStat = "Mean"
	RollingStd  RollingStat = "Std"
	RollingMin  RollingStat = "Min"
	RollingMax  RollingStat = "Max"
)

// Rolling is a statistic over the trailing Window rows preceding the current one.
type Rolling struct {
	Stat   RollingStat `json:"stat"`
	Window int         `json:"window"`
}

func NewRolling(stat RollingStat, window int) *Rolling {
	return &Rolling{stat, window}
}

func (r Rolling) String() string {
	return fmt.Sprintf("%s%s%d", rollingPrefix, r.Stat, r.Window)
}

func (r Rolling) Type() FeatureType {
	return FeatureTypeRolling
}

func (r Rolling) Default() float64 {
	return 0
}

// Change is the fractional change of the previous row's usage over Periods rows.
type Change struct {
	Periods int `json:"periods"`
}

func NewChange(periods int) *Change {
	return &Change{periods}
}

func (c Change) String() string {
	return fmt.Sprintf("%s%d", changePrefix, c.Periods)
}

func (c Change) Type() FeatureType {
	return FeatureTypeChange
}

func (c Change) Default() float64 {
	return 0
}

const (
	RatioSeasonalIndex    = "SeasonalIndex"
	RatioSeasonalStrength = "SeasonalStrength"
	RatioTrendIndicator   = "TrendIndicator"
)

// Ratio features compare usage levels. SeasonalIndex is neutral at 1, the others at 0.
type Ratio struct {
	Name string `json:"name"`
}

func NewRatio(name string) *Ratio {
	return &Ratio{name}
}

func (r Ratio) String() string {
	return r.Name
}

func (r Ratio) Type() FeatureType {
	return FeatureTypeRatio
}

func (r Ratio) Default() float64 {
	if r.Name == RatioSeasonalIndex {
		return 1.0
	}
	return 0
}
