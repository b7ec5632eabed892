package feature

import "math"

type FourierComp string

const (
	FourierCompSin FourierComp = "Sin"
	FourierCompCos FourierComp = "Cos"
)

// Cycle names a calendar cycle encoded with a sin/cos pair.
type Cycle string

const (
	CycleMonth    Cycle = "Month"
	CycleQuarter  Cycle = "Quarter"
	CycleSemester Cycle = "Semester"
)

type Seasonality struct {
	Cycle       Cycle       `json:"cycle"`
	FourierComp FourierComp `json:"fourier_component"`
}

func NewSeasonality(cycle Cycle, fcomp FourierComp) *Seasonality {
	return &Seasonality{cycle, fcomp}
}

func (s Seasonality) String() string {
	return string(s.Cycle) + string(s.FourierComp)
}

func (s Seasonality) Type() FeatureType {
	return FeatureTypeSeasonality
}

func (s Seasonality) Default() float64 {
	return 0
}

// Value evaluates the encoding for a calendar month 1-12.
func (s Seasonality) Value(month int) float64 {
	var x float64
	switch s.Cycle {
	case CycleMonth:
		x = 2.0 * math.Pi * float64(month) / 12.0
	case CycleQuarter:
		x = 2.0 * math.Pi * float64(Quarter(month)) / 4.0
	case CycleSemester:
		x = 2.0 * math.Pi * float64(month) / 6.0
	}
	if s.FourierComp == FourierCompCos {
		return math.Cos(x)
	}
	return math.Sin(x)
}
