// Package feature derives the monthly feature table used to train usage models and projects the
// same features forward for periods that have no usage yet.
package feature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownFeature = errors.New("unknown feature name")

type FeatureType int

const (
	FeatureTypeTime FeatureType = iota
	FeatureTypeIndicator
	FeatureTypeSeasonality
	FeatureTypeGrowth
	FeatureTypeLag
	FeatureTypeRolling
	FeatureTypeChange
	FeatureTypeRatio
)

// Feature is a named column of the feature table. String is the stable column name shared by
// training and inference.
type Feature interface {
	String() string
	Type() FeatureType

	// Default is the neutral value used when the feature cannot be computed, for example when a
	// trained schema references a column the current pipeline no longer produces.
	Default() float64
}

// UsageDerived reports whether the feature depends on observed usage.
func UsageDerived(f Feature) bool {
	switch f.Type() {
	case FeatureTypeLag, FeatureTypeRolling, FeatureTypeChange, FeatureTypeRatio:
		return true
	}
	return false
}

// Parse returns the feature for a column name.
func Parse(name string) (Feature, error) {
	switch name {
	case TimeYear, TimeMonth, TimeQuarter, TimeSeason, TimeHolidayCount, TimeWorkDays:
		return NewTime(name), nil
	case GrowthYearTrend, GrowthYearTrendSq, GrowthMonthIndex:
		return NewGrowth(name), nil
	case RatioSeasonalIndex, RatioSeasonalStrength, RatioTrendIndicator:
		return NewRatio(name), nil
	}
	if _, ok := knownIndicators[name]; ok {
		return NewIndicator(name), nil
	}

	if k, ok := suffixInt(name, lagPrefix); ok {
		return NewLag(k), nil
	}
	if k, ok := suffixInt(name, changePrefix); ok {
		return NewChange(k), nil
	}
	for _, stat := range []RollingStat{RollingMean, RollingStd, RollingMin, RollingMax} {
		if w, ok := suffixInt(name, rollingPrefix+string(stat)); ok {
			return NewRolling(stat, w), nil
		}
	}
	for _, cycle := range []Cycle{CycleMonth, CycleQuarter, CycleSemester} {
		switch name {
		case string(cycle) + string(FourierCompSin):
			return NewSeasonality(cycle, FourierCompSin), nil
		case string(cycle) + string(FourierCompCos):
			return NewSeasonality(cycle, FourierCompCos), nil
		}
	}
	return nil, fmt.Errorf("%q, %w", name, ErrUnknownFeature)
}

// DefaultValue returns the neutral value for a column name, 0 when the name is not recognized.
func DefaultValue(name string) float64 {
	f, err := Parse(name)
	if err != nil {
		return 0
	}
	return f.Default()
}

func suffixInt(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	k, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil || k <= 0 {
		return 0, false
	}
	return k, true
}
