package timedataset

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
)

// GenerateMonths returns n consecutive month starts beginning at start.
func GenerateMonths(start time.Time, n int) []time.Time {
	t := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = append(t, AddMonths(start, i))
	}
	return t
}

type Series []float64

func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

func (s Series) SetConst(t []time.Time, val float64, start, end time.Time) Series {
	n := len(s)
	for i := 0; i < n; i++ {
		if (t[i].After(start) || t[i].Equal(start)) && t[i].Before(end) {
			s[i] = val
		}
	}
	return s
}

// MaskWithMonths zeroes every value whose calendar month is not in months.
func (s Series) MaskWithMonths(t []time.Time, months ...time.Month) Series {
	keep := make(map[time.Month]struct{}, len(months))
	for _, m := range months {
		keep[m] = struct{}{}
	}
	for i := range s {
		if _, ok := keep[t[i].Month()]; !ok {
			s[i] = 0.0
		}
	}
	return s
}

func GenerateConstY(n int, val float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, val)
	}
	return Series(y)
}

// GenerateTrendY returns base + slope*i for i in [0, n).
func GenerateTrendY(n int, base, slope float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, base+slope*float64(i))
	}
	return Series(y)
}

// GenerateSeasonalY returns an annual sine wave keyed on calendar month with the peak shifted by
// phase months.
func GenerateSeasonalY(t []time.Time, amp, phase float64) Series {
	y := make([]float64, 0, len(t))
	for i := 0; i < len(t); i++ {
		m := float64(t[i].Month())
		y = append(y, amp*math.Sin(2.0*math.Pi*(m+phase)/12.0))
	}
	return Series(y)
}

// GenerateNoise returns seeded gaussian noise so generated series are reproducible.
func GenerateNoise(n int, scale float64, seed uint64) Series {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, r.NormFloat64()*scale)
	}
	return Series(y)
}
