package forecast

import (
	"errors"
	"fmt"
	"time"

	"github.com/carbonwise/go-forecaster/feature"
)

var (
	ErrEmptySplit  = errors.New("train or test split is empty")
	ErrSplitLength = errors.New("periods, features and targets have different lengths")
)

// TestSize returns how many of the most recent of n rows are held out for testing: 12 with at
// least three years of history, 6 with at least two and otherwise a fifth of the rows capped at 6.
func TestSize(n int) int {
	switch {
	case n >= 36:
		return 12
	case n >= 24:
		return 6
	}
	return max(1, min(6, n/5))
}

// Split is a contiguous block of feature rows with their periods and usage targets.
type Split struct {
	Periods []time.Time
	X       *feature.Set
	Y       []float64
}

func (s Split) Len() int {
	return len(s.Y)
}

// SplitTrainTest holds out the most recent TestSize rows as the test split. Rows are never
// shuffled.
func SplitTrainTest(periods []time.Time, x *feature.Set, y []float64) (Split, Split, error) {
	n := len(y)
	if len(periods) != n || x.Len() != n {
		return Split{}, Split{}, fmt.Errorf("%d periods, %d feature rows, %d targets, %w", len(periods), x.Len(), n, ErrSplitLength)
	}
	if n < 2 {
		return Split{}, Split{}, fmt.Errorf("%d rows, %w", n, ErrEmptySplit)
	}
	cut := n - TestSize(n)
	train := Split{
		Periods: periods[:cut],
		X:       x.Slice(0, cut),
		Y:       y[:cut],
	}
	test := Split{
		Periods: periods[cut:],
		X:       x.Slice(cut, n),
		Y:       y[cut:],
	}
	return train, test, nil
}
