package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScores(t *testing.T) {
	testData := map[string]struct {
		predicted []float64
		actual    []float64
		expected  *Scores
		err       error
	}{
		"length mismatch": {
			predicted: []float64{1},
			actual:    []float64{1, 2},
			err:       ErrResLenMismatch,
		},
		"perfect": {
			predicted: []float64{1, 2, 3},
			actual:    []float64{1, 2, 3},
			expected:  &Scores{MSE: 0, RMSE: 0, MAE: 0, MAPE: 0, R2: 1},
		},
		"errors": {
			predicted: []float64{2, 2, 4},
			actual:    []float64{1, 2, 3},
			expected: &Scores{
				MSE:  2.0 / 3.0,
				RMSE: math.Sqrt(2.0 / 3.0),
				MAE:  2.0 / 3.0,
				MAPE: 100 * (1.0 + 1.0/3.0) / 3.0,
				R2:   0,
			},
		},
		"zero actual excluded from mape": {
			predicted: []float64{5, 2},
			actual:    []float64{0, 4},
			expected: &Scores{
				MSE:  (25.0 + 4.0) / 2.0,
				RMSE: math.Sqrt((25.0 + 4.0) / 2.0),
				MAE:  3.5,
				MAPE: 50,
				R2:   stubR2([]float64{5, 2}, []float64{0, 4}),
			},
		},
		"nan skipped": {
			predicted: []float64{1, math.NaN(), 3},
			actual:    []float64{1, 2, 3},
			expected:  &Scores{MSE: 0, RMSE: 0, MAE: 0, MAPE: 0, R2: 1},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := NewScores(td.predicted, td.actual)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.InDelta(t, td.expected.MSE, res.MSE, 1e-9)
			assert.InDelta(t, td.expected.RMSE, res.RMSE, 1e-9)
			assert.InDelta(t, td.expected.MAE, res.MAE, 1e-9)
			assert.InDelta(t, td.expected.MAPE, res.MAPE, 1e-9)
			assert.InDelta(t, td.expected.R2, res.R2, 1e-9)
		})
	}
}

func stubR2(predicted, actual []float64) float64 {
	mean := Mean(actual)
	var ssRes, ssTot float64
	for i := range actual {
		ssRes += math.Pow(actual[i]-predicted[i], 2)
		ssTot += math.Pow(actual[i]-mean, 2)
	}
	return 1 - ssRes/ssTot
}
