package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	set := NewSet()
	require.Nil(t, set.Set(NewTime(TimeMonth), []float64{1, 2}))
	require.Nil(t, set.Set(NewLag(1), []float64{10, 20}))
	require.Nil(t, set.Set(NewRaw("Temperature"), []float64{5, 6}))

	testData := map[string]struct {
		schema   []string
		expected Drift
		cols     map[string][]float64
	}{
		"exact": {
			schema:   []string{"Month", "UsageLag1", "Temperature"},
			expected: Drift{},
		},
		"drift": {
			schema: []string{"UsageLag1", "SeasonalIndex", "Month", "RollingMean3"},
			expected: Drift{
				Added:     []string{"SeasonalIndex", "RollingMean3"},
				Dropped:   []string{"Temperature"},
				Reordered: true,
			},
			cols: map[string][]float64{
				"SeasonalIndex": {1, 1},
				"RollingMean3":  {0, 0},
				"UsageLag1":     {10, 20},
			},
		},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			out, drift := Reconcile(set, td.schema)
			assert.Equal(t, td.expected, drift)
			assert.Equal(t, td.schema, out.Names())
			assert.Equal(t, 2, out.Len())
			for name, expected := range td.cols {
				col, ok := out.Get(name)
				require.True(t, ok)
				assert.Equal(t, expected, col)
			}
		})
	}

	_, drift := Reconcile(set, []string{"Month", "UsageLag1"})
	assert.Empty(t, drift.Added)
	assert.Equal(t, []string{"Temperature"}, drift.Dropped)
	assert.True(t, drift.Nontrivial())
}

func TestSanitizeNames(t *testing.T) {
	mapping := SanitizeNames([]string{"UsageLag1", "Usage Lag1", "1st", "Tüketim", "Usage_Lag1"})
	assert.Equal(t, map[string]string{
		"UsageLag1":  "UsageLag1",
		"Usage Lag1": "Usage_Lag1",
		"1st":        "f_1st",
		"Tüketim":    "T_ketim",
		"Usage_Lag1": "Usage_Lag1_2",
	}, mapping)

	// deterministic for the same input order
	assert.Equal(t, mapping, SanitizeNames([]string{"UsageLag1", "Usage Lag1", "1st", "Tüketim", "Usage_Lag1"}))
}
