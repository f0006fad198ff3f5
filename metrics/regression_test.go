package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/genotrain/core/tensor"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

func vec(v ...float64) *mat.VecDense {
	if len(v) == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(len(v), v)
}

func TestRegressionScores(t *testing.T) {
	type scoreFn func(yTrue, yPred *mat.VecDense) (float64, error)
	tests := []struct {
		name    string
		fn      scoreFn
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{"MSE perfect", MSE, vec(1, 2, 3), vec(1, 2, 3), 0, false},
		{"MSE simple", MSE, vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5), 0.25, false},
		{"MSE larger", MSE, vec(10, 20, 30), vec(12, 18, 33), 17.0 / 3.0, false},
		{"MSE mismatch", MSE, vec(1, 2, 3), vec(1, 2), 0, true},
		{"MSE empty", MSE, vec(), vec(), 0, true},
		{"RMSE simple", RMSE, vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5), 0.5, false},
		{"MAE signed errors", MAE, vec(1, -2, 3), vec(2, -4, 3), 1, false},
		{"R2 perfect", R2Score, vec(1, 2, 3), vec(1, 2, 3), 1, false},
		{"R2 worse than mean", R2Score, vec(1, 2, 3), vec(3, 2, 1), -3, false},
		// total variance zero is defined as 0
		{"R2 constant target", R2Score, vec(2, 2, 2), vec(1, 2, 3), 0, false},
		{"ExplainedVariance perfect", ExplainedVarianceScore, vec(1, 2, 3), vec(1, 2, 3), 1, false},
		// constant offset is fully explained
		{"ExplainedVariance biased", ExplainedVarianceScore, vec(1, 2, 3), vec(2, 3, 4), 1, false},
		{"ExplainedVariance constant target", ExplainedVarianceScore, vec(2, 2, 2), vec(1, 2, 3), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.yTrue, tt.yPred)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPearson(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 5, 4, 5}

	c, err := Pearson(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 6/math.Sqrt(60), c.Coef, 1e-9)
	assert.InDelta(t, 0.124032, c.PValue, 1e-4)

	t.Run("perfect", func(t *testing.T) {
		c, err := Pearson(x, []float64{2, 4, 6, 8, 10})
		require.NoError(t, err)
		assert.InDelta(t, 1, c.Coef, 1e-12)
		assert.Equal(t, 0.0, c.PValue)
	})

	t.Run("constant input is NaN", func(t *testing.T) {
		c, err := Pearson(x, []float64{3, 3, 3, 3, 3})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(c.Coef))
		assert.True(t, math.IsNaN(c.PValue))
	})

	t.Run("single point is NaN", func(t *testing.T) {
		c, err := Pearson([]float64{1}, []float64{2})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(c.Coef))
	})

	t.Run("mismatch", func(t *testing.T) {
		_, err := Pearson(x, y[:3])
		assert.Error(t, err)
	})
}

func TestSpearman(t *testing.T) {
	c, err := Spearman([]float64{1, 2, 3, 4, 5}, []float64{2, 4, 5, 4, 5})
	require.NoError(t, err)
	assert.InDelta(t, 7/math.Sqrt(90), c.Coef, 1e-9)

	// monotone but non-linear
	c, err = Spearman([]float64{1, 2, 3, 4}, []float64{1, 8, 27, 64})
	require.NoError(t, err)
	assert.InDelta(t, 1, c.Coef, 1e-12)
}

func TestRegressionMetrics(t *testing.T) {
	m := NewRegressionMetrics()
	assert.Empty(t, m.Compute())

	require.NoError(t, m.Update(Inputs{
		Predictions: tensor.MustNew([]float64{1.5, 2.5}, 2, 1),
		Targets:     tensor.MustNew([]float64{1, 2}, 2, 1),
	}))
	require.NoError(t, m.Update(Inputs{
		Predictions: tensor.MustNew([]float64{2.5, 3.5}, 2),
		Targets:     tensor.MustNew([]float64{3, 4}, 2),
	}))

	got := m.Compute()
	for _, key := range []string{"mse", "rmse", "mae", "r2", "explained_variance", "pearson_corr", "pearson_p", "spearman_corr", "spearman_p"} {
		assert.Contains(t, got, key)
	}
	assert.InDelta(t, 0.25, got["mse"], 1e-12)
	assert.InDelta(t, 0.5, got["rmse"], 1e-12)
	assert.InDelta(t, 0.5, got["mae"], 1e-12)
	assert.InDelta(t, 0.8, got["r2"], 1e-12)

	t.Run("constant targets guard r2", func(t *testing.T) {
		warnings := captureWarnings(t)
		m := NewRegressionMetrics()
		require.NoError(t, m.Update(Inputs{
			Predictions: tensor.MustNew([]float64{1, 2, 3}),
			Targets:     tensor.MustNew([]float64{5, 5, 5}),
		}))
		got := m.Compute()
		assert.Equal(t, 0.0, got["r2"])
		assert.Equal(t, 0.0, got["explained_variance"])
		assert.True(t, math.IsNaN(got["pearson_corr"]))

		var metrics []string
		for _, w := range *warnings {
			var uw *errors.UndefinedMetricWarning
			require.True(t, errors.As(w, &uw))
			metrics = append(metrics, uw.Metric)
		}
		assert.ElementsMatch(t, []string{"explained_variance", "pearson_corr", "spearman_corr"}, metrics)
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := m.Update(Inputs{
			Predictions: tensor.MustNew([]float64{1, 2, 3}),
			Targets:     tensor.MustNew([]float64{1, 2}),
		})
		assert.Error(t, err)
	})

	t.Run("reset", func(t *testing.T) {
		m.Reset()
		assert.Empty(t, m.Compute())
	})
}
