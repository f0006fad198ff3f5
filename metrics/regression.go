package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}

	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MAE", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", n, yPred.Len(), 0)
	}

	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += math.Abs(diff)
	}

	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("R2Score", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("R2Score", n, yPred.Len(), 0)
	}

	// yTrueの平均を計算
	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）を計算
	var tss, rss float64
	for i := 0; i < n; i++ {
		yTrueVal := yTrue.AtVec(i)
		yPredVal := yPred.AtVec(i)

		tss += (yTrueVal - yMean) * (yTrueVal - yMean)
		rss += (yTrueVal - yPredVal) * (yTrueVal - yPredVal)
	}

	// 全変動が0の場合（すべてのyTrueが同じ値）はR²を0と定義する
	if tss == 0 {
		return 0, nil
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

// ExplainedVarianceScore は説明分散スコアを計算する
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("ExplainedVarianceScore", n, yPred.Len(), 0)
	}

	// 平均を計算
	var yTrueMean, yPredMean, diffMean float64
	for i := 0; i < n; i++ {
		yTrueMean += yTrue.AtVec(i)
		yPredMean += yPred.AtVec(i)
		diffMean += (yTrue.AtVec(i) - yPred.AtVec(i))
	}
	yTrueMean /= float64(n)
	yPredMean /= float64(n)
	diffMean /= float64(n)

	// 分散を計算
	var varYTrue, varDiff float64
	for i := 0; i < n; i++ {
		yTrueVal := yTrue.AtVec(i)
		diff := yTrueVal - yPred.AtVec(i)

		varYTrue += (yTrueVal - yTrueMean) * (yTrueVal - yTrueMean)
		varDiff += (diff - diffMean) * (diff - diffMean)
	}
	varYTrue /= float64(n)
	varDiff /= float64(n)

	if varYTrue == 0 {
		return 0, errors.Newf("ExplainedVarianceScore: no variance in yTrue")
	}

	// 説明分散スコア = 1 - Var(yTrue - yPred) / Var(yTrue)
	return 1 - varDiff/varYTrue, nil
}

// ===========================================================================
//
//	相関係数
//
// ===========================================================================

// Correlation holds a correlation coefficient and its two-sided p-value.
type Correlation struct {
	Coef   float64
	PValue float64
}

// Pearson はピアソンの積率相関係数と両側p値を計算する。
// p値は自由度n-2のt分布から求める。
// 2点未満、または一方が定数の場合はNaNを返す。
func Pearson(x, y []float64) (Correlation, error) {
	if len(x) != len(y) {
		return Correlation{}, errors.NewDimensionError("Pearson", len(x), len(y), 0)
	}
	if len(x) < 2 {
		return Correlation{Coef: math.NaN(), PValue: math.NaN()}, nil
	}
	r := stat.Correlation(x, y, nil)
	return Correlation{Coef: r, PValue: correlationPValue(r, len(x))}, nil
}

// Spearman はスピアマンの順位相関係数と両側p値を計算する。
// 同順位は平均順位で扱う。
func Spearman(x, y []float64) (Correlation, error) {
	if len(x) != len(y) {
		return Correlation{}, errors.NewDimensionError("Spearman", len(x), len(y), 0)
	}
	if len(x) < 2 {
		return Correlation{Coef: math.NaN(), PValue: math.NaN()}, nil
	}
	return Pearson(rankAverage(x), rankAverage(y))
}

func correlationPValue(r float64, n int) float64 {
	if math.IsNaN(r) {
		return math.NaN()
	}
	// floating point error can push |r| slightly above 1
	r = math.Max(-1, math.Min(1, r))
	if n == 2 {
		return 1
	}
	if math.Abs(r) == 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/((1-r)*(1+r)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// ===========================================================================
//
//	RegressionMetrics accumulator
//
// ===========================================================================

// RegressionMetrics accumulates flattened scalar predictions and targets.
type RegressionMetrics struct {
	predictions []float64
	targets     []float64
}

// NewRegressionMetrics creates an empty accumulator.
func NewRegressionMetrics() *RegressionMetrics {
	return &RegressionMetrics{}
}

// Name implements Metric.
func (m *RegressionMetrics) Name() string { return "regression" }

// Reset implements Metric.
func (m *RegressionMetrics) Reset() {
	m.predictions = nil
	m.targets = nil
}

// Update implements Metric.
func (m *RegressionMetrics) Update(in Inputs) error {
	if in.Predictions == nil || in.Targets == nil {
		return errors.NewValueError("RegressionMetrics.Update", "predictions and targets are required")
	}
	if in.Predictions.Len() != in.Targets.Len() {
		return errors.NewDimensionError("RegressionMetrics.Update", in.Targets.Len(), in.Predictions.Len(), 0)
	}
	m.predictions = append(m.predictions, in.Predictions.Flatten()...)
	m.targets = append(m.targets, in.Targets.Flatten()...)
	return nil
}

// Compute implements Metric.
func (m *RegressionMetrics) Compute() map[string]float64 {
	n := len(m.predictions)
	if n == 0 {
		return map[string]float64{}
	}
	yTrue := mat.NewVecDense(n, m.targets)
	yPred := mat.NewVecDense(n, m.predictions)

	// lengths are equal and non-zero, so none of these can fail
	mse, _ := MSE(yTrue, yPred)
	mae, _ := MAE(yTrue, yPred)
	r2, _ := R2Score(yTrue, yPred)
	pearson, _ := Pearson(m.predictions, m.targets)
	spearman, _ := Spearman(m.predictions, m.targets)

	// 目標値が定数の場合はr2と同じく0とする
	ev, err := ExplainedVarianceScore(yTrue, yPred)
	if err != nil {
		ev = 0
		errors.Warn(errors.NewUndefinedMetricWarning("explained_variance", "constant targets", ev))
	}
	warnUndefinedCorrelation("pearson_corr", pearson, n)
	warnUndefinedCorrelation("spearman_corr", spearman, n)

	return map[string]float64{
		"mse":                mse,
		"rmse":               math.Sqrt(mse),
		"mae":                mae,
		"r2":                 r2,
		"explained_variance": ev,
		"pearson_corr":       pearson.Coef,
		"pearson_p":          pearson.PValue,
		"spearman_corr":      spearman.Coef,
		"spearman_p":         spearman.PValue,
	}
}

func warnUndefinedCorrelation(metric string, c Correlation, n int) {
	if !math.IsNaN(c.Coef) {
		return
	}
	condition := "constant input"
	if n < 2 {
		condition = "fewer than two samples"
	}
	errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, c.Coef))
}

// Predictions returns the accumulated predictions.
func (m *RegressionMetrics) Predictions() []float64 { return append([]float64(nil), m.predictions...) }

// Targets returns the accumulated targets.
func (m *RegressionMetrics) Targets() []float64 { return append([]float64(nil), m.targets...) }
