package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// Average selects how per-class scores are combined.
type Average string

const (
	// AverageMicro counts true/false positives globally.
	AverageMicro Average = "micro"
	// AverageMacro is the unweighted mean over labels.
	AverageMacro Average = "macro"
	// AverageWeighted weights each label by its support in the targets.
	AverageWeighted Average = "weighted"
	// AverageBinary reports the positive class (label 1) only.
	AverageBinary Average = "binary"
)

// ParseAverage validates an averaging mode name.
func ParseAverage(s string) (Average, error) {
	switch a := Average(s); a {
	case AverageMicro, AverageMacro, AverageWeighted, AverageBinary:
		return a, nil
	}
	return "", errors.NewValidationError("average", "must be one of micro, macro, weighted, binary", s)
}

// ===========================================================================
//
//	Confusion-matrix based scores
//
// ===========================================================================

// ConfusionMatrix は混同行列を計算する。
// labelsはソート済みのラベル集合で、行が正解、列が予測に対応する。
func ConfusionMatrix(yTrue, yPred []int) (*mat.Dense, []int, error) {
	if len(yTrue) == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "empty input")
	}
	if len(yTrue) != len(yPred) {
		return nil, nil, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}
	labels := uniqueLabels(yTrue, yPred)
	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		r, c := index[yTrue[i]], index[yPred[i]]
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, labels, nil
}

func uniqueLabels(a, b []int) []int {
	seen := make(map[int]struct{})
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Ints(labels)
	return labels
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred []int) (float64, error) {
	if len(yTrue) == 0 {
		return 0, errors.NewValueError("Accuracy", "empty input")
	}
	if len(yTrue) != len(yPred) {
		return 0, errors.NewDimensionError("Accuracy", len(yTrue), len(yPred), 0)
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// PRFScores holds averaged precision, recall and F1.
type PRFScores struct {
	Precision float64
	Recall    float64
	F1        float64
}

// PrecisionRecallF1 computes precision, recall and F1 with the given averaging.
// Zero divisions evaluate to 0.
func PrecisionRecallF1(yTrue, yPred []int, average Average) (PRFScores, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return PRFScores{}, err
	}
	stats := perClassStats(cm)

	switch average {
	case AverageMicro:
		var tp, fp, fn float64
		for _, s := range stats {
			tp += s.tp
			fp += s.fp
			fn += s.fn
		}
		p, r := safeRatio(tp, tp+fp), safeRatio(tp, tp+fn)
		return PRFScores{Precision: p, Recall: r, F1: safeRatio(2*tp, 2*tp+fp+fn)}, nil

	case AverageBinary:
		if len(labels) > 2 {
			return PRFScores{}, errors.NewValueError("PrecisionRecallF1",
				fmt.Sprintf("binary average requested but %d labels present", len(labels)))
		}
		for i, l := range labels {
			if l == 1 {
				s := stats[i]
				return PRFScores{Precision: s.precision(), Recall: s.recall(), F1: s.f1()}, nil
			}
		}
		// positive label never seen: every score is a zero division
		return PRFScores{}, nil

	case AverageMacro, AverageWeighted:
		var out PRFScores
		var totalWeight float64
		for _, s := range stats {
			w := 1.0
			if average == AverageWeighted {
				w = s.support
			}
			out.Precision += w * s.precision()
			out.Recall += w * s.recall()
			out.F1 += w * s.f1()
			totalWeight += w
		}
		if totalWeight == 0 {
			return PRFScores{}, nil
		}
		out.Precision /= totalWeight
		out.Recall /= totalWeight
		out.F1 /= totalWeight
		return out, nil
	}
	return PRFScores{}, errors.NewValidationError("average", "unknown averaging mode", string(average))
}

// F1PerClass returns the F1 score of every label present in yTrue or yPred.
func F1PerClass(yTrue, yPred []int) (map[int]float64, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	stats := perClassStats(cm)
	out := make(map[int]float64, len(labels))
	for i, l := range labels {
		out[l] = stats[i].f1()
	}
	return out, nil
}

// MatthewsCorrCoef はマシューズ相関係数を計算する（多クラス対応）。
// 分母が0の場合は0を返す。
func MatthewsCorrCoef(yTrue, yPred []int) (float64, error) {
	cm, _, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	k, _ := cm.Dims()
	tk := make([]float64, k) // true counts
	pk := make([]float64, k) // predicted counts
	var c, s float64
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v := cm.At(i, j)
			tk[i] += v
			pk[j] += v
			s += v
		}
		c += cm.At(i, i)
	}
	cov := c*s - floats.Dot(tk, pk)
	den := (s*s - floats.Dot(pk, pk)) * (s*s - floats.Dot(tk, tk))
	if den == 0 {
		return 0, nil
	}
	return cov / math.Sqrt(den), nil
}

type classStats struct {
	tp, fp, fn, support float64
}

func (s classStats) precision() float64 { return safeRatio(s.tp, s.tp+s.fp) }
func (s classStats) recall() float64    { return safeRatio(s.tp, s.tp+s.fn) }
func (s classStats) f1() float64        { return safeRatio(2*s.tp, 2*s.tp+s.fp+s.fn) }

func perClassStats(cm *mat.Dense) []classStats {
	k, _ := cm.Dims()
	stats := make([]classStats, k)
	for i := 0; i < k; i++ {
		stats[i].tp = cm.At(i, i)
		for j := 0; j < k; j++ {
			if j == i {
				continue
			}
			stats[i].fn += cm.At(i, j)
			stats[i].fp += cm.At(j, i)
		}
		stats[i].support = stats[i].tp + stats[i].fn
	}
	return stats
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// ===========================================================================
//
//	Ranking scores
//
// ===========================================================================

// ROCAUC はROC曲線下面積を計算する。yTrueは0/1の二値ラベル。
// 同順位のスコアは平均順位で扱う（台形則と同値）。
// 片方のクラスしか存在しない場合はErrSingleClassを返す。
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	pos, neg, err := checkBinary("ROCAUC", yTrue, scores)
	if err != nil {
		return 0, err
	}
	ranks := rankAverage(scores)
	var rankSum float64
	for i, y := range yTrue {
		if y == 1 {
			rankSum += ranks[i]
		}
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg), nil
}

// AveragePrecision は適合率-再現率曲線を段階関数として要約する。
// AP = Σ (R_n - R_{n-1}) P_n
func AveragePrecision(yTrue []int, scores []float64) (float64, error) {
	pos, _, err := checkBinary("AveragePrecision", yTrue, scores)
	if err != nil {
		return 0, err
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var tp, fp, prevRecall, ap float64
	for i := 0; i < len(order); {
		// consume a whole group of tied scores as one threshold
		j := i
		for j < len(order) && scores[order[j]] == scores[order[i]] {
			if yTrue[order[j]] == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		recall := tp / pos
		ap += (recall - prevRecall) * (tp / (tp + fp))
		prevRecall = recall
		i = j
	}
	return ap, nil
}

func checkBinary(op string, yTrue []int, scores []float64) (pos, neg float64, err error) {
	if len(yTrue) == 0 {
		return 0, 0, errors.NewValueError(op, "empty input")
	}
	if len(yTrue) != len(scores) {
		return 0, 0, errors.NewDimensionError(op, len(yTrue), len(scores), 0)
	}
	for _, y := range yTrue {
		switch y {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return 0, 0, errors.NewValueError(op, "labels must be 0 or 1, got "+strconv.Itoa(y))
		}
	}
	if pos == 0 || neg == 0 {
		return 0, 0, errors.Wrapf(errors.ErrSingleClass, "%s", op)
	}
	return pos, neg, nil
}

// rankAverage returns 1-based ranks with ties replaced by their mean rank.
func rankAverage(x []float64) []float64 {
	n := len(x)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && x[order[j+1]] == x[order[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = r
		}
		i = j + 1
	}
	return ranks
}

// OneVsRestAUC computes multiclass ROC-AUC and average precision by treating
// each column of probs as the score of one class against the rest.
//
// Every class in [0, numClasses) must appear in yTrue and every row of probs
// must sum to 1. macro and binary average the per-class scores uniformly,
// weighted uses class prevalence, micro scores the flattened one-hot problem.
func OneVsRestAUC(yTrue []int, probs *mat.Dense, average Average) (rocAUC, ap float64, err error) {
	n, c := probs.Dims()
	if n != len(yTrue) {
		return 0, 0, errors.NewDimensionError("OneVsRestAUC", len(yTrue), n, 0)
	}
	support := make([]float64, c)
	for _, y := range yTrue {
		if y < 0 || y >= c {
			return 0, 0, errors.NewValueError("OneVsRestAUC", "label outside probability columns: "+strconv.Itoa(y))
		}
		support[y]++
	}
	for k, s := range support {
		if s == 0 {
			return 0, 0, errors.NewValueError("OneVsRestAUC",
				fmt.Sprintf("class %d never observed in targets", k))
		}
	}
	for i := 0; i < n; i++ {
		if sum := floats.Sum(probs.RawRowView(i)); math.Abs(sum-1) > 1e-6 {
			return 0, 0, errors.NewValueError("OneVsRestAUC",
				fmt.Sprintf("probability rows must sum to 1, row %d sums to %g", i, sum))
		}
	}

	if average == AverageMicro {
		flatTrue := make([]int, 0, n*c)
		flatScore := make([]float64, 0, n*c)
		for i := 0; i < n; i++ {
			for k := 0; k < c; k++ {
				hit := 0
				if yTrue[i] == k {
					hit = 1
				}
				flatTrue = append(flatTrue, hit)
				flatScore = append(flatScore, probs.At(i, k))
			}
		}
		if rocAUC, err = ROCAUC(flatTrue, flatScore); err != nil {
			return 0, 0, err
		}
		if ap, err = AveragePrecision(flatTrue, flatScore); err != nil {
			return 0, 0, err
		}
		return rocAUC, ap, nil
	}

	binTrue := make([]int, n)
	col := make([]float64, n)
	var totalWeight float64
	for k := 0; k < c; k++ {
		for i := 0; i < n; i++ {
			binTrue[i] = 0
			if yTrue[i] == k {
				binTrue[i] = 1
			}
		}
		mat.Col(col, k, probs)
		roc, err := ROCAUC(binTrue, col)
		if err != nil {
			return 0, 0, err
		}
		p, err := AveragePrecision(binTrue, col)
		if err != nil {
			return 0, 0, err
		}
		w := 1.0
		if average == AverageWeighted {
			w = support[k]
		}
		rocAUC += w * roc
		ap += w * p
		totalWeight += w
	}
	return rocAUC / totalWeight, ap / totalWeight, nil
}

// ===========================================================================
//
//	ClassificationMetrics accumulator
//
// ===========================================================================

// ClassificationMetrics accumulates class predictions, targets and optionally
// class probabilities. Sequence-shaped inputs are flattened; positions whose
// target is the ignore sentinel or outside [0, numClasses) are dropped.
type ClassificationMetrics struct {
	numClasses  int
	average     Average
	ignoreIndex int

	predictions   []int
	targets       []int
	probabilities [][]float64
}

// ClassificationOption configures ClassificationMetrics.
type ClassificationOption func(*ClassificationMetrics)

// WithAverage sets the averaging mode. Default is weighted.
func WithAverage(a Average) ClassificationOption {
	return func(m *ClassificationMetrics) { m.average = a }
}

// WithIgnoreIndex sets the padding sentinel. Default is DefaultIgnoreIndex.
func WithIgnoreIndex(i int) ClassificationOption {
	return func(m *ClassificationMetrics) { m.ignoreIndex = i }
}

// NewClassificationMetrics creates an accumulator for numClasses classes.
func NewClassificationMetrics(numClasses int, opts ...ClassificationOption) (*ClassificationMetrics, error) {
	if numClasses < 2 {
		return nil, errors.NewValidationError("num_classes", "must be at least 2", numClasses)
	}
	m := &ClassificationMetrics{
		numClasses:  numClasses,
		average:     AverageWeighted,
		ignoreIndex: DefaultIgnoreIndex,
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, err := ParseAverage(string(m.average)); err != nil {
		return nil, err
	}
	if m.average == AverageBinary && numClasses > 2 {
		return nil, errors.NewValidationError("average", "binary averaging needs num_classes == 2", numClasses)
	}
	return m, nil
}

// Name implements Metric.
func (m *ClassificationMetrics) Name() string { return "classification" }

// Reset implements Metric.
func (m *ClassificationMetrics) Reset() {
	m.predictions = nil
	m.targets = nil
	m.probabilities = nil
}

// Update implements Metric. Predictions and Targets are required and must have
// the same number of elements; Probabilities, when present, must hold one row
// of numClasses values per element.
func (m *ClassificationMetrics) Update(in Inputs) error {
	if in.Predictions == nil || in.Targets == nil {
		return errors.NewValueError("ClassificationMetrics.Update", "predictions and targets are required")
	}
	preds := in.Predictions.Ints()
	targets := in.Targets.Ints()
	if len(preds) != len(targets) {
		return errors.NewDimensionError("ClassificationMetrics.Update", len(targets), len(preds), 0)
	}

	var probs *mat.Dense
	if in.Probabilities != nil && in.Probabilities.Len() > 0 {
		if cols := in.Probabilities.Last(); cols != m.numClasses {
			return errors.NewDimensionError("ClassificationMetrics.Update probabilities", m.numClasses, cols, 1)
		}
		probs = in.Probabilities.Matrix()
		if rows, _ := probs.Dims(); rows != len(targets) {
			return errors.NewDimensionError("ClassificationMetrics.Update probabilities", len(targets), rows, 0)
		}
	}

	ignore := m.ignoreIndex
	if in.IgnoreIndex != nil {
		ignore = *in.IgnoreIndex
	}
	for i, t := range targets {
		if t == ignore || t < 0 || t >= m.numClasses {
			continue
		}
		m.predictions = append(m.predictions, preds[i])
		m.targets = append(m.targets, t)
		if probs != nil {
			m.probabilities = append(m.probabilities, mat.Row(nil, i, probs))
		}
	}
	return nil
}

// Compute implements Metric.
func (m *ClassificationMetrics) Compute() map[string]float64 {
	if len(m.predictions) == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64)

	// lengths are validated in Update, so the free functions cannot fail here
	acc, _ := Accuracy(m.targets, m.predictions)
	prf, err := PrecisionRecallF1(m.targets, m.predictions, m.average)
	if err != nil {
		// binary averaging with a stray predicted label outside {0, 1}
		errors.Warn(errors.NewMetricWarning(m.Name(), err.Error()))
	}
	mcc, _ := MatthewsCorrCoef(m.targets, m.predictions)

	out["accuracy"] = acc
	out["precision"] = prf.Precision
	out["recall"] = prf.Recall
	out["f1"] = prf.F1
	out["mcc"] = mcc

	if m.numClasses > 2 {
		perClass, _ := F1PerClass(m.targets, m.predictions)
		for label, f1 := range perClass {
			out["f1_class_"+strconv.Itoa(label)] = f1
		}
	}

	if len(m.probabilities) > 0 {
		roc, ap, err := m.computeAUC()
		if err != nil {
			errors.Warn(errors.NewMetricWarning("AUC", err.Error()))
		} else {
			out["auc_roc"] = roc
			out["auc_pr"] = ap
		}
	}
	return out
}

func (m *ClassificationMetrics) computeAUC() (float64, float64, error) {
	if len(m.probabilities) != len(m.targets) {
		return 0, 0, errors.NewValueError("AUC",
			fmt.Sprintf("probabilities were supplied for %d of %d samples", len(m.probabilities), len(m.targets)))
	}
	if m.numClasses == 2 {
		pos := make([]float64, len(m.probabilities))
		for i, row := range m.probabilities {
			pos[i] = row[1]
		}
		roc, err := ROCAUC(m.targets, pos)
		if err != nil {
			return 0, 0, err
		}
		ap, err := AveragePrecision(m.targets, pos)
		if err != nil {
			return 0, 0, err
		}
		return roc, ap, nil
	}
	probs := mat.NewDense(len(m.probabilities), m.numClasses, nil)
	for i, row := range m.probabilities {
		probs.SetRow(i, row)
	}
	return OneVsRestAUC(m.targets, probs, m.average)
}

// Predictions returns a copy of the accumulated predictions as float64.
func (m *ClassificationMetrics) Predictions() []float64 { return intsToFloats(m.predictions) }

// Targets returns a copy of the accumulated targets as float64.
func (m *ClassificationMetrics) Targets() []float64 { return intsToFloats(m.targets) }

func intsToFloats(v []int) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
