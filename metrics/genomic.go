package metrics

import (
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/genotrain/core/parallel"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

// SequenceType is the alphabet of a genomic sequence task.
type SequenceType string

const (
	DNA     SequenceType = "dna"
	RNA     SequenceType = "rna"
	Protein SequenceType = "protein"
)

// ParseSequenceType accepts dna, rna or protein in any case.
func ParseSequenceType(s string) (SequenceType, error) {
	switch t := SequenceType(strings.ToLower(s)); t {
	case DNA, RNA, Protein:
		return t, nil
	}
	return "", errors.NewValidationError("sequence_type", "must be one of dna, rna, protein", s)
}

// SequenceAnalyzer is the optional biological-sequence capability used by
// GenomicSequenceMetrics.
type SequenceAnalyzer interface {
	// Available reports whether the analyzer can be used.
	Available() bool
	// GCContent returns the fraction of G and C residues.
	GCContent(seq string) float64
	// MolecularWeight returns the average molecular weight in daltons.
	MolecularWeight(seq string, seqType SequenceType) (float64, error)
}

// editDistanceParallelThreshold is the number of pairs above which edit
// distances are computed on all cores.
const editDistanceParallelThreshold = 256

// GenomicSequenceMetrics compares generated sequences with references.
type GenomicSequenceMetrics struct {
	seqType   SequenceType
	analyzer  SequenceAnalyzer
	logger    log.Logger
	generated []string
	reference []string
}

// GenomicOption configures GenomicSequenceMetrics.
type GenomicOption func(*GenomicSequenceMetrics)

// WithSequenceLogger sets the logger used to report skipped sequences.
func WithSequenceLogger(l log.Logger) GenomicOption {
	return func(m *GenomicSequenceMetrics) { m.logger = l }
}

// NewGenomicSequenceMetrics creates an accumulator. analyzer may be nil, in
// which case Compute always returns an empty result.
func NewGenomicSequenceMetrics(seqType SequenceType, analyzer SequenceAnalyzer, opts ...GenomicOption) *GenomicSequenceMetrics {
	m := &GenomicSequenceMetrics{
		seqType:  seqType,
		analyzer: analyzer,
		logger:   log.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements Metric.
func (m *GenomicSequenceMetrics) Name() string { return "genomic_sequence" }

// Reset implements Metric.
func (m *GenomicSequenceMetrics) Reset() {
	m.generated = nil
	m.reference = nil
}

// Update implements Metric. Only Generated and Reference are read; either may
// be empty.
func (m *GenomicSequenceMetrics) Update(in Inputs) error {
	m.generated = append(m.generated, in.Generated...)
	m.reference = append(m.reference, in.Reference...)
	return nil
}

// Compute implements Metric.
func (m *GenomicSequenceMetrics) Compute() map[string]float64 {
	if len(m.generated) == 0 || m.analyzer == nil || !m.analyzer.Available() {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	paired := len(m.generated) == len(m.reference)

	genLen, refLen := lengths(m.generated), lengths(m.reference)
	out["avg_length_generated"] = stat.Mean(genLen, nil)
	out["avg_length_reference"] = stat.Mean(refLen, nil)
	out["length_correlation"] = pairedCorrelation(genLen, refLen)

	switch m.seqType {
	case DNA, RNA:
		genGC, refGC := m.gcContents(m.generated), m.gcContents(m.reference)
		if len(genGC) > 0 && len(refGC) > 0 {
			out["avg_gc_generated"] = stat.Mean(genGC, nil)
			out["avg_gc_reference"] = stat.Mean(refGC, nil)
			out["gc_correlation"] = pairedCorrelation(genGC, refGC)
		}
	case Protein:
		genMW, refMW := m.weights(m.generated), m.weights(m.reference)
		if len(genMW) > 0 && len(refMW) > 0 {
			out["avg_mw_generated"] = stat.Mean(genMW, nil)
			out["avg_mw_reference"] = stat.Mean(refMW, nil)
			out["mw_correlation"] = pairedCorrelation(genMW, refMW)
		}
	}

	if paired {
		dists := EditDistances(m.generated, m.reference)
		var normalized []float64
		for i, d := range dists {
			if l := max(runeLen(m.generated[i]), runeLen(m.reference[i])); l > 0 {
				normalized = append(normalized, d/float64(l))
			}
		}
		out["avg_edit_distance"] = stat.Mean(dists, nil)
		out["normalized_edit_distance"] = stat.Mean(normalized, nil)
	}
	return out
}

// gcContents skips empty sequences.
func (m *GenomicSequenceMetrics) gcContents(seqs []string) []float64 {
	out := make([]float64, 0, len(seqs))
	for _, s := range seqs {
		if s == "" {
			continue
		}
		out = append(out, m.analyzer.GCContent(s))
	}
	return out
}

// weights skips sequences the analyzer rejects.
func (m *GenomicSequenceMetrics) weights(seqs []string) []float64 {
	out := make([]float64, 0, len(seqs))
	for _, s := range seqs {
		w, err := m.analyzer.MolecularWeight(s, m.seqType)
		if err != nil {
			m.logger.Debug("Skipping sequence in molecular weight average",
				log.MetricNameKey, m.Name(), "reason", err.Error())
			continue
		}
		out = append(out, w)
	}
	return out
}

// pairedCorrelation is the Pearson coefficient when both series have the same
// length and 0 otherwise.
func pairedCorrelation(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	c, _ := Pearson(a, b)
	return c.Coef
}

func lengths(seqs []string) []float64 {
	out := make([]float64, len(seqs))
	for i, s := range seqs {
		out[i] = float64(runeLen(s))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}

// EditDistance returns the Levenshtein distance between a and b with unit cost
// for insertion, deletion and substitution. Runes are compared, not bytes.
func EditDistance(a, b string) int {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// single rolling row over the shorter string
	row := make([]int, len(s2)+1)
	for j := range row {
		row[j] = j
	}
	for i, c1 := range s1 {
		diag := row[0]
		row[0] = i + 1
		for j, c2 := range s2 {
			cost := diag
			if c1 != c2 {
				cost++
			}
			diag = row[j+1]
			row[j+1] = min(row[j+1]+1, row[j]+1, cost)
		}
	}
	return row[len(s2)]
}

// EditDistances computes EditDistance for each pair. Large inputs are split
// across CPU cores.
func EditDistances(generated, reference []string) []float64 {
	n := min(len(generated), len(reference))
	out := make([]float64, n)
	parallel.ParallelizeWithThreshold(n, editDistanceParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = float64(EditDistance(generated[i], reference[i]))
		}
	})
	return out
}
