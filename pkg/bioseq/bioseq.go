// Package bioseq provides the biological sequence analysis used by genomic
// sequence metrics: GC content and average molecular weight.
package bioseq

import (
	"fmt"
	"strings"

	"github.com/YuminosukeSato/genotrain/metrics"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// WaterMass is subtracted once per bond formed between residues.
const WaterMass = 18.0153

// Average masses of the free residues in daltons.
var (
	proteinWeights = map[rune]float64{
		'A': 89.0932, 'C': 121.1582, 'D': 133.1027, 'E': 147.1293,
		'F': 165.1891, 'G': 75.0666, 'H': 155.1546, 'I': 131.1729,
		'K': 146.1876, 'L': 131.1729, 'M': 149.2113, 'N': 132.1179,
		'O': 255.3134, 'P': 115.1305, 'Q': 146.1445, 'R': 174.2010,
		'S': 105.0926, 'T': 119.1192, 'U': 168.0532, 'V': 117.1463,
		'W': 204.2252, 'Y': 181.1885,
	}
	dnaWeights = map[rune]float64{
		'A': 331.2218, 'C': 307.1971, 'G': 347.2212, 'T': 322.2085,
	}
	rnaWeights = map[rune]float64{
		'A': 347.2212, 'C': 323.1965, 'G': 363.2206, 'U': 324.1813,
	}
)

// Analyzer implements metrics.SequenceAnalyzer.
type Analyzer struct{}

var _ metrics.SequenceAnalyzer = Analyzer{}

// New returns an Analyzer.
func New() Analyzer { return Analyzer{} }

// Available implements metrics.SequenceAnalyzer. The tables are compiled in,
// so it is always true.
func (Analyzer) Available() bool { return true }

// GCContent returns the fraction of G and C residues, case-insensitive. An
// empty sequence has GC content 0.
func (Analyzer) GCContent(seq string) float64 {
	if seq == "" {
		return 0
	}
	var gc, n int
	for _, r := range strings.ToUpper(seq) {
		n++
		if r == 'G' || r == 'C' {
			gc++
		}
	}
	return float64(gc) / float64(n)
}

// MolecularWeight returns the average molecular weight of a single-stranded
// sequence. Unknown residues and empty sequences are errors.
func (Analyzer) MolecularWeight(seq string, seqType metrics.SequenceType) (float64, error) {
	var table map[rune]float64
	switch seqType {
	case metrics.DNA:
		table = dnaWeights
	case metrics.RNA:
		table = rnaWeights
	case metrics.Protein:
		table = proteinWeights
	default:
		return 0, errors.NewValidationError("sequence_type", "unsupported", string(seqType))
	}
	if seq == "" {
		return 0, errors.NewValueError("MolecularWeight", "empty sequence")
	}

	var weight float64
	var n int
	for i, r := range strings.ToUpper(seq) {
		w, ok := table[r]
		if !ok {
			return 0, errors.NewValueError("MolecularWeight",
				fmt.Sprintf("%q is not a valid unambiguous letter for %s at position %d", r, seqType, i))
		}
		weight += w
		n++
	}
	return weight - float64(n-1)*WaterMass, nil
}
