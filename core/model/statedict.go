package model

import (
	"sort"

	"github.com/YuminosukeSato/genotrain/core/tensor"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// Keys returns the sorted key set.
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies every tensor.
func (sd StateDict) Clone() StateDict {
	if sd == nil {
		return nil
	}
	out := make(StateDict, len(sd))
	for k, v := range sd {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether both dicts hold the same keys with bit-identical tensors.
func (sd StateDict) Equal(other StateDict) bool {
	if len(sd) != len(other) {
		return false
	}
	for k, v := range sd {
		o, ok := other[k]
		if !ok || !tensor.Equal(v, o) {
			return false
		}
	}
	return true
}

// Diff compares the keys of have against want.
func Diff(want, have StateDict) LoadResult {
	var res LoadResult
	for _, k := range want.Keys() {
		if _, ok := have[k]; !ok {
			res.MissingKeys = append(res.MissingKeys, k)
		}
	}
	for _, k := range have.Keys() {
		if _, ok := want[k]; !ok {
			res.UnexpectedKeys = append(res.UnexpectedKeys, k)
		}
	}
	return res
}

// ParamSet is a Module backed by a plain set of named tensors. It is enough for
// tests, examples and models whose forward pass lives elsewhere.
type ParamSet struct {
	Params   StateDict
	Training bool
}

// NewParamSet returns a ParamSet in training mode.
func NewParamSet(params StateDict) *ParamSet {
	return &ParamSet{Params: params, Training: true}
}

// StateDict implements Module.
func (p *ParamSet) StateDict() StateDict {
	return p.Params.Clone()
}

// LoadStateDict implements Module. Shapes of shared keys must match.
func (p *ParamSet) LoadStateDict(sd StateDict, strict bool) (LoadResult, error) {
	res := Diff(p.Params, sd)
	if strict && !res.Clean() {
		return res, errors.NewValidationError("state_dict", "key mismatch in strict load", res)
	}
	for k, v := range sd {
		cur, ok := p.Params[k]
		if !ok {
			continue
		}
		if cur.Len() != v.Len() {
			return res, errors.NewDimensionError("ParamSet.LoadStateDict "+k, cur.Len(), v.Len(), 0)
		}
		p.Params[k] = v.Clone()
	}
	return res, nil
}

// Eval implements Module.
func (p *ParamSet) Eval() {
	p.Training = false
}
