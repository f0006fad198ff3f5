// Package model defines the collaborator contracts that checkpointing and
// evaluation rely on, plus persistence helpers for state dicts.
//
// The network itself lives outside this module. A trainable module only needs
// to expose its parameters as a StateDict and accept one back; optimizers and
// schedulers are optional and their state capture is capability-checked.
package model

import (
	"github.com/YuminosukeSato/genotrain/core/tensor"
)

// StateDict maps parameter or buffer names to tensors.
type StateDict map[string]*tensor.Tensor

// Module is a trainable model.
type Module interface {
	// StateDict returns a snapshot of all parameters. Callers may retain it.
	StateDict() StateDict

	// LoadStateDict replaces parameters. With strict set, any missing or
	// unexpected key is an error; otherwise the mismatch is reported in the
	// returned LoadResult.
	LoadStateDict(sd StateDict, strict bool) (LoadResult, error)

	// Eval switches to evaluation mode. It must not touch parameters.
	Eval()
}

// StateSaver is implemented by collaborators whose state can be captured.
type StateSaver interface {
	StateDict() StateDict
}

// StateLoader is implemented by collaborators whose state can be restored.
type StateLoader interface {
	LoadStateDict(sd StateDict) error
}

// Optimizer must support both directions.
type Optimizer interface {
	StateSaver
	StateLoader
}

// LoadResult reports the key mismatch of a non-strict load.
type LoadResult struct {
	MissingKeys    []string
	UnexpectedKeys []string
}

// Clean reports whether the load matched every key.
func (r LoadResult) Clean() bool {
	return len(r.MissingKeys) == 0 && len(r.UnexpectedKeys) == 0
}
